package catalogs

import (
	"bytes"
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"nationsim.io/internal/sim/economy"
)

//go:embed countries.schema.json
var countriesSchema string

// Catalog is the static set of country seeds a room can be populated from.
type Catalog struct {
	Version   int            `json:"version"`
	Countries []economy.Seed `json:"countries"`

	ByName map[string]economy.Seed `json:"-"`
	Digest string                  `json:"-"`
	Raw    []byte                  `json:"-"`
}

func Load(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(raw)
}

// Parse validates raw against the embedded schema before decoding it.
func Parse(raw []byte) (*Catalog, error) {
	schema, err := jsonschema.CompileString("countries.schema.json", countriesSchema)
	if err != nil {
		return nil, fmt.Errorf("countries schema: %w", err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("countries.json: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("countries.json: %w", err)
	}

	c := &Catalog{Raw: raw, Digest: sha256Hex(raw)}
	if err := json.NewDecoder(bytes.NewReader(raw)).Decode(c); err != nil {
		return nil, fmt.Errorf("countries.json: %w", err)
	}
	c.ByName = make(map[string]economy.Seed, len(c.Countries))
	for _, s := range c.Countries {
		if _, dup := c.ByName[s.Name]; dup {
			return nil, fmt.Errorf("countries.json: duplicate country %q", s.Name)
		}
		c.ByName[s.Name] = s
	}
	return c, nil
}

func (c *Catalog) Seed(name string) (economy.Seed, bool) {
	if c == nil {
		return economy.Seed{}, false
	}
	s, ok := c.ByName[name]
	return s, ok
}

// Names lists the catalog countries sorted by name.
func (c *Catalog) Names() []string {
	if c == nil {
		return nil
	}
	out := make([]string, 0, len(c.ByName))
	for name := range c.ByName {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
