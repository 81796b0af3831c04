package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zstd"

	"nationsim.io/internal/sim/registry"
)

// ListFiles returns the <prefix>-*.jsonl.zst files of dir in time order.
func ListFiles(dir, prefix string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(ents))
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, prefix+"-") && strings.HasSuffix(name, ".jsonl.zst") {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	out := make([]string, 0, len(names))
	for _, name := range names {
		out = append(out, filepath.Join(dir, name))
	}
	return out, nil
}

// ReadJSONL decodes every line of one compressed file into a fresh T and
// hands it to fn. fn returning false stops the scan.
func ReadJSONL[T any](path string, fn func(T) bool) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 8*1024*1024)
	for sc.Scan() {
		var v T
		if err := json.Unmarshal(sc.Bytes(), &v); err != nil {
			return fmt.Errorf("%s: unmarshal: %w", filepath.Base(path), err)
		}
		if !fn(v) {
			return nil
		}
	}
	return sc.Err()
}

// ReadTicks replays every tick entry under dataDir/ticks in order.
func ReadTicks(dataDir string, fn func(registry.TickLogEntry) bool) error {
	files, err := ListFiles(filepath.Join(dataDir, "ticks"), "ticks")
	if err != nil {
		return err
	}
	for _, path := range files {
		stop := false
		err := ReadJSONL(path, func(e registry.TickLogEntry) bool {
			if !fn(e) {
				stop = true
				return false
			}
			return true
		})
		if err != nil {
			return err
		}
		if stop {
			return nil
		}
	}
	return nil
}
