// Package config holds the process configuration of the nationsim server.
// Values come from NATIONSIM_* environment variables; command-line flags
// registered with BindFlags override them.
package config

import (
	"flag"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"

	"nationsim.io/internal/persistence/kvstore"
)

type Config struct {
	Addr      string `env:"NATIONSIM_ADDR" envDefault:":8080"`
	ConfigDir string `env:"NATIONSIM_CONFIGS" envDefault:"./configs"`
	DataDir   string `env:"NATIONSIM_DATA" envDefault:"./data"`

	// Empty means <ConfigDir>/tuning.yaml and <ConfigDir>/countries.json.
	TuningPath  string `env:"NATIONSIM_TUNING"`
	CatalogPath string `env:"NATIONSIM_CATALOG"`

	// Rooms created at startup when the store holds no saved state.
	Rooms []string `env:"NATIONSIM_ROOMS" envSeparator:","`

	// sqlite or none.
	IndexBackend string `env:"NATIONSIM_INDEX_BACKEND" envDefault:"sqlite"`
	DisableLogs  bool   `env:"NATIONSIM_DISABLE_LOGS"`
	EnablePprof  bool   `env:"NATIONSIM_ENABLE_PPROF"`

	CmdsPerSecond int `env:"NATIONSIM_WS_CMDS_PER_SEC" envDefault:"20"`

	Store StoreConfig `envPrefix:"NATIONSIM_STORE_"`
}

type StoreConfig struct {
	Backend     string `env:"BACKEND" envDefault:"file"`
	Dir         string `env:"DIR"`
	SQLitePath  string `env:"SQLITE_PATH"`
	PostgresDSN string `env:"POSTGRES_DSN"`
	StateKey    string `env:"STATE_KEY" envDefault:"registry"`

	S3Bucket          string `env:"S3_BUCKET"`
	S3Prefix          string `env:"S3_PREFIX"`
	S3Region          string `env:"S3_REGION"`
	S3Endpoint        string `env:"S3_ENDPOINT"`
	S3AccessKeyID     string `env:"S3_ACCESS_KEY_ID"`
	S3SecretAccessKey string `env:"S3_SECRET_ACCESS_KEY"`
}

// Load reads the environment.
func Load() (Config, error) {
	var c Config
	if err := env.Parse(&c); err != nil {
		return c, fmt.Errorf("parse env: %w", err)
	}
	return c, nil
}

// BindFlags registers flags whose defaults are the current (environment)
// values, so an explicit flag wins over the environment.
func (c *Config) BindFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.Addr, "addr", c.Addr, "http listen address")
	fs.StringVar(&c.ConfigDir, "configs", c.ConfigDir, "config directory")
	fs.StringVar(&c.DataDir, "data", c.DataDir, "runtime data directory")
	fs.StringVar(&c.TuningPath, "tuning", c.TuningPath, "path to tuning.yaml (default: <configs>/tuning.yaml)")
	fs.StringVar(&c.CatalogPath, "catalog", c.CatalogPath, "path to countries.json (default: <configs>/countries.json)")
	fs.StringVar(&c.IndexBackend, "index", c.IndexBackend, "read-model index backend: sqlite|none")
	fs.BoolVar(&c.DisableLogs, "disable_logs", c.DisableLogs, "disable zstd tick/audit logs")
	fs.StringVar(&c.Store.Backend, "store", c.Store.Backend, "state store backend: file|memory|sqlite|postgres|s3")
	fs.StringVar(&c.Store.StateKey, "state_key", c.Store.StateKey, "key the registry state is saved under")
	fs.Func("rooms", "comma separated rooms to create on a fresh start", func(v string) error {
		c.Rooms = splitList(v)
		return nil
	})
}

func (c Config) ResolvedTuningPath() string {
	if p := strings.TrimSpace(c.TuningPath); p != "" {
		return p
	}
	return filepath.Join(c.ConfigDir, "tuning.yaml")
}

func (c Config) ResolvedCatalogPath() string {
	if p := strings.TrimSpace(c.CatalogPath); p != "" {
		return p
	}
	return filepath.Join(c.ConfigDir, "countries.json")
}

// StoreOptions fills backend defaults that live under the data directory.
func (c Config) StoreOptions() kvstore.Options {
	s := c.Store
	opts := kvstore.Options{
		Backend:     s.Backend,
		Dir:         s.Dir,
		SQLitePath:  s.SQLitePath,
		PostgresDSN: s.PostgresDSN,
		S3: kvstore.S3Options{
			Bucket:          s.S3Bucket,
			Prefix:          s.S3Prefix,
			Region:          s.S3Region,
			Endpoint:        s.S3Endpoint,
			AccessKeyID:     s.S3AccessKeyID,
			SecretAccessKey: s.S3SecretAccessKey,
		},
	}
	if opts.Dir == "" {
		opts.Dir = filepath.Join(c.DataDir, "state")
	}
	if opts.SQLitePath == "" {
		opts.SQLitePath = filepath.Join(c.DataDir, "state.sqlite")
	}
	return opts
}

func (c Config) IndexPath() string {
	return filepath.Join(c.DataDir, "index", "nationsim.sqlite")
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Addr) == "" {
		return fmt.Errorf("addr is empty")
	}
	switch strings.ToLower(c.IndexBackend) {
	case "sqlite", "none", "off", "disabled":
	default:
		return fmt.Errorf("unsupported index backend: %s", c.IndexBackend)
	}
	if c.CmdsPerSecond < 0 {
		return fmt.Errorf("ws commands per second must be >= 0")
	}
	switch strings.ToLower(strings.TrimSpace(c.Store.Backend)) {
	case "", "file", "memory", "sqlite":
	case "postgres", "postgresql":
		if c.Store.PostgresDSN == "" {
			return fmt.Errorf("store backend %s needs NATIONSIM_STORE_POSTGRES_DSN", c.Store.Backend)
		}
	case "s3", "r2":
		if c.Store.S3Bucket == "" {
			return fmt.Errorf("store backend %s needs NATIONSIM_STORE_S3_BUCKET", c.Store.Backend)
		}
	default:
		return fmt.Errorf("unsupported store backend: %s", c.Store.Backend)
	}
	return nil
}

// IndexEnabled reports whether the SQLite read model should be opened.
func (c Config) IndexEnabled() bool {
	return strings.ToLower(c.IndexBackend) == "sqlite"
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
