package config

import (
	"flag"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	c, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Addr != ":8080" || c.Store.Backend != "file" || c.Store.StateKey != "registry" {
		t.Fatalf("defaults=%+v", c)
	}
	if c.CmdsPerSecond != 20 || !c.IndexEnabled() {
		t.Fatalf("cmds=%d index=%v", c.CmdsPerSecond, c.IndexEnabled())
	}
	if got := c.ResolvedTuningPath(); got != filepath.Join("configs", "tuning.yaml") {
		t.Fatalf("tuning path=%s", got)
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestLoad_EnvAndFlags(t *testing.T) {
	t.Setenv("NATIONSIM_ADDR", ":9000")
	t.Setenv("NATIONSIM_DATA", "/var/lib/nationsim")
	t.Setenv("NATIONSIM_ROOMS", "alpha, beta")
	t.Setenv("NATIONSIM_STORE_BACKEND", "postgres")
	t.Setenv("NATIONSIM_STORE_POSTGRES_DSN", "postgres://localhost/nationsim")
	t.Setenv("NATIONSIM_STORE_S3_BUCKET", "saves")

	c, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Addr != ":9000" || c.Store.Backend != "postgres" || c.Store.S3Bucket != "saves" {
		t.Fatalf("env=%+v", c)
	}
	if len(c.Rooms) != 2 || strings.TrimSpace(c.Rooms[1]) != "beta" {
		t.Fatalf("rooms=%q", c.Rooms)
	}

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	c.BindFlags(fs)
	if err := fs.Parse([]string{"-addr", ":7000", "-rooms", "gamma", "-store", "sqlite"}); err != nil {
		t.Fatalf("flags: %v", err)
	}
	if c.Addr != ":7000" || len(c.Rooms) != 1 || c.Rooms[0] != "gamma" {
		t.Fatalf("flags=%+v", c)
	}

	opts := c.StoreOptions()
	if opts.Backend != "sqlite" || opts.SQLitePath != filepath.Join("/var/lib/nationsim", "state.sqlite") {
		t.Fatalf("store options=%+v", opts)
	}
	if opts.PostgresDSN != "postgres://localhost/nationsim" || opts.S3.Bucket != "saves" {
		t.Fatalf("store options=%+v", opts)
	}
}

func TestLoad_ParseError(t *testing.T) {
	t.Setenv("NATIONSIM_WS_CMDS_PER_SEC", "many")
	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "parse env:") {
		t.Fatalf("err=%v", err)
	}
}

func TestValidate(t *testing.T) {
	c, _ := Load()
	c.IndexBackend = "d1"
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for unknown index backend")
	}
	c.IndexBackend = "none"
	c.Addr = " "
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for empty addr")
	}
	c.Addr = ":8080"
	for _, tc := range []struct {
		backend, dsn, bucket string
		ok                   bool
	}{
		{backend: "memory", ok: true},
		{backend: "postgres", ok: false},
		{backend: "postgres", dsn: "postgres://localhost/x", ok: true},
		{backend: "s3", ok: false},
		{backend: "r2", bucket: "saves", ok: true},
		{backend: "redis", ok: false},
	} {
		c.Store.Backend, c.Store.PostgresDSN, c.Store.S3Bucket = tc.backend, tc.dsn, tc.bucket
		if err := c.Validate(); (err == nil) != tc.ok {
			t.Fatalf("backend=%s dsn=%q bucket=%q: err=%v", tc.backend, tc.dsn, tc.bucket, err)
		}
	}
}
