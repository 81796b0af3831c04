package main

import (
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"nationsim.io/internal/config"
	"nationsim.io/internal/persistence/kvstore"
	"nationsim.io/internal/sim/catalogs"
	"nationsim.io/internal/sim/economy"
	"nationsim.io/internal/sim/registry"
	"nationsim.io/internal/sim/tuning"
	"nationsim.io/internal/transport/ws"
)

type countingLogger struct {
	ticks, audits int
}

func (c *countingLogger) WriteTick(registry.TickLogEntry) error {
	c.ticks++
	return nil
}

func (c *countingLogger) WriteAudit(registry.AuditEntry) error {
	c.audits++
	return nil
}

func TestMux_HealthMetricsAndSave(t *testing.T) {
	store := kvstore.NewMemory()
	reg, err := registry.New(registry.Options{
		Tuning:  tuning.Defaults(),
		Store:   store,
		NewRand: func(string) economy.Rand { return economy.NoJitter{} },
	})
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	defer reg.Close()
	if err := reg.CreateRoom("alpha"); err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	_ = reg.Step("alpha")

	cat, err := catalogs.Parse([]byte(`{"version":1,"countries":[{"name":"X","gdp":1,"interest_rate":1,"tax_burden":1,"public_services":1}]}`))
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	mux := newMux(config.Config{}, reg, ws.NewServer(reg, cat, nil), nil, log.New(io.Discard, "", 0))

	get := func(path string) (int, string) {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.RemoteAddr = "127.0.0.1:1234"
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		return rec.Code, rec.Body.String()
	}
	if code, body := get("/healthz"); code != 200 || body != "ok" {
		t.Fatalf("healthz=%d %q", code, body)
	}
	code, body := get("/metrics")
	if code != 200 || !strings.Contains(body, "nationsim_rooms 1\n") || !strings.Contains(body, "nationsim_ticks_total 1\n") {
		t.Fatalf("metrics=%d\n%s", code, body)
	}
	if code, body := get("/admin/v1/state"); code != 200 || !strings.Contains(body, `"alpha"`) {
		t.Fatalf("state=%d %s", code, body)
	}

	req := httptest.NewRequest(http.MethodPost, "/admin/v1/save", nil)
	req.RemoteAddr = "127.0.0.1:1234"
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != 200 {
		t.Fatalf("save=%d %s", rec.Code, rec.Body.String())
	}
	if _, err := store.Get(req.Context(), registry.DefaultStateKey); err != nil {
		t.Fatalf("state not saved: %v", err)
	}

	req = httptest.NewRequest(http.MethodGet, "/admin/v1/state", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("remote admin=%d", rec.Code)
	}
}

func TestMultiLogger_FansOut(t *testing.T) {
	a, b := &countingLogger{}, &countingLogger{}
	m := multiLogger{ticks: []registry.TickLogger{a, b}, audits: []registry.AuditLogger{b}}
	_ = m.WriteTick(registry.TickLogEntry{Tick: 1})
	_ = m.WriteAudit(registry.AuditEntry{Tick: 1})
	if a.ticks != 1 || b.ticks != 1 || a.audits != 0 || b.audits != 1 {
		t.Fatalf("a=%+v b=%+v", a, b)
	}
}

func TestIsLoopbackRemote(t *testing.T) {
	for addr, want := range map[string]bool{
		"127.0.0.1:80": true,
		"[::1]:80":     true,
		"10.1.2.3:80":  false,
		"garbage":      false,
	} {
		if got := isLoopbackRemote(addr); got != want {
			t.Fatalf("%s: got %v want %v", addr, got, want)
		}
	}
}
