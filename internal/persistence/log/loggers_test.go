package log

import (
	"path/filepath"
	"testing"
	"time"

	"nationsim.io/internal/sim/registry"
)

func TestTickLogger_WritesReadableZstdJSONL(t *testing.T) {
	dir := t.TempDir()
	l := NewTickLogger(dir)
	for i := uint64(1); i <= 3; i++ {
		err := l.WriteTick(registry.TickLogEntry{
			Room: "alpha",
			Tick: i,
			Countries: []registry.CountryTick{
				{Name: "France", GDP: 1000 + float64(i), CreditRating: "AA"},
			},
		})
		if err != nil {
			t.Fatalf("WriteTick: %v", err)
		}
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	var got []registry.TickLogEntry
	if err := ReadTicks(dir, func(e registry.TickLogEntry) bool {
		got = append(got, e)
		return true
	}); err != nil {
		t.Fatalf("ReadTicks: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("entries=%d want 3", len(got))
	}
	if got[2].Tick != 3 || got[2].Countries[0].GDP != 1003 || got[2].Room != "alpha" {
		t.Fatalf("last entry=%+v", got[2])
	}
}

func TestAuditLogger_SegmentsByEntryHour(t *testing.T) {
	dir := t.TempDir()
	l := NewAuditLogger(dir)
	at := time.Date(2024, 5, 1, 10, 59, 0, 0, time.UTC)

	if err := l.WriteAudit(registry.AuditEntry{Room: "alpha", Time: at, Action: registry.AuditBond}); err != nil {
		t.Fatalf("WriteAudit: %v", err)
	}
	if err := l.WriteAudit(registry.AuditEntry{Room: "alpha", Time: at.Add(2 * time.Minute), Action: registry.AuditTrade}); err != nil {
		t.Fatalf("WriteAudit: %v", err)
	}
	if n := l.w.Rows(); n != 2 {
		t.Fatalf("rows=%d want 2", n)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	dir = filepath.Join(dir, "audit")

	files, err := ListFiles(dir, "audit")
	if err != nil {
		t.Fatalf("ListFiles: %v", err)
	}
	if len(files) != 2 || filepath.Base(files[0]) != "audit-2024-05-01-10.jsonl.zst" {
		t.Fatalf("files=%v", files)
	}
	var actions []string
	for _, f := range files {
		if err := ReadJSONL(f, func(e registry.AuditEntry) bool {
			actions = append(actions, e.Action)
			return true
		}); err != nil {
			t.Fatalf("ReadJSONL: %v", err)
		}
	}
	if len(actions) != 2 || actions[0] != registry.AuditBond || actions[1] != registry.AuditTrade {
		t.Fatalf("actions=%v", actions)
	}
}

func TestReadTicks_StopsEarly(t *testing.T) {
	dir := t.TempDir()
	l := NewTickLogger(dir)
	for i := uint64(1); i <= 5; i++ {
		_ = l.WriteTick(registry.TickLogEntry{Room: "r", Tick: i})
	}
	_ = l.Close()
	n := 0
	if err := ReadTicks(dir, func(e registry.TickLogEntry) bool {
		n++
		return e.Tick < 2
	}); err != nil {
		t.Fatalf("ReadTicks: %v", err)
	}
	if n != 2 {
		t.Fatalf("visited=%d want 2", n)
	}
}
