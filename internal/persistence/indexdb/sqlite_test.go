package indexdb

import (
	"database/sql"
	"path/filepath"
	"testing"

	"nationsim.io/internal/sim/economy"
	"nationsim.io/internal/sim/registry"
	"nationsim.io/internal/sim/tuning"
)

func TestSQLiteIndex_WritesTicksAndAudits(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "index.sqlite")
	idx, err := OpenSQLite(dbPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	for tick := uint64(1); tick <= 3; tick++ {
		_ = idx.WriteTick(registry.TickLogEntry{
			Room: "alpha",
			Tick: tick,
			Countries: []registry.CountryTick{
				{Name: "France", GDP: 100 * float64(tick), CreditRating: economy.RatingAA},
				{Name: "Japan", GDP: 50, CreditRating: economy.RatingA},
			},
		})
	}
	_ = idx.WriteAudit(registry.AuditEntry{Room: "alpha", Tick: 3, Action: registry.AuditBond, Actor: "France", Amount: 250})
	_ = idx.WriteAudit(registry.AuditEntry{Room: "alpha", Tick: 3, Action: registry.AuditTrade, Actor: "France", Target: "Japan", AgreementID: "agr_1"})
	if err := idx.UpsertConfig([]byte(`{"countries":[]}`), tuning.Defaults()); err != nil {
		t.Fatalf("UpsertConfig: %v", err)
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close()

	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM ticks WHERE room='alpha'`).Scan(&n); err != nil || n != 3 {
		t.Fatalf("ticks=%d err=%v", n, err)
	}
	var gdp float64
	if err := db.QueryRow(`SELECT gdp FROM country_ticks WHERE room='alpha' AND country='France' AND tick=3`).Scan(&gdp); err != nil || gdp != 300 {
		t.Fatalf("gdp=%v err=%v", gdp, err)
	}
	var seq int
	var target string
	if err := db.QueryRow(`SELECT seq, target FROM audits WHERE agreement_id='agr_1'`).Scan(&seq, &target); err != nil {
		t.Fatalf("audit query: %v", err)
	}
	if seq != 1 || target != "Japan" {
		t.Fatalf("seq=%d target=%q", seq, target)
	}
	if err := db.QueryRow(`SELECT COUNT(*) FROM catalogs`).Scan(&n); err != nil || n != 2 {
		t.Fatalf("catalogs=%d err=%v", n, err)
	}
}

func TestSQLiteIndex_QueueDropStats(t *testing.T) {
	s := &SQLiteIndex{ch: make(chan req, 1)}
	s.ch <- req{kind: reqTick, tick: registry.TickLogEntry{Tick: 1}}

	_ = s.WriteTick(registry.TickLogEntry{Tick: 2})
	_ = s.WriteAudit(registry.AuditEntry{Tick: 2})

	st := s.Stats()
	if st.DropTickTotal != 1 {
		t.Fatalf("DropTickTotal=%d want=1", st.DropTickTotal)
	}
	if st.DropAuditTotal != 1 {
		t.Fatalf("DropAuditTotal=%d want=1", st.DropAuditTotal)
	}
	if st.QueueDepth != 1 || st.QueueCapacity != 1 {
		t.Fatalf("queue stats mismatch: depth=%d cap=%d", st.QueueDepth, st.QueueCapacity)
	}
}

func TestSQLiteIndex_WritesAfterCloseAreIgnored(t *testing.T) {
	idx, err := OpenSQLite(filepath.Join(t.TempDir(), "index.sqlite"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := idx.WriteTick(registry.TickLogEntry{Room: "r", Tick: 1}); err != nil {
		t.Fatalf("WriteTick after close: %v", err)
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}
