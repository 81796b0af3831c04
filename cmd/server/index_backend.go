package main

import (
	"nationsim.io/internal/config"
	"nationsim.io/internal/persistence/indexdb"
	"nationsim.io/internal/sim/registry"
)

func openRuntimeIndex(cfg config.Config) (*indexdb.SQLiteIndex, error) {
	if !cfg.IndexEnabled() {
		return nil, nil
	}
	return indexdb.OpenSQLite(cfg.IndexPath())
}

// multiLogger fans tick and audit entries out to every configured sink.
// Sink errors are ignored; the JSONL logs stay the source of truth.
type multiLogger struct {
	ticks  []registry.TickLogger
	audits []registry.AuditLogger
}

func (m multiLogger) WriteTick(entry registry.TickLogEntry) error {
	for _, l := range m.ticks {
		_ = l.WriteTick(entry)
	}
	return nil
}

func (m multiLogger) WriteAudit(entry registry.AuditEntry) error {
	for _, l := range m.audits {
		_ = l.WriteAudit(entry)
	}
	return nil
}
