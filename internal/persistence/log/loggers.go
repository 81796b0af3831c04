package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"nationsim.io/internal/sim/registry"
)

const hourLayout = "2006-01-02-15"

// JSONLZstdWriter appends JSON lines to zstd files named
// <prefix>-YYYY-MM-DD-HH.jsonl.zst. The hour comes from the timestamp each
// entry carries, so files follow the registry's clock rather than the wall
// clock of the writer.
type JSONLZstdWriter struct {
	baseDir string
	prefix  string

	mu   sync.Mutex
	seg  string
	f    *os.File
	enc  *zstd.Encoder
	buf  *bufio.Writer
	rows uint64
}

func NewJSONLZstdWriter(baseDir, prefix string) *JSONLZstdWriter {
	return &JSONLZstdWriter{baseDir: baseDir, prefix: prefix}
}

// Append writes v into the file of the hour containing at. A zero at is
// stamped with the current time.
func (w *JSONLZstdWriter) Append(at time.Time, v any) error {
	if at.IsZero() {
		at = time.Now()
	}
	line, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s entry: %w", w.prefix, err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if seg := at.UTC().Format(hourLayout); seg != w.seg {
		if err := w.openLocked(seg); err != nil {
			return err
		}
	}
	line = append(line, '\n')
	if _, err := w.buf.Write(line); err != nil {
		return err
	}
	w.rows++
	return w.buf.Flush()
}

// Rows is the number of entries appended since the writer was created.
func (w *JSONLZstdWriter) Rows() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rows
}

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

// openLocked switches to the segment file of seg. Reopening an hour that was
// already written appends a new zstd frame, which readers decode as one
// stream.
func (w *JSONLZstdWriter) openLocked(seg string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	if err := os.MkdirAll(w.baseDir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(w.segmentPath(seg), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.seg, w.f, w.enc = seg, f, enc
	w.buf = bufio.NewWriterSize(enc, 128*1024)
	return nil
}

func (w *JSONLZstdWriter) closeLocked() error {
	if w.f == nil {
		return nil
	}
	_ = w.buf.Flush()
	err := w.enc.Close()
	if cerr := w.f.Close(); err == nil {
		err = cerr
	}
	w.seg, w.f, w.enc, w.buf = "", nil, nil, nil
	return err
}

func (w *JSONLZstdWriter) segmentPath(seg string) string {
	return filepath.Join(w.baseDir, w.prefix+"-"+seg+".jsonl.zst")
}

// TickLogger keeps one line per room tick under <data>/ticks.
type TickLogger struct{ w *JSONLZstdWriter }

func NewTickLogger(dataDir string) *TickLogger {
	return &TickLogger{w: NewJSONLZstdWriter(filepath.Join(dataDir, "ticks"), "ticks")}
}

func (l *TickLogger) WriteTick(e registry.TickLogEntry) error { return l.w.Append(e.Time, e) }
func (l *TickLogger) Close() error                            { return l.w.Close() }

// AuditLogger keeps one line per state-changing command under <data>/audit.
type AuditLogger struct{ w *JSONLZstdWriter }

func NewAuditLogger(dataDir string) *AuditLogger {
	return &AuditLogger{w: NewJSONLZstdWriter(filepath.Join(dataDir, "audit"), "audit")}
}

func (l *AuditLogger) WriteAudit(e registry.AuditEntry) error { return l.w.Append(e.Time, e) }
func (l *AuditLogger) Close() error                           { return l.w.Close() }
