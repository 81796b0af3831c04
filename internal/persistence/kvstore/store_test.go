package kvstore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	if _, err := s.Get(ctx, "registry"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing key err=%v", err)
	}
	if err := s.Put(ctx, "registry", []byte(`{"version":1}`)); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.Put(ctx, "registry", []byte(`{"version":2}`)); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	got, err := s.Get(ctx, "registry")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != `{"version":2}` {
		t.Fatalf("got %q", got)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestMemory(t *testing.T) {
	exerciseStore(t, NewMemory())
}

func TestMemory_ValuesAreCopied(t *testing.T) {
	s := NewMemory()
	v := []byte("abc")
	_ = s.Put(context.Background(), "k", v)
	v[0] = 'z'
	got, _ := s.Get(context.Background(), "k")
	if string(got) != "abc" {
		t.Fatalf("store aliased caller buffer: %q", got)
	}
}

func TestFile(t *testing.T) {
	s, err := NewFile(t.TempDir())
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}
	exerciseStore(t, s)
}

func TestFile_RejectsPathKeys(t *testing.T) {
	s, err := NewFile(t.TempDir())
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}
	if err := s.Put(context.Background(), "../escape", []byte("x")); err == nil {
		t.Fatalf("expected error for path key")
	}
}

func TestSQLite(t *testing.T) {
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "kv", "state.sqlite"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	exerciseStore(t, s)
}

func TestSQLite_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.sqlite")
	s, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	if err := s.Put(context.Background(), "registry", []byte("saved")); err != nil {
		t.Fatalf("put: %v", err)
	}
	_ = s.Close()

	s2, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	got, err := s2.Get(context.Background(), "registry")
	if err != nil || string(got) != "saved" {
		t.Fatalf("got %q err=%v", got, err)
	}
}

func TestOpen_Backends(t *testing.T) {
	ctx := context.Background()
	if _, err := Open(ctx, Options{Backend: "carrier-pigeon"}); err == nil {
		t.Fatalf("unknown backend accepted")
	}
	s, err := Open(ctx, Options{Backend: "memory"})
	if err != nil {
		t.Fatalf("memory: %v", err)
	}
	if _, ok := s.(*Memory); !ok {
		t.Fatalf("memory backend type %T", s)
	}
	if _, err := Open(ctx, Options{Backend: "postgres"}); err == nil {
		t.Fatalf("postgres without dsn accepted")
	}
	if _, err := Open(ctx, Options{Backend: "s3"}); err == nil {
		t.Fatalf("s3 without bucket accepted")
	}
}
