// Package kvstore is the external key-value store the registry saves into.
package kvstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var ErrNotFound = errors.New("kvstore: key not found")

// Store holds opaque values under string keys. Implementations must be safe
// for concurrent use.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Close() error
}

type Options struct {
	// Backend is one of memory, file, sqlite, postgres, s3.
	Backend string

	Dir         string
	SQLitePath  string
	PostgresDSN string
	S3          S3Options
}

// Open builds the configured backend.
func Open(ctx context.Context, opts Options) (Store, error) {
	var (
		s   Store
		err error
	)
	switch strings.ToLower(strings.TrimSpace(opts.Backend)) {
	case "", "file":
		s, err = asStore(NewFile(opts.Dir))
	case "memory":
		s = NewMemory()
	case "sqlite":
		s, err = asStore(OpenSQLite(opts.SQLitePath))
	case "postgres", "postgresql":
		s, err = asStore(OpenPostgres(ctx, opts.PostgresDSN))
	case "s3", "r2":
		s, err = asStore(OpenS3(ctx, opts.S3))
	default:
		err = fmt.Errorf("kvstore: unknown backend %q", opts.Backend)
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// asStore keeps a failed constructor from leaking a typed nil into the
// interface.
func asStore[T Store](s T, err error) (Store, error) {
	if err != nil {
		return nil, err
	}
	return s, nil
}
