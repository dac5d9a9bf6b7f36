// Package cache stores computed rankings and a few small reference values.
package cache

import (
	"context"
	"fmt"
	"time"
)

// Backend is a byte-level key/value store with optional expiry.
// A zero ttl never expires.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Invalidate(ctx context.Context, key string) error
	// InvalidatePrefix removes every key starting with prefix and returns
	// how many were removed.
	InvalidatePrefix(ctx context.Context, prefix string) (int, error)
	Len(ctx context.Context) (int, error)
	Close() error
}

// Kind names a Backend implementation.
type Kind string

// Backend kinds.
const (
	KindMemory   Kind = "memory"
	KindSQLite   Kind = "sqlite"
	KindMySQL    Kind = "mysql"
	KindPostgres Kind = "postgres"
	KindNone     Kind = "none"
)

// OpenBackend returns the backend for kind. dsn is only used by SQL kinds.
func OpenBackend(ctx context.Context, kind Kind, dsn string, opts ...Option) (Backend, error) {
	switch kind {
	case KindMemory:
		return NewMemory(opts...), nil
	case KindNone:
		return None{}, nil
	case KindSQLite, KindMySQL, KindPostgres:
		return OpenSQL(ctx, kind, dsn, opts...)
	default:
		return nil, fmt.Errorf("cache backend %q: %w", kind, ErrUnsupportedBackend)
	}
}

// None never stores anything. Every Get is a miss.
type None struct{}

// Get implements Backend.
func (None) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }

// Put implements Backend.
func (None) Put(context.Context, string, []byte, time.Duration) error { return nil }

// Invalidate implements Backend.
func (None) Invalidate(context.Context, string) error { return nil }

// InvalidatePrefix implements Backend.
func (None) InvalidatePrefix(context.Context, string) (int, error) { return 0, nil }

// Len implements Backend.
func (None) Len(context.Context) (int, error) { return 0, nil }

// Close implements Backend.
func (None) Close() error { return nil }
