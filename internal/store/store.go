// Package store is the key-value store the load generator exercises.
//
// Two backends implement [Store]: [Redis] over go-redis and [Memory], an
// in-process map used for demos and tests. Both bound the number of
// concurrent operations with a connection pool and make callers wait for a
// free connection.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/torosent/kvscope/internal/pool"
)

var (
	// ErrNotFound reports a missing string key.
	ErrNotFound = errors.New("store: not found")
	// ErrUnavailable reports that the store could not serve the request:
	// connection failures, pool exhaustion or timeouts.
	ErrUnavailable = errors.New("store: unavailable")
)

// Store is the set of operations the workload and seeding use.
type Store interface {
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HSet(ctx context.Context, key string, fields map[string]string) error
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// WriteBatch applies all writes in one round trip where the backend allows it.
	WriteBatch(ctx context.Context, writes []Write) error
	Ping(ctx context.Context) error
	Close() error
}

// PoolReporter is implemented by backends that expose connection pool counters.
type PoolReporter interface {
	PoolStats() pool.Stats
}

// Write is one entry of a batch. Fields selects a hash write, otherwise
// Value is written as a string key with an optional TTL.
type Write struct {
	Key    string
	Fields map[string]string
	Value  string
	TTL    time.Duration
}

// Kind classifies store failures.
type Kind uint8

const (
	KindOther Kind = iota
	KindNotFound
	KindUnavailable
	KindTimeout
	KindReply
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "Record not found"
	case KindUnavailable:
		return "Store unavailable"
	case KindTimeout:
		return "Store timeout"
	case KindReply:
		return "Store error reply"
	default:
		return "Store error"
	}
}

// Error wraps a backend failure with the operation and key involved.
type Error struct {
	Op   string
	Key  string
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("store: %s %s: %s", e.Op, e.Key, e.Kind)
	}
	return fmt.Sprintf("store: %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches ErrNotFound and ErrUnavailable by kind. Timeouts count as unavailable.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Kind == KindNotFound
	case ErrUnavailable:
		return e.Kind == KindUnavailable || e.Kind == KindTimeout
	}
	return false
}

// ErrorLabel names the failure in the metrics error breakdown.
func (e *Error) ErrorLabel() string { return e.Kind.String() }

// Config selects and sizes a backend.
type Config struct {
	Backend     string
	URL         string
	PoolSize    int
	PoolTimeout time.Duration
	OpTimeout   time.Duration
}

const (
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Open builds the configured backend. It does not contact the store; use
// Ping to check reachability.
func Open(cfg Config, logger *zap.Logger) (Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch cfg.Backend {
	case "", BackendRedis:
		return NewRedis(cfg, logger)
	case BackendMemory:
		return NewMemory(MemoryOptions{PoolSize: cfg.PoolSize, PoolTimeout: cfg.PoolTimeout, Logger: logger}), nil
	default:
		return nil, fmt.Errorf("store: unknown backend %q", cfg.Backend)
	}
}
