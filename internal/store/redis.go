package store

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/torosent/kvscope/internal/pool"
)

// Redis is a Store backed by a Redis server. The client's pool holds at
// most PoolSize connections and callers wait up to PoolTimeout for one.
type Redis struct {
	client *redis.Client
	size   int
	logger *zap.Logger
}

// NewRedis parses cfg.URL (redis://[user:pass@]host:port/db) and builds a client.
func NewRedis(cfg Config, logger *zap.Logger) (*Redis, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	url := cfg.URL
	if url == "" {
		url = "redis://127.0.0.1:6379/0"
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("store: parse redis url: %w", err)
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if cfg.PoolTimeout > 0 {
		opts.PoolTimeout = cfg.PoolTimeout
	}
	if cfg.OpTimeout > 0 {
		opts.ReadTimeout = cfg.OpTimeout
		opts.WriteTimeout = cfg.OpTimeout
		opts.DialTimeout = cfg.OpTimeout
	}
	// Every failed operation is a sample; retrying would hide it.
	opts.MaxRetries = -1

	logger.Debug("redis client configured",
		zap.String("addr", opts.Addr),
		zap.Int("db", opts.DB),
		zap.Int("pool_size", opts.PoolSize),
		zap.Duration("pool_timeout", opts.PoolTimeout),
	)
	return &Redis{client: redis.NewClient(opts), size: opts.PoolSize, logger: logger}, nil
}

func (r *Redis) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	res, err := r.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, classifyRedis("HGETALL", key, err)
	}
	return res, nil
}

func (r *Redis) HSet(ctx context.Context, key string, fields map[string]string) error {
	if err := r.client.HSet(ctx, key, hashArgs(fields)...).Err(); err != nil {
		return classifyRedis("HSET", key, err)
	}
	return nil
}

func (r *Redis) Get(ctx context.Context, key string) (string, error) {
	res, err := r.client.Get(ctx, key).Result()
	if err != nil {
		return "", classifyRedis("GET", key, err)
	}
	return res, nil
}

func (r *Redis) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return classifyRedis("SET", key, err)
	}
	return nil
}

// WriteBatch sends all writes in a single pipeline.
func (r *Redis) WriteBatch(ctx context.Context, writes []Write) error {
	if len(writes) == 0 {
		return nil
	}
	_, err := r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, w := range writes {
			if w.Fields != nil {
				pipe.HSet(ctx, w.Key, hashArgs(w.Fields)...)
				continue
			}
			pipe.Set(ctx, w.Key, w.Value, w.TTL)
		}
		return nil
	})
	if err != nil {
		return classifyRedis("PIPELINE", fmt.Sprintf("(%d writes)", len(writes)), err)
	}
	return nil
}

func (r *Redis) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return classifyRedis("PING", "", err)
	}
	return nil
}

// PoolStats maps the client's connection pool counters onto pool.Stats.
func (r *Redis) PoolStats() pool.Stats {
	s := r.client.PoolStats()
	total, idle := int(s.TotalConns), int(s.IdleConns)
	return pool.Stats{
		Size:     r.size,
		InUse:    total - idle,
		Idle:     idle,
		Created:  int64(s.Misses),
		Reused:   int64(s.Hits),
		Timeouts: int64(s.Timeouts),
	}
}

func (r *Redis) Close() error {
	return r.client.Close()
}

func hashArgs(fields map[string]string) []any {
	args := make([]any, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return args
}

func classifyRedis(op, key string, err error) error {
	kind := KindOther
	var netErr net.Error
	var replyErr redis.Error
	switch {
	case errors.Is(err, redis.Nil):
		kind = KindNotFound
	case errors.Is(err, context.DeadlineExceeded):
		kind = KindTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		kind = KindTimeout
	case errors.As(err, &netErr), errors.Is(err, redis.ErrClosed):
		kind = KindUnavailable
	case errors.As(err, &replyErr):
		kind = KindReply
	}
	return &Error{Op: op, Key: key, Kind: kind, Err: err}
}
