// Package seed fills the store with the user and product catalog the
// workload reads.
package seed

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync/atomic"
	"time"

	"github.com/alitto/pond"
	"go.uber.org/zap"

	"github.com/torosent/kvscope/internal/store"
	"github.com/torosent/kvscope/internal/workload"
)

// RandomSeed makes every seeding run produce the same catalog.
const RandomSeed = 42

const seededAt = "2025-01-15T09:23:11Z"

// Options size the catalog and the write fan-out.
type Options struct {
	Users     int
	Products  int
	BatchSize int
	Workers   int
	Logger    *zap.Logger
}

func (o *Options) normalize() {
	if o.Users < 0 {
		o.Users = 0
	}
	if o.Products < 0 {
		o.Products = 0
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 500
	}
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
}

// Result summarises a seeding run.
type Result struct {
	Users    int
	Products int
	Batches  int
	Duration time.Duration
}

// Users builds the deterministic user catalog.
func Users(rng *rand.Rand, n int) []workload.User {
	out := make([]workload.User, 0, n)
	for i := 1; i <= n; i++ {
		first := firstNames[rng.Intn(len(firstNames))]
		last := lastNames[rng.Intn(len(lastNames))]
		role := roles[rng.Intn(len(roles))]
		theme := "light"
		if rng.Float64() < 0.5 {
			theme = "dark"
		}
		out = append(out, workload.User{
			ID:        workload.UserID(i),
			Name:      first + " " + last,
			Email:     fmt.Sprintf("%s.%s%d@example.com", strings.ToLower(first), strings.ToLower(last), i),
			Role:      role,
			Prefs:     workload.Prefs{Theme: theme, Lang: "en", Notifications: rng.Float64() < 0.7},
			CreatedAt: seededAt,
		})
	}
	return out
}

// Products builds the deterministic product catalog. Prices are cents.
func Products(rng *rand.Rand, n int) []workload.Product {
	out := make([]workload.Product, 0, n)
	for i := 1; i <= n; i++ {
		adj := adjectives[rng.Intn(len(adjectives))]
		noun := nouns[rng.Intn(len(nouns))]
		category := categories[rng.Intn(len(categories))]
		out = append(out, workload.Product{
			ID:         workload.ProductID(i),
			Title:      adj + " " + noun,
			PriceCents: 999 + rng.Int63n(99_999-999+1),
			Stock:      rng.Intn(1001),
			Category:   category,
			Description: fmt.Sprintf("High-quality %s %s with advanced features. Perfect for %s use. "+
				"Built with premium materials for long-lasting durability and peak performance.",
				strings.ToLower(adj), strings.ToLower(noun), category),
		})
	}
	return out
}

// Seed writes the catalog in pipelined batches spread across a worker pool.
// The first failing batch cancels the rest.
func Seed(ctx context.Context, st store.Store, opts Options) (Result, error) {
	opts.normalize()
	start := time.Now()
	rng := rand.New(rand.NewSource(RandomSeed))

	writes := make([]store.Write, 0, opts.Users+opts.Products)
	for _, u := range Users(rng, opts.Users) {
		writes = append(writes, store.Write{Key: workload.UserKey(u.ID), Fields: u.Fields()})
	}
	for _, p := range Products(rng, opts.Products) {
		writes = append(writes, store.Write{Key: workload.ProductKey(p.ID), Fields: p.Fields()})
	}

	opts.Logger.Info("seeding store",
		zap.Int("users", opts.Users),
		zap.Int("products", opts.Products),
		zap.Int("batch_size", opts.BatchSize),
	)

	pool := pond.New(opts.Workers, 0, pond.MinWorkers(opts.Workers))
	defer pool.StopAndWait()
	group, groupCtx := pool.GroupContext(ctx)

	var batches atomic.Int64
	for lo := 0; lo < len(writes); lo += opts.BatchSize {
		batch := writes[lo:min(lo+opts.BatchSize, len(writes))]
		group.Submit(func() error {
			if err := st.WriteBatch(groupCtx, batch); err != nil {
				return fmt.Errorf("seed: write batch of %d: %w", len(batch), err)
			}
			batches.Add(1)
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return Result{}, err
	}

	res := Result{
		Users:    opts.Users,
		Products: opts.Products,
		Batches:  int(batches.Load()),
		Duration: time.Since(start),
	}
	opts.Logger.Info("seed complete",
		zap.Int("batches", res.Batches),
		zap.Duration("took", res.Duration),
	)
	return res, nil
}
