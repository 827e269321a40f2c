package seed_test

import (
	"context"
	"errors"
	"math/rand"
	"reflect"
	"testing"

	"github.com/torosent/kvscope/internal/seed"
	"github.com/torosent/kvscope/internal/store"
	"github.com/torosent/kvscope/internal/workload"
)

func TestSeedWritesCatalog(t *testing.T) {
	mem := store.NewMemory(store.MemoryOptions{})
	defer mem.Close()

	res, err := seed.Seed(context.Background(), mem, seed.Options{Users: 1200, Products: 50, BatchSize: 500, Workers: 3})
	if err != nil {
		t.Fatalf("Seed: %v", err)
	}
	if res.Batches != 3 {
		t.Fatalf("expected 3 batches for 1250 records, got %d", res.Batches)
	}
	if mem.Len() != 1250 {
		t.Fatalf("expected 1250 keys, got %d", mem.Len())
	}

	ctx := context.Background()
	fields, err := mem.HGetAll(ctx, workload.UserKey(workload.UserID(1200)))
	if err != nil {
		t.Fatalf("HGetAll: %v", err)
	}
	if _, err := workload.DecodeUser("user", fields); err != nil {
		t.Fatalf("seeded user does not decode: %v", err)
	}
	fields, _ = mem.HGetAll(ctx, workload.ProductKey(workload.ProductID(50)))
	p, err := workload.DecodeProduct("product", fields)
	if err != nil {
		t.Fatalf("seeded product does not decode: %v", err)
	}
	if p.PriceCents < 999 || p.PriceCents > 99_999 || p.Stock < 0 || p.Stock > 1000 {
		t.Fatalf("product out of range: %+v", p)
	}
}

func TestCatalogIsDeterministic(t *testing.T) {
	a := seed.Users(rand.New(rand.NewSource(seed.RandomSeed)), 20)
	b := seed.Users(rand.New(rand.NewSource(seed.RandomSeed)), 20)
	if !reflect.DeepEqual(a, b) {
		t.Fatal("expected identical user catalogs for the same seed")
	}
	if a[0].ID != "usr_00000001" || a[19].ID != "usr_00000020" {
		t.Fatalf("unexpected ids %s..%s", a[0].ID, a[19].ID)
	}
}

func TestSeedStopsOnStoreFailure(t *testing.T) {
	boom := errors.New("connection refused")
	mem := store.NewMemory(store.MemoryOptions{Fail: func(string) error { return boom }})
	defer mem.Close()

	_, err := seed.Seed(context.Background(), mem, seed.Options{Users: 10, Products: 10})
	if !errors.Is(err, store.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}
