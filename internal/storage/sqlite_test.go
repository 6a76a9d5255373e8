package storage

import (
	"context"
	"path/filepath"
	"testing"
)

func newTestSQLiteStore(t *testing.T) Store {
	t.Helper()

	store := NewSQLiteStore(filepath.Join(t.TempDir(), "progenitor.db"))
	if err := store.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

func TestSQLiteStoreContract(t *testing.T) {
	runStoreContract(t, newTestSQLiteStore)
}

func TestSQLiteStoreRequiresPath(t *testing.T) {
	store := NewSQLiteStore("")
	if err := store.Init(context.Background()); err == nil {
		t.Fatal("expected init to fail without a path")
	}
}

func TestSQLiteStoreInitIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewSQLiteStore(filepath.Join(t.TempDir(), "progenitor.db"))
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	defer store.Close()

	if err := store.Init(ctx); err != nil {
		t.Fatalf("second init: %v", err)
	}
	if err := store.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}
}

func TestSQLiteStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "progenitor.db")

	store := NewSQLiteStore(path)
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	population, founders := fixturePopulation("pop-1", 3)
	if err := store.CreatePopulation(ctx, population, founders); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened := NewSQLiteStore(path)
	if err := reopened.Init(ctx); err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	got, ok, err := reopened.GetPopulation(ctx, "pop-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !ok || got.Name != population.Name {
		t.Fatalf("population not durable: %+v", got)
	}
	members, err := reopened.GetIndividuals(ctx, "pop-1")
	if err != nil {
		t.Fatalf("get individuals: %v", err)
	}
	if len(members) != 3 {
		t.Fatalf("individuals not durable: %d", len(members))
	}
}
