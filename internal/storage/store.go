package storage

import (
	"context"
	"errors"

	"progenitor/internal/model"
)

var (
	// ErrNotFound reports an unknown population id.
	ErrNotFound = errors.New("population not found")
	// ErrConflict reports a lost generation swap: the population's stored
	// generation number no longer matches the generation the caller evolved
	// from.
	ErrConflict = errors.New("generation conflict")
)

// DefaultHistoryLimit caps GetHistory when the caller passes no limit.
const DefaultHistoryLimit = 50

var errNotInitialized = errors.New("store is not initialized")

// Store defines transactional persistence for populations, their individuals
// and the per-generation history ledger. The three entity kinds live and die
// as a unit: deleting a population cascades to the other two.
type Store interface {
	Init(ctx context.Context) error
	Ping(ctx context.Context) error

	// CreatePopulation persists the population row together with its
	// founding individual set in a single transaction.
	CreatePopulation(ctx context.Context, population model.Population, founders []model.Individual) error
	GetPopulation(ctx context.Context, id string) (model.Population, bool, error)
	ListPopulations(ctx context.Context) ([]model.PopulationSummary, error)

	// GetIndividuals returns the population's current individual set ordered
	// by fitness descending.
	GetIndividuals(ctx context.Context, populationID string) ([]model.Individual, error)
	GetBestIndividual(ctx context.Context, populationID string) (model.Individual, bool, error)

	// ReplaceGeneration atomically swaps the population's individual set for
	// the offspring, advances the cached generation number and fitness
	// aggregates, and appends the generation record. prevGeneration is a
	// compare-and-swap guard: when the stored generation number differs the
	// swap fails with ErrConflict and nothing is applied.
	ReplaceGeneration(ctx context.Context, populationID string, prevGeneration int, offspring []model.Individual, record model.GenerationRecord) error

	// GetHistory returns generation records ascending by generation number,
	// capped at limit (DefaultHistoryLimit when limit <= 0).
	GetHistory(ctx context.Context, populationID string, limit int) ([]model.GenerationRecord, error)

	// DeletePopulation removes the population, its individuals and its
	// history as a unit. The bool reports whether the population existed.
	DeletePopulation(ctx context.Context, id string) (bool, error)

	Stats(ctx context.Context) (model.StoreStats, error)
}
