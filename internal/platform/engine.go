// Package platform hosts the evolution coordinator: the component that owns
// a store, serializes writes per population and drives the per-generation
// select/breed/evaluate/swap loop.
package platform

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"progenitor/internal/evo"
	"progenitor/internal/genome"
	"progenitor/internal/model"
	"progenitor/internal/storage"
)

var (
	// ErrInvalidDomain reports a population creation request naming a domain
	// without a registered trait schema.
	ErrInvalidDomain = errors.New("unknown domain")
	// ErrInvalidArgument reports a structurally invalid request.
	ErrInvalidArgument = errors.New("invalid argument")
)

const (
	// DefaultFoundingSize is the individual count of a freshly created
	// population when the caller does not choose one.
	DefaultFoundingSize = 10
	// MaxFoundingSize bounds creation so a single request cannot seed an
	// arbitrarily large individual set.
	MaxFoundingSize = 1000
	// MaxGenerationsPerCall caps one synchronous evolve call. Requests above
	// the cap are clamped, not rejected.
	MaxGenerationsPerCall = 100
)

// Config assembles an Engine. Store is required; everything else has a
// working default. A non-zero Seed makes runs reproducible.
type Config struct {
	Store          storage.Store
	Seed           int64
	Workers        int
	FoundingSize   int
	MutationRate   float64
	TournamentSize int
}

// Engine coordinates evolution over a shared store. All writes to one
// population are serialized through a per-population lock, so two evolve
// calls against the same id run one after the other in-process; the store's
// generation compare-and-swap covers racing processes.
type Engine struct {
	store        storage.Store
	breeder      *evo.Breeder
	foundingSize int

	mu      sync.Mutex
	seeds   *rand.Rand
	locks   map[string]*sync.Mutex
	started bool
}

func NewEngine(cfg Config) *Engine {
	foundingSize := cfg.FoundingSize
	if foundingSize <= 0 {
		foundingSize = DefaultFoundingSize
	}
	mutationRate := cfg.MutationRate
	if mutationRate <= 0 {
		mutationRate = genome.DefaultMutationRate
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Engine{
		store:        cfg.Store,
		foundingSize: foundingSize,
		breeder: &evo.Breeder{
			Selector:     evo.TournamentSelector{TournamentSize: cfg.TournamentSize},
			MutationRate: mutationRate,
			Workers:      cfg.Workers,
		},
		seeds: rand.New(rand.NewSource(seed)),
		locks: make(map[string]*sync.Mutex),
	}
}

// Init prepares the underlying store. Safe to call more than once.
func (e *Engine) Init(ctx context.Context) error {
	if e.store == nil {
		return fmt.Errorf("store is required")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return nil
	}
	if err := e.store.Init(ctx); err != nil {
		return err
	}
	e.started = true
	return nil
}

// CreateParams describes a new population. Size 0 means the engine's
// founding size; Config rides along as an opaque blob.
type CreateParams struct {
	Name   string
	Domain model.Domain
	Size   int
	Config map[string]any
}

// CreatePopulation seeds a new population with randomly generated founders
// at generation 0, evaluates them and persists the whole set in one
// transaction.
func (e *Engine) CreatePopulation(ctx context.Context, params CreateParams) (model.Population, error) {
	if params.Name == "" {
		return model.Population{}, fmt.Errorf("%w: population name is required", ErrInvalidArgument)
	}
	if !model.IsKnownDomain(params.Domain) {
		return model.Population{}, fmt.Errorf("%w: %q (known: %v)", ErrInvalidDomain, params.Domain, model.KnownDomains())
	}
	size := params.Size
	if size == 0 {
		size = e.foundingSize
	}
	if size < 2 || size > MaxFoundingSize {
		return model.Population{}, fmt.Errorf("%w: founding size %d outside [2, %d]", ErrInvalidArgument, size, MaxFoundingSize)
	}

	rng := e.newRand()
	evaluator := genome.EvaluatorFor(params.Domain)
	now := time.Now().UTC()

	founders := make([]model.Individual, 0, size)
	best, total := 0.0, 0.0
	populationID := uuid.NewString()
	for i := 0; i < size; i++ {
		genotype := genome.RandomGenotype(rng, params.Domain)
		phenotype := genome.ExpressPhenotype(genotype, params.Domain)
		fitness, err := evaluator.Evaluate(phenotype)
		if err != nil {
			return model.Population{}, fmt.Errorf("evaluate founder for domain %s: %w", params.Domain, err)
		}
		if i == 0 || fitness > best {
			best = fitness
		}
		total += fitness
		founders = append(founders, model.Individual{
			VersionedRecord: storage.Stamp(),
			ID:              uuid.NewString(),
			PopulationID:    populationID,
			Genotype:        genotype,
			Phenotype:       phenotype,
			Fitness:         fitness,
			Generation:      0,
			ParentIDs:       []string{},
			CreatedAt:       now,
		})
	}

	population := model.Population{
		VersionedRecord: storage.Stamp(),
		ID:              populationID,
		Name:            params.Name,
		Domain:          params.Domain,
		Generation:      0,
		BestFitness:     best,
		AvgFitness:      total / float64(size),
		Config:          params.Config,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := e.store.CreatePopulation(ctx, population, founders); err != nil {
		return model.Population{}, fmt.Errorf("create population %s: %w", params.Name, err)
	}
	return population, nil
}

// EvolveResult reports how far an evolve call got. On error the progression
// covers the generations that committed before the failure.
type EvolveResult struct {
	GenerationsEvolved int
	CurrentGeneration  int
	Progression        []evo.GenerationStats
	FinalBestFitness   float64
}

// Evolve advances the population by the requested number of generations,
// clamped to [1, MaxGenerationsPerCall]. Each generation commits on its own;
// a failure aborts the remaining loop but never rolls back committed
// generations. Cancellation is checked between generations.
func (e *Engine) Evolve(ctx context.Context, populationID string, generations int) (EvolveResult, error) {
	if populationID == "" {
		return EvolveResult{}, fmt.Errorf("%w: population id is required", ErrInvalidArgument)
	}
	if generations < 1 {
		generations = 1
	}
	if generations > MaxGenerationsPerCall {
		generations = MaxGenerationsPerCall
	}

	lock := e.populationLock(populationID)
	lock.Lock()
	defer lock.Unlock()

	population, ok, err := e.store.GetPopulation(ctx, populationID)
	if err != nil {
		return EvolveResult{}, fmt.Errorf("load population %s: %w", populationID, err)
	}
	if !ok {
		return EvolveResult{}, fmt.Errorf("population %s: %w", populationID, storage.ErrNotFound)
	}
	current, err := e.store.GetIndividuals(ctx, populationID)
	if err != nil {
		return EvolveResult{}, fmt.Errorf("load individuals of %s: %w", populationID, err)
	}

	rng := e.newRand()
	result := EvolveResult{CurrentGeneration: population.Generation}
	for i := 0; i < generations; i++ {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		nextGeneration := population.Generation + 1
		offspring, stats, err := e.breeder.NextGeneration(ctx, rng, population, current, nextGeneration)
		if err != nil {
			return result, err
		}
		for j := range offspring {
			offspring[j].VersionedRecord = storage.Stamp()
		}

		record := model.GenerationRecord{
			PopulationID:     populationID,
			Generation:       nextGeneration,
			BestFitness:      stats.BestFitness,
			AvgFitness:       stats.AvgFitness,
			MinFitness:       stats.MinFitness,
			Diversity:        stats.Diversity,
			BestIndividualID: stats.BestIndividualID,
			RecordedAt:       time.Now().UTC(),
		}
		if err := e.store.ReplaceGeneration(ctx, populationID, population.Generation, offspring, record); err != nil {
			return result, fmt.Errorf("commit generation %d of %s: %w", nextGeneration, populationID, err)
		}

		population.Generation = nextGeneration
		population.BestFitness = stats.BestFitness
		population.AvgFitness = stats.AvgFitness
		current = offspring

		result.GenerationsEvolved++
		result.CurrentGeneration = nextGeneration
		result.Progression = append(result.Progression, stats)
		result.FinalBestFitness = stats.BestFitness
	}
	return result, nil
}

func (e *Engine) GetPopulation(ctx context.Context, id string) (model.Population, error) {
	population, ok, err := e.store.GetPopulation(ctx, id)
	if err != nil {
		return model.Population{}, err
	}
	if !ok {
		return model.Population{}, fmt.Errorf("population %s: %w", id, storage.ErrNotFound)
	}
	return population, nil
}

func (e *Engine) ListPopulations(ctx context.Context) ([]model.PopulationSummary, error) {
	return e.store.ListPopulations(ctx)
}

func (e *Engine) GetIndividuals(ctx context.Context, populationID string) ([]model.Individual, error) {
	if _, err := e.GetPopulation(ctx, populationID); err != nil {
		return nil, err
	}
	return e.store.GetIndividuals(ctx, populationID)
}

// GetBestIndividual returns the population's current fittest member. The
// bool is false for a population that exists but holds no individuals.
func (e *Engine) GetBestIndividual(ctx context.Context, populationID string) (model.Individual, bool, error) {
	if _, err := e.GetPopulation(ctx, populationID); err != nil {
		return model.Individual{}, false, err
	}
	return e.store.GetBestIndividual(ctx, populationID)
}

func (e *Engine) GetHistory(ctx context.Context, populationID string, limit int) ([]model.GenerationRecord, error) {
	if _, err := e.GetPopulation(ctx, populationID); err != nil {
		return nil, err
	}
	return e.store.GetHistory(ctx, populationID, limit)
}

// DeletePopulation removes the population with its individuals and history.
func (e *Engine) DeletePopulation(ctx context.Context, id string) error {
	lock := e.populationLock(id)
	lock.Lock()
	defer lock.Unlock()

	existed, err := e.store.DeletePopulation(ctx, id)
	if err != nil {
		return err
	}
	if !existed {
		return fmt.Errorf("population %s: %w", id, storage.ErrNotFound)
	}
	e.mu.Lock()
	delete(e.locks, id)
	e.mu.Unlock()
	return nil
}

// EngineStats is the health surface: entity counts plus store connectivity.
type EngineStats struct {
	model.StoreStats
	StoreConnected bool `json:"store_connected"`
}

func (e *Engine) Stats(ctx context.Context) (EngineStats, error) {
	counts, err := e.store.Stats(ctx)
	if err != nil {
		return EngineStats{}, err
	}
	stats := EngineStats{StoreStats: counts}
	if err := e.store.Ping(ctx); err == nil {
		stats.StoreConnected = true
	}
	return stats, nil
}

// newRand derives an independent random stream per call so concurrent
// evolves against different populations never contend on one source.
func (e *Engine) newRand() *rand.Rand {
	e.mu.Lock()
	defer e.mu.Unlock()
	return rand.New(rand.NewSource(e.seeds.Int63()))
}

func (e *Engine) populationLock(id string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	lock, ok := e.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		e.locks[id] = lock
	}
	return lock
}
