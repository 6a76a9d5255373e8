package storage

import (
	"context"
	"sort"
	"sync"

	"progenitor/internal/model"
)

// MemoryStore keeps everything in process. A single mutex over all three
// entity kinds makes every operation trivially atomic.
type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	populations map[string]model.Population
	individuals map[string][]model.Individual
	history     map[string][]model.GenerationRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.populations = make(map[string]model.Population)
	s.individuals = make(map[string][]model.Individual)
	s.history = make(map[string][]model.GenerationRecord)
	return nil
}

func (s *MemoryStore) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return errNotInitialized
	}
	return nil
}

func (s *MemoryStore) CreatePopulation(_ context.Context, population model.Population, founders []model.Individual) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.populations[population.ID] = clonePopulation(population)
	s.individuals[population.ID] = cloneIndividuals(founders)
	s.history[population.ID] = nil
	return nil
}

func (s *MemoryStore) GetPopulation(_ context.Context, id string) (model.Population, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	population, ok := s.populations[id]
	if !ok {
		return model.Population{}, false, nil
	}
	return clonePopulation(population), true, nil
}

func (s *MemoryStore) ListPopulations(_ context.Context) ([]model.PopulationSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.PopulationSummary, 0, len(s.populations))
	for id, population := range s.populations {
		out = append(out, model.PopulationSummary{
			Population: clonePopulation(population),
			Size:       len(s.individuals[id]),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) GetIndividuals(_ context.Context, populationID string) ([]model.Individual, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := cloneIndividuals(s.individuals[populationID])
	sortByFitnessDesc(out)
	return out, nil
}

func (s *MemoryStore) GetBestIndividual(_ context.Context, populationID string) (model.Individual, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	members := s.individuals[populationID]
	if len(members) == 0 {
		return model.Individual{}, false, nil
	}
	best := members[0]
	for _, candidate := range members[1:] {
		if candidate.Fitness > best.Fitness {
			best = candidate
		}
	}
	return cloneIndividual(best), true, nil
}

func (s *MemoryStore) ReplaceGeneration(_ context.Context, populationID string, prevGeneration int, offspring []model.Individual, record model.GenerationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	population, ok := s.populations[populationID]
	if !ok {
		return ErrNotFound
	}
	if population.Generation != prevGeneration {
		return ErrConflict
	}

	population.Generation = record.Generation
	population.BestFitness = record.BestFitness
	population.AvgFitness = record.AvgFitness
	population.UpdatedAt = record.RecordedAt
	s.populations[populationID] = population
	s.individuals[populationID] = cloneIndividuals(offspring)
	s.history[populationID] = append(s.history[populationID], record)
	return nil
}

func (s *MemoryStore) GetHistory(_ context.Context, populationID string, limit int) ([]model.GenerationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	records := s.history[populationID]
	if len(records) > limit {
		records = records[:limit]
	}
	out := make([]model.GenerationRecord, len(records))
	copy(out, records)
	return out, nil
}

func (s *MemoryStore) DeletePopulation(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.populations[id]; !ok {
		return false, nil
	}
	delete(s.populations, id)
	delete(s.individuals, id)
	delete(s.history, id)
	return true, nil
}

func (s *MemoryStore) Stats(_ context.Context) (model.StoreStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := model.StoreStats{Populations: len(s.populations)}
	for _, members := range s.individuals {
		stats.Individuals += len(members)
	}
	for _, records := range s.history {
		stats.GenerationRecords += len(records)
	}
	return stats, nil
}

func sortByFitnessDesc(individuals []model.Individual) {
	sort.Slice(individuals, func(i, j int) bool {
		if individuals[i].Fitness == individuals[j].Fitness {
			return individuals[i].ID < individuals[j].ID
		}
		return individuals[i].Fitness > individuals[j].Fitness
	})
}

func clonePopulation(p model.Population) model.Population {
	out := p
	if p.Config != nil {
		out.Config = make(map[string]any, len(p.Config))
		for k, v := range p.Config {
			out.Config[k] = v
		}
	}
	return out
}

func cloneIndividual(individual model.Individual) model.Individual {
	out := individual
	out.Genotype = individual.Genotype.Clone()
	phenotype := model.Genotype{Traits: individual.Phenotype.Traits, Labels: individual.Phenotype.Labels}.Clone()
	out.Phenotype = model.Phenotype{
		Domain:    individual.Phenotype.Domain,
		Expressed: individual.Phenotype.Expressed,
		Traits:    phenotype.Traits,
		Labels:    phenotype.Labels,
	}
	out.ParentIDs = append([]string(nil), individual.ParentIDs...)
	return out
}

func cloneIndividuals(individuals []model.Individual) []model.Individual {
	out := make([]model.Individual, 0, len(individuals))
	for _, individual := range individuals {
		out = append(out, cloneIndividual(individual))
	}
	return out
}
