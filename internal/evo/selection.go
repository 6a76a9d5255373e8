package evo

import (
	"fmt"
	"math/rand"

	"progenitor/internal/model"
)

// Selector chooses breeding parents from a population's current individuals.
type Selector interface {
	Name() string
	Select(rng *rand.Rand, individuals []model.Individual, count int) ([]model.Individual, error)
}

// TournamentSelector draws a small sample with replacement and keeps its
// fittest member, once per requested parent. Fitness-biased without needing
// a full sort; duplicate picks are fine.
type TournamentSelector struct {
	TournamentSize int
}

func (TournamentSelector) Name() string {
	return "tournament"
}

func (s TournamentSelector) Select(rng *rand.Rand, individuals []model.Individual, count int) ([]model.Individual, error) {
	if rng == nil {
		return nil, fmt.Errorf("random source is required")
	}
	if len(individuals) == 0 {
		return nil, fmt.Errorf("no individuals to select from")
	}
	if count <= 0 {
		return nil, fmt.Errorf("invalid selection count: %d", count)
	}

	tournamentSize := s.TournamentSize
	if tournamentSize <= 0 {
		tournamentSize = 3
	}

	parents := make([]model.Individual, 0, count)
	for i := 0; i < count; i++ {
		best := individuals[rng.Intn(len(individuals))]
		for round := 1; round < tournamentSize; round++ {
			candidate := individuals[rng.Intn(len(individuals))]
			if candidate.Fitness > best.Fitness {
				best = candidate
			}
		}
		parents = append(parents, best)
	}
	return parents, nil
}
