// Package evo implements the generic evolutionary mechanics: parent
// selection and the single generation step that breeds, expresses and
// evaluates a full offspring set.
package evo

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"progenitor/internal/genome"
	"progenitor/internal/model"
)

// GenerationStats aggregates one bred generation.
type GenerationStats struct {
	Generation       int
	BestFitness      float64
	AvgFitness       float64
	MinFitness       float64
	Diversity        float64
	BestIndividualID string
}

// Breeder produces the next generation of a population. Breeding itself is
// sequential so seeded runs stay reproducible; fitness evaluation of the
// independent offspring fans out over Workers goroutines, which cannot
// change results because evaluators are pure.
type Breeder struct {
	Selector     Selector
	Evaluator    genome.Evaluator
	MutationRate float64
	Workers      int
}

// NextGeneration breeds exactly len(current) offspring for the given
// population: selection of floor(n/2) parents, then per child two uniformly
// random parents (with replacement), crossover, mutation, expression and
// evaluation. Every offspring records its two parent ids.
func (b *Breeder) NextGeneration(ctx context.Context, rng *rand.Rand, population model.Population, current []model.Individual, generation int) ([]model.Individual, GenerationStats, error) {
	if rng == nil {
		return nil, GenerationStats{}, fmt.Errorf("random source is required")
	}
	if len(current) == 0 {
		return nil, GenerationStats{}, fmt.Errorf("population %s has no individuals to breed from", population.ID)
	}

	selector := b.Selector
	if selector == nil {
		selector = TournamentSelector{}
	}
	evaluator := b.Evaluator
	if evaluator == nil {
		evaluator = genome.EvaluatorFor(population.Domain)
	}

	parentCount := len(current) / 2
	if parentCount < 1 {
		parentCount = 1
	}
	parents, err := selector.Select(rng, current, parentCount)
	if err != nil {
		return nil, GenerationStats{}, fmt.Errorf("select parents for population %s: %w", population.ID, err)
	}

	now := time.Now().UTC()
	offspring := make([]model.Individual, 0, len(current))
	for i := 0; i < len(current); i++ {
		parentA := parents[rng.Intn(len(parents))]
		parentB := parents[rng.Intn(len(parents))]

		child := genome.Mutate(rng, genome.Crossover(rng, parentA.Genotype, parentB.Genotype), b.MutationRate)
		offspring = append(offspring, model.Individual{
			ID:           uuid.NewString(),
			PopulationID: population.ID,
			Genotype:     child,
			Phenotype:    genome.ExpressPhenotype(child, population.Domain),
			Generation:   generation,
			ParentIDs:    []string{parentA.ID, parentB.ID},
			CreatedAt:    now,
		})
	}

	if err := b.evaluateOffspring(ctx, evaluator, offspring); err != nil {
		return nil, GenerationStats{}, err
	}

	return offspring, summarize(offspring, generation), nil
}

func (b *Breeder) evaluateOffspring(ctx context.Context, evaluator genome.Evaluator, offspring []model.Individual) error {
	type result struct {
		idx     int
		fitness float64
		err     error
	}

	workerCount := b.Workers
	if workerCount <= 0 {
		workerCount = 1
	}
	if workerCount > len(offspring) {
		workerCount = len(offspring)
	}

	jobs := make(chan int)
	results := make(chan result, len(offspring))

	var wg sync.WaitGroup
	wg.Add(workerCount)
	for w := 0; w < workerCount; w++ {
		go func() {
			defer wg.Done()
			for idx := range jobs {
				if err := ctx.Err(); err != nil {
					results <- result{idx: idx, err: err}
					continue
				}
				fitness, err := evaluator.Evaluate(offspring[idx].Phenotype)
				if err != nil {
					results <- result{idx: idx, err: fmt.Errorf("evaluate offspring %s: %w", offspring[idx].ID, err)}
					continue
				}
				results <- result{idx: idx, fitness: fitness}
			}
		}()
	}

	for i := range offspring {
		jobs <- i
	}
	close(jobs)

	wg.Wait()
	close(results)

	for res := range results {
		if res.err != nil {
			return res.err
		}
		offspring[res.idx].Fitness = res.fitness
	}
	return nil
}

func summarize(offspring []model.Individual, generation int) GenerationStats {
	stats := GenerationStats{Generation: generation}
	if len(offspring) == 0 {
		return stats
	}

	stats.BestFitness = offspring[0].Fitness
	stats.MinFitness = offspring[0].Fitness
	stats.BestIndividualID = offspring[0].ID
	total := 0.0
	for _, member := range offspring {
		total += member.Fitness
		if member.Fitness > stats.BestFitness {
			stats.BestFitness = member.Fitness
			stats.BestIndividualID = member.ID
		}
		if member.Fitness < stats.MinFitness {
			stats.MinFitness = member.Fitness
		}
	}
	stats.AvgFitness = total / float64(len(offspring))
	stats.Diversity = stats.BestFitness - stats.MinFitness
	return stats
}
