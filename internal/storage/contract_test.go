package storage

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"progenitor/internal/model"
)

// runStoreContract exercises the Store semantics shared by every backend.
func runStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	t.Helper()

	t.Run("PingAfterInit", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)
		if err := store.Ping(ctx); err != nil {
			t.Fatalf("ping: %v", err)
		}
	})

	t.Run("CreateAndGetPopulation", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)
		population, founders := fixturePopulation("pop-1", 3)
		if err := store.CreatePopulation(ctx, population, founders); err != nil {
			t.Fatalf("create: %v", err)
		}

		got, ok, err := store.GetPopulation(ctx, "pop-1")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if !ok {
			t.Fatal("expected population")
		}
		if got.Name != population.Name || got.Domain != population.Domain || got.Generation != 0 {
			t.Fatalf("unexpected population: %+v", got)
		}
		if got.Config["description"] != "fixture" {
			t.Fatalf("config not persisted: %+v", got.Config)
		}
	})

	t.Run("GetPopulationMissing", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)
		_, ok, err := store.GetPopulation(ctx, "missing")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if ok {
			t.Fatal("expected missing population")
		}
	})

	t.Run("ListAnnotatesSize", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)
		first, founders := fixturePopulation("pop-1", 4)
		if err := store.CreatePopulation(ctx, first, founders); err != nil {
			t.Fatalf("create: %v", err)
		}
		second, founders2 := fixturePopulation("pop-2", 2)
		second.CreatedAt = second.CreatedAt.Add(time.Second)
		if err := store.CreatePopulation(ctx, second, founders2); err != nil {
			t.Fatalf("create: %v", err)
		}

		listed, err := store.ListPopulations(ctx)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(listed) != 2 {
			t.Fatalf("expected 2 populations, got %d", len(listed))
		}
		if listed[0].ID != "pop-1" || listed[0].Size != 4 {
			t.Fatalf("unexpected first entry: %+v", listed[0])
		}
		if listed[1].ID != "pop-2" || listed[1].Size != 2 {
			t.Fatalf("unexpected second entry: %+v", listed[1])
		}
	})

	t.Run("IndividualsOrderedByFitnessDesc", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)
		population, founders := fixturePopulation("pop-1", 5)
		if err := store.CreatePopulation(ctx, population, founders); err != nil {
			t.Fatalf("create: %v", err)
		}

		members, err := store.GetIndividuals(ctx, "pop-1")
		if err != nil {
			t.Fatalf("get individuals: %v", err)
		}
		if len(members) != 5 {
			t.Fatalf("expected 5 individuals, got %d", len(members))
		}
		for i := 1; i < len(members); i++ {
			if members[i].Fitness > members[i-1].Fitness {
				t.Fatalf("individuals not ordered by fitness: %f after %f", members[i].Fitness, members[i-1].Fitness)
			}
		}

		best, ok, err := store.GetBestIndividual(ctx, "pop-1")
		if err != nil {
			t.Fatalf("get best: %v", err)
		}
		if !ok {
			t.Fatal("expected best individual")
		}
		if best.ID != members[0].ID {
			t.Fatalf("best mismatch: %s != %s", best.ID, members[0].ID)
		}
		if len(best.Genotype.Traits) == 0 || !best.Phenotype.Expressed {
			t.Fatalf("individual payload truncated: %+v", best)
		}
	})

	t.Run("BestIndividualEmptyPopulation", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)
		population, _ := fixturePopulation("pop-1", 0)
		if err := store.CreatePopulation(ctx, population, nil); err != nil {
			t.Fatalf("create: %v", err)
		}
		_, ok, err := store.GetBestIndividual(ctx, "pop-1")
		if err != nil {
			t.Fatalf("get best: %v", err)
		}
		if ok {
			t.Fatal("expected no best individual")
		}
	})

	t.Run("ReplaceGenerationSwapsAtomically", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)
		population, founders := fixturePopulation("pop-1", 3)
		if err := store.CreatePopulation(ctx, population, founders); err != nil {
			t.Fatalf("create: %v", err)
		}

		offspring := fixtureGeneration("pop-1", 1, 3)
		record := fixtureRecord("pop-1", 1, offspring)
		if err := store.ReplaceGeneration(ctx, "pop-1", 0, offspring, record); err != nil {
			t.Fatalf("replace: %v", err)
		}

		got, _, err := store.GetPopulation(ctx, "pop-1")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got.Generation != 1 {
			t.Fatalf("generation not advanced: %d", got.Generation)
		}
		if got.BestFitness != record.BestFitness || got.AvgFitness != record.AvgFitness {
			t.Fatalf("cached stats not updated: %+v", got)
		}

		members, err := store.GetIndividuals(ctx, "pop-1")
		if err != nil {
			t.Fatalf("get individuals: %v", err)
		}
		if len(members) != 3 {
			t.Fatalf("expected full replacement, got %d members", len(members))
		}
		for _, member := range members {
			if member.Generation != 1 {
				t.Fatalf("stale individual survived the swap: %+v", member)
			}
		}

		history, err := store.GetHistory(ctx, "pop-1", 0)
		if err != nil {
			t.Fatalf("history: %v", err)
		}
		if len(history) != 1 || history[0].Generation != 1 {
			t.Fatalf("unexpected history: %+v", history)
		}
	})

	t.Run("ReplaceGenerationConflict", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)
		population, founders := fixturePopulation("pop-1", 3)
		if err := store.CreatePopulation(ctx, population, founders); err != nil {
			t.Fatalf("create: %v", err)
		}

		offspring := fixtureGeneration("pop-1", 1, 3)
		if err := store.ReplaceGeneration(ctx, "pop-1", 0, offspring, fixtureRecord("pop-1", 1, offspring)); err != nil {
			t.Fatalf("replace: %v", err)
		}

		// Second swap from the same base generation must lose.
		stale := fixtureGeneration("pop-1", 1, 3)
		err := store.ReplaceGeneration(ctx, "pop-1", 0, stale, fixtureRecord("pop-1", 1, stale))
		if !errors.Is(err, ErrConflict) {
			t.Fatalf("expected ErrConflict, got %v", err)
		}

		history, err := store.GetHistory(ctx, "pop-1", 0)
		if err != nil {
			t.Fatalf("history: %v", err)
		}
		if len(history) != 1 {
			t.Fatalf("conflicting swap must not append history: %+v", history)
		}
	})

	t.Run("ReplaceGenerationMissingPopulation", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)
		offspring := fixtureGeneration("ghost", 1, 2)
		err := store.ReplaceGeneration(ctx, "ghost", 0, offspring, fixtureRecord("ghost", 1, offspring))
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("HistoryOrderAndLimit", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)
		population, founders := fixturePopulation("pop-1", 2)
		if err := store.CreatePopulation(ctx, population, founders); err != nil {
			t.Fatalf("create: %v", err)
		}

		for generation := 1; generation <= 5; generation++ {
			offspring := fixtureGeneration("pop-1", generation, 2)
			if err := store.ReplaceGeneration(ctx, "pop-1", generation-1, offspring, fixtureRecord("pop-1", generation, offspring)); err != nil {
				t.Fatalf("replace generation %d: %v", generation, err)
			}
		}

		history, err := store.GetHistory(ctx, "pop-1", 3)
		if err != nil {
			t.Fatalf("history: %v", err)
		}
		if len(history) != 3 {
			t.Fatalf("limit not applied: %d records", len(history))
		}
		for i, record := range history {
			if record.Generation != i+1 {
				t.Fatalf("history out of order: %+v", history)
			}
		}
	})

	t.Run("DeleteCascades", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)
		population, founders := fixturePopulation("pop-1", 3)
		if err := store.CreatePopulation(ctx, population, founders); err != nil {
			t.Fatalf("create: %v", err)
		}
		offspring := fixtureGeneration("pop-1", 1, 3)
		if err := store.ReplaceGeneration(ctx, "pop-1", 0, offspring, fixtureRecord("pop-1", 1, offspring)); err != nil {
			t.Fatalf("replace: %v", err)
		}

		found, err := store.DeletePopulation(ctx, "pop-1")
		if err != nil {
			t.Fatalf("delete: %v", err)
		}
		if !found {
			t.Fatal("expected delete to find population")
		}

		stats, err := store.Stats(ctx)
		if err != nil {
			t.Fatalf("stats: %v", err)
		}
		if stats.Populations != 0 || stats.Individuals != 0 || stats.GenerationRecords != 0 {
			t.Fatalf("cascade incomplete: %+v", stats)
		}

		found, err = store.DeletePopulation(ctx, "pop-1")
		if err != nil {
			t.Fatalf("second delete: %v", err)
		}
		if found {
			t.Fatal("expected second delete to report missing")
		}
	})

	t.Run("StatsCounts", func(t *testing.T) {
		ctx := context.Background()
		store := newStore(t)
		population, founders := fixturePopulation("pop-1", 4)
		if err := store.CreatePopulation(ctx, population, founders); err != nil {
			t.Fatalf("create: %v", err)
		}
		offspring := fixtureGeneration("pop-1", 1, 4)
		if err := store.ReplaceGeneration(ctx, "pop-1", 0, offspring, fixtureRecord("pop-1", 1, offspring)); err != nil {
			t.Fatalf("replace: %v", err)
		}

		stats, err := store.Stats(ctx)
		if err != nil {
			t.Fatalf("stats: %v", err)
		}
		if stats.Populations != 1 || stats.Individuals != 4 || stats.GenerationRecords != 1 {
			t.Fatalf("unexpected stats: %+v", stats)
		}
	})
}

func fixturePopulation(id string, founderCount int) (model.Population, []model.Individual) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	founders := fixtureGeneration(id, 0, founderCount)

	best, total := 0.0, 0.0
	for _, founder := range founders {
		if founder.Fitness > best {
			best = founder.Fitness
		}
		total += founder.Fitness
	}
	avg := 0.0
	if founderCount > 0 {
		avg = total / float64(founderCount)
	}

	population := model.Population{
		VersionedRecord: Stamp(),
		ID:              id,
		Name:            "fixture " + id,
		Domain:          model.DomainStrategy,
		Generation:      0,
		BestFitness:     best,
		AvgFitness:      avg,
		Config:          map[string]any{"description": "fixture"},
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	return population, founders
}

func fixtureGeneration(populationID string, generation, count int) []model.Individual {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC).Add(time.Duration(generation) * time.Minute)
	out := make([]model.Individual, 0, count)
	for i := 0; i < count; i++ {
		fitness := float64(i+1) / float64(count+1)
		genotype := model.Genotype{Traits: map[string]float64{"aggression": fitness, "exploration": 0.5}}
		var parents []string
		if generation > 0 {
			parents = []string{"parent-a", "parent-b"}
		}
		out = append(out, model.Individual{
			VersionedRecord: Stamp(),
			ID:              fmt.Sprintf("%s-g%d-i%d", populationID, generation, i),
			PopulationID:    populationID,
			Genotype:        genotype,
			Phenotype: model.Phenotype{
				Domain:    model.DomainStrategy,
				Expressed: true,
				Traits:    genotype.Clone().Traits,
			},
			Fitness:    fitness,
			Generation: generation,
			ParentIDs:  parents,
			CreatedAt:  now,
		})
	}
	return out
}

func fixtureRecord(populationID string, generation int, offspring []model.Individual) model.GenerationRecord {
	record := model.GenerationRecord{
		PopulationID: populationID,
		Generation:   generation,
		RecordedAt:   time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC).Add(time.Duration(generation) * time.Minute),
	}
	if len(offspring) == 0 {
		return record
	}
	best, min, total := offspring[0].Fitness, offspring[0].Fitness, 0.0
	bestID := offspring[0].ID
	for _, member := range offspring {
		if member.Fitness > best {
			best = member.Fitness
			bestID = member.ID
		}
		if member.Fitness < min {
			min = member.Fitness
		}
		total += member.Fitness
	}
	record.BestFitness = best
	record.MinFitness = min
	record.AvgFitness = total / float64(len(offspring))
	record.Diversity = best - min
	record.BestIndividualID = bestID
	return record
}
