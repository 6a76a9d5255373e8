// Command progenitorctl drives the evolution engine from the shell against
// a local store.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"sort"

	"github.com/dustin/go-humanize"

	"progenitor/internal/storage"
	"progenitor/pkg/progenitor"
)

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "init":
		return runInit(ctx, args[1:])
	case "create":
		return runCreate(ctx, args[1:])
	case "list":
		return runList(ctx, args[1:])
	case "evolve":
		return runEvolve(ctx, args[1:])
	case "best":
		return runBest(ctx, args[1:])
	case "individuals":
		return runIndividuals(ctx, args[1:])
	case "history":
		return runHistory(ctx, args[1:])
	case "stats":
		return runStats(ctx, args[1:])
	case "delete":
		return runDelete(ctx, args[1:])
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: progenitorctl <init|create|list|evolve|best|individuals|history|stats|delete> [flags]", msg)
}

func storeFlags(fs *flag.FlagSet) (storeKind, dbPath *string, seed *int64, workers *int) {
	storeKind = fs.String("store", storage.DefaultStoreKind(), "store backend: memory|sqlite")
	dbPath = fs.String("db-path", "progenitor.db", "sqlite database path")
	seed = fs.Int64("seed", 0, "rng seed, 0 means time-based")
	workers = fs.Int("workers", 0, "fitness evaluation workers")
	return
}

func openClient(ctx context.Context, storeKind, dbPath string, seed int64, workers int) (*progenitor.Client, func(), error) {
	client, err := progenitor.New(progenitor.Options{
		StoreKind: storeKind,
		DBPath:    dbPath,
		Seed:      seed,
		Workers:   workers,
	})
	if err != nil {
		return nil, nil, err
	}
	closer := func() {
		_ = client.Close()
	}
	if err := client.Init(ctx); err != nil {
		closer()
		return nil, nil, err
	}
	return client, closer, nil
}

func runInit(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	storeKind, dbPath, seed, workers := storeFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	_, done, err := openClient(ctx, *storeKind, *dbPath, *seed, *workers)
	if err != nil {
		return err
	}
	defer done()

	fmt.Printf("initialized store=%s\n", *storeKind)
	return nil
}

func runCreate(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("create", flag.ContinueOnError)
	name := fs.String("name", "", "population name")
	domain := fs.String("domain", "strategy", "population domain: strategy|parameters|code")
	description := fs.String("desc", "", "optional description")
	size := fs.Int("size", 0, "founding size (0 uses the engine default)")
	storeKind, dbPath, seed, workers := storeFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *name == "" {
		return errors.New("create requires --name")
	}

	client, done, err := openClient(ctx, *storeKind, *dbPath, *seed, *workers)
	if err != nil {
		return err
	}
	defer done()

	summary, err := client.CreatePopulation(ctx, progenitor.CreateRequest{
		Name:        *name,
		Domain:      *domain,
		Description: *description,
		Size:        *size,
	})
	if err != nil {
		return err
	}
	fmt.Printf("population_id=%s\n", summary.PopulationID)
	fmt.Println(summary.Message)
	return nil
}

func runList(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "emit populations as JSON")
	storeKind, dbPath, seed, workers := storeFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, done, err := openClient(ctx, *storeKind, *dbPath, *seed, *workers)
	if err != nil {
		return err
	}
	defer done()

	populations, err := client.ListPopulations(ctx)
	if err != nil {
		return err
	}
	if len(populations) == 0 {
		fmt.Println("no populations")
		return nil
	}
	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(populations)
	}

	for _, p := range populations {
		fmt.Printf("id=%s name=%s domain=%s generation=%d best_fitness=%.6f avg_fitness=%.6f size=%d created=%s\n",
			p.ID,
			p.Name,
			p.Domain,
			p.Generation,
			p.BestFitness,
			p.AvgFitness,
			p.PopulationSize,
			humanize.Time(p.CreatedAt),
		)
	}
	return nil
}

func runEvolve(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("evolve", flag.ContinueOnError)
	id := fs.String("id", "", "population id")
	generations := fs.Int("gens", 1, "generations to evolve")
	storeKind, dbPath, seed, workers := storeFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" {
		return errors.New("evolve requires --id")
	}

	client, done, err := openClient(ctx, *storeKind, *dbPath, *seed, *workers)
	if err != nil {
		return err
	}
	defer done()

	summary, err := client.Evolve(ctx, *id, progenitor.EvolveRequest{Generations: *generations})
	for _, point := range summary.FitnessProgression {
		fmt.Printf("generation=%d best_fitness=%.6f avg_fitness=%.6f min_fitness=%.6f\n",
			point.Generation,
			point.BestFitness,
			point.AvgFitness,
			point.MinFitness,
		)
	}
	if err != nil {
		return fmt.Errorf("evolution stopped after %d generations: %w", summary.GenerationsEvolved, err)
	}
	fmt.Printf("current_generation=%d final_best_fitness=%.6f\n", summary.CurrentGeneration, summary.FinalBestFitness)
	return nil
}

func runBest(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("best", flag.ContinueOnError)
	id := fs.String("id", "", "population id")
	jsonOut := fs.Bool("json", false, "emit best individual as JSON")
	storeKind, dbPath, seed, workers := storeFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" {
		return errors.New("best requires --id")
	}

	client, done, err := openClient(ctx, *storeKind, *dbPath, *seed, *workers)
	if err != nil {
		return err
	}
	defer done()

	best, err := client.GetBestIndividual(ctx, *id)
	if err != nil {
		return err
	}
	if best == nil {
		fmt.Println("population has no individuals")
		return nil
	}
	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(best)
	}

	fmt.Printf("id=%s fitness=%.6f generation=%d parents=%d\n", best.ID, best.Fitness, best.Generation, len(best.ParentIDs))
	for _, key := range sortedKeys(best.Genotype) {
		fmt.Printf("trait %s=%v\n", key, best.Genotype[key])
	}
	return nil
}

func runIndividuals(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("individuals", flag.ContinueOnError)
	id := fs.String("id", "", "population id")
	jsonOut := fs.Bool("json", false, "emit individuals as JSON")
	storeKind, dbPath, seed, workers := storeFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" {
		return errors.New("individuals requires --id")
	}

	client, done, err := openClient(ctx, *storeKind, *dbPath, *seed, *workers)
	if err != nil {
		return err
	}
	defer done()

	individuals, err := client.GetIndividuals(ctx, *id)
	if err != nil {
		return err
	}
	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(individuals)
	}

	for _, individual := range individuals {
		fmt.Printf("id=%s fitness=%.6f generation=%d parents=%d\n",
			individual.ID,
			individual.Fitness,
			individual.Generation,
			len(individual.ParentIDs),
		)
	}
	return nil
}

func runHistory(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	id := fs.String("id", "", "population id")
	limit := fs.Int("limit", 0, "max records to print (0 uses the store default)")
	jsonOut := fs.Bool("json", false, "emit history as JSON")
	storeKind, dbPath, seed, workers := storeFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" {
		return errors.New("history requires --id")
	}

	client, done, err := openClient(ctx, *storeKind, *dbPath, *seed, *workers)
	if err != nil {
		return err
	}
	defer done()

	history, err := client.GetHistory(ctx, *id, *limit)
	if err != nil {
		return err
	}
	if len(history) == 0 {
		fmt.Println("no generation records")
		return nil
	}
	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(history)
	}

	for _, record := range history {
		fmt.Printf("generation=%d max_fitness=%.6f avg_fitness=%.6f min_fitness=%.6f diversity=%.6f best_individual=%s\n",
			record.Generation,
			record.MaxFitness,
			record.AvgFitness,
			record.MinFitness,
			record.Diversity,
			record.BestIndividualID,
		)
	}
	return nil
}

func runStats(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
	storeKind, dbPath, seed, workers := storeFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, done, err := openClient(ctx, *storeKind, *dbPath, *seed, *workers)
	if err != nil {
		return err
	}
	defer done()

	stats, err := client.Stats(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("populations=%s individuals=%s generation_records=%s store_connected=%t\n",
		humanize.Comma(int64(stats.Populations)),
		humanize.Comma(int64(stats.Individuals)),
		humanize.Comma(int64(stats.GenerationRecords)),
		stats.StoreConnected,
	)
	return nil
}

func runDelete(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("delete", flag.ContinueOnError)
	id := fs.String("id", "", "population id")
	storeKind, dbPath, seed, workers := storeFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" {
		return errors.New("delete requires --id")
	}

	client, done, err := openClient(ctx, *storeKind, *dbPath, *seed, *workers)
	if err != nil {
		return err
	}
	defer done()

	if err := client.DeletePopulation(ctx, *id); err != nil {
		return err
	}
	fmt.Printf("deleted population_id=%s\n", *id)
	return nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
