// Package progenitor is the embedding surface of the evolution engine: a
// Client owning a store and a coordinator, exposing the same operations the
// daemon serves over HTTP.
package progenitor

import (
	"context"
	"fmt"
	"time"

	"progenitor/internal/model"
	"progenitor/internal/platform"
	"progenitor/internal/storage"
	"progenitor/internal/traitmap"
)

const defaultDBPath = "progenitor.db"

type Options struct {
	StoreKind      string
	DBPath         string
	Seed           int64
	Workers        int
	FoundingSize   int
	MutationRate   float64
	TournamentSize int
}

type Client struct {
	store  storage.Store
	engine *platform.Engine
}

type CreateRequest struct {
	Name        string         `json:"name"`
	Domain      string         `json:"domain"`
	Description string         `json:"description,omitempty"`
	Size        int            `json:"size,omitempty"`
	Config      map[string]any `json:"config,omitempty"`
}

type CreateSummary struct {
	PopulationID string `json:"population_id"`
	Message      string `json:"message"`
}

type PopulationItem struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Domain         string    `json:"domain"`
	Generation     int       `json:"generation"`
	BestFitness    float64   `json:"best_fitness"`
	AvgFitness     float64   `json:"avg_fitness"`
	PopulationSize int       `json:"population_size"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type EvolveRequest struct {
	Generations int `json:"generations,omitempty"`
}

type GenerationPoint struct {
	Generation  int     `json:"generation"`
	BestFitness float64 `json:"best_fitness"`
	AvgFitness  float64 `json:"avg_fitness"`
	MinFitness  float64 `json:"min_fitness"`
}

type EvolveSummary struct {
	GenerationsEvolved int               `json:"generations_evolved"`
	CurrentGeneration  int               `json:"current_generation"`
	FitnessProgression []GenerationPoint `json:"fitness_progression"`
	FinalBestFitness   float64           `json:"final_best_fitness"`
}

type IndividualItem struct {
	ID         string         `json:"id"`
	Genotype   map[string]any `json:"genotype"`
	Phenotype  map[string]any `json:"phenotype"`
	Fitness    float64        `json:"fitness"`
	Generation int            `json:"generation"`
	ParentIDs  []string       `json:"parent_ids"`
}

type HistoryItem struct {
	Generation       int     `json:"generation"`
	MaxFitness       float64 `json:"max_fitness"`
	AvgFitness       float64 `json:"avg_fitness"`
	MinFitness       float64 `json:"min_fitness"`
	Diversity        float64 `json:"diversity"`
	BestIndividualID string  `json:"best_individual_id"`
}

type StatsSummary struct {
	Populations       int  `json:"populations"`
	Individuals       int  `json:"individuals"`
	GenerationRecords int  `json:"generation_records"`
	StoreConnected    bool `json:"store_connected"`
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.DefaultStoreKind()
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}

	store, err := storage.NewStore(storeKind, dbPath)
	if err != nil {
		return nil, err
	}

	return &Client{
		store: store,
		engine: platform.NewEngine(platform.Config{
			Store:          store,
			Seed:           opts.Seed,
			Workers:        opts.Workers,
			FoundingSize:   opts.FoundingSize,
			MutationRate:   opts.MutationRate,
			TournamentSize: opts.TournamentSize,
		}),
	}, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

func (c *Client) Init(ctx context.Context) error {
	return c.engine.Init(ctx)
}

func (c *Client) CreatePopulation(ctx context.Context, req CreateRequest) (CreateSummary, error) {
	config := req.Config
	if req.Description != "" {
		if config == nil {
			config = make(map[string]any, 1)
		}
		config["description"] = req.Description
	}

	population, err := c.engine.CreatePopulation(ctx, platform.CreateParams{
		Name:   req.Name,
		Domain: model.Domain(req.Domain),
		Size:   req.Size,
		Config: config,
	})
	if err != nil {
		return CreateSummary{}, err
	}
	return CreateSummary{
		PopulationID: population.ID,
		Message:      fmt.Sprintf("population %q created in domain %s", population.Name, population.Domain),
	}, nil
}

func (c *Client) ListPopulations(ctx context.Context) ([]PopulationItem, error) {
	summaries, err := c.engine.ListPopulations(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]PopulationItem, 0, len(summaries))
	for _, summary := range summaries {
		out = append(out, PopulationItem{
			ID:             summary.ID,
			Name:           summary.Name,
			Domain:         string(summary.Domain),
			Generation:     summary.Generation,
			BestFitness:    summary.BestFitness,
			AvgFitness:     summary.AvgFitness,
			PopulationSize: summary.Size,
			CreatedAt:      summary.CreatedAt,
			UpdatedAt:      summary.UpdatedAt,
		})
	}
	return out, nil
}

func (c *Client) GetPopulation(ctx context.Context, id string) (PopulationItem, error) {
	population, err := c.engine.GetPopulation(ctx, id)
	if err != nil {
		return PopulationItem{}, err
	}
	individuals, err := c.engine.GetIndividuals(ctx, id)
	if err != nil {
		return PopulationItem{}, err
	}
	return PopulationItem{
		ID:             population.ID,
		Name:           population.Name,
		Domain:         string(population.Domain),
		Generation:     population.Generation,
		BestFitness:    population.BestFitness,
		AvgFitness:     population.AvgFitness,
		PopulationSize: len(individuals),
		CreatedAt:      population.CreatedAt,
		UpdatedAt:      population.UpdatedAt,
	}, nil
}

func (c *Client) Evolve(ctx context.Context, populationID string, req EvolveRequest) (EvolveSummary, error) {
	result, err := c.engine.Evolve(ctx, populationID, req.Generations)
	summary := EvolveSummary{
		GenerationsEvolved: result.GenerationsEvolved,
		CurrentGeneration:  result.CurrentGeneration,
		FinalBestFitness:   result.FinalBestFitness,
		FitnessProgression: make([]GenerationPoint, 0, len(result.Progression)),
	}
	for _, stats := range result.Progression {
		summary.FitnessProgression = append(summary.FitnessProgression, GenerationPoint{
			Generation:  stats.Generation,
			BestFitness: stats.BestFitness,
			AvgFitness:  stats.AvgFitness,
			MinFitness:  stats.MinFitness,
		})
	}
	if err != nil {
		return summary, err
	}
	return summary, nil
}

// GetBestIndividual returns nil for a population that exists but is empty.
func (c *Client) GetBestIndividual(ctx context.Context, populationID string) (*IndividualItem, error) {
	best, ok, err := c.engine.GetBestIndividual(ctx, populationID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	item := toIndividualItem(best)
	return &item, nil
}

func (c *Client) GetIndividuals(ctx context.Context, populationID string) ([]IndividualItem, error) {
	individuals, err := c.engine.GetIndividuals(ctx, populationID)
	if err != nil {
		return nil, err
	}
	out := make([]IndividualItem, 0, len(individuals))
	for _, individual := range individuals {
		out = append(out, toIndividualItem(individual))
	}
	return out, nil
}

func (c *Client) GetHistory(ctx context.Context, populationID string, limit int) ([]HistoryItem, error) {
	records, err := c.engine.GetHistory(ctx, populationID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]HistoryItem, 0, len(records))
	for _, record := range records {
		out = append(out, HistoryItem{
			Generation:       record.Generation,
			MaxFitness:       record.BestFitness,
			AvgFitness:       record.AvgFitness,
			MinFitness:       record.MinFitness,
			Diversity:        record.Diversity,
			BestIndividualID: record.BestIndividualID,
		})
	}
	return out, nil
}

func (c *Client) DeletePopulation(ctx context.Context, id string) error {
	return c.engine.DeletePopulation(ctx, id)
}

func (c *Client) Stats(ctx context.Context) (StatsSummary, error) {
	stats, err := c.engine.Stats(ctx)
	if err != nil {
		return StatsSummary{}, err
	}
	return StatsSummary{
		Populations:       stats.Populations,
		Individuals:       stats.Individuals,
		GenerationRecords: stats.GenerationRecords,
		StoreConnected:    stats.StoreConnected,
	}, nil
}

func toIndividualItem(individual model.Individual) IndividualItem {
	parentIDs := individual.ParentIDs
	if parentIDs == nil {
		parentIDs = []string{}
	}
	return IndividualItem{
		ID:         individual.ID,
		Genotype:   traitmap.GenotypeToWire(individual.Genotype),
		Phenotype:  traitmap.PhenotypeToWire(individual.Phenotype),
		Fitness:    individual.Fitness,
		Generation: individual.Generation,
		ParentIDs:  parentIDs,
	}
}
