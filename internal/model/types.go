package model

import "time"

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// Domain tags a population with the trait schema its genotypes follow.
type Domain string

const (
	DomainStrategy   Domain = "strategy"
	DomainParameters Domain = "parameters"
	DomainCode       Domain = "code"
)

// KnownDomains lists the domains the engine accepts at population creation.
func KnownDomains() []Domain {
	return []Domain{DomainStrategy, DomainParameters, DomainCode}
}

func IsKnownDomain(d Domain) bool {
	switch d {
	case DomainStrategy, DomainParameters, DomainCode:
		return true
	default:
		return false
	}
}

// Genotype is an open trait schema: numeric traits drive the generic
// evolutionary operators, labels ride along untouched by mutation.
type Genotype struct {
	Traits map[string]float64 `json:"traits"`
	Labels map[string]string  `json:"labels,omitempty"`
}

func (g Genotype) Clone() Genotype {
	out := Genotype{Traits: make(map[string]float64, len(g.Traits))}
	for k, v := range g.Traits {
		out.Traits[k] = v
	}
	if len(g.Labels) > 0 {
		out.Labels = make(map[string]string, len(g.Labels))
		for k, v := range g.Labels {
			out.Labels[k] = v
		}
	}
	return out
}

// Phenotype is the expressed form of a genotype, the only input to fitness
// evaluation.
type Phenotype struct {
	Domain    Domain             `json:"domain"`
	Expressed bool               `json:"expressed"`
	Traits    map[string]float64 `json:"traits"`
	Labels    map[string]string  `json:"labels,omitempty"`
}

type Population struct {
	VersionedRecord
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Domain      Domain         `json:"domain"`
	Generation  int            `json:"generation"`
	BestFitness float64        `json:"best_fitness"`
	AvgFitness  float64        `json:"avg_fitness"`
	Config      map[string]any `json:"config,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// PopulationSummary is a Population annotated with its current individual
// count. The count is derived from stored individuals, never cached.
type PopulationSummary struct {
	Population
	Size int `json:"population_size"`
}

type Individual struct {
	VersionedRecord
	ID           string    `json:"id"`
	PopulationID string    `json:"population_id"`
	Genotype     Genotype  `json:"genotype"`
	Phenotype    Phenotype `json:"phenotype"`
	Fitness      float64   `json:"fitness"`
	Generation   int       `json:"generation"`
	ParentIDs    []string  `json:"parent_ids"`
	CreatedAt    time.Time `json:"created_at"`
}

// GenerationRecord is one entry in the append-only per-population ledger.
// Diversity is the best-minus-worst fitness spread of the generation.
type GenerationRecord struct {
	PopulationID     string    `json:"population_id"`
	Generation       int       `json:"generation"`
	BestFitness      float64   `json:"best_fitness"`
	AvgFitness       float64   `json:"avg_fitness"`
	MinFitness       float64   `json:"min_fitness"`
	Diversity        float64   `json:"diversity"`
	BestIndividualID string    `json:"best_individual_id"`
	RecordedAt       time.Time `json:"recorded_at"`
}

// StoreStats aggregates entity counts for the health surface.
type StoreStats struct {
	Populations       int `json:"populations"`
	Individuals       int `json:"individuals"`
	GenerationRecords int `json:"generation_records"`
}
