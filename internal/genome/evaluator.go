package genome

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"progenitor/internal/model"
)

var ErrNonFiniteFitness = errors.New("fitness is not finite")

// Evaluator maps an expressed phenotype to a scalar fitness. Implementations
// must be deterministic and return a finite value.
type Evaluator interface {
	Name() string
	Evaluate(p model.Phenotype) (float64, error)
}

// MeanTraitEvaluator is the engine default: the average of all numeric
// traits, 0 when the phenotype has none.
type MeanTraitEvaluator struct{}

func (MeanTraitEvaluator) Name() string {
	return "mean_trait"
}

func (MeanTraitEvaluator) Evaluate(p model.Phenotype) (float64, error) {
	if len(p.Traits) == 0 {
		return 0, nil
	}
	total := 0.0
	for _, value := range p.Traits {
		total += value
	}
	fitness := total / float64(len(p.Traits))
	if math.IsNaN(fitness) || math.IsInf(fitness, 0) {
		return 0, ErrNonFiniteFitness
	}
	return fitness, nil
}

var evaluatorRegistry = struct {
	mu sync.RWMutex
	m  map[model.Domain]Evaluator
}{
	m: make(map[model.Domain]Evaluator),
}

// RegisterEvaluator overrides the fitness function for one domain. The
// generic engine contract is unchanged: determinism and a finite result.
func RegisterEvaluator(domain model.Domain, evaluator Evaluator) error {
	if domain == "" {
		return fmt.Errorf("domain is required")
	}
	if evaluator == nil {
		return fmt.Errorf("evaluator is required")
	}

	evaluatorRegistry.mu.Lock()
	defer evaluatorRegistry.mu.Unlock()
	if _, exists := evaluatorRegistry.m[domain]; exists {
		return fmt.Errorf("evaluator already registered for domain %s", domain)
	}
	evaluatorRegistry.m[domain] = evaluator
	return nil
}

// EvaluatorFor resolves the evaluator for a domain, defaulting to
// MeanTraitEvaluator.
func EvaluatorFor(domain model.Domain) Evaluator {
	evaluatorRegistry.mu.RLock()
	defer evaluatorRegistry.mu.RUnlock()

	if evaluator, ok := evaluatorRegistry.m[domain]; ok {
		return evaluator
	}
	return MeanTraitEvaluator{}
}
