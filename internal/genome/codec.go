// Package genome implements the per-domain genotype codec: random genotype
// generation, genotype to phenotype expression, and the generic crossover and
// mutation operators that only need to iterate numeric traits.
package genome

import (
	"math/rand"

	"progenitor/internal/model"
	"progenitor/internal/traitmap"
)

const (
	// DefaultMutationRate is the per-trait mutation probability.
	DefaultMutationRate = 0.1
	// mutationSpan bounds a single perturbation to [-0.1, 0.1].
	mutationSpan = 0.1
)

// RandomGenotype draws a fresh genotype for the domain's trait schema, each
// trait uniform in [0, 1].
func RandomGenotype(rng *rand.Rand, domain model.Domain) model.Genotype {
	keys := TraitKeys(domain)
	traits := make(map[string]float64, len(keys))
	for _, key := range keys {
		traits[key] = rng.Float64()
	}
	return model.Genotype{Traits: traits}
}

// ExpressPhenotype derives the expressed form of a genotype. Expression is
// deterministic and total: the phenotype carries the genotype's traits plus
// the domain tag and the expressed marker. Domains may register richer
// evaluators without changing expression.
func ExpressPhenotype(g model.Genotype, domain model.Domain) model.Phenotype {
	cloned := g.Clone()
	return model.Phenotype{
		Domain:    domain,
		Expressed: true,
		Traits:    cloned.Traits,
		Labels:    cloned.Labels,
	}
}

// Crossover performs uniform crossover: for every trait key present in either
// parent, the child inherits the value from a uniformly random parent; keys
// present in only one parent are taken from that parent. No key outside the
// parents' union is ever produced.
func Crossover(rng *rand.Rand, parentA, parentB model.Genotype) model.Genotype {
	child := model.Genotype{Traits: make(map[string]float64)}

	for _, key := range unionKeys(parentA.Traits, parentB.Traits) {
		valueA, okA := parentA.Traits[key]
		valueB, okB := parentB.Traits[key]
		switch {
		case okA && okB:
			if rng.Intn(2) == 0 {
				child.Traits[key] = valueA
			} else {
				child.Traits[key] = valueB
			}
		case okA:
			child.Traits[key] = valueA
		default:
			child.Traits[key] = valueB
		}
	}

	labelKeys := unionKeys(parentA.Labels, parentB.Labels)
	if len(labelKeys) > 0 {
		child.Labels = make(map[string]string, len(labelKeys))
		for _, key := range labelKeys {
			valueA, okA := parentA.Labels[key]
			valueB, okB := parentB.Labels[key]
			switch {
			case okA && okB:
				if rng.Intn(2) == 0 {
					child.Labels[key] = valueA
				} else {
					child.Labels[key] = valueB
				}
			case okA:
				child.Labels[key] = valueA
			default:
				child.Labels[key] = valueB
			}
		}
	}

	return child
}

// Mutate perturbs each numeric trait with probability rate by a delta in
// [-0.1, 0.1] and clamps the result to [0, 1]. Labels are left untouched.
// A rate <= 0 falls back to DefaultMutationRate.
func Mutate(rng *rand.Rand, g model.Genotype, rate float64) model.Genotype {
	if rate <= 0 {
		rate = DefaultMutationRate
	}

	mutated := g.Clone()
	for _, key := range traitmap.SortedKeys(mutated.Traits) {
		if rng.Float64() >= rate {
			continue
		}
		value := mutated.Traits[key] + (rng.Float64()*2-1)*mutationSpan
		if value < 0 {
			value = 0
		}
		if value > 1 {
			value = 1
		}
		mutated.Traits[key] = value
	}
	return mutated
}

func unionKeys[V any](a, b map[string]V) []string {
	merged := make(map[string]V, len(a)+len(b))
	for k, v := range a {
		merged[k] = v
	}
	for k, v := range b {
		merged[k] = v
	}
	return traitmap.SortedKeys(merged)
}
