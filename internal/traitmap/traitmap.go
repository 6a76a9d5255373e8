// Package traitmap converts between the engine's typed trait records and the
// flat key->value scalar maps used at the wire boundary. Numbers become
// numeric traits, strings and bools become labels; nothing else is a valid
// trait value.
package traitmap

import (
	"fmt"
	"sort"
	"strconv"

	"progenitor/internal/model"
)

const (
	domainKey    = "domain"
	expressedKey = "expressed"
)

// Flatten merges numeric traits and labels into one scalar map.
func Flatten(traits map[string]float64, labels map[string]string) map[string]any {
	out := make(map[string]any, len(traits)+len(labels))
	for k, v := range traits {
		out[k] = v
	}
	for k, v := range labels {
		out[k] = v
	}
	return out
}

// Split partitions an open scalar map into numeric traits and labels.
func Split(m map[string]any) (map[string]float64, map[string]string, error) {
	traits := make(map[string]float64)
	var labels map[string]string
	setLabel := func(k, v string) {
		if labels == nil {
			labels = make(map[string]string)
		}
		labels[k] = v
	}

	for k, v := range m {
		switch value := v.(type) {
		case float64:
			traits[k] = value
		case float32:
			traits[k] = float64(value)
		case int:
			traits[k] = float64(value)
		case int64:
			traits[k] = float64(value)
		case string:
			setLabel(k, value)
		case bool:
			setLabel(k, strconv.FormatBool(value))
		default:
			return nil, nil, fmt.Errorf("unsupported scalar for trait %q: %T", k, v)
		}
	}
	return traits, labels, nil
}

func GenotypeToWire(g model.Genotype) map[string]any {
	return Flatten(g.Traits, g.Labels)
}

func GenotypeFromWire(m map[string]any) (model.Genotype, error) {
	traits, labels, err := Split(m)
	if err != nil {
		return model.Genotype{}, err
	}
	return model.Genotype{Traits: traits, Labels: labels}, nil
}

// PhenotypeToWire flattens an expressed phenotype, reserving the domain and
// expressed keys for the expression markers.
func PhenotypeToWire(p model.Phenotype) map[string]any {
	out := Flatten(p.Traits, p.Labels)
	out[domainKey] = string(p.Domain)
	out[expressedKey] = p.Expressed
	return out
}

func PhenotypeFromWire(m map[string]any) (model.Phenotype, error) {
	rest := make(map[string]any, len(m))
	for k, v := range m {
		rest[k] = v
	}

	var p model.Phenotype
	if raw, ok := rest[domainKey]; ok {
		domain, ok := raw.(string)
		if !ok {
			return model.Phenotype{}, fmt.Errorf("phenotype %s must be a string, got %T", domainKey, raw)
		}
		p.Domain = model.Domain(domain)
		delete(rest, domainKey)
	}
	if raw, ok := rest[expressedKey]; ok {
		expressed, ok := raw.(bool)
		if !ok {
			return model.Phenotype{}, fmt.Errorf("phenotype %s must be a bool, got %T", expressedKey, raw)
		}
		p.Expressed = expressed
		delete(rest, expressedKey)
	}

	traits, labels, err := Split(rest)
	if err != nil {
		return model.Phenotype{}, err
	}
	p.Traits = traits
	p.Labels = labels
	return p, nil
}

// SortedKeys returns the map's keys in deterministic order. Generic operators
// iterate traits through this so seeded runs are reproducible.
func SortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
