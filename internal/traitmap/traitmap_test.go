package traitmap

import (
	"encoding/json"
	"testing"

	"progenitor/internal/model"
)

func TestSplitPartitionsScalars(t *testing.T) {
	traits, labels, err := Split(map[string]any{
		"aggression": 0.5,
		"steps":      int(3),
		"style":      "greedy",
		"enabled":    true,
	})
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if traits["aggression"] != 0.5 || traits["steps"] != 3 {
		t.Fatalf("unexpected traits: %+v", traits)
	}
	if labels["style"] != "greedy" || labels["enabled"] != "true" {
		t.Fatalf("unexpected labels: %+v", labels)
	}
}

func TestSplitRejectsNonScalar(t *testing.T) {
	_, _, err := Split(map[string]any{"nested": map[string]any{"x": 1}})
	if err == nil {
		t.Fatal("expected error for nested value")
	}
}

func TestGenotypeWireRoundTrip(t *testing.T) {
	in := model.Genotype{
		Traits: map[string]float64{"aggression": 0.25, "exploration": 0.75},
		Labels: map[string]string{"style": "greedy"},
	}

	wire := GenotypeToWire(in)
	payload, err := json.Marshal(wire)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	out, err := GenotypeFromWire(decoded)
	if err != nil {
		t.Fatalf("from wire: %v", err)
	}
	if out.Traits["aggression"] != 0.25 || out.Traits["exploration"] != 0.75 {
		t.Fatalf("unexpected traits: %+v", out.Traits)
	}
	if out.Labels["style"] != "greedy" {
		t.Fatalf("unexpected labels: %+v", out.Labels)
	}
}

func TestPhenotypeWireCarriesExpressionMarkers(t *testing.T) {
	in := model.Phenotype{
		Domain:    model.DomainStrategy,
		Expressed: true,
		Traits:    map[string]float64{"risk_tolerance": 0.9},
	}

	wire := PhenotypeToWire(in)
	if wire["domain"] != "strategy" || wire["expressed"] != true {
		t.Fatalf("missing expression markers: %+v", wire)
	}

	out, err := PhenotypeFromWire(wire)
	if err != nil {
		t.Fatalf("from wire: %v", err)
	}
	if out.Domain != model.DomainStrategy || !out.Expressed {
		t.Fatalf("unexpected phenotype: %+v", out)
	}
	if _, ok := out.Traits["domain"]; ok {
		t.Fatal("domain marker leaked into traits")
	}
	if out.Traits["risk_tolerance"] != 0.9 {
		t.Fatalf("unexpected traits: %+v", out.Traits)
	}
}

func TestSortedKeysIsDeterministic(t *testing.T) {
	keys := SortedKeys(map[string]float64{"c": 1, "a": 2, "b": 3})
	if len(keys) != 3 || keys[0] != "a" || keys[1] != "b" || keys[2] != "c" {
		t.Fatalf("unexpected order: %v", keys)
	}
}
