package genome

import (
	"fmt"
	"sync"

	"progenitor/internal/model"
)

// fallbackTraits is the schema for domains without a registered one: a
// single scalar trait.
var fallbackTraits = []string{"value"}

var schemaRegistry = struct {
	mu sync.RWMutex
	m  map[model.Domain][]string
}{
	m: make(map[model.Domain][]string),
}

func init() {
	initializeBuiltInSchemas()
}

func initializeBuiltInSchemas() {
	MustRegisterSchema(model.DomainStrategy, []string{"aggression", "exploration", "risk_tolerance", "cooperation"})
	MustRegisterSchema(model.DomainParameters, []string{"learning_rate", "momentum", "dropout", "weight_decay"})
	MustRegisterSchema(model.DomainCode, []string{"abstraction", "branching", "reuse", "verbosity"})
}

// RegisterSchema binds a trait key set to a domain. All traits are reals in
// [0, 1].
func RegisterSchema(domain model.Domain, traits []string) error {
	if domain == "" {
		return fmt.Errorf("domain is required")
	}
	if len(traits) == 0 {
		return fmt.Errorf("schema for domain %s requires at least one trait", domain)
	}
	seen := make(map[string]struct{}, len(traits))
	for _, trait := range traits {
		if trait == "" {
			return fmt.Errorf("schema for domain %s contains an empty trait key", domain)
		}
		if _, dup := seen[trait]; dup {
			return fmt.Errorf("schema for domain %s repeats trait %q", domain, trait)
		}
		seen[trait] = struct{}{}
	}

	schemaRegistry.mu.Lock()
	defer schemaRegistry.mu.Unlock()
	if _, exists := schemaRegistry.m[domain]; exists {
		return fmt.Errorf("schema already registered for domain %s", domain)
	}
	schemaRegistry.m[domain] = append([]string(nil), traits...)
	return nil
}

func MustRegisterSchema(domain model.Domain, traits []string) {
	if err := RegisterSchema(domain, traits); err != nil {
		panic(err)
	}
}

// TraitKeys returns the trait schema for a domain, falling back to the
// single-scalar schema for unregistered domains.
func TraitKeys(domain model.Domain) []string {
	schemaRegistry.mu.RLock()
	defer schemaRegistry.mu.RUnlock()

	traits, ok := schemaRegistry.m[domain]
	if !ok {
		return append([]string(nil), fallbackTraits...)
	}
	return append([]string(nil), traits...)
}
