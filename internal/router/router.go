// Package router resolves a model and job constraints into an ordered
// list of eligible (provider_id, provider_model_id) candidates (spec
// §4.5).
package router

import (
	"fmt"
	"math/rand"
	"sort"
	"time"

	"project-tachyon/internal/catalog"
)

func randSeed() int64 { return time.Now().UnixNano() }

// Strategy is the routing_strategy argument to submit_run. Only the first
// three affect core behavior; the rest degrade to Default (spec §4.1).
type Strategy string

const (
	Default  Strategy = "default"
	Failover Strategy = "failover"
	Weighted Strategy = "weighted"
)

// Normalize maps any accepted strategy string to the three this router
// actually implements, defaulting unknown/unsupported ones per spec §4.1.
func Normalize(s string) Strategy {
	switch Strategy(s) {
	case Failover, Weighted:
		return Strategy(s)
	default:
		return Default
	}
}

// Constraints narrows the candidate set beyond what the model's provider
// map alone determines.
type Constraints struct {
	RequiredDurations    []int
	RequiredResolutions  []string
	RequiresPro          bool
	RequiresImageToVideo bool
}

// Candidate is one eligible (provider, provider-specific model id) pair.
type Candidate struct {
	ProviderID      string
	ProviderModelID string
}

// Router reads providers and models from the catalog; it holds no state
// of its own beyond an injectable random source for weighted picks.
type Router struct {
	catalog *catalog.Catalog
	rand    *rand.Rand
}

func New(c *catalog.Catalog) *Router {
	return &Router{catalog: c, rand: rand.New(rand.NewSource(randSeed()))}
}

// Resolve implements the full algorithm of spec §4.5 steps 1-4: resolve
// the model, filter the provider map by capability, sort by ascending
// priority (ties broken by insertion order, which ProviderOrder already
// preserves), then apply the routing strategy.
func (r *Router) Resolve(modelID string, strategy Strategy, c Constraints) ([]Candidate, error) {
	model, ok, err := r.catalog.GetModel(modelID)
	if err != nil {
		return nil, fmt.Errorf("router: %w", err)
	}
	if !ok || !model.Enabled {
		return nil, fmt.Errorf("validation_error: model %q not found or disabled", modelID)
	}

	var survivors []scoredCandidate

	for order, providerID := range model.ProviderOrder {
		providerModelIDs := model.ProviderModelIDs[providerID]
		if len(providerModelIDs) == 0 {
			continue
		}
		provider, ok, err := r.catalog.GetProvider(providerID)
		if err != nil {
			return nil, fmt.Errorf("router: %w", err)
		}
		if !ok || !provider.Enabled {
			continue
		}
		if c.RequiresPro && !provider.SupportsPro {
			continue
		}
		if c.RequiresImageToVideo && !provider.SupportsImageToVideo {
			continue
		}
		if !isSubsetInt(c.RequiredDurations, provider.SupportedDurations) {
			continue
		}
		if !isSubsetString(c.RequiredResolutions, provider.SupportedResolutions) {
			continue
		}
		survivors = append(survivors, scoredCandidate{provider, providerModelIDs[0], order})
	}

	if len(survivors) == 0 {
		return nil, nil // empty result: caller maps this to no_provider
	}

	sort.SliceStable(survivors, func(i, j int) bool {
		if survivors[i].provider.Priority != survivors[j].provider.Priority {
			return survivors[i].provider.Priority < survivors[j].provider.Priority
		}
		return survivors[i].order < survivors[j].order
	})

	switch strategy {
	case Weighted:
		picked := r.pickWeighted(survivors)
		return []Candidate{{picked.provider.ID, picked.providerModelID}}, nil
	default: // Default and Failover both return the full sorted list (spec §4.5 step 4)
		out := make([]Candidate, len(survivors))
		for i, s := range survivors {
			out[i] = Candidate{s.provider.ID, s.providerModelID}
		}
		return out, nil
	}
}

type scoredCandidate struct {
	provider        catalog.Provider
	providerModelID string
	order           int
}

type weightedItem struct {
	provider        catalog.Provider
	providerModelID string
}

func (r *Router) pickWeighted(survivors []scoredCandidate) weightedItem {
	var pool []weightedItem
	for _, s := range survivors {
		weight := s.provider.Weight
		if weight < 1 {
			weight = 1
		}
		for i := 0; i < weight; i++ {
			pool = append(pool, weightedItem{s.provider, s.providerModelID})
		}
	}
	return pool[r.rand.Intn(len(pool))]
}

func isSubsetInt(required, available []int) bool {
	if len(required) == 0 {
		return true
	}
	set := make(map[int]bool, len(available))
	for _, v := range available {
		set[v] = true
	}
	for _, v := range required {
		if !set[v] {
			return false
		}
	}
	return true
}

func isSubsetString(required, available []string) bool {
	if len(required) == 0 {
		return true
	}
	set := make(map[string]bool, len(available))
	for _, v := range available {
		set[v] = true
	}
	for _, v := range required {
		if !set[v] {
			return false
		}
	}
	return true
}
