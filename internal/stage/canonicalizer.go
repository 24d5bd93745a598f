package stage

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"nslr/internal/llm"
	"nslr/internal/logging"
	"nslr/internal/ontology"
)

// CanonicalizerConcept is one span of question text mapped to a canonical
// ontology predicate.
type CanonicalizerConcept struct {
	Text                string  `json:"text"`
	CanonicalPredicate  string  `json:"canonical_predicate"`
	Confidence          float64 `json:"confidence"`
	Notes               string  `json:"notes,omitempty"`
}

// CanonicalizerUnmappedTerm is a question span the canonicalizer could not
// map to any ontology predicate.
type CanonicalizerUnmappedTerm struct {
	Text   string `json:"text"`
	Reason string `json:"reason"`
}

// CanonicalizerOutput is the structured result of mapping a question onto
// the canonical ontology.
type CanonicalizerOutput struct {
	Question      string                      `json:"question"`
	Language      string                      `json:"language"`
	Domain        string                      `json:"domain"`
	Concepts      []CanonicalizerConcept      `json:"concepts"`
	UnmappedTerms []CanonicalizerUnmappedTerm `json:"unmapped_terms"`
}

type cacheEntry struct {
	at     time.Time
	output CanonicalizerOutput
}

// Canonicalizer wraps an llm.Runtime with a TTL cache and a deterministic
// fallback, so repeated or iterative questions do not re-hit the model and
// a model outage degrades gracefully instead of aborting the pipeline.
type Canonicalizer struct {
	runtime  *llm.Runtime
	reg      *ontology.Registry
	logger   *zap.Logger
	cacheTTL time.Duration

	mu    sync.Mutex
	cache map[string]cacheEntry
}

// NewCanonicalizer builds a Canonicalizer. cacheTTL of zero disables
// expiry; a negative value disables caching entirely.
func NewCanonicalizer(runtime *llm.Runtime, reg *ontology.Registry, logger *zap.Logger, cacheTTL time.Duration) *Canonicalizer {
	return &Canonicalizer{
		runtime:  runtime,
		reg:      reg,
		logger:   logger,
		cacheTTL: cacheTTL,
		cache:    map[string]cacheEntry{},
	}
}

// Run canonicalizes question, consulting and then populating the cache,
// and falling back to a deterministic stub output if the model call fails.
func (c *Canonicalizer) Run(ctx context.Context, question string) (CanonicalizerOutput, error) {
	normalized := strings.TrimSpace(question)
	if normalized == "" {
		return CanonicalizerOutput{}, fmt.Errorf("canonicalizer: question must not be empty")
	}

	if cached, ok := c.fromCache(normalized); ok {
		return cached, nil
	}

	prompt, err := renderPrompt("canonicalizer.tmpl", map[string]interface{}{
		"Question":   normalized,
		"Sorts":      renderableSorts(c.reg),
		"Predicates": renderablePredicates(c.reg),
	})
	if err != nil {
		return CanonicalizerOutput{}, err
	}

	raw, err := c.runtime.Call(ctx, "Canonicalizer", prompt, 300*time.Second)
	var output CanonicalizerOutput
	if err != nil {
		logging.AuditError(c.logger, logging.CategoryCanonicalizer, "", "canonicalizer call failed, using fallback", err)
		output = fallbackCanonicalizerOutput(normalized)
	} else if !llm.ExtractJSON(raw, &output) {
		logging.Audit(c.logger, logging.CategoryCanonicalizer, "", "canonicalizer response was not valid JSON, using fallback")
		output = fallbackCanonicalizerOutput(normalized)
	}

	c.store(normalized, output)
	return output, nil
}

// ClearCache empties the cache; exposed for tests.
func (c *Canonicalizer) ClearCache() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache = map[string]cacheEntry{}
}

func (c *Canonicalizer) fromCache(key string) (CanonicalizerOutput, bool) {
	if c.cacheTTL < 0 {
		return CanonicalizerOutput{}, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.cache[key]
	if !ok {
		return CanonicalizerOutput{}, false
	}
	if c.cacheTTL > 0 && time.Since(entry.at) > c.cacheTTL {
		delete(c.cache, key)
		return CanonicalizerOutput{}, false
	}
	return entry.output, true
}

func (c *Canonicalizer) store(key string, output CanonicalizerOutput) {
	if c.cacheTTL < 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache[key] = cacheEntry{at: time.Now(), output: output}
}

func fallbackCanonicalizerOutput(question string) CanonicalizerOutput {
	return CanonicalizerOutput{
		Question:      question,
		Language:      "it",
		Domain:        "civil_law_contractual_liability",
		Concepts:      nil,
		UnmappedTerms: nil,
	}
}

func renderableSorts(reg *ontology.Registry) []ontology.Sort {
	return reg.Sorts()
}

func renderablePredicates(reg *ontology.Registry) []ontology.Predicate {
	return reg.Predicates()
}
