// Package ontology loads the canonical Italian civil-law DSL vocabulary
// (sorts and predicates) and resolves natural-language synonyms back to
// their canonical names, the way the teacher's config package loads a
// layered YAML document once at startup.
package ontology

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed data/legal_it_v1.yaml
var defaultOntologyYAML []byte

// DSLVersion is the canonical DSL version this ontology was authored against.
const DSLVersion = "2.1"

// Sort describes one node in the sort hierarchy rooted at Entity.
type Sort struct {
	Name        string
	Extends     string
	Description string
}

// Predicate describes one canonical predicate's signature.
type Predicate struct {
	Name        string
	Args        []string
	Description string
	Synonyms    []string
}

// Arity returns the predicate's declared argument count.
func (p Predicate) Arity() int { return len(p.Args) }

type rawDoc struct {
	DSLVersion string `yaml:"dsl_version"`
	Sorts      map[string]struct {
		Extends     string `yaml:"extends"`
		Description string `yaml:"description"`
	} `yaml:"sorts"`
	Predicates map[string]struct {
		Args        []string `yaml:"args"`
		Description string   `yaml:"description"`
		Synonyms    []string `yaml:"synonyms"`
	} `yaml:"predicates"`
	SortAliases      map[string]string `yaml:"sort_aliases"`
	PredicateAliases map[string]string `yaml:"predicate_aliases"`
}

// Registry is an immutable, concurrency-safe catalogue of sorts and
// predicates plus their alias maps. Build once with Load and share; it is
// never mutated after construction.
type Registry struct {
	sorts            map[string]Sort
	predicates       map[string]Predicate
	sortAliases      map[string]string
	predicateAliases map[string]string
}

var (
	defaultOnce sync.Once
	defaultReg  *Registry
	defaultErr  error
)

// Default returns the Registry built from the embedded canonical ontology,
// built once and shared for the lifetime of the process.
func Default() (*Registry, error) {
	defaultOnce.Do(func() {
		defaultReg, defaultErr = Load(defaultOntologyYAML)
	})
	return defaultReg, defaultErr
}

// Load parses a YAML ontology document (sorts/predicates/alias tables) into
// a Registry.
func Load(data []byte) (*Registry, error) {
	var doc rawDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("ontology: parse yaml: %w", err)
	}

	r := &Registry{
		sorts:            make(map[string]Sort, len(doc.Sorts)),
		predicates:       make(map[string]Predicate, len(doc.Predicates)),
		sortAliases:      make(map[string]string),
		predicateAliases: make(map[string]string),
	}

	for name, s := range doc.Sorts {
		r.sorts[name] = Sort{Name: name, Extends: s.Extends, Description: s.Description}
		r.sortAliases[strings.ToLower(name)] = name
		if desc := strings.ToLower(strings.TrimSpace(s.Description)); desc != "" {
			r.sortAliases[desc] = name
		}
	}
	for name, p := range doc.Predicates {
		r.predicates[name] = Predicate{
			Name:        name,
			Args:        append([]string(nil), p.Args...),
			Description: p.Description,
			Synonyms:    append([]string(nil), p.Synonyms...),
		}
		r.predicateAliases[strings.ToLower(name)] = name
		for _, syn := range p.Synonyms {
			if key := strings.ToLower(strings.TrimSpace(syn)); key != "" {
				r.predicateAliases[key] = name
			}
		}
	}
	for k, v := range doc.SortAliases {
		r.sortAliases[strings.ToLower(k)] = v
	}
	for k, v := range doc.PredicateAliases {
		r.predicateAliases[strings.ToLower(k)] = v
	}

	return r, nil
}

// Sort returns the canonical sort by exact name.
func (r *Registry) Sort(name string) (Sort, bool) {
	s, ok := r.sorts[name]
	return s, ok
}

// Predicate returns the canonical predicate by exact name.
func (r *Registry) Predicate(name string) (Predicate, bool) {
	p, ok := r.predicates[name]
	return p, ok
}

// IsCanonicalSort reports whether name resolves to a declared sort.
func (r *Registry) IsCanonicalSort(name string) bool {
	_, ok := r.sorts[r.ResolveSort(name)]
	return ok
}

// ResolveSort maps a sort name, description, or known synonym to its
// canonical name. Falls back to heuristic Italian substring matching; a
// name that matches nothing is returned trimmed but otherwise unchanged,
// and a blank name resolves to Entity.
func (r *Registry) ResolveSort(name string) string {
	return r.ResolveSortDefault(name, "Entity")
}

// ResolveSortDefault is ResolveSort with an explicit sort returned for a
// blank name.
func (r *Registry) ResolveSortDefault(name, def string) string {
	key := strings.TrimSpace(name)
	if key == "" {
		return def
	}
	if canonical, ok := r.sortAliases[strings.ToLower(key)]; ok {
		return canonical
	}
	lowered := strings.ToLower(key)
	switch {
	case strings.Contains(lowered, "obbligat"):
		return "Debitore"
	case strings.Contains(lowered, "titolare"), strings.Contains(lowered, "creditor"):
		return "Creditore"
	case strings.Contains(lowered, "accordo"), strings.Contains(lowered, "contratt"):
		return "Contratto"
	}
	return key
}

// ResolvePredicate maps a predicate name or known synonym to its canonical
// name. Unknown names pass through unchanged (matching the prototype, which
// lets the caller decide whether an unresolved predicate is an error).
func (r *Registry) ResolvePredicate(name string) string {
	key := strings.TrimSpace(name)
	if key == "" {
		return ""
	}
	if canonical, ok := r.predicateAliases[strings.ToLower(key)]; ok {
		return canonical
	}
	return key
}

// Signature resolves name to its canonical predicate and returns its arity
// and argument sorts. ok is false if name does not resolve to a known
// predicate.
func (r *Registry) Signature(name string) (arity int, sorts []string, ok bool) {
	canonical := r.ResolvePredicate(name)
	p, found := r.predicates[canonical]
	if !found {
		return 0, nil, false
	}
	return len(p.Args), p.Args, true
}

// Predicates returns every canonical predicate, sorted by name. Used to
// render the ontology context a prompt is built against.
func (r *Registry) Predicates() []Predicate {
	out := make([]Predicate, 0, len(r.predicates))
	for _, p := range r.predicates {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Sorts returns every canonical sort, sorted by name.
func (r *Registry) Sorts() []Sort {
	out := make([]Sort, 0, len(r.sorts))
	for _, s := range r.sorts {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
