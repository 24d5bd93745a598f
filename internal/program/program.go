// Package program defines the logic program data model shared by every
// stage of the pipeline — sorts, constants, predicates, facts, axioms,
// rules, and an optional query — along with the normalization and
// canonical-rule-injection steps that turn a raw, possibly sloppy LLM
// payload into a well-formed program.
package program

// SortDef declares one sort and, optionally, the parent sort it extends.
type SortDef struct {
	Type string `json:"type" yaml:"type"`
}

// ConstantDef declares one named constant and the sort it belongs to.
type ConstantDef struct {
	Sort string `json:"sort" yaml:"sort"`
}

// PredicateDef declares one predicate's argument sorts, by position.
type PredicateDef struct {
	Args []string `json:"args" yaml:"args"`
}

// Rule is a condition/conclusion pair: condition -> conclusion.
type Rule struct {
	Condition  string `json:"condition" yaml:"condition"`
	Conclusion string `json:"conclusion" yaml:"conclusion"`
}

// Query names the target predicate a program is being evaluated for.
type Query struct {
	Pred string   `json:"pred" yaml:"pred"`
	Args []string `json:"args" yaml:"args"`
}

// Text renders the query as a single atom expression, e.g. "Pred(a, b)".
func (q *Query) Text() string {
	if q == nil {
		return ""
	}
	if len(q.Args) == 0 {
		return q.Pred
	}
	s := q.Pred + "("
	for i, a := range q.Args {
		if i > 0 {
			s += ", "
		}
		s += a
	}
	return s + ")"
}

// LogicProgram is the full, version-tagged logic program produced by the
// structured extraction and refinement stages and consumed by the
// guardrail checker and solver driver.
type LogicProgram struct {
	DSLVersion string                  `json:"dsl_version" yaml:"dsl_version"`
	Sorts      map[string]SortDef      `json:"sorts" yaml:"sorts"`
	Constants  map[string]ConstantDef  `json:"constants" yaml:"constants"`
	Predicates map[string]PredicateDef `json:"predicates" yaml:"predicates"`
	Facts      map[string][][]string   `json:"facts" yaml:"facts"`
	Axioms     []string                `json:"axioms" yaml:"axioms"`
	Rules      []Rule                  `json:"rules" yaml:"rules"`
	Query      *Query                  `json:"query,omitempty" yaml:"query,omitempty"`
}

// New returns an empty, well-formed program at the current DSL version,
// with every container initialized so callers never have to nil-check.
func New() *LogicProgram {
	return &LogicProgram{
		DSLVersion: "2.1",
		Sorts:      map[string]SortDef{},
		Constants:  map[string]ConstantDef{},
		Predicates: map[string]PredicateDef{},
		Facts:      map[string][][]string{},
		Axioms:     []string{},
		Rules:      []Rule{},
	}
}

// EnsureContainers fills in any nil map/slice field with an empty one, the
// coercion step every other normalization step depends on running first.
func (p *LogicProgram) EnsureContainers() {
	if p.DSLVersion == "" {
		p.DSLVersion = "2.1"
	}
	if p.Sorts == nil {
		p.Sorts = map[string]SortDef{}
	}
	if p.Constants == nil {
		p.Constants = map[string]ConstantDef{}
	}
	if p.Predicates == nil {
		p.Predicates = map[string]PredicateDef{}
	}
	if p.Facts == nil {
		p.Facts = map[string][][]string{}
	}
	if p.Axioms == nil {
		p.Axioms = []string{}
	}
	if p.Rules == nil {
		p.Rules = []Rule{}
	}
}

// HasRuleConcluding reports whether any rule's conclusion matches target
// verbatim (after whitespace trimming), the same check used to decide
// whether a canonical rule needs to be synthesized for the query.
func (p *LogicProgram) HasRuleConcluding(target string) bool {
	for _, r := range p.Rules {
		if trimmedEqual(r.Conclusion, target) {
			return true
		}
	}
	return false
}

func trimmedEqual(a, b string) bool {
	return trimSpace(a) == trimSpace(b)
}

func trimSpace(s string) string {
	start, end := 0, len(s)
	for start < end && isSpace(s[start]) {
		start++
	}
	for end > start && isSpace(s[end-1]) {
		end--
	}
	return s[start:end]
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
