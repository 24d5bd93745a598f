package program

import (
	"regexp"
	"strings"

	"nslr/internal/dsl"
	"nslr/internal/ontology"
)

var (
	arrowSplit  = regexp.MustCompile(`\s*(?:->|=>|→|⇒)\s*`)
	prologSplit = regexp.MustCompile(`\s*:-\s*`)
)

// Normalize runs the full coercion pipeline over a raw program: it fills in
// missing containers, splits any unstructured rule text into
// condition/conclusion pairs, sanitizes every expression string, and
// canonicalizes predicate and sort names against reg. It mutates p in
// place and also returns it, for chaining.
func Normalize(p *LogicProgram, reg *ontology.Registry) *LogicProgram {
	p.EnsureContainers()

	for i, axiom := range p.Axioms {
		p.Axioms[i] = canonicalizeText(axiom, reg)
	}

	for i, r := range p.Rules {
		cond, concl := r.Condition, r.Conclusion
		if concl == "" && cond != "" {
			cond, concl = splitRuleText(cond)
		}
		p.Rules[i] = Rule{
			Condition:  canonicalizeText(cond, reg),
			Conclusion: canonicalizeText(concl, reg),
		}
	}

	if p.Query != nil {
		p.Query.Pred = reg.ResolvePredicate(p.Query.Pred)
	}

	for name, c := range p.Constants {
		p.Constants[name] = ConstantDef{Sort: reg.ResolveSort(c.Sort)}
	}

	hydrateSorts(p, reg)
	coerceNumericFacts(p)

	return p
}

// splitRuleText splits a single combined rule string ("A -> B", "A => B",
// "B :- A") into (condition, conclusion). Unrecognized text is returned
// unchanged as the condition with an empty conclusion.
func splitRuleText(text string) (condition, conclusion string) {
	trimmed := strings.TrimSpace(text)
	if arrowSplit.MatchString(trimmed) {
		parts := arrowSplit.Split(trimmed, 2)
		if len(parts) == 2 {
			return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
		}
	}
	if prologSplit.MatchString(trimmed) {
		parts := prologSplit.Split(trimmed, 2)
		if len(parts) == 2 {
			// Prolog order is conclusion :- condition.
			return strings.TrimSpace(parts[1]), strings.TrimSpace(parts[0])
		}
	}
	return trimmed, ""
}

// canonicalizeText sanitizes, parses, resolves every atom's predicate name
// against reg, and re-renders the expression. If text does not parse it is
// returned sanitized but otherwise unchanged, so a single malformed axiom
// does not abort normalization of the rest of the program; the guardrail
// checker is responsible for rejecting it later.
func canonicalizeText(text string, reg *ontology.Registry) string {
	sanitized := dsl.Sanitize(text)
	if sanitized == "" {
		return sanitized
	}
	expr, err := dsl.Parse(sanitized)
	if err != nil {
		return sanitized
	}
	return canonicalizeExpr(expr, reg).String()
}

func canonicalizeExpr(expr dsl.Expr, reg *ontology.Registry) dsl.Expr {
	switch v := expr.(type) {
	case dsl.Atom:
		return dsl.Atom{Pred: reg.ResolvePredicate(v.Pred), Args: v.Args}
	case dsl.And:
		terms := make([]dsl.Expr, len(v.Terms))
		for i, t := range v.Terms {
			terms[i] = canonicalizeExpr(t, reg)
		}
		return dsl.And{Terms: terms}
	case dsl.Or:
		terms := make([]dsl.Expr, len(v.Terms))
		for i, t := range v.Terms {
			terms[i] = canonicalizeExpr(t, reg)
		}
		return dsl.Or{Terms: terms}
	case dsl.Not:
		return dsl.Not{X: canonicalizeExpr(v.X, reg)}
	case dsl.Implies:
		return dsl.Implies{Cond: canonicalizeExpr(v.Cond, reg), Concl: canonicalizeExpr(v.Concl, reg)}
	default:
		return expr
	}
}

// hydrateSorts adds a default Entity-rooted sort declaration for every
// predicate argument sort and constant sort referenced but not declared, so
// the solver driver never has to special-case an undeclared sort.
func hydrateSorts(p *LogicProgram, reg *ontology.Registry) {
	ensure := func(sort string) {
		if sort == "" {
			return
		}
		if _, ok := p.Sorts[sort]; ok {
			return
		}
		if def, ok := reg.Sort(sort); ok && def.Extends != "" {
			p.Sorts[sort] = SortDef{Type: def.Extends}
			return
		}
		p.Sorts[sort] = SortDef{Type: "Entity"}
	}

	for _, pred := range p.Predicates {
		for _, sort := range pred.Args {
			ensure(sort)
		}
	}
	for _, c := range p.Constants {
		ensure(c.Sort)
	}
	if _, ok := p.Sorts["Entity"]; !ok {
		p.Sorts["Entity"] = SortDef{Type: ""}
	}
}

// coerceNumericFacts trims whitespace from every fact argument. The DSL is
// boolean-valued, so even a numeric-looking argument is an opaque constant
// name to the solver, never an arithmetic operand; it is left as text.
func coerceNumericFacts(p *LogicProgram) {
	for pred, tuples := range p.Facts {
		for i, tuple := range tuples {
			for j, arg := range tuple {
				tuple[j] = strings.TrimSpace(arg)
			}
			tuples[i] = tuple
		}
		p.Facts[pred] = tuples
	}
}
