// Package solver compiles a normalized logic program into a fresh Mangle
// Datalog instance — one instance per program, never shared or reused, per
// this system's no-incremental-state evaluation model — and answers
// entailment queries against it.
package solver

import (
	"context"
	"fmt"
	"strings"

	"nslr/internal/dsl"
	"nslr/internal/mangle"
	"nslr/internal/ontology"
	"nslr/internal/program"
)

// Compiled holds the built solver instance for one logic program, along
// with the query it should be evaluated against.
type Compiled struct {
	Engine *mangle.Engine
	Query  *program.Query

	// ShadowOf maps every base predicate that appears negated somewhere in
	// the program to its arity; callers pass it straight to Inconsistent
	// without having to recompute it.
	ShadowOf map[string]int
}

type declMeta struct {
	pred  string
	arity int
}

// Compile builds a brand-new Mangle engine from p: it declares every
// predicate p references (explicitly declared or only used), declares a
// shadow predicate for every predicate that appears negated, asserts every
// ground fact (from p.Facts and from fully-constant axiom conjuncts), and
// compiles every rule's condition/conclusion pair into one or more Mangle
// clauses.
func Compile(p *program.LogicProgram, reg *ontology.Registry) (*Compiled, error) {
	p.EnsureContainers()

	decls, shadowOf, err := collectDeclarations(p, reg)
	if err != nil {
		return nil, fmt.Errorf("collect declarations: %w", err)
	}

	var schema strings.Builder
	for _, d := range decls {
		writeDecl(&schema, d.pred, d.arity)
	}
	for base, arity := range shadowOf {
		writeDecl(&schema, shadowName(base), arity)
	}

	clauses, err := compileClauses(p)
	if err != nil {
		return nil, fmt.Errorf("compile rules: %w", err)
	}
	schema.WriteString(clauses)

	engine := mangle.NewEngine(mangle.DefaultConfig())
	if err := engine.LoadSchemaString(schema.String()); err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}

	facts, err := collectGroundFacts(p)
	if err != nil {
		return nil, fmt.Errorf("collect ground facts: %w", err)
	}
	if err := engine.AddFacts(facts); err != nil {
		return nil, fmt.Errorf("assert facts: %w", err)
	}

	return &Compiled{Engine: engine, Query: p.Query, ShadowOf: shadowOf}, nil
}

// Holds reports whether c's query is derivable in the compiled engine.
func (c *Compiled) Holds(ctx context.Context) (bool, error) {
	if c.Query == nil {
		return false, fmt.Errorf("program has no query")
	}
	args := make([]string, len(c.Query.Args))
	for i, a := range c.Query.Args {
		args[i] = "/" + a
	}
	q := program.Query{Pred: c.Query.Pred, Args: args}
	return c.Engine.Holds(ctx, q.Text())
}

// Inconsistent reports whether any predicate and its Not__ shadow are
// simultaneously derivable for the same ground arguments — this system's
// substitute for a SAT solver's unsatisfiability check.
func (c *Compiled) Inconsistent(shadowOf map[string]int) (bool, []string, error) {
	var conflicting []string
	for base := range shadowOf {
		posFacts, err := c.Engine.GetFacts(base)
		if err != nil {
			continue
		}
		negFacts, err := c.Engine.GetFacts(shadowName(base))
		if err != nil {
			continue
		}
		if factsOverlap(posFacts, negFacts) {
			conflicting = append(conflicting, base)
		}
	}
	return len(conflicting) > 0, conflicting, nil
}

func factsOverlap(a, b []mangle.Fact) bool {
	seen := map[string]bool{}
	for _, f := range a {
		seen[factKey(f)] = true
	}
	for _, f := range b {
		if seen[factKey(f)] {
			return true
		}
	}
	return false
}

func factKey(f mangle.Fact) string {
	s := f.Predicate
	for _, a := range f.Args {
		s += fmt.Sprintf("|%v", a)
	}
	return s
}

func writeDecl(w *strings.Builder, pred string, arity int) {
	vars := make([]string, arity)
	bounds := make([]string, arity)
	for i := range vars {
		vars[i] = fmt.Sprintf("V%d", i+1)
		bounds[i] = "/name"
	}
	fmt.Fprintf(w, "Decl %s(%s) bound [%s].\n", pred, strings.Join(vars, ", "), strings.Join(bounds, ", "))
}

// collectDeclarations walks every predicate occurrence in the program
// (declared, used in facts, rules, axioms, or the query) and returns the
// merged declaration set plus the arity of every predicate that needs a
// Not__ shadow declared.
func collectDeclarations(p *program.LogicProgram, reg *ontology.Registry) ([]declMeta, map[string]int, error) {
	arities := map[string]int{}
	order := []string{}
	remember := func(pred string, arity int) {
		if _, ok := arities[pred]; !ok {
			order = append(order, pred)
		}
		arities[pred] = arity
	}

	for name, meta := range p.Predicates {
		remember(name, len(meta.Args))
	}
	for name, tuples := range p.Facts {
		arity := 0
		if len(tuples) > 0 {
			arity = len(tuples[0])
		}
		if _, ok := arities[name]; !ok {
			remember(name, arity)
		}
	}

	shadowOf := map[string]int{}
	exprs, err := allExpressions(p)
	if err != nil {
		return nil, nil, err
	}
	for _, e := range exprs {
		for _, atom := range collectAtoms(e) {
			if _, ok := arities[atom.Pred]; !ok {
				remember(atom.Pred, len(atom.Args))
			}
		}
		for _, base := range negatedPredicates(e) {
			if arity, ok := arities[base]; ok {
				shadowOf[base] = arity
			}
		}
	}

	decls := make([]declMeta, 0, len(order))
	for _, pred := range order {
		decls = append(decls, declMeta{pred: pred, arity: arities[pred]})
	}
	return decls, shadowOf, nil
}

func collectAtoms(e dsl.Expr) []dsl.Atom {
	var out []dsl.Atom
	var walk func(dsl.Expr)
	walk = func(expr dsl.Expr) {
		switch v := expr.(type) {
		case dsl.Atom:
			out = append(out, v)
		case dsl.And:
			for _, t := range v.Terms {
				walk(t)
			}
		case dsl.Or:
			for _, t := range v.Terms {
				walk(t)
			}
		case dsl.Not:
			walk(v.X)
		case dsl.Implies:
			walk(v.Cond)
			walk(v.Concl)
		}
	}
	walk(e)
	return out
}

// allExpressions parses every axiom, rule condition/conclusion, and the
// query into a dsl.Expr, skipping text that fails to parse (the guardrail
// checker is responsible for rejecting malformed programs before they ever
// reach the solver).
func allExpressions(p *program.LogicProgram) ([]dsl.Expr, error) {
	var texts []string
	texts = append(texts, p.Axioms...)
	for _, r := range p.Rules {
		texts = append(texts, r.Condition, r.Conclusion)
	}
	if p.Query != nil {
		texts = append(texts, p.Query.Text())
	}

	var exprs []dsl.Expr
	for _, t := range texts {
		if strings.TrimSpace(t) == "" {
			continue
		}
		expr, err := dsl.Parse(t)
		if err != nil {
			continue
		}
		exprs = append(exprs, expr)
	}
	return exprs, nil
}

// compileClauses translates every rule's condition/conclusion pair into one
// or more Mangle clauses.
func compileClauses(p *program.LogicProgram) (string, error) {
	var out strings.Builder
	for _, r := range p.Rules {
		condExpr, err := dsl.Parse(r.Condition)
		if err != nil {
			return "", fmt.Errorf("rule condition %q: %w", r.Condition, err)
		}
		conclExpr, err := dsl.Parse(r.Conclusion)
		if err != nil {
			return "", fmt.Errorf("rule conclusion %q: %w", r.Conclusion, err)
		}

		head, err := compileHead(conclExpr, p)
		if err != nil {
			return "", err
		}

		bodies, err := translateBody(condExpr, p)
		if err != nil {
			return "", fmt.Errorf("rule condition %q: %w", r.Condition, err)
		}
		for _, body := range bodies {
			if len(body) == 0 {
				fmt.Fprintf(&out, "%s.\n", head)
				continue
			}
			fmt.Fprintf(&out, "%s :- %s.\n", head, strings.Join(body, ", "))
		}
	}
	return out.String(), nil
}

// compileHead renders a rule's conclusion as a Mangle clause head. A
// negated conclusion targets the shadow predicate instead of the base one.
func compileHead(e dsl.Expr, p *program.LogicProgram) (string, error) {
	switch v := e.(type) {
	case dsl.Atom:
		return atomText(v.Pred, v.Args, p), nil
	case dsl.Not:
		inner, ok := v.X.(dsl.Atom)
		if !ok {
			return "", fmt.Errorf("negated conclusion must be a predicate atom, got %q", v.X)
		}
		return atomText(shadowName(inner.Pred), inner.Args, p), nil
	default:
		return "", fmt.Errorf("rule conclusion must be a single atom, got %q", e)
	}
}

// collectGroundFacts turns p.Facts and every fully-ground axiom conjunct
// into mangle.Fact values ready for assertion. An axiom conjunct with any
// non-constant argument is skipped: axioms describe the known facts of a
// scenario, not universally-quantified rules, so a variable there signals a
// malformed axiom the guardrail checker should have caught.
func collectGroundFacts(p *program.LogicProgram) ([]mangle.Fact, error) {
	var facts []mangle.Fact
	for pred, tuples := range p.Facts {
		for _, tuple := range tuples {
			args := make([]interface{}, len(tuple))
			for i, a := range tuple {
				args[i] = a
			}
			facts = append(facts, mangle.Fact{Predicate: pred, Args: args})
		}
	}

	for _, axiom := range p.Axioms {
		if strings.TrimSpace(axiom) == "" {
			continue
		}
		expr, err := dsl.Parse(axiom)
		if err != nil {
			continue
		}
		for _, conjunct := range dsl.Conjuncts(expr) {
			pred, args, ok := groundAtomArgs(conjunct, p)
			if !ok {
				continue
			}
			ifaceArgs := make([]interface{}, len(args))
			for i, a := range args {
				ifaceArgs[i] = a
			}
			facts = append(facts, mangle.Fact{Predicate: pred, Args: ifaceArgs})
		}
	}
	return facts, nil
}

func groundAtomArgs(e dsl.Expr, p *program.LogicProgram) (pred string, args []string, ok bool) {
	var atom dsl.Atom
	switch v := e.(type) {
	case dsl.Atom:
		atom = v
	case dsl.Not:
		inner, isAtom := v.X.(dsl.Atom)
		if !isAtom {
			return "", nil, false
		}
		atom = dsl.Atom{Pred: shadowName(inner.Pred), Args: inner.Args}
	default:
		return "", nil, false
	}
	for _, a := range atom.Args {
		if !isConstant(a, p) {
			return "", nil, false
		}
	}
	return atom.Pred, atom.Args, true
}
