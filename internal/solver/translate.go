package solver

import (
	"fmt"
	"strings"
	"unicode"

	"nslr/internal/dsl"
	"nslr/internal/program"
)

// shadowPrefix names the synthesized predicate that represents the negation
// of a base predicate. Mangle's Datalog evaluation is monotonic and has no
// built-in negation-as-failure over arbitrary bodies, so a negated conjunct
// "not Pred(args)" is compiled into a reference to "Not__Pred(args)" — a
// predicate this package declares and populates alongside its positive
// counterpart. A program is inconsistent when both a predicate and its
// shadow become derivable for the same arguments.
const shadowPrefix = "Not__"

func shadowName(pred string) string { return shadowPrefix + pred }

// isConstant reports whether term names a declared program constant or
// appears as an argument somewhere in the program's ground facts; anything
// else is treated as a universally-quantified rule variable.
func isConstant(term string, p *program.LogicProgram) bool {
	if _, ok := p.Constants[term]; ok {
		return true
	}
	for _, tuples := range p.Facts {
		for _, tuple := range tuples {
			for _, arg := range tuple {
				if arg == term {
					return true
				}
			}
		}
	}
	return false
}

// mangleTerm renders a single DSL argument as a Mangle term: a declared
// constant becomes a /name, anything else becomes an uppercase-initial
// Mangle variable.
func mangleTerm(term string, p *program.LogicProgram) string {
	if isConstant(term, p) {
		return "/" + term
	}
	return capitalize(term)
}

func capitalize(s string) string {
	if s == "" {
		return "X"
	}
	runes := []rune(s)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

func atomText(pred string, args []string, p *program.LogicProgram) string {
	if len(args) == 0 {
		return pred + "()"
	}
	terms := make([]string, len(args))
	for i, a := range args {
		terms[i] = mangleTerm(a, p)
	}
	return pred + "(" + strings.Join(terms, ", ") + ")"
}

// translateBody compiles a DSL expression into one or more alternative
// conjunctive rule bodies (a disjunction of conjunctions): each []string is
// a comma-joined list of Mangle atoms for one clause body. A top-level Or
// expands into multiple clauses sharing the same head; a top-level And is
// the cross product of its terms' alternative bodies. Negation is only
// supported directly over an atom, compiled to the atom's shadow predicate.
func translateBody(e dsl.Expr, p *program.LogicProgram) ([][]string, error) {
	switch v := e.(type) {
	case dsl.Atom:
		return [][]string{{atomText(v.Pred, v.Args, p)}}, nil

	case dsl.Not:
		inner, ok := v.X.(dsl.Atom)
		if !ok {
			return nil, fmt.Errorf("negation is only supported directly over a predicate atom, got %q", v.X)
		}
		return [][]string{{atomText(shadowName(inner.Pred), inner.Args, p)}}, nil

	case dsl.BoolLit:
		if v.Value {
			return [][]string{{}}, nil
		}
		return nil, fmt.Errorf("a literal false term cannot be compiled into a rule body")

	case dsl.And:
		combos := [][]string{{}}
		for _, term := range v.Terms {
			subBodies, err := translateBody(term, p)
			if err != nil {
				return nil, err
			}
			var next [][]string
			for _, combo := range combos {
				for _, sub := range subBodies {
					merged := append(append([]string{}, combo...), sub...)
					next = append(next, merged)
				}
			}
			combos = next
		}
		return combos, nil

	case dsl.Or:
		var all [][]string
		for _, term := range v.Terms {
			sub, err := translateBody(term, p)
			if err != nil {
				return nil, err
			}
			all = append(all, sub...)
		}
		return all, nil

	case dsl.Implies:
		return nil, fmt.Errorf("nested implication is not supported inside a rule body")

	default:
		return nil, fmt.Errorf("unsupported expression type %T", e)
	}
}

// negatedPredicates returns every predicate name that appears as the
// operand of a top-level Not anywhere in expr, so the caller can declare the
// matching shadow predicate.
func negatedPredicates(e dsl.Expr) []string {
	var out []string
	var walk func(dsl.Expr)
	walk = func(expr dsl.Expr) {
		switch v := expr.(type) {
		case dsl.Not:
			if atom, ok := v.X.(dsl.Atom); ok {
				out = append(out, atom.Pred)
			}
		case dsl.And:
			for _, t := range v.Terms {
				walk(t)
			}
		case dsl.Or:
			for _, t := range v.Terms {
				walk(t)
			}
		case dsl.Implies:
			walk(v.Cond)
			walk(v.Concl)
		}
	}
	walk(e)
	return out
}
