package dsl

import "nslr/internal/ontology"

// Declaration is an inferred or confirmed predicate signature, either looked
// up in the registry or synthesized for an unrecognized predicate under
// permissive auto-declaration.
type Declaration struct {
	Pred  string
	Arity int
	Sorts []string
}

// ValidateStrict requires every atom's predicate to resolve to a registry
// entry with a matching arity. It is used on guardrail-checked and
// refinement-stage output, where unknown or malformed predicates must fail
// fast rather than be silently accepted.
func ValidateStrict(expr Expr, reg *ontology.Registry) error {
	var firstErr error
	walkAtoms(expr, func(a Atom) {
		if firstErr != nil {
			return
		}
		resolved := reg.ResolvePredicate(a.Pred)
		arity, _, ok := reg.Signature(resolved)
		if !ok {
			firstErr = unknownPredicateErrorf("unknown predicate %q", a.Pred)
			return
		}
		if arity != len(a.Args) {
			firstErr = arityErrorf("predicate %q expects %d args, got %d", a.Pred, arity, len(a.Args))
		}
	})
	return firstErr
}

// AutoDeclare resolves every distinct atom predicate in expr against reg and
// returns one Declaration per predicate, in first-seen order. Predicates the
// registry does not recognize are not rejected; they are given a synthetic
// all-Entity signature sized to the arity observed at the call site, the
// permissive behavior used on initial extraction and ad hoc queries where a
// canonicalization miss should not abort the pipeline.
func AutoDeclare(expr Expr, reg *ontology.Registry) []Declaration {
	var decls []Declaration
	seen := map[string]bool{}
	walkAtoms(expr, func(a Atom) {
		resolved := reg.ResolvePredicate(a.Pred)
		if seen[resolved] {
			return
		}
		seen[resolved] = true
		if arity, sorts, ok := reg.Signature(resolved); ok {
			decls = append(decls, Declaration{Pred: resolved, Arity: arity, Sorts: sorts})
			return
		}
		sorts := make([]string, len(a.Args))
		for i := range sorts {
			sorts[i] = "Entity"
		}
		decls = append(decls, Declaration{Pred: a.Pred, Arity: len(a.Args), Sorts: sorts})
	})
	return decls
}

func walkAtoms(expr Expr, visit func(Atom)) {
	switch v := expr.(type) {
	case Atom:
		visit(v)
	case And:
		for _, t := range v.Terms {
			walkAtoms(t, visit)
		}
	case Or:
		for _, t := range v.Terms {
			walkAtoms(t, visit)
		}
	case Not:
		walkAtoms(v.X, visit)
	case Implies:
		walkAtoms(v.Cond, visit)
		walkAtoms(v.Concl, visit)
	}
}
