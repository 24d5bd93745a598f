package pipeline

import (
	"context"
	"fmt"
	"strings"

	"nslr/internal/dsl"
	"nslr/internal/feedback"
	"nslr/internal/program"
	"nslr/internal/solver"
)

// evaluateWithFactSynthesis compiles p and builds its feedback, and when the
// result is consistent-but-unproven with named missing links, tries
// injecting a ground fact for each missing predicate and re-evaluating —
// up to FactSynthesisMaxRounds times — before giving up and returning
// whatever feedback it last computed. This turns "the rule exists but
// nobody asserted its premises" into a provable program without another
// LLM round trip.
func (p *Pipeline) evaluateWithFactSynthesis(ctx context.Context, prog *program.LogicProgram) (feedback.Feedback, error) {
	var last feedback.Feedback
	for attempt := 0; ; attempt++ {
		compiled, err := solver.Compile(prog, p.reg)
		if err != nil {
			return feedback.Feedback{}, err
		}
		fb, err := feedback.Build(ctx, compiled, prog, compiled.ShadowOf)
		if err != nil {
			return feedback.Feedback{}, err
		}
		last = fb

		if len(fb.MissingLinks) == 0 || fb.Status != feedback.StatusConsistentNoEntailment || attempt >= p.cfg.FactSynthesisMaxRounds {
			return last, nil
		}
		if !p.synthesizeMissingFacts(prog, fb.MissingLinks) {
			return last, nil
		}
	}
}

// synthesizeMissingFacts appends one ground axiom per missing-link
// predicate that is actually declared on prog, using a freshly minted
// constant per argument position when no existing constant of the right
// sort is available. Reports whether any axiom was actually added, so the
// caller knows whether another evaluation round is worth the cost.
func (p *Pipeline) synthesizeMissingFacts(prog *program.LogicProgram, missingLinks []string) bool {
	if len(missingLinks) == 0 {
		return false
	}
	prog.EnsureContainers()

	existing := map[string]bool{}
	for _, axiom := range prog.Axioms {
		existing[strings.TrimSpace(axiom)] = true
	}

	added := false
	for _, raw := range missingLinks {
		canonical := p.reg.ResolvePredicate(raw)
		meta, ok := prog.Predicates[canonical]
		if !ok {
			continue
		}

		args := make([]string, 0, len(meta.Args))
		for idx, sortName := range meta.Args {
			args = append(args, ensureConstantForSort(prog, sortName, idx))
		}

		var formula string
		if len(args) > 0 {
			formula = fmt.Sprintf("%s(%s)", canonical, strings.Join(args, ", "))
		} else {
			formula = canonical
		}
		if existing[formula] {
			continue
		}
		prog.Axioms = append(prog.Axioms, formula)
		existing[formula] = true
		added = true
	}
	return added
}

// ensureConstantForSort returns the name of an existing constant of
// targetSort if one exists, else mints and declares a fresh one named after
// the sort and the argument position it fills.
func ensureConstantForSort(prog *program.LogicProgram, targetSort string, position int) string {
	if targetSort == "" {
		targetSort = "Entity"
	}
	for name, def := range prog.Constants {
		if def.Sort == targetSort {
			return name
		}
	}
	base := strings.ToLower(targetSort)
	suffix := position + 1
	candidate := fmt.Sprintf("%s_%d", base, suffix)
	for {
		if _, taken := prog.Constants[candidate]; !taken {
			break
		}
		suffix++
		candidate = fmt.Sprintf("%s_%d", base, suffix)
	}
	prog.Constants[candidate] = program.ConstantDef{Sort: targetSort}
	return candidate
}

// collectFactPredicates returns, in first-seen order, every predicate name
// referenced by prog's axioms, rules, and query — the "symbolic
// requirements satisfied" highlighted back to the caller in the final
// answer.
func collectFactPredicates(prog *program.LogicProgram) []string {
	var ordered []string
	seen := map[string]bool{}
	harvest := func(text string) {
		if strings.TrimSpace(text) == "" {
			return
		}
		expr, err := dsl.Parse(text)
		if err != nil {
			return
		}
		for _, atom := range atomsIn(expr) {
			if !seen[atom.Pred] {
				seen[atom.Pred] = true
				ordered = append(ordered, atom.Pred)
			}
		}
	}

	for _, axiom := range prog.Axioms {
		harvest(axiom)
	}
	for _, r := range prog.Rules {
		harvest(r.Condition)
		harvest(r.Conclusion)
	}
	if prog.Query != nil {
		harvest(prog.Query.Text())
	}
	return ordered
}

func atomsIn(e dsl.Expr) []dsl.Atom {
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

// augmentFinalAnswer appends a deterministic "symbolic requirements
// satisfied" summary line naming every predicate predicates contains,
// unless the answer already contains that summary, compared ignoring case.
func augmentFinalAnswer(answer string, predicates []string) string {
	unique := make([]string, 0, len(predicates))
	seen := map[string]bool{}
	for _, pred := range predicates {
		if pred == "" || seen[pred] {
			continue
		}
		seen[pred] = true
		unique = append(unique, pred)
	}
	if len(unique) == 0 {
		return answer
	}
	summary := "Requisiti simbolici soddisfatti: " + strings.Join(unique, ", ") + "."
	if strings.Contains(strings.ToLower(answer), strings.ToLower(summary)) {
		return answer
	}
	separator := ""
	if strings.TrimSpace(answer) != "" {
		separator = "\n\n"
	}
	return answer + separator + summary
}
