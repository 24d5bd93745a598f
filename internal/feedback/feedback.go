// Package feedback classifies a solved program's outcome and, when the
// query is not entailed, computes which premises are missing.
package feedback

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"nslr/internal/dsl"
	"nslr/internal/program"
	"nslr/internal/solver"
)

// Status is one of the four outcomes a solved program can land in.
type Status string

const (
	StatusConsistentEntails      Status = "consistent_entails"
	StatusConsistentNoEntailment Status = "consistent_no_entailment"
	StatusInconsistent           Status = "inconsistent"
	StatusInvalidLogicProgram    Status = "invalid_logic_program"
)

// Feedback is the structured result handed back to the refinement stage.
type Feedback struct {
	Status            Status
	ConflictingAxioms []string
	MissingLinks      []string
	HumanSummary      string
}

// Build evaluates a compiled program and classifies the outcome. shadowOf
// is the base-predicate -> arity map solver.Compile used to declare Not__
// shadow predicates; it is reused here to test for inconsistency.
func Build(ctx context.Context, compiled *solver.Compiled, p *program.LogicProgram, shadowOf map[string]int) (Feedback, error) {
	inconsistent, conflicting, err := compiled.Inconsistent(shadowOf)
	if err != nil {
		return Feedback{}, fmt.Errorf("check inconsistency: %w", err)
	}
	if inconsistent {
		axioms := conflictingRuleIndices(p, conflicting)
		return Feedback{
			Status:            StatusInconsistent,
			ConflictingAxioms: axioms,
			HumanSummary:      "Sono presenti assiomi contraddittori.",
		}, nil
	}

	if p.Query == nil || p.Query.Pred == "" {
		return Feedback{
			Status:       StatusConsistentNoEntailment,
			HumanSummary: "Il sistema è coerente ma non è stata richiesta alcuna conclusione.",
		}, nil
	}

	entailed, err := compiled.Holds(ctx)
	if err != nil {
		return Feedback{}, fmt.Errorf("evaluate query: %w", err)
	}
	if entailed {
		return Feedback{
			Status:       StatusConsistentEntails,
			HumanSummary: "Il sistema è coerente e implica la conclusione.",
		}, nil
	}

	missing, err := computeMissingLinks(ctx, compiled, p)
	if err != nil {
		return Feedback{}, fmt.Errorf("compute missing links: %w", err)
	}
	return Feedback{
		Status:       StatusConsistentNoEntailment,
		MissingLinks: missing,
		HumanSummary: "Il sistema è coerente ma la conclusione non è dimostrabile.",
	}, nil
}

// conflictingRuleIndices names the rules implicated in an inconsistency.
// Mangle has no notion of a SAT solver's assertion stack to blame, so this
// falls straight to the rule-index heuristic the original used as its
// second fallback tier.
func conflictingRuleIndices(p *program.LogicProgram, conflictingPredicates []string) []string {
	if len(p.Rules) == 0 {
		return []string{"conflict_0"}
	}
	predSet := map[string]bool{}
	for _, pred := range conflictingPredicates {
		predSet[pred] = true
	}
	var out []string
	for i, r := range p.Rules {
		pred := predicateOf(r.Conclusion)
		if predSet[pred] {
			out = append(out, fmt.Sprintf("rule_%d", i))
		}
	}
	if len(out) == 0 {
		for i := range p.Rules {
			out = append(out, fmt.Sprintf("rule_%d", i))
		}
	}
	return out
}

func predicateOf(atomText string) string {
	if idx := strings.Index(atomText, "("); idx >= 0 {
		return strings.TrimSpace(atomText[:idx])
	}
	return strings.TrimSpace(atomText)
}

// rulesConcluding returns every rule whose conclusion matches target atom
// text exactly, or whose conclusion's predicate matches target's predicate
// when no exact match exists.
func rulesConcluding(p *program.LogicProgram, target string) []program.Rule {
	targetPred := predicateOf(target)
	var exact, byPred []program.Rule
	for _, r := range p.Rules {
		if strings.TrimSpace(r.Conclusion) == strings.TrimSpace(target) {
			exact = append(exact, r)
			continue
		}
		if predicateOf(r.Conclusion) == targetPred {
			byPred = append(byPred, r)
		}
	}
	if len(exact) > 0 {
		return exact
	}
	return byPred
}

// computeMissingLinks splits every conjunct out of the condition of each
// rule concluding the query, substitutes the rule's own variables with the
// query's concrete arguments (by position, matched against the rule's
// conclusion atom), and checks each conjunct's individual entailment
// concurrently. A conjunct that does not entail contributes its bare
// predicate name to the result, deduplicated and excluding the query's own
// predicate, matching the coarser granularity of the material this
// component is grounded on.
func computeMissingLinks(ctx context.Context, compiled *solver.Compiled, p *program.LogicProgram) ([]string, error) {
	target := p.Query.Text()
	rules := rulesConcluding(p, target)
	if len(rules) == 0 {
		return []string{p.Query.Pred}, nil
	}

	type candidate struct {
		pred string
		text string
	}
	var candidates []candidate
	for _, r := range rules {
		if strings.TrimSpace(r.Condition) == "" {
			continue
		}
		subst := substitutionFromConclusion(r.Conclusion, p.Query.Args)
		condExpr, err := dsl.Parse(r.Condition)
		if err != nil {
			continue
		}
		for _, conjunct := range dsl.Conjuncts(condExpr) {
			atom, ok := conjunct.(dsl.Atom)
			if !ok {
				continue
			}
			if atom.Pred == p.Query.Pred {
				continue
			}
			candidates = append(candidates, candidate{
				pred: atom.Pred,
				text: substitutedAtomText(atom, subst),
			})
		}
	}

	results := make([]bool, len(candidates))
	group, gctx := errgroup.WithContext(ctx)
	for i, c := range candidates {
		i, c := i, c
		group.Go(func() error {
			holds, err := compiled.Engine.Holds(gctx, c.text)
			if err != nil {
				results[i] = false
				return nil
			}
			results[i] = holds
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	seen := map[string]bool{}
	var missing []string
	for i, c := range candidates {
		if results[i] {
			continue
		}
		if seen[c.pred] {
			continue
		}
		seen[c.pred] = true
		missing = append(missing, c.pred)
	}
	return missing, nil
}

func substitutionFromConclusion(conclusionText string, queryArgs []string) map[string]string {
	subst := map[string]string{}
	expr, err := dsl.Parse(conclusionText)
	if err != nil {
		return subst
	}
	atom, ok := expr.(dsl.Atom)
	if !ok {
		return subst
	}
	for i, v := range atom.Args {
		if i < len(queryArgs) {
			subst[v] = queryArgs[i]
		}
	}
	return subst
}

func substitutedAtomText(atom dsl.Atom, subst map[string]string) string {
	if len(atom.Args) == 0 {
		return atom.Pred
	}
	args := make([]string, len(atom.Args))
	for i, a := range atom.Args {
		if mapped, ok := subst[a]; ok {
			args[i] = "/" + mapped
		} else {
			args[i] = "/" + a
		}
	}
	return atom.Pred + "(" + strings.Join(args, ", ") + ")"
}
