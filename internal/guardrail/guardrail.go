// Package guardrail statically validates a logic program against the
// canonical ontology before it ever reaches the solver: DSL version, sort
// and predicate declarations, arity, and strict-mode parsing of every rule
// and the query. A program that fails any check is routed to the pipeline's
// fallback branch instead of being asserted into a solver instance.
package guardrail

import (
	"fmt"

	"nslr/internal/dsl"
	"nslr/internal/ontology"
	"nslr/internal/program"
)

// Issue is one static-validation failure, carrying a stable code so callers
// can branch on the kind of problem without parsing Message.
type Issue struct {
	Code    string
	Message string
	Details map[string]interface{}
}

// Result is the outcome of a guardrail run: OK is true only if Issues is
// empty.
type Result struct {
	OK     bool
	Issues []Issue
}

func issue(code, message string, details map[string]interface{}) Issue {
	return Issue{Code: code, Message: message, Details: details}
}

// Run executes every static check against p using reg as the canonical
// vocabulary, in the fixed order the issue codes are listed in: DSL version,
// sorts, constants, predicates (declaration, arity, arg sorts), rules, then
// query.
func Run(p *program.LogicProgram, reg *ontology.Registry) Result {
	var issues []Issue

	if p.DSLVersion != ontology.DSLVersion {
		issues = append(issues, issue(
			"DSL_VERSION_MISMATCH",
			fmt.Sprintf("dsl_version %q is not supported. Expected %q.", p.DSLVersion, ontology.DSLVersion),
			map[string]interface{}{"actual": p.DSLVersion, "expected": ontology.DSLVersion},
		))
	}

	for sortName := range p.Sorts {
		canonical := reg.ResolveSort(sortName)
		if !reg.IsCanonicalSort(canonical) {
			issues = append(issues, issue(
				"UNKNOWN_SORT_DECLARATION",
				fmt.Sprintf("Sort %q is not part of the canonical DSL.", sortName),
				map[string]interface{}{"sort": sortName},
			))
		}
	}

	for constName, c := range p.Constants {
		if c.Sort == "" {
			continue
		}
		canonical := reg.ResolveSort(c.Sort)
		if !reg.IsCanonicalSort(canonical) {
			issues = append(issues, issue(
				"UNKNOWN_CONSTANT_SORT",
				fmt.Sprintf("Constant %q references unknown sort %q.", constName, c.Sort),
				map[string]interface{}{"constant": constName, "sort": c.Sort},
			))
		}
	}

	for predName, meta := range p.Predicates {
		canonical := reg.ResolvePredicate(predName)
		expectedArity, expectedSorts, known := reg.Signature(canonical)
		if !known {
			issues = append(issues, issue(
				"UNKNOWN_PREDICATE_DECLARATION",
				fmt.Sprintf("Predicate %q is not part of the canonical DSL.", predName),
				map[string]interface{}{"predicate": predName},
			))
			continue
		}

		actualSorts := meta.Args
		if len(actualSorts) == 0 {
			actualSorts = expectedSorts
		}
		if expectedArity != len(actualSorts) {
			issues = append(issues, issue(
				"PREDICATE_ARITY_MISMATCH",
				fmt.Sprintf("Predicate %q arity mismatch (expected %d, got %d).", canonical, expectedArity, len(actualSorts)),
				map[string]interface{}{"predicate": canonical, "expected": expectedArity, "actual": len(actualSorts)},
			))
		}

		for _, sortName := range actualSorts {
			canonicalSort := reg.ResolveSort(sortName)
			if !reg.IsCanonicalSort(canonicalSort) {
				issues = append(issues, issue(
					"PREDICATE_SORT_UNKNOWN",
					fmt.Sprintf("Predicate %q references unknown sort %q.", canonical, sortName),
					map[string]interface{}{"predicate": canonical, "sort": sortName},
				))
			}
		}
	}

	for _, r := range p.Rules {
		if err := parseAndValidateStrict(r.Condition, reg); err != nil {
			issues = append(issues, ruleIssue(err, r.Condition))
		}
		if err := parseAndValidateStrict(r.Conclusion, reg); err != nil {
			issues = append(issues, ruleIssue(err, r.Conclusion))
		}
	}

	if p.Query != nil {
		queryText := p.Query.Text()
		if err := parseAndValidateStrict(queryText, reg); err != nil {
			issues = append(issues, issue(
				"QUERY_PARSE_ERROR",
				err.Error(),
				map[string]interface{}{"context": "parse_query"},
			))
		}
	}

	return Result{OK: len(issues) == 0, Issues: issues}
}

func parseAndValidateStrict(text string, reg *ontology.Registry) error {
	if text == "" {
		return nil
	}
	expr, err := dsl.Parse(text)
	if err != nil {
		return err
	}
	return dsl.ValidateStrict(expr, reg)
}

func ruleIssue(err error, text string) Issue {
	code := "RULE_PARSE_ERROR"
	if dslErr, ok := err.(*dsl.Error); ok && dslErr.Kind == dsl.KindUnknownPredicate {
		code = "RULE_UNKNOWN_PREDICATE"
	}
	return issue(code, err.Error(), map[string]interface{}{"context": "parse_rules", "text": text})
}
