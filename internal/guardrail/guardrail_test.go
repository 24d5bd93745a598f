package guardrail

import (
	"testing"

	"nslr/internal/ontology"
	"nslr/internal/program"
)

func mustRegistry(t *testing.T) *ontology.Registry {
	t.Helper()
	reg, err := ontology.Default()
	if err != nil {
		t.Fatalf("ontology.Default() error = %v", err)
	}
	return reg
}

func validProgram() *program.LogicProgram {
	p := program.New()
	p.Sorts["Debitore"] = program.SortDef{Type: "Soggetto"}
	p.Sorts["Creditore"] = program.SortDef{Type: "Soggetto"}
	p.Sorts["Contratto"] = program.SortDef{Type: "Entity"}
	p.Predicates["HaObbligo"] = program.PredicateDef{Args: []string{"Debitore", "Creditore", "Contratto"}}
	p.Rules = []program.Rule{{
		Condition:  "Debitore(mario) and Creditore(luigi)",
		Conclusion: "HaObbligo(mario, luigi, c1)",
	}}
	p.Query = &program.Query{Pred: "HaObbligo", Args: []string{"mario", "luigi", "c1"}}
	return p
}

func TestRunOKForValidProgram(t *testing.T) {
	reg := mustRegistry(t)
	result := Run(validProgram(), reg)
	if !result.OK {
		t.Fatalf("expected OK, got issues: %+v", result.Issues)
	}
}

func TestRunDetectsVersionMismatch(t *testing.T) {
	reg := mustRegistry(t)
	p := validProgram()
	p.DSLVersion = "1.0"
	result := Run(p, reg)
	if result.OK {
		t.Fatal("expected DSL_VERSION_MISMATCH")
	}
	assertHasCode(t, result.Issues, "DSL_VERSION_MISMATCH")
}

func TestRunDetectsUnknownSortDeclaration(t *testing.T) {
	reg := mustRegistry(t)
	p := validProgram()
	p.Sorts["Marziano"] = program.SortDef{Type: "Entity"}
	result := Run(p, reg)
	assertHasCode(t, result.Issues, "UNKNOWN_SORT_DECLARATION")
}

func TestRunDetectsUnknownPredicateDeclaration(t *testing.T) {
	reg := mustRegistry(t)
	p := validProgram()
	p.Predicates["NonEsiste"] = program.PredicateDef{Args: []string{"Entity"}}
	result := Run(p, reg)
	assertHasCode(t, result.Issues, "UNKNOWN_PREDICATE_DECLARATION")
}

func TestRunDetectsPredicateArityMismatch(t *testing.T) {
	reg := mustRegistry(t)
	p := validProgram()
	p.Predicates["HaObbligo"] = program.PredicateDef{Args: []string{"Debitore", "Creditore"}}
	result := Run(p, reg)
	assertHasCode(t, result.Issues, "PREDICATE_ARITY_MISMATCH")
}

func TestRunDetectsRuleParseError(t *testing.T) {
	reg := mustRegistry(t)
	p := validProgram()
	p.Rules[0].Condition = "(and Debitore(mario)"
	result := Run(p, reg)
	assertHasCode(t, result.Issues, "RULE_PARSE_ERROR")
}

func TestRunDetectsRuleUnknownPredicate(t *testing.T) {
	reg := mustRegistry(t)
	p := validProgram()
	p.Rules[0].Condition = "NonEsiste(mario)"
	result := Run(p, reg)
	assertHasCode(t, result.Issues, "RULE_UNKNOWN_PREDICATE")
}

func TestRunDetectsQueryParseError(t *testing.T) {
	reg := mustRegistry(t)
	p := validProgram()
	p.Query = &program.Query{Pred: "NonEsiste", Args: []string{"x"}}
	result := Run(p, reg)
	assertHasCode(t, result.Issues, "QUERY_PARSE_ERROR")
}

func assertHasCode(t *testing.T, issues []Issue, code string) {
	t.Helper()
	for _, i := range issues {
		if i.Code == code {
			return
		}
	}
	t.Fatalf("expected issue code %q, got %+v", code, issues)
}
