package solver

import (
	"context"
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

func TestCompileAndHoldsEntailedQuery(t *testing.T) {
	reg := mustRegistry(t)
	p := program.New()
	p.Predicates["Debitore"] = program.PredicateDef{Args: []string{"Debitore"}}
	p.Predicates["Creditore"] = program.PredicateDef{Args: []string{"Creditore"}}
	p.Predicates["HaObbligo"] = program.PredicateDef{Args: []string{"Debitore", "Creditore", "Contratto"}}
	p.Constants["mario"] = program.ConstantDef{Sort: "Debitore"}
	p.Constants["luigi"] = program.ConstantDef{Sort: "Creditore"}
	p.Constants["c1"] = program.ConstantDef{Sort: "Contratto"}
	p.Facts["Debitore"] = [][]string{{"mario"}}
	p.Facts["Creditore"] = [][]string{{"luigi"}}
	p.Rules = []program.Rule{{
		Condition:  "Debitore(x) and Creditore(y)",
		Conclusion: "HaObbligo(x, y, c1)",
	}}
	p.Query = &program.Query{Pred: "HaObbligo", Args: []string{"mario", "luigi", "c1"}}

	compiled, err := Compile(p, reg)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}

	holds, err := compiled.Holds(context.Background())
	if err != nil {
		t.Fatalf("Holds() error = %v", err)
	}
	if !holds {
		t.Fatal("expected HaObbligo(mario, luigi, c1) to be entailed")
	}
}

func TestCompileQueryNotEntailed(t *testing.T) {
	reg := mustRegistry(t)
	p := program.New()
	p.Predicates["Debitore"] = program.PredicateDef{Args: []string{"Debitore"}}
	p.Constants["mario"] = program.ConstantDef{Sort: "Debitore"}
	p.Query = &program.Query{Pred: "Debitore", Args: []string{"carlo"}}

	compiled, err := Compile(p, reg)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	holds, err := compiled.Holds(context.Background())
	if err != nil {
		t.Fatalf("Holds() error = %v", err)
	}
	if holds {
		t.Fatal("expected Debitore(carlo) to not be entailed")
	}
}

func TestCompileGroundAxiomFacts(t *testing.T) {
	reg := mustRegistry(t)
	p := program.New()
	p.Predicates["Debitore"] = program.PredicateDef{Args: []string{"Debitore"}}
	p.Constants["mario"] = program.ConstantDef{Sort: "Debitore"}
	p.Axioms = []string{"Debitore(mario)"}
	p.Query = &program.Query{Pred: "Debitore", Args: []string{"mario"}}

	compiled, err := Compile(p, reg)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	holds, err := compiled.Holds(context.Background())
	if err != nil {
		t.Fatalf("Holds() error = %v", err)
	}
	if !holds {
		t.Fatal("expected axiom-asserted fact Debitore(mario) to be entailed")
	}
}
