package feedback

import (
	"context"
	"testing"

	"nslr/internal/ontology"
	"nslr/internal/program"
	"nslr/internal/solver"
)

func mustRegistry(t *testing.T) *ontology.Registry {
	t.Helper()
	reg, err := ontology.Default()
	if err != nil {
		t.Fatalf("ontology.Default() error = %v", err)
	}
	return reg
}

func TestBuildConsistentEntails(t *testing.T) {
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
	p.Rules = []program.Rule{{Condition: "Debitore(x) and Creditore(y)", Conclusion: "HaObbligo(x, y, c1)"}}
	p.Query = &program.Query{Pred: "HaObbligo", Args: []string{"mario", "luigi", "c1"}}

	compiled, err := solver.Compile(p, reg)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}

	fb, err := Build(context.Background(), compiled, p, nil)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if fb.Status != StatusConsistentEntails {
		t.Fatalf("got status %q, want consistent_entails", fb.Status)
	}
}

func TestBuildMissingLinks(t *testing.T) {
	reg := mustRegistry(t)
	p := program.New()
	p.Predicates["Debitore"] = program.PredicateDef{Args: []string{"Debitore"}}
	p.Predicates["Creditore"] = program.PredicateDef{Args: []string{"Creditore"}}
	p.Predicates["HaObbligo"] = program.PredicateDef{Args: []string{"Debitore", "Creditore", "Contratto"}}
	p.Constants["mario"] = program.ConstantDef{Sort: "Debitore"}
	p.Constants["luigi"] = program.ConstantDef{Sort: "Creditore"}
	p.Constants["c1"] = program.ConstantDef{Sort: "Contratto"}
	p.Facts["Debitore"] = [][]string{{"mario"}}
	// Creditore(luigi) deliberately missing.
	p.Rules = []program.Rule{{Condition: "Debitore(x) and Creditore(y)", Conclusion: "HaObbligo(x, y, c1)"}}
	p.Query = &program.Query{Pred: "HaObbligo", Args: []string{"mario", "luigi", "c1"}}

	compiled, err := solver.Compile(p, reg)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}

	fb, err := Build(context.Background(), compiled, p, nil)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if fb.Status != StatusConsistentNoEntailment {
		t.Fatalf("got status %q, want consistent_no_entailment", fb.Status)
	}
	if len(fb.MissingLinks) != 1 || fb.MissingLinks[0] != "Creditore" {
		t.Fatalf("got missing links %v, want [Creditore]", fb.MissingLinks)
	}
}

func TestBuildNoQueryIsConsistentNoEntailment(t *testing.T) {
	reg := mustRegistry(t)
	p := program.New()
	p.Predicates["Debitore"] = program.PredicateDef{Args: []string{"Debitore"}}

	compiled, err := solver.Compile(p, reg)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}

	fb, err := Build(context.Background(), compiled, p, nil)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if fb.Status != StatusConsistentNoEntailment {
		t.Fatalf("got status %q, want consistent_no_entailment", fb.Status)
	}
}
