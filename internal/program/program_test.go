package program

import (
	"testing"

	"nslr/internal/ontology"
)

func mustRegistry(t *testing.T) *ontology.Registry {
	t.Helper()
	reg, err := ontology.Default()
	if err != nil {
		t.Fatalf("ontology.Default() error = %v", err)
	}
	return reg
}

func TestEnsureContainersFillsNilFields(t *testing.T) {
	p := &LogicProgram{}
	p.EnsureContainers()
	if p.DSLVersion != "2.1" {
		t.Fatalf("got dsl_version %q, want 2.1", p.DSLVersion)
	}
	if p.Sorts == nil || p.Constants == nil || p.Predicates == nil || p.Facts == nil {
		t.Fatal("expected all map fields initialized")
	}
	if p.Axioms == nil || p.Rules == nil {
		t.Fatal("expected all slice fields initialized")
	}
}

func TestNormalizeSplitsRuleArrowText(t *testing.T) {
	reg := mustRegistry(t)
	p := New()
	p.Rules = []Rule{{Condition: "Debitore(x) and Creditore(y) -> HaObbligo(x, y, c)"}}
	Normalize(p, reg)

	if p.Rules[0].Condition != "(and Debitore(x) Creditore(y))" {
		t.Fatalf("got condition %q", p.Rules[0].Condition)
	}
	if p.Rules[0].Conclusion != "HaObbligo(x, y, c)" {
		t.Fatalf("got conclusion %q", p.Rules[0].Conclusion)
	}
}

func TestNormalizeSplitsPrologRule(t *testing.T) {
	reg := mustRegistry(t)
	p := New()
	p.Rules = []Rule{{Condition: "HaObbligo(x, y, c) :- Debitore(x) and Creditore(y)"}}
	Normalize(p, reg)

	if p.Rules[0].Conclusion != "HaObbligo(x, y, c)" {
		t.Fatalf("got conclusion %q", p.Rules[0].Conclusion)
	}
	if p.Rules[0].Condition != "(and Debitore(x) Creditore(y))" {
		t.Fatalf("got condition %q", p.Rules[0].Condition)
	}
}

func TestNormalizeCanonicalizesPredicateSynonyms(t *testing.T) {
	reg := mustRegistry(t)
	p := New()
	p.Axioms = []string{"responsabilitacontrattuale(mario, luigi, c1)"}
	Normalize(p, reg)

	if p.Axioms[0] != "ResponsabilitaContrattuale(mario, luigi, c1)" {
		t.Fatalf("got axiom %q", p.Axioms[0])
	}
}

func TestNormalizeHydratesDefaultSorts(t *testing.T) {
	reg := mustRegistry(t)
	p := New()
	p.Predicates["HaObbligo"] = PredicateDef{Args: []string{"Debitore", "Creditore", "Contratto"}}
	Normalize(p, reg)

	for _, want := range []string{"Debitore", "Creditore", "Contratto", "Entity"} {
		if _, ok := p.Sorts[want]; !ok {
			t.Fatalf("expected sort %q hydrated, got %v", want, p.Sorts)
		}
	}
}

func TestInjectCanonicalRuleContrattoValido(t *testing.T) {
	p := New()
	p.Query = &Query{Pred: "ContrattoValido", Args: []string{"mario", "c1"}}
	InjectCanonicalRules(p)

	if len(p.Rules) != 1 {
		t.Fatalf("got %d rules, want 1", len(p.Rules))
	}
	if p.Rules[0].Conclusion != "ContrattoValido(mario, c1)" {
		t.Fatalf("got conclusion %q", p.Rules[0].Conclusion)
	}
	want := "(and Consenso(mario, c1) CapacitaContrattuale(mario) CausaLegittima(c1) OggettoDeterminato(c1) FormaPrescritta(c1))"
	if p.Rules[0].Condition != want {
		t.Fatalf("got condition %q, want %q", p.Rules[0].Condition, want)
	}
}

func TestInjectCanonicalRuleSkippedWhenRuleAlreadyExists(t *testing.T) {
	p := New()
	p.Query = &Query{Pred: "ContrattoValido", Args: []string{"mario", "c1"}}
	p.Rules = []Rule{{Condition: "true", Conclusion: "ContrattoValido(mario, c1)"}}
	InjectCanonicalRules(p)

	if len(p.Rules) != 1 {
		t.Fatalf("got %d rules, want 1 (no injection)", len(p.Rules))
	}
	if p.Rules[0].Condition != "true" {
		t.Fatalf("expected existing rule preserved, got %q", p.Rules[0].Condition)
	}
}

func TestInjectCanonicalRuleContrattoAdesioneAllocatesConstants(t *testing.T) {
	p := New()
	p.Query = &Query{Pred: "ContrattoAdesione", Args: []string{"c1"}}
	InjectCanonicalRules(p)

	if len(p.Rules) != 1 {
		t.Fatalf("got %d rules, want 1", len(p.Rules))
	}
	if len(p.Constants) != 2 {
		t.Fatalf("got %d constants, want 2", len(p.Constants))
	}
	foundProfessionista, foundConsumatore := false, false
	for _, c := range p.Constants {
		switch c.Sort {
		case "Professionista":
			foundProfessionista = true
		case "Consumatore":
			foundConsumatore = true
		}
	}
	if !foundProfessionista || !foundConsumatore {
		t.Fatalf("expected Professionista and Consumatore constants, got %v", p.Constants)
	}
}

func TestInjectCanonicalRuleNoOpForUnknownPredicate(t *testing.T) {
	p := New()
	p.Query = &Query{Pred: "NonEsiste", Args: []string{"x"}}
	InjectCanonicalRules(p)

	if len(p.Rules) != 0 {
		t.Fatalf("got %d rules, want 0", len(p.Rules))
	}
}
