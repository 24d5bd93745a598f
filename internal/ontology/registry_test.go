package ontology

import "testing"

func TestDefaultRegistryLoads(t *testing.T) {
	reg, err := Default()
	if err != nil {
		t.Fatalf("Default() error = %v", err)
	}
	if _, ok := reg.Predicate("ResponsabilitaContrattuale"); !ok {
		t.Fatal("expected ResponsabilitaContrattuale to be declared")
	}
	if _, ok := reg.Sort("Debitore"); !ok {
		t.Fatal("expected Debitore sort to be declared")
	}
}

func TestResolveSortAlias(t *testing.T) {
	reg, err := Default()
	if err != nil {
		t.Fatalf("Default() error = %v", err)
	}
	cases := map[string]string{
		"soggetto debitore":   "Debitore",
		"Debitore":            "Debitore",
		"accordo tra parti":   "Contratto",
		"qualcosa di obbligatorio": "Debitore",
		"titolare del credito": "Creditore",
		"un contratto generico": "Contratto",
	}
	for in, want := range cases {
		if got := reg.ResolveSort(in); got != want {
			t.Errorf("ResolveSort(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestResolveSortEmptyFallsBackToEntity(t *testing.T) {
	reg, err := Default()
	if err != nil {
		t.Fatalf("Default() error = %v", err)
	}
	if got := reg.ResolveSort(""); got != "Entity" {
		t.Errorf("ResolveSort(\"\") = %q, want Entity", got)
	}
}

func TestResolvePredicateAlias(t *testing.T) {
	reg, err := Default()
	if err != nil {
		t.Fatalf("Default() error = %v", err)
	}
	if got := reg.ResolvePredicate("responsabilitacontrattuale"); got != "ResponsabilitaContrattuale" {
		t.Errorf("ResolvePredicate = %q", got)
	}
	if got := reg.ResolvePredicate("contratto valido"); got != "Contratto" {
		t.Errorf("ResolvePredicate(synonym) = %q", got)
	}
}

func TestSignature(t *testing.T) {
	reg, err := Default()
	if err != nil {
		t.Fatalf("Default() error = %v", err)
	}
	arity, sorts, ok := reg.Signature("HaObbligo")
	if !ok {
		t.Fatal("expected HaObbligo to resolve")
	}
	if arity != 3 {
		t.Errorf("arity = %d, want 3", arity)
	}
	want := []string{"Debitore", "Creditore", "Contratto"}
	for i, s := range want {
		if sorts[i] != s {
			t.Errorf("sorts[%d] = %q, want %q", i, sorts[i], s)
		}
	}
}

func TestIsCanonicalSort(t *testing.T) {
	reg, err := Default()
	if err != nil {
		t.Fatalf("Default() error = %v", err)
	}
	if !reg.IsCanonicalSort("Contratto") {
		t.Fatal("expected Contratto to be canonical")
	}
	if !reg.IsCanonicalSort("bene registrato") {
		t.Fatal("expected alias to resolve to canonical sort")
	}
}
