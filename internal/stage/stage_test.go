package stage

import (
	"context"
	"testing"
	"time"

	"nslr/internal/feedback"
	"nslr/internal/llm"
	"nslr/internal/logging"
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

type fixedClient struct {
	response string
	err      error
}

func (f *fixedClient) Call(ctx context.Context, prompt string, timeout time.Duration) (string, error) {
	return f.response, f.err
}

func TestCanonicalizerReturnsModelOutput(t *testing.T) {
	reg := mustRegistry(t)
	client := &fixedClient{response: `{"question":"q","language":"it","domain":"civil_law_contractual_liability","concepts":[{"text":"debitore","canonical_predicate":"Debitore","confidence":0.9}],"unmapped_terms":[]}`}
	runtime := llm.NewRuntime(client, llm.RetryConfig{MaxAttempts: 1, BaseDelay: time.Millisecond})
	canon := NewCanonicalizer(runtime, reg, logging.NewNop(), 0)

	out, err := canon.Run(context.Background(), "Il debitore è responsabile?")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(out.Concepts) != 1 || out.Concepts[0].CanonicalPredicate != "Debitore" {
		t.Fatalf("got %+v", out)
	}
}

func TestCanonicalizerFallsBackOnError(t *testing.T) {
	reg := mustRegistry(t)
	client := &fixedClient{err: errTest("boom")}
	runtime := llm.NewRuntime(client, llm.RetryConfig{MaxAttempts: 1, BaseDelay: time.Millisecond})
	canon := NewCanonicalizer(runtime, reg, logging.NewNop(), 0)

	out, err := canon.Run(context.Background(), "domanda")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if out.Domain != "civil_law_contractual_liability" {
		t.Fatalf("got %+v, want fallback domain", out)
	}
}

func TestCanonicalizerCachesResult(t *testing.T) {
	reg := mustRegistry(t)
	client := &fixedClient{response: `{"question":"q","language":"it","domain":"civil_law_contractual_liability","concepts":[],"unmapped_terms":[]}`}
	runtime := llm.NewRuntime(client, llm.RetryConfig{MaxAttempts: 1, BaseDelay: time.Millisecond})
	canon := NewCanonicalizer(runtime, reg, logging.NewNop(), time.Minute)

	if _, err := canon.Run(context.Background(), "domanda"); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	client.response = `{"question":"changed","language":"it","domain":"civil_law_contractual_liability","concepts":[],"unmapped_terms":[]}`
	out, err := canon.Run(context.Background(), "domanda")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if out.Question != "q" {
		t.Fatalf("expected cached response, got %+v", out)
	}
}

func TestExtractorDecodesLogicProgram(t *testing.T) {
	reg := mustRegistry(t)
	client := &fixedClient{response: `{"final_answer":"ok","premises":[],"conclusion":"c",
		"logic_program":{"dsl_version":"2.1",
		"sorts":{"Debitore":{"type":"Soggetto"},"Creditore":{"type":"Soggetto"},"Contratto":{"type":"Entity"}},
		"constants":{"mario":{"sort":"Debitore"},"luigi":{"sort":"Creditore"},"c1":{"sort":"Contratto"}},
		"predicates":{"HaObbligo":{"arity":3,"sorts":["Debitore","Creditore","Contratto"]}},
		"facts":{"Debitore":[["mario"]],"Creditore":[["luigi"]]},
		"axioms":[],
		"rules":[{"condition":"Debitore(x) and Creditore(y)","conclusion":"HaObbligo(x, y, c1)"}],
		"query":"HaObbligo(mario, luigi, c1)"}}`}
	runtime := llm.NewRuntime(client, llm.RetryConfig{MaxAttempts: 1, BaseDelay: time.Millisecond})
	extractor := NewExtractor(runtime, reg, logging.NewNop())

	p, err := extractor.Run(context.Background(), "domanda", CanonicalizerOutput{}, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if p.Query == nil || p.Query.Pred != "HaObbligo" {
		t.Fatalf("got query %+v", p.Query)
	}
	if len(p.Rules) != 1 {
		t.Fatalf("got %d rules, want 1", len(p.Rules))
	}
}

func TestExtractorFallsBackToDummyProgram(t *testing.T) {
	reg := mustRegistry(t)
	client := &fixedClient{err: errTest("boom")}
	runtime := llm.NewRuntime(client, llm.RetryConfig{MaxAttempts: 1, BaseDelay: time.Millisecond})
	extractor := NewExtractor(runtime, reg, logging.NewNop())

	p, err := extractor.Run(context.Background(), "domanda", CanonicalizerOutput{}, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if p.Query == nil || p.Query.Pred != "ResponsabilitaContrattuale" {
		t.Fatalf("got %+v, want dummy query", p.Query)
	}
}

func TestCoversMissingLinks(t *testing.T) {
	p := program.New()
	p.Rules = []program.Rule{{Condition: "Debitore(x)", Conclusion: "HaObbligo(x, y, c1)"}}
	if coversMissingLinks(p, []string{"Creditore"}) {
		t.Fatal("expected Creditore to not be covered")
	}
	if !coversMissingLinks(p, []string{"Debitore"}) {
		t.Fatal("expected Debitore to be covered")
	}
	if !coversMissingLinks(p, nil) {
		t.Fatal("expected no missing links to trivially be covered")
	}
}

func TestRefinerRetriesUntilMissingLinksCovered(t *testing.T) {
	reg := mustRegistry(t)
	first := `{"final_answer":"a1","logic_program":{"dsl_version":"2.1",
		"sorts":{},"constants":{},"predicates":{"HaObbligo":{"arity":3,"sorts":["Debitore","Creditore","Contratto"]}},
		"facts":{},"axioms":[],"rules":[],"query":"HaObbligo(mario, luigi, c1)"}}`
	second := `{"final_answer":"a2","logic_program":{"dsl_version":"2.1",
		"sorts":{},"constants":{},"predicates":{"HaObbligo":{"arity":3,"sorts":["Debitore","Creditore","Contratto"]},"Creditore":{"arity":1,"sorts":["Creditore"]}},
		"facts":{},"axioms":["Creditore(luigi)"],"rules":[],"query":"HaObbligo(mario, luigi, c1)"}}`
	client := &scriptedStageClient{responses: []string{first, second}}
	runtime := llm.NewRuntime(client, llm.RetryConfig{MaxAttempts: 1, BaseDelay: time.Millisecond})
	refiner := NewRefiner(runtime, reg, logging.NewNop())

	fb := feedback.Feedback{Status: feedback.StatusConsistentNoEntailment, MissingLinks: []string{"Creditore"}}
	currentProgram := program.New()
	currentProgram.Query = &program.Query{Pred: "HaObbligo", Args: []string{"mario", "luigi", "c1"}}

	out, err := refiner.Run(context.Background(), "domanda", currentProgram, fb, "", "")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if out.FinalAnswer != "a2" {
		t.Fatalf("got final answer %q, want a2 (second attempt)", out.FinalAnswer)
	}
	if client.calls != 2 {
		t.Fatalf("got %d calls, want 2", client.calls)
	}
}

func TestJudgeDisabledReturnsTie(t *testing.T) {
	runtime := llm.NewRuntime(&fixedClient{}, llm.RetryConfig{MaxAttempts: 1, BaseDelay: time.Millisecond})
	judge := NewJudge(runtime, logging.NewNop(), false)

	result, err := judge.Evaluate(context.Background(), "q", "", "a", "b", "", "")
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if result.NormalizedVote() != "tie" {
		t.Fatalf("got vote %q, want tie", result.NormalizedVote())
	}
}

func TestJudgeParsesModelVote(t *testing.T) {
	client := &fixedClient{response: `{"vote":"nsla_v2","confidence":0.8,"rationale":"migliore copertura"}`}
	runtime := llm.NewRuntime(client, llm.RetryConfig{MaxAttempts: 1, BaseDelay: time.Millisecond})
	judge := NewJudge(runtime, logging.NewNop(), true)

	result, err := judge.Evaluate(context.Background(), "q", "", "a", "b", "baseline_v1", "nsla_v2")
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if result.NormalizedVote() != "nsla_v2" {
		t.Fatalf("got vote %q, want nsla_v2", result.NormalizedVote())
	}
}

type errTest string

func (e errTest) Error() string { return string(e) }

type scriptedStageClient struct {
	calls     int
	responses []string
}

func (s *scriptedStageClient) Call(ctx context.Context, prompt string, timeout time.Duration) (string, error) {
	i := s.calls
	s.calls++
	if i >= len(s.responses) {
		return s.responses[len(s.responses)-1], nil
	}
	return s.responses[i], nil
}
