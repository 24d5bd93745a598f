package iteration

import (
	"context"
	"testing"
	"time"

	"nslr/internal/feedback"
	"nslr/internal/llm"
	"nslr/internal/logging"
	"nslr/internal/ontology"
	"nslr/internal/program"
	"nslr/internal/stage"
)

func mustRegistry(t *testing.T) *ontology.Registry {
	t.Helper()
	reg, err := ontology.Default()
	if err != nil {
		t.Fatalf("ontology.Default() error = %v", err)
	}
	return reg
}

type scriptedClient struct {
	calls     int
	responses []string
}

func (s *scriptedClient) Call(ctx context.Context, prompt string, timeout time.Duration) (string, error) {
	i := s.calls
	s.calls++
	if i >= len(s.responses) {
		return s.responses[len(s.responses)-1], nil
	}
	return s.responses[i], nil
}

func entailingResponse() string {
	return `{"final_answer":"risposta finale","logic_program":{"dsl_version":"2.1",
		"sorts":{"Debitore":{"type":"Soggetto"},"Creditore":{"type":"Soggetto"}},
		"constants":{"mario":{"sort":"Debitore"},"luigi":{"sort":"Creditore"},"c1":{"sort":"Contratto"}},
		"predicates":{"HaObbligo":{"arity":3,"sorts":["Debitore","Creditore","Contratto"]},
			"Debitore":{"arity":1,"sorts":["Debitore"]},"Creditore":{"arity":1,"sorts":["Creditore"]}},
		"facts":{"Debitore":[["mario"]],"Creditore":[["luigi"]]},
		"axioms":[],
		"rules":[{"condition":"Debitore(x) and Creditore(y)","conclusion":"HaObbligo(x, y, c1)"}],
		"query":"HaObbligo(mario, luigi, c1)"}}`
}

func noEntailmentResponse() string {
	return `{"final_answer":"risposta parziale","logic_program":{"dsl_version":"2.1",
		"sorts":{"Debitore":{"type":"Soggetto"},"Creditore":{"type":"Soggetto"}},
		"constants":{"mario":{"sort":"Debitore"},"luigi":{"sort":"Creditore"},"c1":{"sort":"Contratto"}},
		"predicates":{"HaObbligo":{"arity":3,"sorts":["Debitore","Creditore","Contratto"]},
			"Debitore":{"arity":1,"sorts":["Debitore"]}},
		"facts":{"Debitore":[["mario"]]},
		"axioms":[],
		"rules":[{"condition":"Debitore(x) and Creditore(y)","conclusion":"HaObbligo(x, y, c1)"}],
		"query":"HaObbligo(mario, luigi, c1)"}}`
}

func TestRunStopsAtConsistentEntails(t *testing.T) {
	reg := mustRegistry(t)
	client := &scriptedClient{responses: []string{entailingResponse()}}
	runtime := llm.NewRuntime(client, llm.RetryConfig{MaxAttempts: 1, BaseDelay: time.Millisecond})
	refiner := stage.NewRefiner(runtime, reg, logging.NewNop())
	mgr := NewManager(refiner, reg, DefaultConfig(), logging.NewNop())

	initial := program.New()
	initial.Query = &program.Query{Pred: "HaObbligo", Args: []string{"mario", "luigi", "c1"}}
	initialFeedback := feedback.Feedback{Status: feedback.StatusConsistentNoEntailment, MissingLinks: []string{"Creditore"}}

	best, history, err := mgr.Run(context.Background(), "domanda", initial, initialFeedback, "")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("got %d history entries, want 1 (should stop after entailment)", len(history))
	}
	if best.Feedback.Status != feedback.StatusConsistentEntails {
		t.Fatalf("got status %q, want consistent_entails", best.Feedback.Status)
	}
	if !best.IsBest {
		t.Fatal("expected best state to be flagged IsBest")
	}
}

func TestRunStopsAtMaxIterationsWithoutProgress(t *testing.T) {
	reg := mustRegistry(t)
	resp := noEntailmentResponse()
	client := &scriptedClient{responses: []string{resp, resp, resp}}
	runtime := llm.NewRuntime(client, llm.RetryConfig{MaxAttempts: 1, BaseDelay: time.Millisecond})
	refiner := stage.NewRefiner(runtime, reg, logging.NewNop())
	cfg := Config{MaxIterations: 3, StopOnStatus: []feedback.Status{feedback.StatusConsistentEntails, feedback.StatusInconsistent}}
	mgr := NewManager(refiner, reg, cfg, logging.NewNop())

	initial := program.New()
	initial.Query = &program.Query{Pred: "HaObbligo", Args: []string{"mario", "luigi", "c1"}}
	initialFeedback := feedback.Feedback{Status: feedback.StatusConsistentNoEntailment, MissingLinks: []string{"Creditore"}}

	best, history, err := mgr.Run(context.Background(), "domanda", initial, initialFeedback, "")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(history) < 1 {
		t.Fatal("expected at least one iteration")
	}
	if best.Feedback.Status != feedback.StatusConsistentNoEntailment {
		t.Fatalf("got status %q, want consistent_no_entailment", best.Feedback.Status)
	}
}

func TestSummarizeEmptyHistory(t *testing.T) {
	got := Summarize(nil, 3)
	if got != "Nessuna iterazione precedente: questa è la prima proposta." {
		t.Fatalf("got %q", got)
	}
}

func TestSummarizeTailLimitsEntries(t *testing.T) {
	history := []State{
		{Iteration: 0, Feedback: feedback.Feedback{Status: feedback.StatusConsistentNoEntailment, HumanSummary: "s0"}},
		{Iteration: 1, Feedback: feedback.Feedback{Status: feedback.StatusConsistentNoEntailment, HumanSummary: "s1"}},
		{Iteration: 2, Feedback: feedback.Feedback{Status: feedback.StatusConsistentNoEntailment, HumanSummary: "s2"}},
	}
	got := Summarize(history, 2)
	if contains(got, "iter 0") {
		t.Fatalf("expected iter 0 to be trimmed, got %q", got)
	}
	if !contains(got, "iter 1") || !contains(got, "iter 2") {
		t.Fatalf("expected iter 1 and iter 2 present, got %q", got)
	}
}

func contains(haystack, needle string) bool {
	return len(haystack) >= len(needle) && (func() bool {
		for i := 0; i+len(needle) <= len(haystack); i++ {
			if haystack[i:i+len(needle)] == needle {
				return true
			}
		}
		return false
	})()
}
