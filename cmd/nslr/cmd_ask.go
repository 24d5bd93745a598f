package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"nslr/internal/llm"
	"nslr/internal/ontology"
	"nslr/internal/pipeline"
)

var (
	askIterative bool
	askReference string
)

// askCmd runs a question through the pipeline.
var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer a legal question through the canonicalize/extract/solve/refine pipeline",
	Long: `Runs the full pipeline against a natural-language question: canonicalize
it against the ontology, extract a typed logic program, solve it, and refine
it once against the solver feedback. With --iterative the refine/solve round
repeats until the solver proves the conclusion or finds the program
inconsistent, the feedback stops changing, or the round budget runs out.

Example:
  nslr ask "Il debitore che non adempie è responsabile per il danno?"
  nslr ask --iterative "Mario ha usucapito il terreno di Luigi?"`,
	Args: cobra.ExactArgs(1),
	RunE: runAsk,
}

func runAsk(cmd *cobra.Command, args []string) error {
	question := args[0]

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	reg, err := ontology.Default()
	if err != nil {
		return fmt.Errorf("load ontology: %w", err)
	}

	client, err := newLLMClient(ctx)
	if err != nil {
		return fmt.Errorf("build llm client: %w", err)
	}

	runtime := llm.NewRuntime(client, llm.RetryConfig{
		MaxAttempts: cfg.LLMRetries,
		BaseDelay:   cfg.LLMBaseDelay,
	})

	p := pipeline.New(runtime, reg, cfg, newLoggerOrNop())

	if askIterative {
		return runAskIterative(ctx, p, question)
	}
	return runAskOnce(ctx, p, question)
}

func runAskOnce(ctx context.Context, p *pipeline.Pipeline, question string) error {
	result, err := p.RunOnce(ctx, question, askReference)
	if err != nil {
		return fmt.Errorf("pipeline run: %w", err)
	}

	fmt.Println(result.FinalAnswer)
	fmt.Println()
	fmt.Printf("Stato solver: %s\n", result.Feedback.Status)
	if result.FallbackUsed {
		fmt.Println("(il programma raffinato non ha superato i controlli di sicurezza: è stato usato il fallback)")
	}
	fmt.Println(result.Explanation.Summary)
	if result.JudgeResult != nil {
		fmt.Printf("Giudizio comparativo: %s (confidenza %.2f) - %s\n",
			result.JudgeResult.NormalizedVote(), result.JudgeResult.Confidence, result.JudgeResult.Rationale)
	}
	return nil
}

func runAskIterative(ctx context.Context, p *pipeline.Pipeline, question string) error {
	best, history, err := p.RunIterative(ctx, question)
	if err != nil {
		return fmt.Errorf("pipeline run: %w", err)
	}

	fmt.Println(best.Answer)
	fmt.Println()
	fmt.Printf("Stato solver (migliore su %d round): %s\n", len(history), best.Feedback.Status)
	for _, state := range history {
		marker := " "
		if state.IsBest {
			marker = "*"
		}
		fmt.Printf("%s round %d: %s\n", marker, state.Iteration, state.Feedback.Status)
	}
	return nil
}

func newLLMClient(ctx context.Context) (llm.Client, error) {
	switch cfg.LLMBackend {
	case "", "dummy":
		return llm.NewDummyClient(""), nil
	case "gemini":
		if strings.TrimSpace(cfg.GeminiAPIKey) == "" {
			return nil, fmt.Errorf("gemini backend selected but no API key configured")
		}
		return llm.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	default:
		return nil, fmt.Errorf("unknown llm backend %q", cfg.LLMBackend)
	}
}
