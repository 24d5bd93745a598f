package stage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"nslr/internal/feedback"
	"nslr/internal/llm"
	"nslr/internal/logging"
	"nslr/internal/ontology"
	"nslr/internal/program"
)

// MaxRefinementAttempts bounds how many times in all the refiner calls the
// model before accepting whatever it last produced.
const MaxRefinementAttempts = 2

// RefinementOutput is the refined program plus the free-form answer text
// the model produced alongside it.
type RefinementOutput struct {
	FinalAnswer  string
	LogicProgram *program.LogicProgram
	Notes        string
}

// Refiner drives the solver-guided refinement prompt: it calls the model up
// to MaxRefinementAttempts times, retrying while the output does not mention
// every predicate the previous feedback flagged as missing, appending an
// increasingly pointed hint each time.
type Refiner struct {
	runtime *llm.Runtime
	reg     *ontology.Registry
	logger  *zap.Logger
}

// NewRefiner builds a Refiner.
func NewRefiner(runtime *llm.Runtime, reg *ontology.Registry, logger *zap.Logger) *Refiner {
	return &Refiner{runtime: runtime, reg: reg, logger: logger}
}

// Run executes the refinement prompt against currentProgram/currentFeedback,
// retrying with a progressively pointed hint until the output at least
// mentions every missing predicate, or attempts are exhausted.
func (r *Refiner) Run(ctx context.Context, question string, currentProgram *program.LogicProgram, currentFeedback feedback.Feedback, previousAnswer, historySummary string) (RefinementOutput, error) {
	var (
		retryHint string
		last      *RefinementOutput
	)

	for attempt := 0; attempt < MaxRefinementAttempts; attempt++ {
		runtimeHistory := historySummary
		if retryHint != "" {
			base := historySummary
			if base == "" {
				base = "Nessuna iterazione precedente: primo refinement."
			}
			runtimeHistory = base + "\n\n" + retryHint
		}

		out, err := r.call(ctx, question, currentProgram, currentFeedback, previousAnswer, runtimeHistory)
		if err != nil {
			logging.AuditError(r.logger, logging.CategoryRefinement, "", "refinement call failed, using fallback", err)
			return r.fallback(previousAnswer, currentProgram), nil
		}
		last = &out

		if coversMissingLinks(out.LogicProgram, currentFeedback.MissingLinks) {
			logging.Audit(r.logger, logging.CategoryRefinement, "", "refinement completed",
				zap.String("status", string(currentFeedback.Status)))
			return out, nil
		}

		retryHint = buildRetryHint(currentFeedback.MissingLinks)
		logging.Audit(r.logger, logging.CategoryRefinement, "", "refinement output missing predicates, retrying",
			zap.Strings("missing_links", currentFeedback.MissingLinks), zap.Int("attempt", attempt+1))
	}

	if last != nil {
		return *last, nil
	}
	return r.fallback(previousAnswer, currentProgram), nil
}

func (r *Refiner) call(ctx context.Context, question string, currentProgram *program.LogicProgram, currentFeedback feedback.Feedback, previousAnswer, historySummary string) (RefinementOutput, error) {
	wireCurrent := encodeLogicProgram(currentProgram)
	currentJSON, err := json.MarshalIndent(wireCurrent, "", "  ")
	if err != nil {
		return RefinementOutput{}, err
	}

	prompt, err := renderPrompt("refinement.tmpl", map[string]interface{}{
		"Question":           question,
		"CurrentProgramJSON": string(currentJSON),
		"Status":             string(currentFeedback.Status),
		"MissingLinks":       strings.Join(currentFeedback.MissingLinks, ", "),
		"HistorySummary":     historySummary,
	})
	if err != nil {
		return RefinementOutput{}, err
	}

	raw, err := r.runtime.Call(ctx, "Refinement LLM", prompt, 300*time.Second)
	if err != nil {
		return RefinementOutput{}, err
	}

	var payload struct {
		FinalAnswer  string           `json:"final_answer"`
		LogicProgram wireLogicProgram `json:"logic_program"`
		Notes        string           `json:"notes"`
	}
	if !llm.ExtractJSON(raw, &payload) {
		return RefinementOutput{}, fmt.Errorf("refinement: could not extract JSON from model response")
	}
	decoded, err := decodeLogicProgram(payload.LogicProgram)
	if err != nil {
		return RefinementOutput{}, fmt.Errorf("refinement: invalid logic program: %w", err)
	}
	decoded.DSLVersion = ontology.DSLVersion
	program.Normalize(decoded, r.reg)
	program.InjectCanonicalRules(decoded)

	return RefinementOutput{FinalAnswer: payload.FinalAnswer, LogicProgram: decoded, Notes: payload.Notes}, nil
}

func (r *Refiner) fallback(previousAnswer string, currentProgram *program.LogicProgram) RefinementOutput {
	answer := previousAnswer
	if answer == "" {
		answer = "Risposta generica (fallback) in attesa di un refinement valido."
	}
	return RefinementOutput{FinalAnswer: answer, LogicProgram: currentProgram, Notes: "Fallback refinement output"}
}

// coversMissingLinks reports whether every predicate in missingLinks is
// mentioned (as "Pred(") somewhere in p's axioms, rules, or query — the
// same coarse textual check the refinement loop used to decide whether a
// retry is worth attempting before re-running the solver.
func coversMissingLinks(p *program.LogicProgram, missingLinks []string) bool {
	if len(missingLinks) == 0 {
		return true
	}
	var corpus strings.Builder
	for _, axiom := range p.Axioms {
		corpus.WriteString(axiom)
		corpus.WriteByte('\n')
	}
	for _, r := range p.Rules {
		corpus.WriteString(r.Condition)
		corpus.WriteByte('\n')
		corpus.WriteString(r.Conclusion)
		corpus.WriteByte('\n')
	}
	if p.Query != nil {
		corpus.WriteString(p.Query.Text())
	}
	haystack := strings.ToLower(corpus.String())
	for _, pred := range missingLinks {
		token := strings.ToLower(strings.TrimSpace(pred))
		if token == "" {
			continue
		}
		if !strings.Contains(haystack, token+"(") {
			return false
		}
	}
	return true
}

func buildRetryHint(missingLinks []string) string {
	if len(missingLinks) == 0 {
		return ""
	}
	seen := map[string]bool{}
	var unique []string
	for _, link := range missingLinks {
		if link == "" || seen[link] {
			continue
		}
		seen[link] = true
		unique = append(unique, link)
	}
	sort.Strings(unique)
	return "ATTENZIONE: aggiungi fatti o assiomi per ciascun predicato in missing_links (" +
		strings.Join(unique, ", ") + ") prima di restituire l'output."
}
