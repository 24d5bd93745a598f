// Package iteration drives the bounded LLM <-> solver refinement loop: each
// round reruns the refiner against the previous round's program and
// feedback, resolves it with the solver, and decides whether another round
// is worth attempting.
package iteration

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"nslr/internal/feedback"
	"nslr/internal/logging"
	"nslr/internal/ontology"
	"nslr/internal/program"
	"nslr/internal/solver"
	"nslr/internal/stage"
)

// State is one round of the refinement loop: the program and answer the
// refiner produced, and the feedback solving that program against its own
// query yielded.
type State struct {
	Iteration    int
	Answer       string
	LogicProgram *program.LogicProgram
	Feedback     feedback.Feedback
	IsBest       bool
}

// Config bounds the loop.
type Config struct {
	MaxIterations int
	StopOnStatus  []feedback.Status
}

// DefaultConfig mirrors the original loop's defaults: three rounds, stopping
// early on either a proof or a detected contradiction.
func DefaultConfig() Config {
	return Config{
		MaxIterations: 3,
		StopOnStatus:  []feedback.Status{feedback.StatusConsistentEntails, feedback.StatusInconsistent},
	}
}

// Manager owns the loop.
type Manager struct {
	refiner *stage.Refiner
	reg     *ontology.Registry
	config  Config
	logger  *zap.Logger
}

// NewManager builds a Manager.
func NewManager(refiner *stage.Refiner, reg *ontology.Registry, config Config, logger *zap.Logger) *Manager {
	if config.MaxIterations <= 0 {
		config.MaxIterations = 3
	}
	if len(config.StopOnStatus) == 0 {
		config.StopOnStatus = DefaultConfig().StopOnStatus
	}
	return &Manager{refiner: refiner, reg: reg, config: config, logger: logger}
}

// Run executes the bounded loop starting from initialProgram/initialFeedback
// (the structured extractor's first pass) and returns the best state found
// plus the full history.
func (m *Manager) Run(ctx context.Context, question string, initialProgram *program.LogicProgram, initialFeedback feedback.Feedback, initialAnswer string) (State, []State, error) {
	var history []State

	first, err := m.step(ctx, question, 0, initialProgram, initialFeedback, initialAnswer, "")
	if err != nil {
		return State{}, nil, err
	}
	history = append(history, first)

	for !m.shouldStop(history) {
		idx := len(history)
		prev := history[len(history)-1]
		summary := Summarize(history, 3)

		next, err := m.step(ctx, question, idx, prev.LogicProgram, prev.Feedback, prev.Answer, summary)
		if err != nil {
			return State{}, nil, err
		}
		history = append(history, next)

		if len(history) >= m.config.MaxIterations {
			break
		}
	}

	best := selectBest(history)
	return best, history, nil
}

func (m *Manager) step(ctx context.Context, question string, index int, baseProgram *program.LogicProgram, baseFeedback feedback.Feedback, previousAnswer, historySummary string) (State, error) {
	refined, err := m.refiner.Run(ctx, question, baseProgram, baseFeedback, previousAnswer, historySummary)
	if err != nil {
		return State{}, fmt.Errorf("iteration %d: refine: %w", index, err)
	}

	compiled, err := solver.Compile(refined.LogicProgram, m.reg)
	if err != nil {
		return State{}, fmt.Errorf("iteration %d: compile: %w", index, err)
	}
	fb, err := feedback.Build(ctx, compiled, refined.LogicProgram, compiled.ShadowOf)
	if err != nil {
		return State{}, fmt.Errorf("iteration %d: feedback: %w", index, err)
	}

	logging.Audit(m.logger, logging.CategoryIteration, "", "iteration completed",
		zap.Int("iteration", index), zap.String("status", string(fb.Status)))

	return State{
		Iteration:    index,
		Answer:       refined.FinalAnswer,
		LogicProgram: refined.LogicProgram,
		Feedback:     fb,
		IsBest:       fb.Status == feedback.StatusConsistentEntails,
	}, nil
}

// shouldStop reports whether the loop should end after the most recent
// state in history: on reaching a stop-worthy status, on hitting the
// iteration cap, or when two consecutive rounds produced the same status,
// missing links, and conflicting axioms (no logical progress).
func (m *Manager) shouldStop(history []State) bool {
	if len(history) == 0 {
		return false
	}
	last := history[len(history)-1]
	for _, s := range m.config.StopOnStatus {
		if last.Feedback.Status == s {
			return true
		}
	}
	if len(history) >= m.config.MaxIterations {
		return true
	}
	if len(history) >= 2 {
		prev := history[len(history)-2]
		if prev.Feedback.Status == last.Feedback.Status &&
			sortedEqual(prev.Feedback.MissingLinks, last.Feedback.MissingLinks) &&
			sortedEqual(prev.Feedback.ConflictingAxioms, last.Feedback.ConflictingAxioms) {
			return true
		}
	}
	return false
}

func sortedEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	sa := append([]string(nil), a...)
	sb := append([]string(nil), b...)
	sort.Strings(sa)
	sort.Strings(sb)
	for i := range sa {
		if sa[i] != sb[i] {
			return false
		}
	}
	return true
}

// selectBest prefers the first state flagged IsBest (equivalently, the
// first consistent_entails state), else the last state in history.
func selectBest(history []State) State {
	for _, s := range history {
		if s.IsBest {
			return s
		}
	}
	return history[len(history)-1]
}

// Summarize builds a deterministic textual summary of the last maxEntries
// states, most recent last, for embedding into the next refinement prompt.
func Summarize(history []State, maxEntries int) string {
	if len(history) == 0 {
		return "Nessuna iterazione precedente: questa è la prima proposta."
	}
	start := 0
	if len(history) > maxEntries {
		start = len(history) - maxEntries
	}
	tail := history[start:]

	var b strings.Builder
	b.WriteString("Contesto iterativo (più recente alla fine):")
	for _, s := range tail {
		missing := strings.Join(s.Feedback.MissingLinks, ", ")
		if missing == "" {
			missing = "nessuno"
		}
		conflicts := strings.Join(s.Feedback.ConflictingAxioms, ", ")
		if conflicts == "" {
			conflicts = "nessuno"
		}
		fmt.Fprintf(&b, "\n- iter %d: status=%s; missing=%s; conflicts=%s; summary=%s",
			s.Iteration, s.Feedback.Status, missing, conflicts, s.Feedback.HumanSummary)
	}
	return b.String()
}
