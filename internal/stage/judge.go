package stage

import (
	"context"
	"time"

	"go.uber.org/zap"

	"nslr/internal/llm"
	"nslr/internal/logging"
)

// JudgeResult is the outcome of comparing two answers to the same question.
type JudgeResult struct {
	Question        string
	ReferenceAnswer  string
	AnswerA          string
	AnswerB          string
	LabelA           string
	LabelB           string
	Vote             string
	Confidence       float64
	Rationale        string
}

// NormalizedVote collapses Vote to LabelA, LabelB, or "tie".
func (j JudgeResult) NormalizedVote() string {
	vote := j.Vote
	if vote == "" {
		vote = "tie"
	}
	switch {
	case equalFold(vote, "tie"):
		return "tie"
	case equalFold(vote, j.LabelA), equalFold(vote, "llm"), equalFold(vote, "baseline"):
		return j.LabelA
	case equalFold(vote, j.LabelB), equalFold(vote, "nsla"), equalFold(vote, "nsla_v2"):
		return j.LabelB
	default:
		return "tie"
	}
}

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

// Judge is the optional Phase 4 metric: it compares a baseline answer
// against a candidate answer and votes on which is better. It is disabled
// by default (EnableJudgeMetric in configuration).
type Judge struct {
	runtime *llm.Runtime
	logger  *zap.Logger
	enabled bool
}

// NewJudge builds a Judge. When enabled is false, Evaluate always returns a
// disabled tie without calling the model.
func NewJudge(runtime *llm.Runtime, logger *zap.Logger, enabled bool) *Judge {
	return &Judge{runtime: runtime, logger: logger, enabled: enabled}
}

// Evaluate compares answerA (baseline) against answerB (candidate).
func (j *Judge) Evaluate(ctx context.Context, question, referenceAnswer, answerA, answerB, labelA, labelB string) (JudgeResult, error) {
	if labelA == "" {
		labelA = "baseline_v1"
	}
	if labelB == "" {
		labelB = "nsla_v2"
	}
	base := JudgeResult{
		Question:        question,
		ReferenceAnswer: referenceAnswer,
		AnswerA:         answerA,
		AnswerB:         answerB,
		LabelA:          labelA,
		LabelB:          labelB,
	}

	if !j.enabled {
		base.Vote = "tie"
		base.Rationale = "Judge metric disabled."
		return base, nil
	}

	prompt, err := renderPrompt("judge.tmpl", map[string]interface{}{
		"Question":        question,
		"ReferenceAnswer": referenceAnswer,
		"AnswerA":         answerA,
		"AnswerB":         answerB,
		"LabelA":          labelA,
		"LabelB":          labelB,
	})
	if err != nil {
		return JudgeResult{}, err
	}

	raw, err := j.runtime.Call(ctx, "Judge LLM", prompt, 120*time.Second)
	if err != nil {
		logging.AuditError(j.logger, logging.CategoryLLM, "", "judge call failed, defaulting to tie", err)
		base.Vote = "tie"
		base.Rationale = "Judge LLM call failed; defaulting to tie."
		return base, nil
	}

	var payload struct {
		Vote       string  `json:"vote"`
		Confidence float64 `json:"confidence"`
		Rationale  string  `json:"rationale"`
	}
	if !llm.ExtractJSON(raw, &payload) {
		base.Vote = "tie"
		base.Rationale = "Judge LLM returned an unparsable response; defaulting to tie."
		return base, nil
	}

	vote := payload.Vote
	if vote == "" {
		vote = "tie"
	}
	confidence := payload.Confidence
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	base.Vote = vote
	base.Confidence = confidence
	base.Rationale = payload.Rationale
	return base, nil
}
