// Package pipeline wires the canonicalizer, structured extractor, solver,
// refiner, guardrail checker, and optional judge into the two entry points
// this system exposes to callers: a one-shot run (extract once, refine
// once, answer) and an iterative run (extract once, then keep refining
// under internal/iteration's bounded loop until the feedback stabilizes).
package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"nslr/internal/config"
	"nslr/internal/feedback"
	"nslr/internal/guardrail"
	"nslr/internal/iteration"
	"nslr/internal/llm"
	"nslr/internal/logging"
	"nslr/internal/ontology"
	"nslr/internal/program"
	"nslr/internal/solver"
	"nslr/internal/stage"
)

// Explanation is the deterministic Phase-2.5-style summary anchored to the
// solver feedback and guardrail outcome, not a free-form LLM explanation.
type Explanation struct {
	Summary           string
	Status            string
	MissingLinks      []string
	ConflictingAxioms []string
	GuardrailIssues   []string
}

// Result is the full outcome of one-shot pipeline execution: the refined
// answer plus every intermediate artifact a caller might want to inspect or
// log.
type Result struct {
	FinalAnswer  string
	LogicProgram *program.LogicProgram
	Feedback     feedback.Feedback
	Guardrail    guardrail.Result
	Explanation  Explanation

	FallbackUsed     bool
	FallbackFeedback *feedback.Feedback

	Canonicalization stage.CanonicalizerOutput
	LogicProgramV1   *program.LogicProgram
	FeedbackV1       feedback.Feedback
	AnswerV1         string

	JudgeResult *stage.JudgeResult
	LLMStatus   map[string]llm.ErrorReason
}

// Pipeline owns every stage runtime and the shared ontology/config they run
// against.
type Pipeline struct {
	runtime *llm.Runtime
	reg     *ontology.Registry
	cfg     config.Config
	logger  *zap.Logger

	canonicalizer *stage.Canonicalizer
	extractor     *stage.Extractor
	refiner       *stage.Refiner
	judge         *stage.Judge
}

// New builds a Pipeline from the shared LLM runtime, canonical ontology,
// and configuration, constructing every stage runtime with it.
func New(runtime *llm.Runtime, reg *ontology.Registry, cfg config.Config, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Pipeline{
		runtime:       runtime,
		reg:           reg,
		cfg:           cfg,
		logger:        logger,
		canonicalizer: stage.NewCanonicalizer(runtime, reg, logger, cfg.CanonicalizerCacheTTL),
		extractor:     stage.NewExtractor(runtime, reg, logger),
		refiner:       stage.NewRefiner(runtime, reg, logger),
		judge:         stage.NewJudge(runtime, logger, cfg.EnableJudgeMetric),
	}
}

// phaseContext is the shared preparation both entry points build from: the
// canonicalization, the first-pass extracted program, and its feedback.
type phaseContext struct {
	canonicalization stage.CanonicalizerOutput
	logicProgramV1   *program.LogicProgram
	feedbackV1       feedback.Feedback
	answerV1         string
	v1SolverReady    bool
}

func (p *Pipeline) prepare(ctx context.Context, question string) (phaseContext, error) {
	canon, err := p.canonicalizer.Run(ctx, question)
	if err != nil {
		return phaseContext{}, fmt.Errorf("canonicalizer: %w", err)
	}

	logicProgramV1, err := p.extractor.Run(ctx, question, canon, nil)
	if err != nil {
		return phaseContext{}, fmt.Errorf("extractor: %w", err)
	}

	fb, err := p.evaluateWithFactSynthesis(ctx, logicProgramV1)
	if err != nil {
		logging.AuditError(p.logger, logging.CategoryPipeline, "", "v1 solver build failed", err)
		return phaseContext{
			canonicalization: canon,
			logicProgramV1:   logicProgramV1,
			feedbackV1: feedback.Feedback{
				Status:       feedback.StatusInvalidLogicProgram,
				HumanSummary: fmt.Sprintf("Impossibile costruire il solver per il programma v1: %v", err),
			},
			answerV1:      "",
			v1SolverReady: false,
		}, nil
	}

	return phaseContext{
		canonicalization: canon,
		logicProgramV1:   logicProgramV1,
		feedbackV1:       fb,
		answerV1:         "",
		v1SolverReady:    true,
	}, nil
}

// RunOnce executes the non-iterative pipeline: canonicalize, extract,
// refine exactly once, guard-rail check the refined program, evaluate it
// (with bounded fact synthesis), augment the final answer with the
// symbolic requirements it satisfied, and synthesize a deterministic
// explanation. referenceAnswer, if non-empty, triggers the optional judge
// comparison between the v1 and refined answers.
func (p *Pipeline) RunOnce(ctx context.Context, question, referenceAnswer string) (Result, error) {
	ctxState, err := p.prepare(ctx, question)
	if err != nil {
		return Result{}, err
	}

	refined, err := p.refiner.Run(ctx, question, ctxState.logicProgramV1, ctxState.feedbackV1, ctxState.answerV1, "")
	if err != nil {
		return Result{}, fmt.Errorf("refiner: %w", err)
	}

	gr := guardrail.Run(refined.LogicProgram, p.reg)
	if !gr.OK {
		return p.guardrailFailureResult(ctx, question, referenceAnswer, refined, ctxState, gr), nil
	}

	fb2, err := p.evaluateWithFactSynthesis(ctx, refined.LogicProgram)
	if err != nil {
		return Result{}, fmt.Errorf("v2 solver build: %w", err)
	}

	gr = guardrail.Run(refined.LogicProgram, p.reg)
	if !gr.OK {
		return p.guardrailFailureResult(ctx, question, referenceAnswer, refined, ctxState, gr), nil
	}

	highlightPreds := collectFactPredicates(refined.LogicProgram)
	finalAnswer := augmentFinalAnswer(refined.FinalAnswer, highlightPreds)

	explanation := synthesizeExplanation(question, finalAnswer, fb2, gr)

	result := Result{
		FinalAnswer:      finalAnswer,
		LogicProgram:     refined.LogicProgram,
		Feedback:         fb2,
		Guardrail:        gr,
		Explanation:      explanation,
		Canonicalization: ctxState.canonicalization,
		LogicProgramV1:   ctxState.logicProgramV1,
		FeedbackV1:       ctxState.feedbackV1,
		AnswerV1:         ctxState.answerV1,
		LLMStatus:        p.runtime.PopStatuses(),
	}
	result.JudgeResult = p.maybeRunJudge(ctx, question, referenceAnswer, ctxState.answerV1, finalAnswer, true)
	return result, nil
}

func (p *Pipeline) guardrailFailureResult(ctx context.Context, question, referenceAnswer string, refined stage.RefinementOutput, ctxState phaseContext, gr guardrail.Result) Result {
	compiled, compileErr := solver.Compile(ctxState.logicProgramV1, p.reg)
	var fallbackFeedback feedback.Feedback
	if compileErr == nil {
		fallbackFeedback, _ = feedback.Build(ctx, compiled, ctxState.logicProgramV1, compiled.ShadowOf)
	} else {
		fallbackFeedback = feedback.Feedback{
			Status:       feedback.StatusInvalidLogicProgram,
			HumanSummary: fmt.Sprintf("Impossibile ricostruire il solver di fallback: %v", compileErr),
		}
	}

	explanation := synthesizeExplanation(question, refined.FinalAnswer, fallbackFeedback, gr)

	result := Result{
		FinalAnswer:      refined.FinalAnswer,
		LogicProgram:     refined.LogicProgram,
		Feedback:         fallbackFeedback,
		Guardrail:        gr,
		Explanation:      explanation,
		FallbackUsed:     true,
		FallbackFeedback: &fallbackFeedback,
		Canonicalization: ctxState.canonicalization,
		LogicProgramV1:   ctxState.logicProgramV1,
		FeedbackV1:       ctxState.feedbackV1,
		AnswerV1:         ctxState.answerV1,
		LLMStatus:        p.runtime.PopStatuses(),
	}
	result.JudgeResult = p.maybeRunJudge(ctx, question, referenceAnswer, ctxState.answerV1, refined.FinalAnswer, false)
	return result
}

func (p *Pipeline) maybeRunJudge(ctx context.Context, question, referenceAnswer, baselineAnswer, candidateAnswer string, guardrailOK bool) *stage.JudgeResult {
	if referenceAnswer == "" || !guardrailOK || p.judge == nil {
		return nil
	}
	result, err := p.judge.Evaluate(ctx, question, referenceAnswer, baselineAnswer, candidateAnswer, "baseline_v1", "nsla_v2")
	if err != nil {
		logging.AuditError(p.logger, logging.CategoryPipeline, "", "judge evaluation failed", err)
		return nil
	}
	return &result
}

// RunIterative executes the bounded LLM<->solver refinement loop over the
// first-pass extraction, returning the best state found plus the full
// history. If the first-pass program could not even be compiled, the loop
// is skipped entirely and a single synthetic state carrying that failure is
// returned. RunOnce has no such short-circuit.
func (p *Pipeline) RunIterative(ctx context.Context, question string) (iteration.State, []iteration.State, error) {
	ctxState, err := p.prepare(ctx, question)
	if err != nil {
		return iteration.State{}, nil, err
	}

	if !ctxState.v1SolverReady {
		logging.Audit(p.logger, logging.CategoryPipeline, "", "skipping iterative loop: invalid v1 program")
		state := iteration.State{
			Iteration:    0,
			Answer:       ctxState.answerV1,
			LogicProgram: ctxState.logicProgramV1,
			Feedback:     ctxState.feedbackV1,
			IsBest:       true,
		}
		return state, []iteration.State{state}, nil
	}

	mgr := iteration.NewManager(p.refiner, p.reg, iteration.Config{
		MaxIterations: p.cfg.MaxIterations,
		StopOnStatus:  iteration.DefaultConfig().StopOnStatus,
	}, p.logger)

	best, history, err := mgr.Run(ctx, question, ctxState.logicProgramV1, ctxState.feedbackV1, ctxState.answerV1)
	if err != nil {
		return iteration.State{}, nil, err
	}
	return best, history, nil
}
