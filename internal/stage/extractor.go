package stage

import (
	"context"
	"time"

	"go.uber.org/zap"

	"nslr/internal/llm"
	"nslr/internal/logging"
	"nslr/internal/ontology"
	"nslr/internal/program"
)

// Extractor turns a question plus its canonicalization into a normalized
// LogicProgram ready for the solver, falling back to a caller-supplied or
// dummy program when the model call or its JSON fails.
type Extractor struct {
	runtime *llm.Runtime
	reg     *ontology.Registry
	logger  *zap.Logger
}

// NewExtractor builds an Extractor.
func NewExtractor(runtime *llm.Runtime, reg *ontology.Registry, logger *zap.Logger) *Extractor {
	return &Extractor{runtime: runtime, reg: reg, logger: logger}
}

// Run extracts, normalizes, and injects canonical rules into a logic
// program for question. fallback, if non-nil, is reused verbatim when the
// extractor fails instead of synthesizing a dummy program — the same
// "reuse v1 logic program" behavior iterative refinement relies on.
func (e *Extractor) Run(ctx context.Context, question string, canon CanonicalizerOutput, fallback *program.LogicProgram) (*program.LogicProgram, error) {
	prompt, err := renderPrompt("extractor.tmpl", map[string]interface{}{
		"Question":   question,
		"Sorts":      e.reg.Sorts(),
		"Predicates": e.reg.Predicates(),
		"Concepts":   canon.Concepts,
	})
	if err != nil {
		return nil, err
	}

	raw, err := e.runtime.Call(ctx, "Structured Extractor", prompt, 300*time.Second)
	var p *program.LogicProgram
	if err != nil {
		logging.AuditError(e.logger, logging.CategoryExtractor, "", "structured extractor call failed, using fallback", err)
		p = e.fallbackProgram(question, fallback)
	} else {
		var payload struct {
			LogicProgram wireLogicProgram `json:"logic_program"`
		}
		if !llm.ExtractJSON(raw, &payload) {
			logging.Audit(e.logger, logging.CategoryExtractor, "", "structured extractor response was not valid JSON, using fallback")
			p = e.fallbackProgram(question, fallback)
		} else {
			decoded, decodeErr := decodeLogicProgram(payload.LogicProgram)
			if decodeErr != nil {
				logging.AuditError(e.logger, logging.CategoryExtractor, "", "structured extractor produced an invalid logic program, using fallback", decodeErr)
				p = e.fallbackProgram(question, fallback)
			} else {
				p = decoded
			}
		}
	}

	p.DSLVersion = ontology.DSLVersion
	program.Normalize(p, e.reg)
	program.InjectCanonicalRules(p)

	logging.Audit(e.logger, logging.CategoryExtractor, "", "structured extractor completed",
		zap.Int("predicates", len(p.Predicates)), zap.Int("rules", len(p.Rules)))
	return p, nil
}

func (e *Extractor) fallbackProgram(question string, fallback *program.LogicProgram) *program.LogicProgram {
	if fallback != nil {
		return fallback
	}
	return buildDummyLogicProgram(question)
}

// buildDummyLogicProgram synthesizes a minimal but coherent program: the
// query targets ResponsabilitaContrattuale over placeholder constants, so
// that even a fallback path reports informative missing links instead of
// an empty program.
func buildDummyLogicProgram(question string) *program.LogicProgram {
	p := program.New()
	p.Sorts["Soggetto"] = program.SortDef{Type: "Entity"}
	p.Sorts["Debitore"] = program.SortDef{Type: "Soggetto"}
	p.Sorts["Creditore"] = program.SortDef{Type: "Soggetto"}
	p.Sorts["Contratto"] = program.SortDef{Type: "Entity"}

	p.Constants["deb_dummy"] = program.ConstantDef{Sort: "Debitore"}
	p.Constants["cred_dummy"] = program.ConstantDef{Sort: "Creditore"}
	p.Constants["contratto_dummy"] = program.ConstantDef{Sort: "Contratto"}

	p.Predicates["HaObbligo"] = program.PredicateDef{Args: []string{"Debitore", "Creditore", "Contratto"}}
	p.Predicates["Inadempimento"] = program.PredicateDef{Args: []string{"Debitore", "Contratto"}}
	p.Predicates["Imputabilita"] = program.PredicateDef{Args: []string{"Debitore", "Contratto"}}
	p.Predicates["ResponsabilitaContrattuale"] = program.PredicateDef{Args: []string{"Debitore", "Creditore", "Contratto"}}

	p.Query = &program.Query{
		Pred: "ResponsabilitaContrattuale",
		Args: []string{"deb_dummy", "cred_dummy", "contratto_dummy"},
	}
	return p
}
