package pipeline

import (
	"fmt"

	"nslr/internal/feedback"
	"nslr/internal/guardrail"
)

// synthesizeExplanation builds a short, deterministic explanation anchored
// to the solver feedback and guardrail outcome. It never calls the LLM:
// every phase this pipeline runs already produces enough structured
// information to narrate the outcome without another round trip.
func synthesizeExplanation(question, finalAnswer string, fb feedback.Feedback, gr guardrail.Result) Explanation {
	if !gr.OK {
		issues := make([]string, 0, len(gr.Issues))
		for _, issue := range gr.Issues {
			issues = append(issues, issue.Message)
		}
		return Explanation{
			Summary: "Il programma logico generato non ha superato i controlli di sicurezza. " +
				"È stata mantenuta la risposta precedente oppure è richiesto un nuovo refinement.",
			Status:          "guardrail_failed",
			GuardrailIssues: issues,
		}
	}

	var summary string
	switch fb.Status {
	case feedback.StatusConsistentEntails:
		summary = fmt.Sprintf(
			"Il sistema simbolico è coerente e la conclusione proposta è dimostrata dalle regole modellate. Risposta finale: %s",
			finalAnswer,
		)
	case feedback.StatusConsistentNoEntailment:
		summary = fmt.Sprintf(
			"Il programma logico è coerente ma non implica ancora la conclusione. Mancano collegamenti o premesse aggiuntive. Feedback sintetico: %s",
			fb.HumanSummary,
		)
	default:
		summary = fmt.Sprintf(
			"Il solver ha rilevato un conflitto logico nelle regole generate. È necessario correggere le premesse: %s",
			fb.HumanSummary,
		)
	}

	return Explanation{
		Summary:           summary,
		Status:            string(fb.Status),
		MissingLinks:      fb.MissingLinks,
		ConflictingAxioms: fb.ConflictingAxioms,
	}
}
