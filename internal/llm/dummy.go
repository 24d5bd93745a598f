package llm

import (
	"context"
	"time"
)

// DummyClient is the deterministic stand-in backend: it never talks to a
// real model and returns the same canned text for every call, whatever the
// prompt. It exists so the pipeline runs end to end (and its tests stay
// deterministic) without network access or an API key.
type DummyClient struct {
	// Fixed is the text Call returns for every prompt; when it is empty,
	// Call returns a generic Italian placeholder message instead.
	Fixed string
}

// NewDummyClient builds a DummyClient returning fixed for every call.
func NewDummyClient(fixed string) *DummyClient {
	return &DummyClient{Fixed: fixed}
}

// Call implements Client. It ignores the prompt and timeout entirely,
// mirroring the original's dummy backend which never inspects the prompt
// beyond the question text it is handed to build a canned response.
func (d *DummyClient) Call(ctx context.Context, prompt string, timeout time.Duration) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}
	if d.Fixed == "" {
		return "Sono il client LLM in modalità dummy. In un contesto reale qui ci sarebbe la risposta del modello.", nil
	}
	return d.Fixed, nil
}

// DummyCanonicalizerJSON is the canned response for a canonicalizer call:
// no concepts mapped, no unmapped terms, domain fixed to contractual
// liability, matching the original's _build_dummy_canonicalizer_output.
func DummyCanonicalizerJSON(question string) string {
	return `{"question":` + jsonQuote(question) + `,"language":"it","domain":"civil_law_contractual_liability","concepts":[],"unmapped_terms":[]}`
}

func jsonQuote(s string) string {
	out := make([]byte, 0, len(s)+2)
	out = append(out, '"')
	for _, r := range s {
		switch r {
		case '"':
			out = append(out, '\\', '"')
		case '\\':
			out = append(out, '\\', '\\')
		case '\n':
			out = append(out, '\\', 'n')
		default:
			out = append(out, string(r)...)
		}
	}
	out = append(out, '"')
	return string(out)
}
