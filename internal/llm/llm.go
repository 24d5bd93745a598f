// Package llm is the synchronous client boundary between the pipeline and
// a language model: retry with exponential backoff and jitter, classified
// failure reasons, a per-operation status ledger, and JSON extraction from
// free-form model output.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"regexp"
	"strings"
	"sync"
	"time"
)

// ErrorReason classifies why an LLM call ultimately failed, after retries
// are exhausted.
type ErrorReason string

const (
	ReasonTimeout    ErrorReason = "timeout"
	ReasonThrottled  ErrorReason = "throttled"
	ReasonConnection ErrorReason = "connection"
	ReasonEmpty      ErrorReason = "empty"
	ReasonError      ErrorReason = "error"
)

// CallError wraps the last failure from a retried operation with its
// classified reason.
type CallError struct {
	Operation string
	Reason    ErrorReason
	Err       error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("%s failed due to %s: %v", e.Operation, e.Reason, e.Err)
}

func (e *CallError) Unwrap() error { return e.Err }

// Client is the boundary every backend (dummy, Gemini) implements: a single
// synchronous call taking a prompt and returning raw model text.
type Client interface {
	Call(ctx context.Context, prompt string, timeout time.Duration) (string, error)
}

// RetryConfig tunes the backoff between attempts.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

// Runtime wraps a Client with retry, status tracking, and JSON extraction.
// It is safe for concurrent use.
type Runtime struct {
	client Client
	retry  RetryConfig

	mu     sync.Mutex
	status map[string]ErrorReason
}

// NewRuntime builds a Runtime around client with the given retry policy.
func NewRuntime(client Client, retry RetryConfig) *Runtime {
	if retry.MaxAttempts <= 0 {
		retry.MaxAttempts = 3
	}
	if retry.BaseDelay <= 0 {
		retry.BaseDelay = 500 * time.Millisecond
	}
	return &Runtime{client: client, retry: retry, status: map[string]ErrorReason{}}
}

// Call runs operationName against the underlying client, retrying on
// failure with exponential backoff plus jitter, and records the final
// per-operation status (either "ok" or the classified failure reason).
func (r *Runtime) Call(ctx context.Context, operationName, prompt string, timeout time.Duration) (string, error) {
	var lastErr error
	var reason ErrorReason

	for attempt := 1; attempt <= r.retry.MaxAttempts; attempt++ {
		response, err := r.client.Call(ctx, prompt, timeout)
		if err == nil {
			if strings.TrimSpace(response) == "" {
				lastErr = errors.New("model returned an empty response")
				reason = ReasonEmpty
			} else {
				r.recordStatus(operationName, "ok")
				return response, nil
			}
		} else {
			lastErr = err
			reason = classifyError(err)
		}

		if attempt < r.retry.MaxAttempts {
			delay := r.retry.BaseDelay * time.Duration(1<<uint(attempt-1))
			jitter := time.Duration(rand.Int63n(int64(r.retry.BaseDelay) + 1))
			select {
			case <-time.After(delay + jitter):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
	}

	r.recordStatus(operationName, reason)
	return "", &CallError{Operation: operationName, Reason: reason, Err: lastErr}
}

func (r *Runtime) recordStatus(operation string, status interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch v := status.(type) {
	case string:
		r.status[operation] = ErrorReason(v)
	case ErrorReason:
		r.status[operation] = v
	}
}

// PopStatuses returns every recorded operation status since the last call
// and clears the ledger, matching the drain-on-read semantics the pipeline
// uses to attach a per-request LLM health summary to its result.
func (r *Runtime) PopStatuses() map[string]ErrorReason {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.status
	r.status = map[string]ErrorReason{}
	return out
}

func classifyError(err error) ErrorReason {
	var callErr *CallError
	if errors.As(err, &callErr) && callErr.Reason != "" {
		return callErr.Reason
	}
	text := strings.ToLower(err.Error())
	switch {
	case strings.Contains(text, "timeout") || errors.Is(err, context.DeadlineExceeded):
		return ReasonTimeout
	case strings.Contains(text, "429"), strings.Contains(text, "rate limit"), strings.Contains(text, "didn't generate first token"):
		return ReasonThrottled
	case strings.Contains(text, "connection"):
		return ReasonConnection
	default:
		return ReasonError
	}
}

var (
	codeFence  = regexp.MustCompile("```json\\s*|```\\s*")
	jsonLooseRe = regexp.MustCompile(`(?s)\{[^{}]*(?:\{[^{}]*\}[^{}]*)*\}`)
)

// ExtractJSON attempts, in order, five increasingly permissive strategies to
// pull a JSON object out of free-form model text: parse the whole text;
// find the first balanced {...} block; find the last balanced {...} block;
// strip markdown code fences and retry; and finally a best-effort regex
// match. It reports whether any strategy succeeded.
func ExtractJSON(text string, out interface{}) bool {
	trimmed := strings.TrimSpace(text)

	if json.Unmarshal([]byte(trimmed), out) == nil {
		return true
	}

	if candidate, ok := firstBalancedBraces(trimmed); ok && json.Unmarshal([]byte(candidate), out) == nil {
		return true
	}

	if candidate, ok := lastBalancedBraces(trimmed); ok && json.Unmarshal([]byte(candidate), out) == nil {
		return true
	}

	cleaned := strings.TrimSpace(codeFence.ReplaceAllString(trimmed, ""))
	if json.Unmarshal([]byte(cleaned), out) == nil {
		return true
	}

	if match := jsonLooseRe.FindString(trimmed); match != "" && json.Unmarshal([]byte(match), out) == nil {
		return true
	}

	return false
}

func firstBalancedBraces(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start == -1 {
		return "", false
	}
	depth := 0
	for i := start; i < len(text); i++ {
		switch text[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}

func lastBalancedBraces(text string) (string, bool) {
	end := strings.LastIndexByte(text, '}')
	if end == -1 {
		return "", false
	}
	depth := 0
	for i := end; i >= 0; i-- {
		switch text[i] {
		case '}':
			depth++
		case '{':
			depth--
			if depth == 0 {
				return text[i : end+1], true
			}
		}
	}
	return "", false
}
