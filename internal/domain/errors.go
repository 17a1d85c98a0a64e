package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrMalformedURL is returned when the input has no parseable scheme or host
	ErrMalformedURL = errors.New("malformed product URL")

	// ErrBadInput is returned when an agent rejects its input
	ErrBadInput = errors.New("bad input")

	// ErrInvalidRecord is returned when a record violates a ProductRecord invariant
	ErrInvalidRecord = errors.New("invalid product record")

	// ErrExtractionExhausted is returned when every applicable strategy failed
	ErrExtractionExhausted = errors.New("extraction exhausted")

	// ErrQuotaExceeded is returned when an identity has used its daily allowance
	ErrQuotaExceeded = errors.New("daily quota exceeded")

	// ErrAgentExecution wraps failures raised while an agent was executing
	ErrAgentExecution = errors.New("agent execution failed")

	// ErrAgentNotFound is returned when no agent is registered under a name
	ErrAgentNotFound = errors.New("agent not found")

	// ErrTaskTerminal is returned when a finished task is asked to change state
	ErrTaskTerminal = errors.New("task already in terminal state")

	// ErrLLMNotConfigured is returned by the LLM client when no provider is set up
	ErrLLMNotConfigured = errors.New("LLM provider not configured")

	// ErrLLMRateLimited is returned when the LLM provider throttles the request
	ErrLLMRateLimited = errors.New("LLM provider rate limited")

	// ErrLLMTransport is returned when the LLM provider could not be reached
	ErrLLMTransport = errors.New("LLM transport failure")

	// ErrLLMModel is returned when the provider answered but the model call failed
	ErrLLMModel = errors.New("LLM model error")

	// ErrFetchTimeout is returned when a page fetch exceeds its deadline
	ErrFetchTimeout = errors.New("page fetch timed out")

	// ErrFetchTransport is returned when a page could not be fetched at all
	ErrFetchTransport = errors.New("page fetch failed")

	// ErrStoreUnavailable is returned when a backing store cannot be reached
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrProductNotFound is returned when the catalog has no product for a URL
	ErrProductNotFound = errors.New("product not found")
)

// FailureKind is the structured reason a strategy did not produce a record
type FailureKind string

const (
	FailureLLMTimeout       FailureKind = "llm_timeout"
	FailureLLMUnavailable   FailureKind = "llm_unavailable"
	FailureLLMBadOutput     FailureKind = "llm_bad_output"
	FailureHTTPTimeout      FailureKind = "http_timeout"
	FailureHTTPBlocked      FailureKind = "http_blocked"
	FailureHTTPError        FailureKind = "http_error"
	FailureParseMiss        FailureKind = "parse_miss"
	FailureDeadlineExceeded FailureKind = "deadline_exceeded"
)

// Valid reports whether k is a recognized failure kind
func (k FailureKind) Valid() bool {
	switch k {
	case FailureLLMTimeout, FailureLLMUnavailable, FailureLLMBadOutput,
		FailureHTTPTimeout, FailureHTTPBlocked, FailureHTTPError,
		FailureParseMiss, FailureDeadlineExceeded:
		return true
	}
	return false
}

// StrategyError is the failure returned by a single extraction strategy
type StrategyError struct {
	Strategy ExtractionMethod
	Kind     FailureKind
	Err      error
}

func (e *StrategyError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Strategy, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Strategy, e.Kind, e.Err)
}

func (e *StrategyError) Unwrap() error { return e.Err }

// Attempt records one strategy run within an extraction
type Attempt struct {
	Strategy ExtractionMethod `json:"strategy"`
	Failure  FailureKind      `json:"failure,omitempty"`
	Elapsed  time.Duration    `json:"-"`
}

// Succeeded reports whether the attempt produced the returned record
func (a Attempt) Succeeded() bool { return a.Failure == "" }

// ExhaustedError is returned when no strategy produced a valid record
type ExhaustedError struct {
	Attempts []Attempt
}

func (e *ExhaustedError) Error() string {
	kinds := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		kinds = append(kinds, string(a.Strategy)+"="+string(a.Failure))
	}
	return fmt.Sprintf("%s: [%s]", ErrExtractionExhausted, strings.Join(kinds, ", "))
}

func (e *ExhaustedError) Is(target error) bool { return target == ErrExtractionExhausted }

// Kinds lists the failure kind of every attempt in order
func (e *ExhaustedError) Kinds() []FailureKind {
	return FailureKinds(e.Attempts)
}

// FailureKinds lists the failure kinds of the failed attempts in order.
// The result is never nil so it encodes as a JSON array.
func FailureKinds(attempts []Attempt) []FailureKind {
	out := make([]FailureKind, 0, len(attempts))
	for _, a := range attempts {
		if !a.Succeeded() {
			out = append(out, a.Failure)
		}
	}
	return out
}

// QuotaExceededError carries the limit and the next reset instant
type QuotaExceededError struct {
	Limit    int
	ResetsAt time.Time
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("%s: limit %d, resets at %s", ErrQuotaExceeded, e.Limit, e.ResetsAt.Format(time.RFC3339))
}

func (e *QuotaExceededError) Is(target error) bool { return target == ErrQuotaExceeded }

// AgentExecutionError captures an error or panic raised inside an agent
type AgentExecutionError struct {
	Agent   string
	Message string
}

func (e *AgentExecutionError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrAgentExecution, e.Agent, e.Message)
}

func (e *AgentExecutionError) Is(target error) bool { return target == ErrAgentExecution }
