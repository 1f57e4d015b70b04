package graph

import (
	"errors"
	"fmt"
)

var (
	// ErrEntryPointNotSet is returned when the entry point of the graph is not set.
	ErrEntryPointNotSet = errors.New("entry point not set")

	// ErrStepNotFound is returned when a step is not found in the graph.
	ErrStepNotFound = errors.New("step not found")

	// ErrNoOutgoingEdge is returned when no outgoing edge is found for a step.
	ErrNoOutgoingEdge = errors.New("no outgoing edge found for step")

	// ErrRunNotSuspended is returned when Resume is called for a run whose
	// latest checkpoint carries no suspend record.
	ErrRunNotSuspended = errors.New("run is not suspended")
)

// GraphError reports a malformed graph or schema. It is raised at build or
// validation time and indicates a programming defect in the pipeline
// definition, never a runtime condition of a healthy graph.
type GraphError struct {
	Code    string
	Message string
}

func (e *GraphError) Error() string {
	if e.Code != "" {
		return e.Code + ": " + e.Message
	}
	return e.Message
}

// RouterError reports a conditional router returning a label outside its
// declared set. Fatal to the run.
type RouterError struct {
	// Step is the step whose router misbehaved.
	Step string
	// Label is the undeclared label the router returned.
	Label string
}

func (e *RouterError) Error() string {
	return fmt.Sprintf("router for step %s returned undeclared label %q", e.Step, e.Label)
}

// Step error kinds used by the engine itself. Business-logic steps are free
// to define their own kinds.
const (
	// StepErrTimeout marks a step invocation that exceeded its timeout.
	StepErrTimeout = "timeout"
	// StepErrPanic marks a step whose body panicked.
	StepErrPanic = "panic"
)

// StepError is a business-logic failure inside a step. Retryable errors may
// be retried by the executor's retry policy; non-retryable ones abort the run.
type StepError struct {
	// Kind classifies the failure (e.g. "timeout", "rate_limit").
	Kind string
	// Retryable indicates whether a retry policy may re-invoke the step.
	Retryable bool
	// Err is the underlying cause, if any.
	Err error
}

func (e *StepError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("step error (%s): %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("step error (%s)", e.Kind)
}

// Unwrap returns the underlying cause.
func (e *StepError) Unwrap() error {
	return e.Err
}

// NewStepError wraps err as a StepError of the given kind.
func NewStepError(kind string, retryable bool, err error) *StepError {
	return &StepError{Kind: kind, Retryable: retryable, Err: err}
}

// IsRetryable reports whether err is a StepError marked retryable.
func IsRetryable(err error) bool {
	var se *StepError
	if errors.As(err, &se) {
		return se.Retryable
	}
	return false
}

// RunError reports a run that failed at execution time: a fan-out cohort
// member failed, a write conflict was detected, or a step misused the
// result contract. The run does not resume.
type RunError struct {
	// RunID identifies the failed run.
	RunID string
	// Step is the step active when the run failed, if known.
	Step string
	// Message describes the failure.
	Message string
	// Err is the underlying cause, if any.
	Err error
}

func (e *RunError) Error() string {
	msg := fmt.Sprintf("run %s failed", e.RunID)
	if e.Step != "" {
		msg += " at step " + e.Step
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *RunError) Unwrap() error {
	return e.Err
}
