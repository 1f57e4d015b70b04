package graph

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// TraceEvent represents different types of events in run execution
type TraceEvent string

const (
	// TraceEventRunStart indicates the start of a run
	TraceEventRunStart TraceEvent = "run_start"

	// TraceEventRunEnd indicates the end of a run
	TraceEventRunEnd TraceEvent = "run_end"

	// TraceEventStepStart indicates the start of a step invocation
	TraceEventStepStart TraceEvent = "step_start"

	// TraceEventStepEnd indicates the end of a step invocation
	TraceEventStepEnd TraceEvent = "step_end"

	// TraceEventStepError indicates a step invocation failed
	TraceEventStepError TraceEvent = "step_error"

	// TraceEventSuspend indicates the run suspended awaiting input
	TraceEventSuspend TraceEvent = "suspend"

	// TraceEventResume indicates the run resumed from a checkpoint
	TraceEventResume TraceEvent = "resume"
)

// TraceSpan represents a span of execution with timing and metadata
type TraceSpan struct {
	// ID is a unique identifier for this span
	ID string

	// Event indicates the type of event this span represents
	Event TraceEvent

	// RunID identifies the run this span belongs to
	RunID string

	// StepName is the name of the step being executed (if applicable)
	StepName string

	// StartTime is when this span began
	StartTime time.Time

	// EndTime is when this span completed (zero for ongoing spans)
	EndTime time.Time

	// Duration is the total time taken (calculated when span ends)
	Duration time.Duration

	// Error contains any error that occurred during execution
	Error error

	// Metadata contains additional key-value pairs for observability
	Metadata map[string]any
}

// TraceHook defines the interface for trace event handlers
type TraceHook interface {
	// OnEvent is called when a span starts and again when it ends
	OnEvent(ctx context.Context, span *TraceSpan)
}

// TraceHookFunc is a function adapter for TraceHook
type TraceHookFunc func(ctx context.Context, span *TraceSpan)

// OnEvent implements the TraceHook interface
func (f TraceHookFunc) OnEvent(ctx context.Context, span *TraceSpan) {
	f(ctx, span)
}

// Tracer fans execution spans out to registered hooks. A nil *Tracer is
// valid and records nothing.
type Tracer struct {
	hooks []TraceHook
}

// NewTracer creates a new tracer instance
func NewTracer(hooks ...TraceHook) *Tracer {
	return &Tracer{hooks: hooks}
}

// AddHook registers a new trace hook
func (t *Tracer) AddHook(hook TraceHook) {
	t.hooks = append(t.hooks, hook)
}

// StartSpan creates a new trace span and notifies hooks.
func (t *Tracer) StartSpan(ctx context.Context, event TraceEvent, runID, stepName string) *TraceSpan {
	if t == nil {
		return nil
	}
	span := &TraceSpan{
		ID:        uuid.New().String(),
		Event:     event,
		RunID:     runID,
		StepName:  stepName,
		StartTime: time.Now(),
		Metadata:  make(map[string]any),
	}
	for _, hook := range t.hooks {
		hook.OnEvent(ctx, span)
	}
	return span
}

// EndSpan completes a span and notifies hooks.
func (t *Tracer) EndSpan(ctx context.Context, span *TraceSpan, err error) {
	if t == nil || span == nil {
		return
	}
	span.EndTime = time.Now()
	span.Duration = span.EndTime.Sub(span.StartTime)
	span.Error = err
	for _, hook := range t.hooks {
		hook.OnEvent(ctx, span)
	}
}
