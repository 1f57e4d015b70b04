package graph

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/draftforge/taskgraph/log"
	"github.com/draftforge/taskgraph/store"
	"github.com/draftforge/taskgraph/store/memory"
)

// Options configures an Executor. Zero values are valid: runs checkpoint to
// an in-memory store, log through the package default logger, and apply no
// step timeout, retry policy, or step limit.
type Options struct {
	// Store persists a checkpoint after every merge and on suspend.
	Store store.CheckpointStore

	// Logger receives engine logs.
	Logger log.Logger

	// Tracer receives execution spans. May be nil.
	Tracer *Tracer

	// MaxSteps limits scheduler iterations to guard against runaway
	// graphs. 0 means no limit.
	MaxSteps int

	// StepTimeout bounds each step invocation. Expiry surfaces as a
	// retryable StepError. 0 means no timeout.
	StepTimeout time.Duration

	// Retry re-invokes steps that fail with a retryable StepError.
	// Nil means a single attempt.
	Retry *RetryConfig
}

// Executor drives runs of a compiled graph. One Executor may drive many
// concurrent runs; the only state shared between them is the checkpoint
// store.
type Executor struct {
	runnable *Runnable
	opts     Options
}

// NewExecutor creates an executor for the given compiled graph.
func NewExecutor(runnable *Runnable, opts Options) *Executor {
	if opts.Store == nil {
		opts.Store = memory.NewMemoryCheckpointStore()
	}
	if opts.Logger == nil {
		opts.Logger = log.GetDefaultLogger()
	}
	return &Executor{runnable: runnable, opts: opts}
}

// Suspension reports a run halted awaiting external input. It is a normal,
// first-class outcome, not an error; the run stays resumable indefinitely.
type Suspension struct {
	// RunID identifies the suspended run.
	RunID string
	// Step is the step awaiting resumption.
	Step string
	// Payload is the opaque value the step surfaced to the caller.
	Payload any
}

// Outcome is the result of awaiting a run: either a final state or a
// suspension, never both.
type Outcome struct {
	// Final is the state after the run reached END. Nil if suspended.
	Final State
	// Suspended is set when the run halted at a suspend point.
	Suspended *Suspension
}

// RunHandle tracks an in-flight run.
type RunHandle struct {
	runID   string
	done    chan struct{}
	outcome Outcome
	err     error
}

// RunID returns the run's identifier.
func (h *RunHandle) RunID() string {
	return h.runID
}

// Await blocks until the run completes, suspends, or fails, or until ctx
// is done.
func (h *RunHandle) Await(ctx context.Context) (Outcome, error) {
	select {
	case <-h.done:
		return h.outcome, h.err
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

// Start begins a new run from the graph's entry point with the given
// initial state, executing in the background.
func (e *Executor) Start(ctx context.Context, runID string, initial State) (*RunHandle, error) {
	if runID == "" {
		return nil, fmt.Errorf("run ID cannot be empty")
	}

	g := e.runnable.graph
	state, err := g.schema.Init(initial)
	if err != nil {
		return nil, err
	}

	r := &runState{
		exec:     e,
		g:        g,
		runID:    runID,
		state:    state,
		frontier: []string{g.entryPoint},
		counters: make(map[string]int),
	}

	e.opts.Logger.Info("run %s starting at %s", runID, g.entryPoint)
	return e.launch(ctx, r), nil
}

// Run executes a new run synchronously and returns its outcome.
func (e *Executor) Run(ctx context.Context, runID string, initial State) (Outcome, error) {
	handle, err := e.Start(ctx, runID, initial)
	if err != nil {
		return Outcome{}, err
	}
	return handle.Await(ctx)
}

// Resume continues a suspended run. value is merged as if it were the
// Update of the step that suspended; a non-map value is accepted when that
// step declares exactly one write field. Execution continues from the
// transition following the suspended step.
func (e *Executor) Resume(ctx context.Context, runID string, value any) (*RunHandle, error) {
	cp, err := e.opts.Store.Latest(ctx, runID)
	if err != nil {
		return nil, err
	}
	if cp.Suspended == nil {
		return nil, fmt.Errorf("%w: %s", ErrRunNotSuspended, runID)
	}

	g := e.runnable.graph
	step, ok := g.steps[cp.Suspended.Step]
	if !ok {
		return nil, fmt.Errorf("%w: suspended step %s", ErrStepNotFound, cp.Suspended.Step)
	}

	update, err := resumeUpdate(step, value)
	if err != nil {
		return nil, err
	}

	r := &runState{
		exec:     e,
		g:        g,
		runID:    runID,
		state:    cp.State,
		counters: cp.CycleCounters,
		seq:      cp.Step,
		version:  cp.Version,
	}
	if r.counters == nil {
		r.counters = make(map[string]int)
	}
	if r.state == nil {
		r.state = make(State)
	}

	// The resume value is the suspended step's result: enforce its write
	// declaration and merge, then take the step's outgoing transition.
	merged, err := r.applyUpdates(r.state, []instanceResult{{step: step.Name, update: update}})
	if err != nil {
		return nil, err
	}
	r.state = merged
	r.seq++

	next, err := r.nextFrontier(ctx, []string{step.Name}, nil)
	if err != nil {
		return nil, err
	}
	r.frontier = next

	if err := r.saveCheckpoint(ctx, next, nil); err != nil {
		return nil, err
	}

	e.opts.Logger.Info("run %s resumed after %s", runID, step.Name)
	if e.opts.Tracer != nil {
		span := e.opts.Tracer.StartSpan(ctx, TraceEventResume, runID, step.Name)
		e.opts.Tracer.EndSpan(ctx, span, nil)
	}
	return e.launch(ctx, r), nil
}

// Recover continues a run from its latest checkpoint after a crash. The
// run must not be suspended; suspended runs need Resume with a value.
func (e *Executor) Recover(ctx context.Context, runID string) (*RunHandle, error) {
	cp, err := e.opts.Store.Latest(ctx, runID)
	if err != nil {
		return nil, err
	}
	if cp.Suspended != nil {
		return nil, fmt.Errorf("run %s is suspended at %s; use Resume", runID, cp.Suspended.Step)
	}

	r := &runState{
		exec:     e,
		g:        e.runnable.graph,
		runID:    runID,
		state:    cp.State,
		frontier: cp.Frontier,
		counters: cp.CycleCounters,
		seq:      cp.Step,
		version:  cp.Version,
	}
	if r.counters == nil {
		r.counters = make(map[string]int)
	}
	if r.state == nil {
		r.state = make(State)
	}

	e.opts.Logger.Info("run %s recovering at %v", runID, cp.Frontier)
	return e.launch(ctx, r), nil
}

// launch runs the scheduler loop in a goroutine and returns its handle.
func (e *Executor) launch(ctx context.Context, r *runState) *RunHandle {
	handle := &RunHandle{runID: r.runID, done: make(chan struct{})}
	go func() {
		defer close(handle.done)
		defer func() {
			if p := recover(); p != nil {
				handle.err = &RunError{RunID: r.runID, Message: fmt.Sprintf("scheduler panic: %v", p)}
			}
		}()
		handle.outcome, handle.err = r.loop(ctx)
	}()
	return handle
}

// resumeUpdate shapes a caller-supplied resume value into the suspended
// step's partial update.
func resumeUpdate(step Step, value any) (Update, error) {
	switch v := value.(type) {
	case Update:
		return v, nil
	case map[string]any:
		return Update(v), nil
	default:
		if len(step.Writes) == 1 {
			return Update{step.Writes[0]: value}, nil
		}
		return nil, fmt.Errorf("resume value for step %s must be a map of fields (step declares %d writes)", step.Name, len(step.Writes))
	}
}

// errorIsFatalGraphDefect reports whether err indicates a defect in the
// pipeline definition rather than a business-logic failure.
func errorIsFatalGraphDefect(err error) bool {
	var ge *GraphError
	var re *RouterError
	return errors.As(err, &ge) || errors.As(err, &re)
}
