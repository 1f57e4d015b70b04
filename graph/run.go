package graph

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/draftforge/taskgraph/store"
)

// runState is the mutable state of a single run inside the scheduler loop.
// It is owned by one goroutine; nothing here needs locking.
type runState struct {
	exec     *Executor
	g        *Graph
	runID    string
	state    State
	frontier []string
	counters map[string]int
	seq      int
	version  int
}

// instanceResult is one instance's partial update, tagged with the step
// that produced it so write declarations can be enforced at merge time.
type instanceResult struct {
	step   string
	update Update
}

// suspendSignal carries a step's suspend request out of the cohort.
type suspendSignal struct {
	step    string
	payload any
}

// loop is the scheduler: execute the frontier, merge the cohort's updates
// in deterministic order, evaluate transitions, checkpoint, repeat until
// every branch reaches END or the run suspends or fails.
func (r *runState) loop(ctx context.Context) (Outcome, error) {
	logger := r.exec.opts.Logger
	tracer := r.exec.opts.Tracer

	span := tracer.StartSpan(ctx, TraceEventRunStart, r.runID, "")

	for {
		active := activeSteps(r.frontier)
		if len(active) == 0 {
			logger.Info("run %s finished after %d steps", r.runID, r.seq)
			tracer.EndSpan(ctx, span, nil)
			return Outcome{Final: r.state}, nil
		}

		if err := ctx.Err(); err != nil {
			err = &RunError{RunID: r.runID, Message: "run canceled", Err: err}
			tracer.EndSpan(ctx, span, err)
			return Outcome{}, err
		}

		if max := r.exec.opts.MaxSteps; max > 0 && r.seq >= max {
			err := &RunError{RunID: r.runID, Message: fmt.Sprintf("step limit %d exceeded", max)}
			tracer.EndSpan(ctx, span, err)
			return Outcome{}, err
		}

		// Cycle heads count every execution, including the first.
		for _, name := range active {
			if _, ok := r.g.cycles[name]; ok {
				r.counters[name]++
			}
		}

		results, suspend, err := r.executeFrontier(ctx, active)
		if err != nil {
			if !errorIsFatalGraphDefect(err) {
				err = &RunError{RunID: r.runID, Message: "frontier execution failed", Err: err}
			}
			logger.Error("run %s failed: %v", r.runID, err)
			tracer.EndSpan(ctx, span, err)
			return Outcome{}, err
		}

		if suspend != nil {
			r.seq++
			record := &store.SuspendRecord{Step: suspend.step, Payload: suspend.payload}
			if err := r.saveCheckpoint(ctx, []string{suspend.step}, record); err != nil {
				tracer.EndSpan(ctx, span, err)
				return Outcome{}, err
			}
			logger.Info("run %s suspended at %s", r.runID, suspend.step)
			sspan := tracer.StartSpan(ctx, TraceEventSuspend, r.runID, suspend.step)
			tracer.EndSpan(ctx, sspan, nil)
			tracer.EndSpan(ctx, span, nil)
			return Outcome{Suspended: &Suspension{RunID: r.runID, Step: suspend.step, Payload: suspend.payload}}, nil
		}

		merged, err := r.applyUpdates(r.state, results)
		if err != nil {
			logger.Error("run %s merge failed: %v", r.runID, err)
			tracer.EndSpan(ctx, span, err)
			return Outcome{}, err
		}
		r.state = merged
		r.seq++

		next, err := r.nextFrontier(ctx, active, results)
		if err != nil {
			logger.Error("run %s transition failed: %v", r.runID, err)
			tracer.EndSpan(ctx, span, err)
			return Outcome{}, err
		}

		if err := r.saveCheckpoint(ctx, next, nil); err != nil {
			tracer.EndSpan(ctx, span, err)
			return Outcome{}, err
		}
		r.frontier = next
	}
}

// activeSteps filters END out of the frontier; a branch that routed to END
// is simply done while its siblings keep running.
func activeSteps(frontier []string) []string {
	active := make([]string, 0, len(frontier))
	for _, name := range frontier {
		if name != END {
			active = append(active, name)
		}
	}
	return active
}

// executeFrontier runs every frontier step concurrently as one cohort and
// returns their updates in frontier order, with fan-out children nested in
// input order. The first failure cancels the cohort's context and no
// update from any instance is merged.
func (r *runState) executeFrontier(ctx context.Context, active []string) ([]instanceResult, *suspendSignal, error) {
	cohortCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type slot struct {
		results []instanceResult
		suspend *suspendSignal
		err     error
	}

	slots := make([]slot, len(active))
	var wg sync.WaitGroup
	for i, name := range active {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			defer func() {
				if p := recover(); p != nil {
					slots[i].err = NewStepError(StepErrPanic, false, fmt.Errorf("panic in step %s: %v", name, p))
					cancel()
				}
			}()
			results, suspend, err := r.runInstance(cohortCtx, name, nil, 0, len(active))
			slots[i] = slot{results: results, suspend: suspend, err: err}
			if err != nil {
				cancel()
			}
		}(i, name)
	}
	wg.Wait()

	// Prefer the originating failure over a sibling's cancellation.
	var firstErr error
	for _, s := range slots {
		if s.err == nil {
			continue
		}
		if firstErr == nil || errors.Is(firstErr, context.Canceled) {
			firstErr = s.err
		}
	}
	if firstErr != nil {
		return nil, nil, firstErr
	}

	var all []instanceResult
	var suspend *suspendSignal
	for _, s := range slots {
		if s.suspend != nil {
			suspend = s.suspend
		}
		all = append(all, s.results...)
	}
	return all, suspend, nil
}

// runInstance executes one step instance, expanding fan-out results into
// child instances recursively. overlay holds a fan-out child's private
// input fields layered over the shared state. The returned results are in
// declaration order regardless of completion order.
func (r *runState) runInstance(ctx context.Context, name string, overlay map[string]any, depth, cohortSize int) ([]instanceResult, *suspendSignal, error) {
	step, ok := r.g.steps[name]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrStepNotFound, name)
	}

	view := StateView{base: r.state, overlay: overlay, reads: readSet(step)}
	result, err := r.invokeStep(ctx, step, view)
	if err != nil {
		return nil, nil, err
	}

	switch res := result.(type) {
	case Update:
		return []instanceResult{{step: name, update: res}}, nil, nil

	case Suspend:
		if depth > 0 || cohortSize > 1 {
			return nil, nil, &RunError{
				RunID:   r.runID,
				Step:    name,
				Message: "cannot suspend inside a parallel cohort",
			}
		}
		return nil, &suspendSignal{step: name, payload: res.Payload}, nil

	case FanOut:
		if _, ok := r.g.steps[res.Target]; !ok {
			return nil, nil, fmt.Errorf("%w: fan-out target %s from %s", ErrStepNotFound, res.Target, name)
		}
		if depth == 0 {
			if _, ok := r.g.fanOutEdges[name]; !ok {
				return nil, nil, &GraphError{
					Code:    "NO_FAN_OUT_EDGE",
					Message: fmt.Sprintf("step %s emitted a fan-out but declares no fan-out edge", name),
				}
			}
		}
		return r.runChildren(ctx, res, depth)

	case nil:
		return []instanceResult{{step: name}}, nil, nil

	default:
		return nil, nil, fmt.Errorf("step %s returned unknown result type %T", name, result)
	}
}

// runChildren executes a fan-out's child instances concurrently and
// returns their results concatenated in input order.
func (r *runState) runChildren(ctx context.Context, fo FanOut, depth int) ([]instanceResult, *suspendSignal, error) {
	type slot struct {
		results []instanceResult
		err     error
	}

	slots := make([]slot, len(fo.Inputs))
	var wg sync.WaitGroup
	for i, input := range fo.Inputs {
		wg.Add(1)
		go func(i int, input map[string]any) {
			defer wg.Done()
			defer func() {
				if p := recover(); p != nil {
					slots[i].err = NewStepError(StepErrPanic, false, fmt.Errorf("panic in step %s: %v", fo.Target, p))
				}
			}()
			results, suspend, err := r.runInstance(ctx, fo.Target, input, depth+1, len(fo.Inputs))
			if err == nil && suspend != nil {
				err = &RunError{RunID: r.runID, Step: fo.Target, Message: "cannot suspend inside a parallel cohort"}
			}
			slots[i] = slot{results: results, err: err}
		}(i, input)
	}
	wg.Wait()

	var all []instanceResult
	for _, s := range slots {
		if s.err != nil {
			return nil, nil, s.err
		}
		all = append(all, s.results...)
	}
	return all, nil, nil
}

// invokeStep calls a step with timeout, retry, and tracing applied.
func (r *runState) invokeStep(ctx context.Context, step Step, view StateView) (StepResult, error) {
	tracer := r.exec.opts.Tracer
	timeout := r.exec.opts.StepTimeout

	invoke := func(ctx context.Context) (StepResult, error) {
		span := tracer.StartSpan(ctx, TraceEventStepStart, r.runID, step.Name)

		callCtx := ctx
		if timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		type stepReturn struct {
			result StepResult
			err    error
		}
		ch := make(chan stepReturn, 1)
		go func() {
			defer func() {
				if p := recover(); p != nil {
					ch <- stepReturn{err: NewStepError(StepErrPanic, false, fmt.Errorf("panic in step %s: %v", step.Name, p))}
				}
			}()
			result, err := step.Func(callCtx, view)
			ch <- stepReturn{result: result, err: err}
		}()

		select {
		case ret := <-ch:
			tracer.EndSpan(ctx, span, ret.err)
			return ret.result, ret.err
		case <-callCtx.Done():
			err := callCtx.Err()
			if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
				err = NewStepError(StepErrTimeout, true, fmt.Errorf("step %s exceeded timeout %v", step.Name, timeout))
			}
			tracer.EndSpan(ctx, span, err)
			return nil, err
		}
	}

	result, err := invokeWithRetry(ctx, r.exec.opts.Retry, invoke)
	if err != nil {
		var se *StepError
		if !errors.As(err, &se) {
			err = NewStepError("failed", false, fmt.Errorf("step %s: %w", step.Name, err))
		}
	}
	return result, err
}

// applyUpdates merges a cohort's updates into state in their deterministic
// collection order. Every written field must be declared by the producing
// step, and no two instances may write the same overwrite-policy field.
func (r *runState) applyUpdates(state State, results []instanceResult) (State, error) {
	overwriters := make(map[string]string)
	for _, res := range results {
		declared := make(map[string]struct{}, len(r.g.steps[res.step].Writes))
		for _, f := range r.g.steps[res.step].Writes {
			declared[f] = struct{}{}
		}
		for field := range res.update {
			if _, ok := declared[field]; !ok {
				return nil, &RunError{
					RunID:   r.runID,
					Step:    res.step,
					Message: fmt.Sprintf("undeclared write to field %q", field),
				}
			}
			spec, ok := r.g.schema.Field(field)
			if !ok {
				return nil, &RunError{
					RunID:   r.runID,
					Step:    res.step,
					Message: fmt.Sprintf("write to unknown field %q", field),
				}
			}
			if spec.Merge == MergeOverwrite {
				if prev, dup := overwriters[field]; dup {
					return nil, &RunError{
						RunID:   r.runID,
						Step:    res.step,
						Message: fmt.Sprintf("overwrite conflict on field %q between %s and %s", field, prev, res.step),
					}
				}
				overwriters[field] = res.step
			}
		}
	}

	merged := state
	for _, res := range results {
		if len(res.update) == 0 {
			continue
		}
		next, err := r.g.schema.Apply(merged, res.update)
		if err != nil {
			return nil, err
		}
		merged = next
	}
	return merged, nil
}

// nextFrontier evaluates the outgoing transition of each executed step
// and returns the deduplicated next frontier in frontier order. A step
// that emitted a fan-out transitions to its declared collector.
func (r *runState) nextFrontier(ctx context.Context, active []string, results []instanceResult) ([]string, error) {
	var next []string
	seen := make(map[string]struct{})
	add := func(name string) {
		if _, ok := seen[name]; ok {
			return
		}
		seen[name] = struct{}{}
		next = append(next, name)
	}

	for _, name := range active {
		if collector, ok := r.g.fanOutEdges[name]; ok {
			add(collector)
			continue
		}

		if ce, ok := r.g.conditionalEdges[name]; ok {
			label, err := r.routeFrom(ctx, name, ce)
			if err != nil {
				return nil, err
			}
			to, ok := ce.pathMap[label]
			if !ok {
				return nil, &RouterError{Step: name, Label: label}
			}
			add(to)
			continue
		}

		targets := r.g.fixedTargets(name)
		if len(targets) == 0 {
			return nil, fmt.Errorf("%w: %s", ErrNoOutgoingEdge, name)
		}
		for _, to := range targets {
			add(to)
		}
	}
	return next, nil
}

// routeFrom picks the label for a conditional edge, letting the cycle
// guard override the router once a head's execution count passes its
// bound.
func (r *runState) routeFrom(ctx context.Context, name string, ce conditionalEdge) (string, error) {
	if cs, ok := r.g.cycles[name]; ok {
		if r.counters[name] > cs.bound {
			r.exec.opts.Logger.Info("run %s: cycle at %s hit bound %d, forcing %q", r.runID, name, cs.bound, cs.exitLabel)
			return cs.exitLabel, nil
		}
	}

	view := StateView{base: r.state}
	label := ce.router.Route(ctx, view)
	for _, l := range ce.router.Labels {
		if l == label {
			return label, nil
		}
	}
	return "", &RouterError{Step: name, Label: label}
}

// saveCheckpoint persists the run's durable state with a monotonically
// increasing version.
func (r *runState) saveCheckpoint(ctx context.Context, frontier []string, suspended *store.SuspendRecord) error {
	r.version++

	counters := make(map[string]int, len(r.counters))
	for k, v := range r.counters {
		counters[k] = v
	}

	cp := &store.Checkpoint{
		ID:            uuid.New().String(),
		RunID:         r.runID,
		State:         r.state,
		Frontier:      frontier,
		Suspended:     suspended,
		CycleCounters: counters,
		Step:          r.seq,
		Version:       r.version,
		Timestamp:     time.Now(),
	}
	if err := r.exec.opts.Store.Save(ctx, cp); err != nil {
		return &RunError{RunID: r.runID, Message: "checkpoint save failed", Err: err}
	}
	return nil
}

// readSet builds a step's read projection. A step sees exactly the fields
// it declares; an empty declaration yields an empty view.
func readSet(step Step) map[string]struct{} {
	reads := make(map[string]struct{}, len(step.Reads))
	for _, f := range step.Reads {
		reads[f] = struct{}{}
	}
	return reads
}
