package graph

import "context"

// StateView is the projection of State a step receives: the fields the step
// declared as reads, overlaid with its per-instance fan-out input (if any).
// Steps never see or mutate the shared State directly.
type StateView struct {
	base    State
	overlay map[string]any
	reads   map[string]struct{} // nil means unrestricted (routers)
}

// Get returns the value for key. Overlay entries are always visible: they
// were handed to this instance explicitly. Base state is visible only for
// declared reads (or when the view is unrestricted).
func (v StateView) Get(key string) (any, bool) {
	if v.overlay != nil {
		if val, ok := v.overlay[key]; ok {
			return val, true
		}
	}
	if v.reads != nil {
		if _, ok := v.reads[key]; !ok {
			return nil, false
		}
	}
	val, ok := v.base[key]
	return val, ok
}

// String returns the value for key as a string. Missing or non-string
// values yield "".
func (v StateView) String(key string) string {
	val, ok := v.Get(key)
	if !ok {
		return ""
	}
	s, _ := val.(string)
	return s
}

// Int returns the value for key as an int. Missing or non-numeric values
// yield 0.
func (v StateView) Int(key string) int {
	val, ok := v.Get(key)
	if !ok {
		return 0
	}
	switch n := val.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}

// Keys returns the keys visible through this view, overlay included.
func (v StateView) Keys() []string {
	seen := make(map[string]struct{})
	var keys []string
	for k := range v.overlay {
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	for k := range v.base {
		if v.reads != nil {
			if _, ok := v.reads[k]; !ok {
				continue
			}
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	return keys
}

// StepResult is the closed set of outcomes a step may return: an Update,
// a FanOut directive, or a Suspend directive.
type StepResult interface {
	stepResult()
}

// Update is a partial state update: field name to new value. It is merged
// into State by the scheduler using each field's declared policy.
type Update map[string]any

func (Update) stepResult() {}

// FanOut directs the scheduler to run Target once per entry of Inputs,
// concurrently. Each instance sees the current state through Target's
// declared reads plus its own input overlay. The cohort's results are
// merged at a join barrier in Inputs order regardless of completion order.
type FanOut struct {
	// Target is the step to instantiate.
	Target string
	// Inputs holds one input projection per instance.
	Inputs []map[string]any
}

func (FanOut) stepResult() {}

// Suspend halts the run and surfaces Payload to the caller. The run stays
// resumable indefinitely; Resume merges the caller's value as this step's
// Update and continues from the transition after it.
type Suspend struct {
	Payload any
}

func (Suspend) stepResult() {}

// StepFunc is the uniform contract every business-logic step implements.
// It receives a read projection of State and returns exactly one StepResult,
// or an error (ideally a *StepError carrying kind and retryability).
type StepFunc func(ctx context.Context, view StateView) (StepResult, error)

// Step is a named unit of work over State. It declares which fields it
// reads and which it may write; undeclared writes are rejected at merge
// time, and reads outside the declaration are invisible to the body.
type Step struct {
	// Name is the unique identifier for the step.
	Name string

	// Description describes the functionality of the step.
	Description string

	// Reads lists the state fields projected into the step's view.
	Reads []string

	// Writes lists the state fields the step's Update may target.
	Writes []string

	// Func is the step body.
	Func StepFunc
}
