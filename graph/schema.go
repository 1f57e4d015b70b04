package graph

import (
	"fmt"
	"maps"
	"reflect"
)

// State is the shared, evolving state of a run: a keyed bag of fields whose
// shape is declared by a Schema.
type State = map[string]any

// MergePolicy defines how a new value for a field is combined with the
// existing one when a step result is merged into State.
type MergePolicy int

const (
	// MergeOverwrite replaces the old value with the new one.
	// Default for scalars and structured records.
	MergeOverwrite MergePolicy = iota

	// MergeAppend concatenates the new value(s) onto an ordered sequence.
	// Used for accumulated logs, search results, conversation history.
	MergeAppend

	// MergeUnion merges a map[string]any key-by-key into the existing
	// mapping. Same-key collisions are resolved by the field's Elem policy.
	MergeUnion
)

// String returns the policy name.
func (p MergePolicy) String() string {
	switch p {
	case MergeOverwrite:
		return "overwrite"
	case MergeAppend:
		return "append"
	case MergeUnion:
		return "union"
	default:
		return fmt.Sprintf("unknown(%d)", int(p))
	}
}

// FieldSpec declares a single named state field and its merge behavior.
type FieldSpec struct {
	// Name is the field key in State.
	Name string

	// Merge is the policy applied when a step update targets this field.
	Merge MergePolicy

	// Elem is the collision policy for MergeUnion fields: how two values
	// for the same inner key are combined. Ignored for other policies.
	// Zero value means overwrite.
	Elem MergePolicy
}

// Schema is the closed set of named fields a graph's State may contain.
// It is declared once per graph definition and validated at build time,
// rather than discovered at runtime.
type Schema struct {
	fields map[string]FieldSpec
	order  []string
}

// NewSchema builds a Schema from field specs. Duplicate or empty field
// names fail with a GraphError.
func NewSchema(specs ...FieldSpec) (*Schema, error) {
	s := &Schema{
		fields: make(map[string]FieldSpec, len(specs)),
		order:  make([]string, 0, len(specs)),
	}
	for _, spec := range specs {
		if spec.Name == "" {
			return nil, &GraphError{Code: "EMPTY_FIELD", Message: "schema field name cannot be empty"}
		}
		if _, exists := s.fields[spec.Name]; exists {
			return nil, &GraphError{Code: "DUPLICATE_FIELD", Message: "duplicate schema field: " + spec.Name}
		}
		if spec.Merge == MergeUnion && spec.Elem == MergeUnion {
			return nil, &GraphError{Code: "BAD_FIELD", Message: "union field " + spec.Name + " cannot use union as element policy"}
		}
		s.fields[spec.Name] = spec
		s.order = append(s.order, spec.Name)
	}
	return s, nil
}

// Field returns the spec for a named field.
func (s *Schema) Field(name string) (FieldSpec, bool) {
	spec, ok := s.fields[name]
	return spec, ok
}

// Fields returns the field names in declaration order.
func (s *Schema) Fields() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Init validates caller-supplied initial values against the schema and
// returns a fresh State. Unknown keys are rejected.
func (s *Schema) Init(initial State) (State, error) {
	state := make(State, len(s.order))
	for k, v := range initial {
		if _, ok := s.fields[k]; !ok {
			return nil, &GraphError{Code: "UNDECLARED_FIELD", Message: "initial state key not in schema: " + k}
		}
		state[k] = v
	}
	return state, nil
}

// Apply merges an update into the current state using each field's declared
// policy, returning a new map. The current state is never mutated.
func (s *Schema) Apply(current State, update Update) (State, error) {
	result := make(State, len(current)+len(update))
	maps.Copy(result, current)

	for k, v := range update {
		spec, ok := s.fields[k]
		if !ok {
			return nil, &GraphError{Code: "UNDECLARED_FIELD", Message: "update key not in schema: " + k}
		}

		switch spec.Merge {
		case MergeOverwrite:
			result[k] = v
		case MergeAppend:
			merged, err := mergeAppend(result[k], v)
			if err != nil {
				return nil, fmt.Errorf("failed to merge field %s: %w", k, err)
			}
			result[k] = merged
		case MergeUnion:
			merged, err := mergeUnion(result[k], v, spec.Elem)
			if err != nil {
				return nil, fmt.Errorf("failed to merge field %s: %w", k, err)
			}
			result[k] = merged
		}
	}

	return result, nil
}

// mergeAppend concatenates new onto current. It supports appending a slice
// to a slice, or a single element to a slice.
func mergeAppend(current, new any) (any, error) {
	if current == nil {
		newVal := reflect.ValueOf(new)
		if newVal.Kind() == reflect.Slice {
			return new, nil
		}
		sliceType := reflect.SliceOf(reflect.TypeOf(new))
		slice := reflect.MakeSlice(sliceType, 0, 1)
		slice = reflect.Append(slice, newVal)
		return slice.Interface(), nil
	}

	currVal := reflect.ValueOf(current)
	newVal := reflect.ValueOf(new)

	if currVal.Kind() != reflect.Slice {
		return nil, fmt.Errorf("current value is not a slice")
	}

	if newVal.Kind() == reflect.Slice {
		if currVal.Type().Elem() != newVal.Type().Elem() {
			// Element types differ, widen both to []any
			result := make([]any, 0, currVal.Len()+newVal.Len())
			for i := 0; i < currVal.Len(); i++ {
				result = append(result, currVal.Index(i).Interface())
			}
			for i := 0; i < newVal.Len(); i++ {
				result = append(result, newVal.Index(i).Interface())
			}
			return result, nil
		}
		// Copy before appending so prior states stay untouched
		out := reflect.MakeSlice(currVal.Type(), 0, currVal.Len()+newVal.Len())
		out = reflect.AppendSlice(out, currVal)
		out = reflect.AppendSlice(out, newVal)
		return out.Interface(), nil
	}

	if currVal.Type().Elem() != newVal.Type() {
		result := make([]any, 0, currVal.Len()+1)
		for i := 0; i < currVal.Len(); i++ {
			result = append(result, currVal.Index(i).Interface())
		}
		return append(result, new), nil
	}
	out := reflect.MakeSlice(currVal.Type(), 0, currVal.Len()+1)
	out = reflect.AppendSlice(out, currVal)
	out = reflect.Append(out, newVal)
	return out.Interface(), nil
}

// mergeUnion merges the new mapping into the current one key-by-key.
// Collisions on the same inner key are resolved by elem.
func mergeUnion(current, new any, elem MergePolicy) (any, error) {
	newMap, ok := new.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("union value is not a map[string]any, got %T", new)
	}

	var currMap map[string]any
	if current != nil {
		currMap, ok = current.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("current value is not a map[string]any, got %T", current)
		}
	}

	result := make(map[string]any, len(currMap)+len(newMap))
	maps.Copy(result, currMap)

	for k, v := range newMap {
		existing, exists := result[k]
		if !exists || elem == MergeOverwrite {
			result[k] = v
			continue
		}
		switch elem {
		case MergeAppend:
			merged, err := mergeAppend(existing, v)
			if err != nil {
				return nil, fmt.Errorf("union collision on key %s: %w", k, err)
			}
			result[k] = merged
		default:
			result[k] = v
		}
	}

	return result, nil
}
