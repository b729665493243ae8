// Package domain contains pure, dependency-free domain models and types
// for the review consensus engine.
package domain

import (
	"fmt"
	"maps"
	"reflect"
	"sort"
	"time"
)

// Key represents a type-safe generic key for accessing values in State.
// The type parameter T ensures compile-time type safety when getting and
// setting values, eliminating the need for runtime type assertions.
type Key[T any] struct{ name string }

// NewKey creates a new Key with the specified name and type.
func NewKey[T any](name string) Key[T] {
	return Key[T]{name: name}
}

// Name returns the key's string form.
func (k Key[T]) Name() string { return k.name }

// Predefined state keys used by the post-dispatch pipeline.
var (
	// KeyRunID stores the identifier of the current review run.
	KeyRunID = Key[string]{"run.id"}

	// KeyBatchResults stores every successfully normalized batch.
	KeyBatchResults = Key[[]NormalizedBatchResult]{"batch_results"}

	// KeyReviewedFiles stores the union of files the dispatched batches read.
	KeyReviewedFiles = Key[[]string]{"reviewed_files"}

	// KeyConsensus stores the merged consensus.
	KeyConsensus = Key[*MergedConsensus]{"consensus"}

	// KeyIntegrity stores the target-collision record for the consensus.
	KeyIntegrity = Key[*IntegrityRecord]{"integrity"}

	// KeyGuardedAssessments stores the committed score set after the target
	// guard: stored assessments overlaid with the consensus.
	KeyGuardedAssessments = Key[map[string]AssessmentScore]{"guarded_assessments"}

	// KeyReviewState stores the persisted finding state being reconciled.
	KeyReviewState = Key[*ReviewState]{"review_state"}

	// KeyScanDiff stores the reconciliation diff.
	KeyScanDiff = Key[*ScanDiff]{"scan_diff"}
)

// deepCopyValue creates a deep copy of a value so that State contents cannot
// be mutated through a retrieved reference.
func deepCopyValue(value any) any {
	if value == nil {
		return nil
	}

	// time.Time is immutable and can be returned directly.
	if val, ok := value.(time.Time); ok {
		return val
	}

	v := reflect.ValueOf(value)
	switch v.Kind() {
	case reflect.Slice:
		if v.IsNil() {
			return value
		}
		newSlice := reflect.MakeSlice(v.Type(), v.Len(), v.Cap())
		for i := 0; i < v.Len(); i++ {
			setCopied(newSlice.Index(i), v.Index(i))
		}
		return newSlice.Interface()

	case reflect.Map:
		if v.IsNil() {
			return value
		}
		newMap := reflect.MakeMapWithSize(v.Type(), v.Len())
		iter := v.MapRange()
		for iter.Next() {
			elem := reflect.New(v.Type().Elem()).Elem()
			setCopied(elem, iter.Value())
			newMap.SetMapIndex(iter.Key(), elem)
		}
		return newMap.Interface()

	case reflect.Ptr:
		if v.IsNil() {
			return value
		}
		newPtr := reflect.New(v.Elem().Type())
		setCopied(newPtr.Elem(), v.Elem())
		return newPtr.Interface()

	case reflect.Struct:
		// Unexported fields keep their zero value; every type stored in State
		// exposes its data through exported fields.
		newStruct := reflect.New(v.Type()).Elem()
		for i := 0; i < v.NumField(); i++ {
			if newStruct.Field(i).CanSet() {
				setCopied(newStruct.Field(i), v.Field(i))
			}
		}
		return newStruct.Interface()

	default:
		return value
	}
}

// setCopied stores a deep copy of src into dst, leaving dst at its zero
// value when src holds a nil interface.
func setCopied(dst, src reflect.Value) {
	if src.Kind() == reflect.Interface && src.IsNil() {
		return
	}
	copied := deepCopyValue(src.Interface())
	if copied == nil {
		return
	}
	dst.Set(reflect.ValueOf(copied))
}

// State is an immutable collection of pipeline data. It uses copy-on-write
// semantics so stages can never observe each other's partial writes.
type State struct {
	data map[string]any
}

// NewState creates a new empty State.
func NewState() State {
	return State{
		data: make(map[string]any),
	}
}

// Get retrieves a deep copy of the value stored under key.
//
// Example:
//
//	consensus, ok := Get(state, KeyConsensus)
//	if !ok {
//	    // handle missing value
//	}
func Get[T any](s State, key Key[T]) (T, bool) {
	var zero T
	value, exists := s.data[key.name]
	if !exists {
		return zero, false
	}

	copied := deepCopyValue(value)
	val, ok := copied.(T)
	return val, ok
}

// MustGet is Get that reports a missing or mistyped key as a StateError.
func MustGet[T any](s State, key Key[T]) (T, error) {
	val, ok := Get(s, key)
	if !ok {
		return val, NewStateError(key.name, "Get", ErrKeyNotFound)
	}
	return val, nil
}

// With returns a new State with key set to a deep copy of value.
func With[T any](s State, key Key[T], value T) State {
	newData := maps.Clone(s.data)
	newData[key.name] = deepCopyValue(value)
	return State{data: newData}
}

// Keys returns all keys present in the State in sorted order.
func (s State) Keys() []string {
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// String returns a string representation of the State for debugging purposes.
func (s State) String() string {
	return fmt.Sprintf("State%v", s.Keys())
}
