package domain

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewState verifies that a new State instance is initialized correctly.
func TestNewState(t *testing.T) {
	state := NewState()

	assert.NotNil(t, state.data, "NewState() should initialize the data map.")
	assert.Empty(t, state.Keys(), "NewState() should create an empty state.")
}

// TestState_Get covers retrieval of pipeline values for present and absent
// keys.
func TestState_Get(t *testing.T) {
	tests := []struct {
		name   string
		setup  func() State
		assert func(t *testing.T, state State)
	}{
		{
			name: "get existing run id",
			setup: func() State {
				return With(NewState(), KeyRunID, "run-1")
			},
			assert: func(t *testing.T, state State) {
				got, ok := Get(state, KeyRunID)
				assert.True(t, ok)
				assert.Equal(t, "run-1", got)
			},
		},
		{
			name:  "get non-existent key",
			setup: NewState,
			assert: func(t *testing.T, state State) {
				_, ok := Get(state, KeyConsensus)
				assert.False(t, ok)
			},
		},
		{
			name: "get batch results slice",
			setup: func() State {
				results := []NormalizedBatchResult{
					{BatchIndex: 1, Assessments: map[string]float64{"naming": 70}},
					{BatchIndex: 2, Assessments: map[string]float64{"naming": 90}},
				}
				return With(NewState(), KeyBatchResults, results)
			},
			assert: func(t *testing.T, state State) {
				got, ok := Get(state, KeyBatchResults)
				require.True(t, ok)
				require.Len(t, got, 2)
				assert.Equal(t, 90.0, got[1].Assessments["naming"])
			},
		},
		{
			name: "get consensus pointer",
			setup: func() State {
				return With(NewState(), KeyConsensus, &MergedConsensus{
					Assessments: map[string]AssessmentScore{"naming": {Score: 81.5}},
				})
			},
			assert: func(t *testing.T, state State) {
				got, ok := Get(state, KeyConsensus)
				require.True(t, ok)
				require.NotNil(t, got)
				assert.Equal(t, 81.5, got.Assessments["naming"].Score)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.assert(t, tt.setup())
		})
	}
}

func TestMustGet_MissingKey(t *testing.T) {
	_, err := MustGet(NewState(), KeyScanDiff)
	require.Error(t, err)

	var stateErr *StateError
	require.ErrorAs(t, err, &stateErr)
	assert.Equal(t, KeyScanDiff.Name(), stateErr.Key)
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

// TestState_With verifies copy-on-write semantics.
func TestState_With(t *testing.T) {
	original := NewState()
	updated := With(original, KeyRunID, "a")

	_, ok := Get(original, KeyRunID)
	assert.False(t, ok, "With() should not modify the original state.")

	updated2 := With(updated, KeyRunID, "b")
	v, _ := Get(updated, KeyRunID)
	assert.Equal(t, "a", v)
	v2, _ := Get(updated2, KeyRunID)
	assert.Equal(t, "b", v2)
}

// TestState_DeepCopy ensures that values retrieved from State cannot be used
// to mutate it, including nested maps, pointers and nil interface values.
func TestState_DeepCopy(t *testing.T) {
	resolved := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	rs := NewReviewState()
	rs.Findings["review::x"] = PersistedFinding{
		ID:         "review::x",
		Status:     StatusFixed,
		ResolvedAt: &resolved,
		Detail: map[string]any{
			"related_files": []any{"a.go", nil},
			"reasoning":     nil,
		},
	}

	state := With(NewState(), KeyReviewState, rs)

	// Mutating the source after storing must not leak in.
	rs.Findings["review::x"] = PersistedFinding{ID: "review::x", Status: StatusOpen}

	got, ok := Get(state, KeyReviewState)
	require.True(t, ok)
	f := got.Findings["review::x"]
	assert.Equal(t, StatusFixed, f.Status)
	require.NotNil(t, f.ResolvedAt)
	assert.True(t, resolved.Equal(*f.ResolvedAt))
	assert.Contains(t, f.Detail, "reasoning")
	assert.Nil(t, f.Detail["reasoning"])

	// Mutating a retrieved copy must not leak back.
	got.Findings["review::x"] = PersistedFinding{ID: "review::x", Status: StatusWontfix}
	again, _ := Get(state, KeyReviewState)
	assert.Equal(t, StatusFixed, again.Findings["review::x"].Status)
}

func TestState_String(t *testing.T) {
	state := With(NewState(), KeyRunID, "r")
	assert.Equal(t, fmt.Sprintf("State%v", []string{"run.id"}), state.String())
}

// TestState_ConcurrentAccess exercises concurrent readers and writers; each
// writer derives its own State so no synchronization is needed.
func TestState_ConcurrentAccess(t *testing.T) {
	base := With(NewState(), KeyReviewedFiles, []string{"a.go"})

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			files, ok := Get(base, KeyReviewedFiles)
			assert.True(t, ok)
			files = append(files, fmt.Sprintf("f%d.go", i))
			next := With(base, KeyReviewedFiles, files)
			got, _ := Get(next, KeyReviewedFiles)
			assert.Len(t, got, 2)
		}(i)
	}
	wg.Wait()

	files, _ := Get(base, KeyReviewedFiles)
	assert.Equal(t, []string{"a.go"}, files)
}
