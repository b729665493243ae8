package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-quorum/internal/domain"
)

func TestResolve(t *testing.T) {
	state := domain.NewReviewState()
	Reconcile(state, []domain.PersistedFinding{sighting("a", "x.go")}, ReconcileOptions{Now: day1})

	require.NoError(t, Resolve(state, "a", domain.StatusWontfix, "accepted risk", day2))
	a := state.Findings["a"]
	assert.Equal(t, domain.StatusWontfix, a.Status)
	assert.Equal(t, "accepted risk", a.Note)
	require.NotNil(t, a.ResolutionAttestation)
	assert.Equal(t, AttestationManual, a.ResolutionAttestation.Kind)
	assert.False(t, a.ResolutionAttestation.ScanVerified)

	err := Resolve(state, "a", domain.StatusFixed, "again", day2)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	err = Resolve(state, "a", domain.StatusAutoResolved, "", day2)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	err = Resolve(state, "missing", domain.StatusFixed, "", day2)
	assert.ErrorIs(t, err, domain.ErrUnknownFinding)
}

func TestReopen(t *testing.T) {
	state := domain.NewReviewState()
	Reconcile(state, []domain.PersistedFinding{sighting("a", "x.go")}, ReconcileOptions{Now: day1})

	assert.ErrorIs(t, Reopen(state, "a", day2), domain.ErrInvalidTransition)

	require.NoError(t, Resolve(state, "a", domain.StatusFalsePositive, "noise", day2))
	require.NoError(t, Reopen(state, "a", day3))
	a := state.Findings["a"]
	assert.Equal(t, domain.StatusOpen, a.Status)
	assert.Equal(t, 1, a.ReopenCount)
	assert.Nil(t, a.ResolutionAttestation)
	assert.Contains(t, a.Note, "was false_positive")

	assert.ErrorIs(t, Reopen(state, "missing", day3), domain.ErrUnknownFinding)
}
