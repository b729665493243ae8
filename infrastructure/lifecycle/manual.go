package lifecycle

import (
	"fmt"
	"time"

	"github.com/ahrav/go-quorum/internal/domain"
)

var resolveEvents = map[domain.FindingStatus]string{
	domain.StatusFixed:         EventResolveFixed,
	domain.StatusWontfix:       EventWontfix,
	domain.StatusFalsePositive: EventFalsePositive,
}

// Resolve records an operator decision on an open finding. Only fixed,
// wontfix and false_positive can be set by hand.
func Resolve(state *domain.ReviewState, id string, status domain.FindingStatus, note string, now time.Time) error {
	event, ok := resolveEvents[status]
	if !ok {
		return fmt.Errorf("%w: cannot resolve to %q", domain.ErrInvalidTransition, status)
	}
	f, ok := state.Findings[id]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrUnknownFinding, id)
	}

	next, err := Transition(id, f.Status, event)
	if err != nil {
		return err
	}
	f.Status = next
	f.ResolvedAt = &now
	f.Note = note
	f.ResolutionAttestation = &domain.ResolutionAttestation{
		Kind:       AttestationManual,
		Text:       note,
		AttestedAt: now,
	}
	state.Findings[id] = f
	return nil
}

// Reopen returns a resolved finding to open and bumps its reopen count.
func Reopen(state *domain.ReviewState, id string, now time.Time) error {
	f, ok := state.Findings[id]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrUnknownFinding, id)
	}

	was := f.Status
	next, err := Transition(id, was, EventReopen)
	if err != nil {
		return err
	}
	f.Status = next
	f.ReopenCount++
	f.ResolvedAt = nil
	f.ResolutionAttestation = nil
	f.LastSeen = now
	f.Note = fmt.Sprintf("Reopened manually (x%d, was %s)", f.ReopenCount, was)
	state.Findings[id] = f
	return nil
}
