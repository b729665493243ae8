package lifecycle

import (
	"fmt"

	"github.com/felixgeelhaar/statekit"

	"github.com/ahrav/go-quorum/internal/domain"
)

// Machine states mirror domain.FindingStatus values.
const (
	stateOpen          = "open"
	stateFixed         = "fixed"
	stateAutoResolved  = "auto_resolved"
	stateWontfix       = "wontfix"
	stateFalsePositive = "false_positive"
)

// Lifecycle events.
const (
	EventResolveFixed  = "resolve_fixed"
	EventAutoResolve   = "auto_resolve"
	EventWontfix       = "wontfix"
	EventFalsePositive = "false_positive"
	EventReappear      = "reappear"
	EventReopen        = "reopen"
	EventSuppress      = "suppress"
)

// findingContext is the machine context. The lifecycle carries no guards,
// so it only identifies the finding for diagnostics.
type findingContext struct {
	FindingID string
}

func buildMachine(id string, from domain.FindingStatus) (*statekit.Interpreter[findingContext], error) {
	builder := statekit.NewMachine[findingContext]("finding-lifecycle").
		WithInitial(statekit.StateID(from)).
		WithContext(findingContext{FindingID: id})

	builder.State(stateOpen).
		On(EventResolveFixed).Target(stateFixed).
		On(EventAutoResolve).Target(stateAutoResolved).
		On(EventWontfix).Target(stateWontfix).
		On(EventFalsePositive).Target(stateFalsePositive).
		Done()

	builder.State(stateFixed).
		On(EventReappear).Target(stateOpen).
		On(EventReopen).Target(stateOpen).
		On(EventSuppress).Target(stateOpen).
		Done()

	builder.State(stateAutoResolved).
		On(EventReappear).Target(stateOpen).
		On(EventReopen).Target(stateOpen).
		On(EventSuppress).Target(stateOpen).
		Done()

	builder.State(stateWontfix).
		On(EventReopen).Target(stateOpen).
		Done()

	builder.State(stateFalsePositive).
		On(EventReopen).Target(stateOpen).
		On(EventSuppress).Target(stateOpen).
		Done()

	machine, err := builder.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build lifecycle machine: %w", err)
	}
	interp := statekit.NewInterpreter(machine)
	interp.Start()
	return interp, nil
}

// Transition applies event to a finding in status from and returns the
// resulting status. Events the lifecycle does not allow from that status
// return domain.ErrInvalidTransition.
func Transition(id string, from domain.FindingStatus, event string) (domain.FindingStatus, error) {
	if !from.Valid() {
		return from, fmt.Errorf("%w: finding %s has unknown status %q", domain.ErrInvalidTransition, id, from)
	}
	interp, err := buildMachine(id, from)
	if err != nil {
		return from, err
	}

	interp.Send(statekit.Event{Type: statekit.EventType(event)})
	to := domain.FindingStatus(interp.State().Value)
	if to == from {
		return from, fmt.Errorf("%w: %s from %s on finding %s", domain.ErrInvalidTransition, event, from, id)
	}
	return to, nil
}
