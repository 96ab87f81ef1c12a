package guard

import (
	"github.com/oshokin/lifeline-core/internal/service/action"
	"github.com/oshokin/lifeline-core/internal/service/call"
	"github.com/oshokin/lifeline-core/internal/service/dispatcher"
)

// Status aggregates the observable state of the running daemon.
type Status struct {
	// Dispatcher reports source registration, the last event and an
	// armed countdown.
	Dispatcher dispatcher.Snapshot
	// CallState is the call orchestrator's lifecycle phase.
	CallState call.State
	// CallFailure is the last session's terminal failure reason, empty
	// unless CallState is the error state.
	CallFailure string
	// Action is the action pipeline's execution state.
	Action action.Status
	// Activity is the current motion classification, empty without a
	// motion capability.
	Activity string
	// Dangerous reports a latched dangerous motion transition.
	Dangerous bool
}

// Status returns the aggregated daemon state.
func (s *Service) Status() Status {
	status := Status{
		Dispatcher:  s.dispatcher.Snapshot(),
		CallState:   s.orchestrator.State(),
		CallFailure: s.orchestrator.LastFailure(),
		Action:      s.pipeline.Status(),
	}

	if s.classifier != nil {
		status.Activity = string(s.classifier.Current())
		status.Dangerous = s.classifier.Latched()
	}

	return status
}
