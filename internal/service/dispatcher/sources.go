package dispatcher

import (
	"context"

	"github.com/oshokin/lifeline-core/internal/domain/trigger"
)

// ChannelSource adapts an externally fed event channel (the hardware
// button listener, the speech keyword detector) to the Source contract.
// The platform glue owns the channel and closes it when the capability
// disappears.
type ChannelSource struct {
	// kind names the events the channel carries.
	kind trigger.Kind
	// events is the externally fed event stream.
	events <-chan trigger.Event
}

// NewChannelSource wraps an event channel as a dispatcher source.
func NewChannelSource(kind trigger.Kind, events <-chan trigger.Event) *ChannelSource {
	return &ChannelSource{
		kind:   kind,
		events: events,
	}
}

// Kind identifies the trigger events this source emits.
func (s *ChannelSource) Kind() trigger.Kind {
	return s.kind
}

// Run forwards channel events until ctx is done or the channel closes.
// A closed channel means the capability is gone; that is silence, not an
// error.
func (s *ChannelSource) Run(ctx context.Context, emit func(trigger.Event)) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-s.events:
			if !ok {
				return nil
			}

			emit(event)
		}
	}
}
