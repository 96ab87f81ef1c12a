package call

import (
	"context"

	"github.com/oshokin/lifeline-core/internal/domain/trigger"
)

// ChannelStatus is the remote lifecycle state of a placed call.
type ChannelStatus string

const (
	// StatusConnecting means the call is being set up remotely.
	StatusConnecting ChannelStatus = "connecting"
	// StatusActive means the call is connected and in progress.
	StatusActive ChannelStatus = "active"
	// StatusEnded means the call finished normally.
	StatusEnded ChannelStatus = "ended"
	// StatusFailed means the call failed remotely.
	StatusFailed ChannelStatus = "failed"
)

// Channel is one way of placing an outbound call. Implementations wrap a
// remote delivery service and translate its call lifecycle into
// ChannelStatus values.
type Channel interface {
	// Name identifies the channel in records and logs.
	Name() string
	// Initiate places a call and returns the remote session handle. The
	// snapshot is the best-effort context collected for briefing and may
	// be nil.
	Initiate(ctx context.Context, destination string, severity trigger.Severity, snapshot *trigger.Snapshot) (string, error)
	// PollStatus reports the remote state of a previously placed call.
	PollStatus(ctx context.Context, handle string) (ChannelStatus, error)
	// Terminate hangs up a previously placed call.
	Terminate(ctx context.Context, handle string) error
}
