package call

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/benbjohnson/clock"

	"github.com/oshokin/lifeline-core/internal/config"
	domain "github.com/oshokin/lifeline-core/internal/domain/call"
	"github.com/oshokin/lifeline-core/internal/domain/trigger"
	"github.com/oshokin/lifeline-core/internal/logger"
)

// State is the orchestrator lifecycle phase. The orchestrator owns at
// most one session at a time; a terminal outcome stays observable as
// ended or error until the next session starts.
type State string

const (
	// StateIdle means no session has been started yet.
	StateIdle State = "idle"
	// StateInitiating means a session was just created.
	StateInitiating State = "initiating"
	// StateCollectingContext means the pre-dial snapshot is being gathered.
	StateCollectingContext State = "collecting-context"
	// StateConnectingPrimary means the preferred channel is dialing.
	StateConnectingPrimary State = "connecting-primary"
	// StateConnectingFallback means the fallback channel is dialing.
	StateConnectingFallback State = "connecting-fallback"
	// StateConnected means the remote accepted the call.
	StateConnected State = "connected"
	// StateActive means the call is confirmed in progress.
	StateActive State = "active"
	// StateEnding means teardown is underway.
	StateEnding State = "ending"
	// StateEnded means the last session finished cleanly.
	StateEnded State = "ended"
	// StateError means the last session failed; the reason stays readable
	// through LastFailure until the next session starts.
	StateError State = "error"
)

var (
	// ErrSessionActive is returned when Start is called while a session exists.
	ErrSessionActive = errors.New("a call session is already active")
	// ErrNoSession is returned when End is called with no session.
	ErrNoSession = errors.New("no active call session")
	// errNoChannel is returned when the policy yields nothing to dial with.
	errNoChannel = errors.New("no calling channel available")
)

// RecordStore persists finished call sessions.
type RecordStore interface {
	AppendCallRecord(ctx context.Context, record *domain.Record) error
}

// SnapshotSource provides the best-effort context snapshot collected
// before dialing.
type SnapshotSource interface {
	IsFresh() bool
	Cached() *trigger.Snapshot
	Refresh(ctx context.Context) (*trigger.Snapshot, error)
}

// Orchestrator drives an emergency call through channel selection,
// dialing with a single fallback, status monitoring and teardown. Every
// finished session is persisted as a record before the orchestrator
// returns to idle.
type Orchestrator struct {
	// policy selects the ordered channel preference per severity.
	policy SelectionPolicy
	// records persists finished sessions, may be nil in tests.
	records RecordStore
	// snapshots provides the pre-dial context, may be nil.
	snapshots SnapshotSource
	// cfg holds polling and timeout tuning.
	cfg config.CallConfig
	// clock drives the status poll ticker.
	clock clock.Clock

	// mu protects state, session, channel and monitorCancel.
	mu sync.Mutex
	// state is the current lifecycle phase.
	state State
	// session is the in-flight session, nil while idle.
	session *domain.Session
	// channel is the connected channel, nil until dialing succeeds.
	channel Channel
	// monitorCancel stops the status poll loop.
	monitorCancel context.CancelFunc
	// lastFailure is the previous session's terminal failure reason.
	lastFailure string

	// monitors tracks poll loops for clean shutdown.
	monitors sync.WaitGroup
}

// NewOrchestrator creates a call orchestrator in the idle state.
func NewOrchestrator(
	policy SelectionPolicy,
	records RecordStore,
	snapshots SnapshotSource,
	cfg config.CallConfig,
	clk clock.Clock,
) *Orchestrator {
	if clk == nil {
		clk = clock.New()
	}

	full := config.Config{Call: cfg}
	_ = config.Validate(&full)

	return &Orchestrator{
		policy:    policy,
		records:   records,
		snapshots: snapshots,
		cfg:       full.Call,
		clock:     clk,
		state:     StateIdle,
	}
}

// State returns the current lifecycle phase.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.state
}

// Active reports whether a session exists.
func (o *Orchestrator) Active() bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.session != nil
}

// LastFailure returns the previous session's terminal failure reason,
// empty after a clean end. It is cleared when the next session starts.
func (o *Orchestrator) LastFailure() string {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.lastFailure
}

// Start creates a session and dials the destination. It implements the
// action pipeline's call contract. A second session is rejected while one
// is in flight.
func (o *Orchestrator) Start(ctx context.Context, destination string, severity trigger.Severity) error {
	ctx = logger.WithName(ctx, "call-orchestrator")

	o.mu.Lock()
	if o.session != nil {
		o.mu.Unlock()

		return fmt.Errorf("%w: state %s", ErrSessionActive, o.state)
	}

	session := domain.NewSession(destination, severity, o.clock.Now())
	o.session = session
	o.state = StateInitiating
	o.lastFailure = ""
	o.mu.Unlock()

	logger.InfoKV(ctx, "Call session created",
		"session_id", session.ID,
		"destination", destination,
		"severity", severity.String())

	o.transitionFor(session, StateCollectingContext)
	session.Context = o.collectContext(ctx)

	channels := o.policy.Select(severity)
	if len(channels) == 0 {
		return o.fail(ctx, errNoChannel)
	}

	// Primary plus at most one fallback.
	if len(channels) > 2 {
		channels = channels[:2]
	}

	var lastErr error

	for i, ch := range channels {
		if i == 0 {
			o.transitionFor(session, StateConnectingPrimary)
		} else {
			o.transitionFor(session, StateConnectingFallback)
			logger.WarnKV(ctx, "Falling back to secondary channel", "channel", ch.Name())
		}

		handle, err := ch.Initiate(ctx, destination, severity, session.Context)
		if err != nil {
			lastErr = err

			logger.WarnKV(ctx, "Channel initiation failed", "channel", ch.Name(), "error", err)

			continue
		}

		// An explicit End may have cleared the session while the channel
		// was dialing; the fresh remote call must be hung up, not adopted.
		o.mu.Lock()
		if o.session != session {
			o.mu.Unlock()

			logger.WarnKV(ctx, "Session ended while dialing, hanging up",
				"session_id", session.ID, "channel", ch.Name(), "handle", handle)

			if err := ch.Terminate(ctx, handle); err != nil {
				logger.WarnKV(ctx, "Remote termination failed", "error", err)
			}

			return nil
		}

		session.ChannelName = ch.Name()
		session.Handle = handle
		o.channel = ch
		o.state = StateConnected
		o.mu.Unlock()

		o.startMonitor(ctx)

		logger.InfoKV(ctx, "Call connected",
			"session_id", session.ID, "channel", ch.Name(), "handle", handle)

		return nil
	}

	o.mu.Lock()
	live := o.session == session
	o.mu.Unlock()

	if !live {
		return nil
	}

	return o.fail(ctx, fmt.Errorf("connect call: %w", lastErr))
}

// End tears the session down from any phase. Remote termination is best
// effort; the record is persisted regardless.
func (o *Orchestrator) End(ctx context.Context) error {
	ctx = logger.WithName(ctx, "call-orchestrator")

	o.mu.Lock()
	if o.session == nil || o.state == StateEnding {
		o.mu.Unlock()

		return ErrNoSession
	}

	o.state = StateEnding
	channel := o.channel
	handle := o.session.Handle
	cancel := o.monitorCancel
	o.monitorCancel = nil
	o.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	if channel != nil && handle != "" {
		if err := channel.Terminate(ctx, handle); err != nil {
			logger.WarnKV(ctx, "Remote termination failed", "error", err)
		}
	}

	o.finish(ctx, "")

	return nil
}

// Wait blocks until the status poll loop exits. Used on shutdown.
func (o *Orchestrator) Wait() {
	o.monitors.Wait()
}

// collectContext gathers the pre-dial snapshot within the configured
// bound. Collection failure degrades to whatever is cached; it never
// blocks the call.
func (o *Orchestrator) collectContext(ctx context.Context) *trigger.Snapshot {
	if o.snapshots == nil {
		return nil
	}

	if o.snapshots.IsFresh() {
		return o.snapshots.Cached()
	}

	collectCtx, cancel := context.WithTimeout(ctx, o.cfg.ContextTimeout)
	defer cancel()

	snapshot, err := o.snapshots.Refresh(collectCtx)
	if err != nil {
		logger.WarnKV(ctx, "Context collection failed, dialing without it", "error", err)

		return o.snapshots.Cached()
	}

	return snapshot
}

// startMonitor launches the status poll loop detached from the caller's
// context so the trigger request finishing never kills monitoring.
func (o *Orchestrator) startMonitor(ctx context.Context) {
	monitorCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	o.mu.Lock()
	o.monitorCancel = cancel
	o.mu.Unlock()

	o.monitors.Add(1)

	go func() {
		defer o.monitors.Done()
		o.monitor(monitorCtx)
	}()
}

// monitor polls the remote call status until the call ends, polling fails
// repeatedly or the loop is canceled.
func (o *Orchestrator) monitor(ctx context.Context) {
	ticker := o.clock.Ticker(o.cfg.PollInterval)
	defer ticker.Stop()

	var pollErrors int

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		o.mu.Lock()
		session := o.session
		channel := o.channel
		o.mu.Unlock()

		if session == nil || channel == nil {
			return
		}

		status, err := channel.PollStatus(ctx, session.Handle)
		if err != nil {
			pollErrors++

			logger.WarnKV(ctx, "Call status poll failed",
				"attempt", pollErrors, "limit", o.cfg.MaxPollErrors, "error", err)

			if pollErrors >= o.cfg.MaxPollErrors {
				o.transitionFor(session, StateEnding)
				o.abort(ctx, channel, session.Handle,
					fmt.Sprintf("status polling failed %d times: %v", pollErrors, err))

				return
			}

			continue
		}

		pollErrors = 0

		switch status {
		case StatusConnecting:
			// Still ringing, keep polling.
		case StatusActive:
			o.promote(StateConnected, StateActive)
		case StatusEnded:
			o.transitionFor(session, StateEnding)
			o.finish(ctx, "")

			return
		case StatusFailed:
			o.transitionFor(session, StateEnding)
			o.finish(ctx, "remote call failed")

			return
		}
	}
}

// abort hangs up best-effort after repeated poll failures and finishes
// the session with the given reason.
func (o *Orchestrator) abort(ctx context.Context, channel Channel, handle, reason string) {
	if err := channel.Terminate(ctx, handle); err != nil {
		logger.WarnKV(ctx, "Remote termination failed", "error", err)
	}

	o.finish(ctx, reason)
}

// finish stamps the session, persists its record and settles into the
// terminal ended or error state. Persistence failure is logged, never
// surfaced: losing a record must not wedge the orchestrator.
func (o *Orchestrator) finish(ctx context.Context, reason string) {
	o.mu.Lock()

	session := o.session
	if session == nil {
		o.mu.Unlock()

		return
	}

	session.EndedAt = o.clock.Now()
	if reason != "" && session.FailureReason == "" {
		session.FailureReason = reason
	}

	record := session.Record()

	if cancel := o.monitorCancel; cancel != nil {
		o.monitorCancel = nil

		cancel()
	}

	o.session = nil
	o.channel = nil

	if record.FailureReason != "" {
		o.state = StateError
		o.lastFailure = record.FailureReason
	} else {
		o.state = StateEnded
	}
	o.mu.Unlock()

	if o.records != nil {
		if err := o.records.AppendCallRecord(ctx, record); err != nil {
			logger.ErrorKV(ctx, "Failed to persist call record",
				"session_id", record.SessionID, "error", err)
		}
	}

	logger.InfoKV(ctx, "Call session ended",
		"session_id", record.SessionID,
		"channel", record.ChannelName,
		"duration", record.Duration,
		"failure", record.FailureReason)
}

// fail finishes the session with the error as its failure reason and
// returns the error to the caller.
func (o *Orchestrator) fail(ctx context.Context, err error) error {
	o.finish(ctx, err.Error())

	return err
}

// transitionFor sets the phase only while the given session is still the
// one the orchestrator owns, so a stale Start never mutates state for a
// session that was already ended or replaced.
func (o *Orchestrator) transitionFor(session *domain.Session, next State) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.session == session && o.session != nil {
		o.state = next
	}
}

// promote advances the phase only from the expected one, so a concurrent
// End is never overwritten.
func (o *Orchestrator) promote(from, to State) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state == from {
		o.state = to
	}
}
