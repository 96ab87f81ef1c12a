package dispatcher

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/oshokin/lifeline-core/internal/config"
	"github.com/oshokin/lifeline-core/internal/domain/trigger"
	"github.com/oshokin/lifeline-core/internal/logger"
)

// Source is a signal source managed by the dispatcher. Sources run until
// their context is canceled and post trigger events through the emit
// callback.
type Source interface {
	// Kind names the trigger events the source emits.
	Kind() trigger.Kind
	// Run blocks until ctx is done. A missing capability is not an error:
	// the source simply stops emitting.
	Run(ctx context.Context, emit func(trigger.Event)) error
}

// ConfigSource provides the currently enabled action configurations.
// The owning store guarantees at most one configuration is enabled.
type ConfigSource interface {
	EnabledConfigurations(ctx context.Context) ([]*trigger.Config, error)
}

// Executor performs the effect of a resolved configuration.
type Executor interface {
	Execute(ctx context.Context, cfg *trigger.Config, event trigger.Event) error
}

// Dispatcher is the single integration point between signal sources and
// action execution. It debounces button events, resolves each event
// against the enabled configuration, arms and cancels the delayed
// countdown and hands resolved configurations to the executor.
type Dispatcher struct {
	// configs provides the enabled configurations, consulted fresh on
	// every dispatch.
	configs ConfigSource
	// executor performs resolved actions.
	executor Executor
	// cfg holds the debounce interval and countdown granularity.
	cfg config.DispatcherConfig
	// clock drives debouncing and the countdown.
	clock clock.Clock
	// sources are all known signal sources.
	sources []Source

	// mu protects the mutable dispatch state below.
	mu sync.Mutex
	// lastButton is when the last button-origin event was accepted.
	lastButton time.Time
	// countdown is the armed delayed trigger, nil when idle.
	countdown *countdown
	// running maps source kinds to their cancel functions.
	running map[trigger.Kind]context.CancelFunc
	// runCtx is the parent context of all running sources.
	runCtx context.Context
	// cancelAll stops every running source.
	cancelAll context.CancelFunc
	// events buffers source emits for the dispatch loop, so a slow
	// executor never stalls an emitting source.
	events chan trigger.Event
	// registered guards idempotent RegisterSources/ShutdownSources.
	registered bool
	// lastEvent is the most recently processed event, for the debug snapshot.
	lastEvent trigger.Event

	// wg tracks source goroutines for clean shutdown.
	wg sync.WaitGroup
}

// Snapshot is the dispatcher debug state exposed to the presentation layer.
type Snapshot struct {
	// Registered reports whether sources are started.
	Registered bool
	// ActiveSources lists the kinds of currently running sources.
	ActiveSources []string
	// LastEventKind and LastEventAt describe the most recent event.
	LastEventKind string
	LastEventAt   time.Time
	// ArmedConfiguration names the configuration behind an armed countdown.
	ArmedConfiguration string
	// CountdownRemaining is the delayed-trigger remaining time, zero when idle.
	CountdownRemaining time.Duration
}

// New creates a dispatcher over the provided sources.
func New(
	configs ConfigSource,
	executor Executor,
	cfg config.DispatcherConfig,
	clk clock.Clock,
	sources ...Source,
) *Dispatcher {
	if clk == nil {
		clk = clock.New()
	}

	full := config.Config{Dispatcher: cfg}
	_ = config.Validate(&full)

	return &Dispatcher{
		configs:  configs,
		executor: executor,
		cfg:      full.Dispatcher,
		clock:    clk,
		sources:  sources,
		running:  make(map[trigger.Kind]context.CancelFunc),
	}
}

// RegisterSources starts every source whose kind is referenced by an
// enabled configuration. Safe to call multiple times.
func (d *Dispatcher) RegisterSources(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.registered {
		return
	}

	d.registered = true
	d.runCtx, d.cancelAll = context.WithCancel(ctx)
	d.events = make(chan trigger.Event, eventQueueSize)

	d.startDispatchLoopLocked()

	desired := d.desiredKinds(ctx)
	for _, source := range d.sources {
		if desired[source.Kind()] {
			d.startSourceLocked(source)
		}
	}

	logger.InfoKV(ctx, "Trigger sources registered", "active", len(d.running))
}

// ShutdownSources stops all sources and tears down an armed countdown.
// Safe to call multiple times; a later RegisterSources starts from idle.
func (d *Dispatcher) ShutdownSources() {
	d.mu.Lock()

	if !d.registered {
		d.mu.Unlock()
		return
	}

	d.registered = false
	d.cancelCountdownLocked()
	d.cancelAll()
	d.running = make(map[trigger.Kind]context.CancelFunc)

	d.mu.Unlock()

	d.wg.Wait()
}

// Refresh re-derives which sources need to be listening after the enabled
// configuration set changed externally. An armed countdown is never
// disturbed by an unrelated configuration change.
func (d *Dispatcher) Refresh(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.registered {
		return
	}

	desired := d.desiredKinds(ctx)

	for kind, cancel := range d.running {
		if desired[kind] {
			continue
		}

		cancel()
		delete(d.running, kind)
		logger.InfoKV(ctx, "Trigger source stopped", "kind", string(kind))
	}

	for _, source := range d.sources {
		if desired[source.Kind()] && d.running[source.Kind()] == nil {
			d.startSourceLocked(source)
			logger.InfoKV(ctx, "Trigger source started", "kind", string(source.Kind()))
		}
	}
}

// HandleEvent resolves one trigger event. Events are processed under a
// single lock, so arrival order is dispatch order.
func (d *Dispatcher) HandleEvent(ctx context.Context, event trigger.Event) {
	d.mu.Lock()

	d.lastEvent = event

	if event.Kind == trigger.KindButton && !d.acceptButtonLocked() {
		d.mu.Unlock()
		logger.DebugKV(ctx, "Button event debounced", "event_id", event.ID)

		return
	}

	// A qualifying repeat while a countdown is armed cancels it.
	if d.countdown != nil && event.Kind == trigger.KindButton {
		d.cancelCountdownLocked()
		d.mu.Unlock()
		logger.InfoKV(ctx, "Delayed trigger canceled", "event_id", event.ID)

		return
	}

	matched := d.matchLocked(ctx, event)
	if matched == nil {
		d.mu.Unlock()
		logger.InfoKV(ctx, "No enabled configuration for trigger",
			"kind", string(event.Kind), "event_id", event.ID)

		return
	}

	if matched.TriggerKind == trigger.KindDelay && event.Kind != trigger.KindCountdown {
		d.armCountdownLocked(ctx, matched)
		d.mu.Unlock()

		return
	}

	d.mu.Unlock()

	logger.InfoKV(ctx, "Dispatching action",
		"configuration", matched.Name, "effect", string(matched.Effect), "event_id", event.ID)

	if err := d.executor.Execute(ctx, matched, event); err != nil {
		logger.ErrorKV(ctx, "Action execution failed",
			"configuration", matched.Name, "error", err)
	}
}

// CountdownRemaining returns the armed countdown's remaining time,
// zero when no countdown is armed.
func (d *Dispatcher) CountdownRemaining() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.countdown == nil {
		return 0
	}

	return d.countdown.remaining(d.clock.Now())
}

// Snapshot returns the dispatcher debug state.
func (d *Dispatcher) Snapshot() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()

	snapshot := Snapshot{
		Registered:    d.registered,
		LastEventKind: string(d.lastEvent.Kind),
		LastEventAt:   d.lastEvent.Timestamp,
	}

	for kind := range d.running {
		snapshot.ActiveSources = append(snapshot.ActiveSources, string(kind))
	}

	if d.countdown != nil {
		snapshot.ArmedConfiguration = d.countdown.cfg.Name
		snapshot.CountdownRemaining = d.countdown.remaining(d.clock.Now())
	}

	return snapshot
}

// acceptButtonLocked applies the global debounce to button-origin events.
func (d *Dispatcher) acceptButtonLocked() bool {
	now := d.clock.Now()
	if !d.lastButton.IsZero() && now.Sub(d.lastButton) < d.cfg.Debounce {
		return false
	}

	d.lastButton = now

	return true
}

// matchLocked resolves the enabled configuration for the event, if any.
func (d *Dispatcher) matchLocked(ctx context.Context, event trigger.Event) *trigger.Config {
	configurations, err := d.configs.EnabledConfigurations(ctx)
	if err != nil {
		logger.ErrorKV(ctx, "Failed to read configurations", "error", err)
		return nil
	}

	for _, cfg := range configurations {
		if !cfg.Matches(event.Kind) {
			continue
		}

		// Voice rules only fire for their own keyword.
		if cfg.TriggerKind == trigger.KindVoice && cfg.Keyword != "" &&
			event.Payload != "" && !strings.EqualFold(cfg.Keyword, event.Payload) {
			continue
		}

		return cfg.Clone()
	}

	return nil
}

// desiredKinds derives which source kinds the enabled configurations need.
// Delay-kind rules are armed by button presses.
func (d *Dispatcher) desiredKinds(ctx context.Context) map[trigger.Kind]bool {
	desired := make(map[trigger.Kind]bool)

	configurations, err := d.configs.EnabledConfigurations(ctx)
	if err != nil {
		logger.ErrorKV(ctx, "Failed to read configurations", "error", err)
		return desired
	}

	for _, cfg := range configurations {
		kind := cfg.TriggerKind
		if kind == trigger.KindDelay {
			kind = trigger.KindButton
		}

		desired[kind] = true
	}

	return desired
}

// eventQueueSize bounds how many source emits can be outstanding while
// the executor is busy.
const eventQueueSize = 64

// startDispatchLoopLocked launches the single consumer of the event
// queue. One consumer keeps arrival order equal to dispatch order.
func (d *Dispatcher) startDispatchLoopLocked() {
	runCtx := d.runCtx
	events := d.events

	d.wg.Add(1)

	go func() {
		defer d.wg.Done()

		for {
			select {
			case <-runCtx.Done():
				return
			case event := <-events:
				d.HandleEvent(runCtx, event)
			}
		}
	}()
}

// startSourceLocked launches one source goroutine under the run context.
// Emits go through the event queue, never into the executor directly.
func (d *Dispatcher) startSourceLocked(source Source) {
	sourceCtx, cancel := context.WithCancel(d.runCtx)
	d.running[source.Kind()] = cancel

	events := d.events

	d.wg.Add(1)

	go func() {
		defer d.wg.Done()

		if err := source.Run(sourceCtx, func(event trigger.Event) {
			select {
			case events <- event:
			case <-sourceCtx.Done():
			}
		}); err != nil {
			logger.ErrorKV(sourceCtx, "Trigger source stopped with error",
				"kind", string(source.Kind()), "error", err)
		}
	}()
}
