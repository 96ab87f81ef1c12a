package dispatcher

import (
	"context"
	"time"

	"github.com/oshokin/lifeline-core/internal/domain/trigger"
	"github.com/oshokin/lifeline-core/internal/logger"
)

// countdown is the state of an armed delayed trigger. It is owned by the
// dispatcher and mutated only under the dispatcher lock; the ticker
// goroutine communicates by re-entering HandleEvent on expiry.
type countdown struct {
	// cfg is the armed configuration.
	cfg *trigger.Config
	// deadline is when the countdown promotes to execution.
	deadline time.Time
	// stop cancels the ticker goroutine.
	stop context.CancelFunc
}

// remaining returns the time left before expiry, never negative.
func (c *countdown) remaining(now time.Time) time.Duration {
	left := c.deadline.Sub(now)
	if left < 0 {
		return 0
	}

	return left
}

// armCountdownLocked arms the delayed trigger for the matched
// configuration. A duplicate arm while one exists is rejected with no
// state change.
func (d *Dispatcher) armCountdownLocked(ctx context.Context, cfg *trigger.Config) {
	if d.countdown != nil {
		logger.WarnKV(ctx, "Countdown already armed, ignoring",
			"configuration", cfg.Name)

		return
	}

	parent := d.runCtx
	if parent == nil {
		parent = context.WithoutCancel(ctx)
	}

	countdownCtx, cancel := context.WithCancel(parent)

	armed := &countdown{
		cfg:      cfg,
		deadline: d.clock.Now().Add(cfg.Delay),
		stop:     cancel,
	}
	d.countdown = armed

	logger.InfoKV(ctx, "Delayed trigger armed",
		"configuration", cfg.Name, "delay", cfg.Delay.String())

	go d.runCountdown(countdownCtx, armed)
}

// cancelCountdownLocked tears down the armed countdown, if any.
func (d *Dispatcher) cancelCountdownLocked() {
	if d.countdown == nil {
		return
	}

	d.countdown.stop()
	d.countdown = nil
}

// runCountdown ticks until cancellation or expiry. Expiry clears the
// armed state and promotes the configuration through the regular dispatch
// path as an internal countdown event.
func (d *Dispatcher) runCountdown(ctx context.Context, armed *countdown) {
	ticker := d.clock.Ticker(d.cfg.CountdownTick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if d.clock.Now().Before(armed.deadline) {
				continue
			}

			d.mu.Lock()

			if d.countdown != armed {
				// Canceled concurrently with the final tick.
				d.mu.Unlock()
				return
			}

			d.countdown = nil
			armed.stop()
			d.mu.Unlock()

			expiry := trigger.NewEvent(trigger.KindCountdown, armed.cfg.Name, d.clock.Now())

			logger.InfoKV(ctx, "Delayed trigger expired, promoting to execution",
				"configuration", armed.cfg.Name)

			d.HandleEvent(context.WithoutCancel(ctx), expiry)

			return
		}
	}
}
