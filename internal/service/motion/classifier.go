package motion

import (
	"sync"
	"time"

	"github.com/oshokin/lifeline-core/internal/config"
	domain "github.com/oshokin/lifeline-core/internal/domain/motion"
)

// Classifier turns the raw acceleration sample stream into a discrete
// activity state and detects dangerous transition patterns.
//
// Classification is a pure function of the bounded window of recent
// magnitudes, recomputed on every ingested sample; pruning and pattern
// detection are keyed on sample timestamps, never on the wall clock, so
// replaying an identical window yields identical results.
type Classifier struct {
	// cfg holds the classification bands and window tunables.
	cfg config.MotionConfig
	// window is the bounded FIFO of recent magnitude readings.
	window []float64
	// current is the most recently classified state.
	current domain.State
	// transitions is the pruned, time-ordered transition history.
	transitions []domain.Transition
	// latched suppresses repeated danger firings until reset.
	latched bool
	// mu protects all of the above.
	mu sync.Mutex
}

// NewClassifier creates a classifier with the provided tunables.
// Zero fields fall back to the production defaults from config.Validate.
func NewClassifier(cfg config.MotionConfig) *Classifier {
	full := config.Config{Motion: cfg}
	// Validate never fails for defaulting alone unless bands are misordered;
	// misordered bands are a caller bug surfaced on first classification.
	_ = config.Validate(&full)

	return &Classifier{
		cfg:     full.Motion,
		window:  make([]float64, 0, full.Motion.WindowSize),
		current: domain.StateStationary,
	}
}

// Ingest classifies the sample against the rolling window and records a
// transition when the state changes. It returns the resulting state.
func (c *Classifier) Ingest(sample domain.Sample) domain.State {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.window = append(c.window, sample.Magnitude)
	if len(c.window) > c.cfg.WindowSize {
		c.window = c.window[len(c.window)-c.cfg.WindowSize:]
	}

	mean, peak := windowStats(c.window)
	state := c.classify(mean, peak)

	if n := len(c.transitions); n == 0 || c.transitions[n-1].State != state {
		c.transitions = append(c.transitions, domain.Transition{
			State:     state,
			Timestamp: sample.Timestamp,
			Magnitude: sample.Magnitude,
		})
	}

	c.current = state
	c.pruneLocked(sample.Timestamp)

	return state
}

// Current returns the most recently classified state.
func (c *Classifier) Current() domain.State {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.current
}

// Transitions returns a copy of the pruned transition history.
func (c *Classifier) Transitions() []domain.Transition {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := make([]domain.Transition, len(c.transitions))
	copy(result, c.transitions)

	return result
}

// DetectRapidTransition reports whether the transition window contains a
// dangerous pattern: a direct stationary-to-walking or stationary-to-running
// jump within the rapid window, or a stationary-walking-running escalation
// completing within it. Once fired, the latch suppresses further firings
// until ResetLatch is called.
func (c *Classifier) DetectRapidTransition() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.latched {
		return false
	}

	if !c.detectLocked() {
		return false
	}

	c.latched = true

	return true
}

// Latched reports whether the danger latch is currently set.
func (c *Classifier) Latched() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.latched
}

// ResetLatch re-arms dangerous-transition detection.
func (c *Classifier) ResetLatch() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.latched = false
}

// classify maps window statistics to a state. Bands are checked in fixed
// priority order: falling, shaking, then the ascending mean bands with
// high-activity as the fallback.
func (c *Classifier) classify(mean, peak float64) domain.State {
	t := c.cfg.Thresholds

	switch {
	case peak > t.Fall:
		return domain.StateFalling
	case mean > t.Shake && peak > t.ShakeMaxFactor*t.Shake:
		return domain.StateShaking
	case mean < t.Stationary:
		return domain.StateStationary
	case mean < t.Walking:
		return domain.StateWalking
	case mean < t.Running:
		return domain.StateRunning
	case mean < t.Driving:
		return domain.StateDriving
	default:
		return domain.StateHighActivity
	}
}

// pruneLocked drops transitions older than the retention window relative
// to the latest sample timestamp.
func (c *Classifier) pruneLocked(latest time.Time) {
	cutoff := latest.Add(-c.cfg.Retention)

	keepFrom := 0
	for keepFrom < len(c.transitions) && c.transitions[keepFrom].Timestamp.Before(cutoff) {
		keepFrom++
	}

	if keepFrom > 0 {
		c.transitions = append(c.transitions[:0:0], c.transitions[keepFrom:]...)
	}
}

// detectLocked scans the transition window newest-to-oldest for the
// dangerous patterns.
func (c *Classifier) detectLocked() bool {
	for i := len(c.transitions) - 1; i >= 0; i-- {
		entered := c.transitions[i]
		if entered.State != domain.StateWalking && entered.State != domain.StateRunning {
			continue
		}

		// Direct jump out of stationary.
		if i >= 1 {
			previous := c.transitions[i-1]
			if previous.State == domain.StateStationary &&
				entered.Timestamp.Sub(previous.Timestamp) <= c.cfg.RapidWindow {
				return true
			}
		}

		if entered.State != domain.StateRunning {
			continue
		}

		// Three-step escalation completing within the rapid window.
		sawWalking := false

		for j := i - 1; j >= 0; j-- {
			earlier := c.transitions[j]
			if entered.Timestamp.Sub(earlier.Timestamp) > c.cfg.RapidWindow {
				break
			}

			if earlier.State == domain.StateWalking {
				sawWalking = true
			}

			if earlier.State == domain.StateStationary && sawWalking {
				return true
			}
		}
	}

	return false
}

// windowStats returns the mean and the maximum of the window.
func windowStats(window []float64) (mean, peak float64) {
	if len(window) == 0 {
		return 0, 0
	}

	var sum float64

	for _, magnitude := range window {
		sum += magnitude
		if magnitude > peak {
			peak = magnitude
		}
	}

	return sum / float64(len(window)), peak
}
