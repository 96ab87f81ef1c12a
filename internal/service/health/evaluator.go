package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/oshokin/lifeline-core/internal/config"
	"github.com/oshokin/lifeline-core/internal/domain/trigger"
	"github.com/oshokin/lifeline-core/internal/logger"
)

// Metric names recognized in health-kind configurations.
const (
	// MetricHeartRateVariability is the heart-rate-variability metric in ms.
	MetricHeartRateVariability = "heart-rate-variability"
	// MetricRespiratoryRate is the respiratory rate metric in breaths/min.
	MetricRespiratoryRate = "respiratory-rate"
)

// Metrics is an on-demand snapshot of the current health readings.
type Metrics struct {
	// HeartRateVariability is the latest HRV reading in ms.
	HeartRateVariability float64
	// RespiratoryRate is the latest respiratory rate in breaths/min.
	RespiratoryRate float64
}

// MetricsSource reads the latest health metric values from the platform.
type MetricsSource interface {
	// Snapshot returns the current readings.
	Snapshot(ctx context.Context) (Metrics, error)
}

// ConfigSource provides the currently enabled action configurations.
type ConfigSource interface {
	// EnabledConfigurations returns the enabled configurations, freshly read.
	EnabledConfigurations(ctx context.Context) ([]*trigger.Config, error)
}

// Evaluator polls health metrics on a fixed interval and raises a trigger
// event when an enabled health configuration's threshold condition holds.
// A global cooldown after any fired trigger prevents threshold oscillation
// from flooding the dispatcher.
type Evaluator struct {
	// metrics is the platform health source.
	metrics MetricsSource
	// configs provides the enabled configurations.
	configs ConfigSource
	// cfg holds the polling interval, cooldown and tolerance.
	cfg config.HealthConfig
	// clock schedules polling and measures the cooldown.
	clock clock.Clock

	// mu protects lastFired.
	mu sync.Mutex
	// lastFired is when the evaluator last raised a trigger.
	lastFired time.Time
}

// NewEvaluator creates a health evaluator.
func NewEvaluator(metrics MetricsSource, configs ConfigSource, cfg config.HealthConfig, clk clock.Clock) *Evaluator {
	if clk == nil {
		clk = clock.New()
	}

	full := config.Config{Health: cfg}
	_ = config.Validate(&full)

	return &Evaluator{
		metrics: metrics,
		configs: configs,
		cfg:     full.Health,
		clock:   clk,
	}
}

// Kind identifies the trigger events this source emits.
func (e *Evaluator) Kind() trigger.Kind {
	return trigger.KindHealth
}

// Run polls until ctx is done.
func (e *Evaluator) Run(ctx context.Context, emit func(trigger.Event)) error {
	ctx = logger.WithName(ctx, "health-evaluator")

	ticker := e.clock.Ticker(e.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			e.Evaluate(ctx, emit)
		}
	}
}

// Evaluate performs one polling pass: reads the metrics and fires at most
// one trigger for the first satisfied condition, respecting the cooldown.
func (e *Evaluator) Evaluate(ctx context.Context, emit func(trigger.Event)) {
	now := e.clock.Now()

	e.mu.Lock()
	inCooldown := !e.lastFired.IsZero() && now.Sub(e.lastFired) < e.cfg.Cooldown
	e.mu.Unlock()

	if inCooldown {
		return
	}

	readings, err := e.metrics.Snapshot(ctx)
	if err != nil {
		logger.WarnKV(ctx, "Health metrics unavailable", "error", err)
		return
	}

	configurations, err := e.configs.EnabledConfigurations(ctx)
	if err != nil {
		logger.ErrorKV(ctx, "Failed to read configurations", "error", err)
		return
	}

	for _, cfg := range configurations {
		if cfg.TriggerKind != trigger.KindHealth {
			continue
		}

		value, ok := metricValue(readings, cfg.HealthMetric)
		if !ok {
			logger.WarnKV(ctx, "Unknown health metric in configuration",
				"configuration", cfg.Name, "metric", cfg.HealthMetric)

			continue
		}

		if !cfg.HealthOperator.Holds(value, cfg.HealthThreshold, e.cfg.Tolerance) {
			continue
		}

		description := fmt.Sprintf("%s %.1f %s %.1f",
			cfg.HealthMetric, value, cfg.HealthOperator, cfg.HealthThreshold)

		logger.InfoKV(ctx, "Health threshold crossed", "condition", description)

		e.mu.Lock()
		e.lastFired = now
		e.mu.Unlock()

		emit(trigger.NewEvent(trigger.KindHealth, description, now))

		return
	}
}

// metricValue resolves a configured metric name against the readings.
func metricValue(readings Metrics, metric string) (float64, bool) {
	switch metric {
	case MetricHeartRateVariability:
		return readings.HeartRateVariability, true
	case MetricRespiratoryRate:
		return readings.RespiratoryRate, true
	default:
		return 0, false
	}
}
