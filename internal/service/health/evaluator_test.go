package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"

	"github.com/oshokin/lifeline-core/internal/config"
	"github.com/oshokin/lifeline-core/internal/domain/trigger"
)

// stubMetrics returns fixed readings or a fixed error.
type stubMetrics struct {
	readings Metrics
	err      error
}

func (s *stubMetrics) Snapshot(context.Context) (Metrics, error) {
	return s.readings, s.err
}

// stubConfigs returns a fixed configuration list.
type stubConfigs struct {
	configurations []*trigger.Config
}

func (s *stubConfigs) EnabledConfigurations(context.Context) ([]*trigger.Config, error) {
	return s.configurations, nil
}

// hrvBelow returns an enabled health configuration firing when HRV drops
// below the threshold.
func hrvBelow(threshold float64) *trigger.Config {
	return &trigger.Config{
		ID:              "cfg-hrv",
		Name:            "low HRV",
		TriggerKind:     trigger.KindHealth,
		HealthMetric:    MetricHeartRateVariability,
		HealthOperator:  trigger.OpLess,
		HealthThreshold: threshold,
		Effect:          trigger.EffectMessage,
		Enabled:         true,
	}
}

// TestEvaluateFiresWithDescription verifies a satisfied condition raises one
// event with a human-readable description of the crossed threshold.
func TestEvaluateFiresWithDescription(t *testing.T) {
	t.Parallel()

	mock := clock.NewMock()
	e := NewEvaluator(
		&stubMetrics{readings: Metrics{HeartRateVariability: 18}},
		&stubConfigs{configurations: []*trigger.Config{hrvBelow(20)}},
		config.HealthConfig{},
		mock,
	)

	var fired []trigger.Event
	e.Evaluate(context.Background(), func(ev trigger.Event) {
		fired = append(fired, ev)
	})

	require.Len(t, fired, 1)
	require.Equal(t, trigger.KindHealth, fired[0].Kind)
	require.Equal(t, "heart-rate-variability 18.0 < 20.0", fired[0].Payload)
}

// TestCooldownSuppressesRefiring verifies the global cooldown holds across
// evaluations and releases once it elapses.
func TestCooldownSuppressesRefiring(t *testing.T) {
	t.Parallel()

	mock := clock.NewMock()
	e := NewEvaluator(
		&stubMetrics{readings: Metrics{HeartRateVariability: 18}},
		&stubConfigs{configurations: []*trigger.Config{hrvBelow(20)}},
		config.HealthConfig{Cooldown: 60 * time.Second},
		mock,
	)

	count := 0
	emit := func(trigger.Event) { count++ }

	e.Evaluate(context.Background(), emit)
	require.Equal(t, 1, count)

	// Still oscillating below threshold 30 s later: suppressed.
	mock.Add(30 * time.Second)
	e.Evaluate(context.Background(), emit)
	require.Equal(t, 1, count)

	// Cooldown elapsed: fires again.
	mock.Add(31 * time.Second)
	e.Evaluate(context.Background(), emit)
	require.Equal(t, 2, count)
}

// TestUnsatisfiedAndUnavailable verifies no event fires for a holding
// condition that is not crossed or when the metrics source errors.
func TestUnsatisfiedAndUnavailable(t *testing.T) {
	t.Parallel()

	emitNever := func(trigger.Event) { t.Fatal("unexpected trigger") }

	e := NewEvaluator(
		&stubMetrics{readings: Metrics{HeartRateVariability: 25}},
		&stubConfigs{configurations: []*trigger.Config{hrvBelow(20)}},
		config.HealthConfig{},
		clock.NewMock(),
	)
	e.Evaluate(context.Background(), emitNever)

	e = NewEvaluator(
		&stubMetrics{err: errors.New("sensor offline")},
		&stubConfigs{configurations: []*trigger.Config{hrvBelow(20)}},
		config.HealthConfig{},
		clock.NewMock(),
	)
	e.Evaluate(context.Background(), emitNever)
}

// TestApproxOperatorUsesTolerance verifies the approximate-equality
// operator honors the configured tolerance.
func TestApproxOperatorUsesTolerance(t *testing.T) {
	t.Parallel()

	cfg := hrvBelow(20)
	cfg.HealthOperator = trigger.OpApprox

	e := NewEvaluator(
		&stubMetrics{readings: Metrics{HeartRateVariability: 20.4}},
		&stubConfigs{configurations: []*trigger.Config{cfg}},
		config.HealthConfig{Tolerance: 0.5},
		clock.NewMock(),
	)

	count := 0
	e.Evaluate(context.Background(), func(trigger.Event) { count++ })
	require.Equal(t, 1, count)
}
