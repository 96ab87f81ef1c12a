package motion

import (
	"context"
	"errors"
	"time"

	"github.com/benbjohnson/clock"

	domain "github.com/oshokin/lifeline-core/internal/domain/motion"
	"github.com/oshokin/lifeline-core/internal/domain/trigger"
	"github.com/oshokin/lifeline-core/internal/logger"
)

// ErrUnavailable is returned by a SampleSource once the motion capability
// is missing or gone. The sampler stops silently; downstream consumers
// observe no further activity rather than an error.
var ErrUnavailable = errors.New("motion capability unavailable")

// SampleSource produces acceleration readings from the platform.
type SampleSource interface {
	// Sample returns the next reading, blocking at most until ctx is done.
	Sample(ctx context.Context) (domain.Sample, error)
}

// Source drives the classifier at the fixed sampling interval and emits a
// motion trigger event when a dangerous transition fires. It implements
// the dispatcher source contract.
type Source struct {
	// classifier consumes the samples.
	classifier *Classifier
	// samples is the platform sample source.
	samples SampleSource
	// interval is the fixed sampling interval.
	interval time.Duration
	// clock schedules the sampling ticks.
	clock clock.Clock
}

// NewSource creates the sampling loop around the classifier.
func NewSource(classifier *Classifier, samples SampleSource, interval time.Duration, clk clock.Clock) *Source {
	if clk == nil {
		clk = clock.New()
	}

	return &Source{
		classifier: classifier,
		samples:    samples,
		interval:   interval,
		clock:      clk,
	}
}

// Kind identifies the trigger events this source emits.
func (s *Source) Kind() trigger.Kind {
	return trigger.KindMotion
}

// Classifier exposes the underlying classifier for observability.
func (s *Source) Classifier() *Classifier {
	return s.classifier
}

// Run samples at the fixed interval until ctx is done or the capability
// becomes unavailable. It never returns an error: a missing capability
// degrades to silence.
func (s *Source) Run(ctx context.Context, emit func(trigger.Event)) error {
	ctx = logger.WithName(ctx, "motion-source")

	ticker := s.clock.Ticker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			sample, err := s.samples.Sample(ctx)
			if errors.Is(err, ErrUnavailable) {
				logger.Info(ctx, "Motion capability unavailable, sampling stopped")
				return nil
			}

			if err != nil {
				logger.DebugKV(ctx, "Sample read skipped", "error", err)
				continue
			}

			state := s.classifier.Ingest(sample)

			if s.classifier.DetectRapidTransition() {
				logger.InfoKV(ctx, "Dangerous transition detected", "state", state.String())
				emit(trigger.NewEvent(trigger.KindMotion, "rapid activity escalation", sample.Timestamp))
			}
		}
	}
}
