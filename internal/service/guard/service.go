package guard

import (
	"context"
	"errors"
	"fmt"

	"github.com/oshokin/lifeline-core/internal/channel/aivoice"
	"github.com/oshokin/lifeline-core/internal/channel/assist"
	"github.com/oshokin/lifeline-core/internal/channel/sms"
	"github.com/oshokin/lifeline-core/internal/channel/telephony"
	"github.com/oshokin/lifeline-core/internal/config"
	"github.com/oshokin/lifeline-core/internal/domain/trigger"
	"github.com/oshokin/lifeline-core/internal/repository/records"
	"github.com/oshokin/lifeline-core/internal/service/action"
	"github.com/oshokin/lifeline-core/internal/service/call"
	"github.com/oshokin/lifeline-core/internal/service/dispatcher"
	"github.com/oshokin/lifeline-core/internal/service/health"
	"github.com/oshokin/lifeline-core/internal/service/motion"
)

// Platform provides the device capabilities the daemon binds to. Any
// field may be nil: a missing capability simply leaves its trigger source
// silent.
type Platform struct {
	// Motion reads acceleration samples from the device.
	Motion motion.SampleSource
	// Health reads the latest health metric values.
	Health health.MetricsSource
	// Snapshots assembles context snapshots (location, battery, health).
	Snapshots action.SnapshotFunc
	// Button delivers hardware button press events.
	Button <-chan trigger.Event
	// Voice delivers matched speech keyword events.
	Voice <-chan trigger.Event
}

// Service wires the full trigger-to-action pipeline: platform sources
// feed the dispatcher, resolved configurations run through the action
// pipeline, calls go through the orchestrator and finished sessions land
// in the records store.
type Service struct {
	settings     *config.Config
	store        *records.Store
	dispatcher   *dispatcher.Dispatcher
	orchestrator *call.Orchestrator
	pipeline     *action.Pipeline
	classifier   *motion.Classifier
}

// newService builds the service graph from settings and platform hooks.
func newService(_ context.Context, settings *config.Config, platform Platform) (*Service, error) {
	store, err := records.Open(settings.DatabaseFile)
	if err != nil {
		return nil, fmt.Errorf("open records store: %w", err)
	}

	var (
		cache     action.ContextCache
		snapshots call.SnapshotSource
	)

	if platform.Snapshots != nil {
		fc := action.NewFreshnessCache(platform.Snapshots, settings.Action.ContextFreshness, nil)
		cache = fc
		snapshots = fc
	}

	var ai call.Channel

	if agent := aivoice.NewClient(settings.Channels.AIVoice); agent.Configured() {
		ai = agent
	}

	var conventional call.Channel

	if settings.Channels.Telephony.BaseURL != "" {
		conventional = telephony.NewClient(settings.Channels.Telephony)
	}

	policy := call.NewPreferencePolicy(settings.Call.Preference, ai, conventional)
	orchestrator := call.NewOrchestrator(policy, store, snapshots, settings.Call, nil)

	pipeline := action.NewPipeline(
		cache,
		sms.NewClient(settings.Channels.SMS),
		orchestrator,
		assist.NewClient(settings.Channels.Assist),
		settings.Action,
		nil,
	)

	sources := make([]dispatcher.Source, 0, 4)

	if platform.Button != nil {
		sources = append(sources, dispatcher.NewChannelSource(trigger.KindButton, platform.Button))
	}

	if platform.Voice != nil {
		sources = append(sources, dispatcher.NewChannelSource(trigger.KindVoice, platform.Voice))
	}

	var classifier *motion.Classifier

	if platform.Motion != nil {
		classifier = motion.NewClassifier(settings.Motion)
		sources = append(sources,
			motion.NewSource(classifier, platform.Motion, settings.Motion.SampleInterval, nil))
	}

	if platform.Health != nil {
		sources = append(sources, health.NewEvaluator(platform.Health, store, settings.Health, nil))
	}

	return &Service{
		settings:     settings,
		store:        store,
		dispatcher:   dispatcher.New(store, pipeline, settings.Dispatcher, nil, sources...),
		orchestrator: orchestrator,
		pipeline:     pipeline,
		classifier:   classifier,
	}, nil
}

// Start registers the trigger sources required by the enabled
// configurations.
func (s *Service) Start(ctx context.Context) {
	s.dispatcher.RegisterSources(ctx)
}

// RefreshSources re-reads the enabled configurations and starts or stops
// trigger sources to match. An armed countdown is preserved.
func (s *Service) RefreshSources(ctx context.Context) {
	s.dispatcher.Refresh(ctx)
}

// Shutdown stops the trigger sources, ends any in-flight call, drains
// detached work and closes the store.
func (s *Service) Shutdown(ctx context.Context) error {
	s.dispatcher.ShutdownSources()

	if err := s.orchestrator.End(ctx); err != nil && !errors.Is(err, call.ErrNoSession) {
		return fmt.Errorf("end call session: %w", err)
	}

	s.orchestrator.Wait()
	s.pipeline.Wait()

	if err := s.store.Close(); err != nil {
		return fmt.Errorf("close records store: %w", err)
	}

	return nil
}
