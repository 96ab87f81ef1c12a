package action

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"

	"github.com/oshokin/lifeline-core/internal/config"
	"github.com/oshokin/lifeline-core/internal/domain/trigger"
)

// stubCache serves canned snapshots and counts refreshes.
type stubCache struct {
	mu         sync.Mutex
	fresh      bool
	cached     *trigger.Snapshot
	refreshed  *trigger.Snapshot
	refreshErr error
	refreshes  int
	delay      time.Duration
}

func (s *stubCache) IsFresh() bool { return s.fresh }

func (s *stubCache) Cached() *trigger.Snapshot { return s.cached }

func (s *stubCache) Refresh(context.Context) (*trigger.Snapshot, error) {
	if s.delay > 0 {
		time.Sleep(s.delay)
	}

	s.mu.Lock()
	s.refreshes++
	s.mu.Unlock()

	return s.refreshed, s.refreshErr
}

func (s *stubCache) refreshCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.refreshes
}

// stubSender fails for configured destinations and records bodies.
type stubSender struct {
	mu     sync.Mutex
	failed map[string]error
	sent   map[string]string
}

func newStubSender() *stubSender {
	return &stubSender{
		failed: make(map[string]error),
		sent:   make(map[string]string),
	}
}

func (s *stubSender) Send(_ context.Context, destination, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.failed[destination]; err != nil {
		return err
	}

	s.sent[destination] = body

	return nil
}

func (s *stubSender) sentTo(destination string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	body, ok := s.sent[destination]

	return body, ok
}

// stubCaller records call initiations.
type stubCaller struct {
	mu           sync.Mutex
	destinations []string
	severities   []trigger.Severity
	err          error
}

func (s *stubCaller) Start(_ context.Context, destination string, severity trigger.Severity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return s.err
	}

	s.destinations = append(s.destinations, destination)
	s.severities = append(s.severities, severity)

	return nil
}

func (s *stubCaller) started() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]string(nil), s.destinations...)
}

// stubAssistant returns a canned answer or error.
type stubAssistant struct {
	answer string
	err    error
}

func (s *stubAssistant) Ask(context.Context, string) (string, error) {
	return s.answer, s.err
}

// threeContacts is a message rule with three recipients.
func threeContacts() *trigger.Config {
	return &trigger.Config{
		ID:              "cfg-msg",
		Name:            "notify family",
		TriggerKind:     trigger.KindButton,
		Effect:          trigger.EffectMessage,
		MessageTemplate: "Emergency for {name} at {address}, battery {battery}",
		Contacts: []trigger.Contact{
			{Name: "Anna", PhoneNumber: "+15550101"},
			{Name: "Boris", PhoneNumber: "+15550102"},
			{Name: "Clara", PhoneNumber: "+15550103"},
		},
		Enabled: true,
	}
}

// TestMessagePartialFailure verifies one failing contact never blocks the
// others and each outcome is reported individually.
func TestMessagePartialFailure(t *testing.T) {
	t.Parallel()

	sender := newStubSender()
	sender.failed["+15550102"] = errors.New("gateway rejected")

	p := NewPipeline(
		&stubCache{fresh: true, cached: &trigger.Snapshot{Address: "12 Main St", BatteryPercent: 80}},
		sender, &stubCaller{}, &stubAssistant{},
		config.ActionConfig{}, clock.NewMock(),
	)

	outcomes := p.SendMessages(context.Background(), threeContacts())
	require.Len(t, outcomes, 3)

	require.NoError(t, outcomes[0].Err)
	require.Error(t, outcomes[1].Err)
	require.NoError(t, outcomes[2].Err)

	_, ok := sender.sentTo("+15550101")
	require.True(t, ok)
	_, ok = sender.sentTo("+15550103")
	require.True(t, ok)
	_, ok = sender.sentTo("+15550102")
	require.False(t, ok)
}

// TestFreshnessGate verifies a fresh cache is used without refreshing,
// a stale one forces a refresh, and a failed refresh degrades to the
// stale snapshot instead of blocking the batch.
func TestFreshnessGate(t *testing.T) {
	t.Parallel()

	fresh := &stubCache{fresh: true, cached: &trigger.Snapshot{Address: "cached"}}
	p := NewPipeline(fresh, newStubSender(), &stubCaller{}, &stubAssistant{},
		config.ActionConfig{}, clock.NewMock())

	p.SendMessages(context.Background(), threeContacts())
	require.Zero(t, fresh.refreshCount())

	stale := &stubCache{fresh: false, refreshed: &trigger.Snapshot{Address: "refreshed"}}
	p = NewPipeline(stale, newStubSender(), &stubCaller{}, &stubAssistant{},
		config.ActionConfig{}, clock.NewMock())

	p.SendMessages(context.Background(), threeContacts())
	require.Equal(t, 1, stale.refreshCount())

	failing := &stubCache{
		fresh:      false,
		cached:     &trigger.Snapshot{Address: "stale but present"},
		refreshErr: errors.New("location timeout"),
	}
	sender := newStubSender()
	p = NewPipeline(failing, sender, &stubCaller{}, &stubAssistant{},
		config.ActionConfig{}, clock.NewMock())

	outcomes := p.SendMessages(context.Background(), threeContacts())
	require.Len(t, outcomes, 3)

	body, ok := sender.sentTo("+15550101")
	require.True(t, ok)
	require.Contains(t, body, "stale but present")
}

// TestVoiceCallDoesNotWaitForContext verifies the call initiates with only
// the destination number while enrichment proceeds detached.
func TestVoiceCallDoesNotWaitForContext(t *testing.T) {
	t.Parallel()

	slow := &stubCache{
		fresh:     false,
		refreshed: &trigger.Snapshot{Address: "late"},
		delay:     150 * time.Millisecond,
	}
	sender := newStubSender()
	caller := &stubCaller{}

	p := NewPipeline(slow, sender, caller, &stubAssistant{},
		config.ActionConfig{}, clock.New())

	cfg := threeContacts()
	cfg.Effect = trigger.EffectVoiceCall
	cfg.Severity = trigger.SeverityCritical

	started := time.Now()
	err := p.Execute(context.Background(), cfg, trigger.NewEvent(trigger.KindButton, "", time.Now()))
	require.NoError(t, err)

	// Initiation returned without riding out the slow refresh.
	require.Less(t, time.Since(started), 100*time.Millisecond)
	require.Equal(t, []string{"+15550101"}, caller.started())

	// Enrichment completes in the background.
	p.Wait()
	require.Equal(t, 1, slow.refreshCount())

	_, ok := sender.sentTo("+15550102")
	require.True(t, ok)
}

// TestCovertCallPublishesNoProgress verifies covert calls leave the
// execution-state flags untouched.
func TestCovertCallPublishesNoProgress(t *testing.T) {
	t.Parallel()

	caller := &stubCaller{}
	p := NewPipeline(&stubCache{fresh: true}, newStubSender(), caller, &stubAssistant{},
		config.ActionConfig{}, clock.NewMock())

	cfg := threeContacts()
	cfg.Effect = trigger.EffectCovertCall
	cfg.MessageTemplate = ""

	require.NoError(t, p.Execute(context.Background(), cfg, trigger.NewEvent(trigger.KindButton, "", time.Now())))
	require.Equal(t, []string{"+15550101"}, caller.started())

	status := p.Status()
	require.Empty(t, status.Name)
	require.False(t, status.InProgress)
}

// TestCallWithoutContacts verifies the boundary rejection.
func TestCallWithoutContacts(t *testing.T) {
	t.Parallel()

	p := NewPipeline(&stubCache{}, newStubSender(), &stubCaller{}, &stubAssistant{},
		config.ActionConfig{}, clock.NewMock())

	cfg := &trigger.Config{Name: "broken", Effect: trigger.EffectVoiceCall}
	require.ErrorIs(t,
		p.Execute(context.Background(), cfg, trigger.NewEvent(trigger.KindButton, "", time.Now())),
		errNoContacts)
}

// TestAskSurfacesAnswerAndError verifies the raw answer and the formatted
// error string both reach the published state.
func TestAskSurfacesAnswerAndError(t *testing.T) {
	t.Parallel()

	cfg := &trigger.Config{Name: "ask", Effect: trigger.EffectAsk, Question: "what do I do?"}

	p := NewPipeline(&stubCache{}, newStubSender(), &stubCaller{},
		&stubAssistant{answer: "stay calm"}, config.ActionConfig{}, clock.NewMock())
	require.NoError(t, p.Execute(context.Background(), cfg, trigger.NewEvent(trigger.KindVoice, "", time.Now())))
	require.Equal(t, "stay calm", p.Status().LastAnswer)

	p = NewPipeline(&stubCache{}, newStubSender(), &stubCaller{},
		&stubAssistant{err: errors.New("offline")}, config.ActionConfig{}, clock.NewMock())
	require.NoError(t, p.Execute(context.Background(), cfg, trigger.NewEvent(trigger.KindVoice, "", time.Now())))
	require.Equal(t, fmt.Sprintf("assistant unavailable: %v", errors.New("offline")), p.Status().LastAnswer)
}

// TestRenderTemplate verifies placeholder substitution and the unknown
// fallbacks for a missing snapshot.
func TestRenderTemplate(t *testing.T) {
	t.Parallel()

	contact := trigger.Contact{Name: "Anna", PhoneNumber: "+15550101"}
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	full := renderTemplate(
		"{name}: {location} ({address}), battery {battery} at {time}",
		contact,
		&trigger.Snapshot{
			Latitude:       55.75,
			Longitude:      37.61,
			Address:        "Red Square",
			BatteryPercent: 42,
		},
		now,
	)
	require.Equal(t, "Anna: 55.75000,37.61000 (Red Square), battery 42% at 2025-06-01T12:00:00Z", full)

	degraded := renderTemplate("{name} {address} {battery}", contact, nil, now)
	require.Equal(t, "Anna unknown unknown", degraded)
}
