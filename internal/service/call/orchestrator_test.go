package call

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"

	"github.com/oshokin/lifeline-core/internal/config"
	domain "github.com/oshokin/lifeline-core/internal/domain/call"
	"github.com/oshokin/lifeline-core/internal/domain/trigger"
)

// fakeChannel scripts the remote call lifecycle. A non-nil dialGate makes
// Initiate block until the gate is closed, outside the mutex so counters
// stay readable while a dial is in flight.
type fakeChannel struct {
	mu         sync.Mutex
	name       string
	initErr    error
	initiated  int
	statuses   []ChannelStatus
	pollErr    error
	terminated int
	dialGate   chan struct{}
}

func (f *fakeChannel) Name() string { return f.name }

func (f *fakeChannel) Initiate(_ context.Context, _ string, _ trigger.Severity, _ *trigger.Snapshot) (string, error) {
	f.mu.Lock()
	f.initiated++
	gate := f.dialGate
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.initErr != nil {
		return "", f.initErr
	}

	return "handle-" + f.name, nil
}

func (f *fakeChannel) PollStatus(context.Context, string) (ChannelStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.pollErr != nil {
		return "", f.pollErr
	}

	if len(f.statuses) == 0 {
		return StatusConnecting, nil
	}

	status := f.statuses[0]
	if len(f.statuses) > 1 {
		f.statuses = f.statuses[1:]
	}

	return status, nil
}

func (f *fakeChannel) Terminate(context.Context, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.terminated++

	return nil
}

func (f *fakeChannel) initiations() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.initiated
}

func (f *fakeChannel) terminations() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.terminated
}

// fakeStore collects persisted records.
type fakeStore struct {
	mu      sync.Mutex
	records []*domain.Record
}

func (f *fakeStore) AppendCallRecord(_ context.Context, record *domain.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.records = append(f.records, record)

	return nil
}

func (f *fakeStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.records)
}

func (f *fakeStore) last() *domain.Record {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.records) == 0 {
		return nil
	}

	return f.records[len(f.records)-1]
}

// staticPolicy returns a fixed channel preference.
type staticPolicy struct {
	channels []Channel
}

func (p staticPolicy) Select(trigger.Severity) []Channel { return p.channels }

func testCallConfig() config.CallConfig {
	return config.CallConfig{
		PollInterval:  5 * time.Second,
		MaxPollErrors: 3,
	}
}

func TestDuplicateSessionRejected(t *testing.T) {
	t.Parallel()

	channel := &fakeChannel{name: "telephony"}
	store := &fakeStore{}
	o := NewOrchestrator(staticPolicy{[]Channel{channel}}, store, nil, testCallConfig(), clock.NewMock())

	require.NoError(t, o.Start(context.Background(), "+15550101", trigger.SeverityHigh))
	require.Equal(t, StateConnected, o.State())

	err := o.Start(context.Background(), "+15550102", trigger.SeverityHigh)
	require.ErrorIs(t, err, ErrSessionActive)
	require.Equal(t, 1, channel.initiations())

	require.NoError(t, o.End(context.Background()))
	o.Wait()
	require.Equal(t, StateEnded, o.State())
}

func TestFallbackUsedOnce(t *testing.T) {
	t.Parallel()

	primary := &fakeChannel{name: "ai-voice", initErr: errors.New("agent unavailable")}
	fallback := &fakeChannel{name: "telephony"}
	store := &fakeStore{}
	o := NewOrchestrator(staticPolicy{[]Channel{primary, fallback}}, store, nil, testCallConfig(), clock.NewMock())

	require.NoError(t, o.Start(context.Background(), "+15550101", trigger.SeverityCritical))
	require.Equal(t, 1, primary.initiations())
	require.Equal(t, 1, fallback.initiations())

	require.NoError(t, o.End(context.Background()))
	o.Wait()
	require.Equal(t, "telephony", store.last().ChannelName)
}

func TestAllChannelsFailing(t *testing.T) {
	t.Parallel()

	primary := &fakeChannel{name: "ai-voice", initErr: errors.New("agent unavailable")}
	fallback := &fakeChannel{name: "telephony", initErr: errors.New("gateway down")}
	store := &fakeStore{}
	o := NewOrchestrator(staticPolicy{[]Channel{primary, fallback}}, store, nil, testCallConfig(), clock.NewMock())

	err := o.Start(context.Background(), "+15550101", trigger.SeverityCritical)
	require.Error(t, err)

	// The failed session is recorded and the failure stays observable.
	require.Equal(t, 1, store.count())
	require.Contains(t, store.last().FailureReason, "gateway down")
	require.Equal(t, StateError, o.State())
	require.Contains(t, o.LastFailure(), "gateway down")

	// A new session can start after the failure.
	fallback.mu.Lock()
	fallback.initErr = nil
	fallback.mu.Unlock()

	require.NoError(t, o.Start(context.Background(), "+15550101", trigger.SeverityCritical))
	require.Empty(t, o.LastFailure())
	require.NoError(t, o.End(context.Background()))
}

func TestRemoteEndFinishesSession(t *testing.T) {
	t.Parallel()

	mock := clock.NewMock()
	channel := &fakeChannel{name: "telephony", statuses: []ChannelStatus{StatusActive, StatusEnded}}
	store := &fakeStore{}
	cfg := testCallConfig()
	o := NewOrchestrator(staticPolicy{[]Channel{channel}}, store, nil, cfg, mock)

	require.NoError(t, o.Start(context.Background(), "+15550101", trigger.SeverityHigh))

	require.Eventually(t, func() bool {
		mock.Add(cfg.PollInterval)

		return store.count() == 1
	}, 2*time.Second, 20*time.Millisecond)

	o.Wait()
	require.Equal(t, StateEnded, o.State())
	require.Empty(t, store.last().FailureReason)
	require.Empty(t, o.LastFailure())
}

func TestPollErrorBoundEndsSession(t *testing.T) {
	t.Parallel()

	mock := clock.NewMock()
	channel := &fakeChannel{name: "telephony", pollErr: errors.New("status endpoint timeout")}
	store := &fakeStore{}
	cfg := testCallConfig()
	o := NewOrchestrator(staticPolicy{[]Channel{channel}}, store, nil, cfg, mock)

	require.NoError(t, o.Start(context.Background(), "+15550101", trigger.SeverityHigh))

	require.Eventually(t, func() bool {
		mock.Add(cfg.PollInterval)

		return store.count() == 1
	}, 2*time.Second, 20*time.Millisecond)

	o.Wait()
	require.Equal(t, 1, channel.terminations())
	require.Contains(t, store.last().FailureReason, "status polling failed 3 times")
	require.Equal(t, StateError, o.State())
	require.Contains(t, o.LastFailure(), "status polling failed 3 times")
}

func TestExplicitEnd(t *testing.T) {
	t.Parallel()

	channel := &fakeChannel{name: "telephony"}
	store := &fakeStore{}
	o := NewOrchestrator(staticPolicy{[]Channel{channel}}, store, nil, testCallConfig(), clock.NewMock())

	require.NoError(t, o.Start(context.Background(), "+15550101", trigger.SeverityMedium))
	require.NoError(t, o.End(context.Background()))
	o.Wait()

	require.Equal(t, 1, channel.terminations())
	require.Equal(t, 1, store.count())
	require.Equal(t, StateEnded, o.State())

	require.ErrorIs(t, o.End(context.Background()), ErrNoSession)
}

func TestEndDuringDialHangsUpFreshCall(t *testing.T) {
	t.Parallel()

	gate := make(chan struct{})
	channel := &fakeChannel{name: "telephony", dialGate: gate}
	store := &fakeStore{}
	o := NewOrchestrator(staticPolicy{[]Channel{channel}}, store, nil, testCallConfig(), clock.NewMock())

	done := make(chan error, 1)

	go func() {
		done <- o.Start(context.Background(), "+15550101", trigger.SeverityHigh)
	}()

	require.Eventually(t, func() bool {
		return channel.initiations() == 1
	}, 2*time.Second, 10*time.Millisecond)

	// End lands while the channel is still dialing.
	require.NoError(t, o.End(context.Background()))

	close(gate)
	require.NoError(t, <-done)
	o.Wait()

	// The dial that completed after End must be hung up, not adopted.
	require.Equal(t, 1, channel.terminations())
	require.Equal(t, 1, store.count())
	require.False(t, o.Active())
	require.Equal(t, StateEnded, o.State())
}

func TestContextCollectionDegrades(t *testing.T) {
	t.Parallel()

	channel := &fakeChannel{name: "telephony"}
	source := &failingSnapshots{cached: &trigger.Snapshot{Address: "last known"}}
	o := NewOrchestrator(staticPolicy{[]Channel{channel}}, &fakeStore{}, source, testCallConfig(), clock.NewMock())

	require.NoError(t, o.Start(context.Background(), "+15550101", trigger.SeverityHigh))
	require.NoError(t, o.End(context.Background()))
	o.Wait()

	// Refresh failed but the stale snapshot was still collected and the
	// call went through.
	require.Equal(t, 1, channel.initiations())
}

// failingSnapshots always fails to refresh but has a stale snapshot.
type failingSnapshots struct {
	cached *trigger.Snapshot
}

func (f *failingSnapshots) IsFresh() bool { return false }

func (f *failingSnapshots) Cached() *trigger.Snapshot { return f.cached }

func (f *failingSnapshots) Refresh(context.Context) (*trigger.Snapshot, error) {
	return nil, errors.New("location unavailable")
}
