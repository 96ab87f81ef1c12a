package action

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/benbjohnson/clock"

	"github.com/oshokin/lifeline-core/internal/config"
	"github.com/oshokin/lifeline-core/internal/domain/trigger"
	"github.com/oshokin/lifeline-core/internal/logger"
)

// ContextCache is the externally maintained context snapshot cache.
type ContextCache interface {
	// IsFresh reports whether the cached snapshot is young enough to use
	// without refreshing.
	IsFresh() bool
	// Cached returns the cached snapshot, possibly stale or nil.
	Cached() *trigger.Snapshot
	// Refresh synchronously assembles a fresh snapshot, bounded by ctx.
	Refresh(ctx context.Context) (*trigger.Snapshot, error)
}

// MessageSender delivers one message to one destination.
type MessageSender interface {
	Send(ctx context.Context, destination, body string) error
}

// CallStarter initiates the call orchestration flow.
type CallStarter interface {
	Start(ctx context.Context, destination string, severity trigger.Severity) error
}

// QuestionService answers a configured question.
type QuestionService interface {
	Ask(ctx context.Context, question string) (string, error)
}

// SendOutcome is the per-contact result of a message batch. A failure for
// one contact never blocks the others.
type SendOutcome struct {
	// Contact is the recipient.
	Contact trigger.Contact
	// Err is the send failure, nil on success.
	Err error
}

// Status is the published execution state the presentation layer observes.
type Status struct {
	// Name is the executing configuration's name.
	Name string
	// Effect is the executing effect kind.
	Effect trigger.Effect
	// InProgress reports whether an execution is running.
	InProgress bool
	// LastAnswer is the most recent assistant answer or error string.
	LastAnswer string
}

// errNoContacts is returned when a call or message effect has no recipients.
var errNoContacts = errors.New("configuration has no contacts")

// Pipeline performs the effect of a resolved configuration exactly once,
// reporting failures per contact rather than aborting the whole batch.
type Pipeline struct {
	// cache provides freshness-gated context snapshots.
	cache ContextCache
	// sender delivers messages.
	sender MessageSender
	// caller starts the call orchestration flow.
	caller CallStarter
	// assistant answers ask-effect questions.
	assistant QuestionService
	// cfg holds the freshness gate and refresh bound.
	cfg config.ActionConfig
	// clock provides time for templates and freshness math.
	clock clock.Clock

	// mu protects status.
	mu sync.Mutex
	// status is the published execution state.
	status Status

	// enrichment tracks detached best-effort work for clean shutdown.
	enrichment sync.WaitGroup
}

// NewPipeline creates an action pipeline.
func NewPipeline(
	cache ContextCache,
	sender MessageSender,
	caller CallStarter,
	assistant QuestionService,
	cfg config.ActionConfig,
	clk clock.Clock,
) *Pipeline {
	if clk == nil {
		clk = clock.New()
	}

	full := config.Config{Action: cfg}
	_ = config.Validate(&full)

	return &Pipeline{
		cache:     cache,
		sender:    sender,
		caller:    caller,
		assistant: assistant,
		cfg:       full.Action,
		clock:     clk,
	}
}

// Execute performs the configuration's effect. It implements the
// dispatcher executor contract.
func (p *Pipeline) Execute(ctx context.Context, cfg *trigger.Config, event trigger.Event) error {
	ctx = logger.WithName(ctx, "action-pipeline")

	switch cfg.Effect {
	case trigger.EffectMessage:
		p.setStatus(cfg, true)
		defer p.setStatus(cfg, false)

		outcomes := p.SendMessages(ctx, cfg)
		reportOutcomes(ctx, cfg, outcomes)

		return nil
	case trigger.EffectVoiceCall:
		p.setStatus(cfg, true)
		return p.executeCall(ctx, cfg, false)
	case trigger.EffectCovertCall:
		// Covert calls publish no user-facing progress.
		return p.executeCall(ctx, cfg, true)
	case trigger.EffectAsk:
		p.setStatus(cfg, true)
		defer p.setStatus(cfg, false)

		return p.executeAsk(ctx, cfg)
	default:
		return fmt.Errorf("unknown effect %q", cfg.Effect)
	}
}

// SendMessages resolves the context snapshot behind the freshness gate,
// renders the template and sends one message per contact independently.
func (p *Pipeline) SendMessages(ctx context.Context, cfg *trigger.Config) []SendOutcome {
	snapshot := p.snapshotContext(ctx)
	outcomes := make([]SendOutcome, 0, len(cfg.Contacts))

	for _, contact := range cfg.Contacts {
		body := renderTemplate(cfg.MessageTemplate, contact, snapshot, p.clock.Now())
		err := p.sender.Send(ctx, contact.PhoneNumber, body)

		outcomes = append(outcomes, SendOutcome{Contact: contact, Err: err})
	}

	return outcomes
}

// Status returns the published execution state.
func (p *Pipeline) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.status
}

// Wait blocks until detached enrichment work finishes. Used on shutdown
// and in tests.
func (p *Pipeline) Wait() {
	p.enrichment.Wait()
}

// executeCall initiates the call immediately using only the destination
// number; context collection and message enrichment proceed detached so
// the call is never delayed waiting for location.
func (p *Pipeline) executeCall(ctx context.Context, cfg *trigger.Config, covert bool) error {
	if len(cfg.Contacts) == 0 {
		return errNoContacts
	}

	destination := cfg.Contacts[0].PhoneNumber

	if err := p.caller.Start(ctx, destination, cfg.Severity); err != nil {
		if !covert {
			p.setStatus(cfg, false)
		}

		return fmt.Errorf("initiate call: %w", err)
	}

	if cfg.MessageTemplate != "" {
		detachedCtx := context.WithoutCancel(ctx)

		p.enrichment.Add(1)

		go func() {
			defer p.enrichment.Done()

			outcomes := p.SendMessages(detachedCtx, cfg)
			reportOutcomes(detachedCtx, cfg, outcomes)
		}()
	}

	if !covert {
		p.setStatus(cfg, false)
	}

	return nil
}

// executeAsk sends the configured question to the assistant and surfaces
// the raw answer or a formatted error string.
func (p *Pipeline) executeAsk(ctx context.Context, cfg *trigger.Config) error {
	answer, err := p.assistant.Ask(ctx, cfg.Question)
	if err != nil {
		answer = fmt.Sprintf("assistant unavailable: %v", err)
	}

	p.mu.Lock()
	p.status.LastAnswer = answer
	p.mu.Unlock()

	logger.InfoKV(ctx, "Assistant answered", "configuration", cfg.Name, "answer", answer)

	return nil
}

// snapshotContext returns the cached snapshot when fresh, otherwise
// requests a bounded synchronous refresh. Enrichment failure degrades to
// whatever is cached; it never blocks the action.
func (p *Pipeline) snapshotContext(ctx context.Context) *trigger.Snapshot {
	if p.cache == nil {
		return nil
	}

	if p.cache.IsFresh() {
		return p.cache.Cached()
	}

	refreshCtx, cancel := context.WithTimeout(ctx, p.cfg.RefreshTimeout)
	defer cancel()

	snapshot, err := p.cache.Refresh(refreshCtx)
	if err != nil {
		logger.WarnKV(ctx, "Context refresh failed, using stale snapshot", "error", err)
		return p.cache.Cached()
	}

	return snapshot
}

// setStatus publishes the execution-state flags.
func (p *Pipeline) setStatus(cfg *trigger.Config, inProgress bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.status.Name = cfg.Name
	p.status.Effect = cfg.Effect
	p.status.InProgress = inProgress
}

// reportOutcomes logs each contact's send result individually so partial
// success stays visible.
func reportOutcomes(ctx context.Context, cfg *trigger.Config, outcomes []SendOutcome) {
	for _, outcome := range outcomes {
		if outcome.Err != nil {
			logger.ErrorKV(ctx, "Message send failed",
				"configuration", cfg.Name,
				"contact", outcome.Contact.Name,
				"error", outcome.Err)

			continue
		}

		logger.InfoKV(ctx, "Message sent",
			"configuration", cfg.Name, "contact", outcome.Contact.Name)
	}
}
