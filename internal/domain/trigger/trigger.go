package trigger

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// Kind identifies the signal source of a trigger event or the trigger
// side of an action configuration.
type Kind string

const (
	// KindButton is a hardware emergency button press.
	KindButton Kind = "button"
	// KindVoice is a matched speech keyword.
	KindVoice Kind = "voice"
	// KindMotion is a dangerous motion transition.
	KindMotion Kind = "motion"
	// KindHealth is a crossed health metric threshold.
	KindHealth Kind = "health"
	// KindDelay marks configurations armed by a button press and executed
	// after a countdown. Events never carry this kind.
	KindDelay Kind = "delay"
	// KindCountdown is the internal event raised when a delayed countdown
	// expires.
	KindCountdown Kind = "countdown"
)

// Effect identifies what an action configuration does when it fires.
type Effect string

const (
	// EffectVoiceCall places a distress voice call.
	EffectVoiceCall Effect = "voice-call"
	// EffectMessage sends a templated message to the configured contacts.
	EffectMessage Effect = "message"
	// EffectAsk sends a question to the assistant and surfaces the answer.
	EffectAsk Effect = "ask"
	// EffectCovertCall places a voice call without user-facing progress.
	EffectCovertCall Effect = "covert-call"
)

// Severity is the ordinal emergency priority tier of a configuration.
type Severity int

const (
	// SeverityLow is an informational check-in.
	SeverityLow Severity = iota
	// SeverityMedium is a concerning but non-urgent situation.
	SeverityMedium
	// SeverityHigh is an urgent situation where the user can still speak.
	SeverityHigh
	// SeverityCritical assumes the user cannot speak for themselves.
	SeverityCritical
)

// String returns the severity tier name.
func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Event is a discrete trigger signal crossing from a source into the
// dispatcher. It is transient and never persisted.
type Event struct {
	// ID uniquely identifies the event for log correlation.
	ID string
	// Kind names the source that raised the event.
	Kind Kind
	// Payload optionally describes the signal, e.g. the matched keyword
	// or the crossed threshold.
	Payload string
	// Timestamp is when the signal was raised.
	Timestamp time.Time
}

// NewEvent creates an event for the given source kind.
func NewEvent(kind Kind, payload string, at time.Time) Event {
	return Event{
		ID:        uuid.NewString(),
		Kind:      kind,
		Payload:   payload,
		Timestamp: at,
	}
}

// Operator compares a health metric value against a configured threshold.
type Operator string

const (
	// OpGreater fires when the value is strictly above the threshold.
	OpGreater Operator = ">"
	// OpLess fires when the value is strictly below the threshold.
	OpLess Operator = "<"
	// OpGreaterOrEqual fires when the value is at or above the threshold.
	OpGreaterOrEqual Operator = ">="
	// OpLessOrEqual fires when the value is at or below the threshold.
	OpLessOrEqual Operator = "<="
	// OpApprox fires when the value is within tolerance of the threshold.
	OpApprox Operator = "~="
)

// Holds reports whether the operator is satisfied for the given value,
// threshold and approximate-equality tolerance.
func (o Operator) Holds(value, threshold, tolerance float64) bool {
	switch o {
	case OpGreater:
		return value > threshold
	case OpLess:
		return value < threshold
	case OpGreaterOrEqual:
		return value >= threshold
	case OpLessOrEqual:
		return value <= threshold
	case OpApprox:
		return math.Abs(value-threshold) <= tolerance
	default:
		return false
	}
}

// Contact is one recipient of messages or calls.
type Contact struct {
	// Name is the display name used in message templates.
	Name string
	// PhoneNumber is the E.164 destination number.
	PhoneNumber string
}

// Config is a user-authored rule binding a trigger kind to an effect.
// Configurations are owned by the settings store and read-only here;
// the store guarantees at most one is enabled at a time.
type Config struct {
	// ID uniquely identifies the configuration.
	ID string
	// Name is the user-visible rule name.
	Name string
	// TriggerKind names the signal this rule reacts to.
	TriggerKind Kind
	// Keyword is the speech keyword for voice-kind rules.
	Keyword string
	// HealthMetric names the metric for health-kind rules.
	HealthMetric string
	// HealthOperator compares the metric against HealthThreshold.
	HealthOperator Operator
	// HealthThreshold is the metric boundary for health-kind rules.
	HealthThreshold float64
	// Delay is the countdown duration for delay-kind rules.
	Delay time.Duration
	// Effect names what happens when the rule fires.
	Effect Effect
	// Contacts are the recipients of messages and calls.
	Contacts []Contact
	// MessageTemplate is the message body with placeholder tokens.
	MessageTemplate string
	// Question is the text sent to the assistant for ask-effect rules.
	Question string
	// Severity is the emergency priority tier of the rule.
	Severity Severity
	// Enabled arms the rule.
	Enabled bool
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}

	cloned := *c
	cloned.Contacts = make([]Contact, len(c.Contacts))
	copy(cloned.Contacts, c.Contacts)

	return &cloned
}

// Matches reports whether an event of the given kind fires this rule.
// Delay-kind rules are armed and canceled by button presses; countdown
// expiry events fire them directly.
func (c *Config) Matches(kind Kind) bool {
	if c.TriggerKind == KindDelay {
		return kind == KindButton || kind == KindCountdown
	}

	return c.TriggerKind == kind
}
