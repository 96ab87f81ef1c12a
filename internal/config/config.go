package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all tunable parameters of the lifeline daemon.
type Config struct {
	// LogLevel is the minimum level for log output (debug, info, warn, error).
	LogLevel string `yaml:"log_level"`
	// DatabaseFile is the path to the SQLite file holding call records
	// and action configurations.
	DatabaseFile string `yaml:"database_file"`
	// Motion tunes the activity classifier and transition detector.
	Motion MotionConfig `yaml:"motion"`
	// Health tunes the health threshold evaluator.
	Health HealthConfig `yaml:"health"`
	// Dispatcher tunes trigger debouncing and the delayed countdown.
	Dispatcher DispatcherConfig `yaml:"dispatcher"`
	// Action tunes the action execution pipeline.
	Action ActionConfig `yaml:"action"`
	// Call tunes the call orchestrator.
	Call CallConfig `yaml:"call"`
	// Channels holds credentials for the remote delivery channels.
	Channels ChannelsConfig `yaml:"channels"`
}

// MotionConfig tunes the activity classifier and transition detector.
type MotionConfig struct {
	// SampleInterval is the fixed interval between acceleration samples.
	SampleInterval time.Duration `yaml:"sample_interval"`
	// WindowSize is the number of recent magnitude readings classified each tick.
	WindowSize int `yaml:"window_size"`
	// Retention is how long transition records are kept for pattern detection.
	Retention time.Duration `yaml:"retention"`
	// RapidWindow is the interval within which a stationary-to-running
	// escalation counts as a dangerous transition.
	RapidWindow time.Duration `yaml:"rapid_window"`
	// Thresholds holds the classification band boundaries.
	Thresholds MotionThresholds `yaml:"thresholds"`
}

// MotionThresholds holds the classification band boundaries in g units.
type MotionThresholds struct {
	// Stationary is the mean magnitude below which the user is stationary.
	Stationary float64 `yaml:"stationary"`
	// Walking is the mean magnitude below which the user is walking.
	Walking float64 `yaml:"walking"`
	// Running is the mean magnitude below which the user is running.
	Running float64 `yaml:"running"`
	// Driving is the mean magnitude below which the user is driving.
	Driving float64 `yaml:"driving"`
	// Shake is the mean magnitude above which shaking is considered.
	Shake float64 `yaml:"shake"`
	// ShakeMaxFactor multiplies Shake to form the peak requirement for shaking.
	ShakeMaxFactor float64 `yaml:"shake_max_factor"`
	// Fall is the peak magnitude above which a fall is detected.
	Fall float64 `yaml:"fall"`
}

// HealthConfig tunes the health threshold evaluator.
type HealthConfig struct {
	// PollInterval is the interval between health metric reads.
	PollInterval time.Duration `yaml:"poll_interval"`
	// Cooldown is the global quiet period after any fired health trigger.
	Cooldown time.Duration `yaml:"cooldown"`
	// Tolerance is the numeric tolerance for approximate-equality thresholds.
	Tolerance float64 `yaml:"tolerance"`
}

// DispatcherConfig tunes trigger debouncing and the delayed countdown.
type DispatcherConfig struct {
	// Debounce is the minimum interval between accepted button-origin events.
	Debounce time.Duration `yaml:"debounce"`
	// CountdownTick is the delayed-trigger countdown granularity.
	CountdownTick time.Duration `yaml:"countdown_tick"`
}

// ActionConfig tunes the action execution pipeline.
type ActionConfig struct {
	// ContextFreshness is the age below which a cached context snapshot
	// is used without refreshing.
	ContextFreshness time.Duration `yaml:"context_freshness"`
	// RefreshTimeout bounds a synchronous context refresh.
	RefreshTimeout time.Duration `yaml:"refresh_timeout"`
}

// CallConfig tunes the call orchestrator.
type CallConfig struct {
	// PollInterval is the interval between remote call status polls.
	PollInterval time.Duration `yaml:"poll_interval"`
	// MaxPollErrors is the number of consecutive poll failures tolerated
	// before the session is forced to end.
	MaxPollErrors int `yaml:"max_poll_errors"`
	// ContextTimeout bounds context collection before dialing.
	ContextTimeout time.Duration `yaml:"context_timeout"`
	// Preference selects the calling channel policy:
	// auto, ai-only or conventional-only.
	Preference string `yaml:"preference"`
}

// ChannelsConfig holds credentials for the remote delivery channels.
type ChannelsConfig struct {
	// AIVoice configures the AI voice-agent calling channel.
	AIVoice ChannelEndpoint `yaml:"ai_voice"`
	// Telephony configures the conventional telephony gateway channel.
	Telephony ChannelEndpoint `yaml:"telephony"`
	// SMS configures the message gateway.
	SMS ChannelEndpoint `yaml:"sms"`
	// Assist configures the question-answering assistant.
	Assist ChannelEndpoint `yaml:"assist"`
}

// ChannelEndpoint holds connection settings for one remote service.
type ChannelEndpoint struct {
	// BaseURL is the service root URL.
	BaseURL string `yaml:"base_url"`
	// APIKey authenticates requests to the service.
	APIKey string `yaml:"api_key"`
	// Timeout bounds each request to the service.
	Timeout time.Duration `yaml:"timeout"`
}

const (
	// DefaultConfigFilename is the default filename for daemon settings.
	DefaultConfigFilename = "lifeline-settings.yaml"

	// DefaultDatabaseFilename is the default filename for the records database.
	DefaultDatabaseFilename = "lifeline-records.db"

	// DefaultFilePermissions is the default file permission for config files.
	DefaultFilePermissions = 0o600

	// DefaultSampleInterval is the default motion sampling interval.
	DefaultSampleInterval = 100 * time.Millisecond

	// DefaultWindowSize is the default classification window length.
	DefaultWindowSize = 10

	// DefaultRetention is the default transition retention window.
	DefaultRetention = 30 * time.Second

	// DefaultRapidWindow is the default dangerous-transition window.
	DefaultRapidWindow = 3 * time.Second

	// DefaultHealthPollInterval is the default health polling interval.
	DefaultHealthPollInterval = 30 * time.Second

	// DefaultHealthCooldown is the default quiet period after a health trigger.
	DefaultHealthCooldown = 60 * time.Second

	// DefaultHealthTolerance is the default approximate-equality tolerance.
	DefaultHealthTolerance = 0.5

	// DefaultDebounce is the default minimum interval between button events.
	DefaultDebounce = 2 * time.Second

	// DefaultCountdownTick is the default delayed-trigger tick granularity.
	DefaultCountdownTick = time.Second

	// DefaultContextFreshness is the default context snapshot freshness gate.
	DefaultContextFreshness = 5 * time.Second

	// DefaultRefreshTimeout is the default bound on a synchronous context refresh.
	DefaultRefreshTimeout = 10 * time.Second

	// DefaultCallPollInterval is the default remote call status polling interval.
	DefaultCallPollInterval = 5 * time.Second

	// DefaultMaxPollErrors is the default consecutive poll failure bound.
	DefaultMaxPollErrors = 3

	// DefaultCallContextTimeout is the default bound on context collection
	// before dialing.
	DefaultCallContextTimeout = 3 * time.Second

	// DefaultChannelTimeout is the default per-request bound for remote channels.
	DefaultChannelTimeout = 15 * time.Second

	// PreferenceAuto lets severity decide the calling channel.
	PreferenceAuto = "auto"

	// PreferenceAIOnly always selects the AI voice channel.
	PreferenceAIOnly = "ai-only"

	// PreferenceConventionalOnly never selects the AI voice channel.
	PreferenceConventionalOnly = "conventional-only"
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errUnknownPreference is returned for an unrecognized call preference.
	errUnknownPreference = errors.New("unknown call preference")
	// errThresholdOrder is returned when classification bands are not ascending.
	errThresholdOrder = errors.New("motion thresholds must be ascending")
)

// defaultThresholds are production-realistic classification bands in g units.
//
//nolint:gochecknoglobals // Shared immutable defaults.
var defaultThresholds = MotionThresholds{
	Stationary:     0.05,
	Walking:        0.35,
	Running:        1.2,
	Driving:        2.5,
	Shake:          1.8,
	ShakeMaxFactor: 1.5,
	Fall:           3.0,
}

// Load reads configuration from the provided path and validates essential fields.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes the configuration to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	// Restrict permissions: the file carries channel credentials.
	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate checks the provided settings, applying defaults for unset fields.
//
//nolint:cyclop,funlen // A flat list of defaulting rules reads better than helpers.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if cfg.DatabaseFile == "" {
		cfg.DatabaseFile = DefaultDatabaseFilename
	}

	if cfg.Motion.SampleInterval <= 0 {
		cfg.Motion.SampleInterval = DefaultSampleInterval
	}

	if cfg.Motion.WindowSize <= 0 {
		cfg.Motion.WindowSize = DefaultWindowSize
	}

	if cfg.Motion.Retention <= 0 {
		cfg.Motion.Retention = DefaultRetention
	}

	if cfg.Motion.RapidWindow <= 0 {
		cfg.Motion.RapidWindow = DefaultRapidWindow
	}

	if cfg.Motion.Thresholds == (MotionThresholds{}) {
		cfg.Motion.Thresholds = defaultThresholds
	}

	t := cfg.Motion.Thresholds
	if !(t.Stationary < t.Walking && t.Walking < t.Running && t.Running < t.Driving) {
		return errThresholdOrder
	}

	if cfg.Health.PollInterval <= 0 {
		cfg.Health.PollInterval = DefaultHealthPollInterval
	}

	if cfg.Health.Cooldown <= 0 {
		cfg.Health.Cooldown = DefaultHealthCooldown
	}

	if cfg.Health.Tolerance <= 0 {
		cfg.Health.Tolerance = DefaultHealthTolerance
	}

	if cfg.Dispatcher.Debounce <= 0 {
		cfg.Dispatcher.Debounce = DefaultDebounce
	}

	if cfg.Dispatcher.CountdownTick <= 0 {
		cfg.Dispatcher.CountdownTick = DefaultCountdownTick
	}

	if cfg.Action.ContextFreshness <= 0 {
		cfg.Action.ContextFreshness = DefaultContextFreshness
	}

	if cfg.Action.RefreshTimeout <= 0 {
		cfg.Action.RefreshTimeout = DefaultRefreshTimeout
	}

	if cfg.Call.PollInterval <= 0 {
		cfg.Call.PollInterval = DefaultCallPollInterval
	}

	if cfg.Call.MaxPollErrors <= 0 {
		cfg.Call.MaxPollErrors = DefaultMaxPollErrors
	}

	if cfg.Call.ContextTimeout <= 0 {
		cfg.Call.ContextTimeout = DefaultCallContextTimeout
	}

	if cfg.Call.Preference == "" {
		cfg.Call.Preference = PreferenceAuto
	}

	switch cfg.Call.Preference {
	case PreferenceAuto, PreferenceAIOnly, PreferenceConventionalOnly:
	default:
		return fmt.Errorf("%w: %q", errUnknownPreference, cfg.Call.Preference)
	}

	for _, endpoint := range []*ChannelEndpoint{
		&cfg.Channels.AIVoice,
		&cfg.Channels.Telephony,
		&cfg.Channels.SMS,
		&cfg.Channels.Assist,
	} {
		if endpoint.Timeout <= 0 {
			endpoint.Timeout = DefaultChannelTimeout
		}

		if endpoint.BaseURL == "" {
			continue
		}

		if _, err := url.ParseRequestURI(endpoint.BaseURL); err != nil {
			return fmt.Errorf("invalid channel base URL %q: %w", endpoint.BaseURL, err)
		}
	}

	return nil
}
