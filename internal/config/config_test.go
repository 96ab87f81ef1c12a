package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestValidateDefaults verifies that an empty configuration receives
// production defaults for every tunable.
func TestValidateDefaults(t *testing.T) {
	t.Parallel()

	cfg := &Config{}
	require.NoError(t, Validate(cfg))

	require.Equal(t, DefaultDatabaseFilename, cfg.DatabaseFile)
	require.Equal(t, DefaultSampleInterval, cfg.Motion.SampleInterval)
	require.Equal(t, DefaultWindowSize, cfg.Motion.WindowSize)
	require.Equal(t, DefaultRetention, cfg.Motion.Retention)
	require.Equal(t, DefaultRapidWindow, cfg.Motion.RapidWindow)
	require.Equal(t, DefaultHealthCooldown, cfg.Health.Cooldown)
	require.Equal(t, DefaultDebounce, cfg.Dispatcher.Debounce)
	require.Equal(t, DefaultCallPollInterval, cfg.Call.PollInterval)
	require.Equal(t, DefaultMaxPollErrors, cfg.Call.MaxPollErrors)
	require.Equal(t, DefaultCallContextTimeout, cfg.Call.ContextTimeout)
	require.Equal(t, PreferenceAuto, cfg.Call.Preference)
	require.Equal(t, DefaultChannelTimeout, cfg.Channels.SMS.Timeout)
	require.InEpsilon(t, 3.0, cfg.Motion.Thresholds.Fall, 1e-9)
}

// TestValidateRejectsBadValues verifies preference and threshold checks.
func TestValidateRejectsBadValues(t *testing.T) {
	t.Parallel()

	require.Error(t, Validate(nil))

	cfg := &Config{}
	cfg.Call.Preference = "loudest"
	require.ErrorIs(t, Validate(cfg), errUnknownPreference)

	cfg = &Config{}
	cfg.Motion.Thresholds = MotionThresholds{
		Stationary: 1.0, Walking: 0.5, Running: 2.0, Driving: 3.0,
		Shake: 1.8, ShakeMaxFactor: 1.5, Fall: 3.0,
	}
	require.ErrorIs(t, Validate(cfg), errThresholdOrder)

	cfg = &Config{}
	cfg.Channels.AIVoice.BaseURL = "::not-a-url"
	require.Error(t, Validate(cfg))
}

// TestSaveLoadRoundTrip verifies YAML persistence of the settings file.
func TestSaveLoadRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "settings.yaml")

	original := &Config{
		LogLevel:     "debug",
		DatabaseFile: "records.db",
	}
	original.Call.Preference = PreferenceAIOnly
	original.Channels.AIVoice = ChannelEndpoint{
		BaseURL: "https://voice.example.com",
		APIKey:  "secret",
		Timeout: 20 * time.Second,
	}

	require.NoError(t, Save(path, original))

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(DefaultFilePermissions), info.Mode().Perm())

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, PreferenceAIOnly, loaded.Call.Preference)
	require.Equal(t, "https://voice.example.com", loaded.Channels.AIVoice.BaseURL)
	require.Equal(t, 20*time.Second, loaded.Channels.AIVoice.Timeout)

	// Defaults are applied on load as well.
	require.Equal(t, DefaultWindowSize, loaded.Motion.WindowSize)
}

// TestLoadMissingFile verifies the error path for an absent settings file.
func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
