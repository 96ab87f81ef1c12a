package guard

import (
	"context"
	"fmt"
	"time"

	"github.com/oshokin/lifeline-core/internal/config"
	"github.com/oshokin/lifeline-core/internal/logger"
)

// Options controls the guard daemon process and configuration.
type Options struct {
	// ConfigPath specifies the path to the settings YAML file.
	ConfigPath string
	// DatabaseFile provides an optional records database override.
	DatabaseFile string
}

const (
	// statusLogInterval is how often the daemon logs its aggregate state.
	statusLogInterval = time.Minute
	// shutdownTimeout bounds graceful teardown on exit.
	shutdownTimeout = 10 * time.Second
)

// Run starts the guard daemon and blocks until the context is canceled.
// Loads configuration first, then wires the trigger sources, dispatcher,
// action pipeline and call orchestrator.
func Run(ctx context.Context, opts *Options, platform Platform) error {
	ctx = logger.WithName(ctx, "lifeline-guard")

	settings, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	if level, ok := logger.ParseLogLevel(settings.LogLevel); ok {
		logger.SetLevel(level)
	}

	if opts.DatabaseFile != "" {
		settings.DatabaseFile = opts.DatabaseFile
	}

	svc, err := newService(ctx, settings, platform)
	if err != nil {
		return fmt.Errorf("initialise service: %w", err)
	}

	svc.Start(ctx)

	logger.InfoKV(ctx, "Guard daemon running", "database_file", settings.DatabaseFile)

	ticker := time.NewTicker(statusLogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info(ctx, "Shutting down guard daemon")

			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			err := svc.Shutdown(shutdownCtx)

			cancel()

			if err != nil {
				return fmt.Errorf("shutdown: %w", err)
			}

			logger.Info(ctx, "Guard daemon stopped")

			return nil
		case <-ticker.C:
			status := svc.Status()
			logger.DebugKV(ctx, "Guard status",
				"sources_registered", status.Dispatcher.Registered,
				"call_state", string(status.CallState),
				"action_in_progress", status.Action.InProgress,
				"activity", status.Activity,
				"countdown_remaining", status.Dispatcher.CountdownRemaining)
		}
	}
}
