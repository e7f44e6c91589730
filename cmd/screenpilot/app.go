package main

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/odvcencio/screenpilot/pkg/automation"
	"github.com/odvcencio/screenpilot/pkg/config"
	"github.com/odvcencio/screenpilot/pkg/gesture"
	"github.com/odvcencio/screenpilot/pkg/journal"
	"github.com/odvcencio/screenpilot/pkg/logging"
	"github.com/odvcencio/screenpilot/pkg/model"
	"github.com/odvcencio/screenpilot/pkg/observability"
	"github.com/odvcencio/screenpilot/pkg/simulator"
	"github.com/odvcencio/screenpilot/pkg/telemetry"
	"github.com/odvcencio/screenpilot/pkg/viewtree/uidump"
)

const tracerShutdownTimeout = 5 * time.Second

// app holds the collaborators shared by the subcommands.
type app struct {
	cfg       *config.Config
	sessionID string
	logger    *logging.Logger
	hub       *telemetry.Hub
	models    *model.Selector
	journal   *journal.Journal
	tracer    *observability.TracerProvider
	closers   []func() error
}

type appOptions struct {
	// journal opens the run journal when the config enables it.
	journal bool
	stderr  io.Writer
}

func loadConfig(flags *rootFlags) (*config.Config, error) {
	var extra []string
	if flags.configPath != "" {
		extra = append(extra, flags.configPath)
	}
	return config.Load(extra...)
}

func newApp(flags *rootFlags, opts appOptions) (*app, error) {
	cfg, err := loadConfig(flags)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, sessionID: uuid.NewString(), hub: telemetry.NewHub()}
	a.closers = append(a.closers, func() error { a.hub.Close(); return nil })

	logOpts, err := loggingOptions(cfg, flags.verbose)
	if err != nil {
		a.Close()
		return nil, withExitCode(err, exitConfig)
	}
	a.logger, err = logging.NewLoggerWithOptions(cfg.Logging.Dir, a.sessionID, logOpts)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.closers = append(a.closers, a.logger.Close)

	if cfg.Tracing.Enabled {
		if err := a.startTracing(opts.stderr); err != nil {
			a.Close()
			return nil, err
		}
	}

	if opts.journal && cfg.Journal.Enabled {
		a.journal, err = journal.Open(cfg.Journal.Path)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, a.journal.Close)
	}

	a.models = model.NewSelector(cfg.Models.Initial, a.hub, a.logger)
	a.logger.Info(logging.CategoryConfig, "session_started", "screenpilot session started", map[string]any{
		"version": version,
		"journal": a.journal != nil,
		"tracing": cfg.Tracing.Enabled,
	})
	return a, nil
}

func (a *app) startTracing(stderr io.Writer) error {
	out := stderr
	if path := a.cfg.Tracing.Output; path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, f.Close)
		out = f
	}
	tp, err := observability.NewTracerProvider("screenpilot", version, out)
	if err != nil {
		return err
	}
	a.tracer = tp
	a.closers = append(a.closers, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), tracerShutdownTimeout)
		defer cancel()
		return tp.Shutdown(ctx)
	})
	return nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *app) newEngine(surface automation.Surface) *automation.Engine {
	return automation.NewEngine(automation.Options{
		Surface: surface,
		Models:  a.models,
		Logger:  a.logger,
		Hub:     a.hub,
		Timing:  engineTiming(a.cfg),
		ModelIDs: automation.ModelIDs{
			High: a.cfg.Models.HighReasoning,
			Low:  a.cfg.Models.LowReasoning,
		},
		RefreshInterval: a.cfg.Resolver.RefreshInterval,
	})
}

// loadDevice builds a simulated device from a uiautomator dump. The
// display size comes from the dump unless width and height are given.
func (a *app) loadDevice(treePath string, width, height int) (*simulator.Device, error) {
	root, err := uidump.ParseFile(treePath)
	if err != nil {
		return nil, err
	}
	var size gesture.Size
	if width > 0 && height > 0 {
		size = gesture.Size{Width: width, Height: height}
	} else if b := root.Bounds(); b.Empty() {
		size = gesture.Size{Width: a.cfg.Display.Width, Height: a.cfg.Display.Height}
	}
	return simulator.New(simulator.Options{Root: root, Size: size, Logger: a.logger}), nil
}

func engineTiming(cfg *config.Config) automation.Timing {
	return automation.Timing{
		CommandDelay:      cfg.Engine.CommandDelay,
		SettleDelay:       cfg.Engine.SettleDelay,
		GestureTimeout:    cfg.Engine.GestureTimeout,
		TapDuration:       cfg.Engine.TapDuration,
		LongPressDuration: cfg.Engine.LongPressDuration,
		ScrollDuration:    cfg.Engine.ScrollDuration,
		ScrollStart:       cfg.Engine.ScrollStart,
		ScrollEnd:         cfg.Engine.ScrollEnd,
	}
}

func loggingOptions(cfg *config.Config, verbose bool) (logging.Options, error) {
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return logging.Options{}, err
	}
	if verbose {
		level = logging.LevelDebug
	}
	return logging.Options{
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		MinLevel:   level,
	}, nil
}
