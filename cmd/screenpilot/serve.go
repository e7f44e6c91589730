package main

import (
	"context"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/odvcencio/screenpilot/pkg/automation"
	"github.com/odvcencio/screenpilot/pkg/bus"
	"github.com/odvcencio/screenpilot/pkg/config"
	"github.com/odvcencio/screenpilot/pkg/logging"
	"github.com/odvcencio/screenpilot/pkg/pilot"
	"github.com/odvcencio/screenpilot/pkg/server"
)

const pruneInterval = time.Hour

type serveFlags struct {
	tree    string
	width   int
	height  int
	addr    string
	origins []string
	retain  time.Duration
}

func newServeCmd(flags *rootFlags) *cobra.Command {
	sf := &serveFlags{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the directive pipeline over HTTP and the message bus",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, flags, sf)
		},
	}
	cmd.Flags().StringVar(&sf.tree, "tree", "", "uiautomator XML dump to simulate (required)")
	cmd.Flags().IntVar(&sf.width, "width", 0, "display width in pixels; defaults to the dump root bounds")
	cmd.Flags().IntVar(&sf.height, "height", 0, "display height in pixels; defaults to the dump root bounds")
	cmd.Flags().StringVar(&sf.addr, "addr", "", "listen address; overrides server.addr")
	cmd.Flags().StringSliceVar(&sf.origins, "allow-origin", nil, "browser origin allowed to call the API (repeatable)")
	cmd.Flags().DurationVar(&sf.retain, "retain", 0, "prune journal batches older than this, hourly; 0 keeps everything")
	_ = cmd.MarkFlagRequired("tree")
	return cmd
}

func runServe(cmd *cobra.Command, flags *rootFlags, sf *serveFlags) error {
	ctx := cmd.Context()
	a, err := newApp(flags, appOptions{journal: true, stderr: cmd.ErrOrStderr()})
	if err != nil {
		return err
	}
	defer a.Close()

	device, err := a.loadDevice(sf.tree, sf.width, sf.height)
	if err != nil {
		return err
	}
	defer device.Wait()

	busCfg := bus.DefaultConfig()
	busCfg.URL = a.cfg.Bus.URL
	busCfg.Name = "screenpilot-" + a.sessionID
	busCfg.OnStateChange = func(state bus.ConnState, err error) {
		fields := map[string]any{"state": string(state)}
		if err != nil {
			fields["error"] = err.Error()
		}
		a.logger.Warn(logging.CategoryServer, "bus_state", "message bus connection changed", fields)
	}
	msgBus, err := bus.Open(busCfg)
	if err != nil {
		return err
	}
	defer msgBus.Close()
	subjects := bus.Subjects{Prefix: a.cfg.Bus.SubjectPrefix}

	engine := a.newEngine(device)
	p := pilot.New(pilot.Options{
		Engine:    engine,
		Journal:   a.journal,
		Bus:       msgBus,
		Subjects:  subjects,
		Hub:       a.hub,
		Logger:    a.logger,
		SessionID: a.sessionID,
	})
	p.Start(ctx)
	defer p.Close()

	bridge := pilot.NewBusBridge(p, msgBus, subjects, a.logger)
	if err := bridge.Start(ctx); err != nil {
		return err
	}
	defer bridge.Stop()

	if path := watchedConfigPath(flags); path != "" {
		err := config.Watch(ctx, path, config.WatchOptions{
			OnError: func(err error) {
				a.logger.Warn(logging.CategoryConfig, "config_reload_failed", "config reload failed", map[string]any{
					"error": err.Error(),
				})
			},
		}, func(cfg *config.Config) {
			applyReload(a, engine, cfg)
		})
		if err != nil {
			a.logger.Warn(logging.CategoryConfig, "config_watch_failed", "config changes will not be applied", map[string]any{
				"error": err.Error(),
			})
		}
	}

	addr := a.cfg.Server.Addr
	if sf.addr != "" {
		addr = sf.addr
	}
	srv := server.New(server.Config{Addr: addr, AllowedOrigins: sf.origins}, p, a.journal, a.hub, a.logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Start(gctx) })
	if a.journal != nil && sf.retain > 0 {
		g.Go(func() error { return pruneLoop(gctx, a, sf.retain) })
	}
	return g.Wait()
}

// pruneLoop drops journal batches older than retain, at startup and then
// periodically until ctx ends.
func pruneLoop(ctx context.Context, a *app, retain time.Duration) error {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()
	for {
		pruned, err := a.journal.Prune(ctx, time.Now().Add(-retain))
		if err != nil {
			a.logger.Warn(logging.CategoryJournal, "journal_prune_failed", "pruning old batches failed", map[string]any{
				"error": err.Error(),
			})
		} else if pruned > 0 {
			a.logger.Info(logging.CategoryJournal, "journal_pruned", "pruned old batches", map[string]any{
				"batches": pruned,
				"retain":  retain.String(),
			})
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// watchedConfigPath is the explicit --config file, or the user config file
// when it exists.
func watchedConfigPath(flags *rootFlags) string {
	if flags.configPath != "" {
		return flags.configPath
	}
	if path := config.UserConfigPath(); path != "" {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// applyReload applies the settings that can change without a restart:
// engine timings and the log level.
func applyReload(a *app, engine *automation.Engine, cfg *config.Config) {
	engine.SetTiming(engineTiming(cfg))
	if level, err := logging.ParseLevel(cfg.Logging.Level); err == nil {
		a.logger.SetMinLevel(level)
	}
	a.logger.Info(logging.CategoryConfig, "config_reloaded", "applied config changes", map[string]any{
		"command_delay_ms": cfg.Engine.CommandDelay.Milliseconds(),
		"log_level":        cfg.Logging.Level,
	})
}
