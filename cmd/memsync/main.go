package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/udisondev/memsync/internal/camera"
	"github.com/udisondev/memsync/internal/chain"
	"github.com/udisondev/memsync/internal/config"
	"github.com/udisondev/memsync/internal/db"
	"github.com/udisondev/memsync/internal/driver"
	"github.com/udisondev/memsync/internal/feature"
	"github.com/udisondev/memsync/internal/mem"
	"github.com/udisondev/memsync/internal/memwrite"
	"github.com/udisondev/memsync/internal/session"
	"github.com/udisondev/memsync/internal/transport/wsbridge"
)

const ConfigPath = "config/memsync.yaml"

// statsInterval is how often component counters are logged.
const statsInterval = 30 * time.Second

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("shutting down", "signal", sig)
		cancel()
	}()

	if err := run(ctx); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfgPath := ConfigPath
	if p := os.Getenv("MEMSYNC_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	live := config.NewLive(cfgPath, cfg)

	logLevel := parseLogLevel(cfg.LogLevel)
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})))
	feature.EnableDebugLogging(logLevel == slog.LevelDebug)

	slog.Info("memsync starting", "config", cfgPath, "bridge", cfg.Bridge.URL)

	// Attach to the memory bridge
	dialCtx, dialCancel := context.WithTimeout(ctx, cfg.Bridge.DialTimeout)
	client, err := wsbridge.Dial(dialCtx, cfg.Bridge.URL, wsbridge.WithRequestTimeout(cfg.Bridge.RequestTimeout))
	dialCancel()
	if err != nil {
		return fmt.Errorf("connecting to bridge: %w", err)
	}
	defer func() {
		if err := client.Close(); err != nil {
			slog.Warn("closing bridge", "err", err)
		}
	}()
	slog.Info("bridge connected", "url", cfg.Bridge.URL)

	acc := mem.NewAccessor(client)

	// Optional persistence: session history and write journal
	var (
		journal  *db.WriteJournal
		sessions *db.SessionRepository
	)
	if cfg.Database.Enabled() {
		database, err := db.New(ctx, cfg.Database.DSN)
		if err != nil {
			return fmt.Errorf("connecting to database: %w", err)
		}
		defer database.Close()
		slog.Info("database connected")

		if err := db.RunMigrations(ctx, cfg.Database.DSN); err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}
		slog.Info("database migrations applied")

		sessions = db.NewSessionRepository(database.Pool())
		journal = db.NewWriteJournal(
			db.NewJournalRepository(database.Pool()),
			cfg.Database.JournalBuffer,
			cfg.Database.JournalBatch,
			cfg.Database.FlushInterval,
		)
	} else {
		slog.Info("database disabled, write journal off")
	}

	// Features
	scheduler := feature.NewScheduler()
	sup := cfg.Features.Suppression
	if sup.Root.Base != 0 {
		var opts []feature.EffectorOption
		if journal != nil {
			opts = append(opts, feature.WithJournal(journal))
		}
		effect := feature.NewSuppression(sup.FeatureLayout(), func() feature.SuppressionSettings {
			return live.Get().Features.Suppression.Settings()
		})
		eff := feature.NewEffector(effect, memwrite.New(acc), opts...)
		root := feature.RootFromChain(acc, mem.Address(sup.Root.Base), chain.Path(sup.Root.Path))
		if err := scheduler.Register(eff, root); err != nil {
			return fmt.Errorf("registering suppression: %w", err)
		}
		slog.Info("feature registered", "feature", eff.Name(), "enabled", sup.Enabled)
	} else {
		slog.Warn("suppression root base not configured, feature skipped")
	}

	// Camera and projection
	projector := camera.NewProjector(cfg.Frame.Viewport())
	var hooks []driver.Hook
	var cams *camera.Manager
	if cfg.Camera.Configured() {
		cams = camera.NewManager(acc, projector, cfg.Camera.Layout())
		hooks = append(hooks, cams)
	} else {
		slog.Warn("camera base not configured, projection idle")
	}
	frames := driver.NewFrameLoop(client, cfg.Frame.Interval, hooks...)

	// Session boundaries
	var watcher *session.Watcher
	if cfg.Session.Configured() {
		watcher = session.NewWatcher(acc, cfg.Session.Layout(), cfg.Session.Interval)
		watcher.Subscribe(func(session.Boundary) { scheduler.SessionReset() })
		if cams != nil {
			watcher.Subscribe(func(session.Boundary) { cams.Reset() })
		}
		if journal != nil {
			watcher.Subscribe(func(b session.Boundary) { journal.SetSession(b.ID) })
		}
		if sessions != nil {
			watcher.Subscribe(func(b session.Boundary) {
				tctx, tcancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Bridge.RequestTimeout)
				defer tcancel()
				if err := sessions.Touch(tctx, b.ID, b.At); err != nil {
					slog.Error("recording session", "session", b.ID, "err", err)
				}
			})
		}
	} else {
		slog.Warn("session root base not configured, boundaries not tracked")
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("starting feature scheduler", "features", scheduler.Count())
		if err := scheduler.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("feature scheduler: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		slog.Info("starting frame loop", "interval", cfg.Frame.Interval)
		if err := frames.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("frame loop: %w", err)
		}
		return nil
	})

	if watcher != nil {
		g.Go(func() error {
			slog.Info("starting session watcher", "interval", cfg.Session.Interval)
			if err := watcher.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("session watcher: %w", err)
			}
			return nil
		})
	}

	if journal != nil {
		g.Go(func() error {
			slog.Info("starting write journal")
			if err := journal.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("write journal: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		return watchReload(gctx, live, projector)
	})

	g.Go(func() error {
		reportStats(gctx, client, frames, cams, journal, scheduler)
		return nil
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	slog.Info("memsync stopped")
	return nil
}

// watchReload re-reads the config file on SIGHUP. Feature settings and the
// viewport follow the new file; layouts and addresses need a restart.
func watchReload(ctx context.Context, live *config.Live, projector *camera.Projector) error {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-hup:
			reloadConfig(live, projector)
		}
	}
}

// reloadConfig applies a SIGHUP reload and logs its outcome once.
func reloadConfig(live *config.Live, projector *camera.Projector) {
	if err := live.Reload(); err != nil {
		slog.Error("reloading config, keeping previous", "path", live.Path(), "err", err)
		return
	}
	cfg := live.Get()
	projector.SetViewport(cfg.Frame.Viewport())
	slog.Info("config reloaded",
		"path", live.Path(),
		"suppression", cfg.Features.Suppression.Enabled,
		"recoil_pct", cfg.Features.Suppression.RecoilPct,
		"sway_pct", cfg.Features.Suppression.SwayPct)
}

func reportStats(
	ctx context.Context,
	client *wsbridge.Client,
	frames *driver.FrameLoop,
	cams *camera.Manager,
	journal *db.WriteJournal,
	scheduler *feature.Scheduler,
) {
	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		n, failures := frames.Stats()
		attrs := []any{
			"bridge_healthy", client.Healthy(),
			"frames", n,
			"frame_failures", failures,
			"suppression_ticks", scheduler.Ticks("suppression"),
		}
		if cams != nil {
			updates, dropped := cams.Stats()
			attrs = append(attrs, "camera_updates", updates, "camera_dropped", dropped)
		}
		if journal != nil {
			written, dropped, failed := journal.Stats()
			attrs = append(attrs, "journal_written", written, "journal_dropped", dropped, "journal_failed", failed)
		}
		slog.Info("stats", attrs...)
	}
}

func parseLogLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
