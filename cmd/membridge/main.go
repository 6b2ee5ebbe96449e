// Command membridge serves a fixture memory space over the wsbridge protocol.
// It stands in for a real process attachment during development.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/udisondev/memsync/internal/config"
	"github.com/udisondev/memsync/internal/mem/memspace"
	"github.com/udisondev/memsync/internal/transport/wsbridge"
)

const shutdownTimeout = 5 * time.Second

type bridgeConfig struct {
	Addr     string `env:"MEMBRIDGE_ADDR"      envDefault:"127.0.0.1:7450"`
	Path     string `env:"MEMBRIDGE_PATH"      envDefault:"/mem"`
	Fixture  string `env:"MEMBRIDGE_FIXTURE"   envDefault:"config/fixture.yaml"`
	LogLevel string `env:"MEMBRIDGE_LOG_LEVEL" envDefault:"info"`
}

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
	var cfg bridgeConfig
	if err := config.ParseEnv(&cfg); err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	level := slog.LevelInfo
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		return fmt.Errorf("log level %q: %w", cfg.LogLevel, err)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	})))

	space, err := memspace.LoadFixture(cfg.Fixture)
	if err != nil {
		return fmt.Errorf("loading fixture: %w", err)
	}
	slog.Info("fixture loaded", "path", cfg.Fixture)

	handler := wsbridge.NewHandler(space)
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, handler)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("membridge listening", "addr", cfg.Addr, "path", cfg.Path)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve http: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		slog.Info("membridge stopped",
			"sessions", handler.Sessions(),
			"requests", handler.Requests(),
			"reads", space.Reads(),
			"writes", space.Writes())
		return nil
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}
