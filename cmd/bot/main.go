package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"xcbot/internal/bot"
	"xcbot/internal/config"
	"xcbot/internal/dispatch"
	"xcbot/internal/messenger"
	"xcbot/internal/scheduler"
	"xcbot/internal/storage"
	"xcbot/internal/xcontest"
)

// version is overridden at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(ctx)
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log := newLogger(cfg.LogLevel)

	if err := run(ctx, cfg, log); err != nil {
		log.Error("run", "error", err)
		os.Exit(1)
	}
	log.Info("bot stopped")
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return err
		}
	}

	store, err := storage.NewSQLite(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	gateway := messenger.NewThreemaGateway(http.DefaultClient, cfg.GatewayID, cfg.GatewaySecret, cfg.SendTimeout, log)
	feed := xcontest.New(http.DefaultClient, cfg.FeedURL, cfg.FetchTimeout, log)

	dispatcher := dispatch.New(store, gateway, log)
	dispatcher.SetAttempts(cfg.DeliveryAttempts)

	sched := scheduler.New(store, feed, dispatcher, log)
	sched.SetInterval(cfg.PollInterval)

	handler := bot.NewHandler(store, version, cfg.AdminIdentity, log)
	srv := bot.NewServer(cfg.ListenAddr, handler, gateway, cfg.GatewayID, cfg.GatewaySecret, log)

	log.Info("starting bot", "version", version, "listen", cfg.ListenAddr, "poll_interval", cfg.PollInterval)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		downCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(downCtx); err != nil {
			log.Error("shutdown server", "error", err)
		}
		return nil
	})
	g.Go(func() error {
		sched.Run(gCtx)
		return nil
	})

	err = g.Wait()

	// Dispatch goroutines abort on the cancelled context; wait for them to
	// wind down so the store is not closed under them.
	dispatcher.Wait()

	return err
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
