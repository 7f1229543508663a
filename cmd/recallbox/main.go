package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/recallbox/recallbox/internal/config"
	"github.com/recallbox/recallbox/internal/domain"
	"github.com/recallbox/recallbox/internal/engine"
	"github.com/recallbox/recallbox/internal/importer"
	"github.com/recallbox/recallbox/internal/storage"
	"github.com/recallbox/recallbox/internal/storage/mongo"
	"github.com/recallbox/recallbox/internal/storage/sqlite"
	"github.com/recallbox/recallbox/internal/web"
)

func main() {
	flags := config.Flags()
	flags.Parse(os.Args[1:])

	cfg, err := config.Load(flags)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel(cfg.LogLevel),
	}))
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg)
	if err != nil {
		log.Error("failed to open storage", "driver", cfg.Driver, "error", err)
		os.Exit(1)
	}
	defer store.Close()
	log.Info("storage ready", "driver", cfg.Driver)

	eng := engine.New(store, log)

	if cfg.ImportDir != "" || cfg.ImportRepo != "" {
		if err := runImport(ctx, cfg, eng, log); err != nil {
			log.Error("import failed", "error", err)
			os.Exit(1)
		}
	}

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: web.NewServer(eng, log, cfg.DefaultUser),
	}

	go func() {
		log.Info("listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown failed", "error", err)
	}
}

func openStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	if cfg.Driver == "mongo" {
		return mongo.Open(ctx, cfg.MongoURI)
	}
	return sqlite.Open(cfg.SQLitePath)
}

func runImport(ctx context.Context, cfg *config.Config, eng *engine.Engine, log *slog.Logger) error {
	im := importer.New(eng, log)
	scope := domain.Scope{UserID: cfg.DefaultUser}

	if cfg.ImportDir != "" {
		n, err := im.ImportDir(ctx, scope, cfg.ImportDir, cfg.ImportDir)
		if err != nil {
			return err
		}
		log.Info("directory import complete", "dir", cfg.ImportDir, "cards", n)
	}

	if cfg.ImportRepo != "" {
		n, err := im.ImportRepo(ctx, scope, cfg.ImportRepo, cfg.ReposDir)
		if err != nil {
			return err
		}
		log.Info("repository import complete", "repo", cfg.ImportRepo, "cards", n)
	}

	return nil
}

func logLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
