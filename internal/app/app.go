// Package app assembles the page lifecycle, its storage and collaborators
// from a single configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"voicecard/internal/config"
	"voicecard/internal/events"
	"voicecard/internal/pages"
	"voicecard/internal/services"
	"voicecard/internal/storage"
)

type Options struct {
	// CLI selects a blocking event bus and skips the sibling fan-out, so a
	// short-lived process finishes its cleanup before it exits.
	CLI bool
}

type App struct {
	Config config.Config
	Logger *slog.Logger

	Store  *storage.Store
	Files  *storage.FileManager
	Assets storage.AssetStore
	// Local is nil unless assets are served from disk.
	Local *storage.LocalAssets
	Bus   *events.Bus

	Manager *pages.Manager
	Demo    *pages.Demo
	Bulk    *pages.Bulk
	Gate    *pages.Gate

	Media   *services.Media
	Unlock  *services.UnlockService
	Limiter services.AttemptLimiter
	Sheet   *services.PrintSheet

	redis *redis.Client
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger, opts Options) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Logger: logger}

	backend, err := openBackend(cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Store = storage.NewStore(backend)

	a.Files, err = storage.NewFileManager(cfg.DataDir, cfg.MaxUploadBytes)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init file manager: %w", err)
	}

	if err := a.openAssets(ctx); err != nil {
		a.Close()
		return nil, err
	}

	if opts.CLI {
		a.Bus = events.NewBlockingBus(logger)
	} else {
		a.Bus = events.NewBus(logger, 64)
	}

	a.Manager = pages.NewManager(a.Store, pages.Settings{
		BaseURL:          cfg.BaseURL,
		MaxPlays:         cfg.MaxPlays,
		ExpirationDate:   cfg.ExpirationDate,
		MaxAudioDuration: cfg.MaxAudioDuration,
		ReservedCodes:    []string{cfg.DemoCode},
	},
		pages.WithPublisher(a.Bus),
		pages.WithAssets(a.Assets),
		pages.WithLogger(logger.With("component", "pages")),
	)
	a.Demo = pages.NewDemo(a.Manager, pages.DemoSettings{
		Code:     cfg.DemoCode,
		AudioURL: cfg.DemoAudioURL,
	})
	a.Bulk = pages.NewBulk(a.Manager, a.Assets, pages.BulkSettings{
		Quantities: cfg.BulkQuantities,
		Siblings:   cfg.AutoSiblings,
	})
	a.Gate = pages.NewGate(a.Manager, a.Demo)

	if err := a.Bus.Subscribe(events.TopicPageDestroyed, a.Manager.HandlePageDestroyed); err != nil {
		a.Close()
		return nil, err
	}
	if !opts.CLI && cfg.AutoSiblings > 0 {
		if err := a.Bus.Subscribe(events.TopicPageCreated, a.Bulk.HandlePageCreated); err != nil {
			a.Close()
			return nil, err
		}
	}

	a.Media = services.NewMedia(a.Files, a.Assets, services.MediaOptions{
		FFmpegPath:  cfg.FFmpegPath,
		FFprobePath: cfg.FFprobePath,
		Logger:      logger.With("component", "media"),
	})
	a.Unlock = services.NewUnlockService(cfg)
	a.Sheet = services.NewPrintSheet("Voicecard codes")

	a.Limiter = services.NoopLimiter{}
	if cfg.RedisURL != "" && !opts.CLI {
		rdb, err := services.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			logger.Warn("pin attempt limiter disabled", "error", err)
		} else {
			a.redis = rdb
			a.Limiter = services.NewRedisLimiter(rdb, cfg.PinMaxAttempts, cfg.PinWindow, logger)
		}
	}

	return a, nil
}

func openBackend(cfg config.Config, logger *slog.Logger) (storage.Backend, error) {
	switch cfg.StoreBackend {
	case config.StoreBackendSQLite:
		db, err := storage.OpenSQLite(cfg.DataDir, logger.With("component", "store"))
		if err != nil {
			return nil, fmt.Errorf("init store: %w", err)
		}
		logger.Info("page store ready", "backend", cfg.StoreBackend, "path", db.Path())
		return db, nil
	default:
		file, err := storage.NewJSONFile(cfg.DataDir, logger.With("component", "store"))
		if err != nil {
			return nil, fmt.Errorf("init store: %w", err)
		}
		logger.Info("page store ready", "backend", cfg.StoreBackend, "path", file.Path())
		return file, nil
	}
}

func (a *App) openAssets(ctx context.Context) error {
	cfg := a.Config
	if cfg.AssetBackend == config.AssetBackendS3 {
		s3Assets, err := storage.NewS3Assets(ctx, storage.S3Options{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			PublicURL: cfg.S3PublicURL,
		})
		if err != nil {
			return fmt.Errorf("init s3 assets: %w", err)
		}
		a.Assets = s3Assets
		return nil
	}

	local, err := storage.NewLocalAssets(cfg.DataDir, cfg.BaseURL)
	if err != nil {
		return fmt.Errorf("init local assets: %w", err)
	}
	a.Local = local
	a.Assets = local
	return nil
}

// Close stops the event consumers and releases storage handles.
func (a *App) Close() error {
	var errs []error
	if a.Bus != nil {
		errs = append(errs, a.Bus.Close())
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.Store != nil {
		errs = append(errs, a.Store.Close())
	}
	return errors.Join(errs...)
}
