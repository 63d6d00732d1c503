// Package app assembles the store, lock, services and router from a Config.
// cmd/server and cmd/lambda share it.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/danielkorkin/tiktok-depression-survey/internal/api"
	"github.com/danielkorkin/tiktok-depression-survey/internal/config"
	"github.com/danielkorkin/tiktok-depression-survey/internal/db"
	"github.com/danielkorkin/tiktok-depression-survey/internal/metrics"
	"github.com/danielkorkin/tiktok-depression-survey/internal/services"
)

// App holds all application dependencies.
type App struct {
	Config  *config.Config
	Store   api.Store
	Locker  *db.RedisLocker
	Metrics *metrics.Metrics
	Router  *api.Router
}

// ConfigureLogging applies the level and format to the standard logger.
func ConfigureLogging(cfg config.LogConfig) error {
	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		return fmt.Errorf("parse log level: %w", err)
	}
	log.SetLevel(level)
	if cfg.Format == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	return nil
}

// OpenStore opens the configured database and applies its migrations.
func OpenStore(ctx context.Context, cfg config.DatabaseConfig) (api.Store, error) {
	switch cfg.Driver {
	case "memory":
		return api.NewMemoryStore(), nil
	case "sqlite":
		s, err := db.OpenSQLite(ctx, cfg.SQLitePath, cfg.MigrationsDir)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "postgres":
		s, err := db.OpenPostgres(ctx, cfg.PostgresDSN, cfg.MigrationsDir)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

func New(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := log.WithField("prefix", "app")

	converter, err := services.NewConverter(services.ScoreMethod(cfg.Survey.Scoring))
	if err != nil {
		return nil, err
	}
	var encryptor *services.ChunkEncryptor
	if cfg.Encryption.Enabled {
		encryptor, err = services.NewChunkEncryptor(cfg.Encryption.PublicKey, cfg.Encryption.EvenChunks)
		if err != nil {
			return nil, fmt.Errorf("load encryption key: %w", err)
		}
	}
	var receipts *services.ReceiptIssuer
	if cfg.Survey.RequireConsent {
		receipts, err = services.NewReceiptIssuer(cfg.Survey.ReceiptSecret, cfg.Survey.ReceiptTTL)
		if err != nil {
			return nil, err
		}
	}

	store, err := OpenStore(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	a := &App{Config: cfg, Store: store, Metrics: metrics.New()}

	var locker services.Locker
	if cfg.Redis.Addr != "" {
		a.Locker, err = db.OpenRedisLocker(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.LockTTL)
		if err != nil {
			store.Close()
			return nil, err
		}
		locker = a.Locker
		logger.WithField("addr", cfg.Redis.Addr).Info("using redis submission lock")
	}

	a.Router = api.NewRouter(api.Options{
		Store:     store,
		Locker:    locker,
		Converter: converter,
		Extractor: services.ExtractorConfig{
			TargetYear:       cfg.Survey.TargetYear,
			RequireLikedList: cfg.Survey.RequireLikedList,
		},
		Encryptor:      encryptor,
		Receipts:       receipts,
		Metrics:        a.Metrics,
		ResearchHash:   cfg.Research.SecretHash,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		RateLimitRPS:   cfg.RateLimit.RPS,
		RateLimitBurst: cfg.RateLimit.Burst,
		HSTS:           cfg.IsProduction(),
		Logger:         log.StandardLogger(),
	})

	logger.WithFields(log.Fields{
		"driver":      cfg.Database.Driver,
		"scoring":     converter.Method(),
		"target_year": cfg.Survey.TargetYear,
		"encryption":  encryptor != nil,
		"consent":     receipts != nil,
	}).Info("application initialized")
	return a, nil
}

func (a *App) Handler() http.Handler { return a.Router.Handler() }

func (a *App) Close() error {
	var errs []error
	if a.Locker != nil {
		errs = append(errs, a.Locker.Close())
	}
	errs = append(errs, a.Store.Close())
	return errors.Join(errs...)
}
