package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/danielkorkin/tiktok-depression-survey/internal/app"
	"github.com/danielkorkin/tiktok-depression-survey/internal/config"
	"github.com/danielkorkin/tiktok-depression-survey/internal/middleware"
)

const shutdownTimeout = 15 * time.Second

func main() {
	configFile := flag.String("config", os.Getenv("SURVEY_CONFIG"), "path to a config file (yaml, json or toml)")
	hashSecret := flag.String("hash-secret", "", "print the bcrypt hash for a research secret and exit")
	migrateOnly := flag.Bool("migrate", false, "apply database migrations and exit")
	flag.Parse()

	if *hashSecret != "" {
		hash, err := middleware.HashResearchSecret(*hashSecret)
		if err != nil {
			fmt.Fprintf(os.Stderr, "hash secret: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(hash)
		return
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := app.ConfigureLogging(cfg.Log); err != nil {
		fmt.Fprintf(os.Stderr, "configure logging: %v\n", err)
		os.Exit(1)
	}

	if *migrateOnly {
		if err := migrate(context.Background(), cfg.Database); err != nil {
			log.WithError(err).Fatal("migration failed")
		}
		return
	}

	if err := run(cfg); err != nil {
		log.WithError(err).Fatal("server error")
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.WithError(err).Warn("close resources")
		}
	}()

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           a.Handler(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithFields(log.Fields{"addr": cfg.Server.Addr, "env": cfg.Server.Env}).Info("survey server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
