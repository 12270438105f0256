package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"markin/internal/backend"
	"markin/internal/cli"
	apphttp "markin/internal/http"
	applog "markin/internal/log"
	"markin/internal/services"
	"markin/internal/stats"
)

func main() {
	cli.LoadEnvFile()

	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), applog.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger)

	ctx, stop := cli.SignalContext(context.Background())
	defer stop()

	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", applog.FieldError, err.Error())
		os.Exit(1)
	}
	res, err := backend.NewFactory(logger).CreateBackend(ctx, bcfg)
	if err != nil {
		logger.Error("Failed to initialize fetch log", applog.FieldError, err.Error(), "backend", bcfg.Type)
		os.Exit(1)
	}
	defer closeFetchLog(logger, res.Cleanup)

	client := stats.NewClient(cfg.StatsAPIURL, stats.WithTimeout(cfg.StatsAPITimeout))
	fetcher := services.NewRecordingFetcher(client, res.Service, logger)

	srv := apphttp.NewServer(apphttp.Options{
		Addr:               ":" + cfg.Port,
		Fetcher:            fetcher,
		Logger:             logger,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
	})
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = cfg.StatsAPITimeout + 10*time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting markin server",
			"port", cfg.Port,
			"backend", bcfg.Type,
			"stats_url", cfg.StatsAPIURL,
			"publish_enabled", res.PublishEnabled)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Error("Server error", applog.FieldError, err.Error(), "port", cfg.Port)
			closeFetchLog(logger, res.Cleanup)
			os.Exit(1)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", applog.FieldError, err.Error())
	}
	logger.Info("Server stopped gracefully")
}

// closeFetchLog runs cleanup and logs its error; os.Exit skips defers, so
// every exit path calls it explicitly.
func closeFetchLog(logger *applog.Logger, cleanup backend.CleanupFunc) {
	if cleanup == nil {
		return
	}
	if err := cleanup(); err != nil {
		logger.Warn("Fetch log cleanup failed", applog.FieldError, err.Error())
	}
}
