package main

import (
	"context"
	"errors"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"markin/internal/amqp"
	"markin/internal/backend"
	"markin/internal/cli"
	applog "markin/internal/log"
	"markin/internal/services"
	"markin/internal/worker"
)

func main() {
	cli.LoadEnvFile()

	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), applog.ComponentWorker)
	logger.Info("Starting markin-worker")

	cfg := cli.LoadAndValidateConfig(logger)
	if err := cfg.ValidateExport(); err != nil {
		logger.Error("Configuration validation failed", applog.FieldError, err.Error())
		os.Exit(1)
	}

	ctx, stop := cli.SignalContext(context.Background())
	defer stop()

	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", applog.FieldError, err.Error())
		os.Exit(1)
	}
	factory := backend.NewFactory(logger)

	// The worker only consumes; the store is opened without a publisher.
	storeCfg := bcfg
	storeCfg.AMQPURL = ""
	res, err := factory.CreateBackend(ctx, storeCfg)
	if err != nil {
		logger.Error("Failed to open fetch log", applog.FieldError, err.Error(), "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer res.Cleanup()

	sheet, err := factory.CreateRowAppender(ctx, bcfg)
	if err != nil {
		logger.Error("Failed to initialize spreadsheet exporter", applog.FieldError, err.Error())
		os.Exit(1)
	}

	consumer, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", applog.FieldError, err.Error())
		os.Exit(1)
	}
	defer consumer.Close()

	pcfg := services.DefaultExportProcessorConfig()
	pcfg.PollInterval = cfg.ExportInterval
	pcfg.BatchSize = cfg.ExportBatchSize
	processor := services.NewExportProcessor(res.Store, sheet, pcfg, logger)
	exportWorker := worker.NewExportWorker(res.Store, processor, logger)

	logger.Info("Performing startup export check...")
	if err := exportWorker.StartupExportCheck(ctx); err != nil {
		logger.Error("Failed startup export check", applog.FieldError, err.Error())
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := processor.Start(gctx); err != nil {
			return err
		}
		<-gctx.Done()
		stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return processor.Stop(stopCtx)
	})
	g.Go(func() error {
		err := consumer.ConsumeFetchRecorded(gctx, exportWorker.HandleFetchRecorded)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	if err := g.Wait(); err != nil {
		logger.Error("Worker stopped with error", applog.FieldError, err.Error())
		os.Exit(1)
	}
	logger.Info("Worker shutdown complete")
}
