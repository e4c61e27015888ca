package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"receipt-agent/internal/api"
	"receipt-agent/internal/app"
	"receipt-agent/internal/common/camunda"
	"receipt-agent/internal/common/config"
	"receipt-agent/internal/common/logger"

	pr "receipt-agent/internal/workers/receipt/process-receipt"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("config load failed", zap.Error(err))
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting receipt manager...",
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, app.Options{
		Config:          cfg,
		ServiceName:     "receipt-manager",
		ZapLogger:       zapLog,
		ConnectAttempts: 15,
		ConnectDelay:    2 * time.Second,
	})
	if err != nil {
		zapLog.Fatal("startup failed", zap.Error(err))
	}
	defer a.Close(context.Background())

	if cfg.Source != "" {
		if err := config.Watch(cfg.Source, a.ReloadThresholds, func(err error) {
			zapLog.Warn("ignoring invalid config change", zap.Error(err))
		}); err != nil {
			zapLog.Warn("config hot reload disabled", zap.Error(err))
		}
	}

	var (
		workers []*camunda.Worker
		zeebe   *camunda.Client
	)
	if cfg.Camunda.Enabled && cfg.Workers[pr.TaskType].Enabled {
		err = app.RetryWithBackoff(func() error {
			c, err := camunda.NewClientWithConfig(&camunda.ClientConfig{
				GatewayAddress:         cfg.Camunda.BrokerAddress,
				UsePlaintextConnection: true,
				ConnectionTimeout:      10 * time.Second,
				RequestTimeout:         config.GetDuration(cfg.Camunda.RequestTimeout),
			})
			if err != nil {
				return err
			}
			zeebe = c
			return nil
		}, 10, 2*time.Second, zapLog, "Zeebe client initialization")
		if err != nil {
			zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
		}
		defer func() {
			if err := zeebe.Close(); err != nil {
				zapLog.Error("Error closing Zeebe client", zap.Error(err))
			}
		}()
		zapLog.Info("Zeebe client connected successfully")

		handler, err := pr.NewHandler(pr.HandlerOptions{
			AppConfig: cfg,
			Processor: a.Processor,
			Logger:    log,
		})
		if err != nil {
			zapLog.Fatal("failed to create process-receipt handler", zap.Error(err))
		}
		workers = append(workers, camunda.NewWorker(zeebe.GetClient(), camunda.WorkerOptions{
			TaskType:      pr.TaskType,
			MaxJobsActive: handler.Config().MaxJobsActive,
			Timeout:       handler.Config().Timeout,
		}, handler, log))
	} else {
		zapLog.Info("worker disabled", zap.String("taskType", pr.TaskType))
	}

	server := api.NewServer(api.Options{
		Processor:      a.Processor,
		Stages:         a.Stages,
		Employees:      a.Directory,
		Logger:         log,
		MaxConcurrent:  cfg.Intake.MaxConcurrent,
		MaxUploadBytes: cfg.Intake.MaxUploadBytes,
		Ready: func(ctx context.Context) error {
			if err := a.Ready(ctx); err != nil {
				return err
			}
			if zeebe != nil {
				return zeebe.HealthCheck(ctx)
			}
			return nil
		},
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.ListenAndServe(gctx, cfg.Intake.Address)
	})
	g.Go(func() error {
		<-gctx.Done()
		zapLog.Info("Shutdown signal received, stopping workers...")
		for _, w := range workers {
			w.Stop()
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		zapLog.Error("receipt manager stopped with error", zap.Error(err))
		return
	}
	zapLog.Info("Receipt manager stopped gracefully")
}
