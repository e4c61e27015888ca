// Package app connects the backing services and assembles the receipt pipeline from configuration.
package app

import (
	"context"
	"fmt"
	"time"

	"receipt-agent/internal/agent/orchestrator"
	"receipt-agent/internal/agent/parser"
	"receipt-agent/internal/agent/tools"
	"receipt-agent/internal/common/aws"
	"receipt-agent/internal/common/config"
	"receipt-agent/internal/common/database"
	"receipt-agent/internal/common/logger"
	"receipt-agent/internal/common/observability"
	"receipt-agent/internal/dedupe"
	"receipt-agent/internal/employees"
	"receipt-agent/internal/extraction"
	"receipt-agent/internal/geocode"
	"receipt-agent/internal/llm"
	"receipt-agent/internal/notify"
	"receipt-agent/internal/pipeline"
	"receipt-agent/internal/prompts"
	"receipt-agent/internal/stages"
	"receipt-agent/internal/vectorstore"

	"go.uber.org/zap"
)

type Options struct {
	Config      *config.Config
	ServiceName string
	ZapLogger   *zap.Logger
	// ConnectAttempts bounds the startup retries per backing service.
	ConnectAttempts int
	ConnectDelay    time.Duration
}

// App holds every long-lived component. Build it once per process.
type App struct {
	Config *config.Config
	Logger logger.Logger
	Obs    *observability.Observability

	Postgres *database.PostgresClient
	Redis    *database.RedisClient
	Elastic  *database.ElasticsearchClient

	LLM        *llm.Clients
	Catalog    *prompts.Catalog
	Store      vectorstore.Store
	Thresholds *dedupe.Thresholds
	Detector   *dedupe.Detector
	Directory  *employees.Directory
	Ledger     *employees.Ledger
	Stages     *stages.Tracker
	Registry   *tools.Registry
	Agent      *orchestrator.Orchestrator
	Processor  *pipeline.Processor

	zapLog *zap.Logger
}

// RetryWithBackoff retries operation with exponential backoff, logging each failed attempt.
func RetryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

// Build connects Postgres and Redis (and Elasticsearch when it backs the vector store) and wires
// the pipeline. On error everything already opened is closed.
func Build(ctx context.Context, opts Options) (_ *App, err error) {
	cfg := opts.Config
	zapLog := opts.ZapLogger
	if zapLog == nil {
		zapLog = zap.NewNop()
	}
	if opts.ConnectAttempts <= 0 {
		opts.ConnectAttempts = 1
	}
	if opts.ConnectDelay <= 0 {
		opts.ConnectDelay = 2 * time.Second
	}
	log := logger.NewZapAdapter(zapLog)

	a := &App{Config: cfg, Logger: log, zapLog: zapLog}
	defer func() {
		if err != nil {
			a.Close(context.Background())
		}
	}()

	tracing := observability.Options{}
	if cfg.Tracing.Enabled {
		tracing.JaegerEndpoint = cfg.Tracing.JaegerEndpoint
	}
	a.Obs = observability.New(opts.ServiceName, tracing, log)

	if err = RetryWithBackoff(func() error {
		pg, err := database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		if err := pg.Ping(ctx); err != nil {
			pg.Close()
			return err
		}
		a.Postgres = pg
		return nil
	}, opts.ConnectAttempts, opts.ConnectDelay, zapLog, "PostgreSQL connection"); err != nil {
		return nil, err
	}
	if err = a.Postgres.Migrate(ctx); err != nil {
		return nil, err
	}
	zapLog.Info("PostgreSQL connected successfully")

	if err = RetryWithBackoff(func() error {
		rc, err := database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		if err := rc.Ping(ctx); err != nil {
			rc.Close()
			return err
		}
		a.Redis = rc
		return nil
	}, opts.ConnectAttempts, opts.ConnectDelay, zapLog, "Redis connection"); err != nil {
		return nil, err
	}
	zapLog.Info("Redis connected successfully")

	if a.Store, err = a.buildStore(ctx, opts); err != nil {
		return nil, err
	}

	if a.LLM, err = llm.NewFromConfig(cfg.LLM, a.Redis.Client, log); err != nil {
		return nil, err
	}
	if a.Catalog, err = prompts.Load(); err != nil {
		return nil, err
	}
	format, err := parser.ForName(cfg.Agent.ResponseFormat)
	if err != nil {
		return nil, err
	}

	if a.Thresholds, err = dedupe.NewThresholds(cfg.Dedupe.Threshold, cfg.Dedupe.Categories); err != nil {
		return nil, err
	}
	a.Detector = dedupe.NewDetector(a.Store, a.Thresholds, log)

	a.Directory = employees.NewDirectory(a.Postgres.DB, log)
	a.Ledger = employees.NewLedger(a.Postgres.DB, log)
	a.Stages = stages.NewTracker(a.Redis.Client, cfg.VectorStore.KeyPrefix, time.Duration(cfg.Intake.StageTTL)*time.Second, log)

	notifier, err := a.buildNotifier(ctx)
	if err != nil {
		return nil, err
	}
	proximity := a.buildProximity(ctx)

	if a.Registry, err = tools.NewRegistry(log, tools.ExpenseTools(tools.Dependencies{
		Directory: a.Directory,
		Ledger:    a.Ledger,
		Proximity: proximity,
		Notifier:  notifier,
	})...); err != nil {
		return nil, err
	}

	if a.Agent, err = orchestrator.New(orchestrator.Dependencies{
		Completer: a.LLM.Completer,
		Registry:  a.Registry,
		Format:    format,
		Catalog:   a.Catalog,
		Directory: a.Directory,
		Stages:    a.Stages,
		Obs:       a.Obs,
		Logger:    log,
	}, orchestrator.Config{
		MaxTurns:        cfg.Agent.MaxTurns,
		InvokeFinalTool: cfg.Agent.InvokeFinalTool,
	}); err != nil {
		return nil, err
	}

	extractor := extraction.New(a.LLM.Vision, a.Catalog, log)
	a.Processor = pipeline.NewProcessor(extractor, a.LLM.Embedder, a.Detector, a.Agent, a.Stages, log)

	log.Info("receipt pipeline ready", map[string]interface{}{
		"vectorStore":    cfg.VectorStore.Backend,
		"responseFormat": format.Name(),
		"maxTurns":       cfg.Agent.MaxTurns,
		"threshold":      cfg.Dedupe.Threshold,
	})
	return a, nil
}

func (a *App) buildStore(ctx context.Context, opts Options) (vectorstore.Store, error) {
	cfg := a.Config
	switch cfg.VectorStore.Backend {
	case "", "redis":
		return vectorstore.NewRedisStore(a.Redis.Client, cfg.VectorStore.KeyPrefix), nil
	case "memory":
		a.Logger.Warn("using in-memory vector store; embeddings are lost on restart", nil)
		return vectorstore.NewMemoryStore(), nil
	case "elasticsearch":
		err := RetryWithBackoff(func() error {
			es, err := database.NewElasticsearch(cfg.Database.Elasticsearch)
			if err != nil {
				return err
			}
			if err := es.Ping(ctx); err != nil {
				return err
			}
			a.Elastic = es
			return nil
		}, opts.ConnectAttempts, opts.ConnectDelay, a.zapLog, "Elasticsearch connection")
		if err != nil {
			return nil, err
		}
		if err := a.Elastic.EnsureIndex(ctx, cfg.VectorStore.Index, vectorstore.IndexMapping); err != nil {
			return nil, err
		}
		a.zapLog.Info("Elasticsearch connected successfully")
		return vectorstore.NewElasticStore(a.Elastic.Client, cfg.VectorStore.Index, cfg.VectorStore.MaxScan), nil
	default:
		return nil, fmt.Errorf("unknown vector store backend %q", cfg.VectorStore.Backend)
	}
}

// buildNotifier leaves a disabled channel as a nil interface, never a typed nil client.
func (a *App) buildNotifier(ctx context.Context) (*notify.Notifier, error) {
	awsCfg := a.Config.Integrations.AWS
	clients, err := aws.NewClients(ctx, awsCfg.Region, awsCfg.SES.Enabled, awsCfg.SNS.Enabled)
	if err != nil {
		return nil, err
	}
	var sesSvc notify.SESService
	if clients.SES != nil {
		sesSvc = clients.SES
	}
	var snsSvc notify.SNSService
	if clients.SNS != nil {
		snsSvc = clients.SNS
	}
	return notify.NewNotifier(notify.Config{
		FromEmail:   awsCfg.SES.FromEmail,
		SMSSenderID: awsCfg.SNS.DefaultSMSSenderID,
		SMSCopy:     awsCfg.SNS.Enabled,
	}, a.Directory, sesSvc, snsSvc, a.Logger), nil
}

func (a *App) buildProximity(ctx context.Context) *geocode.ProximityChecker {
	gm := a.Config.Integrations.GoogleMaps
	var g geocode.Geocoder = geocode.NewGoogleGeocoder(gm.APIKey, gm.BaseURL, gm.RequestsPerSec)
	g = geocode.NewCachedGeocoder(g, a.Redis.Client, time.Duration(gm.CacheTTL)*time.Second, a.Logger)

	office := geocode.ResolveOffice(ctx, g, geocode.Office{
		Address:  a.Config.Office.Address,
		Lat:      a.Config.Office.Lat,
		Lng:      a.Config.Office.Lng,
		RadiusKm: a.Config.Office.RadiusKm,
	}, a.Logger)
	return geocode.NewProximityChecker(g, office, a.Logger)
}

// ReloadThresholds applies the dedupe section of a reloaded config.
func (a *App) ReloadThresholds(cfg *config.Config) {
	if err := a.Thresholds.Replace(cfg.Dedupe.Threshold, cfg.Dedupe.Categories); err != nil {
		a.Logger.Error("rejected duplicate threshold reload", map[string]interface{}{"error": err.Error()})
		return
	}
	a.Logger.Info("duplicate thresholds reloaded", map[string]interface{}{"threshold": cfg.Dedupe.Threshold})
}

// Ready pings the backing services.
func (a *App) Ready(ctx context.Context) error {
	if err := a.Postgres.Ping(ctx); err != nil {
		return err
	}
	if err := a.Redis.Ping(ctx); err != nil {
		return err
	}
	if a.Elastic != nil {
		return a.Elastic.Ping(ctx)
	}
	return nil
}

func (a *App) Close(ctx context.Context) {
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Logger.Warn("failed to close redis", map[string]interface{}{"error": err.Error()})
		}
	}
	if a.Postgres != nil {
		if err := a.Postgres.Close(); err != nil {
			a.Logger.Warn("failed to close postgres", map[string]interface{}{"error": err.Error()})
		}
	}
	if a.Obs != nil {
		a.Obs.Shutdown(ctx)
	}
}
