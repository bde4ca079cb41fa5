// Package app wires the service graph. Everything is constructed once
// here and handed to the HTTP server; no package-level singletons.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/specula/internal/common"
	"github.com/ternarybob/specula/internal/embedder"
	"github.com/ternarybob/specula/internal/handlers"
	"github.com/ternarybob/specula/internal/interfaces"
	"github.com/ternarybob/specula/internal/kis"
	"github.com/ternarybob/specula/internal/krx"
	"github.com/ternarybob/specula/internal/poller"
	"github.com/ternarybob/specula/internal/services/analysis"
	"github.com/ternarybob/specula/internal/services/llm"
	"github.com/ternarybob/specula/internal/services/marketdata"
	"github.com/ternarybob/specula/internal/services/ranker"
	"github.com/ternarybob/specula/internal/services/report"
	"github.com/ternarybob/specula/internal/services/scheduler"
	"github.com/ternarybob/specula/internal/services/universe"
	"github.com/ternarybob/specula/internal/storage/sqlite"
	"github.com/ternarybob/specula/internal/triggers"
)

// App holds all application components and dependencies
type App struct {
	Config         *common.Config
	Logger         arbor.ILogger
	StorageManager interfaces.StorageManager

	// Vendor clients
	KISClient *kis.Client
	KRXClient *krx.Client

	// Market data services
	MarketData  *marketdata.Service
	NewsService *marketdata.NewsService

	// LLM and embeddings
	LLMService interfaces.LLMService
	Embedder   interfaces.Embedder

	// Domain services
	AnalysisService *analysis.Service
	Ranker          *ranker.Ranker
	ReportService   *report.Service
	TriggerEngine   *triggers.Engine
	PreSurgeScanner *triggers.PreSurgeScanner
	UniverseBatch   *universe.Batch

	// Background loops
	Poller       *poller.Poller
	StreamFeeder *poller.StreamFeeder
	Scheduler    *scheduler.Service

	// HTTP handlers
	StockHandler    *handlers.StockHandler
	TriggerHandler  *handlers.TriggerHandler
	AnalysisHandler *handlers.AnalysisHandler
	ReportHandler   *handlers.ReportHandler
	SystemHandler   *handlers.SystemHandler

	pollerDone chan struct{}
}

// New initializes the application with all dependencies
func New(ctx context.Context, cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	storageManager, err := sqlite.NewManager(logger, &cfg.Storage.SQLite)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	app.StorageManager = storageManager

	stocks := storageManager.Stocks()
	prices := storageManager.Prices()
	triggerStore := storageManager.Triggers()
	analysisStore := storageManager.Analyses()
	reportStore := storageManager.Reports()

	kisOpts := []kis.ClientOption{kis.WithLogger(logger)}
	if cfg.KIS.BaseURL != "" {
		kisOpts = append(kisOpts, kis.WithBaseURL(cfg.KIS.BaseURL))
	}
	if cfg.KIS.RatePerSec > 0 {
		kisOpts = append(kisOpts, kis.WithRateLimit(cfg.KIS.RatePerSec))
	}
	if timeout := common.DurationOr(cfg.KIS.RequestTimeout, 0); timeout > 0 {
		kisOpts = append(kisOpts, kis.WithTimeout(timeout))
	}
	app.KISClient = kis.NewClient(cfg.KIS.AppKey, cfg.KIS.AppSecret, kisOpts...)
	app.KRXClient = krx.NewClient(krx.WithLogger(logger))

	app.MarketData = marketdata.NewService(app.KISClient, app.KRXClient, stocks, prices, logger)
	app.NewsService = marketdata.NewNewsService(&cfg.News, logger)

	llmService, err := llm.NewLLMService(ctx, cfg, logger)
	if err != nil {
		storageManager.Close()
		return nil, fmt.Errorf("failed to initialize LLM service: %w", err)
	}
	app.LLMService = llmService
	app.Embedder = embedder.NewService(&cfg.Embedding, logger)

	app.AnalysisService = analysis.NewService(app.MarketData, app.NewsService, app.Embedder,
		app.LLMService, stocks, analysisStore, cfg.Embedding.SimThreshold, logger)
	app.Ranker = ranker.New(app.MarketData, stocks, app.NewsService, app.Embedder,
		app.LLMService, cfg.Embedding.SimThreshold, logger)
	app.ReportService = report.NewService(app.MarketData, app.Ranker, triggerStore,
		reportStore, app.LLMService, logger)

	// The afternoon trigger run sweeps realtime prices and invalidates
	// cached analyses whose rule fires
	app.TriggerEngine = triggers.NewEngine(app.MarketData, stocks, triggerStore,
		app.AnalysisService, logger)
	app.PreSurgeScanner = triggers.NewPreSurgeScanner(app.MarketData, stocks, prices, logger)
	app.UniverseBatch = universe.NewBatch(app.MarketData, app.KRXClient, stocks, logger)

	batchSize := cfg.KIS.BatchSize
	if batchSize <= 0 {
		batchSize = 30
	}
	app.Poller = poller.New(app.KISClient, stocks, prices, batchSize,
		common.DurationOr(cfg.Poller.InterBatchDelay, 0), logger)

	// The websocket tick feed rides on top of the REST poller for the
	// heaviest-traded tickers; configured off unless a WS URL is set
	if cfg.KIS.WSURL != "" {
		stream := kis.NewStreamClient(cfg.KIS.WSURL, app.KISClient, logger)
		app.StreamFeeder = poller.NewStreamFeeder(stream, stocks, prices, logger)
	}

	app.Scheduler = scheduler.NewService(cfg.Scheduler, app.UniverseBatch, app.TriggerEngine,
		app.ReportService, stocks, triggerStore, reportStore, logger)

	app.StockHandler = handlers.NewStockHandler(app.MarketData, stocks, logger)
	app.TriggerHandler = handlers.NewTriggerHandler(triggerStore, app.TriggerEngine,
		app.PreSurgeScanner, logger)
	app.AnalysisHandler = handlers.NewAnalysisHandler(app.AnalysisService, logger)
	app.ReportHandler = handlers.NewReportHandler(app.ReportService, reportStore, logger)
	app.SystemHandler = handlers.NewSystemHandler(storageManager, app.Poller, app.Scheduler, logger)

	return app, nil
}

// Start launches the background loops enabled by configuration
func (a *App) Start(ctx context.Context) error {
	if a.Config.Scheduler.Enabled {
		if err := a.Scheduler.Start(ctx); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
	} else {
		a.Logger.Info().Msg("Scheduler disabled by configuration")
	}

	if a.Config.Poller.Enabled {
		a.pollerDone = make(chan struct{})
		go func() {
			defer close(a.pollerDone)
			if err := a.Poller.Run(ctx); err != nil && ctx.Err() == nil {
				a.Logger.Error().Err(err).Msg("Realtime poller exited")
			}
		}()
	} else {
		a.Logger.Info().Msg("Realtime poller disabled by configuration")
	}

	if a.StreamFeeder != nil {
		go func() {
			if err := a.StreamFeeder.Run(ctx); err != nil && ctx.Err() == nil {
				a.Logger.Warn().Err(err).Msg("Websocket feeder exited, REST poller continues")
			}
		}()
	}

	return nil
}

// Close shuts down the background loops and the store
func (a *App) Close() {
	if a.Config.Scheduler.Enabled {
		a.Scheduler.Stop()
	}
	if a.pollerDone != nil {
		a.Poller.Stop()
		select {
		case <-a.pollerDone:
		case <-time.After(5 * time.Second):
			a.Logger.Warn().Msg("Poller did not stop in time")
		}
	}
	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			a.Logger.Error().Err(err).Msg("Failed to close storage")
		}
	}
}
