package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-composites/pkg/config"
	"github.com/ekaya-inc/ekaya-composites/pkg/database"
	"github.com/ekaya-inc/ekaya-composites/pkg/extraction"
	"github.com/ekaya-inc/ekaya-composites/pkg/handlers"
	"github.com/ekaya-inc/ekaya-composites/pkg/logging"
	"github.com/ekaya-inc/ekaya-composites/pkg/metrics"
	"github.com/ekaya-inc/ekaya-composites/pkg/middleware"
	"github.com/ekaya-inc/ekaya-composites/pkg/repositories"
	"github.com/ekaya-inc/ekaya-composites/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("base_url", cfg.BaseURL),
		zap.String("database", logging.RedactDSN(cfg.Database.URL())),
		zap.Float64("threshold_percent", cfg.Composites.ThresholdPercent),
		zap.Int("review_period_days", cfg.Composites.ReviewPeriodDays),
		zap.Bool("review_scheduler_enabled", cfg.Composites.ReviewSchedulerEnabled))

	sqlDB, err := database.OpenSQL(cfg.Database.URL())
	if err != nil {
		return err
	}
	err = database.RunMigrations(sqlDB, cfg.MigrationsPath, logger)
	_ = sqlDB.Close()
	if err != nil {
		return err
	}

	db, err := database.NewConnection(ctx, cfg.Database.URL(), database.PoolOptions{
		MaxConns: cfg.Database.MaxConnections,
		MinConns: cfg.Database.MaxIdleConns,
	})
	if err != nil {
		return err
	}
	defer db.Close()

	synonyms, err := extraction.LoadSynonyms(cfg.Extraction.SynonymsFile)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	// Repositories
	materialRepo := repositories.NewMaterialRepository()
	analysisRepo := repositories.NewAnalysisRepository()
	compositeRepo := repositories.NewCompositeRepository()
	workflowRepo := repositories.NewWorkflowRepository()

	// Services
	materialService := services.NewMaterialService(materialRepo, logger)
	analysisService := services.NewAnalysisService(&services.AnalysisServiceDeps{
		Materials:         materialRepo,
		Analyses:          analysisRepo,
		Synonyms:          &synonyms,
		ImpurityThreshold: cfg.Composites.ImpurityThresholdPercent,
		Metrics:           m,
		Logger:            logger,
	})
	compositeService := services.NewCompositeService(&services.CompositeServiceDeps{
		DB:               db,
		Materials:        materialRepo,
		Analyses:         analysisRepo,
		Composites:       compositeRepo,
		ThresholdPercent: cfg.Composites.ThresholdPercent,
		Metrics:          m,
		Logger:           logger,
	})
	workflowService := services.NewWorkflowService(db, compositeRepo, workflowRepo, m, logger)
	reviewService := services.NewReviewService(&services.ReviewServiceDeps{
		DB:                 db,
		Composites:         compositeRepo,
		CompositeService:   compositeService,
		WorkflowService:    workflowService,
		ThresholdPercent:   cfg.Composites.ThresholdPercent,
		ReviewPeriod:       cfg.Composites.ReviewPeriod(),
		Concurrency:        cfg.Composites.ReviewConcurrency,
		AutoSubmit:         cfg.Composites.AutoSubmitReviews,
		DraftRetentionDays: cfg.Composites.DraftRetentionDays,
		Metrics:            m,
		Logger:             logger,
	})

	// Handlers
	mux := http.NewServeMux()
	withConn := handlers.ConnectionMiddleware(database.WithConnection(db, logger))

	handlers.NewHealthHandler(cfg, db, logger).RegisterRoutes(mux)
	handlers.NewMaterialHandler(materialService, logger).RegisterRoutes(mux, withConn)
	handlers.NewAnalysisHandler(analysisService, extraction.Options{
		Synonyms:          &synonyms,
		ImpurityThreshold: cfg.Composites.ImpurityThresholdPercent,
	}, cfg.Extraction.MaxUploadBytes, logger).RegisterRoutes(mux, withConn)
	handlers.NewCompositeHandler(compositeService, logger).RegisterRoutes(mux, withConn)
	handlers.NewWorkflowHandler(workflowService, logger).RegisterRoutes(mux, withConn)
	handlers.NewReviewHandler(reviewService, cfg.Composites.DraftRetentionDays, logger).RegisterRoutes(mux, withConn)
	mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))

	var handler http.Handler = mux
	handler = middleware.RequestMetrics(m)(handler)
	handler = middleware.RequestLogger(logger)(handler)

	if cfg.Composites.ReviewSchedulerEnabled {
		reviewService.RunScheduler(ctx, cfg.Composites.ReviewInterval())
	}

	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.BindAddr, cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Starting ekaya-composites",
			zap.String("addr", srv.Addr),
			zap.String("version", cfg.Version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
