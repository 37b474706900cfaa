package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/afco-erp/afco-erp/internal/app"
	"github.com/afco-erp/afco-erp/internal/ledger"
	"github.com/afco-erp/afco-erp/internal/masterdata"
	"github.com/afco-erp/afco-erp/internal/observability"
	"github.com/afco-erp/afco-erp/internal/platform/cache"
	"github.com/afco-erp/afco-erp/internal/platform/db"
	"github.com/afco-erp/afco-erp/internal/reports"
	"github.com/afco-erp/afco-erp/internal/shared"
	"github.com/afco-erp/afco-erp/internal/stockdocs"
	"github.com/afco-erp/afco-erp/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, continuing without distributed locks", slog.Any("error", err))
	} else {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	metrics := observability.NewMetrics()

	auditLogger := shared.NewAuditLogger(dbpool)
	productLocker := shared.NewProductLocker(redisClient, cfg.ProductLockTTL)
	idempotencyStore := shared.NewIdempotencyStore(dbpool)

	masterdataRepo := masterdata.NewRepository(dbpool)
	masterdataService := masterdata.NewService(masterdataRepo, auditLogger)
	masterdataHandler := masterdata.NewHandler(logger, masterdataService)

	ledgerRepo := ledger.NewRepository(dbpool)
	ledgerService := ledger.NewService(ledgerRepo, productLocker, auditLogger, ledger.ServiceConfig{
		RecomputeLimit: cfg.RecomputeLimit,
		Observer:       metrics,
	})
	ledgerHandler := ledger.NewHandler(logger, ledgerService)

	stockdocsRepo := stockdocs.NewRepository(dbpool)
	stockdocsService := stockdocs.NewService(logger, stockdocsRepo, ledgerService, masterdataService, masterdataService, auditLogger)
	stockdocsHandler := stockdocs.NewHandler(logger, stockdocsService, idempotencyStore)

	reportsRepo := reports.NewRepository(dbpool)
	reportsService := reports.NewService(reportsRepo)
	reportsHandler := reports.NewHandler(logger, reportsService)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		MasterDataHandler: masterdataHandler,
		LedgerHandler:     ledgerHandler,
		StockDocsHandler:  stockdocsHandler,
		ReportsHandler:    reportsHandler,
		JobHandler:        jobHandler,
		Metrics:           metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
