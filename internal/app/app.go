package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/kasbench/globeco-trade-service-sub000/internal/config"
	"github.com/kasbench/globeco-trade-service-sub000/internal/deadletter"
	"github.com/kasbench/globeco-trade-service-sub000/internal/domain"
	"github.com/kasbench/globeco-trade-service-sub000/internal/execution"
	"github.com/kasbench/globeco-trade-service-sub000/internal/metrics"
	"github.com/kasbench/globeco-trade-service-sub000/internal/store"
	"github.com/kasbench/globeco-trade-service-sub000/internal/venue"
)

// App 聚合核心依赖并驱动服务生命周期，
// 对外暴露的 SubmitBulk / SubmitTradeOrder 供上层 REST 层调用。
type App struct {
	cfg      *config.Config
	logger   *zap.Logger
	store    *store.Store
	registry *prometheus.Registry

	bulk       *execution.BulkOrchestrator
	submission *execution.SubmissionCoordinator
	counters   *execution.RetryCounterStore
}

// New 创建 App 实例并完成管线装配。
func New(cfg *config.Config, logger *zap.Logger, st *store.Store) *App {
	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	executionRepo := store.NewExecutionRepository(st.DB(), logger)
	tradeOrderRepo := store.NewTradeOrderRepository(st.DB(), logger)
	referenceRepo := store.NewReferenceRepository(st.DB())
	sink := deadletter.NewSQLiteSink(st.DB())

	venueClient := venue.NewClient(cfg.Venue, logger)
	translator := execution.NewBatchTranslator(logger)
	counters := execution.NewRetryCounterStore()

	retry := execution.NewRetryCoordinator(venueClient, translator, counters, execution.RetryConfig{
		MaxAttempts:                cfg.Submission.MaxRetryAttempts,
		IndividualRetryFailedCount: cfg.Submission.IndividualRetryFailedCnt,
		SubBatchSize:               cfg.Submission.RetrySubBatchSize,
	}, logger, m)

	bulk := execution.NewBulkOrchestrator(executionRepo, translator, retry, venueClient, execution.BulkConfig{
		BatchingEnabled: cfg.Submission.BatchingEnabled,
		BatchSize:       cfg.Submission.BatchSize,
		Parallelism:     cfg.Submission.Parallelism,
	}, logger, m)

	compensation := execution.NewCompensationCoordinator(
		executionRepo, tradeOrderRepo, sink, cfg.Compensation.WorkerCount, logger, m)

	submission := execution.NewSubmissionCoordinator(
		tradeOrderRepo, executionRepo, referenceRepo, venueClient, compensation, logger)

	return &App{
		cfg:        cfg,
		logger:     logger,
		store:      st,
		registry:   registry,
		bulk:       bulk,
		submission: submission,
		counters:   counters,
	}
}

// SubmitBulk 批量提交执行记录。
func (a *App) SubmitBulk(ctx context.Context, executionIDs []int64) (execution.BatchResult, error) {
	return a.bulk.SubmitBulk(ctx, executionIDs)
}

// SubmitTradeOrder 为母订单创建并提交一条执行。
func (a *App) SubmitTradeOrder(ctx context.Context, tradeOrderID int64, quantity decimal.Decimal, destinationID int, autoSubmit bool) (*domain.Execution, error) {
	return a.submission.SubmitTradeOrder(ctx, execution.SubmitRequest{
		TradeOrderID:  tradeOrderID,
		Quantity:      quantity,
		DestinationID: destinationID,
		AutoSubmit:    autoSubmit,
	})
}

// Run 启动监控端口并阻塞等待退出信号。
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("交易提交服务已初始化",
		zap.String("environment", a.cfg.App.Environment),
		zap.String("venue", a.cfg.Venue.BaseURL),
		zap.Bool("batchingEnabled", a.cfg.Submission.BatchingEnabled),
		zap.Int("batchSize", a.cfg.Submission.BatchSize),
	)

	if a.cfg.Monitor.Enabled {
		if err := startMonitorServer(ctx, a, a.cfg.Monitor.Port, a.logger); err != nil {
			return fmt.Errorf("启动监控服务失败: %w", err)
		}
	}

	<-ctx.Done()
	if err := ctx.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("系统异常退出: %w", err)
	}
	a.logger.Info("系统收到退出信号，正在停止")
	return nil
}
