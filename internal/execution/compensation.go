package execution

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/kasbench/globeco-trade-service-sub000/internal/deadletter"
	"github.com/kasbench/globeco-trade-service-sub000/internal/domain"
	"github.com/kasbench/globeco-trade-service-sub000/internal/metrics"
)

// compensationTimeout 限制单次补偿的总时长。补偿跑在调用方路径之外，
// 使用独立的超时而不是继承可能已经取消的请求上下文。
const compensationTimeout = 30 * time.Second

// CompensationHandle 让调用方选择等待或脱离一次异步补偿。
type CompensationHandle struct {
	done chan struct{}
	err  error
}

// Wait 阻塞直到补偿结束或 ctx 取消，返回补偿的最终错误。
func (h *CompensationHandle) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-h.done:
		return h.err
	}
}

// Done 返回补偿完成信号。
func (h *CompensationHandle) Done() <-chan struct{} {
	return h.done
}

type compensationStep struct {
	name string
	run  func(ctx context.Context) error
}

// CompensationCoordinator 对失败的提交做 saga 式回滚：
// 删除投机写入的执行记录，把母订单恢复到快照值。
// 每一步都在自己的独立事务中执行，任何一步失败都视为整体失败，
// 事件写入死信出口。补偿从不在内部重试——对一个已经不一致的状态
// 反复自动回滚只会加剧不一致，死信才是安全网。
type CompensationCoordinator struct {
	executions ExecutionStore
	orders     TradeOrderStore
	sink       deadletter.Sink
	logger     *zap.Logger
	metrics    *metrics.Metrics

	// 补偿使用独立的有界并发额度，失败洪峰不能饿死回滚能力。
	slots chan struct{}
}

// NewCompensationCoordinator 构造补偿协调器。workerCount 是并发上限。
func NewCompensationCoordinator(executions ExecutionStore, orders TradeOrderStore, sink deadletter.Sink, workerCount int, logger *zap.Logger, m *metrics.Metrics) *CompensationCoordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if workerCount <= 0 {
		workerCount = 1
	}
	return &CompensationCoordinator{
		executions: executions,
		orders:     orders,
		sink:       sink,
		logger:     logger,
		metrics:    m,
		slots:      make(chan struct{}, workerCount),
	}
}

// Compensate 异步执行一次补偿并立即返回句柄。
// 调用方可以 Wait 等待结果，也可以直接脱离。
func (c *CompensationCoordinator) Compensate(execution *domain.Execution, snapshot domain.TradeOrderState, cause error) *CompensationHandle {
	handle := &CompensationHandle{done: make(chan struct{})}

	go func() {
		c.slots <- struct{}{}
		defer func() { <-c.slots }()

		ctx, cancel := context.WithTimeout(context.Background(), compensationTimeout)
		defer cancel()

		handle.err = c.run(ctx, execution, snapshot, cause)
		close(handle.done)
	}()

	return handle
}

func (c *CompensationCoordinator) run(ctx context.Context, execution *domain.Execution, snapshot domain.TradeOrderState, cause error) error {
	steps := []compensationStep{
		{
			name: "delete_execution",
			run: func(ctx context.Context) error {
				deleted, err := c.executions.DeleteExecution(ctx, execution.ID)
				if err != nil {
					return err
				}
				if !deleted {
					// 记录已不存在视为删除成功，补偿必须可重入。
					c.logger.Info("执行记录已不存在，跳过删除",
						zap.Int64("executionId", execution.ID))
				}
				return nil
			},
		},
		{
			name: "restore_trade_order",
			run: func(ctx context.Context) error {
				return c.restoreTradeOrder(ctx, snapshot)
			},
		},
		{
			name: "mark_compensated",
			run: func(ctx context.Context) error {
				c.logger.Info("补偿完成",
					zap.Int64("executionId", execution.ID),
					zap.Int64("tradeOrderId", snapshot.TradeOrderID),
					zap.NamedError("cause", cause),
				)
				return nil
			},
		},
	}

	var failure error
	for _, step := range steps {
		if err := step.run(ctx); err != nil {
			failure = fmt.Errorf("补偿步骤 %s 失败: %w", step.name, err)
			break
		}
	}

	if failure == nil {
		c.metrics.ObserveCompensation("success")
		return nil
	}

	c.metrics.ObserveCompensation("failed")
	c.logger.Error("补偿失败，写入死信",
		zap.Int64("executionId", execution.ID),
		zap.Int64("tradeOrderId", snapshot.TradeOrderID),
		zap.Error(failure),
	)

	event := domain.CompensationFailedEvent{
		ExecutionID:           execution.ID,
		TradeOrderID:          snapshot.TradeOrderID,
		OriginalQuantitySent:  snapshot.QuantitySent,
		OriginalSubmittedFlag: snapshot.Submitted,
		ErrorMessage:          failure.Error(),
		FailureTimestamp:      time.Now().UTC(),
	}

	if sinkErr := c.sink.Send(ctx, event); sinkErr != nil {
		// 死信写入也失败：自动补救手段已经穷尽，只能靠带外告警。
		c.logger.Error("死信写入失败，需要人工介入",
			zap.Int64("executionId", execution.ID),
			zap.Int64("tradeOrderId", snapshot.TradeOrderID),
			zap.String("severity", "CRITICAL"),
			zap.Error(sinkErr),
		)
		return multierr.Append(failure, sinkErr)
	}

	c.metrics.ObserveDeadLetter()
	return failure
}

// restoreTradeOrder 把母订单恢复到提交前的快照值。
// 基于最新版本做一次乐观更新，不在补偿内处理版本竞争。
func (c *CompensationCoordinator) restoreTradeOrder(ctx context.Context, snapshot domain.TradeOrderState) error {
	order, err := c.orders.GetTradeOrder(ctx, snapshot.TradeOrderID)
	if err != nil {
		return err
	}

	order.QuantitySent = snapshot.QuantitySent
	order.Submitted = snapshot.Submitted
	return c.orders.SaveTradeOrder(ctx, order)
}
