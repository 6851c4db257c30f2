package execution

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kasbench/globeco-trade-service-sub000/internal/domain"
	"github.com/kasbench/globeco-trade-service-sub000/internal/errclass"
	"github.com/kasbench/globeco-trade-service-sub000/internal/metrics"
	"github.com/kasbench/globeco-trade-service-sub000/internal/venue"
)

// RetryConfig 控制重试协调器的行为。
type RetryConfig struct {
	// MaxAttempts 是单条执行在计数器生命周期内的累计尝试上限。
	MaxAttempts int
	// IndividualRetryFailedCount 为 0 时完全关闭重试；
	// 失败条数不超过该值时逐条重试，超过时按子批次重试。
	IndividualRetryFailedCount int
	// SubBatchSize 是子批次的大小上限，不超过 10。
	SubBatchSize int
}

const maxSubBatchSize = 10

// RetryCoordinator 对批量结果中的可重试失败执行有界重试并合并结果。
// 底层 venue 客户端自带的退避重试只覆盖单次逻辑调用内的抖动，
// 这里的计数器管理跨调用的重试额度，两层互相独立。
type RetryCoordinator struct {
	venue      venue.Service
	translator *BatchTranslator
	counters   *RetryCounterStore
	cfg        RetryConfig
	logger     *zap.Logger
	metrics    *metrics.Metrics
}

// NewRetryCoordinator 构造重试协调器。counters 由调用方注入，
// 与编排器同生命周期。
func NewRetryCoordinator(svc venue.Service, translator *BatchTranslator, counters *RetryCounterStore, cfg RetryConfig, logger *zap.Logger, m *metrics.Metrics) *RetryCoordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SubBatchSize <= 0 || cfg.SubBatchSize > maxSubBatchSize {
		cfg.SubBatchSize = maxSubBatchSize
	}
	return &RetryCoordinator{
		venue:      svc,
		translator: translator,
		counters:   counters,
		cfg:        cfg,
		logger:     logger,
		metrics:    m,
	}
}

// HandlePartialFailures 对部分失败的批量结果做一轮重试并合并。
// 重试过的条目以重试结果覆盖原结果，未重试的条目保持原状。
func (c *RetryCoordinator) HandlePartialFailures(ctx context.Context, result BatchResult, originals []*domain.Execution) BatchResult {
	if result.Failed == 0 || c.cfg.IndividualRetryFailedCount <= 0 {
		return result
	}

	retryable := c.translator.ExtractRetryable(result, originals)
	if len(retryable) == 0 {
		return result
	}

	c.logger.Info("开始重试可恢复的失败条目",
		zap.Int("failed", result.Failed),
		zap.Int("retryable", len(retryable)),
	)

	retried := c.RetryFailedExecutions(ctx, retryable)

	merged := make(map[int64]SubmissionResult, len(retried.Results))
	for _, r := range retried.Results {
		merged[r.ExecutionID] = r
	}

	results := make([]SubmissionResult, len(result.Results))
	for i, r := range result.Results {
		if repl, ok := merged[r.ExecutionID]; ok {
			results[i] = repl
		} else {
			results[i] = r
		}
	}

	return NewBatchResult(results)
}

// RetryFailedExecutions 重试给定的执行条目。
// 已达尝试上限的条目直接标记 RETRY_EXHAUSTED，不再发起网络调用；
// 其余条目逐条或按子批次重试。
func (c *RetryCoordinator) RetryFailedExecutions(ctx context.Context, executions []*domain.Execution) BatchResult {
	results := make([]SubmissionResult, 0, len(executions))
	var remaining []*domain.Execution

	for _, e := range executions {
		if c.counters.Attempts(e.ID) >= c.cfg.MaxAttempts {
			c.counters.Clear(e.ID)
			c.metrics.ObserveRetryExhausted()
			results = append(results, SubmissionResult{
				ExecutionID: e.ID,
				Status:      ItemRetryExhausted,
				Message:     fmt.Sprintf("重试次数已用尽（上限 %d）", c.cfg.MaxAttempts),
			})
			continue
		}
		remaining = append(remaining, e)
	}

	if len(remaining) == 0 {
		return NewBatchResult(results)
	}

	// 逐条重试隔离性最好，一条坏数据不会拖垮同伴；
	// 失败面较大时退回子批次以控制调用量。
	if len(remaining) == 1 || len(remaining) <= c.cfg.IndividualRetryFailedCount {
		for _, e := range remaining {
			results = append(results, c.RetryIndividually(ctx, e))
		}
		return NewBatchResult(results)
	}

	for start := 0; start < len(remaining); start += c.cfg.SubBatchSize {
		end := start + c.cfg.SubBatchSize
		if end > len(remaining) {
			end = len(remaining)
		}
		results = append(results, c.retrySubBatch(ctx, remaining[start:end])...)
	}

	return NewBatchResult(results)
}

func (c *RetryCoordinator) retrySubBatch(ctx context.Context, chunk []*domain.Execution) []SubmissionResult {
	for _, e := range chunk {
		c.counters.Increment(e.ID)
		c.metrics.ObserveRetry()
	}

	req, err := c.translator.BuildBatchRequest(chunk)
	if err == nil {
		var resp *venue.BatchResponse
		resp, err = c.venue.SubmitBatch(ctx, req)
		if err == nil {
			reconciled := c.translator.Reconcile(resp, chunk)
			for _, r := range reconciled.Results {
				if r.Succeeded() {
					c.counters.Clear(r.ExecutionID)
				}
			}
			return reconciled.Results
		}
	}

	// 整个子批次的传输失败无法归因到具体条目，所有成员同命运。
	desc := errclass.Classify(err, map[string]any{"subBatchSize": len(chunk)})
	results := make([]SubmissionResult, 0, len(chunk))
	for _, e := range chunk {
		attempts := c.counters.Attempts(e.ID)
		if !errclass.ShouldRetry(desc, attempts, c.cfg.MaxAttempts) {
			c.counters.Clear(e.ID)
			c.metrics.ObserveRetryExhausted()
			results = append(results, SubmissionResult{
				ExecutionID: e.ID,
				Status:      ItemRetryExhausted,
				Message:     desc.Message,
			})
			continue
		}
		results = append(results, SubmissionResult{
			ExecutionID: e.ID,
			Status:      ItemFailed,
			Message:     desc.Message,
		})
	}

	return results
}

// RetryIndividually 重试单条执行。成功清空计数器；
// 失败时按分类结果决定保留计数还是标记耗尽。
// 已达尝试上限的条目直接标记 RETRY_EXHAUSTED，不发起网络调用，
// 无论调用方是批量路径还是直接调用，额度判定都一致。
func (c *RetryCoordinator) RetryIndividually(ctx context.Context, e *domain.Execution) SubmissionResult {
	if c.counters.Attempts(e.ID) >= c.cfg.MaxAttempts {
		c.counters.Clear(e.ID)
		c.metrics.ObserveRetryExhausted()
		return SubmissionResult{
			ExecutionID: e.ID,
			Status:      ItemRetryExhausted,
			Message:     fmt.Sprintf("重试次数已用尽（上限 %d）", c.cfg.MaxAttempts),
		}
	}

	attempts := c.counters.Increment(e.ID)
	c.metrics.ObserveRetry()

	result, err := c.venue.SubmitExecution(ctx, buildExecutionRequest(e))
	if err == nil && result != nil && result.Status == venue.ResponseStatusSuccess {
		c.counters.Clear(e.ID)
		r := SubmissionResult{
			ExecutionID: e.ID,
			Status:      ItemSuccess,
			Message:     result.Message,
		}
		if result.Execution != nil {
			id := result.Execution.ID
			r.VenueServiceID = &id
		}
		return r
	}

	message := ""
	var desc errclass.Descriptor
	if err != nil {
		desc = errclass.Classify(err, map[string]any{
			"executionId": e.ID,
			"attempt":     attempts,
		})
		message = desc.Message
	} else {
		if result != nil {
			message = result.Message
		}
		desc = errclass.Classify(fmt.Errorf("执行服务拒绝: %s", message), nil)
	}

	if !errclass.ShouldRetry(desc, attempts, c.cfg.MaxAttempts) {
		c.counters.Clear(e.ID)
		c.metrics.ObserveRetryExhausted()
		c.logger.Warn("单条重试结束，标记耗尽",
			zap.Int64("executionId", e.ID),
			zap.Int("attempts", attempts),
			zap.String("category", string(desc.Category)),
		)
		return SubmissionResult{
			ExecutionID: e.ID,
			Status:      ItemRetryExhausted,
			Message:     message,
		}
	}

	return SubmissionResult{
		ExecutionID: e.ID,
		Status:      ItemFailed,
		Message:     message,
	}
}

// ClearRetryCounters 清除给定执行的重试计数。
// 每个批次结束后必须调用，成功与永久失败同样终结条目的重试生命周期。
func (c *RetryCoordinator) ClearRetryCounters(executionIDs []int64) {
	c.counters.Clear(executionIDs...)
}
