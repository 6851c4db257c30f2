package execution

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kasbench/globeco-trade-service-sub000/internal/domain"
	"github.com/kasbench/globeco-trade-service-sub000/internal/errclass"
	"github.com/kasbench/globeco-trade-service-sub000/internal/metrics"
	"github.com/kasbench/globeco-trade-service-sub000/internal/venue"
)

// BulkConfig 控制批量提交编排。
type BulkConfig struct {
	BatchingEnabled bool
	BatchSize       int
	// Parallelism 仅在关闭批处理的逐条模式下生效。
	Parallelism int
}

// BulkOrchestrator 是批量提交的顶层入口：加载执行记录、切分批次、
// 驱动转换与重试、持久化最终状态，并把所有批次聚合成单一结果。
type BulkOrchestrator struct {
	executions ExecutionStore
	translator *BatchTranslator
	retry      *RetryCoordinator
	venue      venue.Service
	cfg        BulkConfig
	logger     *zap.Logger
	metrics    *metrics.Metrics
}

// NewBulkOrchestrator 构造批量编排器。
func NewBulkOrchestrator(executions ExecutionStore, translator *BatchTranslator, retry *RetryCoordinator, svc venue.Service, cfg BulkConfig, logger *zap.Logger, m *metrics.Metrics) *BulkOrchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 1
	}
	return &BulkOrchestrator{
		executions: executions,
		translator: translator,
		retry:      retry,
		venue:      svc,
		cfg:        cfg,
		logger:     logger,
		metrics:    m,
	}
}

// SubmitBulk 批量提交给定编号的执行记录。
// 空列表是输入错误；解析不了的编号丢弃并告警，容忍部分输入；
// 一个都解析不出来时返回全失败结果而不是错误。
func (o *BulkOrchestrator) SubmitBulk(ctx context.Context, executionIDs []int64) (BatchResult, error) {
	if len(executionIDs) == 0 {
		return BatchResult{}, domain.NewValidationError("执行编号列表为空")
	}

	executions := make([]*domain.Execution, 0, len(executionIDs))
	for _, id := range executionIDs {
		e, err := o.executions.GetExecutionWithRelations(ctx, id)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				o.logger.Warn("执行编号无法解析，跳过", zap.Int64("executionId", id))
			} else {
				o.logger.Warn("加载执行记录失败，跳过",
					zap.Int64("executionId", id),
					zap.Error(err),
				)
			}
			continue
		}
		executions = append(executions, e)
	}

	if len(executions) == 0 {
		results := make([]SubmissionResult, len(executionIDs))
		for i, id := range executionIDs {
			results[i] = SubmissionResult{
				ExecutionID: id,
				Status:      ItemFailed,
				Message:     "没有可提交的执行记录：编号无法解析",
			}
		}
		return NewBatchResult(results), nil
	}

	if !o.cfg.BatchingEnabled {
		return o.submitIndividually(ctx, executions), nil
	}

	// 连续切分为不超过 batch_size 的批次，顺序处理。
	// 单个批次失败只影响自身，后续批次照常进行。
	var all []SubmissionResult
	for start := 0; start < len(executions); start += o.cfg.BatchSize {
		end := start + o.cfg.BatchSize
		if end > len(executions) {
			end = len(executions)
		}
		batch := o.ProcessBatch(ctx, executions[start:end])
		all = append(all, batch.Results...)
	}

	result := NewBatchResult(all)
	o.logger.Info("批量提交完成",
		zap.Int("requested", len(executionIDs)),
		zap.Int("successful", result.Successful),
		zap.Int("failed", result.Failed),
		zap.String("overall", string(result.Overall)),
	)
	return result, nil
}

// submitIndividually 在关闭批处理时把每条执行当作单例批次，
// 用有界并发处理。结果写入按输入顺序预留的槽位，
// 即使完成顺序乱序，返回顺序仍与输入一致。
func (o *BulkOrchestrator) submitIndividually(ctx context.Context, executions []*domain.Execution) BatchResult {
	slots := make([][]SubmissionResult, len(executions))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Parallelism)

	for i, e := range executions {
		i, e := i, e
		g.Go(func() error {
			batch := o.ProcessBatch(gctx, []*domain.Execution{e})
			slots[i] = batch.Results
			return nil
		})
	}
	_ = g.Wait()

	var all []SubmissionResult
	for _, rs := range slots {
		all = append(all, rs...)
	}
	return NewBatchResult(all)
}

// ProcessBatch 处理单个批次：构造请求、提交、回对、按需重试、
// 持久化状态，最后无条件清理全部条目的重试计数。
func (o *BulkOrchestrator) ProcessBatch(ctx context.Context, executions []*domain.Execution) BatchResult {
	start := time.Now()
	defer func() {
		o.metrics.ObserveBatch(len(executions), time.Since(start).Seconds())
	}()

	ids := make([]int64, len(executions))
	for i, e := range executions {
		ids[i] = e.ID
	}
	defer o.retry.ClearRetryCounters(ids)

	result := o.submitBatch(ctx, executions)
	result = o.retry.HandlePartialFailures(ctx, result, executions)
	o.persistStatuses(ctx, result, executions)

	for _, r := range result.Results {
		o.metrics.ObserveSubmission(string(r.Status))
	}
	return result
}

func (o *BulkOrchestrator) submitBatch(ctx context.Context, executions []*domain.Execution) BatchResult {
	req, err := o.translator.BuildBatchRequest(executions)
	var resp *venue.BatchResponse
	if err == nil {
		resp, err = o.venue.SubmitBatch(ctx, req)
	}
	if err != nil {
		// 整批调用失败没有更细的归因，批内所有条目统一标记失败。
		desc := errclass.Classify(err, map[string]any{"batchSize": len(executions)})
		o.logger.Error("批次提交失败",
			zap.Int("batchSize", len(executions)),
			zap.String("category", string(desc.Category)),
			zap.Error(err),
		)
		results := make([]SubmissionResult, len(executions))
		for i, e := range executions {
			results[i] = SubmissionResult{
				ExecutionID: e.ID,
				Status:      ItemFailed,
				Message:     desc.Message,
			}
		}
		return NewBatchResult(results)
	}

	return o.translator.Reconcile(resp, executions)
}

// persistStatuses 把成功条目的状态置为 SENT 并回填外部编号。
// 持久化失败只记日志，不改写已经确定的提交结果。
func (o *BulkOrchestrator) persistStatuses(ctx context.Context, result BatchResult, executions []*domain.Execution) {
	byID := make(map[int64]*domain.Execution, len(executions))
	for _, e := range executions {
		byID[e.ID] = e
	}

	var dirty []*domain.Execution
	for _, r := range result.Results {
		if !r.Succeeded() {
			continue
		}
		e, ok := byID[r.ExecutionID]
		if !ok {
			continue
		}
		e.ExecutionStatusID = domain.StatusSent
		if r.VenueServiceID != nil {
			e.ExecutionServiceID = r.VenueServiceID
		}
		dirty = append(dirty, e)
	}

	if len(dirty) == 0 {
		return
	}

	if err := o.executions.SaveExecutions(ctx, dirty); err != nil {
		o.logger.Error("持久化执行状态失败",
			zap.Int("count", len(dirty)),
			zap.Error(err),
		)
	}
}
