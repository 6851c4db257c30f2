package execution

import (
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kasbench/globeco-trade-service-sub000/internal/domain"
	"github.com/kasbench/globeco-trade-service-sub000/internal/venue"
)

// 消息关键字表。永久性失败先于瞬时失败判断：
// 一条消息同时命中两类关键字时按永久处理，与历史行为保持一致。
var (
	permanentKeywords = []string{
		"validation", "invalid", "not found", "duplicate", "unauthorized", "forbidden",
	}
	transientKeywords = []string{
		"timeout", "connection", "unavailable", "internal server error", "temporary",
	}
)

// BatchTranslator 负责内部执行记录与执行服务线格式之间的转换，
// 以及批量响应到逐条结果的回对。
type BatchTranslator struct {
	logger *zap.Logger
}

// NewBatchTranslator 构造转换器。
func NewBatchTranslator(logger *zap.Logger) *BatchTranslator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BatchTranslator{logger: logger}
}

// BuildBatchRequest 把执行记录列表转换为批量请求，空列表是输入错误。
func (t *BatchTranslator) BuildBatchRequest(executions []*domain.Execution) (venue.BatchRequest, error) {
	if len(executions) == 0 {
		return venue.BatchRequest{}, domain.NewValidationError("执行记录列表为空")
	}

	items := make([]venue.ExecutionRequest, 0, len(executions))
	for _, e := range executions {
		items = append(items, buildExecutionRequest(e))
	}

	return venue.BatchRequest{Executions: items}, nil
}

func buildExecutionRequest(e *domain.Execution) venue.ExecutionRequest {
	return venue.ExecutionRequest{
		RequestID:          uuid.NewString(),
		ExecutionTimestamp: e.ExecutionTimestamp,
		ExecutionStatusID:  e.ExecutionStatusID,
		BlotterID:          e.BlotterID,
		TradeTypeID:        e.TradeTypeID,
		TradeOrderID:       e.TradeOrderID,
		DestinationID:      e.DestinationID,
		QuantityOrdered:    e.QuantityOrdered,
		LimitPrice:         e.LimitPrice,
	}
}

// Reconcile 把批量响应回对到原始执行记录，结果顺序与输入一致。
// 响应没有逐条明细时按整体成败处理；
// 明细中对不上序号的条目记日志后跳过，绝不默默计为成功。
func (t *BatchTranslator) Reconcile(resp *venue.BatchResponse, originals []*domain.Execution) BatchResult {
	results := make([]SubmissionResult, len(originals))

	if resp == nil || len(resp.Results) == 0 {
		status := ItemFailed
		message := ""
		if resp != nil {
			message = resp.Message
			if resp.Successful() {
				status = ItemSuccess
			}
		}
		for i, e := range originals {
			results[i] = SubmissionResult{
				ExecutionID: e.ID,
				Status:      status,
				Message:     message,
			}
		}
		return NewBatchResult(results)
	}

	for i, e := range originals {
		results[i] = SubmissionResult{
			ExecutionID: e.ID,
			Status:      ItemFailed,
			Message:     "执行服务未返回该条结果",
		}
	}

	for _, item := range resp.Results {
		if item.RequestIndex < 0 || item.RequestIndex >= len(originals) {
			t.logger.Warn("批量响应包含无法回对的条目",
				zap.Int("requestIndex", item.RequestIndex),
				zap.Int("batchSize", len(originals)),
				zap.String("status", item.Status),
			)
			continue
		}

		r := SubmissionResult{
			ExecutionID: originals[item.RequestIndex].ID,
			Message:     item.Message,
		}
		if item.Status == venue.ResponseStatusSuccess {
			r.Status = ItemSuccess
			if item.Execution != nil {
				id := item.Execution.ID
				r.VenueServiceID = &id
			}
		} else {
			r.Status = ItemFailed
		}
		results[item.RequestIndex] = r
	}

	return NewBatchResult(results)
}

// ExtractRetryable 从批量结果中挑出值得重试的失败条目。
// 消息缺失时默认可重试：信息不足不应让一条执行永久沉没。
func (t *BatchTranslator) ExtractRetryable(result BatchResult, originals []*domain.Execution) []*domain.Execution {
	byID := make(map[int64]*domain.Execution, len(originals))
	for _, e := range originals {
		byID[e.ID] = e
	}

	var retryable []*domain.Execution
	for _, r := range result.Results {
		if r.Status != ItemFailed {
			continue
		}
		if !MessageRetryable(r.Message) {
			continue
		}
		if e, ok := byID[r.ExecutionID]; ok {
			retryable = append(retryable, e)
		}
	}

	return retryable
}

// MessageRetryable 按关键字判断一条失败消息是否值得重试。
func MessageRetryable(message string) bool {
	if strings.TrimSpace(message) == "" {
		return true
	}

	lower := strings.ToLower(message)
	for _, kw := range permanentKeywords {
		if strings.Contains(lower, kw) {
			return false
		}
	}
	for _, kw := range transientKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}

	return false
}
