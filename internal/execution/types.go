package execution

import (
	"context"

	"github.com/kasbench/globeco-trade-service-sub000/internal/domain"
)

// ItemStatus 是单条执行提交的最终状态。
type ItemStatus string

const (
	ItemSuccess        ItemStatus = "SUCCESS"
	ItemFailed         ItemStatus = "FAILED"
	ItemRetryExhausted ItemStatus = "RETRY_EXHAUSTED"
)

// OverallStatus 是批量提交的聚合状态，始终可由成功/失败计数推导。
type OverallStatus string

const (
	OverallSuccess        OverallStatus = "SUCCESS"
	OverallPartialSuccess OverallStatus = "PARTIAL_SUCCESS"
	OverallFailed         OverallStatus = "FAILED"
)

// SubmissionResult 是单条执行的提交结果。
type SubmissionResult struct {
	ExecutionID    int64
	Status         ItemStatus
	Message        string
	VenueServiceID *int64
}

// Succeeded 判断该条结果是否成功。
func (r SubmissionResult) Succeeded() bool {
	return r.Status == ItemSuccess
}

// BatchResult 是批量提交的聚合结果，构造后不再修改。
// 批内结果顺序与输入顺序一致。
type BatchResult struct {
	TotalRequested int
	Successful     int
	Failed         int
	Overall        OverallStatus
	Results        []SubmissionResult
}

// NewBatchResult 根据逐条结果推导计数与聚合状态。
func NewBatchResult(results []SubmissionResult) BatchResult {
	successful := 0
	for _, r := range results {
		if r.Succeeded() {
			successful++
		}
	}

	total := len(results)
	failed := total - successful

	return BatchResult{
		TotalRequested: total,
		Successful:     successful,
		Failed:         failed,
		Overall:        deriveOverall(successful, failed),
		Results:        results,
	}
}

func deriveOverall(successful, failed int) OverallStatus {
	switch {
	case failed == 0:
		return OverallSuccess
	case successful == 0:
		return OverallFailed
	default:
		return OverallPartialSuccess
	}
}

// ExecutionStore 是执行记录持久化的协作方接口。
type ExecutionStore interface {
	GetExecution(ctx context.Context, id int64) (*domain.Execution, error)
	GetExecutionWithRelations(ctx context.Context, id int64) (*domain.Execution, error)
	CreateExecution(ctx context.Context, e *domain.Execution) error
	SaveExecution(ctx context.Context, e *domain.Execution) error
	SaveExecutions(ctx context.Context, executions []*domain.Execution) error
	DeleteExecution(ctx context.Context, id int64) (bool, error)
}

// TradeOrderStore 是母订单持久化的协作方接口。
type TradeOrderStore interface {
	GetTradeOrder(ctx context.Context, id int64) (*domain.TradeOrder, error)
	SaveTradeOrder(ctx context.Context, o *domain.TradeOrder) error
}

// ReferenceStore 是字典表查询的协作方接口。
type ReferenceStore interface {
	ResolveDestination(ctx context.Context, id int) (*domain.Destination, error)
	ResolveExecutionStatus(ctx context.Context, id int) (*domain.ExecutionStatus, error)
	ResolveTradeType(ctx context.Context, id int) (*domain.TradeType, error)
}
