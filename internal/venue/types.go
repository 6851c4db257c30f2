package venue

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// 批量响应的整体状态取值。
const (
	ResponseStatusSuccess        = "SUCCESS"
	ResponseStatusPartialSuccess = "PARTIAL_SUCCESS"
	ResponseStatusFailed         = "FAILED"
)

// ExecutionRequest 是发送给执行服务的单条执行指令，
// 只携带已解析的外键编号与数量、价格、时间戳。
type ExecutionRequest struct {
	RequestID          string           `json:"requestId"`
	ExecutionTimestamp time.Time        `json:"executionTimestamp"`
	ExecutionStatusID  int              `json:"executionStatusId"`
	BlotterID          int              `json:"blotterId"`
	TradeTypeID        int              `json:"tradeTypeId"`
	TradeOrderID       int64            `json:"tradeOrderId"`
	DestinationID      int              `json:"destinationId"`
	QuantityOrdered    decimal.Decimal  `json:"quantityOrdered"`
	LimitPrice         *decimal.Decimal `json:"limitPrice,omitempty"`
}

// BatchRequest 是批量提交的线格式。
type BatchRequest struct {
	Executions []ExecutionRequest `json:"executions"`
}

// ExecutionView 是执行服务返回的执行记录视图。
type ExecutionView struct {
	ID                int64  `json:"id"`
	ExecutionStatus   string `json:"executionStatus"`
	Version           int    `json:"version"`
}

// ExecutionResult 是批量响应中的单条结果，通过 RequestIndex
// 与请求中的条目按序号对应。
type ExecutionResult struct {
	RequestIndex int            `json:"requestIndex"`
	Status       string         `json:"status"`
	Message      string         `json:"message"`
	Execution    *ExecutionView `json:"execution,omitempty"`
}

// BatchResponse 是批量提交的响应。Results 为空表示整体成败，
// 没有逐条明细。
type BatchResponse struct {
	Status  string            `json:"status"`
	Message string            `json:"message"`
	Results []ExecutionResult `json:"results,omitempty"`
}

// Successful 判断整体状态是否为成功。
func (r *BatchResponse) Successful() bool {
	return r.Status == ResponseStatusSuccess
}

// Service 抽象外部执行服务，方便在测试中替换为桩实现。
type Service interface {
	SubmitBatch(ctx context.Context, req BatchRequest) (*BatchResponse, error)
	SubmitExecution(ctx context.Context, req ExecutionRequest) (*ExecutionResult, error)
}
