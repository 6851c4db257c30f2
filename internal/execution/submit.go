package execution

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/kasbench/globeco-trade-service-sub000/internal/domain"
	"github.com/kasbench/globeco-trade-service-sub000/internal/errclass"
	"github.com/kasbench/globeco-trade-service-sub000/internal/venue"
)

// SubmissionState 是单次母订单提交的状态机状态。
type SubmissionState string

const (
	StateLoaded              SubmissionState = "LOADED"
	StateExecutionCreated    SubmissionState = "EXECUTION_CREATED"
	StateQuantityUpdated     SubmissionState = "QUANTITY_UPDATED"
	StateExternallySubmitted SubmissionState = "EXTERNALLY_SUBMITTED"
	StateCompensating        SubmissionState = "COMPENSATING"
	StateCompensated         SubmissionState = "COMPENSATED"
)

// VenueRejectionError 表示外部服务以校验/权限类原因拒绝了请求，
// 调用方应当修正请求而不是重试。
type VenueRejectionError struct {
	Message      string
	Compensation *CompensationHandle
}

func (e *VenueRejectionError) Error() string {
	return fmt.Sprintf("执行服务拒绝提交: %s", e.Message)
}

// SubmissionError 表示提交因基础设施原因失败，稍后重试可能成功。
type SubmissionError struct {
	Message      string
	Cause        error
	Compensation *CompensationHandle
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("提交失败: %s", e.Message)
}

func (e *SubmissionError) Unwrap() error {
	return e.Cause
}

// SubmitRequest 描述一次母订单提交。
type SubmitRequest struct {
	TradeOrderID  int64
	Quantity      decimal.Decimal
	DestinationID int
	// AutoSubmit 为真时立即调用外部执行服务，
	// 否则只创建执行记录并更新订单数量。
	AutoSubmit bool
}

// SubmissionCoordinator 驱动单个母订单提交的事务编排：
// 创建执行记录、更新订单数量各自独立短事务，外部调用不持有任何事务，
// 失败时交给补偿协调器回滚。拆分成短事务是为了让数据库锁的持有时间
// 只覆盖两次本地写入，不被外部调用的不可控延迟拉长。
type SubmissionCoordinator struct {
	orders       TradeOrderStore
	executions   ExecutionStore
	refs         ReferenceStore
	venue        venue.Service
	compensation *CompensationCoordinator
	logger       *zap.Logger
}

// NewSubmissionCoordinator 构造提交协调器。
func NewSubmissionCoordinator(orders TradeOrderStore, executions ExecutionStore, refs ReferenceStore, svc venue.Service, comp *CompensationCoordinator, logger *zap.Logger) *SubmissionCoordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubmissionCoordinator{
		orders:       orders,
		executions:   executions,
		refs:         refs,
		venue:        svc,
		compensation: comp,
		logger:       logger,
	}
}

// SubmitTradeOrder 为母订单创建并提交一条执行。
// 校验失败立即返回且不产生任何副作用；外部调用失败时触发异步补偿，
// 并以类型化错误区分"修正请求"与"稍后重试"。
func (c *SubmissionCoordinator) SubmitTradeOrder(ctx context.Context, req SubmitRequest) (*domain.Execution, error) {
	order, err := c.orders.GetTradeOrder(ctx, req.TradeOrderID)
	if err != nil {
		return nil, fmt.Errorf("加载母订单 %d 失败: %w", req.TradeOrderID, err)
	}
	state := StateLoaded

	tradeTypeID, err := c.validate(ctx, order, req)
	if err != nil {
		return nil, err
	}

	snapshot := order.Snapshot()

	execution := &domain.Execution{
		ExecutionTimestamp: time.Now().UTC(),
		QuantityOrdered:    req.Quantity,
		QuantityPlaced:     decimal.Zero,
		QuantityFilled:     decimal.Zero,
		LimitPrice:         order.LimitPrice,
		ExecutionStatusID:  domain.StatusNew,
		BlotterID:          order.BlotterID,
		TradeTypeID:        tradeTypeID,
		TradeOrderID:       order.ID,
		DestinationID:      req.DestinationID,
	}

	// 第一段短事务：插入执行记录。
	if err := c.executions.CreateExecution(ctx, execution); err != nil {
		return nil, fmt.Errorf("创建执行记录失败: %w", err)
	}
	state = c.transition(order.ID, state, StateExecutionCreated)

	// 第二段短事务：累加已发送数量并按容差判定提交标记。
	newSent := order.QuantitySent.Add(req.Quantity).Round(order.QuantityScale())
	order.QuantitySent = newSent
	order.Submitted = order.Quantity.Sub(newSent).Abs().LessThanOrEqual(domain.QuantityTolerance)
	if err := c.orders.SaveTradeOrder(ctx, order); err != nil {
		// 数量更新失败时执行记录已经落库，同样需要回滚。
		state = c.transition(order.ID, state, StateCompensating)
		handle := c.compensation.Compensate(execution, snapshot, err)
		c.transition(order.ID, state, StateCompensated)
		return nil, &SubmissionError{
			Message:      "更新母订单数量失败",
			Cause:        err,
			Compensation: handle,
		}
	}
	state = c.transition(order.ID, state, StateQuantityUpdated)

	if !req.AutoSubmit {
		return execution, nil
	}

	// 外部调用不在任何事务内。
	result, submitErr := c.venue.SubmitExecution(ctx, buildExecutionRequest(execution))
	if submitErr == nil && result == nil {
		submitErr = fmt.Errorf("执行服务返回空响应")
	}
	if submitErr == nil && result.Status != venue.ResponseStatusSuccess {
		submitErr = fmt.Errorf("执行服务返回 %s: %s", result.Status, result.Message)
	}

	if submitErr != nil {
		state = c.transition(order.ID, state, StateCompensating)
		handle := c.compensation.Compensate(execution, snapshot, submitErr)
		c.transition(order.ID, state, StateCompensated)

		desc := errclass.Classify(submitErr, map[string]any{
			"tradeOrderId": order.ID,
			"executionId":  execution.ID,
		})
		switch desc.Category {
		case errclass.CategoryValidation, errclass.CategoryAuth, errclass.CategoryAuthz, errclass.CategoryClient:
			return nil, &VenueRejectionError{
				Message:      submitErr.Error(),
				Compensation: handle,
			}
		default:
			return nil, &SubmissionError{
				Message:      submitErr.Error(),
				Cause:        submitErr,
				Compensation: handle,
			}
		}
	}

	if result.Execution != nil {
		id := result.Execution.ID
		execution.ExecutionServiceID = &id
	}
	execution.ExecutionStatusID = domain.StatusSent
	if err := c.executions.SaveExecution(ctx, execution); err != nil {
		c.logger.Error("回填外部编号失败",
			zap.Int64("executionId", execution.ID),
			zap.Error(err),
		)
	}
	c.transition(order.ID, state, StateExternallySubmitted)

	// 重新加载，拿到外部服务回填后的最新版本。
	fresh, err := c.executions.GetExecution(ctx, execution.ID)
	if err != nil {
		c.logger.Warn("重载执行记录失败，返回本地副本",
			zap.Int64("executionId", execution.ID),
			zap.Error(err),
		)
		return execution, nil
	}
	return fresh, nil
}

func (c *SubmissionCoordinator) validate(ctx context.Context, order *domain.TradeOrder, req SubmitRequest) (int, error) {
	if !req.Quantity.IsPositive() {
		return 0, domain.NewValidationError("提交数量必须为正")
	}

	available := order.RemainingQuantity()
	if req.Quantity.Sub(available).GreaterThan(domain.QuantityTolerance) {
		return 0, domain.NewValidationError(fmt.Sprintf(
			"提交数量 %s 超过可用数量 %s", req.Quantity, available))
	}

	tradeTypeID, ok := domain.TradeTypeIDForOrderType(order.OrderType)
	if !ok {
		return 0, domain.NewValidationError(fmt.Sprintf("未知订单方向 %q", order.OrderType))
	}

	if _, err := c.refs.ResolveDestination(ctx, req.DestinationID); err != nil {
		return 0, domain.NewValidationError(fmt.Sprintf("执行目的地 %d 无法解析", req.DestinationID))
	}

	return tradeTypeID, nil
}

func (c *SubmissionCoordinator) transition(tradeOrderID int64, from, to SubmissionState) SubmissionState {
	c.logger.Debug("提交状态迁移",
		zap.Int64("tradeOrderId", tradeOrderID),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	)
	return to
}
