package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// QuantityTolerance 是数量比较时允许的舍入误差。
// 已发送数量与订单总量的差距小于该值时视为已全部提交。
var QuantityTolerance = decimal.NewFromFloat(0.01)

// 执行状态字典的固定编号。
const (
	StatusNew   = 1
	StatusSent  = 2
	StatusWork  = 3
	StatusFull  = 4
	StatusPart  = 5
	StatusHold  = 6
	StatusCncl  = 7
	StatusCncld = 8
	StatusCpart = 9
	StatusDel   = 10
)

// 订单方向到交易类型编号的固定映射。
var tradeTypeByOrderType = map[string]int{
	"BUY":   1,
	"SELL":  2,
	"SHORT": 3,
	"COVER": 4,
	"EXRC":  5,
}

// TradeTypeIDForOrderType 返回订单方向对应的交易类型编号。
// 未知方向返回 ok=false，由上层当作校验错误处理。
func TradeTypeIDForOrderType(orderType string) (int, bool) {
	id, ok := tradeTypeByOrderType[orderType]
	return id, ok
}

// Execution 表示派生自交易订单、待发送到外部执行服务的执行指令。
// ExecutionServiceID 仅在外部服务接受后回填，空值表示尚未被外部接受。
type Execution struct {
	ID                 int64
	ExecutionTimestamp time.Time
	QuantityOrdered    decimal.Decimal
	QuantityPlaced     decimal.Decimal
	QuantityFilled     decimal.Decimal
	LimitPrice         *decimal.Decimal
	ExecutionServiceID *int64
	Version            int

	ExecutionStatusID int
	BlotterID         int
	TradeTypeID       int
	TradeOrderID      int64
	DestinationID     int

	// 以下指针仅在 GetExecutionWithRelations 加载后可用。
	ExecutionStatus *ExecutionStatus
	Blotter         *Blotter
	TradeType       *TradeType
	TradeOrder      *TradeOrder
	Destination     *Destination
}

// Submitted 判断该执行是否已被外部服务接受。
func (e *Execution) Submitted() bool {
	return e.ExecutionServiceID != nil
}

// TradeOrder 表示正在被拆分执行的母订单。
type TradeOrder struct {
	ID             int64
	OrderID        int64
	PortfolioID    string
	SecurityID     string
	OrderType      string
	Quantity       decimal.Decimal
	QuantitySent   decimal.Decimal
	LimitPrice     *decimal.Decimal
	TradeTimestamp time.Time
	BlotterID      int
	Submitted      bool
	Version        int
}

// RemainingQuantity 返回尚未送出执行的数量。
func (o *TradeOrder) RemainingQuantity() decimal.Decimal {
	return o.Quantity.Sub(o.QuantitySent)
}

// QuantityScale 返回订单数量声明的小数位数，用于累计数量的舍入。
func (o *TradeOrder) QuantityScale() int32 {
	if exp := o.Quantity.Exponent(); exp < 0 {
		return -exp
	}
	return 0
}

// FullySent 判断累计送出数量是否已在容差范围内达到订单总量。
func (o *TradeOrder) FullySent() bool {
	return o.RemainingQuantity().Abs().LessThanOrEqual(QuantityTolerance)
}

// TradeOrderState 是提交尝试开始前的订单快照，仅用于补偿回滚。
type TradeOrderState struct {
	TradeOrderID int64
	QuantitySent decimal.Decimal
	Submitted    bool
}

// Snapshot 生成订单当前状态的补偿快照。
func (o *TradeOrder) Snapshot() TradeOrderState {
	return TradeOrderState{
		TradeOrderID: o.ID,
		QuantitySent: o.QuantitySent,
		Submitted:    o.Submitted,
	}
}

// ExecutionStatus 是执行状态字典项。
type ExecutionStatus struct {
	ID           int
	Abbreviation string
	Description  string
	Version      int
}

// TradeType 是交易类型字典项。
type TradeType struct {
	ID           int
	Abbreviation string
	Description  string
	Version      int
}

// Destination 是执行目的地（外部场所）字典项。
type Destination struct {
	ID           int
	Abbreviation string
	Description  string
	Version      int
}

// Blotter 是交易分组字典项。
type Blotter struct {
	ID           int
	Abbreviation string
	Name         string
	Version      int
}

// CompensationFailedEvent 在自动回滚本身失败时生成，写入死信存储，
// 是系统中唯一需要人工介入的产物。
type CompensationFailedEvent struct {
	ExecutionID           int64
	TradeOrderID          int64
	OriginalQuantitySent  decimal.Decimal
	OriginalSubmittedFlag bool
	ErrorMessage          string
	FailureTimestamp      time.Time
}
