package deadletter

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kasbench/globeco-trade-service-sub000/internal/domain"
)

// Sink 是补偿失败事件的死信出口。写入本身可能失败，
// 调用方必须把这种失败当作严重事故处理。
type Sink interface {
	Send(ctx context.Context, event domain.CompensationFailedEvent) error
}

// SQLiteSink 把死信事件写入 compensation_dead_letter 表，
// 按时间戳索引，供人工按执行编号或时间检索。
type SQLiteSink struct {
	db *sql.DB
}

var _ Sink = (*SQLiteSink)(nil)

// NewSQLiteSink 构造数据库死信出口。表结构随 store 的建表脚本创建。
func NewSQLiteSink(db *sql.DB) *SQLiteSink {
	return &SQLiteSink{db: db}
}

// Send 在独立事务中追加一条死信记录。
func (s *SQLiteSink) Send(ctx context.Context, event domain.CompensationFailedEvent) error {
	if event.FailureTimestamp.IsZero() {
		event.FailureTimestamp = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO compensation_dead_letter
			(execution_id, trade_order_id, original_quantity_sent, original_submitted,
			 error_message, failure_timestamp)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		event.ExecutionID,
		event.TradeOrderID,
		event.OriginalQuantitySent.String(),
		boolToInt(event.OriginalSubmittedFlag),
		event.ErrorMessage,
		event.FailureTimestamp.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("写入死信记录失败: %w", err)
	}
	return nil
}

// LogSink 把死信事件作为结构化日志输出，
// 用于测试以及数据库不可用时的降级模式。
type LogSink struct {
	logger *zap.Logger
}

var _ Sink = (*LogSink)(nil)

// NewLogSink 构造日志死信出口。
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Send 输出一条 ERROR 级日志，从不失败。
func (s *LogSink) Send(_ context.Context, event domain.CompensationFailedEvent) error {
	s.logger.Error("补偿失败事件进入死信",
		zap.Int64("executionId", event.ExecutionID),
		zap.Int64("tradeOrderId", event.TradeOrderID),
		zap.String("originalQuantitySent", event.OriginalQuantitySent.String()),
		zap.Bool("originalSubmitted", event.OriginalSubmittedFlag),
		zap.String("error", event.ErrorMessage),
		zap.Time("failedAt", event.FailureTimestamp),
	)
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
