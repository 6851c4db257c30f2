package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/kasbench/globeco-trade-service-sub000/internal/domain"
)

// TradeOrderRepository 负责母订单的读写。
type TradeOrderRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewTradeOrderRepository 构造母订单仓库。
func NewTradeOrderRepository(db *sql.DB, logger *zap.Logger) *TradeOrderRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TradeOrderRepository{db: db, logger: logger}
}

const tradeOrderColumns = `id, order_id, portfolio_id, security_id, order_type,
	quantity, quantity_sent, limit_price, trade_timestamp, blotter_id, submitted, version`

// GetTradeOrder 按编号加载母订单，不存在时返回 domain.ErrNotFound。
func (r *TradeOrderRepository) GetTradeOrder(ctx context.Context, id int64) (*domain.TradeOrder, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+tradeOrderColumns+` FROM trade_order WHERE id = ?`, id)
	return scanTradeOrder(row)
}

// SaveTradeOrder 以乐观锁更新母订单的累计数量与提交标记。
// 版本不匹配说明两个提交尝试在竞争，返回 ErrVersionConflict。
func (r *TradeOrderRepository) SaveTradeOrder(ctx context.Context, o *domain.TradeOrder) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("开启事务失败: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE trade_order SET quantity_sent = ?, submitted = ?, version = version + 1
		 WHERE id = ? AND version = ?`,
		o.QuantitySent.String(),
		boolToInt(o.Submitted),
		o.ID,
		o.Version,
	)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("更新母订单失败: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("读取影响行数失败: %w", err)
	}
	if affected == 0 {
		_ = tx.Rollback()
		return fmt.Errorf("母订单 %d: %w", o.ID, domain.ErrVersionConflict)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("提交事务失败: %w", err)
	}

	o.Version++
	return nil
}

func scanTradeOrder(row rowScanner) (*domain.TradeOrder, error) {
	var (
		o         domain.TradeOrder
		quantity  string
		sent      string
		limit     sql.NullString
		ts        string
		submitted int
	)

	err := row.Scan(&o.ID, &o.OrderID, &o.PortfolioID, &o.SecurityID, &o.OrderType,
		&quantity, &sent, &limit, &ts, &o.BlotterID, &submitted, &o.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("解析母订单失败: %w", err)
	}

	if o.Quantity, err = decimal.NewFromString(quantity); err != nil {
		return nil, fmt.Errorf("解析订单数量失败: %w", err)
	}
	if o.QuantitySent, err = decimal.NewFromString(sent); err != nil {
		return nil, fmt.Errorf("解析已发送数量失败: %w", err)
	}
	if limit.Valid {
		price, perr := decimal.NewFromString(limit.String)
		if perr != nil {
			return nil, fmt.Errorf("解析限价失败: %w", perr)
		}
		o.LimitPrice = &price
	}
	if o.TradeTimestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
		return nil, fmt.Errorf("解析订单时间失败: %w", err)
	}
	o.Submitted = submitted != 0

	return &o, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
