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

// ExecutionRepository 负责执行记录的读写。
// 每个写操作都在自己的短事务中完成，外部网络调用从不持有锁。
type ExecutionRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewExecutionRepository 构造执行记录仓库。
func NewExecutionRepository(db *sql.DB, logger *zap.Logger) *ExecutionRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExecutionRepository{db: db, logger: logger}
}

const executionColumns = `id, execution_timestamp, quantity_ordered, quantity_placed,
	quantity_filled, limit_price, execution_service_id, execution_status_id,
	blotter_id, trade_type_id, trade_order_id, destination_id, version`

// GetExecution 按编号加载执行记录，不存在时返回 domain.ErrNotFound。
func (r *ExecutionRepository) GetExecution(ctx context.Context, id int64) (*domain.Execution, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+executionColumns+` FROM execution WHERE id = ?`, id)
	return scanExecution(row)
}

// GetExecutionWithRelations 加载执行记录并解析全部关联字典项与母订单。
func (r *ExecutionRepository) GetExecutionWithRelations(ctx context.Context, id int64) (*domain.Execution, error) {
	e, err := r.GetExecution(ctx, id)
	if err != nil {
		return nil, err
	}

	row := r.db.QueryRowContext(ctx,
		`SELECT id, abbreviation, description, version FROM execution_status WHERE id = ?`,
		e.ExecutionStatusID)
	status := &domain.ExecutionStatus{}
	if err := row.Scan(&status.ID, &status.Abbreviation, &status.Description, &status.Version); err != nil {
		return nil, fmt.Errorf("加载执行状态失败: %w", err)
	}
	e.ExecutionStatus = status

	row = r.db.QueryRowContext(ctx,
		`SELECT id, abbreviation, description, version FROM trade_type WHERE id = ?`,
		e.TradeTypeID)
	tt := &domain.TradeType{}
	if err := row.Scan(&tt.ID, &tt.Abbreviation, &tt.Description, &tt.Version); err != nil {
		return nil, fmt.Errorf("加载交易类型失败: %w", err)
	}
	e.TradeType = tt

	row = r.db.QueryRowContext(ctx,
		`SELECT id, abbreviation, description, version FROM destination WHERE id = ?`,
		e.DestinationID)
	dest := &domain.Destination{}
	if err := row.Scan(&dest.ID, &dest.Abbreviation, &dest.Description, &dest.Version); err != nil {
		return nil, fmt.Errorf("加载执行目的地失败: %w", err)
	}
	e.Destination = dest

	row = r.db.QueryRowContext(ctx,
		`SELECT id, abbreviation, name, version FROM blotter WHERE id = ?`,
		e.BlotterID)
	blotter := &domain.Blotter{}
	if err := row.Scan(&blotter.ID, &blotter.Abbreviation, &blotter.Name, &blotter.Version); err != nil {
		return nil, fmt.Errorf("加载交易分组失败: %w", err)
	}
	e.Blotter = blotter

	order, err := scanTradeOrder(r.db.QueryRowContext(ctx,
		`SELECT `+tradeOrderColumns+` FROM trade_order WHERE id = ?`, e.TradeOrderID))
	if err != nil {
		return nil, fmt.Errorf("加载母订单失败: %w", err)
	}
	e.TradeOrder = order

	return e, nil
}

// CreateExecution 在独立短事务中插入执行记录并回填自增编号。
func (r *ExecutionRepository) CreateExecution(ctx context.Context, e *domain.Execution) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("开启事务失败: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO execution (execution_timestamp, quantity_ordered, quantity_placed,
			quantity_filled, limit_price, execution_service_id, execution_status_id,
			blotter_id, trade_type_id, trade_order_id, destination_id, version)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`,
		e.ExecutionTimestamp.UTC().Format(time.RFC3339Nano),
		e.QuantityOrdered.String(),
		e.QuantityPlaced.String(),
		e.QuantityFilled.String(),
		nullDecimal(e.LimitPrice),
		nullInt64(e.ExecutionServiceID),
		e.ExecutionStatusID,
		e.BlotterID,
		e.TradeTypeID,
		e.TradeOrderID,
		e.DestinationID,
	)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("插入执行记录失败: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("读取自增编号失败: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("提交事务失败: %w", err)
	}

	e.ID = id
	e.Version = 1
	return nil
}

// SaveExecution 以乐观锁更新执行记录，版本不匹配时返回 ErrVersionConflict。
func (r *ExecutionRepository) SaveExecution(ctx context.Context, e *domain.Execution) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("开启事务失败: %w", err)
	}

	if err := saveExecutionTx(ctx, tx, e); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("提交事务失败: %w", err)
	}

	e.Version++
	return nil
}

// SaveExecutions 在一个事务中批量更新执行记录。
func (r *ExecutionRepository) SaveExecutions(ctx context.Context, executions []*domain.Execution) error {
	if len(executions) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("开启事务失败: %w", err)
	}

	for _, e := range executions {
		if err := saveExecutionTx(ctx, tx, e); err != nil {
			_ = tx.Rollback()
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("提交事务失败: %w", err)
	}

	for _, e := range executions {
		e.Version++
	}
	return nil
}

func saveExecutionTx(ctx context.Context, tx *sql.Tx, e *domain.Execution) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE execution SET execution_timestamp = ?, quantity_ordered = ?,
			quantity_placed = ?, quantity_filled = ?, limit_price = ?,
			execution_service_id = ?, execution_status_id = ?, version = version + 1
		 WHERE id = ? AND version = ?`,
		e.ExecutionTimestamp.UTC().Format(time.RFC3339Nano),
		e.QuantityOrdered.String(),
		e.QuantityPlaced.String(),
		e.QuantityFilled.String(),
		nullDecimal(e.LimitPrice),
		nullInt64(e.ExecutionServiceID),
		e.ExecutionStatusID,
		e.ID,
		e.Version,
	)
	if err != nil {
		return fmt.Errorf("更新执行记录失败: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("读取影响行数失败: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("执行记录 %d: %w", e.ID, domain.ErrVersionConflict)
	}
	return nil
}

// DeleteExecution 在独立短事务中删除执行记录。
// 记录不存在时返回 deleted=false 而非错误，补偿路径依赖该幂等性。
func (r *ExecutionRepository) DeleteExecution(ctx context.Context, id int64) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("开启事务失败: %w", err)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM execution WHERE id = ?`, id)
	if err != nil {
		_ = tx.Rollback()
		return false, fmt.Errorf("删除执行记录失败: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		_ = tx.Rollback()
		return false, fmt.Errorf("读取影响行数失败: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("提交事务失败: %w", err)
	}

	return affected > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExecution(row rowScanner) (*domain.Execution, error) {
	var (
		e         domain.Execution
		ts        string
		ordered   string
		placed    string
		filled    string
		limit     sql.NullString
		serviceID sql.NullInt64
	)

	err := row.Scan(&e.ID, &ts, &ordered, &placed, &filled, &limit, &serviceID,
		&e.ExecutionStatusID, &e.BlotterID, &e.TradeTypeID, &e.TradeOrderID,
		&e.DestinationID, &e.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("解析执行记录失败: %w", err)
	}

	if e.ExecutionTimestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
		return nil, fmt.Errorf("解析执行时间失败: %w", err)
	}
	if e.QuantityOrdered, err = decimal.NewFromString(ordered); err != nil {
		return nil, fmt.Errorf("解析下单数量失败: %w", err)
	}
	if e.QuantityPlaced, err = decimal.NewFromString(placed); err != nil {
		return nil, fmt.Errorf("解析已提交数量失败: %w", err)
	}
	if e.QuantityFilled, err = decimal.NewFromString(filled); err != nil {
		return nil, fmt.Errorf("解析已成交数量失败: %w", err)
	}
	if limit.Valid {
		price, perr := decimal.NewFromString(limit.String)
		if perr != nil {
			return nil, fmt.Errorf("解析限价失败: %w", perr)
		}
		e.LimitPrice = &price
	}
	if serviceID.Valid {
		v := serviceID.Int64
		e.ExecutionServiceID = &v
	}

	return &e, nil
}

func nullDecimal(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return d.String()
}

func nullInt64(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}
