package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/kasbench/globeco-trade-service-sub000/internal/domain"
)

// ReferenceRepository 提供字典表查询。字典项极少变化，
// 首次命中后缓存在内存里。
type ReferenceRepository struct {
	db *sql.DB

	mu           sync.RWMutex
	destinations map[int]*domain.Destination
	statuses     map[int]*domain.ExecutionStatus
	tradeTypes   map[int]*domain.TradeType
}

// NewReferenceRepository 构造字典仓库。
func NewReferenceRepository(db *sql.DB) *ReferenceRepository {
	return &ReferenceRepository{
		db:           db,
		destinations: make(map[int]*domain.Destination),
		statuses:     make(map[int]*domain.ExecutionStatus),
		tradeTypes:   make(map[int]*domain.TradeType),
	}
}

// ResolveDestination 按编号解析执行目的地。
func (r *ReferenceRepository) ResolveDestination(ctx context.Context, id int) (*domain.Destination, error) {
	r.mu.RLock()
	if d, ok := r.destinations[id]; ok {
		r.mu.RUnlock()
		return d, nil
	}
	r.mu.RUnlock()

	row := r.db.QueryRowContext(ctx,
		`SELECT id, abbreviation, description, version FROM destination WHERE id = ?`, id)
	d := &domain.Destination{}
	if err := row.Scan(&d.ID, &d.Abbreviation, &d.Description, &d.Version); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("解析执行目的地失败: %w", err)
	}

	r.mu.Lock()
	r.destinations[id] = d
	r.mu.Unlock()
	return d, nil
}

// ResolveExecutionStatus 按编号解析执行状态。
func (r *ReferenceRepository) ResolveExecutionStatus(ctx context.Context, id int) (*domain.ExecutionStatus, error) {
	r.mu.RLock()
	if s, ok := r.statuses[id]; ok {
		r.mu.RUnlock()
		return s, nil
	}
	r.mu.RUnlock()

	row := r.db.QueryRowContext(ctx,
		`SELECT id, abbreviation, description, version FROM execution_status WHERE id = ?`, id)
	s := &domain.ExecutionStatus{}
	if err := row.Scan(&s.ID, &s.Abbreviation, &s.Description, &s.Version); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("解析执行状态失败: %w", err)
	}

	r.mu.Lock()
	r.statuses[id] = s
	r.mu.Unlock()
	return s, nil
}

// ResolveTradeType 按编号解析交易类型。
func (r *ReferenceRepository) ResolveTradeType(ctx context.Context, id int) (*domain.TradeType, error) {
	r.mu.RLock()
	if t, ok := r.tradeTypes[id]; ok {
		r.mu.RUnlock()
		return t, nil
	}
	r.mu.RUnlock()

	row := r.db.QueryRowContext(ctx,
		`SELECT id, abbreviation, description, version FROM trade_type WHERE id = ?`, id)
	t := &domain.TradeType{}
	if err := row.Scan(&t.ID, &t.Abbreviation, &t.Description, &t.Version); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("解析交易类型失败: %w", err)
	}

	r.mu.Lock()
	r.tradeTypes[id] = t
	r.mu.Unlock()
	return t, nil
}
