package execution

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kasbench/globeco-trade-service-sub000/internal/domain"
)

func waitCompensation(t *testing.T, h *CompensationHandle) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return h.Wait(ctx)
}

func TestCompensate_RestoresSnapshotExactly(t *testing.T) {
	order := &domain.TradeOrder{
		ID:           10,
		Quantity:     decimal.NewFromInt(500),
		QuantitySent: decimal.NewFromInt(300),
		Submitted:    true,
		Version:      4,
	}
	snapshot := domain.TradeOrderState{
		TradeOrderID: 10,
		QuantitySent: decimal.NewFromInt(200),
		Submitted:    false,
	}
	execution := makeExecution(1)

	execStore := newMockExecutionStore(execution)
	orderStore := newMockTradeOrderStore(order)
	sink := &mockSink{}
	c := NewCompensationCoordinator(execStore, orderStore, sink, 2, nil, nil)

	if err := waitCompensation(t, c.Compensate(execution, snapshot, errors.New("venue rejected"))); err != nil {
		t.Fatalf("compensation failed: %v", err)
	}

	if _, ok := execStore.executions[execution.ID]; ok {
		t.Errorf("execution record should be deleted")
	}
	restored := orderStore.current(10)
	if !restored.QuantitySent.Equal(snapshot.QuantitySent) {
		t.Errorf("quantity_sent = %s, want snapshot value %s", restored.QuantitySent, snapshot.QuantitySent)
	}
	if restored.Submitted != snapshot.Submitted {
		t.Errorf("submitted = %v, want snapshot value %v", restored.Submitted, snapshot.Submitted)
	}
	if sink.sentCount() != 0 {
		t.Errorf("successful compensation must not emit a dead-letter event")
	}
}

func TestCompensate_MissingExecutionIsIdempotent(t *testing.T) {
	order := &domain.TradeOrder{ID: 10, Quantity: decimal.NewFromInt(100)}
	execution := makeExecution(1)

	// 执行记录不在库中，删除返回 not-deleted，不算失败。
	execStore := newMockExecutionStore()
	orderStore := newMockTradeOrderStore(order)
	sink := &mockSink{}
	c := NewCompensationCoordinator(execStore, orderStore, sink, 1, nil, nil)

	if err := waitCompensation(t, c.Compensate(execution, order.Snapshot(), errors.New("timeout"))); err != nil {
		t.Fatalf("missing execution must not fail compensation: %v", err)
	}
	if sink.sentCount() != 0 {
		t.Errorf("no dead-letter expected for idempotent delete")
	}
}

func TestCompensate_StepFailureEmitsExactlyOneDeadLetter(t *testing.T) {
	// 订单恢复失败，事件恰好进入一次死信出口。
	execution := makeExecution(1)
	execStore := newMockExecutionStore(execution)
	orderStore := newMockTradeOrderStore()
	orderStore.getErr = errors.New("database is locked")
	sink := &mockSink{}
	c := NewCompensationCoordinator(execStore, orderStore, sink, 1, nil, nil)

	snapshot := domain.TradeOrderState{
		TradeOrderID: 10,
		QuantitySent: decimal.NewFromInt(50),
		Submitted:    true,
	}
	cause := errors.New("venue rejected")

	err := waitCompensation(t, c.Compensate(execution, snapshot, cause))
	if err == nil {
		t.Fatalf("expected compensation failure")
	}
	if sink.sentCount() != 1 {
		t.Fatalf("expected exactly 1 dead-letter event, got %d", sink.sentCount())
	}

	event := sink.events[0]
	if event.ExecutionID != execution.ID || event.TradeOrderID != snapshot.TradeOrderID {
		t.Errorf("event identity mismatch: %+v", event)
	}
	if !event.OriginalQuantitySent.Equal(snapshot.QuantitySent) || event.OriginalSubmittedFlag != snapshot.Submitted {
		t.Errorf("event must carry the snapshot values: %+v", event)
	}
	if event.ErrorMessage == "" {
		t.Errorf("event must describe the failure")
	}
	if event.FailureTimestamp.IsZero() {
		t.Errorf("event must carry a failure timestamp")
	}
}

func TestCompensate_SinkFailureSurfacesBothErrors(t *testing.T) {
	execution := makeExecution(1)
	execStore := newMockExecutionStore(execution)
	execStore.deleteErr = errors.New("disk I/O error")
	orderStore := newMockTradeOrderStore()
	sink := &mockSink{err: errors.New("dead letter store unavailable")}
	c := NewCompensationCoordinator(execStore, orderStore, sink, 1, nil, nil)

	err := waitCompensation(t, c.Compensate(execution, domain.TradeOrderState{TradeOrderID: 10}, errors.New("timeout")))
	if err == nil {
		t.Fatalf("expected combined failure")
	}
	if !errors.Is(err, sink.err) {
		t.Errorf("sink error must be part of the returned error: %v", err)
	}
}

func TestCompensate_BoundedConcurrency(t *testing.T) {
	// 两个并发槽位，四个补偿任务都必须最终完成。
	execStore := newMockExecutionStore()
	orderStore := newMockTradeOrderStore(&domain.TradeOrder{ID: 10, Quantity: decimal.NewFromInt(100)})
	c := NewCompensationCoordinator(execStore, orderStore, &mockSink{}, 2, nil, nil)

	handles := make([]*CompensationHandle, 0, 4)
	for i := int64(1); i <= 4; i++ {
		handles = append(handles, c.Compensate(makeExecution(i), domain.TradeOrderState{TradeOrderID: 10}, errors.New("timeout")))
	}
	for _, h := range handles {
		if err := waitCompensation(t, h); err != nil {
			t.Fatalf("compensation failed: %v", err)
		}
	}
}
