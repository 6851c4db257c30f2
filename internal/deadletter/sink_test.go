package deadletter

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kasbench/globeco-trade-service-sub000/internal/config"
	"github.com/kasbench/globeco-trade-service-sub000/internal/domain"
	"github.com/kasbench/globeco-trade-service-sub000/internal/store"
)

func sampleEvent() domain.CompensationFailedEvent {
	return domain.CompensationFailedEvent{
		ExecutionID:           42,
		TradeOrderID:          10,
		OriginalQuantitySent:  decimal.RequireFromString("150.5"),
		OriginalSubmittedFlag: true,
		ErrorMessage:          "restore trade order failed",
		FailureTimestamp:      time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestSQLiteSink_PersistsEvent(t *testing.T) {
	s, err := store.NewSQLite(config.DatabaseConfig{
		InMemory:     true,
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer s.Close()

	sink := NewSQLiteSink(s.DB())
	event := sampleEvent()
	if err := sink.Send(context.Background(), event); err != nil {
		t.Fatalf("send: %v", err)
	}

	row := s.DB().QueryRow(`SELECT execution_id, trade_order_id, original_quantity_sent,
		original_submitted, error_message, failure_timestamp FROM compensation_dead_letter`)
	var (
		executionID  int64
		tradeOrderID int64
		quantity     string
		submitted    int
		message      string
		ts           string
	)
	if err := row.Scan(&executionID, &tradeOrderID, &quantity, &submitted, &message, &ts); err != nil {
		t.Fatalf("scan: %v", err)
	}

	if executionID != event.ExecutionID || tradeOrderID != event.TradeOrderID {
		t.Errorf("identity mismatch: %d/%d", executionID, tradeOrderID)
	}
	if quantity != "150.5" || submitted != 1 {
		t.Errorf("snapshot mismatch: %s/%d", quantity, submitted)
	}
	if message != event.ErrorMessage {
		t.Errorf("message mismatch: %s", message)
	}
	parsed, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil || !parsed.Equal(event.FailureTimestamp) {
		t.Errorf("timestamp mismatch: %s (%v)", ts, err)
	}
}

func TestSQLiteSink_FillsMissingTimestamp(t *testing.T) {
	s, err := store.NewSQLite(config.DatabaseConfig{
		InMemory:     true,
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer s.Close()

	sink := NewSQLiteSink(s.DB())
	event := sampleEvent()
	event.FailureTimestamp = time.Time{}
	if err := sink.Send(context.Background(), event); err != nil {
		t.Fatalf("send: %v", err)
	}

	var ts string
	if err := s.DB().QueryRow(`SELECT failure_timestamp FROM compensation_dead_letter`).Scan(&ts); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if ts == "" {
		t.Errorf("timestamp must be filled when absent")
	}
}

func TestLogSink_EmitsErrorRecord(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	sink := NewLogSink(zap.New(core))

	if err := sink.Send(context.Background(), sampleEvent()); err != nil {
		t.Fatalf("log sink must never fail: %v", err)
	}

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["executionId"] != int64(42) {
		t.Errorf("executionId field = %v", fields["executionId"])
	}
	if fields["originalQuantitySent"] != "150.5" {
		t.Errorf("originalQuantitySent field = %v", fields["originalQuantitySent"])
	}
}
