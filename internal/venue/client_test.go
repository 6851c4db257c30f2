package venue

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kasbench/globeco-trade-service-sub000/internal/config"
	"github.com/kasbench/globeco-trade-service-sub000/internal/errclass"
)

func testConfig(baseURL string) config.VenueConfig {
	return config.VenueConfig{
		BaseURL: baseURL,
		Timeout: 2 * time.Second,
		Backoff: config.BackoffConfig{
			InitialDelay: time.Millisecond,
			Multiplier:   2,
			MaxDelay:     5 * time.Millisecond,
			MaxAttempts:  3,
		},
	}
}

func sampleRequest() ExecutionRequest {
	return ExecutionRequest{
		RequestID:         "req-1",
		ExecutionStatusID: 1,
		BlotterID:         1,
		TradeTypeID:       1,
		TradeOrderID:      10,
		DestinationID:     1,
		QuantityOrdered:   decimal.NewFromInt(100),
	}
}

func TestSubmitBatch_Success(t *testing.T) {
	var gotPath string
	var gotBody BatchRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(BatchResponse{
			Status: ResponseStatusSuccess,
			Results: []ExecutionResult{
				{RequestIndex: 0, Status: ResponseStatusSuccess, Execution: &ExecutionView{ID: 42}},
			},
		})
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL), nil)
	resp, err := c.SubmitBatch(context.Background(), BatchRequest{Executions: []ExecutionRequest{sampleRequest()}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotPath != "/api/v1/executions/batch" {
		t.Errorf("path = %s", gotPath)
	}
	if len(gotBody.Executions) != 1 || gotBody.Executions[0].RequestID != "req-1" {
		t.Errorf("request body mismatch: %+v", gotBody)
	}
	if !resp.Successful() || len(resp.Results) != 1 || resp.Results[0].Execution.ID != 42 {
		t.Errorf("response mismatch: %+v", resp)
	}
}

func TestSubmitExecution_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/executions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(ExecutionResult{
			Status:    ResponseStatusSuccess,
			Execution: &ExecutionView{ID: 7},
		})
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL), nil)
	result, err := c.SubmitExecution(context.Background(), sampleRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Execution == nil || result.Execution.ID != 7 {
		t.Errorf("result mismatch: %+v", result)
	}
}

func TestSubmitExecution_RetriesTransientServerError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "temporary failure", http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(ExecutionResult{Status: ResponseStatusSuccess})
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL), nil)
	result, err := c.SubmitExecution(context.Background(), sampleRequest())
	if err != nil {
		t.Fatalf("expected retry to recover: %v", err)
	}
	if result.Status != ResponseStatusSuccess {
		t.Errorf("status = %s", result.Status)
	}
	if calls.Load() != 2 {
		t.Errorf("expected 2 attempts, got %d", calls.Load())
	}
}

func TestSubmitExecution_NoRetryOnClientError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "unknown security", http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL), nil)
	_, err := c.SubmitExecution(context.Background(), sampleRequest())
	if err == nil {
		t.Fatalf("expected error for client failure")
	}
	if calls.Load() != 1 {
		t.Errorf("client error must not be retried, got %d attempts", calls.Load())
	}

	var httpErr *errclass.HTTPStatusError
	if !errors.As(err, &httpErr) {
		t.Fatalf("expected HTTPStatusError, got %T", err)
	}
	if httpErr.StatusCode != http.StatusBadRequest || httpErr.Body != "unknown security" {
		t.Errorf("error fields mismatch: %+v", httpErr)
	}
}

func TestSubmitExecution_GivesUpAfterMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL), nil)
	_, err := c.SubmitExecution(context.Background(), sampleRequest())
	if err == nil {
		t.Fatalf("expected error after retries are exhausted")
	}

	var httpErr *errclass.HTTPStatusError
	if !errors.As(err, &httpErr) || httpErr.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 error, got %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", calls.Load())
	}
}

func TestSubmitBatch_MalformedResponseBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL), nil)
	if _, err := c.SubmitBatch(context.Background(), BatchRequest{Executions: []ExecutionRequest{sampleRequest()}}); err == nil {
		t.Fatalf("expected decode error")
	}
}
