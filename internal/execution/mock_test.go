package execution

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/kasbench/globeco-trade-service-sub000/internal/domain"
	"github.com/kasbench/globeco-trade-service-sub000/internal/venue"
)

type mockVenue struct {
	mu          sync.Mutex
	batchCalls  []venue.BatchRequest
	singleCalls []venue.ExecutionRequest

	batchFn  func(venue.BatchRequest) (*venue.BatchResponse, error)
	singleFn func(venue.ExecutionRequest) (*venue.ExecutionResult, error)
}

func (m *mockVenue) SubmitBatch(_ context.Context, req venue.BatchRequest) (*venue.BatchResponse, error) {
	m.mu.Lock()
	m.batchCalls = append(m.batchCalls, req)
	fn := m.batchFn
	m.mu.Unlock()

	if fn != nil {
		return fn(req)
	}
	return &venue.BatchResponse{Status: venue.ResponseStatusSuccess}, nil
}

func (m *mockVenue) SubmitExecution(_ context.Context, req venue.ExecutionRequest) (*venue.ExecutionResult, error) {
	m.mu.Lock()
	m.singleCalls = append(m.singleCalls, req)
	fn := m.singleFn
	m.mu.Unlock()

	if fn != nil {
		return fn(req)
	}
	return &venue.ExecutionResult{Status: venue.ResponseStatusSuccess}, nil
}

func (m *mockVenue) batchCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.batchCalls)
}

func (m *mockVenue) singleCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.singleCalls)
}

type mockExecutionStore struct {
	mu         sync.Mutex
	executions map[int64]*domain.Execution
	deleted    []int64
	saved      []*domain.Execution
	created    []*domain.Execution

	getErr    error
	createErr error
	saveErr   error
	deleteErr error
}

func newMockExecutionStore(executions ...*domain.Execution) *mockExecutionStore {
	s := &mockExecutionStore{executions: make(map[int64]*domain.Execution)}
	for _, e := range executions {
		s.executions[e.ID] = e
	}
	return s
}

func (s *mockExecutionStore) GetExecution(_ context.Context, id int64) (*domain.Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	e, ok := s.executions[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return e, nil
}

func (s *mockExecutionStore) GetExecutionWithRelations(ctx context.Context, id int64) (*domain.Execution, error) {
	return s.GetExecution(ctx, id)
}

func (s *mockExecutionStore) CreateExecution(_ context.Context, e *domain.Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	e.ID = int64(len(s.executions) + 1000)
	e.Version = 1
	s.executions[e.ID] = e
	s.created = append(s.created, e)
	return nil
}

func (s *mockExecutionStore) SaveExecution(_ context.Context, e *domain.Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.executions[e.ID] = e
	s.saved = append(s.saved, e)
	return nil
}

func (s *mockExecutionStore) SaveExecutions(ctx context.Context, executions []*domain.Execution) error {
	for _, e := range executions {
		if err := s.SaveExecution(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func (s *mockExecutionStore) DeleteExecution(_ context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deleteErr != nil {
		return false, s.deleteErr
	}
	s.deleted = append(s.deleted, id)
	if _, ok := s.executions[id]; !ok {
		return false, nil
	}
	delete(s.executions, id)
	return true, nil
}

type mockTradeOrderStore struct {
	mu     sync.Mutex
	orders map[int64]*domain.TradeOrder
	saved  []domain.TradeOrder

	getErr  error
	saveErr error
}

func newMockTradeOrderStore(orders ...*domain.TradeOrder) *mockTradeOrderStore {
	s := &mockTradeOrderStore{orders: make(map[int64]*domain.TradeOrder)}
	for _, o := range orders {
		s.orders[o.ID] = o
	}
	return s
}

func (s *mockTradeOrderStore) GetTradeOrder(_ context.Context, id int64) (*domain.TradeOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	o, ok := s.orders[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	clone := *o
	return &clone, nil
}

func (s *mockTradeOrderStore) SaveTradeOrder(_ context.Context, o *domain.TradeOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	clone := *o
	s.orders[o.ID] = &clone
	s.saved = append(s.saved, clone)
	o.Version++
	return nil
}

func (s *mockTradeOrderStore) current(id int64) *domain.TradeOrder {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orders[id]
}

type mockReferenceStore struct {
	destinations map[int]*domain.Destination
}

func newMockReferenceStore(destinationIDs ...int) *mockReferenceStore {
	s := &mockReferenceStore{destinations: make(map[int]*domain.Destination)}
	for _, id := range destinationIDs {
		s.destinations[id] = &domain.Destination{ID: id, Abbreviation: "DEST", Description: "test destination"}
	}
	return s
}

func (s *mockReferenceStore) ResolveDestination(_ context.Context, id int) (*domain.Destination, error) {
	d, ok := s.destinations[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return d, nil
}

func (s *mockReferenceStore) ResolveExecutionStatus(_ context.Context, id int) (*domain.ExecutionStatus, error) {
	return &domain.ExecutionStatus{ID: id, Abbreviation: "NEW"}, nil
}

func (s *mockReferenceStore) ResolveTradeType(_ context.Context, id int) (*domain.TradeType, error) {
	return &domain.TradeType{ID: id, Abbreviation: "BUY"}, nil
}

func makeExecution(id int64) *domain.Execution {
	return &domain.Execution{
		ID:                id,
		QuantityOrdered:   decimal.NewFromInt(100),
		QuantityPlaced:    decimal.Zero,
		QuantityFilled:    decimal.Zero,
		ExecutionStatusID: domain.StatusNew,
		BlotterID:         1,
		TradeTypeID:       1,
		TradeOrderID:      id * 10,
		DestinationID:     1,
		Version:           1,
	}
}

type mockSink struct {
	mu     sync.Mutex
	events []domain.CompensationFailedEvent
	err    error
}

func (s *mockSink) Send(_ context.Context, event domain.CompensationFailedEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, event)
	return nil
}

func (s *mockSink) sentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}
