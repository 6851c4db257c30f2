package execution

import "sync"

// RetryCounterStore 记录每条执行的累计重试次数，供多个工作协程
// 并发递增、读取和清除。实例随编排器创建，不做全局单例，
// 测试可以各自隔离。
type RetryCounterStore struct {
	mu     sync.Mutex
	counts map[int64]int
}

// NewRetryCounterStore 构造计数器。
func NewRetryCounterStore() *RetryCounterStore {
	return &RetryCounterStore{counts: make(map[int64]int)}
}

// Increment 递增并返回该执行的累计尝试次数。
func (s *RetryCounterStore) Increment(executionID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[executionID]++
	return s.counts[executionID]
}

// Attempts 返回该执行已经累计的尝试次数。
func (s *RetryCounterStore) Attempts(executionID int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[executionID]
}

// Clear 清除给定执行的计数。重复清除是空操作。
// 每个批次结束后必须调用，否则计数表会无界增长。
func (s *RetryCounterStore) Clear(executionIDs ...int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range executionIDs {
		delete(s.counts, id)
	}
}

// Size 返回当前跟踪的执行条数，仅用于测试与监控。
func (s *RetryCounterStore) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.counts)
}
