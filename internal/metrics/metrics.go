package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics 汇总提交管线的 Prometheus 指标。
type Metrics struct {
	SubmissionsTotal   *prometheus.CounterVec
	RetriesTotal       prometheus.Counter
	RetryExhausted     prometheus.Counter
	CompensationsTotal *prometheus.CounterVec
	DeadLettersTotal   prometheus.Counter
	BatchDuration      prometheus.Histogram
	BatchSize          prometheus.Histogram
}

// New 创建并向 reg 注册全部指标。
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SubmissionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trade_service",
			Name:      "submissions_total",
			Help:      "Execution submissions by final status.",
		}, []string{"status"}),
		RetriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "trade_service",
			Name:      "retries_total",
			Help:      "Individual retry attempts issued by the retry coordinator.",
		}),
		RetryExhausted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "trade_service",
			Name:      "retry_exhausted_total",
			Help:      "Executions that hit the retry attempt ceiling.",
		}),
		CompensationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trade_service",
			Name:      "compensations_total",
			Help:      "Compensation runs by outcome.",
		}, []string{"outcome"}),
		DeadLettersTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "trade_service",
			Name:      "dead_letters_total",
			Help:      "Compensation failures escalated to the dead-letter sink.",
		}),
		BatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "trade_service",
			Name:      "batch_duration_seconds",
			Help:      "Wall time of a single batch through the pipeline.",
			Buckets:   prometheus.DefBuckets,
		}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "trade_service",
			Name:      "batch_size",
			Help:      "Number of executions per submitted batch.",
			Buckets:   []float64{1, 5, 10, 25, 50, 100},
		}),
	}

	reg.MustRegister(
		m.SubmissionsTotal,
		m.RetriesTotal,
		m.RetryExhausted,
		m.CompensationsTotal,
		m.DeadLettersTotal,
		m.BatchDuration,
		m.BatchSize,
	)

	return m
}

// ObserveSubmission 按状态累计提交结果，m 为 nil 时直接忽略。
func (m *Metrics) ObserveSubmission(status string) {
	if m == nil {
		return
	}
	m.SubmissionsTotal.WithLabelValues(status).Inc()
}

// ObserveRetry 累计一次逐条重试。
func (m *Metrics) ObserveRetry() {
	if m == nil {
		return
	}
	m.RetriesTotal.Inc()
}

// ObserveRetryExhausted 累计一次重试耗尽。
func (m *Metrics) ObserveRetryExhausted() {
	if m == nil {
		return
	}
	m.RetryExhausted.Inc()
}

// ObserveCompensation 按结局累计补偿执行。
func (m *Metrics) ObserveCompensation(outcome string) {
	if m == nil {
		return
	}
	m.CompensationsTotal.WithLabelValues(outcome).Inc()
}

// ObserveDeadLetter 累计一次死信写入。
func (m *Metrics) ObserveDeadLetter() {
	if m == nil {
		return
	}
	m.DeadLettersTotal.Inc()
}

// ObserveBatch 记录一个批次的规模与耗时。
func (m *Metrics) ObserveBatch(size int, seconds float64) {
	if m == nil {
		return
	}
	m.BatchSize.Observe(float64(size))
	m.BatchDuration.Observe(seconds)
}
