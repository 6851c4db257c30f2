package errclass

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// Category 是失败的粗粒度分类。
type Category string

const (
	CategoryNetwork            Category = "NETWORK"
	CategoryTimeout            Category = "TIMEOUT"
	CategoryClient             Category = "CLIENT"
	CategoryServer             Category = "SERVER"
	CategoryValidation         Category = "VALIDATION"
	CategoryAuth               Category = "AUTH"
	CategoryAuthz              Category = "AUTHZ"
	CategoryRateLimit          Category = "RATE_LIMIT"
	CategoryServiceUnavailable Category = "SERVICE_UNAVAILABLE"
	CategoryUnknown            Category = "UNKNOWN"
)

// Severity 表示失败的严重程度，仅用于日志与告警。
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Descriptor 是结构化的失败描述，按失败构造，从不持久化。
type Descriptor struct {
	Category  Category
	Severity  Severity
	Code      string
	Message   string
	Retryable bool
	Context   map[string]any
}

// HTTPStatusError 保留传输层的 HTTP 状态码，供分类器精确判断。
type HTTPStatusError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("http %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Status)
}

// Classify 将任意失败映射为结构化描述。context 仅用于日志，原样附带。
// 判定优先级：HTTP 状态码 → 连接/超时错误 → 消息关键字 → UNKNOWN。
func Classify(err error, ctx map[string]any) Descriptor {
	d := Descriptor{
		Category:  CategoryUnknown,
		Severity:  SeverityHigh,
		Code:      "UNKNOWN",
		Retryable: false,
		Context:   ctx,
	}
	if err == nil {
		return d
	}
	d.Message = err.Error()

	var httpErr *HTTPStatusError
	if errors.As(err, &httpErr) {
		return classifyHTTP(httpErr, d)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		d.Category = CategoryTimeout
		d.Severity = SeverityMedium
		d.Code = "NET_TIMEOUT"
		d.Retryable = true
		return d
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			d.Category = CategoryTimeout
			d.Code = "NET_TIMEOUT"
		} else {
			d.Category = CategoryNetwork
			d.Code = "NET_CONN"
		}
		d.Severity = SeverityMedium
		d.Retryable = true
		return d
	}

	return classifyMessage(err.Error(), d)
}

func classifyHTTP(httpErr *HTTPStatusError, d Descriptor) Descriptor {
	code := httpErr.StatusCode
	d.Code = fmt.Sprintf("HTTP_%d", code)

	switch {
	case code == 400:
		d.Category = CategoryValidation
		d.Severity = SeverityMedium
	case code == 401:
		d.Category = CategoryAuth
		d.Severity = SeverityHigh
	case code == 403:
		d.Category = CategoryAuthz
		d.Severity = SeverityHigh
	case code == 404:
		d.Category = CategoryClient
		d.Severity = SeverityMedium
	case code == 429:
		d.Category = CategoryRateLimit
		d.Severity = SeverityMedium
		d.Retryable = true
	case code >= 400 && code < 500:
		d.Category = CategoryClient
		d.Severity = SeverityMedium
	case code == 500 || code == 502:
		d.Category = CategoryServer
		d.Severity = SeverityHigh
		d.Retryable = true
	case code == 503:
		d.Category = CategoryServiceUnavailable
		d.Severity = SeverityHigh
		d.Retryable = true
	case code == 504:
		d.Category = CategoryTimeout
		d.Severity = SeverityMedium
		d.Retryable = true
	case code >= 500:
		d.Category = CategoryServer
		d.Severity = SeverityHigh
		d.Retryable = true
	}

	return d
}

// classifyMessage 对无结构的失败按消息关键字兜底判断。
// 关键字匹配本质上是脆弱的，保留原有行为但集中在此处，
// 将来外部服务提供类型化错误码时只需替换这一个函数。
func classifyMessage(message string, d Descriptor) Descriptor {
	lower := strings.ToLower(message)

	switch {
	case strings.Contains(lower, "validation") || strings.Contains(lower, "invalid"):
		d.Category = CategoryValidation
		d.Severity = SeverityMedium
		d.Code = "MSG_VALIDATION"
	case strings.Contains(lower, "timeout"):
		d.Category = CategoryTimeout
		d.Severity = SeverityMedium
		d.Code = "MSG_TIMEOUT"
		d.Retryable = true
	case strings.Contains(lower, "connection") || strings.Contains(lower, "network"):
		d.Category = CategoryNetwork
		d.Severity = SeverityMedium
		d.Code = "MSG_NETWORK"
		d.Retryable = true
	}

	return d
}

// serverRetryCeiling 限制 SERVER 类错误的重试次数。
// 反复冲击一个行为异常的服务端比尽早放弃更糟，
// 而网络抖动或明确的限流确实值得按上限重试。
const serverRetryCeiling = 2

// ShouldRetry 根据描述与当前尝试次数决定是否继续重试。
// attempt 是已经发生的尝试次数。
func ShouldRetry(d Descriptor, attempt, maxAttempts int) bool {
	if !d.Retryable || attempt >= maxAttempts {
		return false
	}

	switch d.Category {
	case CategoryValidation, CategoryAuth, CategoryAuthz:
		return false
	case CategoryServer:
		ceiling := maxAttempts
		if ceiling > serverRetryCeiling {
			ceiling = serverRetryCeiling
		}
		return attempt < ceiling
	default:
		return true
	}
}
