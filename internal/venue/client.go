package venue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kasbench/globeco-trade-service-sub000/internal/config"
	"github.com/kasbench/globeco-trade-service-sub000/internal/errclass"
)

const (
	batchPath     = "/api/v1/executions/batch"
	executionPath = "/api/v1/executions"

	// 读取错误响应体的上限，防止异常响应撑爆日志。
	maxErrorBody = 4 << 10
)

// Client 负责与外部执行服务交互并实现指数退避重试。
// 内部的重试只覆盖单次逻辑调用内的瞬时抖动，
// 跨调用的重试策略由 execution.RetryCoordinator 掌握。
type Client struct {
	cfg     config.VenueConfig
	httpc   *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

var _ Service = (*Client)(nil)

// NewClient 构造执行服务客户端。
func NewClient(cfg config.VenueConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst)
	}

	return &Client{
		cfg: cfg,
		httpc: &http.Client{
			Timeout: cfg.Timeout,
		},
		limiter: limiter,
		logger:  logger,
	}
}

// SubmitBatch 批量提交执行指令。
func (c *Client) SubmitBatch(ctx context.Context, req BatchRequest) (*BatchResponse, error) {
	var resp BatchResponse
	err := c.callWithRetry(ctx, "submit_batch", func() error {
		return c.post(ctx, batchPath, req, &resp)
	})
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// SubmitExecution 提交单条执行指令。
func (c *Client) SubmitExecution(ctx context.Context, req ExecutionRequest) (*ExecutionResult, error) {
	var resp ExecutionResult
	err := c.callWithRetry(ctx, "submit_execution", func() error {
		return c.post(ctx, executionPath, req, &resp)
	})
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("编码请求体失败: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("构造请求失败: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpc.Do(httpReq)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, httpResp.Body)
		_ = httpResp.Body.Close()
	}()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(httpResp.Body, maxErrorBody))
		return &errclass.HTTPStatusError{
			StatusCode: httpResp.StatusCode,
			Status:     httpResp.Status,
			Body:       string(bytes.TrimSpace(raw)),
		}
	}

	if err := json.NewDecoder(httpResp.Body).Decode(out); err != nil {
		return fmt.Errorf("解析响应体失败: %w", err)
	}
	return nil
}

func (c *Client) callWithRetry(ctx context.Context, operation string, fn func() error) error {
	attempt := 0
	delay := c.cfg.Backoff.InitialDelay
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}
	maxDelay := c.cfg.Backoff.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 5 * time.Second
	}
	multiplier := c.cfg.Backoff.Multiplier
	if multiplier < 1 {
		multiplier = 2
	}

	for {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		attempt++
		start := time.Now()
		err := fn()
		duration := time.Since(start)
		if err == nil {
			if attempt > 1 {
				c.logger.Info("执行服务调用重试后成功",
					zap.String("operation", operation),
					zap.Int("attempts", attempt),
					zap.Duration("latency", duration),
				)
			}
			return nil
		}

		desc := errclass.Classify(err, map[string]any{"operation": operation})
		if !errclass.ShouldRetry(desc, attempt, c.cfg.Backoff.MaxAttempts) {
			c.logger.Error("执行服务调用失败",
				zap.String("operation", operation),
				zap.Int("attempts", attempt),
				zap.Duration("latency", duration),
				zap.String("category", string(desc.Category)),
				zap.Error(err),
			)
			return err
		}

		wait := delay
		if wait > maxDelay {
			wait = maxDelay
		}

		c.logger.Warn("执行服务调用失败，等待重试",
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err),
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		delay = time.Duration(float64(delay) * multiplier)
		if delay > maxDelay {
			delay = maxDelay
		}
	}
}
