package config

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"
)

// Config 聚合了服务运行所需的全部配置项。
type Config struct {
	App          AppConfig          `mapstructure:"app"`
	Venue        VenueConfig        `mapstructure:"venue"`
	Submission   SubmissionConfig   `mapstructure:"submission"`
	Compensation CompensationConfig `mapstructure:"compensation"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Logging      LoggingConfig      `mapstructure:"logging"`
	Monitor      MonitorConfig      `mapstructure:"monitor"`
}

// AppConfig 控制应用级参数。
type AppConfig struct {
	Environment string `mapstructure:"environment"`
}

// VenueConfig 描述外部执行服务的连接信息。
type VenueConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	Timeout   time.Duration `mapstructure:"timeout"`
	RateLimit float64       `mapstructure:"rate_limit"`
	RateBurst int           `mapstructure:"rate_burst"`
	Backoff   BackoffConfig `mapstructure:"backoff"`
}

// BackoffConfig 控制外部调用的指数退避。
// 这里的 MaxAttempts 是单次逻辑调用内部的瞬时重试上限，
// 与 submission.max_retry_attempts 的跨调用重试上限相互独立。
type BackoffConfig struct {
	InitialDelay time.Duration `mapstructure:"initial_delay"`
	Multiplier   float64       `mapstructure:"multiplier"`
	MaxDelay     time.Duration `mapstructure:"max_delay"`
	MaxAttempts  int           `mapstructure:"max_attempts"`
}

// SubmissionConfig 控制批量提交与重试行为。
type SubmissionConfig struct {
	BatchingEnabled          bool `mapstructure:"batching_enabled"`
	BatchSize                int  `mapstructure:"batch_size"`
	IndividualRetryFailedCnt int  `mapstructure:"individual_retry_failed_count"`
	MaxRetryAttempts         int  `mapstructure:"max_retry_attempts"`
	RetrySubBatchSize        int  `mapstructure:"retry_sub_batch_size"`
	Parallelism              int  `mapstructure:"parallelism"`
}

// RetryEnabled 判断逐条重试是否开启，0 表示关闭。
func (c SubmissionConfig) RetryEnabled() bool {
	return c.IndividualRetryFailedCnt > 0
}

// CompensationConfig 控制补偿执行的并发度。
type CompensationConfig struct {
	WorkerCount int `mapstructure:"worker_count"`
}

// DatabaseConfig 管理数据库连接。
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	InMemory        bool          `mapstructure:"in_memory"`
}

// LoggingConfig 控制日志输出。
type LoggingConfig struct {
	Level            string        `mapstructure:"level"`
	Encoding         string        `mapstructure:"encoding"`
	Development      bool          `mapstructure:"development"`
	OutputPaths      []string      `mapstructure:"output_paths"`
	ErrorOutputPaths []string      `mapstructure:"error_output_paths"`
	File             LogFileConfig `mapstructure:"file"`
}

// LogFileConfig 控制滚动日志文件输出。
type LogFileConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// MonitorConfig 控制监控端口。
type MonitorConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// Validate 对配置进行基本校验。
func (c *Config) Validate() error {
	var err error

	if c.App.Environment == "" {
		err = multierr.Append(err, errors.New("app.environment 不能为空"))
	}
	if c.Venue.BaseURL == "" {
		err = multierr.Append(err, errors.New("venue.base_url 不能为空"))
	}
	if c.Venue.Timeout <= 0 {
		err = multierr.Append(err, errors.New("venue.timeout 必须大于0"))
	}
	if c.Venue.RateLimit < 0 {
		err = multierr.Append(err, errors.New("venue.rate_limit 不能为负"))
	}
	if c.Venue.RateLimit > 0 && c.Venue.RateBurst <= 0 {
		err = multierr.Append(err, errors.New("venue.rate_burst 必须大于0"))
	}
	if c.Venue.Backoff.InitialDelay <= 0 || c.Venue.Backoff.MaxDelay <= 0 {
		err = multierr.Append(err, errors.New("venue.backoff.delay 必须为正"))
	}
	if c.Venue.Backoff.InitialDelay > c.Venue.Backoff.MaxDelay {
		err = multierr.Append(err, errors.New("venue.backoff.initial_delay 不能大于 max_delay"))
	}
	if c.Venue.Backoff.Multiplier < 1 {
		err = multierr.Append(err, errors.New("venue.backoff.multiplier 不能小于1"))
	}
	if c.Venue.Backoff.MaxAttempts <= 0 {
		err = multierr.Append(err, errors.New("venue.backoff.max_attempts 必须大于0"))
	}
	if c.Submission.BatchSize <= 0 {
		err = multierr.Append(err, errors.New("submission.batch_size 必须大于0"))
	}
	if c.Submission.IndividualRetryFailedCnt < 0 {
		err = multierr.Append(err, errors.New("submission.individual_retry_failed_count 不能为负"))
	}
	if c.Submission.MaxRetryAttempts <= 0 {
		err = multierr.Append(err, errors.New("submission.max_retry_attempts 必须大于0"))
	}
	if c.Submission.RetrySubBatchSize <= 0 || c.Submission.RetrySubBatchSize > 10 {
		err = multierr.Append(err, errors.New("submission.retry_sub_batch_size 必须位于[1,10]"))
	}
	if c.Submission.Parallelism <= 0 {
		err = multierr.Append(err, errors.New("submission.parallelism 必须大于0"))
	}
	if c.Compensation.WorkerCount <= 0 {
		err = multierr.Append(err, errors.New("compensation.worker_count 必须大于0"))
	}
	if c.Database.Path == "" && !c.Database.InMemory {
		err = multierr.Append(err, errors.New("database.path 不能为空"))
	}
	if c.Database.MaxOpenConns <= 0 {
		err = multierr.Append(err, errors.New("database.max_open_conns 必须大于0"))
	}
	if c.Database.MaxIdleConns < 0 {
		err = multierr.Append(err, errors.New("database.max_idle_conns 不能为负"))
	}
	if c.Database.ConnMaxLifetime < 0 {
		err = multierr.Append(err, errors.New("database.conn_max_lifetime 不能为负"))
	}
	if c.Logging.Level == "" {
		err = multierr.Append(err, errors.New("logging.level 不能为空"))
	}
	if c.Logging.Encoding == "" {
		err = multierr.Append(err, errors.New("logging.encoding 不能为空"))
	}
	if len(c.Logging.OutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.output_paths 至少包含一个输出目标"))
	}
	if c.Logging.File.Enabled && c.Logging.File.Path == "" {
		err = multierr.Append(err, errors.New("logging.file.path 不能为空"))
	}
	if c.Monitor.Enabled && (c.Monitor.Port <= 0 || c.Monitor.Port > 65535) {
		err = multierr.Append(err, errors.New("monitor.port 必须位于[1,65535]"))
	}

	if err != nil {
		return fmt.Errorf("配置校验失败: %w", err)
	}

	return nil
}
