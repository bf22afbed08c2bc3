package core

import (
	"fmt"
	"strings"
	"time"
)

type SignatureConfig struct {
	// Secret may be empty at build time; verification fails closed until one
	// is provided.
	Secret           string `koanf:"secret" mapstructure:"secret"`
	Header           string `koanf:"header" mapstructure:"header"`
	ToleranceSeconds int    `koanf:"tolerance_seconds" mapstructure:"tolerance_seconds"`
}

func (c SignatureConfig) Tolerance() time.Duration {
	return time.Duration(c.ToleranceSeconds) * time.Second
}

type RateLimitConfig struct {
	MaxRequests   int `koanf:"max_requests" mapstructure:"max_requests"`
	WindowSeconds int `koanf:"window_seconds" mapstructure:"window_seconds"`
}

func (c RateLimitConfig) Window() time.Duration {
	return time.Duration(c.WindowSeconds) * time.Second
}

type ParserConfig struct {
	IDPrefix           string `koanf:"id_prefix" mapstructure:"id_prefix"`
	MaxEventAgeSeconds int    `koanf:"max_event_age_seconds" mapstructure:"max_event_age_seconds"`
}

func (c ParserConfig) MaxEventAge() time.Duration {
	return time.Duration(c.MaxEventAgeSeconds) * time.Second
}

type RetryConfig struct {
	MaxAttempts int `koanf:"max_attempts" mapstructure:"max_attempts"`
	BaseDelayMS int `koanf:"base_delay_ms" mapstructure:"base_delay_ms"`
	MaxDelayMS  int `koanf:"max_delay_ms" mapstructure:"max_delay_ms"`
}

func (c RetryConfig) BaseDelay() time.Duration {
	return time.Duration(c.BaseDelayMS) * time.Millisecond
}

func (c RetryConfig) MaxDelay() time.Duration {
	return time.Duration(c.MaxDelayMS) * time.Millisecond
}

type IdempotencyConfig struct {
	TTLDays int `koanf:"ttl_days" mapstructure:"ttl_days"`
}

func (c IdempotencyConfig) TTL() time.Duration {
	return time.Duration(c.TTLDays) * 24 * time.Hour
}

type DedupConfig struct {
	WindowDays int `koanf:"window_days" mapstructure:"window_days"`
	MaxEntries int `koanf:"max_entries" mapstructure:"max_entries"`
}

func (c DedupConfig) Window() time.Duration {
	return time.Duration(c.WindowDays) * 24 * time.Hour
}

type OrderingConfig struct {
	BufferLimit int `koanf:"buffer_limit" mapstructure:"buffer_limit"`
}

type AuditConfig struct {
	BatchSize            int `koanf:"batch_size" mapstructure:"batch_size"`
	FlushIntervalSeconds int `koanf:"flush_interval_seconds" mapstructure:"flush_interval_seconds"`
	RetentionDays        int `koanf:"retention_days" mapstructure:"retention_days"`
	RetentionRowCap      int `koanf:"retention_row_cap" mapstructure:"retention_row_cap"`
}

func (c AuditConfig) FlushInterval() time.Duration {
	return time.Duration(c.FlushIntervalSeconds) * time.Second
}

func (c AuditConfig) RetentionTTL() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

type Config struct {
	ServiceName string            `koanf:"service_name" mapstructure:"service_name"`
	Signature   SignatureConfig   `koanf:"signature" mapstructure:"signature"`
	RateLimit   RateLimitConfig   `koanf:"rate_limit" mapstructure:"rate_limit"`
	Parser      ParserConfig      `koanf:"parser" mapstructure:"parser"`
	Retry       RetryConfig       `koanf:"retry" mapstructure:"retry"`
	Idempotency IdempotencyConfig `koanf:"idempotency" mapstructure:"idempotency"`
	Dedup       DedupConfig       `koanf:"dedup" mapstructure:"dedup"`
	Ordering    OrderingConfig    `koanf:"ordering" mapstructure:"ordering"`
	Audit       AuditConfig       `koanf:"audit" mapstructure:"audit"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "webhook-ingest",
		Signature: SignatureConfig{
			Header:           "Stripe-Signature",
			ToleranceSeconds: 300,
		},
		RateLimit: RateLimitConfig{
			MaxRequests:   100,
			WindowSeconds: 60,
		},
		Parser: ParserConfig{
			IDPrefix:           "evt_",
			MaxEventAgeSeconds: 3600,
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			BaseDelayMS: 1000,
			MaxDelayMS:  30000,
		},
		Idempotency: IdempotencyConfig{
			TTLDays: 30,
		},
		Dedup: DedupConfig{
			WindowDays: 30,
			MaxEntries: 100000,
		},
		Ordering: OrderingConfig{
			BufferLimit: 100,
		},
		Audit: AuditConfig{
			BatchSize:            100,
			FlushIntervalSeconds: 60,
			RetentionDays:        90,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.Signature.ToleranceSeconds <= 0 {
		return fmt.Errorf("core: signature.tolerance_seconds must be positive")
	}
	if c.RateLimit.MaxRequests <= 0 {
		return fmt.Errorf("core: rate_limit.max_requests must be positive")
	}
	if c.RateLimit.WindowSeconds <= 0 {
		return fmt.Errorf("core: rate_limit.window_seconds must be positive")
	}
	if c.Parser.MaxEventAgeSeconds <= 0 {
		return fmt.Errorf("core: parser.max_event_age_seconds must be positive")
	}
	if c.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("core: retry.max_attempts must be positive")
	}
	if c.Retry.BaseDelayMS <= 0 {
		return fmt.Errorf("core: retry.base_delay_ms must be positive")
	}
	if c.Retry.MaxDelayMS > 0 && c.Retry.MaxDelayMS < c.Retry.BaseDelayMS {
		return fmt.Errorf("core: retry.max_delay_ms must not undercut retry.base_delay_ms")
	}
	if c.Idempotency.TTLDays <= 0 {
		return fmt.Errorf("core: idempotency.ttl_days must be positive")
	}
	if c.Dedup.WindowDays <= 0 {
		return fmt.Errorf("core: dedup.window_days must be positive")
	}
	if c.Ordering.BufferLimit <= 0 {
		return fmt.Errorf("core: ordering.buffer_limit must be positive")
	}
	if c.Audit.BatchSize <= 0 {
		return fmt.Errorf("core: audit.batch_size must be positive")
	}
	if c.Audit.FlushIntervalSeconds <= 0 {
		return fmt.Errorf("core: audit.flush_interval_seconds must be positive")
	}
	return nil
}
