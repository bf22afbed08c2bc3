package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-config/cfgx"
	goerrors "github.com/goliatone/go-errors"
	opts "github.com/goliatone/go-options"
)

type ErrorFactory func(message string, category ...goerrors.Category) *goerrors.Error

type ErrorMapper func(err error) *goerrors.Error

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type staticRawConfigLoader struct {
	Values map[string]any
}

func (l staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = staticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	defaultLayer := configToLayerMap(defaults, true)
	loadedLayer := configToLayerMap(loaded, false)
	runtimeLayer := configToLayerMap(runtime, false)

	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			defaultLayer,
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			loadedLayer,
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			runtimeLayer,
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.ServiceName) != "" {
		layer["service_name"] = cfg.ServiceName
	}

	signature := map[string]any{}
	setLayerString(signature, "secret", cfg.Signature.Secret, includeZero)
	setLayerString(signature, "header", cfg.Signature.Header, includeZero)
	setLayerInt(signature, "tolerance_seconds", cfg.Signature.ToleranceSeconds, includeZero)
	if len(signature) > 0 {
		layer["signature"] = signature
	}

	rateLimit := map[string]any{}
	setLayerInt(rateLimit, "max_requests", cfg.RateLimit.MaxRequests, includeZero)
	setLayerInt(rateLimit, "window_seconds", cfg.RateLimit.WindowSeconds, includeZero)
	if len(rateLimit) > 0 {
		layer["rate_limit"] = rateLimit
	}

	parser := map[string]any{}
	setLayerString(parser, "id_prefix", cfg.Parser.IDPrefix, includeZero)
	setLayerInt(parser, "max_event_age_seconds", cfg.Parser.MaxEventAgeSeconds, includeZero)
	if len(parser) > 0 {
		layer["parser"] = parser
	}

	retry := map[string]any{}
	setLayerInt(retry, "max_attempts", cfg.Retry.MaxAttempts, includeZero)
	setLayerInt(retry, "base_delay_ms", cfg.Retry.BaseDelayMS, includeZero)
	setLayerInt(retry, "max_delay_ms", cfg.Retry.MaxDelayMS, includeZero)
	if len(retry) > 0 {
		layer["retry"] = retry
	}

	idempotency := map[string]any{}
	setLayerInt(idempotency, "ttl_days", cfg.Idempotency.TTLDays, includeZero)
	if len(idempotency) > 0 {
		layer["idempotency"] = idempotency
	}

	dedup := map[string]any{}
	setLayerInt(dedup, "window_days", cfg.Dedup.WindowDays, includeZero)
	setLayerInt(dedup, "max_entries", cfg.Dedup.MaxEntries, includeZero)
	if len(dedup) > 0 {
		layer["dedup"] = dedup
	}

	ordering := map[string]any{}
	setLayerInt(ordering, "buffer_limit", cfg.Ordering.BufferLimit, includeZero)
	if len(ordering) > 0 {
		layer["ordering"] = ordering
	}

	audit := map[string]any{}
	setLayerInt(audit, "batch_size", cfg.Audit.BatchSize, includeZero)
	setLayerInt(audit, "flush_interval_seconds", cfg.Audit.FlushIntervalSeconds, includeZero)
	setLayerInt(audit, "retention_days", cfg.Audit.RetentionDays, includeZero)
	setLayerInt(audit, "retention_row_cap", cfg.Audit.RetentionRowCap, includeZero)
	if len(audit) > 0 {
		layer["audit"] = audit
	}

	return layer
}

func setLayerString(layer map[string]any, key string, value string, includeZero bool) {
	if includeZero || strings.TrimSpace(value) != "" {
		layer[key] = value
	}
}

func setLayerInt(layer map[string]any, key string, value int, includeZero bool) {
	if includeZero || value != 0 {
		layer[key] = value
	}
}
