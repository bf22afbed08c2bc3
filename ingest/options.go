package ingest

import (
	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-webhook-ingest/core"
	"github.com/goliatone/go-webhook-ingest/ordering"
)

type processorBuilder struct {
	runtimeConfig   core.Config
	logger          core.Logger
	loggerProvider  core.LoggerProvider
	metricsRecorder core.MetricsRecorder
	errorMapper     core.ErrorMapper
	configProvider  core.ConfigProvider
	optionsResolver core.OptionsResolver

	verifier      core.RequestVerifier
	rateLimiter   core.RateLimiter
	parser        core.EventParser
	keyDeriver    core.KeyDeriver
	idempotency   core.IdempotencyStore
	deduplication core.DeduplicationStore
	sequenceStore core.EntitySequenceStore
	sequencer     *ordering.Sequencer
	dispatcher    core.Dispatcher
	auditSink     core.AuditSink
	auditWriter   core.AuditWriter
}

type Option func(*processorBuilder)

func WithLogger(logger core.Logger) Option {
	return func(b *processorBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider core.LoggerProvider) Option {
	return func(b *processorBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder core.MetricsRecorder) Option {
	return func(b *processorBuilder) {
		b.metricsRecorder = recorder
	}
}

func WithErrorMapper(mapper core.ErrorMapper) Option {
	return func(b *processorBuilder) {
		b.errorMapper = mapper
	}
}

func WithConfigProvider(provider core.ConfigProvider) Option {
	return func(b *processorBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver core.OptionsResolver) Option {
	return func(b *processorBuilder) {
		b.optionsResolver = resolver
	}
}

func WithVerifier(verifier core.RequestVerifier) Option {
	return func(b *processorBuilder) {
		b.verifier = verifier
	}
}

func WithRateLimiter(limiter core.RateLimiter) Option {
	return func(b *processorBuilder) {
		b.rateLimiter = limiter
	}
}

func WithParser(parser core.EventParser) Option {
	return func(b *processorBuilder) {
		b.parser = parser
	}
}

func WithKeyDeriver(deriver core.KeyDeriver) Option {
	return func(b *processorBuilder) {
		b.keyDeriver = deriver
	}
}

func WithIdempotencyStore(store core.IdempotencyStore) Option {
	return func(b *processorBuilder) {
		b.idempotency = store
	}
}

func WithDeduplicationStore(store core.DeduplicationStore) Option {
	return func(b *processorBuilder) {
		b.deduplication = store
	}
}

func WithSequenceStore(store core.EntitySequenceStore) Option {
	return func(b *processorBuilder) {
		b.sequenceStore = store
	}
}

func WithSequencer(sequencer *ordering.Sequencer) Option {
	return func(b *processorBuilder) {
		b.sequencer = sequencer
	}
}

func WithDispatcher(dispatcher core.Dispatcher) Option {
	return func(b *processorBuilder) {
		b.dispatcher = dispatcher
	}
}

func WithAuditSink(sink core.AuditSink) Option {
	return func(b *processorBuilder) {
		b.auditSink = sink
	}
}

func WithAuditWriter(writer core.AuditWriter) Option {
	return func(b *processorBuilder) {
		b.auditWriter = writer
	}
}

func defaultProcessorBuilder(runtime core.Config) processorBuilder {
	loggerProvider, logger := glog.Resolve("webhook-ingest", nil, nil)
	return processorBuilder{
		runtimeConfig:   runtime,
		loggerProvider:  loggerProvider,
		logger:          logger,
		metricsRecorder: core.NopMetricsRecorder{},
		errorMapper:     core.IngestErrorMapper,
		configProvider:  core.NewCfgxConfigProvider(nil),
		optionsResolver: core.GoOptionsResolver{},
	}
}
