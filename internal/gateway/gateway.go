// Package gateway wraps a model provider with retry, backoff and failure
// classification. It never touches the conversation history; callers pass a
// trimmed view in and append the reply themselves.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"MiniChat/internal/cache"
	"MiniChat/internal/session"
)

const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 500 * time.Millisecond
	DefaultMaxDelay    = 8 * time.Second

	// malformedAttempts bounds attempts once a malformed reply was seen.
	malformedAttempts = 2
)

// Reply is a successful completion
type Reply struct {
	Text string
	// Usage holds provider-reported counters such as input_tokens.
	Usage  map[string]int64
	Cached bool
}

// Provider is a remote model that turns a conversation into a reply
type Provider interface {
	Name() string
	Complete(ctx context.Context, systemPrompt string, turns []session.Turn) (Reply, error)
}

// Pinger is implemented by providers that can check connectivity and
// credentials without producing a completion.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Sleeper waits for d or until ctx is done
type Sleeper func(ctx context.Context, d time.Duration) error

// Gateway calls a Provider with bounded retries
type Gateway struct {
	provider    Provider
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	sleep       Sleeper
	cache       *cache.Cache
	logger      *slog.Logger
	tracer      trace.Tracer
	meter       metric.Meter

	attempts metric.Int64Counter
	failures metric.Int64Counter
	duration metric.Float64Histogram
}

// Option configures a Gateway
type Option func(*Gateway)

// WithRetry sets the attempt bound for transient failures and the first
// backoff delay. Later delays double up to the max delay.
func WithRetry(maxAttempts int, baseDelay time.Duration) Option {
	return func(g *Gateway) {
		if maxAttempts > 0 {
			g.maxAttempts = maxAttempts
		}
		if baseDelay >= 0 {
			g.baseDelay = baseDelay
		}
	}
}

// WithMaxDelay caps the backoff delay
func WithMaxDelay(d time.Duration) Option {
	return func(g *Gateway) {
		g.maxDelay = d
	}
}

// WithSleeper replaces the timer used between attempts
func WithSleeper(s Sleeper) Option {
	return func(g *Gateway) {
		g.sleep = s
	}
}

// WithCache serves identical conversations from c
func WithCache(c *cache.Cache) Option {
	return func(g *Gateway) {
		g.cache = c
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) {
		g.logger = logger
	}
}

// WithTelemetry sets the tracer and meter
func WithTelemetry(tracer trace.Tracer, meter metric.Meter) Option {
	return func(g *Gateway) {
		g.tracer = tracer
		g.meter = meter
	}
}

// New creates a Gateway for provider
func New(provider Provider, opts ...Option) *Gateway {
	g := &Gateway{
		provider:    provider,
		maxAttempts: DefaultMaxAttempts,
		baseDelay:   DefaultBaseDelay,
		maxDelay:    DefaultMaxDelay,
		sleep:       sleepContext,
		logger:      slog.Default(),
		tracer:      tracenoop.NewTracerProvider().Tracer("gateway"),
		meter:       metricnoop.NewMeterProvider().Meter("gateway"),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.initInstruments()
	return g
}

func (g *Gateway) initInstruments() {
	var err error
	g.attempts, err = g.meter.Int64Counter(
		"llm.completion.attempts",
		metric.WithDescription("Completion attempts sent to the provider"),
	)
	if err != nil {
		g.logger.Warn("failed to create counter", "name", "llm.completion.attempts", "error", err)
		g.attempts, _ = metricnoop.NewMeterProvider().Meter("gateway").Int64Counter("llm.completion.attempts")
	}
	g.failures, err = g.meter.Int64Counter(
		"llm.completion.failures",
		metric.WithDescription("Failed completion attempts by kind"),
	)
	if err != nil {
		g.logger.Warn("failed to create counter", "name", "llm.completion.failures", "error", err)
		g.failures, _ = metricnoop.NewMeterProvider().Meter("gateway").Int64Counter("llm.completion.failures")
	}
	g.duration, err = g.meter.Float64Histogram(
		"http.client.request.duration",
		metric.WithDescription("HTTP request duration in milliseconds"),
	)
	if err != nil {
		g.logger.Warn("failed to create histogram", "name", "http.client.request.duration", "error", err)
		g.duration, _ = metricnoop.NewMeterProvider().Meter("gateway").Float64Histogram("http.client.request.duration")
	}
}

// Provider returns the wrapped provider
func (g *Gateway) Provider() Provider {
	return g.provider
}

// Ping checks the provider if it supports it. Failures are classified.
func (g *Gateway) Ping(ctx context.Context) error {
	pinger, ok := g.provider.(Pinger)
	if !ok {
		return nil
	}
	ctx, span := g.tracer.Start(ctx, "gateway.ping")
	defer span.End()

	if err := pinger.Ping(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "ping failed")
		return &Failure{Kind: Classify(err), Attempts: 1, Err: err}
	}
	return nil
}

// Complete sends view to the provider and returns its reply. Any error is a
// *Failure.
func (g *Gateway) Complete(ctx context.Context, view session.View) (Reply, error) {
	ctx, span := g.tracer.Start(ctx, "gateway.complete", trace.WithAttributes(
		attribute.String("llm.provider", g.provider.Name()),
		attribute.Int("llm.turns", len(view.Turns)),
		attribute.Int("llm.context_size", view.Size),
		attribute.Int("llm.evicted_turns", view.Evicted),
	))
	defer span.End()

	var key string
	if g.cache != nil {
		key = cache.GenerateCacheKey(view.SystemPrompt, view.Turns)
		if text, ok := g.cache.Get(key); ok {
			g.logger.Info("cache hit", "key", key[:16])
			span.SetAttributes(attribute.Bool("llm.cached", true))
			return Reply{Text: text, Cached: true}, nil
		}
	}

	var lastErr error
	malformed := 0
	for attempt := 1; ; attempt++ {
		if attempt > 1 {
			if err := g.sleep(ctx, g.delay(attempt, lastErr)); err != nil {
				failure := &Failure{Kind: Classify(err), Attempts: attempt - 1, Err: err}
				g.fail(span, failure)
				return Reply{}, failure
			}
		}

		reply, err := g.attempt(ctx, view, attempt)
		if err == nil {
			if g.cache != nil {
				g.cache.Put(key, reply.Text)
				g.logger.Info("cached response", "key", key[:16])
			}
			span.SetAttributes(attribute.Int("llm.attempts", attempt))
			return reply, nil
		}

		kind := Classify(err)
		g.failures.Add(ctx, 1, metric.WithAttributes(
			attribute.String("llm.provider", g.provider.Name()),
			attribute.String("llm.failure_kind", kind.String()),
		))
		if kind == MalformedResponse {
			malformed++
		}

		if !g.retryable(kind, attempt, malformed) {
			failure := &Failure{Kind: kind, Attempts: attempt, Err: err}
			g.fail(span, failure)
			return Reply{}, failure
		}

		g.logger.Warn("completion attempt failed, retrying",
			"provider", g.provider.Name(),
			"attempt", attempt,
			"max_attempts", g.maxAttempts,
			"kind", kind.String(),
			"error", err,
		)
		lastErr = err
	}
}

func (g *Gateway) retryable(kind Kind, attempt, malformed int) bool {
	if attempt >= g.maxAttempts {
		return false
	}
	switch kind {
	case Transient:
		return true
	case MalformedResponse:
		return malformed < malformedAttempts
	}
	return false
}

// delay returns the wait before the given attempt: base, 2*base, 4*base...
// capped at the max delay. A server-requested delay wins when it is longer.
func (g *Gateway) delay(attempt int, lastErr error) time.Duration {
	d := g.baseDelay
	for i := 2; i < attempt && d < math.MaxInt64/2; i++ {
		if g.maxDelay > 0 && d >= g.maxDelay {
			break
		}
		d *= 2
	}
	var statusErr *StatusError
	if errors.As(lastErr, &statusErr) && statusErr.RetryAfter > d {
		d = statusErr.RetryAfter
	}
	if g.maxDelay > 0 && d > g.maxDelay {
		d = g.maxDelay
	}
	return d
}

func (g *Gateway) attempt(ctx context.Context, view session.View, attempt int) (Reply, error) {
	ctx, span := g.tracer.Start(ctx, "gateway.attempt", trace.WithAttributes(
		attribute.Int("llm.attempt", attempt),
	))
	defer span.End()

	g.attempts.Add(ctx, 1, metric.WithAttributes(attribute.String("llm.provider", g.provider.Name())))

	start := time.Now()
	reply, err := g.provider.Complete(ctx, view.SystemPrompt, view.Turns)
	g.duration.Record(ctx, float64(time.Since(start).Milliseconds()),
		metric.WithAttributes(attribute.String("llm.provider", g.provider.Name())))

	if err == nil && strings.TrimSpace(reply.Text) == "" {
		err = fmt.Errorf("empty reply from %s: %w", g.provider.Name(), ErrMalformedResponse)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "attempt failed")
		return Reply{}, err
	}

	g.recordUsage(ctx, reply.Usage)
	return reply, nil
}

// recordUsage records provider usage counters as llm.usage.<key>
func (g *Gateway) recordUsage(ctx context.Context, usage map[string]int64) {
	for key, value := range usage {
		counter, err := g.meter.Int64Counter(
			fmt.Sprintf("llm.usage.%s", key),
			metric.WithDescription(fmt.Sprintf("LLM usage metric: %s", key)),
		)
		if err != nil {
			g.logger.Warn("failed to create counter", "key", key, "error", err)
			continue
		}
		counter.Add(ctx, value)
	}
}

func (g *Gateway) fail(span trace.Span, failure *Failure) {
	span.RecordError(failure)
	span.SetStatus(codes.Error, failure.Kind.String())
	g.logger.Error("completion failed",
		"provider", g.provider.Name(),
		"kind", failure.Kind.String(),
		"attempts", failure.Attempts,
		"error", failure.Err,
	)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
