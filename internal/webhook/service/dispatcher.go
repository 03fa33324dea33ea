package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"likeness/internal/platform/tracing"
	"likeness/internal/webhook/metrics"
	"likeness/internal/webhook/models"
	"likeness/pkg/platform/circuit"
)

const (
	defaultBatchSize   = 50
	defaultConcurrency = 4
	defaultBaseBackoff = 5 * time.Second
	defaultMaxBackoff  = time.Hour
	maxErrorLen        = 500
)

// Mirror republishes every event onto a stream. Satisfied by
// kafka.Producer.
type Mirror interface {
	Publish(ctx context.Context, key, value []byte, headers map[string]string) error
}

// Config tunes the dispatcher.
type Config struct {
	// Endpoints maps an event family to its subscriber URL; "*" catches the
	// rest. Events with no subscriber are marked delivered.
	Endpoints    map[string]string
	MaxAttempts  int
	PollInterval time.Duration
	// Lease is how long a claimed row stays invisible to other claims. It
	// must exceed the HTTP timeout.
	Lease       time.Duration
	BatchSize   int
	Concurrency int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

// Dispatcher drains the outbox. Delivery is at-least-once: subscribers
// dedupe on X-Likeness-Event-Id.
type Dispatcher struct {
	store       Store
	cfg         Config
	poster      *poster
	mirror      Mirror
	metrics     *metrics.Metrics
	logger      *slog.Logger
	tracer      trace.Tracer
	now         func() time.Time
	breakerOpts []circuit.Option
	breakers    sync.Map // target URL -> *circuit.Breaker
}

type DispatcherOption func(*Dispatcher)

func WithMirror(m Mirror) DispatcherOption {
	return func(d *Dispatcher) { d.mirror = m }
}

func WithDispatcherMetrics(m *metrics.Metrics) DispatcherOption {
	return func(d *Dispatcher) { d.metrics = m }
}

func WithDispatcherLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) { d.logger = logger }
}

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) DispatcherOption {
	return func(d *Dispatcher) {
		d.now = now
		d.poster.now = now
	}
}

// WithBreakerOptions tunes the per-subscriber circuit breakers.
func WithBreakerOptions(opts ...circuit.Option) DispatcherOption {
	return func(d *Dispatcher) { d.breakerOpts = opts }
}

func NewDispatcher(store Store, client *http.Client, keys *KeyRing, cfg Config, opts ...DispatcherOption) *Dispatcher {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 8
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.Lease <= 0 {
		cfg.Lease = time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = defaultBaseBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = defaultMaxBackoff
	}
	d := &Dispatcher{
		store:  store,
		cfg:    cfg,
		poster: &poster{client: client, keys: keys, now: time.Now},
		logger: slog.Default(),
		tracer: tracing.Tracer("webhook"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run polls until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()
	for {
		if _, err := d.DrainOnce(ctx); err != nil && ctx.Err() == nil {
			d.logger.ErrorContext(ctx, "webhook drain failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// DrainOnce claims one batch of due rows and attempts each. It returns the
// number of rows claimed.
func (d *Dispatcher) DrainOnce(ctx context.Context) (int, error) {
	batch, err := d.store.ClaimDue(ctx, d.now().UTC(), d.cfg.BatchSize, d.cfg.Lease)
	if err != nil {
		return 0, err
	}
	// A bookkeeping error on one row must not cancel deliveries in flight
	// for the others.
	var g errgroup.Group
	g.SetLimit(d.cfg.Concurrency)
	for _, msg := range batch {
		g.Go(func() error {
			return d.attempt(ctx, msg)
		})
	}
	return len(batch), g.Wait()
}

func (d *Dispatcher) attempt(ctx context.Context, msg models.Message) error {
	family := msg.Family()
	ctx, span := d.tracer.Start(ctx, "webhook.deliver", trace.WithAttributes(
		attribute.String("event_type", msg.EventType),
		attribute.String("event_id", msg.ID.String()),
		attribute.Int("attempt", msg.Attempts+1),
	))
	defer span.End()

	body, err := json.Marshal(msg.Envelope())
	if err != nil {
		return d.store.MarkDead(ctx, msg.ID, msg.Attempts, "marshal envelope: "+err.Error())
	}

	if msg.Attempts == 0 {
		d.publishMirror(ctx, msg, body)
	}

	target := d.targetFor(family)
	if target == "" {
		d.metrics.IncrementDelivery(family, metrics.OutcomeSkipped)
		return d.store.MarkDelivered(ctx, msg.ID, msg.Attempts, d.now().UTC())
	}

	breaker := d.breakerFor(target)
	if !breaker.Allow() {
		d.metrics.IncrementDelivery(family, metrics.OutcomeCircuitOpen)
		next := d.now().UTC().Add(d.backoff(msg.Attempts + 1))
		return d.store.MarkRetry(ctx, msg.ID, msg.Attempts, next, "circuit open")
	}

	start := time.Now()
	sendErr := d.poster.post(ctx, target, family, msg, body)
	d.metrics.ObserveDelivery(family, start)
	attempts := msg.Attempts + 1

	if sendErr == nil {
		breaker.RecordSuccess()
		d.metrics.IncrementDelivery(family, metrics.OutcomeDelivered)
		d.logger.InfoContext(ctx, "webhook delivered",
			"event_id", msg.ID.String(),
			"event_type", msg.EventType,
			"attempts", attempts,
		)
		return d.store.MarkDelivered(ctx, msg.ID, attempts, d.now().UTC())
	}

	span.RecordError(sendErr)
	span.SetStatus(codes.Error, "delivery failed")
	if _, change := breaker.RecordFailure(); change.Opened {
		d.metrics.IncrementBreakerOpened(family)
		d.logger.WarnContext(ctx, "webhook subscriber circuit opened", "family", family)
	}
	lastErr := truncateError(sendErr)

	if attempts >= d.cfg.MaxAttempts || permanent(sendErr) {
		d.metrics.IncrementDelivery(family, metrics.OutcomeDead)
		d.logger.ErrorContext(ctx, "webhook dead-lettered",
			"event_id", msg.ID.String(),
			"event_type", msg.EventType,
			"attempts", attempts,
			"error", lastErr,
		)
		return d.store.MarkDead(ctx, msg.ID, attempts, lastErr)
	}

	next := d.now().UTC().Add(d.backoff(attempts))
	d.metrics.IncrementDelivery(family, metrics.OutcomeRetry)
	d.logger.WarnContext(ctx, "webhook delivery failed, will retry",
		"event_id", msg.ID.String(),
		"event_type", msg.EventType,
		"attempts", attempts,
		"next_attempt_at", next,
		"error", lastErr,
	)
	return d.store.MarkRetry(ctx, msg.ID, attempts, next, lastErr)
}

func (d *Dispatcher) publishMirror(ctx context.Context, msg models.Message, body []byte) {
	if d.mirror == nil {
		return
	}
	headers := map[string]string{"event_type": msg.EventType}
	if err := d.mirror.Publish(ctx, []byte(msg.ID.String()), body, headers); err != nil {
		d.metrics.IncrementMirrorFailure()
		d.logger.ErrorContext(ctx, "webhook mirror publish failed",
			"event_id", msg.ID.String(),
			"error", err,
		)
	}
}

func (d *Dispatcher) targetFor(family string) string {
	if target, ok := d.cfg.Endpoints[family]; ok {
		return target
	}
	return d.cfg.Endpoints[models.FallbackFamily]
}

func (d *Dispatcher) breakerFor(target string) *circuit.Breaker {
	if b, ok := d.breakers.Load(target); ok {
		return b.(*circuit.Breaker)
	}
	b, _ := d.breakers.LoadOrStore(target, circuit.New(target, d.breakerOpts...))
	return b.(*circuit.Breaker)
}

// backoff is the delay before attempt n+1: base * 2^(n-1), capped.
func (d *Dispatcher) backoff(n int) time.Duration {
	delay := d.cfg.BaseBackoff
	for i := 1; i < n; i++ {
		delay *= 2
		if delay >= d.cfg.MaxBackoff {
			return d.cfg.MaxBackoff
		}
	}
	return delay
}

// permanent reports subscriber answers that retrying cannot fix.
func permanent(err error) bool {
	var se *StatusError
	if !errors.As(err, &se) {
		return false
	}
	return se.Code == http.StatusGone
}

func truncateError(err error) string {
	s := err.Error()
	if len(s) > maxErrorLen {
		return s[:maxErrorLen]
	}
	return s
}
