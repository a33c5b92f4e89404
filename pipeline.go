package remparo

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Operation is one unit of work flowing through the pipeline. It returns
// the status code to record for metrics alongside any error.
type Operation func(ctx context.Context) (int, error)

// Pipeline composes the resilience layers around a unit of work: the rate
// limiter admits or rejects, the timeout guard bounds the operation with
// the optional circuit breaker wrapped around it, and the metrics collector
// records every outcome. Every layer is optional; a zero Pipeline just runs
// the operation.
type Pipeline struct {
	limiter *RateLimiter
	breaker *CircuitBreaker
	metrics *Collector
	timeout time.Duration
	now     NowFunc
	logger  *zap.Logger
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithRateLimiter installs the rate limiter stage.
func WithRateLimiter(rl *RateLimiter) PipelineOption {
	return func(p *Pipeline) {
		p.limiter = rl
	}
}

// WithCircuitBreaker installs the circuit breaker around the operation.
func WithCircuitBreaker(cb *CircuitBreaker) PipelineOption {
	return func(p *Pipeline) {
		p.breaker = cb
	}
}

// WithMetrics installs the metrics collector.
func WithMetrics(m *Collector) PipelineOption {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

// WithRequestTimeout bounds each operation's wall-clock duration.
func WithRequestTimeout(d time.Duration) PipelineOption {
	return func(p *Pipeline) {
		p.timeout = d
	}
}

// WithPipelineNow sets the time source.
func WithPipelineNow(now NowFunc) PipelineOption {
	return func(p *Pipeline) {
		p.now = now
	}
}

// WithPipelineLogger sets the structured logger.
func WithPipelineLogger(logger *zap.Logger) PipelineOption {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// NewPipeline creates a pipeline with a 30 second request timeout and no
// other stages; install them with options.
func NewPipeline(opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		timeout: 30 * time.Second,
		now:     time.Now,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Do runs op for the given client identity and path. The returned Decision
// carries the rate-limit metadata for header emission on both admitted and
// rejected paths. Rejections map to their conventional status codes for
// metrics: 429 quota exceeded, 503 circuit open, 504 timeout.
//
// The limiter check is in-memory and cannot block, so it runs before the
// timeout guard; the guard bounds the breaker-wrapped operation itself.
func (p *Pipeline) Do(ctx context.Context, clientID, path string, op Operation) (Decision, error) {
	start := p.now()
	decision := Decision{Allowed: true}

	if p.limiter != nil {
		decision = p.limiter.Check(clientID, path, p.now())
		if !decision.Allowed {
			if p.metrics != nil {
				p.metrics.RecordRateLimited(decision.Class)
				p.metrics.Record(path, p.now().Sub(start), http.StatusTooManyRequests)
			}
			_, quota := p.limiter.Classify(path)
			return decision, &RateLimitError{
				Limit:      decision.Limit,
				Window:     quota.Window,
				RetryAfter: decision.RetryAfter,
			}
		}
	}

	status, err := WithTimeout(ctx, p.timeout, func(ctx context.Context) (int, error) {
		if p.breaker == nil {
			return op(ctx)
		}
		return Guard(p.breaker, func() (int, error) {
			return op(ctx)
		})
	})

	switch {
	case errors.Is(err, ErrCircuitOpen):
		status = http.StatusServiceUnavailable
	case errors.Is(err, ErrTimeout):
		status = http.StatusGatewayTimeout
		if p.metrics != nil {
			p.metrics.RecordTimeout(path)
		}
		p.logger.Error("request timeout",
			zap.String("path", path),
			zap.Duration("timeout", p.timeout))
	case err != nil && status == 0:
		status = http.StatusInternalServerError
	}

	if p.metrics != nil {
		p.metrics.Record(path, p.now().Sub(start), status)
		if p.breaker != nil {
			p.metrics.RecordCircuitState("pipeline", p.breaker.State())
		}
	}

	return decision, err
}
