package remparo

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// CircuitState represents the state of the circuit breaker
type CircuitState int32

const (
	StateClosed CircuitState = iota
	StateOpen
	StateHalfOpen
)

// String returns the conventional upper-case state name.
func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// BreakerConfig holds circuit breaker configuration. Classifier decides
// whether an error counts as a breaker failure; nil counts every non-nil
// error.
type BreakerConfig struct {
	FailureThreshold int
	RecoveryTimeout  time.Duration
	Classifier       func(error) bool
}

// CircuitBreaker sheds load from a failing dependency. It starts CLOSED,
// trips OPEN after FailureThreshold consecutive failures, and after
// RecoveryTimeout lets a single probe through in HALF_OPEN: a success
// closes the circuit, a failure reopens it.
//
// The breaker is state, not a semaphore: it does not limit concurrency of
// the protected operation. Entry checks and outcome recording are each
// atomic with respect to concurrent callers.
type CircuitBreaker struct {
	config BreakerConfig
	logger *zap.Logger
	now    NowFunc

	mu          sync.Mutex
	state       CircuitState
	failures    int
	lastFailure time.Time
}

// BreakerOption configures a CircuitBreaker.
type BreakerOption func(*CircuitBreaker)

// WithBreakerLogger sets the structured logger.
func WithBreakerLogger(logger *zap.Logger) BreakerOption {
	return func(cb *CircuitBreaker) {
		cb.logger = logger
	}
}

// WithBreakerNow sets the time source.
func WithBreakerNow(now NowFunc) BreakerOption {
	return func(cb *CircuitBreaker) {
		cb.now = now
	}
}

// NewCircuitBreaker creates a breaker with a threshold of 5 consecutive
// failures and a 60 second recovery timeout unless configured otherwise.
func NewCircuitBreaker(config BreakerConfig, opts ...BreakerOption) *CircuitBreaker {
	if config.FailureThreshold == 0 {
		config.FailureThreshold = 5
	}
	if config.RecoveryTimeout == 0 {
		config.RecoveryTimeout = 60 * time.Second
	}
	if config.Classifier == nil {
		config.Classifier = func(err error) bool { return err != nil }
	}

	cb := &CircuitBreaker{
		config: config,
		logger: zap.NewNop(),
		now:    time.Now,
		state:  StateClosed,
	}
	for _, opt := range opts {
		opt(cb)
	}

	cb.logger.Info("circuit breaker initialized",
		zap.Int("failure_threshold", config.FailureThreshold),
		zap.Duration("recovery_timeout", config.RecoveryTimeout))

	return cb
}

// Execute runs op through the breaker. While OPEN and inside the recovery
// timeout it returns ErrCircuitOpen without invoking op; otherwise op's
// error (as seen by the classifier) drives the state machine and is
// returned unchanged.
func (cb *CircuitBreaker) Execute(op func() error) error {
	if err := cb.allow(); err != nil {
		return err
	}

	err := op()
	cb.record(err)
	return err
}

// Guard runs op through cb preserving its result type. The typed
// counterpart of Execute.
func Guard[T any](cb *CircuitBreaker, op func() (T, error)) (T, error) {
	var result T
	err := cb.Execute(func() error {
		var opErr error
		result, opErr = op()
		return opErr
	})
	return result, err
}

// State returns the current state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Failures returns the current consecutive-failure count.
func (cb *CircuitBreaker) Failures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failures
}

func (cb *CircuitBreaker) allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != StateOpen {
		return nil
	}

	if cb.now().Sub(cb.lastFailure) >= cb.config.RecoveryTimeout {
		cb.state = StateHalfOpen
		cb.logger.Info("circuit breaker state: HALF_OPEN")
		return nil
	}
	return ErrCircuitOpen
}

func (cb *CircuitBreaker) record(err error) {
	failed := err != nil && cb.config.Classifier(err)

	cb.mu.Lock()
	defer cb.mu.Unlock()

	if !failed {
		switch cb.state {
		case StateHalfOpen:
			cb.state = StateClosed
			cb.failures = 0
			cb.logger.Info("circuit breaker recovered: CLOSED")
		case StateClosed:
			cb.failures = 0
		}
		return
	}

	cb.failures++
	cb.lastFailure = cb.now()

	switch cb.state {
	case StateHalfOpen:
		cb.state = StateOpen
		cb.logger.Warn("circuit breaker reopened",
			zap.Int("failures", cb.failures),
			zap.Duration("recovery_timeout", cb.config.RecoveryTimeout))
	case StateClosed:
		if cb.failures >= cb.config.FailureThreshold {
			cb.state = StateOpen
			cb.logger.Warn("circuit breaker opened",
				zap.Int("failures", cb.failures),
				zap.Duration("recovery_timeout", cb.config.RecoveryTimeout))
		}
	}
}
