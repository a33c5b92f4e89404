package remparo

import (
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// EndpointClass names a quota bucket for rate limiting.
type EndpointClass string

const (
	ClassGeneral EndpointClass = "general"
	ClassAuth    EndpointClass = "auth"
	ClassUpload  EndpointClass = "upload"
)

// Quota is a request budget over a rolling window.
type Quota struct {
	MaxRequests int
	Window      time.Duration
}

// RateLimitConfig holds per-class quotas and the path prefixes that route a
// request into the auth and upload classes. Prefixes are checked in a fixed
// priority: auth, then upload, then general, so a path matching both
// resolves deterministically.
type RateLimitConfig struct {
	Enabled bool

	General Quota
	Auth    Quota
	Upload  Quota

	AuthPrefixes   []string
	UploadPrefixes []string
}

// DefaultRateLimitConfig returns the stock quotas: 100 req/60s general,
// 5 req/300s for auth endpoints, 10 req/60s for uploads.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Enabled:        true,
		General:        Quota{MaxRequests: 100, Window: 60 * time.Second},
		Auth:           Quota{MaxRequests: 5, Window: 300 * time.Second},
		Upload:         Quota{MaxRequests: 10, Window: 60 * time.Second},
		AuthPrefixes:   []string{"/api/v1/security"},
		UploadPrefixes: []string{"/api/v1/files"},
	}
}

// Decision is the outcome of a rate-limit check. Limit, Remaining and Reset
// are populated on both admitted and rejected paths so callers can emit
// X-RateLimit-* headers; RetryAfter is nonzero only on rejection.
type Decision struct {
	Allowed    bool
	Class      EndpointClass
	Limit      int
	Remaining  int
	Reset      int64 // unix seconds when the current window fully ages out
	RetryAfter int   // seconds, 0 when admitted
}

// window holds the admitted request timestamps for one (client, class)
// pair, oldest first. Timestamps outside the rolling window are purged
// lazily on each check.
type window struct {
	mu     sync.Mutex
	stamps []time.Time
}

// RateLimiter admits or rejects requests using a sliding window per client
// identity and endpoint class. It never fails; it only classifies and
// counts. Safe for concurrent use.
type RateLimiter struct {
	config RateLimitConfig
	logger *zap.Logger

	mu      sync.RWMutex
	windows map[string]*window
}

// RateLimiterOption configures a RateLimiter.
type RateLimiterOption func(*RateLimiter)

// WithRateLimiterLogger sets the structured logger.
func WithRateLimiterLogger(logger *zap.Logger) RateLimiterOption {
	return func(rl *RateLimiter) {
		rl.logger = logger
	}
}

// NewRateLimiter creates a sliding-window limiter with the given config.
func NewRateLimiter(config RateLimitConfig, opts ...RateLimiterOption) *RateLimiter {
	rl := &RateLimiter{
		config:  config,
		logger:  zap.NewNop(),
		windows: make(map[string]*window),
	}
	for _, opt := range opts {
		opt(rl)
	}

	rl.logger.Info("rate limiter initialized",
		zap.Bool("enabled", config.Enabled),
		zap.Int("general_limit", config.General.MaxRequests),
		zap.Duration("general_window", config.General.Window),
		zap.Int("auth_limit", config.Auth.MaxRequests),
		zap.Duration("auth_window", config.Auth.Window),
		zap.Int("upload_limit", config.Upload.MaxRequests),
		zap.Duration("upload_window", config.Upload.Window))

	return rl
}

// Classify resolves the endpoint class and quota for a request path.
func (rl *RateLimiter) Classify(path string) (EndpointClass, Quota) {
	for _, prefix := range rl.config.AuthPrefixes {
		if strings.HasPrefix(path, prefix) {
			return ClassAuth, rl.config.Auth
		}
	}
	for _, prefix := range rl.config.UploadPrefixes {
		if strings.HasPrefix(path, prefix) {
			return ClassUpload, rl.config.Upload
		}
	}
	return ClassGeneral, rl.config.General
}

// Check purges aged-out timestamps for the (client, class) window, then
// either records now and admits, or rejects with a retry-after hint derived
// from when the oldest counted request ages out. With rate limiting
// disabled every call is admitted and no state is touched.
func (rl *RateLimiter) Check(clientID, path string, now time.Time) Decision {
	if !rl.config.Enabled {
		return Decision{Allowed: true}
	}

	class, quota := rl.Classify(path)
	w := rl.getWindow(clientID + "|" + string(class))

	w.mu.Lock()
	defer w.mu.Unlock()

	cutoff := now.Add(-quota.Window)
	i := 0
	for i < len(w.stamps) && w.stamps[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		w.stamps = append(w.stamps[:0], w.stamps[i:]...)
	}

	decision := Decision{
		Class: class,
		Limit: quota.MaxRequests,
		Reset: now.Add(quota.Window).Unix(),
	}

	if len(w.stamps) >= quota.MaxRequests {
		oldest := w.stamps[0]
		decision.RetryAfter = int(oldest.Add(quota.Window).Sub(now).Seconds()) + 1

		rl.logger.Warn("rate limit exceeded",
			zap.String("client", clientID),
			zap.String("path", path),
			zap.String("class", string(class)),
			zap.Int("requests", len(w.stamps)),
			zap.Int("limit", quota.MaxRequests),
			zap.Int("retry_after", decision.RetryAfter))
		return decision
	}

	w.stamps = append(w.stamps, now)
	decision.Allowed = true
	decision.Remaining = quota.MaxRequests - len(w.stamps)
	if decision.Remaining < 0 {
		decision.Remaining = 0
	}
	return decision
}

func (rl *RateLimiter) getWindow(key string) *window {
	rl.mu.RLock()
	w, ok := rl.windows[key]
	rl.mu.RUnlock()
	if ok {
		return w
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if w, ok = rl.windows[key]; ok {
		return w
	}
	w = &window{}
	rl.windows[key] = w
	return w
}

// Reset drops all tracked windows. Intended for tests and administrative use.
func (rl *RateLimiter) Reset() {
	rl.mu.Lock()
	rl.windows = make(map[string]*window)
	rl.mu.Unlock()
}
