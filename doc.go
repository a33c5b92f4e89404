// Package remparo provides single-process resilience primitives for a
// request-handling service:
//
//   - In‑memory TTL cache with background sweep, prefix invalidation and stats
//   - Sliding‑window rate limiting with per‑endpoint‑class quotas
//   - Circuit breaker (open / half‑open / closed states)
//   - Timeout guard bounding a single operation's wall‑clock duration
//   - Metrics collection (running aggregates + optional Prometheus export)
//   - Function memoization backed by the TTL cache
//
// Design goals:
//   - Small surface area – functional options configure everything
//   - No hidden globals – every component is constructed explicitly and
//     injected by the host's composition root
//   - Safe concurrent use of every component from many request flows
//   - Deterministic tests – time is injectable everywhere it matters
//
// Typical usage:
//
//	pipe := remparo.NewPipeline(
//	    remparo.WithRateLimiter(remparo.NewRateLimiter(remparo.DefaultRateLimitConfig())),
//	    remparo.WithCircuitBreaker(remparo.NewCircuitBreaker(remparo.BreakerConfig{})),
//	    remparo.WithMetrics(remparo.NewCollector()),
//	    remparo.WithRequestTimeout(30*time.Second),
//	)
//	decision, err := pipe.Do(ctx, clientIP, "/api/v1/items", handleRequest)
//
// Rejections surface as typed errors (ErrRateLimited, ErrCircuitOpen,
// ErrTimeout) so callers can map them to "try again" responses; a cache miss
// is an absent result, never an error.
package remparo
