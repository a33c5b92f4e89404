package remparo

import "time"

// NowFunc supplies the current wall-clock time. Components accept one so
// tests can drive TTL expiry, window aging and breaker cooldowns without
// sleeping.
type NowFunc func() time.Time
