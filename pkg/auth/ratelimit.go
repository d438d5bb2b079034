package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter decides whether an identity may make another request.
type RateLimiter interface {
	Allow(ctx context.Context, identity *Identity) error
}

// RateLimitError reports a refused request. It matches ErrTooManyRequests
// with errors.Is.
type RateLimitError struct {
	// RetryAfter is when a token will next be available.
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s, retry after %s", ErrTooManyRequests, e.RetryAfter)
}

func (e *RateLimitError) Is(target error) bool {
	return target == ErrTooManyRequests
}

// TierConfig holds the limit of one service tier.
type TierConfig struct {
	RequestsPerMinute int

	// Burst is the bucket size. Zero means RequestsPerMinute.
	Burst int
}

// InProcessLimiter keeps a token bucket per subject and tier in memory.
type InProcessLimiter struct {
	tiers       map[string]TierConfig
	defaultTier TierConfig

	mu      sync.Mutex
	buckets map[string]*rate.Limiter
}

// NewInProcessLimiter creates a limiter. Tiers without an entry use
// defaultRPM. A tier with a non-positive rate is unlimited.
func NewInProcessLimiter(tiers map[string]TierConfig, defaultRPM int) *InProcessLimiter {
	return &InProcessLimiter{
		tiers:       tiers,
		defaultTier: TierConfig{RequestsPerMinute: defaultRPM},
		buckets:     make(map[string]*rate.Limiter),
	}
}

// Allow takes a token from the caller's bucket, or returns a
// *RateLimitError when the bucket is empty.
func (l *InProcessLimiter) Allow(_ context.Context, identity *Identity) error {
	tier := identity.Tier()
	tc, ok := l.tiers[tier]
	if !ok {
		tc = l.defaultTier
	}
	if tc.RequestsPerMinute <= 0 {
		return nil
	}

	b := l.bucket(identity.Subject+"\x00"+tier, tc)
	now := time.Now()
	if b.AllowN(now, 1) {
		return nil
	}
	// One token accrues every 60s/RPM.
	wait := time.Duration(float64(time.Minute) / float64(tc.RequestsPerMinute) * (1 - b.TokensAt(now)))
	return &RateLimitError{RetryAfter: wait}
}

func (l *InProcessLimiter) bucket(key string, tc TierConfig) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		burst := tc.Burst
		if burst <= 0 {
			burst = tc.RequestsPerMinute
		}
		b = rate.NewLimiter(rate.Limit(float64(tc.RequestsPerMinute)/60), burst)
		l.buckets[key] = b
	}
	return b
}
