// Package retry layers an optional retry policy around a watch.Fetcher.
// The fetcher itself never retries; wrapping it here keeps the policy at the
// caller.
package retry

import (
	"context"
	"crypto/rand"
	"errors"
	"math"
	"math/big"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/threadwatch/internal/watch"
)

// ExponentialPolicy retries transport failures with jittered backoff.
type ExponentialPolicy struct {
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
}

// NewExponentialPolicy builds a policy. maxAttempts counts the first try, so
// 1 disables retries.
func NewExponentialPolicy(maxAttempts int, baseDelay, maxDelay time.Duration) *ExponentialPolicy {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if baseDelay <= 0 {
		baseDelay = 250 * time.Millisecond
	}
	if maxDelay < baseDelay {
		maxDelay = baseDelay
	}
	return &ExponentialPolicy{
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		maxDelay:    maxDelay,
	}
}

// ShouldRetry decides whether the error is retryable. Only transport
// failures qualify; redirect exhaustion and bad URLs never do.
func (p *ExponentialPolicy) ShouldRetry(err error, attempt int) bool {
	if err == nil {
		return false
	}
	if attempt >= p.maxAttempts {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return watch.IsTransport(err, "")
}

// Backoff returns the wait duration before the next attempt.
func (p *ExponentialPolicy) Backoff(attempt int) time.Duration {
	delay := float64(p.baseDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(p.maxDelay) {
		delay = float64(p.maxDelay)
	}
	jitter := p.randomJitter(time.Duration(delay) / 2)
	return time.Duration(delay/2) + jitter
}

func (p *ExponentialPolicy) randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	bound := big.NewInt(int64(limit))
	n, err := rand.Int(rand.Reader, bound)
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}

// Fetcher decorates a watch.Fetcher with the policy.
type Fetcher struct {
	next   watch.Fetcher
	policy *ExponentialPolicy
	logger *zap.Logger
	sleep  func(context.Context, time.Duration) error
}

// WrapFetcher returns next unchanged when the policy allows a single attempt.
func WrapFetcher(next watch.Fetcher, policy *ExponentialPolicy, logger *zap.Logger) watch.Fetcher {
	if policy == nil || policy.maxAttempts <= 1 {
		return next
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{next: next, policy: policy, logger: logger, sleep: sleepContext}
}

// Fetch implements watch.Fetcher.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (watch.FetchResult, error) {
	for attempt := 1; ; attempt++ {
		res, err := f.next.Fetch(ctx, rawURL)
		if !f.policy.ShouldRetry(err, attempt) {
			return res, err
		}
		wait := f.policy.Backoff(attempt)
		f.logger.Warn("fetch failed; retrying",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", wait),
			zap.Error(err),
		)
		if serr := f.sleep(ctx, wait); serr != nil {
			return watch.FetchResult{}, err
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
