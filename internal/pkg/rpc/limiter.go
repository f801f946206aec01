package rpc

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"
)

type Tier string

const (
	TierFree Tier = "free"
	TierPro  Tier = "pro"
)

var limiterWait = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "wallet_rpc_limiter_wait_seconds",
	Help:    "Time spent waiting for an RPC rate limit token",
	Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
})

// Limiter is the single token bucket shared by every network call of the
// process: chain reads, broadcasts and indexer lookups.
type Limiter struct {
	bucket *rate.Limiter
}

func ParseTier(s string) Tier {
	if strings.EqualFold(strings.TrimSpace(s), string(TierPro)) {
		return TierPro
	}
	return TierFree
}

// NewLimiter returns a limiter of ~1 request per second for the free tier
// and ~100 per second for the pro tier.
func NewLimiter(tier Tier) *Limiter {
	switch tier {
	case TierPro:
		return &Limiter{bucket: rate.NewLimiter(rate.Limit(100), 100)}
	default:
		return &Limiter{bucket: rate.NewLimiter(rate.Every(time.Second), 1)}
	}
}

// NewLimiterWithRate is used by tests and custom deployments.
func NewLimiterWithRate(perSecond float64, burst int) *Limiter {
	return &Limiter{bucket: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

// Wait blocks until a token is available or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil {
		return nil
	}
	start := time.Now()
	err := l.bucket.Wait(ctx)
	limiterWait.Observe(time.Since(start).Seconds())
	return errors.Wrap(err, "rate limiter")
}

func (l *Limiter) Limit() rate.Limit {
	return l.bucket.Limit()
}
