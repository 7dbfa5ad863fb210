package ratelimit

import (
	"context"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/creditmeter/internal/config"
)

const keyTrackOrg = "usage:track:org:%s"

// TrackLimiter throttles usage tracking per organization.
type TrackLimiter struct {
	bucket *TokenBucket
	rate   float64
	burst  int
}

// NewTrackLimiter returns nil when no Redis client is configured.
func NewTrackLimiter(client *redis.Client, cfg config.Config) (*TrackLimiter, error) {
	if client == nil {
		return nil, nil
	}
	limitCfg := cfg.RateLimit
	if limitCfg.TrackOrgRate <= 0 || limitCfg.TrackOrgBurst <= 0 {
		return nil, fmt.Errorf("track rate limit must be positive: rate=%v burst=%d", limitCfg.TrackOrgRate, limitCfg.TrackOrgBurst)
	}
	return &TrackLimiter{
		bucket: NewTokenBucket(client),
		rate:   limitCfg.TrackOrgRate,
		burst:  limitCfg.TrackOrgBurst,
	}, nil
}

func (l *TrackLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

func (l *TrackLimiter) AllowOrg(ctx context.Context, orgID string) (*RateLimitResult, error) {
	if !l.Enabled() {
		return &RateLimitResult{Allowed: true}, nil
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyTrackOrg, strings.TrimSpace(orgID)), l.rate, l.burst)
}
