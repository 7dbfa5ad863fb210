package server

import (
	"context"
	"math"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/creditmeter/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/creditmeter/internal/observability/metrics"
	"go.uber.org/zap"
)

const rateLimitReasonOrgRate = "org-rate"

// TrackRateLimit applies the per-organization token bucket to track calls.
// A Redis failure lets the request through.
func (s *Server) TrackRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.limiter.Enabled() {
			c.Next()
			return
		}

		id, err := identityFromRequest(c)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		ctx := c.Request.Context()
		endpoint := normalizeRateLimitEndpoint(c)

		res, err := s.limiter.AllowOrg(ctx, id.OrgID)
		if err != nil {
			logger.FromContext(ctx).Warn("track rate limit check failed", zap.Error(err))
			c.Next()
			return
		}
		if res.Limit > 0 {
			c.Header("X-RateLimit-Limit", strconv.Itoa(res.Limit))
			c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		}
		if !res.Allowed {
			retryAfter := int(math.Ceil(res.RetryAfter.Seconds()))
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Header("Retry-After", strconv.Itoa(retryAfter))
			denyTrackRateLimit(c, endpoint, id.OrgID, s.obsMetrics)
			return
		}

		recordRateLimitAllowed(ctx, endpoint, id.OrgID, s.obsMetrics)
		c.Next()
	}
}

func denyTrackRateLimit(c *gin.Context, endpoint, orgID string, metrics *obsmetrics.Metrics) {
	ctx := c.Request.Context()
	logger.FromContext(ctx).Warn("track rate limit exceeded",
		zap.String("reason", rateLimitReasonOrgRate),
		zap.String("endpoint", endpoint),
	)
	recordRateLimitDenied(ctx, endpoint, orgID, rateLimitReasonOrgRate, metrics)

	c.Header("X-Rate-Limited-Reason", rateLimitReasonOrgRate)
	AbortWithError(c, ErrRateLimited)
}

func recordRateLimitAllowed(ctx context.Context, endpoint, orgID string, metrics *obsmetrics.Metrics) {
	if metrics == nil {
		return
	}
	metrics.RecordRateLimitAllowed(ctx, orgID, endpoint)
}

func recordRateLimitDenied(ctx context.Context, endpoint, orgID, reason string, metrics *obsmetrics.Metrics) {
	if metrics == nil {
		return
	}
	metrics.RecordRateLimitDenied(ctx, orgID, endpoint, reason)
}

func normalizeRateLimitEndpoint(c *gin.Context) string {
	if c == nil {
		return "unknown"
	}
	endpoint := strings.TrimSpace(c.FullPath())
	if endpoint == "" {
		endpoint = strings.TrimSpace(c.Request.URL.Path)
	}
	if endpoint == "" {
		endpoint = "unknown"
	}
	return endpoint
}
