package cache

import (
	"strings"
	"time"

	"github.com/smallbiznis/creditmeter/internal/clock"
)

const (
	defaultOrgPlanTTL    = 45 * time.Second
	defaultMemberNameTTL = 10 * time.Minute
)

// UsageResolverCache stores hot-path lookups made while metering usage.
type UsageResolverCache interface {
	GetOrgPlan(orgID string) (string, bool)
	SetOrgPlan(orgID, planName string)
	InvalidateOrg(orgID string)
	GetMemberName(orgID, userID string) (string, bool)
	SetMemberName(orgID, userID, name string)
}

type usageResolverCache struct {
	plans   Cache[string, string]
	members Cache[string, string]
	planTTL time.Duration
	nameTTL time.Duration
}

// NewUsageResolverCache returns an in-memory cache tuned for the track path.
func NewUsageResolverCache(clk clock.Clock) UsageResolverCache {
	return &usageResolverCache{
		plans:   NewTTLCache[string, string](clk),
		members: NewTTLCache[string, string](clk),
		planTTL: defaultOrgPlanTTL,
		nameTTL: defaultMemberNameTTL,
	}
}

func (c *usageResolverCache) GetOrgPlan(orgID string) (string, bool) {
	return c.plans.Get(strings.TrimSpace(orgID))
}

func (c *usageResolverCache) SetOrgPlan(orgID, planName string) {
	planName = strings.TrimSpace(planName)
	if planName == "" {
		return
	}
	c.plans.Set(strings.TrimSpace(orgID), planName, c.planTTL)
}

func (c *usageResolverCache) InvalidateOrg(orgID string) {
	c.plans.Delete(strings.TrimSpace(orgID))
}

func (c *usageResolverCache) GetMemberName(orgID, userID string) (string, bool) {
	return c.members.Get(cacheKey(orgID, userID))
}

func (c *usageResolverCache) SetMemberName(orgID, userID, name string) {
	if strings.TrimSpace(name) == "" {
		return
	}
	c.members.Set(cacheKey(orgID, userID), name, c.nameTTL)
}

func cacheKey(parts ...string) string {
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return strings.Join(parts, ":")
}
