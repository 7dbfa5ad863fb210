package domain

import (
	"context"
	"errors"

	"github.com/smallbiznis/creditmeter/internal/cache"
)

var (
	ErrUnknownPlan           = errors.New("unknown_plan")
	ErrInvalidPlanDefinition = errors.New("invalid_plan_definition")
	ErrInvalidPriceRange     = errors.New("invalid_price_range")
	ErrRegistryUnavailable   = errors.New("plan_registry_unavailable")
)

// Service is the Plan Registry.
type Service interface {
	Get(ctx context.Context, planName string) (Definition, error)
	Exists(ctx context.Context, planName string) bool
	List(ctx context.Context) map[string]Definition
	SortedByPrice(ctx context.Context) []Definition
	ByPriceRange(ctx context.Context, min, max float64) ([]Definition, error)
	UpgradeRecommendation(ctx context.Context, planName string, used int64) (Recommendation, error)

	Update(ctx context.Context, req UpdateRequest) (Definition, error)
	Delete(ctx context.Context, planName string) error
	Refresh(ctx context.Context) error
	CacheInfo() cache.Info
}
