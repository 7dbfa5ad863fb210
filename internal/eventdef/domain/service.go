package domain

import (
	"context"
	"errors"

	"github.com/smallbiznis/creditmeter/internal/cache"
)

var (
	ErrUnknownEventType       = errors.New("unknown_event_type")
	ErrInvalidEventDefinition = errors.New("invalid_event_definition")
	ErrRegistryUnavailable    = errors.New("event_registry_unavailable")
)

// Service is the Event Registry: a TTL cache of event definitions in front
// of the config document store.
type Service interface {
	Get(ctx context.Context, eventType string) (Definition, error)
	Exists(ctx context.Context, eventType string) bool
	List(ctx context.Context) map[string]Definition
	ListByCategory(ctx context.Context, category string) map[string]Definition

	Update(ctx context.Context, req UpdateRequest) (Definition, error)
	Delete(ctx context.Context, eventType string) error
	Refresh(ctx context.Context) error
	CacheInfo() cache.Info
}
