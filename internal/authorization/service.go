package authorization

import (
	"context"
	"errors"

	"go.uber.org/fx"
)

var Module = fx.Module("authorization",
	fx.Provide(NewEnforcer),
	fx.Provide(NewService),
)

var (
	ErrInvalidActor        = errors.New("invalid_actor")
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidObject       = errors.New("invalid_object")
	ErrInvalidAction       = errors.New("invalid_action")
	ErrForbidden           = errors.New("forbidden")
)

// Actor is the caller as asserted by the upstream identity resolver.
type Actor struct {
	// Subject is "system" or "user:<id>".
	Subject string
	// ClaimedRole applies when the user has no membership row in the organization.
	ClaimedRole string
}

type Service interface {
	// Authorize checks an action inside one organization.
	Authorize(ctx context.Context, actor Actor, orgID string, object string, action string) error
	// AuthorizeOperator checks an action on state shared by all organizations.
	AuthorizeOperator(ctx context.Context, actor Actor, object string, action string) error
}
