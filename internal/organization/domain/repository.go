package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	// CreateOrganization inserts org unless its ID exists and reports whether it did.
	CreateOrganization(ctx context.Context, org Organization) (bool, error)
	GetOrganization(ctx context.Context, id string) (*Organization, error)
	UpdatePlan(ctx context.Context, id, planName string, at time.Time) (bool, error)
	UpsertMember(ctx context.Context, member OrganizationMember) error
	ListMembers(ctx context.Context, orgID string, userIDs []string) ([]OrganizationMember, error)
}
