package domain

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

var (
	ErrInvalidEntry        = errors.New("invalid_ledger_entry")
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidRange        = errors.New("invalid_range")
)

//go:generate mockgen -source=repository.go -destination=./mocks/mock_repository.go -package=mocks
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Append(ctx context.Context, entry *UsageEvent) error
	List(ctx context.Context, orgID string, r Range) ([]UsageEvent, error)
	SumCredits(ctx context.Context, orgID string, r Range) (int64, error)
	Page(ctx context.Context, q PageQuery) ([]*UsageEvent, error)
}
