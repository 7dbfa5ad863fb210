package repository

import (
	"context"
	"time"

	"github.com/smallbiznis/creditmeter/internal/organization/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) domain.Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) domain.Repository {
	return &repository{db: tx}
}

func (r *repository) CreateOrganization(ctx context.Context, org domain.Organization) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}).
		Create(&org)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) GetOrganization(ctx context.Context, id string) (*domain.Organization, error) {
	var orgs []domain.Organization
	err := r.db.WithContext(ctx).Raw(
		`SELECT id, name, plan_name, created_at, updated_at
		 FROM organizations
		 WHERE id = ?`,
		id,
	).Scan(&orgs).Error
	if err != nil {
		return nil, err
	}
	if len(orgs) == 0 {
		return nil, nil
	}
	return &orgs[0], nil
}

func (r *repository) UpdatePlan(ctx context.Context, id, planName string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Exec(
		`UPDATE organizations SET plan_name = ?, updated_at = ? WHERE id = ?`,
		planName,
		at,
		id,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) UpsertMember(ctx context.Context, member domain.OrganizationMember) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "org_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"display_name", "role"}),
	}).Create(&member).Error
}

func (r *repository) ListMembers(ctx context.Context, orgID string, userIDs []string) ([]domain.OrganizationMember, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	var members []domain.OrganizationMember
	err := r.db.WithContext(ctx).Raw(
		`SELECT org_id, user_id, display_name, role, created_at
		 FROM organization_members
		 WHERE org_id = ? AND user_id IN ?`,
		orgID,
		userIDs,
	).Scan(&members).Error
	if err != nil {
		return nil, err
	}
	return members, nil
}
