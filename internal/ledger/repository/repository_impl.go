package repository

import (
	"context"
	"strings"

	"github.com/smallbiznis/creditmeter/internal/ledger/domain"
	"gorm.io/gorm"
)

const maxPageSize = 250

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) domain.Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) domain.Repository {
	return &repository{db: tx}
}

func (r *repository) Append(ctx context.Context, entry *domain.UsageEvent) error {
	if entry == nil || entry.ID == 0 || entry.CreatedAt.IsZero() {
		return domain.ErrInvalidEntry
	}
	if strings.TrimSpace(entry.OrganizationID) == "" || strings.TrimSpace(entry.EventType) == "" {
		return domain.ErrInvalidEntry
	}
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) List(ctx context.Context, orgID string, rng domain.Range) ([]domain.UsageEvent, error) {
	if err := checkScope(orgID, rng); err != nil {
		return nil, err
	}
	var rows []domain.UsageEvent
	err := r.db.WithContext(ctx).Raw(
		`SELECT id, organization_id, user_id, event_type, credits_consumed, session_id, event_data, created_at
		 FROM usage_events
		 WHERE organization_id = ? AND created_at >= ? AND created_at < ?
		 ORDER BY created_at ASC, id ASC`,
		orgID,
		rng.From,
		rng.To,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) SumCredits(ctx context.Context, orgID string, rng domain.Range) (int64, error) {
	if err := checkScope(orgID, rng); err != nil {
		return 0, err
	}
	var total int64
	err := r.db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(credits_consumed), 0)
		 FROM usage_events
		 WHERE organization_id = ? AND created_at >= ? AND created_at < ?`,
		orgID,
		rng.From,
		rng.To,
	).Scan(&total).Error
	if err != nil {
		return 0, err
	}
	return total, nil
}

// Page returns up to Limit+1 rows so callers can tell whether another page exists.
func (r *repository) Page(ctx context.Context, q domain.PageQuery) ([]*domain.UsageEvent, error) {
	if strings.TrimSpace(q.OrganizationID) == "" {
		return nil, domain.ErrInvalidOrganization
	}
	limit := q.Limit
	if limit <= 0 || limit > maxPageSize {
		limit = maxPageSize
	}

	stmt := r.db.WithContext(ctx).
		Model(&domain.UsageEvent{}).
		Where("organization_id = ?", q.OrganizationID)
	if et := strings.TrimSpace(q.EventType); et != "" {
		stmt = stmt.Where("event_type = ?", et)
	}
	if q.Cursor != nil {
		stmt = stmt.Where(
			"(created_at < ? OR (created_at = ? AND id < ?))",
			q.Cursor.CreatedAt, q.Cursor.CreatedAt, q.Cursor.ID,
		)
	}

	var rows []*domain.UsageEvent
	err := stmt.Order("created_at DESC").Order("id DESC").Limit(limit + 1).Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func checkScope(orgID string, rng domain.Range) error {
	if strings.TrimSpace(orgID) == "" {
		return domain.ErrInvalidOrganization
	}
	if rng.From.IsZero() || !rng.From.Before(rng.To) {
		return domain.ErrInvalidRange
	}
	return nil
}
