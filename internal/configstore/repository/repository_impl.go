package repository

import (
	"context"

	"github.com/smallbiznis/creditmeter/internal/configstore/domain"
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

func (r *repository) List(ctx context.Context, kind domain.Kind) ([]domain.Document, error) {
	var docs []domain.Document
	err := r.db.WithContext(ctx).Raw(
		`SELECT kind, doc_key, body, created_at, updated_at
		 FROM config_documents
		 WHERE kind = ?
		 ORDER BY doc_key ASC`,
		kind,
	).Scan(&docs).Error
	if err != nil {
		return nil, err
	}
	return docs, nil
}

func (r *repository) Get(ctx context.Context, kind domain.Kind, key string) (*domain.Document, error) {
	var docs []domain.Document
	err := r.db.WithContext(ctx).Raw(
		`SELECT kind, doc_key, body, created_at, updated_at
		 FROM config_documents
		 WHERE kind = ? AND doc_key = ?`,
		kind,
		key,
	).Scan(&docs).Error
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, domain.ErrNotFound
	}
	return &docs[0], nil
}

func (r *repository) Upsert(ctx context.Context, doc domain.Document) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "kind"}, {Name: "doc_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"body", "updated_at"}),
	}).Create(&doc).Error
}

func (r *repository) Delete(ctx context.Context, kind domain.Kind, key string) (bool, error) {
	res := r.db.WithContext(ctx).Exec(
		`DELETE FROM config_documents WHERE kind = ? AND doc_key = ?`,
		kind,
		key,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
