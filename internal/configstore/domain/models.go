package domain

import (
	"context"
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Kind partitions config_documents by definition type.
type Kind string

const (
	KindEvent Kind = "event"
	KindPlan  Kind = "plan"
)

var ErrNotFound = errors.New("config_document_not_found")

// Document is one stored definition, serialized as JSON.
type Document struct {
	Kind      Kind           `gorm:"primaryKey;type:varchar(16)"`
	Key       string         `gorm:"column:doc_key;primaryKey;type:varchar(128)"`
	Body      datatypes.JSON `gorm:"type:jsonb;not null"`
	CreatedAt time.Time      `gorm:"not null"`
	UpdatedAt time.Time      `gorm:"not null"`
}

func (Document) TableName() string { return "config_documents" }

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	List(ctx context.Context, kind Kind) ([]Document, error)
	Get(ctx context.Context, kind Kind, key string) (*Document, error)
	Upsert(ctx context.Context, doc Document) error
	// Delete reports whether a row was removed.
	Delete(ctx context.Context, kind Kind, key string) (bool, error)
}
