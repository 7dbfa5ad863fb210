package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/creditmeter/internal/configstore/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func setupSQLite(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&domain.Document{}))
	return db
}

func TestRepositoryUpsertListGetDelete(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(setupSQLite(t))

	require.NoError(t, repo.Upsert(ctx, domain.Document{
		Kind: domain.KindEvent,
		Key:  "visuals_sketch",
		Body: datatypes.JSON(`{"baseCredits":12}`),
	}))
	require.NoError(t, repo.Upsert(ctx, domain.Document{
		Kind: domain.KindPlan,
		Key:  "free",
		Body: datatypes.JSON(`{"monthlyCredits":100}`),
	}))
	require.NoError(t, repo.Upsert(ctx, domain.Document{
		Kind: domain.KindEvent,
		Key:  "visuals_sketch",
		Body: datatypes.JSON(`{"baseCredits":14}`),
	}))

	events, err := repo.List(ctx, domain.KindEvent)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.JSONEq(t, `{"baseCredits":14}`, string(events[0].Body))

	doc, err := repo.Get(ctx, domain.KindPlan, "free")
	require.NoError(t, err)
	assert.Equal(t, "free", doc.Key)

	_, err = repo.Get(ctx, domain.KindPlan, "visuals_sketch")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	removed, err := repo.Delete(ctx, domain.KindEvent, "visuals_sketch")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = repo.Delete(ctx, domain.KindEvent, "visuals_sketch")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestRepositoryListPropagatesStoreError(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: mockDB, DriverName: "postgres"}), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	storeErr := errors.New("connection refused")
	mock.ExpectQuery(`SELECT kind, doc_key, body, created_at, updated_at\s+FROM config_documents\s+WHERE kind = \$1`).
		WithArgs("event").
		WillReturnError(storeErr)

	_, err = NewRepository(db).List(context.Background(), domain.KindEvent)
	assert.ErrorIs(t, err, storeErr)
	assert.NoError(t, mock.ExpectationsWereMet())
}
