package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/creditmeter/internal/ledger/domain"
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
	require.NoError(t, db.AutoMigrate(&domain.UsageEvent{}))
	return db
}

func entry(node *snowflake.Node, org string, credits int64, at time.Time) *domain.UsageEvent {
	return &domain.UsageEvent{
		ID:              node.Generate(),
		OrganizationID:  org,
		UserID:          "user-1",
		EventType:       "visuals_sketch",
		CreditsConsumed: credits,
		EventData:       datatypes.JSON(`{"complexity":1}`),
		CreatedAt:       at,
	}
}

func TestAppendListSum(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(setupSQLite(t))
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	march := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Append(ctx, entry(node, "org-1", 10, march)))
	require.NoError(t, repo.Append(ctx, entry(node, "org-1", 15, march.Add(time.Hour))))
	require.NoError(t, repo.Append(ctx, entry(node, "org-1", 99, march.AddDate(0, 1, 0))))
	require.NoError(t, repo.Append(ctx, entry(node, "org-2", 7, march)))

	rng := domain.MonthRange(march)
	rows, err := repo.List(ctx, "org-1", rng)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(10), rows[0].CreditsConsumed)
	assert.JSONEq(t, `{"complexity":1}`, string(rows[0].EventData))

	total, err := repo.SumCredits(ctx, "org-1", rng)
	require.NoError(t, err)
	assert.Equal(t, int64(25), total)

	empty, err := repo.SumCredits(ctx, "org-3", rng)
	require.NoError(t, err)
	assert.Zero(t, empty)
}

func TestAppendRejectsIncompleteEntry(t *testing.T) {
	repo := NewRepository(setupSQLite(t))
	err := repo.Append(context.Background(), &domain.UsageEvent{OrganizationID: "org-1", EventType: "x"})
	assert.ErrorIs(t, err, domain.ErrInvalidEntry)
}

func TestRangeValidation(t *testing.T) {
	repo := NewRepository(setupSQLite(t))
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	_, err := repo.SumCredits(context.Background(), "org-1", domain.Range{From: now, To: now})
	assert.ErrorIs(t, err, domain.ErrInvalidRange)

	_, err = repo.List(context.Background(), " ", domain.MonthRange(now))
	assert.ErrorIs(t, err, domain.ErrInvalidOrganization)
}

func TestPageWalksNewestFirst(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(setupSQLite(t))
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, repo.Append(ctx, entry(node, "org-1", int64(i+1), base.Add(time.Duration(i)*time.Minute))))
	}

	first, err := repo.Page(ctx, domain.PageQuery{OrganizationID: "org-1", Limit: 2})
	require.NoError(t, err)
	require.Len(t, first, 3)
	assert.Equal(t, int64(5), first[0].CreditsConsumed)
	assert.Equal(t, int64(4), first[1].CreditsConsumed)

	last := first[1]
	second, err := repo.Page(ctx, domain.PageQuery{
		OrganizationID: "org-1",
		Limit:          2,
		Cursor:         &domain.PageCursor{ID: last.ID, CreatedAt: last.CreatedAt},
	})
	require.NoError(t, err)
	require.Len(t, second, 3)
	assert.Equal(t, int64(3), second[0].CreditsConsumed)
}

func TestSumCreditsPropagatesStoreError(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: mockDB, DriverName: "postgres"}), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	storeErr := errors.New("i/o timeout")
	mock.ExpectQuery(`SELECT COALESCE\(SUM\(credits_consumed\), 0\)\s+FROM usage_events`).
		WillReturnError(storeErr)

	_, err = NewRepository(db).SumCredits(context.Background(), "org-1", domain.MonthRange(time.Now().UTC()))
	assert.ErrorIs(t, err, storeErr)
	assert.NoError(t, mock.ExpectationsWereMet())
}
