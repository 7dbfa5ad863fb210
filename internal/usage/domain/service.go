package domain

import (
	"context"
	"errors"
	"io"
	"time"

	ledgerdomain "github.com/smallbiznis/creditmeter/internal/ledger/domain"
	"github.com/smallbiznis/creditmeter/pkg/db/pagination"
)

// Meter records billable events. Track always writes; CheckUsageLimits never does.
type Meter interface {
	Track(ctx context.Context, req TrackRequest) (TrackResult, error)
	CheckUsageLimits(ctx context.Context, req CheckRequest) (CheckResult, error)
}

// Aggregator derives every usage view from the ledger.
type Aggregator interface {
	Breakdown(ctx context.Context, orgID string, month time.Time) (Breakdown, error)
	Trends(ctx context.Context, orgID string, months int) (Trends, error)
	Overview(ctx context.Context, orgID string) (Overview, error)
	Entries(ctx context.Context, req ListEntriesRequest) (ListEntriesResponse, error)
	Statement(ctx context.Context, orgID string, month time.Time) (io.Reader, error)
}

type ListEntriesRequest struct {
	OrganizationID string
	EventType      string
	pagination.Pagination
}

type ListEntriesResponse struct {
	pagination.PageInfo
	Entries []ledgerdomain.UsageEvent `json:"entries"`
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidUser         = errors.New("invalid_user")
	ErrInvalidEventType    = errors.New("invalid_event_type")
	ErrInvalidCredits      = errors.New("invalid_credits")
	ErrInvalidEventData    = errors.New("invalid_event_data")
	ErrInvalidMonth        = errors.New("invalid_month")
	ErrInvalidMonthCount   = errors.New("invalid_month_count")
	ErrInvalidPageToken    = errors.New("invalid_page_token")
	ErrTrackingFailed      = errors.New("tracking_failed")
	ErrStandingUnavailable = errors.New("usage_standing_unavailable")
)
