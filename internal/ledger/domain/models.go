// Package domain defines the append-only usage ledger.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// UsageEvent is one metered operation. Rows are inserted once and never updated or deleted.
type UsageEvent struct {
	ID              snowflake.ID   `gorm:"primaryKey;autoIncrement:false" json:"id"`
	OrganizationID  string         `gorm:"type:varchar(64);not null;index:idx_usage_events_org_created,priority:1" json:"organization_id"`
	UserID          string         `gorm:"type:varchar(64);not null" json:"user_id"`
	EventType       string         `gorm:"type:varchar(128);not null" json:"event_type"`
	CreditsConsumed int64          `gorm:"not null" json:"credits_consumed"`
	SessionID       *string        `gorm:"type:varchar(128)" json:"session_id,omitempty"`
	EventData       datatypes.JSON `gorm:"type:jsonb" json:"event_data,omitempty"`
	CreatedAt       time.Time      `gorm:"not null;index:idx_usage_events_org_created,priority:2" json:"created_at"`
}

// TableName sets the database table name.
func (UsageEvent) TableName() string { return "usage_events" }

// Range is the half-open interval [From, To).
type Range struct {
	From time.Time
	To   time.Time
}

// MonthRange returns the calendar month containing t, in t's location.
func MonthRange(t time.Time) Range {
	from := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	return Range{From: from, To: from.AddDate(0, 1, 0)}
}

func (r Range) Contains(t time.Time) bool {
	return !t.Before(r.From) && t.Before(r.To)
}

// PageQuery lists an organization's entries newest first.
// Cursor, when set, is the last entry of the previous page.
type PageQuery struct {
	OrganizationID string
	EventType      string
	Cursor         *PageCursor
	Limit          int
}

type PageCursor struct {
	ID        snowflake.ID
	CreatedAt time.Time
}
