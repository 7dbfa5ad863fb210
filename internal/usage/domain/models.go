// Package domain defines the metering and usage analytics contracts.
package domain

import (
	"time"

	orgdomain "github.com/smallbiznis/creditmeter/internal/organization/domain"
	plandomain "github.com/smallbiznis/creditmeter/internal/plandef/domain"
)

// Unlimited is reported for allotments and remaining credits of unlimited plans.
const Unlimited int64 = -1

const (
	ActionOverLimit = "Consider upgrading your plan or purchasing additional credits"
	ActionNearLimit = "You are approaching your monthly limit"
)

type TrackRequest struct {
	OrganizationID string
	UserID         string
	EventType      string
	EventData      map[string]any
	SessionID      *string
	// CreditsOverride replaces the computed cost verbatim.
	CreditsOverride *float64
	SkipLimitCheck  bool
}

type LimitWarning struct {
	PercentageUsed    float64 `json:"percentageUsed"`
	IsNearLimit       bool    `json:"isNearLimit"`
	IsOverLimit       bool    `json:"isOverLimit"`
	RecommendedAction string  `json:"recommendedAction,omitempty"`
}

type TrackResult struct {
	CreditsConsumed  int64         `json:"creditsConsumed"`
	RemainingCredits int64         `json:"remainingCredits"`
	LimitWarning     *LimitWarning `json:"limitWarning,omitempty"`
	LedgerEntryID    string        `json:"ledgerEntryId"`
}

type CheckRequest struct {
	OrganizationID string
	EventType      string
	CreditsNeeded  *float64
	EventData      map[string]any
	SkipLimitCheck bool
}

type CheckResult struct {
	Allowed          bool    `json:"allowed"`
	RemainingCredits int64   `json:"remainingCredits"`
	PercentageUsed   float64 `json:"percentageUsed"`
	CreditsNeeded    int64   `json:"creditsNeeded"`
	Reason           string  `json:"reason,omitempty"`
}

type EventUsage struct {
	Count   int64 `json:"count"`
	Credits int64 `json:"credits"`
}

type UserUsage struct {
	Name    string `json:"name"`
	Count   int64  `json:"count"`
	Credits int64  `json:"credits"`
}

type DailyUsage struct {
	Date    string `json:"date"`
	Credits int64  `json:"credits"`
}

type TopEvent struct {
	EventType  string  `json:"eventType"`
	Credits    int64   `json:"credits"`
	Percentage float64 `json:"percentage"`
}

type Breakdown struct {
	Month            string                `json:"month"`
	PlanName         string                `json:"planName"`
	Unlimited        bool                  `json:"unlimited"`
	TotalCredits     int64                 `json:"totalCredits"`
	UsedCredits      int64                 `json:"usedCredits"`
	RemainingCredits int64                 `json:"remainingCredits"`
	PercentageUsed   float64               `json:"percentageUsed"`
	IsNearLimit      bool                  `json:"isNearLimit"`
	IsOverLimit      bool                  `json:"isOverLimit"`
	EventBreakdown   map[string]EventUsage `json:"eventBreakdown"`
	UserBreakdown    map[string]UserUsage  `json:"userBreakdown"`
	DailyUsage       []DailyUsage          `json:"dailyUsage"`
	TopEvents        []TopEvent            `json:"topEvents"`
}

type MonthlyTrend struct {
	Month   string  `json:"month"`
	Credits int64   `json:"credits"`
	Growth  float64 `json:"growth"`
}

type Forecast struct {
	UsedSoFar           int64   `json:"usedSoFar"`
	AverageDailyUsage   float64 `json:"averageDailyUsage"`
	DaysElapsed         int     `json:"daysElapsed"`
	RemainingDays       int     `json:"remainingDays"`
	ProjectedEndOfMonth int64   `json:"projectedEndOfMonth"`
	MonthlyCredits      int64   `json:"monthlyCredits"`
	WillExceedLimit     bool    `json:"willExceedLimit"`
	ConsistencyScore    int     `json:"consistencyScore"`
	NextMonthEstimate   int64   `json:"nextMonthEstimate"`
	Confidence          int     `json:"confidence"`
}

type Trends struct {
	MonthlyTrends []MonthlyTrend `json:"monthlyTrends"`
	Forecast      Forecast       `json:"forecast"`
}

const (
	WarningCritical = "critical"
	WarningWarning  = "warning"
)

type Warning struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Action  string `json:"action"`
}

// Overview is the management view of one organization's standing.
type Overview struct {
	Organization orgdomain.Organization    `json:"organization"`
	Plan         plandomain.Definition     `json:"plan"`
	Usage        Breakdown                 `json:"usage"`
	Trends       Trends                    `json:"trends"`
	PeakDay      *DailyUsage               `json:"peakDay,omitempty"`
	Warnings     []Warning                 `json:"warnings"`
	Upgrade      plandomain.Recommendation `json:"upgrade"`
	GeneratedAt  time.Time                 `json:"generatedAt"`
}
