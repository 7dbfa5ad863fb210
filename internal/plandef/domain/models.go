package domain

import "encoding/json"

// Unlimited marks an allotment or limit with no cap.
const Unlimited int64 = -1

type Pricing struct {
	Monthly float64 `json:"monthly"`
	Annual  float64 `json:"annual"`
}

// Limits are secondary resource caps. Each is Unlimited or >= 0.
type Limits struct {
	AICallsPerMonth    int64 `json:"aiCallsPerMonth"`
	PDFExportsPerMonth int64 `json:"pdfExportsPerMonth"`
	SessionLimit       int64 `json:"sessionLimit"`
	TeamMembersLimit   int64 `json:"teamMembersLimit"`
	StorageLimit       int64 `json:"storageLimit"`
}

// Definition is a tenant plan: monthly allotment, price and limits.
type Definition struct {
	PlanName       string   `json:"planName"`
	DisplayName    string   `json:"displayName"`
	MonthlyCredits int64    `json:"monthlyCredits"`
	Pricing        Pricing  `json:"pricing"`
	Limits         Limits   `json:"limits"`
	Features       []string `json:"features"`
	OverageRate    float64  `json:"overageRate"`
}

func (d Definition) IsUnlimited() bool {
	return d.MonthlyCredits == Unlimited
}

// Recommendation is the outcome of an upgrade evaluation.
type Recommendation struct {
	ShouldUpgrade   bool   `json:"shouldUpgrade"`
	RecommendedPlan string `json:"recommendedPlan,omitempty"`
	Reason          string `json:"reason,omitempty"`
}

type UpdateRequest struct {
	PlanName string
	Patch    json.RawMessage
}
