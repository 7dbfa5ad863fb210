package service

import (
	"context"
	"strings"

	"github.com/smallbiznis/creditmeter/internal/config"
	orgdomain "github.com/smallbiznis/creditmeter/internal/organization/domain"
	plandomain "github.com/smallbiznis/creditmeter/internal/plandef/domain"
	"github.com/smallbiznis/creditmeter/internal/usage/domain"
)

// standing is an organization's position against its monthly allotment.
type standing struct {
	used      int64
	remaining int64
	percent   float64
	near      bool
	over      bool
	unlimited bool
}

func evaluate(plan plandomain.Definition, used int64, cfg config.MeteringConfig) standing {
	st := standing{used: used}
	if plan.IsUnlimited() {
		st.unlimited = true
		st.remaining = domain.Unlimited
		return st
	}
	st.remaining = max(0, plan.MonthlyCredits-used)
	if plan.MonthlyCredits > 0 {
		st.percent = float64(used) / float64(plan.MonthlyCredits) * 100
	}
	st.near = st.percent >= cfg.NearLimitPercent
	st.over = st.percent >= cfg.OverLimitPercent
	return st
}

// warning is nil for unlimited plans.
func (st standing) warning() *domain.LimitWarning {
	if st.unlimited {
		return nil
	}
	w := &domain.LimitWarning{
		PercentageUsed: st.percent,
		IsNearLimit:    st.near,
		IsOverLimit:    st.over,
	}
	switch {
	case st.over:
		w.RecommendedAction = domain.ActionOverLimit
	case st.near:
		w.RecommendedAction = domain.ActionNearLimit
	}
	return w
}

func (st standing) level() string {
	switch {
	case st.over:
		return "over"
	case st.near:
		return "near"
	default:
		return ""
	}
}

type planResolver struct {
	orgs  orgdomain.Service
	plans plandomain.Service
}

func (r planResolver) resolve(ctx context.Context, orgID string) (plandomain.Definition, error) {
	name, err := r.orgs.PlanName(ctx, orgID)
	if err != nil {
		return plandomain.Definition{}, err
	}
	return r.plans.Get(ctx, strings.TrimSpace(name))
}
