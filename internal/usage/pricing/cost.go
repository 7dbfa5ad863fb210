// Package pricing computes the credit cost of a billable event.
package pricing

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	eventdomain "github.com/smallbiznis/creditmeter/internal/eventdef/domain"
)

const complexityKey = "complexity"

// Applied records which multipliers contributed to a cost.
type Applied struct {
	Complexity *float64           `json:"complexity,omitempty"`
	Features   map[string]float64 `json:"features,omitempty"`
}

// Quote is an exact cost before rounding.
type Quote struct {
	Credits decimal.Decimal
	Applied Applied
}

// Rounded returns the persisted amount: half away from zero, never negative.
func (q Quote) Rounded() int64 {
	v := q.Credits.Round(0).IntPart()
	if v < 0 {
		return 0
	}
	return v
}

// Cost prices one event: base, times the clamped complexity when the definition
// declares a range and data carries a numeric score, plus each truthy feature.
func Cost(def eventdomain.Definition, data map[string]any) Quote {
	credits := decimal.NewFromFloat(def.BaseCredits)
	var applied Applied

	if def.HasComplexity() {
		if score, ok := numeric(data[complexityKey]); ok {
			clamped := def.Multipliers.Complexity.Clamp(score)
			credits = credits.Mul(decimal.NewFromFloat(clamped))
			applied.Complexity = &clamped
		}
	}

	features := def.FeatureCredits()
	names := make([]string, 0, len(features))
	for name := range features {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if !Truthy(data[name]) {
			continue
		}
		amount := features[name]
		credits = credits.Add(decimal.NewFromFloat(amount))
		if applied.Features == nil {
			applied.Features = make(map[string]float64)
		}
		applied.Features[name] = amount
	}

	return Quote{Credits: credits, Applied: applied}
}

// Override prices an event with a caller supplied amount.
func Override(credits float64) Quote {
	return Quote{Credits: decimal.NewFromFloat(credits)}
}

// numeric reports finite numbers only; NaN and ±Inf are treated as absent.
func numeric(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// Truthy follows JSON intuition: false, 0, "", "false", null and empty
// collections are false; everything else is true.
func Truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return false
		}
		if b, err := strconv.ParseBool(s); err == nil {
			return b
		}
		return true
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	default:
		if f, ok := numeric(v); ok {
			return f != 0
		}
		return true
	}
}
