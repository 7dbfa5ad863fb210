package pricing

import (
	"encoding/json"
	"math"
	"testing"

	eventdomain "github.com/smallbiznis/creditmeter/internal/eventdef/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func analysisDefinition() eventdomain.Definition {
	return eventdomain.Definition{
		EventType:   "analysis",
		BaseCredits: 10,
		Category:    "ai_analysis",
		Multipliers: &eventdomain.Multipliers{
			Complexity: &eventdomain.ComplexityRange{Min: 1, Max: 2.5},
			Features:   map[string]float64{"echo": 5},
		},
	}
}

func TestCostClampsComplexityAndAddsFeatures(t *testing.T) {
	q := Cost(analysisDefinition(), map[string]any{"complexity": 3.0, "echo": true})
	assert.Equal(t, "30", q.Credits.String())
	assert.Equal(t, int64(30), q.Rounded())
	require.NotNil(t, q.Applied.Complexity)
	assert.Equal(t, 2.5, *q.Applied.Complexity)
	assert.Equal(t, map[string]float64{"echo": 5}, q.Applied.Features)
}

func TestCostIsMonotonicInComplexity(t *testing.T) {
	def := analysisDefinition()
	prev := Cost(def, map[string]any{"complexity": 0.0}).Credits
	assert.Equal(t, "10", prev.String(), "scores below the range clamp to min")
	for _, score := range []float64{1, 1.25, 1.5, 2, 2.5, 4, 100} {
		cur := Cost(def, map[string]any{"complexity": score}).Credits
		assert.True(t, cur.GreaterThanOrEqual(prev), "score %v", score)
		assert.True(t, cur.GreaterThanOrEqual(decimalFrom(def.BaseCredits)))
		prev = cur
	}
}

func TestCostIgnoresNonNumericComplexity(t *testing.T) {
	for _, score := range []any{"high", math.NaN(), math.Inf(1), math.Inf(-1), json.Number("NaN")} {
		q := Cost(analysisDefinition(), map[string]any{"complexity": score})
		assert.Equal(t, "10", q.Credits.String(), "score %v", score)
		assert.Nil(t, q.Applied.Complexity, "score %v", score)
	}
}

func TestCostWithoutMultipliers(t *testing.T) {
	def := eventdomain.Definition{EventType: "push_sow_to_loe", BaseCredits: 5}
	q := Cost(def, map[string]any{"complexity": 9, "echo": true})
	assert.Equal(t, int64(5), q.Rounded())
	assert.Nil(t, q.Applied.Features)
}

func TestRoundingHappensOnce(t *testing.T) {
	def := eventdomain.Definition{
		BaseCredits: 8,
		Multipliers: &eventdomain.Multipliers{
			Complexity: &eventdomain.ComplexityRange{Min: 1, Max: 3},
			Features:   map[string]float64{"echo": 0.25, "traceback": 0.25},
		},
	}
	q := Cost(def, map[string]any{"complexity": 1.1875, "echo": 1, "traceback": "yes"})
	// 8 * 1.1875 = 9.5, + 0.5 = 10.0
	assert.Equal(t, "10", q.Credits.String())

	half := Override(2.5)
	assert.Equal(t, int64(3), half.Rounded())
	assert.Equal(t, int64(0), Override(-4).Rounded())
}

func TestTruthy(t *testing.T) {
	for _, v := range []any{true, 1, 2.5, "yes", "true", []any{1}, map[string]any{"a": 1}} {
		assert.True(t, Truthy(v), "%#v", v)
	}
	for _, v := range []any{nil, false, 0, 0.0, "", "false", "0", []any{}} {
		assert.False(t, Truthy(v), "%#v", v)
	}
}
