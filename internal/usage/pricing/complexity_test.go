package pricing

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func decimalFrom(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

func TestComplexityFromInput(t *testing.T) {
	cases := []struct {
		name  string
		input any
		want  float64
	}{
		{"short text", "hello", 1.0},
		{"medium text", strings.Repeat("a", 200), 1.2},
		{"long text", strings.Repeat("a", 999), 1.5},
		{"longer text", strings.Repeat("a", 1500), 2.0},
		{"huge text", strings.Repeat("a", 5000), 2.5},
		{"few items", []any{1, 2}, 1.0},
		{"many items", make([]any, 60), 2.2},
		{"small object", map[string]any{"a": 1}, 1.0},
		{"medium object", objectWith(10), 1.4},
		{"large object", objectWith(40), 2.3},
		{"number", 42, 1.0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ComplexityFromInput(tc.input))
		})
	}
}

func TestFeatureFlags(t *testing.T) {
	flags := FeatureFlags(map[string]any{"echo": true, "detailed": 0, "other": true})
	assert.Equal(t, map[string]bool{"echo": true, "detailed": false}, flags)
}

func objectWith(n int) map[string]any {
	m := make(map[string]any, n)
	for i := 0; i < n; i++ {
		m[strings.Repeat("k", i+1)] = i
	}
	return m
}
