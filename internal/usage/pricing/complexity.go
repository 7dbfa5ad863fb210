package pricing

// FeatureFlagNames are the request body fields recognised as feature flags.
var FeatureFlagNames = []string{"echo", "traceback", "enhanced", "priority", "detailed"}

// ComplexityFromInput scores an input by its size: text length, item count or key count.
func ComplexityFromInput(input any) float64 {
	switch v := input.(type) {
	case string:
		n := len([]rune(v))
		switch {
		case n < 100:
			return 1.0
		case n < 500:
			return 1.2
		case n < 1000:
			return 1.5
		case n < 2000:
			return 2.0
		default:
			return 2.5
		}
	case []any:
		n := len(v)
		switch {
		case n < 5:
			return 1.0
		case n < 20:
			return 1.3
		case n < 50:
			return 1.7
		default:
			return 2.2
		}
	case map[string]any:
		n := len(v)
		switch {
		case n < 5:
			return 1.0
		case n < 15:
			return 1.4
		case n < 30:
			return 1.8
		default:
			return 2.3
		}
	default:
		return 1.0
	}
}

// FeatureFlags picks the known flags present in body.
func FeatureFlags(body map[string]any) map[string]bool {
	flags := make(map[string]bool)
	for _, name := range FeatureFlagNames {
		if v, ok := body[name]; ok {
			flags[name] = Truthy(v)
		}
	}
	return flags
}
