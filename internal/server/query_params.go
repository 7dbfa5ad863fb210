package server

import (
	"math"
	"strconv"
	"strings"
	"time"

	usagedomain "github.com/smallbiznis/creditmeter/internal/usage/domain"
)

const monthLayout = "2006-01"

func parseOptionalFloat(value string) (*float64, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	parsed, err := strconv.ParseFloat(trimmed, 64)
	if err != nil || math.IsNaN(parsed) {
		return nil, ErrInvalidRequest
	}
	return &parsed, nil
}

// parseMonth reads YYYY-MM as a UTC month. Empty yields the zero time, meaning the current month.
func parseMonth(value string) (time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return time.Time{}, nil
	}
	parsed, err := time.Parse(monthLayout, trimmed)
	if err != nil {
		return time.Time{}, usagedomain.ErrInvalidMonth
	}
	return parsed, nil
}

// parseMonthCount returns 0 for an empty value so the aggregator applies its default.
func parseMonthCount(value string) (int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, nil
	}
	parsed, err := strconv.Atoi(trimmed)
	if err != nil {
		return 0, usagedomain.ErrInvalidMonthCount
	}
	return parsed, nil
}
