package tracing

import (
	"errors"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func TestSafeAttributesFiltersUnknownAndEmpty(t *testing.T) {
	attrs := SafeAttributes(
		attribute.String("org_id", "org-1"),
		attribute.String("user_email", "a@b.c"),
		attribute.String("event_type", ""),
		attribute.Int64("credits", 12),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
}

func TestSafeErrorTruncates(t *testing.T) {
	err := SafeError(errors.New(strings.Repeat("x", 1000)))
	if len(err.Error()) != maxErrorLength {
		t.Fatalf("expected truncation to %d, got %d", maxErrorLength, len(err.Error()))
	}
	if SafeError(nil) != nil {
		t.Fatalf("expected nil")
	}
}
