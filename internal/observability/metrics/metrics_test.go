package metrics

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("org_id", "123"),
		attribute.String("user_id", "456"),
		attribute.String("event_type", "visuals_sketch"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	if attrs[0].Key != "org_id" && attrs[1].Key != "org_id" {
		t.Fatalf("expected org_id to be retained")
	}
	if attrs[0].Key != "event_type" && attrs[1].Key != "event_type" {
		t.Fatalf("expected event_type to be retained")
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	ctx := context.Background()
	m.RecordUsageTracked(ctx, "visuals_sketch", "ai_visual", 12)
	m.RecordLimitWarning(ctx, "free", "over")
	m.RecordPreflightDenied(ctx, "free")
	m.RecordRegistryRefresh(ctx, "events", "ok")
	m.RecordRateLimitAllowed(ctx, "org-1", "/v1/usage/track")
	m.RecordRateLimitDenied(ctx, "org-1", "/v1/usage/track", "rate_limited")
}

func TestNewWithNoopProvider(t *testing.T) {
	m, err := New(Config{}, noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("new metrics: %v", err)
	}
	m.RecordUsageTracked(context.Background(), "visuals_sketch", "ai_visual", 12)
}
