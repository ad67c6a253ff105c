package observability

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestFromContextAddsRequestID(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	prev := L()
	SetLogger(zap.New(core))
	t.Cleanup(func() { SetLogger(prev) })

	ctx := WithRequestID(context.Background(), "req-42")
	FromContext(ctx).Info("handled")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if got := entries[0].ContextMap()["request_id"]; got != "req-42" {
		t.Errorf("request_id = %v, want req-42", got)
	}
}

func TestInitRejectsBadLevel(t *testing.T) {
	if _, err := Init("development", "loud"); err == nil {
		t.Fatal("expected error for unknown level")
	}
}
