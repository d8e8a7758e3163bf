package middleware_test

import (
	"context"
	"testing"

	"github.com/aretw0/sluice/pkg/persistence/middleware"
)

func TestRedactMiddleware_Masking(t *testing.T) {
	underlyingStore := NewMockStore()
	store := middleware.NewRedactMiddleware([]string{"password", "token"})(underlyingStore)

	ctx := context.Background()
	snap := snapshotWith(map[string]any{
		"user":          "jdoe",
		"user_password": "secret123",
		"auth": map[string]any{
			"endpoint":  "https://example.invalid",
			"api_token": "abc",
		},
	})

	if err := store.Save(ctx, "g", snap); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if snap.Nodes[0].Dictionary["user_password"] != "secret123" {
		t.Error("Middleware modified the snapshot in memory")
	}

	stored, err := underlyingStore.Load(ctx, "g")
	if err != nil {
		t.Fatalf("Underlying load failed: %v", err)
	}
	params := stored.Nodes[0].Dictionary
	if params["user"] != "jdoe" {
		t.Error("user shouldn't be masked")
	}
	if params["user_password"] != middleware.Redacted {
		t.Errorf("password should be masked, got: %v", params["user_password"])
	}
	auth := params["auth"].(map[string]any)
	if auth["api_token"] != middleware.Redacted {
		t.Errorf("nested token should be masked, got: %v", auth["api_token"])
	}
	if auth["endpoint"] != "https://example.invalid" {
		t.Error("endpoint shouldn't be masked")
	}
}

func TestChain_OrdersOutermostFirst(t *testing.T) {
	underlyingStore := NewMockStore()
	key := generateKey(t)
	store := middleware.Chain(underlyingStore,
		middleware.NewRedactMiddleware([]string{"secret"}),
		middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: key}),
	)

	ctx := context.Background()
	if err := store.Save(ctx, "g", snapshotWith(map[string]any{"secret": "x"})); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	loaded, err := store.Load(ctx, "g")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Nodes[0].Dictionary["secret"] != middleware.Redacted {
		t.Errorf("expected redaction before encryption, got %v", loaded.Nodes[0].Dictionary["secret"])
	}
}
