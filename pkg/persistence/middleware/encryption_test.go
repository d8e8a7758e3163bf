package middleware_test

import (
	"context"
	"crypto/rand"
	"io"
	"testing"

	"github.com/aretw0/sluice/pkg/persistence/middleware"
)

func generateKey(t *testing.T) []byte {
	k := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, k); err != nil {
		t.Fatal(err)
	}
	return k
}

func TestEncryptionMiddleware_Roundtrip(t *testing.T) {
	underlyingStore := NewMockStore()
	mw := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)})
	secureStore := mw(underlyingStore)

	ctx := context.Background()
	original := snapshotWith(map[string]any{"secret": "my-secret-sauce"})

	if err := secureStore.Save(ctx, "g", original); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	stored, err := underlyingStore.Load(ctx, "g")
	if err != nil {
		t.Fatalf("Underlying load failed: %v", err)
	}
	if len(stored.Nodes) != 1 || stored.Nodes[0].Label != "" {
		t.Fatalf("Expected an opaque envelope, got %+v", stored.Nodes)
	}
	if _, ok := stored.Nodes[0].Dictionary["secret"]; ok {
		t.Fatal("Expected secret to be hidden")
	}

	loaded, err := secureStore.Load(ctx, "g")
	if err != nil {
		t.Fatalf("Load via middleware failed: %v", err)
	}
	if loaded.Nodes[0].Dictionary["secret"] != "my-secret-sauce" {
		t.Errorf("Expected 'my-secret-sauce', got %v", loaded.Nodes[0].Dictionary["secret"])
	}
	if loaded.Nodes[0].UUID != original.Nodes[0].UUID {
		t.Errorf("Node identity changed: %s != %s", loaded.Nodes[0].UUID, original.Nodes[0].UUID)
	}
}

func TestEncryptionMiddleware_KeyRotation(t *testing.T) {
	underlyingStore := NewMockStore()
	oldKey := generateKey(t)
	newKey := generateKey(t)

	secureStoreOld := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: oldKey})(underlyingStore)
	ctx := context.Background()

	if err := secureStoreOld.Save(ctx, "g", snapshotWith(map[string]any{"data": "old"})); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	secureStoreNew := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
		ActiveKey:    newKey,
		FallbackKeys: [][]byte{oldKey},
	})(underlyingStore)

	loaded, err := secureStoreNew.Load(ctx, "g")
	if err != nil {
		t.Fatalf("Load with rotated key failed: %v", err)
	}
	if loaded.Nodes[0].Dictionary["data"] != "old" {
		t.Errorf("Decryption with fallback key failed")
	}

	if err := secureStoreNew.Save(ctx, "g", snapshotWith(map[string]any{"data": "new"})); err != nil {
		t.Fatalf("Save with new key failed: %v", err)
	}
	if _, err := secureStoreOld.Load(ctx, "g"); err == nil {
		t.Error("Expected failure when loading new-key encryption with old-key middleware")
	}
}

func TestEncryptionMiddleware_RejectsPlainSnapshots(t *testing.T) {
	underlyingStore := NewMockStore()
	_ = underlyingStore.Save(context.Background(), "plain", snapshotWith(nil))

	secureStore := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: generateKey(t)})(underlyingStore)
	if _, err := secureStore.Load(context.Background(), "plain"); err == nil {
		t.Error("Expected plain snapshot to be rejected")
	}
}

func TestEncryptionMiddleware_InvalidKey(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Errorf("Expected panic for invalid key size")
		}
	}()
	middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: []byte("short-key")})
}
