package cache

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryStoreMissThenHit(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()

	ctx := context.Background()

	if _, err := store.Get(ctx, "cargo-cache-test-rs"); !errors.Is(err, ErrMiss) {
		t.Fatalf("Expected ErrMiss on cold cache, got %v", err)
	}

	blob := []byte("registry contents")
	if err := store.Put(ctx, "cargo-cache-test-rs", blob); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err := store.Get(ctx, "cargo-cache-test-rs")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got) != string(blob) {
		t.Errorf("Expected %q, got %q", blob, got)
	}
}

func TestMemoryStoreKeyIsolation(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()

	ctx := context.Background()
	if err := store.Put(ctx, "cargo-cache-test-rs", []byte("cargo")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := store.Put(ctx, "ubuntu-x86-64-target-cache-stable", []byte("target")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err := store.Get(ctx, "ubuntu-x86-64-target-cache-stable")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got) != "target" {
		t.Errorf("Write to one key leaked into another: got %q", got)
	}
}

func TestMemoryStoreLastWriteWins(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()

	ctx := context.Background()
	store.Put(ctx, "k", []byte("first"))
	store.Put(ctx, "k", []byte("second"))

	got, err := store.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got) != "second" {
		t.Errorf("Expected last write to win, got %q", got)
	}
}

func TestMemoryStoreGetReturnsCopy(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()

	ctx := context.Background()
	store.Put(ctx, "k", []byte("pristine"))

	got, _ := store.Get(ctx, "k")
	got[0] = 'X'

	again, _ := store.Get(ctx, "k")
	if string(again) != "pristine" {
		t.Errorf("Mutating a returned blob corrupted the store: %q", again)
	}
}
