package ai

import (
	"testing"
	"time"
)

func TestRetryCacheLifecycle(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cache := NewRetryCache()
	cache.clock = func() time.Time { return now }

	if cache.CanRetry() {
		t.Fatal("empty cache must not allow retry")
	}

	cache.Store([]PromptMessage{{Role: RoleUser, Content: "attack"}}, "resolve the attack")
	if !cache.CanRetry() {
		t.Fatal("expected retry available after store")
	}

	messages, instruction, ok := cache.Get()
	if !ok || len(messages) != 1 || instruction != "resolve the attack" {
		t.Fatalf("unexpected cached request: %v %q %v", messages, instruction, ok)
	}

	cache.Clear()
	if cache.CanRetry() {
		t.Fatal("expected retry unavailable after clear")
	}
}

func TestRetryCacheExpiresAfterTTL(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cache := NewRetryCache()
	cache.clock = func() time.Time { return now }

	cache.Store([]PromptMessage{{Role: RoleUser, Content: "attack"}}, "")

	// Exactly at the TTL boundary the request is still replayable.
	now = now.Add(DefaultRetryTTL)
	if !cache.CanRetry() {
		t.Fatal("expected retry available at 300s")
	}

	now = now.Add(time.Second)
	if cache.CanRetry() {
		t.Fatal("expected retry expired after 300s")
	}
	if _, _, ok := cache.Get(); ok {
		t.Fatal("expected Get to miss after expiry")
	}
}

func TestRetryCacheCopiesMessages(t *testing.T) {
	cache := NewRetryCache()
	original := []PromptMessage{{Role: RoleUser, Content: "attack"}}
	cache.Store(original, "")

	original[0].Content = "mutated"

	messages, _, ok := cache.Get()
	if !ok {
		t.Fatal("expected cached request")
	}
	if messages[0].Content != "attack" {
		t.Fatal("cache must hold its own copy of the transcript")
	}
}
