package sqlite

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mmerah/ai-gamemaster/internal/content"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "content.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("close store: %v", err)
		}
	})
	return store
}

func TestRetrieveSeededMonster(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)

	entries, err := store.Retrieve(context.Background(), "Goblin", 3)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(entries) == 0 {
		t.Fatal("expected seeded goblin entry")
	}
	if entries[0].Name != "Goblin" {
		t.Fatalf("expected exact name match first, got %q", entries[0].Name)
	}
	if entries[0].Category != content.CategoryMonster {
		t.Fatalf("unexpected category %q", entries[0].Category)
	}
	if !strings.Contains(entries[0].Text, "Nimble Escape") {
		t.Fatalf("unexpected body %q", entries[0].Text)
	}
}

func TestRetrieveMatchesBodyKeywords(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)

	entries, err := store.Retrieve(context.Background(), "pack tactics", 5)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(entries) < 2 {
		t.Fatalf("expected wolves via body match, got %+v", entries)
	}
}

func TestRetrieveLimitsAndMisses(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)
	ctx := context.Background()

	entries, err := store.Retrieve(ctx, "monster", 0)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(entries) > 5 {
		t.Fatalf("default limit not applied: %d entries", len(entries))
	}

	entries, err = store.Retrieve(ctx, "tarrasque", 5)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no match, got %+v", entries)
	}

	if entries, err := store.Retrieve(ctx, "   ", 5); err != nil || entries != nil {
		t.Fatalf("blank query must be a no-op, got %v %v", entries, err)
	}
}

func TestPutOverridesEntry(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)
	ctx := context.Background()

	err := store.Put(ctx, content.Entry{
		ID: "monster_goblin", Name: "Goblin", Category: content.CategoryMonster,
		Text: "Goblin (variant): sneakier than usual.",
	})
	if err != nil {
		t.Fatalf("put: %v", err)
	}

	lines, err := store.Lookup(ctx, "Goblin", 1)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if len(lines) != 1 || !strings.Contains(lines[0], "variant") {
		t.Fatalf("expected overridden entry, got %v", lines)
	}
}
