package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/mmerah/ai-gamemaster/internal/game/combat"
	"github.com/mmerah/ai-gamemaster/internal/game/state"
	"github.com/mmerah/ai-gamemaster/internal/storage"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "saves.db"))
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

func TestSaveAndLoadRoundTrip(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)
	ctx := context.Background()

	gs := state.New("camp_1")
	gs.Location = "The Rusty Flagon"
	gs.Party["fighter"] = &state.PartyMember{
		ID: "fighter", Name: "Brom", CurrentHP: 18, MaxHP: 20, Gold: 42,
		Inventory: []state.Item{{Name: "Rope", Quantity: 1}},
	}
	gs.AddChatMessage(state.RoleUser, "Brom: I order an ale.", "", time.Now())
	gs.Combat.Start(gs.PartyCombatants(), []combat.Combatant{
		{ID: "bandit_1", Name: "Bandit", Initiative: 12, CurrentHP: 11, MaxHP: 11},
	})

	if err := store.Save(ctx, gs); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := store.Load(ctx, "camp_1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Location != "The Rusty Flagon" {
		t.Fatalf("unexpected location %q", loaded.Location)
	}
	if loaded.Party["fighter"].CurrentHP != 18 {
		t.Fatalf("unexpected party state %+v", loaded.Party["fighter"])
	}
	if !loaded.Combat.IsActive || len(loaded.Combat.Combatants) != 2 {
		t.Fatalf("combat state lost: %+v", loaded.Combat)
	}
	if len(loaded.ChatHistory) != 1 {
		t.Fatalf("chat history lost: %+v", loaded.ChatHistory)
	}
}

func TestSaveOverwritesExisting(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)
	ctx := context.Background()

	gs := state.New("camp_1")
	gs.Location = "First"
	if err := store.Save(ctx, gs); err != nil {
		t.Fatalf("first save: %v", err)
	}
	gs.Location = "Second"
	if err := store.Save(ctx, gs); err != nil {
		t.Fatalf("second save: %v", err)
	}

	loaded, err := store.Load(ctx, "camp_1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Location != "Second" {
		t.Fatalf("expected overwrite, got %q", loaded.Location)
	}

	saves, err := store.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(saves) != 1 || saves[0].CampaignID != "camp_1" {
		t.Fatalf("unexpected save list %+v", saves)
	}
}

func TestLoadMissingCampaign(t *testing.T) {
	t.Parallel()
	store := openTestStore(t)

	if _, err := store.Load(context.Background(), "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
