package state

import (
	"testing"
	"time"
)

func testState() *GameState {
	gs := New("camp-1")
	gs.Party["fighter"] = &PartyMember{
		ID: "fighter", Name: "Torin", Level: 3,
		CurrentHP: 28, MaxHP: 28, ArmorClass: 17,
		Stats: map[string]int{"str": 16, "dex": 12, "con": 14},
	}
	gs.Party["wizard"] = &PartyMember{
		ID: "wizard", Name: "Elara", Level: 3,
		CurrentHP: 0, MaxHP: 17, ArmorClass: 12,
		Stats: map[string]int{"int": 17, "dex": 14},
	}
	return gs
}

func TestFindPartyMemberByIDAndName(t *testing.T) {
	gs := testState()

	if _, ok := gs.FindPartyMember("fighter"); !ok {
		t.Fatal("expected lookup by id")
	}
	member, ok := gs.FindPartyMember("torin")
	if !ok || member.ID != "fighter" {
		t.Fatal("expected case-insensitive lookup by name")
	}
	if _, ok := gs.FindPartyMember("nobody"); ok {
		t.Fatal("expected miss for unknown reference")
	}
}

func TestLivingPartyIDsExcludesDowned(t *testing.T) {
	gs := testState()

	living := gs.LivingPartyIDs()
	if len(living) != 1 || living[0] != "fighter" {
		t.Fatalf("expected only fighter living, got %v", living)
	}
}

func TestApplyHPChangeClampsToBounds(t *testing.T) {
	member := &PartyMember{CurrentHP: 5, MaxHP: 10}

	oldHP, newHP := member.ApplyHPChange(-9)
	if oldHP != 5 || newHP != 0 {
		t.Fatalf("expected 5 -> 0, got %d -> %d", oldHP, newHP)
	}
	_, newHP = member.ApplyHPChange(+99)
	if newHP != 10 {
		t.Fatalf("expected clamp to max 10, got %d", newHP)
	}
}

func TestAbilityModifier(t *testing.T) {
	gs := testState()
	fighter := gs.Party["fighter"]

	if mod := fighter.AbilityModifier("str"); mod != 3 {
		t.Fatalf("expected +3 str, got %d", mod)
	}
	if mod := fighter.AbilityModifier("DEX"); mod != 1 {
		t.Fatalf("expected +1 dex, got %d", mod)
	}
	if mod := fighter.AbilityModifier("cha"); mod != 0 {
		t.Fatalf("expected 0 for missing stat, got %d", mod)
	}
}

func TestClearPendingRequests(t *testing.T) {
	gs := testState()
	gs.PendingPlayerRequests = []DiceRequest{
		{RequestID: "r1"}, {RequestID: "r2"}, {RequestID: "r3"},
	}

	cleared := gs.ClearPendingRequests([]string{"r1", "r3", "r9"})
	if len(cleared) != 2 {
		t.Fatalf("expected 2 cleared, got %v", cleared)
	}
	if len(gs.PendingPlayerRequests) != 1 || gs.PendingPlayerRequests[0].RequestID != "r2" {
		t.Fatalf("expected only r2 pending, got %v", gs.PendingPlayerRequests)
	}
}

func TestTakeNPCRollResultsDrainsBuffer(t *testing.T) {
	gs := testState()
	gs.NPCRollResults = []RollResult{{RequestID: "r1", Total: 14}}

	taken := gs.TakeNPCRollResults()
	if len(taken) != 1 || taken[0].Total != 14 {
		t.Fatalf("unexpected results %v", taken)
	}
	if len(gs.NPCRollResults) != 0 {
		t.Fatal("expected buffer drained")
	}
}

func TestPartyCombatantsStableOrder(t *testing.T) {
	gs := testState()
	gs.Party["wizard"].CurrentHP = 17

	combatants := gs.PartyCombatants()
	if len(combatants) != 2 {
		t.Fatalf("expected 2 combatants, got %d", len(combatants))
	}
	if combatants[0].ID != "fighter" || combatants[1].ID != "wizard" {
		t.Fatalf("expected id-ordered combatants, got %s, %s", combatants[0].ID, combatants[1].ID)
	}
	if !combatants[0].IsPlayer {
		t.Fatal("party combatants must be players")
	}
}

func TestAddChatMessageStampsUTC(t *testing.T) {
	gs := testState()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("X", 3600))

	gs.AddChatMessage(RoleUser, "I open the door", "", now)
	if len(gs.ChatHistory) != 1 {
		t.Fatal("expected one message")
	}
	if gs.ChatHistory[0].Timestamp.Location() != time.UTC {
		t.Fatal("expected UTC timestamp")
	}
}
