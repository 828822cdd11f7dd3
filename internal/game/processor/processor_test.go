package processor

import (
	"encoding/json"
	"math/rand"
	"strings"
	"testing"

	"github.com/mmerah/ai-gamemaster/internal/ai"
	"github.com/mmerah/ai-gamemaster/internal/game/combat"
	"github.com/mmerah/ai-gamemaster/internal/game/event"
	"github.com/mmerah/ai-gamemaster/internal/game/state"
	"github.com/mmerah/ai-gamemaster/internal/game/update"
)

func newTestProcessor(t *testing.T, seed int64) (*Processor, *event.Queue) {
	t.Helper()
	queue := event.NewQueue()
	emitter := event.NewEmitter(queue, event.NewSequencer())
	return New(emitter, rand.New(rand.NewSource(seed))), queue
}

func newTestState() *state.GameState {
	gs := state.New("camp_1")
	gs.Party["fighter"] = &state.PartyMember{
		ID: "fighter", Name: "Brom", CurrentHP: 20, MaxHP: 20, ArmorClass: 16, InitiativeModifier: 2,
	}
	gs.Party["wizard"] = &state.PartyMember{
		ID: "wizard", Name: "Elara", CurrentHP: 12, MaxHP: 12, ArmorClass: 12, InitiativeModifier: 1,
	}
	return gs
}

// startFixedCombat puts the party plus two goblins into an active combat
// with a settled initiative order.
func startFixedCombat(gs *state.GameState) {
	gs.Combat.Start(gs.PartyCombatants(), []combat.Combatant{
		{ID: "goblin_1", Name: "Goblin Archer", Initiative: combat.InitiativeUnrolled, CurrentHP: 7, MaxHP: 7, ArmorClass: 13},
		{ID: "goblin_2", Name: "Goblin Skirmisher", Initiative: combat.InitiativeUnrolled, CurrentHP: 9, MaxHP: 9, ArmorClass: 13},
	})
	gs.Combat.ConsumeJustStarted()
	gs.Combat.SetInitiative("fighter", 18)
	gs.Combat.SetInitiative("wizard", 14)
	gs.Combat.SetInitiative("goblin_1", 12)
	gs.Combat.SetInitiative("goblin_2", 8)
	gs.Combat.FixOrder()
}

func drainTypes(queue *event.Queue) []event.Type {
	var types []event.Type
	for {
		evt, ok := queue.Get(0)
		if !ok {
			return types
		}
		types = append(types, evt.Type)
	}
}

func drainEvents(queue *event.Queue) []event.Event {
	var events []event.Event
	for {
		evt, ok := queue.Get(0)
		if !ok {
			return events
		}
		events = append(events, evt)
	}
}

func boolPtr(v bool) *bool { return &v }

func TestProcessNarrativeAndLocation(t *testing.T) {
	t.Parallel()
	p, queue := newTestProcessor(t, 1)
	gs := newTestState()

	p.Process(gs, ai.Response{
		Reasoning: "scene transition",
		Narrative: "You step into the torchlit crypt.",
		Location:  &ai.LocationUpdate{Name: "Crypt of the Fallen", Description: "Cold and quiet."},
	}, "corr_1")

	if len(gs.ChatHistory) != 1 || gs.ChatHistory[0].Role != state.RoleAssistant {
		t.Fatalf("expected one assistant chat entry, got %+v", gs.ChatHistory)
	}
	if gs.Location != "Crypt of the Fallen" {
		t.Fatalf("unexpected location %q", gs.Location)
	}

	events := drainEvents(queue)
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Type != event.TypeNarrativeAdded || events[1].Type != event.TypeLocationChanged {
		t.Fatalf("unexpected event order %v %v", events[0].Type, events[1].Type)
	}
	if events[0].SequenceNumber >= events[1].SequenceNumber {
		t.Fatalf("sequence numbers must increase: %d then %d", events[0].SequenceNumber, events[1].SequenceNumber)
	}
	for _, evt := range events {
		if evt.CorrelationID != "corr_1" {
			t.Fatalf("expected correlation id corr_1, got %q", evt.CorrelationID)
		}
	}
}

func TestCombatStartForcesInitiative(t *testing.T) {
	t.Parallel()
	p, queue := newTestProcessor(t, 7)
	gs := newTestState()

	out := p.Process(gs, ai.Response{
		Narrative: "Goblins leap from the shadows!",
		GameStateUpdates: update.List{
			update.CombatStart{NPCs: []update.NPCSpec{
				{ID: "goblin_1", Name: "Goblin", HP: 7, ArmorClass: 13, InitiativeModifier: 2},
			}},
		},
	}, "corr_combat")

	if !gs.Combat.IsActive {
		t.Fatal("expected combat active")
	}
	if len(out.PendingPlayerRequests) != 1 {
		t.Fatalf("expected one pending initiative request, got %+v", out.PendingPlayerRequests)
	}
	request := out.PendingPlayerRequests[0]
	if request.RollType != RollTypeInitiative {
		t.Fatalf("expected initiative request, got %q", request.RollType)
	}
	for _, characterID := range request.CharacterIDs {
		if characterID != "fighter" && characterID != "wizard" {
			t.Fatalf("initiative request targets an NPC: %v", request.CharacterIDs)
		}
	}

	goblin, ok := gs.Combat.Find("goblin_1")
	if !ok {
		t.Fatal("goblin missing from combat")
	}
	if !goblin.HasInitiative() {
		t.Fatal("expected NPC initiative auto-rolled at combat start")
	}
	if out.NeedsRerun {
		t.Fatal("players still owe initiative; no rerun yet")
	}

	types := drainTypes(queue)
	var sawStarted, sawRequested, sawNPCInitiative bool
	for _, eventType := range types {
		switch eventType {
		case event.TypeCombatStarted:
			sawStarted = true
		case event.TypeDiceRequested:
			sawRequested = true
		case event.TypeCombatantInitiativeSet:
			sawNPCInitiative = true
		}
	}
	if !sawStarted || !sawRequested || !sawNPCInitiative {
		t.Fatalf("missing combat start events, got %v", types)
	}
}

func TestHPChangeClampsAndDefeats(t *testing.T) {
	t.Parallel()
	p, queue := newTestProcessor(t, 2)
	gs := newTestState()
	startFixedCombat(gs)

	out := p.Process(gs, ai.Response{
		Narrative: "Brom's blade finds the archer's chest.",
		GameStateUpdates: update.List{
			update.HPChange{CharacterID: "goblin_1", Amount: -8, Source: "Brom's longsword"},
		},
	}, "corr_hp")

	goblin, ok := gs.Combat.Find("goblin_1")
	if !ok {
		t.Fatal("goblin missing from combat")
	}
	if goblin.CurrentHP != 0 {
		t.Fatalf("expected HP clamped to 0, got %d", goblin.CurrentHP)
	}
	if !goblin.HasCondition(combat.ConditionDefeated) {
		t.Fatal("expected defeated condition at 0 HP")
	}
	if out.CombatEnded || !gs.Combat.IsActive {
		t.Fatal("combat must continue while the second goblin stands")
	}

	var hpPayload event.CombatantHPChangedPayload
	found := false
	for _, evt := range drainEvents(queue) {
		if evt.Type == event.TypeCombatantHPChanged {
			if err := json.Unmarshal(evt.Payload, &hpPayload); err != nil {
				t.Fatalf("decode hp payload: %v", err)
			}
			found = true
		}
	}
	if !found {
		t.Fatal("expected combatant.hp_changed event")
	}
	if hpPayload.OldHP != 7 || hpPayload.ChangeAmount != -8 || hpPayload.NewHP != 0 {
		t.Fatalf("unexpected hp payload %+v", hpPayload)
	}
	if want := max(0, hpPayload.OldHP+hpPayload.ChangeAmount); hpPayload.NewHP != want {
		t.Fatalf("clamp invariant broken: %+v", hpPayload)
	}

	// Dropping the second goblin ends combat automatically.
	out = p.Process(gs, ai.Response{
		Narrative: "Elara's bolt drops the skirmisher.",
		GameStateUpdates: update.List{
			update.HPChange{CharacterID: "goblin_2", Amount: -9},
		},
	}, "corr_hp2")

	if !out.CombatEnded {
		t.Fatal("expected auto-end after last NPC fell")
	}
	if gs.Combat.IsActive {
		t.Fatal("combat state must reset on auto-end")
	}
	types := drainTypes(queue)
	sawEnded := false
	for _, eventType := range types {
		if eventType == event.TypeCombatEnded {
			sawEnded = true
		}
	}
	if !sawEnded {
		t.Fatalf("expected combat.ended event, got %v", types)
	}
}

func TestHealingClampsAtMaxHP(t *testing.T) {
	t.Parallel()
	p, _ := newTestProcessor(t, 3)
	gs := newTestState()
	gs.Party["wizard"].CurrentHP = 10

	p.Process(gs, ai.Response{
		Narrative: "Warm light knits Elara's wounds.",
		GameStateUpdates: update.List{
			update.HPChange{CharacterID: "wizard", Amount: 15, Source: "healing potion"},
		},
	}, "corr_heal")

	if got := gs.Party["wizard"].CurrentHP; got != 12 {
		t.Fatalf("expected HP clamped to max 12, got %d", got)
	}
}

func TestOutOfCombatHPChangeUpdatesPartyMember(t *testing.T) {
	t.Parallel()
	p, queue := newTestProcessor(t, 17)
	gs := newTestState()

	p.Process(gs, ai.Response{
		Narrative: "A dart catches Elara in the shoulder.",
		GameStateUpdates: update.List{
			update.HPChange{CharacterID: "wizard", Amount: -5, Source: "dart trap"},
		},
	}, "corr_trap")

	if got := gs.Party["wizard"].CurrentHP; got != 7 {
		t.Fatalf("expected 7 HP, got %d", got)
	}

	var updated *event.Event
	for _, evt := range drainEvents(queue) {
		switch evt.Type {
		case event.TypeCombatantHPChanged:
			t.Fatal("combatant event emitted outside combat")
		case event.TypePartyMemberUpdated:
			e := evt
			updated = &e
		}
	}
	if updated == nil {
		t.Fatal("expected a party.member_updated event")
	}
	var payload event.PartyMemberUpdatedPayload
	if err := json.Unmarshal(updated.Payload, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.CharacterID != "wizard" {
		t.Fatalf("unexpected character %q", payload.CharacterID)
	}
	if got, ok := payload.Fields["current_hp"].(float64); !ok || int(got) != 7 {
		t.Fatalf("unexpected fields %+v", payload.Fields)
	}
}

func TestCombatantRemovalUsesPrediction(t *testing.T) {
	t.Parallel()
	p, queue := newTestProcessor(t, 4)
	gs := newTestState()
	startFixedCombat(gs)

	// Order after sort: fighter(18), wizard(14), goblin_1(12), goblin_2(8).
	// Put the turn on the wizard, then remove the wizard's successor and
	// the wizard's own slot stays; removing goblin_1 and goblin_2 in one
	// response must land the next turn back on the fighter.
	gs.Combat.CurrentTurnIndex = 1

	// Removal must not auto-end here: give the fight a third NPC so NPCs remain.
	gs.Combat.Combatants = append(gs.Combat.Combatants, combat.Combatant{
		ID: "wolf_1", Name: "Dire Wolf", Initiative: 5, CurrentHP: 11, MaxHP: 11,
	})

	out := p.Process(gs, ai.Response{
		Narrative: "Both goblins flee into the dark.",
		GameStateUpdates: update.List{
			update.CombatantRemove{CharacterID: "goblin_1", Reason: "fled"},
			update.CombatantRemove{CharacterID: "goblin_2", Reason: "fled"},
		},
		EndTurn: boolPtr(true),
	}, "corr_remove")

	if out.CombatEnded {
		t.Fatal("wolf remains; combat must not end")
	}
	current, ok := gs.Combat.Current()
	if !ok {
		t.Fatal("expected a current combatant")
	}
	if current.ID != "wolf_1" {
		t.Fatalf("expected turn to land on wolf_1, got %s", current.ID)
	}

	types := drainTypes(queue)
	removed, advanced := 0, 0
	for _, eventType := range types {
		switch eventType {
		case event.TypeCombatantRemoved:
			removed++
		case event.TypeTurnAdvanced:
			advanced++
		}
	}
	if removed != 2 || advanced != 1 {
		t.Fatalf("expected 2 removals and 1 turn advance, got %v", types)
	}
}

func TestRemovalBeforeCurrentKeepsTurn(t *testing.T) {
	t.Parallel()
	p, _ := newTestProcessor(t, 5)
	gs := newTestState()
	startFixedCombat(gs)

	// Turn on goblin_1 (index 2); removing the fighter at index 0 must
	// keep the turn pointed at goblin_1.
	gs.Combat.CurrentTurnIndex = 2

	p.Process(gs, ai.Response{
		Narrative: "Brom is banished in a flash of silver.",
		GameStateUpdates: update.List{
			update.CombatantRemove{CharacterID: "fighter", Reason: "banished"},
		},
	}, "corr_shift")

	current, ok := gs.Combat.Current()
	if !ok {
		t.Fatal("expected a current combatant")
	}
	if current.ID != "goblin_1" {
		t.Fatalf("expected turn to stay on goblin_1, got %s", current.ID)
	}
	if gs.Combat.CurrentTurnIndex != 1 {
		t.Fatalf("expected repaired index 1, got %d", gs.Combat.CurrentTurnIndex)
	}
}

func TestNPCAttackRollTriggersRerun(t *testing.T) {
	t.Parallel()
	p, _ := newTestProcessor(t, 6)
	gs := newTestState()
	startFixedCombat(gs)

	out := p.Process(gs, ai.Response{
		Narrative: "The archer looses an arrow at Brom!",
		DiceRequests: []ai.DiceRequestSpec{{
			RequestID:    "r_attack",
			CharacterIDs: []string{"goblin_1"},
			RollType:     "attack",
			Formula:      "1d20+4",
			DC:           16,
		}},
	}, "corr_npc")

	if len(out.PendingPlayerRequests) != 0 {
		t.Fatalf("NPC-only request must not wait on players: %+v", out.PendingPlayerRequests)
	}
	if !out.NeedsRerun {
		t.Fatal("NPC rolls with no player requests must trigger a rerun")
	}
	if len(gs.NPCRollResults) != 1 {
		t.Fatalf("expected one buffered NPC result, got %+v", gs.NPCRollResults)
	}
	result := gs.NPCRollResults[0]
	if result.Success == nil {
		t.Fatal("expected success computed against DC")
	}
	if got, want := *result.Success, result.Total >= 16; got != want {
		t.Fatalf("success flag disagrees with total %d vs DC 16", result.Total)
	}

	last := gs.ChatHistory[len(gs.ChatHistory)-1]
	if last.Role != state.RoleSystem || !strings.HasPrefix(last.Content, "**NPC Rolls:**") {
		t.Fatalf("expected combined NPC Rolls chat message, got %+v", last)
	}
}

func TestInvalidFormulaRollsDefensively(t *testing.T) {
	t.Parallel()
	p, _ := newTestProcessor(t, 8)
	gs := newTestState()
	startFixedCombat(gs)

	p.Process(gs, ai.Response{
		Narrative: "The goblin fumbles with its sling.",
		DiceRequests: []ai.DiceRequestSpec{{
			CharacterIDs: []string{"goblin_1"},
			RollType:     "attack",
			Formula:      "banana",
		}},
	}, "corr_bad")

	if len(gs.NPCRollResults) != 1 {
		t.Fatalf("expected a defensive result, got %+v", gs.NPCRollResults)
	}
	result := gs.NPCRollResults[0]
	if result.Total != 0 || result.Description != "Invalid Formula" {
		t.Fatalf("expected zeroed invalid-formula result, got %+v", result)
	}
}

func TestPartyKeywordExpansion(t *testing.T) {
	t.Parallel()
	p, _ := newTestProcessor(t, 9)
	gs := newTestState()
	startFixedCombat(gs)
	// Down the wizard mid-fight; combat expansion skips the fallen.
	gs.Party["wizard"].CurrentHP = 0
	if wizard, ok := gs.Combat.Find("wizard"); ok {
		wizard.CurrentHP = 0
	}

	out := p.Process(gs, ai.Response{
		Narrative: "Everyone still standing, make a perception check.",
		DiceRequests: []ai.DiceRequestSpec{{
			CharacterIDs: []string{"party"},
			RollType:     "skill_check",
			Formula:      "1d20",
			Skill:        "perception",
			DC:           12,
		}},
	}, "corr_party")

	if len(out.PendingPlayerRequests) != 1 {
		t.Fatalf("expected one pending request, got %+v", out.PendingPlayerRequests)
	}
	got := out.PendingPlayerRequests[0].CharacterIDs
	if len(got) != 1 || got[0] != "fighter" {
		t.Fatalf("expected only the living fighter, got %v", got)
	}
	if out.PendingPlayerRequests[0].RequestID == "" {
		t.Fatal("expected generated request id")
	}
}

func TestPartyKeywordIncludesDownedOutOfCombat(t *testing.T) {
	t.Parallel()
	p, _ := newTestProcessor(t, 16)
	gs := newTestState()
	// The downed wizard is exactly who a death save targets; outside
	// combat the keyword covers the whole party.
	gs.Party["wizard"].CurrentHP = 0

	out := p.Process(gs, ai.Response{
		Narrative: "Elara is fading. Someone stabilize her!",
		DiceRequests: []ai.DiceRequestSpec{{
			CharacterIDs: []string{"party"},
			RollType:     "saving_throw",
			Formula:      "1d20",
			DC:           10,
		}},
	}, "corr_downed")

	if len(out.PendingPlayerRequests) != 1 {
		t.Fatalf("expected one pending request, got %+v", out.PendingPlayerRequests)
	}
	got := out.PendingPlayerRequests[0].CharacterIDs
	want := []string{"fighter", "wizard"}
	if len(got) != len(want) {
		t.Fatalf("expected full party %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected full party %v, got %v", want, got)
		}
	}
}

func TestApplyRollResultsFixesOrder(t *testing.T) {
	t.Parallel()
	p, queue := newTestProcessor(t, 10)
	gs := newTestState()
	gs.Combat.Start(gs.PartyCombatants(), []combat.Combatant{
		{ID: "goblin_1", Name: "Goblin", Initiative: combat.InitiativeUnrolled, CurrentHP: 7, MaxHP: 7},
	})
	gs.Combat.ConsumeJustStarted()
	gs.Combat.SetInitiative("goblin_1", 15)

	p.ApplyRollResults(gs, []state.RollResult{
		{CharacterID: "fighter", CharacterName: "Brom", RollType: RollTypeInitiative, Total: 19},
		{CharacterID: "wizard", CharacterName: "Elara", RollType: RollTypeInitiative, Total: 7},
	}, "corr_init")

	if !gs.Combat.OrderFixed {
		t.Fatal("expected turn order fixed once all initiatives landed")
	}
	order := make([]string, 0, len(gs.Combat.Combatants))
	for _, combatant := range gs.Combat.Combatants {
		order = append(order, combatant.ID)
	}
	want := []string{"fighter", "goblin_1", "wizard"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("unexpected order %v, want %v", order, want)
		}
	}

	types := drainTypes(queue)
	var sawOrder, sawTurn bool
	for _, eventType := range types {
		switch eventType {
		case event.TypeInitiativeOrderSet:
			sawOrder = true
		case event.TypeTurnAdvanced:
			sawTurn = true
		}
	}
	if !sawOrder || !sawTurn {
		t.Fatalf("expected order + first turn events, got %v", types)
	}
}

func TestEndTurnWaitsForPlayers(t *testing.T) {
	t.Parallel()
	p, _ := newTestProcessor(t, 11)
	gs := newTestState()
	startFixedCombat(gs)
	before := gs.Combat.CurrentTurnIndex

	p.Process(gs, ai.Response{
		Narrative: "Brom, roll to hit!",
		DiceRequests: []ai.DiceRequestSpec{{
			CharacterIDs: []string{"fighter"},
			RollType:     "attack",
			Formula:      "1d20+5",
			DC:           13,
		}},
		EndTurn: boolPtr(true),
	}, "corr_wait")

	if gs.Combat.CurrentTurnIndex != before {
		t.Fatal("turn must not advance while player rolls are pending")
	}
}

func TestEndCombatRefusedWithNPCsStanding(t *testing.T) {
	t.Parallel()
	p, queue := newTestProcessor(t, 12)
	gs := newTestState()
	startFixedCombat(gs)

	out := p.Process(gs, ai.Response{
		Narrative: "The fight is over!",
		GameStateUpdates: update.List{
			update.CombatEnd{Reason: "victory"},
		},
	}, "corr_refuse")

	if out.CombatEnded || !gs.Combat.IsActive {
		t.Fatal("combat end must be refused while NPCs stand")
	}
	types := drainTypes(queue)
	sawError := false
	for _, eventType := range types {
		if eventType == event.TypeGameError {
			sawError = true
		}
	}
	if !sawError {
		t.Fatalf("expected game.error warning, got %v", types)
	}
}

func TestUnknownUpdateSkipped(t *testing.T) {
	t.Parallel()
	p, _ := newTestProcessor(t, 13)
	gs := newTestState()

	p.Process(gs, ai.Response{
		Narrative: "Strange forces stir.",
		GameStateUpdates: update.List{
			update.Unknown{TypeName: "weather_change"},
		},
	}, "corr_unknown")

	if gs.Party["fighter"].CurrentHP != 20 {
		t.Fatal("unknown update must leave state untouched")
	}
}

func TestGoldAndInventoryUpdates(t *testing.T) {
	t.Parallel()
	p, _ := newTestProcessor(t, 14)
	gs := newTestState()
	gs.Party["fighter"].Gold = 10

	p.Process(gs, ai.Response{
		Narrative: "You loot the chest.",
		GameStateUpdates: update.List{
			update.GoldChange{CharacterID: "fighter", Amount: 25},
			update.InventoryAdd{CharacterID: "fighter", ItemName: "Healing Potion", Quantity: 2},
			update.InventoryRemove{CharacterID: "fighter", ItemName: "Healing Potion", Quantity: 1},
			update.GoldChange{CharacterID: "fighter", Amount: -100},
		},
	}, "corr_loot")

	fighter := gs.Party["fighter"]
	if fighter.Gold != 0 {
		t.Fatalf("gold must clamp at zero, got %d", fighter.Gold)
	}
	if len(fighter.Inventory) != 1 || fighter.Inventory[0].Quantity != 1 {
		t.Fatalf("unexpected inventory %+v", fighter.Inventory)
	}
}
