// Package processor applies structured AI responses to game state.
//
// Process runs the fixed pipeline: narrative and location first, then
// declared game-state updates, then dice requests, then turn
// advancement. Every step emits the corresponding events in that order,
// so clients replaying the stream reconstruct the same state the server
// holds. Input is untrusted LLM output: malformed references are logged
// and skipped, never fatal.
package processor

import (
	"log"
	"math/rand"
	"strings"
	"time"

	"github.com/mmerah/ai-gamemaster/internal/ai"
	"github.com/mmerah/ai-gamemaster/internal/game/combat"
	"github.com/mmerah/ai-gamemaster/internal/game/event"
	"github.com/mmerah/ai-gamemaster/internal/game/state"
	"github.com/mmerah/ai-gamemaster/internal/game/update"
)

// Processor turns one AI response into state mutations and events. It is
// not safe for concurrent use; the single-flight AI gate serializes calls.
type Processor struct {
	emitter *event.Emitter
	rng     *rand.Rand
	now     func() time.Time
}

// New creates a processor. A nil rng gets a time-seeded source; tests
// pass a fixed seed for deterministic NPC rolls.
func New(emitter *event.Emitter, rng *rand.Rand) *Processor {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Processor{
		emitter: emitter,
		rng:     rng,
		now:     time.Now,
	}
}

// Outcome reports what Process left behind for the orchestrator.
type Outcome struct {
	// PendingPlayerRequests mirrors the dice requests now awaiting
	// player rolls.
	PendingPlayerRequests []state.DiceRequest
	// NeedsRerun is set when NPC dice were auto-rolled with no player
	// rolls outstanding: the AI must see the results and narrate them.
	NeedsRerun bool
	// CombatEnded is set when this response ended combat, by explicit
	// update or because the last NPC fell.
	CombatEnded bool
}

// Process applies one AI response in pipeline order.
func (p *Processor) Process(gs *state.GameState, resp ai.Response, correlationID string) Outcome {
	var out Outcome

	p.applyNarrative(gs, resp, correlationID)
	p.applyLocation(gs, resp.Location, correlationID)

	removals := p.applyUpdates(gs, resp.GameStateUpdates, correlationID, &out)

	predictedNext, predictOK := "", false
	if len(removals) > 0 && gs.Combat.IsActive {
		predictedNext, predictOK = gs.Combat.PredictNextAfterRemovals(removals)
		p.applyRemovals(gs, removals, correlationID, &out)
	}

	npcRolled := p.processDiceRequests(gs, resp.DiceRequests, correlationID)

	out.PendingPlayerRequests = append([]state.DiceRequest(nil), gs.PendingPlayerRequests...)
	out.NeedsRerun = p.needsRerun(gs, resp, npcRolled)

	p.advanceTurn(gs, resp, correlationID, &out, len(removals) > 0, predictedNext, predictOK)

	return out
}

func (p *Processor) applyNarrative(gs *state.GameState, resp ai.Response, correlationID string) {
	if strings.TrimSpace(resp.Narrative) == "" {
		return
	}
	gs.AddChatMessage(state.RoleAssistant, resp.Narrative, resp.Reasoning, p.now())
	p.logEmit(p.emitter.EmitNarrativeAdded(correlationID, event.NarrativeAddedPayload{
		Role:      string(state.RoleAssistant),
		Content:   resp.Narrative,
		GMThought: resp.Reasoning,
	}))
}

func (p *Processor) applyLocation(gs *state.GameState, loc *ai.LocationUpdate, correlationID string) {
	if loc == nil || strings.TrimSpace(loc.Name) == "" {
		return
	}
	gs.Location = loc.Name
	gs.LocationDescription = loc.Description
	p.logEmit(p.emitter.EmitLocationChanged(correlationID, event.LocationChangedPayload{
		Name:        loc.Name,
		Description: loc.Description,
	}))
}

// applyUpdates applies every non-removal update in declared order and
// returns the combatant ids slated for removal. Removals are deferred so
// the next-turn prediction can run against the pre-removal order.
func (p *Processor) applyUpdates(gs *state.GameState, updates update.List, correlationID string, out *Outcome) []string {
	var removals []string
	for _, u := range updates {
		switch v := u.(type) {
		case update.HPChange:
			p.applyHPChange(gs, v, correlationID, out)
		case update.ConditionAdd:
			p.applyCondition(gs, v.CharacterID, v.Condition, true, correlationID, out)
		case update.ConditionRemove:
			p.applyCondition(gs, v.CharacterID, v.Condition, false, correlationID, out)
		case update.GoldChange:
			p.applyGoldChange(gs, v, correlationID)
		case update.InventoryAdd:
			p.applyInventoryAdd(gs, v, correlationID)
		case update.InventoryRemove:
			p.applyInventoryRemove(gs, v, correlationID)
		case update.QuestUpdate:
			p.applyQuestUpdate(gs, v, correlationID)
		case update.LocationChange:
			p.applyLocation(gs, &ai.LocationUpdate{Name: v.Name, Description: v.Description}, correlationID)
		case update.CombatStart:
			p.applyCombatStart(gs, v, correlationID)
		case update.CombatEnd:
			p.applyCombatEnd(gs, v, correlationID, out)
		case update.CombatantRemove:
			if combatant, ok := p.resolveCombatant(gs, v.CharacterID); ok {
				removals = append(removals, combatant.ID)
			} else {
				log.Printf("combatant remove skipped: unknown reference=%q", v.CharacterID)
			}
		case update.Unknown:
			log.Printf("game state update skipped: unknown type=%q", v.TypeName)
		default:
			log.Printf("game state update skipped: unhandled kind=%s", u.Kind())
		}
	}
	return removals
}

func (p *Processor) applyHPChange(gs *state.GameState, u update.HPChange, correlationID string, out *Outcome) {
	if gs.Combat.IsActive {
		combatant, ok := p.resolveCombatant(gs, u.CharacterID)
		if !ok {
			log.Printf("hp change skipped: unknown combatant reference=%q", u.CharacterID)
			return
		}
		oldHP, newHP := combatant.ApplyHPChange(u.Amount)
		if member, found := gs.FindPartyMember(combatant.ID); found {
			member.CurrentHP = newHP
		}
		p.logEmit(p.emitter.EmitCombatantHPChanged(correlationID, event.CombatantHPChangedPayload{
			CombatantID:   combatant.ID,
			CombatantName: combatant.Name,
			OldHP:         oldHP,
			ChangeAmount:  u.Amount,
			NewHP:         newHP,
			MaxHP:         combatant.MaxHP,
			Source:        u.Source,
		}))
		if newHP == 0 && combatant.AddCondition(combat.ConditionDefeated) {
			p.logEmit(p.emitter.EmitCombatantStatusChanged(correlationID, event.CombatantStatusChangedPayload{
				CombatantID:     combatant.ID,
				CombatantName:   combatant.Name,
				AddedConditions: []string{combat.ConditionDefeated},
				Conditions:      append([]string(nil), combatant.Conditions...),
			}))
		}
		p.maybeAutoEnd(gs, correlationID, out)
		return
	}

	member, ok := gs.FindPartyMember(u.CharacterID)
	if !ok {
		log.Printf("hp change skipped: unknown character reference=%q", u.CharacterID)
		return
	}
	oldHP, newHP := member.ApplyHPChange(u.Amount)
	p.logEmit(p.emitter.EmitPartyMemberUpdated(correlationID, event.PartyMemberUpdatedPayload{
		CharacterID: member.ID,
		Fields: map[string]any{
			"old_hp":        oldHP,
			"current_hp":    newHP,
			"change_amount": u.Amount,
			"max_hp":        member.MaxHP,
		},
	}))
}

func (p *Processor) applyCondition(gs *state.GameState, characterID, condition string, add bool, correlationID string, out *Outcome) {
	if strings.TrimSpace(condition) == "" {
		log.Printf("condition update skipped: empty condition for reference=%q", characterID)
		return
	}

	if gs.Combat.IsActive {
		combatant, ok := p.resolveCombatant(gs, characterID)
		if !ok {
			log.Printf("condition update skipped: unknown combatant reference=%q", characterID)
			return
		}
		var changed bool
		payload := event.CombatantStatusChangedPayload{
			CombatantID:   combatant.ID,
			CombatantName: combatant.Name,
		}
		if add {
			changed = combatant.AddCondition(condition)
			payload.AddedConditions = []string{condition}
		} else {
			changed = combatant.RemoveCondition(condition)
			payload.RemovedConditions = []string{condition}
		}
		if !changed {
			return
		}
		if member, found := gs.FindPartyMember(combatant.ID); found {
			member.Conditions = append([]string(nil), combatant.Conditions...)
		}
		payload.Conditions = append([]string(nil), combatant.Conditions...)
		p.logEmit(p.emitter.EmitCombatantStatusChanged(correlationID, payload))
		p.maybeAutoEnd(gs, correlationID, out)
		return
	}

	member, ok := gs.FindPartyMember(characterID)
	if !ok {
		log.Printf("condition update skipped: unknown character reference=%q", characterID)
		return
	}
	conditions := combat.Combatant{Conditions: member.Conditions}
	var changed bool
	payload := event.CombatantStatusChangedPayload{
		CombatantID:   member.ID,
		CombatantName: member.Name,
	}
	if add {
		changed = conditions.AddCondition(condition)
		payload.AddedConditions = []string{condition}
	} else {
		changed = conditions.RemoveCondition(condition)
		payload.RemovedConditions = []string{condition}
	}
	if !changed {
		return
	}
	member.Conditions = conditions.Conditions
	payload.Conditions = append([]string(nil), member.Conditions...)
	p.logEmit(p.emitter.EmitCombatantStatusChanged(correlationID, payload))
}

func (p *Processor) applyGoldChange(gs *state.GameState, u update.GoldChange, correlationID string) {
	member, ok := gs.FindPartyMember(u.CharacterID)
	if !ok {
		log.Printf("gold change skipped: unknown character reference=%q", u.CharacterID)
		return
	}
	oldGold := member.Gold
	member.Gold += u.Amount
	if member.Gold < 0 {
		member.Gold = 0
	}
	p.logEmit(p.emitter.EmitGoldChanged(correlationID, event.GoldChangedPayload{
		CharacterID:  member.ID,
		OldGold:      oldGold,
		ChangeAmount: u.Amount,
		NewGold:      member.Gold,
	}))
}

func (p *Processor) applyInventoryAdd(gs *state.GameState, u update.InventoryAdd, correlationID string) {
	member, ok := gs.FindPartyMember(u.CharacterID)
	if !ok {
		log.Printf("inventory add skipped: unknown character reference=%q", u.CharacterID)
		return
	}
	quantity := u.Quantity
	if quantity <= 0 {
		quantity = 1
	}

	added := false
	for i := range member.Inventory {
		if strings.EqualFold(member.Inventory[i].Name, u.ItemName) {
			member.Inventory[i].Quantity += quantity
			added = true
			break
		}
	}
	if !added {
		member.Inventory = append(member.Inventory, state.Item{
			Name:        u.ItemName,
			Description: u.Description,
			Quantity:    quantity,
		})
	}
	p.logEmit(p.emitter.EmitItemAdded(correlationID, event.ItemChangedPayload{
		CharacterID: member.ID,
		ItemName:    u.ItemName,
		Quantity:    quantity,
		Description: u.Description,
	}))
}

func (p *Processor) applyInventoryRemove(gs *state.GameState, u update.InventoryRemove, correlationID string) {
	member, ok := gs.FindPartyMember(u.CharacterID)
	if !ok {
		log.Printf("inventory remove skipped: unknown character reference=%q", u.CharacterID)
		return
	}
	quantity := u.Quantity
	if quantity <= 0 {
		quantity = 1
	}

	for i := range member.Inventory {
		if !strings.EqualFold(member.Inventory[i].Name, u.ItemName) {
			continue
		}
		member.Inventory[i].Quantity -= quantity
		if member.Inventory[i].Quantity <= 0 {
			member.Inventory = append(member.Inventory[:i], member.Inventory[i+1:]...)
		}
		p.logEmit(p.emitter.EmitItemRemoved(correlationID, event.ItemChangedPayload{
			CharacterID: member.ID,
			ItemName:    u.ItemName,
			Quantity:    quantity,
		}))
		return
	}
	log.Printf("inventory remove skipped: character=%s has no item=%q", member.ID, u.ItemName)
}

func (p *Processor) applyQuestUpdate(gs *state.GameState, u update.QuestUpdate, correlationID string) {
	if strings.TrimSpace(u.QuestID) == "" {
		log.Printf("quest update skipped: missing quest id")
		return
	}
	if gs.Quests == nil {
		gs.Quests = make(map[string]*state.Quest)
	}

	quest, ok := gs.Quests[u.QuestID]
	if !ok {
		quest = &state.Quest{ID: u.QuestID, Status: "active"}
		gs.Quests[u.QuestID] = quest
	}
	if u.Title != "" {
		quest.Title = u.Title
	}
	if u.Status != "" {
		quest.Status = u.Status
	}
	if u.Details != "" {
		quest.Description = u.Details
	}
	p.logEmit(p.emitter.EmitQuestUpdated(correlationID, event.QuestUpdatedPayload{
		QuestID: quest.ID,
		Title:   quest.Title,
		Status:  quest.Status,
		Details: u.Details,
	}))
}

func (p *Processor) applyCombatStart(gs *state.GameState, u update.CombatStart, correlationID string) {
	npcs := make([]combat.Combatant, 0, len(u.NPCs))
	for _, spec := range u.NPCs {
		npcs = append(npcs, combat.Combatant{
			ID:                 spec.ID,
			Name:               spec.Name,
			Initiative:         combat.InitiativeUnrolled,
			InitiativeModifier: spec.InitiativeModifier,
			CurrentHP:          spec.HP,
			MaxHP:              spec.HP,
			ArmorClass:         spec.ArmorClass,
			Stats:              spec.Stats,
			Abilities:          spec.Abilities,
		})
	}

	result := gs.Combat.Start(gs.PartyCombatants(), npcs)
	for _, skipped := range result.SkippedDead {
		log.Printf("combat start skipped dead combatant id=%s", skipped)
	}
	for _, skipped := range result.SkippedDupes {
		log.Printf("combat start skipped duplicate combatant id=%s", skipped)
	}

	p.logEmit(p.emitter.EmitCombatStarted(correlationID, event.CombatStartedPayload{
		RoundNumber:   gs.Combat.RoundNumber,
		Combatants:    summarize(gs.Combat.Combatants),
		Reinforcement: result.Reinforcement,
	}))
}

func (p *Processor) applyCombatEnd(gs *state.GameState, u update.CombatEnd, correlationID string, out *Outcome) {
	if !gs.Combat.IsActive {
		log.Printf("combat end skipped: combat not active")
		return
	}
	if err := gs.Combat.End(); err != nil {
		log.Printf("combat end refused error=%v", err)
		p.logEmit(p.emitter.EmitGameError(correlationID, event.GameErrorPayload{
			Message:     err.Error(),
			Severity:    event.SeverityWarning,
			Recoverable: true,
		}))
		return
	}
	out.CombatEnded = true
	p.logEmit(p.emitter.EmitCombatEnded(correlationID, event.CombatEndedPayload{Reason: u.Reason}))
}

// applyRemovals deletes the predicted removals and checks for auto-end.
func (p *Processor) applyRemovals(gs *state.GameState, combatantIDs []string, correlationID string, out *Outcome) {
	for _, combatantID := range combatantIDs {
		combatant, ok := gs.Combat.Find(combatantID)
		if !ok {
			log.Printf("combatant remove skipped: unknown id=%s", combatantID)
			continue
		}
		name := combatant.Name
		if gs.Combat.Remove(combatantID) {
			p.logEmit(p.emitter.EmitCombatantRemoved(correlationID, event.CombatantRemovedPayload{
				CombatantID:   combatantID,
				CombatantName: name,
			}))
		}
	}
	p.maybeAutoEnd(gs, correlationID, out)
}

// maybeAutoEnd force-ends combat once no NPC remains standing.
func (p *Processor) maybeAutoEnd(gs *state.GameState, correlationID string, out *Outcome) {
	if !gs.Combat.ShouldAutoEnd() {
		return
	}
	gs.Combat.ForceEnd()
	out.CombatEnded = true
	p.logEmit(p.emitter.EmitCombatEnded(correlationID, event.CombatEndedPayload{Reason: "all enemies defeated"}))
}

// needsRerun decides whether the orchestrator should immediately call the
// AI again instead of waiting for player input.
func (p *Processor) needsRerun(gs *state.GameState, resp ai.Response, npcRolled bool) bool {
	if len(gs.PendingPlayerRequests) > 0 {
		return false
	}
	if npcRolled {
		return true
	}
	// An explicit end_turn=false with buffered NPC results means the AI
	// is mid-sequence (save rolled, damage not yet narrated).
	return resp.EndTurn != nil && !*resp.EndTurn && len(gs.NPCRollResults) > 0
}

func (p *Processor) advanceTurn(gs *state.GameState, resp ai.Response, correlationID string, out *Outcome, hadRemovals bool, predictedNext string, predictOK bool) {
	if resp.EndTurn == nil || !*resp.EndTurn {
		return
	}
	if !gs.Combat.IsActive || !gs.Combat.OrderFixed {
		return
	}
	if out.NeedsRerun || len(gs.PendingPlayerRequests) > 0 {
		return
	}

	if hadRemovals {
		if !predictOK {
			p.maybeAutoEnd(gs, correlationID, out)
			return
		}
		p.advanceTo(gs, predictedNext, correlationID)
		return
	}

	current, newRound := gs.Combat.AdvanceTurn()
	if current == nil {
		return
	}
	p.logEmit(p.emitter.EmitTurnAdvanced(correlationID, event.TurnAdvancedPayload{
		CombatantID:   current.ID,
		CombatantName: current.Name,
		RoundNumber:   gs.Combat.RoundNumber,
		IsNewRound:    newRound,
		IsPlayer:      current.IsPlayer,
	}))
}

// advanceTo sets the turn to the pre-computed next combatant. The index
// walk uses the post-removal order, so a wrap behind the current index
// starts a new round.
func (p *Processor) advanceTo(gs *state.GameState, combatantID, correlationID string) {
	cs := &gs.Combat
	for i := range cs.Combatants {
		if cs.Combatants[i].ID != combatantID {
			continue
		}
		newRound := i < cs.CurrentTurnIndex
		if newRound {
			cs.RoundNumber++
		}
		cs.CurrentTurnIndex = i
		p.logEmit(p.emitter.EmitTurnAdvanced(correlationID, event.TurnAdvancedPayload{
			CombatantID:   cs.Combatants[i].ID,
			CombatantName: cs.Combatants[i].Name,
			RoundNumber:   cs.RoundNumber,
			IsNewRound:    newRound,
			IsPlayer:      cs.Combatants[i].IsPlayer,
		}))
		return
	}
	log.Printf("turn advance skipped: predicted combatant gone id=%s", combatantID)
}

// resolveCombatant finds a combatant by id, falling back to name.
func (p *Processor) resolveCombatant(gs *state.GameState, ref string) (*combat.Combatant, bool) {
	if combatant, ok := gs.Combat.Find(ref); ok {
		return combatant, true
	}
	return gs.Combat.FindByName(ref)
}

// logEmit drops emitted events on the floor and logs failures; emission
// never aborts the pipeline.
func (p *Processor) logEmit(_ event.Event, err error) {
	if err != nil {
		log.Printf("emit event failed error=%v", err)
	}
}

func summarize(combatants []combat.Combatant) []event.CombatantSummary {
	summaries := make([]event.CombatantSummary, 0, len(combatants))
	for _, c := range combatants {
		summaries = append(summaries, event.CombatantSummary{
			ID:         c.ID,
			Name:       c.Name,
			Initiative: c.Initiative,
			CurrentHP:  c.CurrentHP,
			MaxHP:      c.MaxHP,
			ArmorClass: c.ArmorClass,
			IsPlayer:   c.IsPlayer,
		})
	}
	return summaries
}
