package processor

import (
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/mmerah/ai-gamemaster/internal/ai"
	"github.com/mmerah/ai-gamemaster/internal/core/check"
	"github.com/mmerah/ai-gamemaster/internal/core/dice"
	"github.com/mmerah/ai-gamemaster/internal/game/event"
	"github.com/mmerah/ai-gamemaster/internal/game/state"
)

// RollTypeInitiative is the roll type that feeds the combat turn order.
const RollTypeInitiative = "initiative"

// Character id keywords expanded by the processor.
const (
	keywordAll   = "all"
	keywordParty = "party"
)

// processDiceRequests expands, splits, and resolves the AI's dice
// requests. Player shares become pending requests; NPC shares are rolled
// immediately and buffered for the next AI call. It reports whether any
// NPC dice were rolled.
func (p *Processor) processDiceRequests(gs *state.GameState, specs []ai.DiceRequestSpec, correlationID string) bool {
	justStarted := gs.Combat.ConsumeJustStarted()
	if justStarted && !containsInitiative(specs) {
		// The AI started combat without asking for initiative; nothing
		// works until the order exists, so force the request.
		if forced, ok := p.forcedInitiativeRequest(gs); ok {
			log.Printf("forcing initiative request: combat started without one correlation_id=%s", correlationID)
			specs = append([]ai.DiceRequestSpec{forced}, specs...)
		}
	}

	var npcResults []state.RollResult
	for _, spec := range specs {
		playerIDs, npcIDs := p.splitRequest(gs, spec)

		if len(playerIDs) > 0 {
			request := state.DiceRequest{
				RequestID:    spec.RequestID,
				CharacterIDs: playerIDs,
				RollType:     spec.RollType,
				Formula:      spec.Formula,
				Reason:       spec.Reason,
				DC:           spec.DC,
				Skill:        spec.Skill,
				Ability:      spec.Ability,
			}
			if strings.TrimSpace(request.RequestID) == "" {
				request.RequestID = "roll_" + uuid.NewString()
			}
			gs.PendingPlayerRequests = append(gs.PendingPlayerRequests, request)
			p.logEmit(p.emitter.EmitDiceRequested(correlationID, event.DiceRequestedPayload{
				RequestID:    request.RequestID,
				CharacterIDs: request.CharacterIDs,
				RollType:     request.RollType,
				Formula:      request.Formula,
				Reason:       request.Reason,
				DC:           request.DC,
				Skill:        request.Skill,
				Ability:      request.Ability,
			}))
		}

		for _, npcID := range npcIDs {
			result, ok := p.rollForNPC(gs, spec, npcID, correlationID)
			if !ok {
				continue
			}
			npcResults = append(npcResults, result)
		}
	}

	if len(npcResults) > 0 {
		gs.NPCRollResults = append(gs.NPCRollResults, npcResults...)
		gs.AddChatMessage(state.RoleSystem, formatNPCRolls(npcResults), "", p.now())
	}

	p.maybeFixOrder(gs, correlationID)

	return len(npcResults) > 0
}

// splitRequest expands keyword ids and partitions the targets into
// player-controlled and NPC-controlled characters.
func (p *Processor) splitRequest(gs *state.GameState, spec ai.DiceRequestSpec) (playerIDs, npcIDs []string) {
	isInitiative := strings.EqualFold(spec.RollType, RollTypeInitiative)

	for _, characterID := range p.expandCharacterIDs(gs, spec.CharacterIDs) {
		if gs.Combat.IsActive {
			combatant, ok := gs.Combat.Find(characterID)
			if !ok {
				if member, found := gs.FindPartyMember(characterID); found {
					playerIDs = append(playerIDs, member.ID)
				} else {
					log.Printf("dice request skipped: unknown character reference=%q", characterID)
				}
				continue
			}
			// Initiative only applies to combatants still waiting on it.
			if isInitiative && combatant.HasInitiative() {
				continue
			}
			if combatant.IsPlayer {
				playerIDs = append(playerIDs, combatant.ID)
			} else {
				npcIDs = append(npcIDs, combatant.ID)
			}
			continue
		}

		if member, found := gs.FindPartyMember(characterID); found {
			playerIDs = append(playerIDs, member.ID)
		} else {
			log.Printf("dice request skipped: unknown character reference=%q", characterID)
		}
	}
	return playerIDs, npcIDs
}

// expandCharacterIDs resolves the "all" and "party" keywords and
// deduplicates while preserving declaration order.
func (p *Processor) expandCharacterIDs(gs *state.GameState, raw []string) []string {
	var expanded []string
	seen := make(map[string]struct{})
	add := func(characterID string) {
		if _, dup := seen[characterID]; dup {
			return
		}
		seen[characterID] = struct{}{}
		expanded = append(expanded, characterID)
	}

	for _, characterID := range raw {
		switch strings.ToLower(strings.TrimSpace(characterID)) {
		case keywordAll:
			if gs.Combat.IsActive {
				for _, combatant := range gs.Combat.ActiveCombatants() {
					add(combatant.ID)
				}
			} else {
				for _, memberID := range sortedPartyIDs(gs) {
					add(memberID)
				}
			}
		case keywordParty:
			for _, memberID := range sortedPartyIDs(gs) {
				add(memberID)
			}
		default:
			add(characterID)
		}
	}
	return expanded
}

// rollForNPC resolves one NPC roll immediately. Initiative totals are
// applied to the turn order on the spot; everything else is buffered for
// the AI to narrate.
func (p *Processor) rollForNPC(gs *state.GameState, spec ai.DiceRequestSpec, npcID, correlationID string) (state.RollResult, bool) {
	combatant, ok := gs.Combat.Find(npcID)
	if !ok {
		log.Printf("npc roll skipped: unknown combatant id=%s", npcID)
		return state.RollResult{}, false
	}

	outcome := dice.RollFormula(p.rng, spec.Formula)

	total := outcome.Total
	modifier := outcome.Modifier
	isInitiative := strings.EqualFold(spec.RollType, RollTypeInitiative)
	if isInitiative && outcome.Description != dice.InvalidFormulaDescription {
		total += combatant.InitiativeModifier
		modifier += combatant.InitiativeModifier
	}

	result := state.RollResult{
		RequestID:     spec.RequestID,
		CharacterID:   combatant.ID,
		CharacterName: combatant.Name,
		RollType:      spec.RollType,
		Formula:       spec.Formula,
		Total:         total,
		Rolls:         outcome.Rolls,
		Modifier:      modifier,
		DC:            spec.DC,
		Description:   outcome.Description,
	}
	if spec.DC > 0 && !isInitiative {
		checked := check.Against(total, spec.DC)
		result.Success = &checked.Success
	}

	if isInitiative && gs.Combat.SetInitiative(combatant.ID, total) {
		p.logEmit(p.emitter.EmitCombatantInitiativeSet(correlationID, event.CombatantInitiativeSetPayload{
			CombatantID:   combatant.ID,
			CombatantName: combatant.Name,
			Initiative:    total,
		}))
	}
	return result, true
}

// ApplyRollResults feeds player-submitted rolls back into combat state.
// Only initiative results mutate state directly; other roll types are
// narrated by the AI on its next turn.
func (p *Processor) ApplyRollResults(gs *state.GameState, results []state.RollResult, correlationID string) {
	for _, result := range results {
		if !strings.EqualFold(result.RollType, RollTypeInitiative) {
			continue
		}
		if !gs.Combat.IsActive {
			continue
		}
		if gs.Combat.SetInitiative(result.CharacterID, result.Total) {
			p.logEmit(p.emitter.EmitCombatantInitiativeSet(correlationID, event.CombatantInitiativeSetPayload{
				CombatantID:   result.CharacterID,
				CombatantName: result.CharacterName,
				Initiative:    result.Total,
			}))
		}
	}
	p.maybeFixOrder(gs, correlationID)
}

// maybeFixOrder sorts the turn order once every initiative is in, then
// announces the order and the first turn.
func (p *Processor) maybeFixOrder(gs *state.GameState, correlationID string) {
	if !gs.Combat.IsActive || !gs.Combat.FixOrder() {
		return
	}

	p.logEmit(p.emitter.EmitInitiativeOrderSet(correlationID, event.InitiativeOrderSetPayload{
		Order: summarize(gs.Combat.Combatants),
	}))

	current, ok := gs.Combat.Current()
	if !ok {
		return
	}
	p.logEmit(p.emitter.EmitTurnAdvanced(correlationID, event.TurnAdvancedPayload{
		CombatantID:   current.ID,
		CombatantName: current.Name,
		RoundNumber:   gs.Combat.RoundNumber,
		IsNewRound:    false,
		IsPlayer:      current.IsPlayer,
	}))
}

// forcedInitiativeRequest builds the synthetic initiative request used
// when the AI starts combat without asking for rolls.
func (p *Processor) forcedInitiativeRequest(gs *state.GameState) (ai.DiceRequestSpec, bool) {
	unrolled := gs.Combat.UnrolledCombatants()
	if len(unrolled) == 0 {
		return ai.DiceRequestSpec{}, false
	}
	ids := make([]string, 0, len(unrolled))
	for _, combatant := range unrolled {
		ids = append(ids, combatant.ID)
	}
	return ai.DiceRequestSpec{
		RequestID:    "roll_" + uuid.NewString(),
		CharacterIDs: ids,
		RollType:     RollTypeInitiative,
		Formula:      "1d20",
		Reason:       "Combat started! Roll initiative.",
	}, true
}

func containsInitiative(specs []ai.DiceRequestSpec) bool {
	for _, spec := range specs {
		if strings.EqualFold(spec.RollType, RollTypeInitiative) {
			return true
		}
	}
	return false
}

// formatNPCRolls renders the combined chat summary for auto-rolled dice.
func formatNPCRolls(results []state.RollResult) string {
	var b strings.Builder
	b.WriteString("**NPC Rolls:**")
	for _, result := range results {
		b.WriteString(fmt.Sprintf("\n%s rolled %s for %s: %d", result.CharacterName, result.Formula, result.RollType, result.Total))
		if result.Success != nil {
			if *result.Success {
				b.WriteString(fmt.Sprintf(" (DC %d: success)", result.DC))
			} else {
				b.WriteString(fmt.Sprintf(" (DC %d: failure)", result.DC))
			}
		}
	}
	return b.String()
}

// sortedPartyIDs lists the party members a keyword expands to. Combat
// restricts the pool to living members; outside combat the whole party is
// eligible, so a downed character still gets its death save requests.
func sortedPartyIDs(gs *state.GameState) []string {
	ids := gs.PartyIDs()
	if gs.Combat.IsActive {
		ids = gs.LivingPartyIDs()
	}
	// Party maps iterate in random order; stable expansion keeps request
	// payloads deterministic.
	sort.Strings(ids)
	return ids
}
