package orchestrator

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/mmerah/ai-gamemaster/internal/ai"
	"github.com/mmerah/ai-gamemaster/internal/game/state"
)

// systemPromptHeader is the fixed game-master contract. The AI must
// answer with a single JSON object; free-form prose is rejected upstream.
const systemPromptHeader = `You are the Game Master for a Dungeons & Dragons 5e campaign.
Narrate vividly, keep scenes moving, and enforce the rules fairly.

Respond with a single JSON object with these fields:
  "reasoning":          your private step-by-step thinking (optional)
  "narrative":          the narration shown to the players (required)
  "location_update":    {"name", "description"} when the party moves (optional)
  "game_state_updates": array of typed updates (optional); types:
      hp_change, condition_add, condition_remove, gold_change,
      inventory_add, inventory_remove, quest_update, location_change,
      combat_start, combat_end, combatant_remove
  "dice_requests":      array of {"request_id", "character_ids", "type",
                        "dice_formula", "reason", "dc"} (optional);
                        character_ids may use "all" or "party"
  "end_turn":           true when the current combatant's turn is fully
                        resolved, false when you are mid-resolution

Never roll dice yourself for players: request rolls instead. NPC rolls
are performed for you and the results appear in the conversation.`

// buildMessages assembles the full prompt transcript: system contract
// and state summary, the chat history, buffered NPC roll results, and an
// optional closing instruction.
func (o *Orchestrator) buildMessages(ctx context.Context, instruction string) []ai.PromptMessage {
	o.mu.Lock()
	system := o.systemPromptLocked(ctx)

	messages := make([]ai.PromptMessage, 0, len(o.gs.ChatHistory)+3)
	messages = append(messages, ai.PromptMessage{Role: ai.RoleSystem, Content: system})
	for _, entry := range o.gs.ChatHistory {
		messages = append(messages, ai.PromptMessage{Role: chatRole(entry.Role), Content: entry.Content})
	}

	if npcResults := o.gs.TakeNPCRollResults(); len(npcResults) > 0 {
		messages = append(messages, ai.PromptMessage{
			Role:    ai.RoleUser,
			Content: "(NPC roll results)\n" + formatRolls("**NPC Rolls:**", npcResults),
		})
	}
	o.mu.Unlock()

	if strings.TrimSpace(instruction) != "" {
		messages = append(messages, ai.PromptMessage{Role: ai.RoleUser, Content: instruction})
	}
	return messages
}

// systemPromptLocked renders the contract plus the current state summary.
func (o *Orchestrator) systemPromptLocked(ctx context.Context) string {
	var b strings.Builder
	b.WriteString(systemPromptHeader)
	b.WriteString("\n\n## Current State\n")

	if o.gs.Location != "" {
		fmt.Fprintf(&b, "Location: %s", o.gs.Location)
		if o.gs.LocationDescription != "" {
			fmt.Fprintf(&b, " — %s", o.gs.LocationDescription)
		}
		b.WriteString("\n")
	}

	b.WriteString("\n### Party\n")
	for _, memberID := range sortedKeys(o.gs.Party) {
		member := o.gs.Party[memberID]
		fmt.Fprintf(&b, "- %s (%s): level %d %s %s, HP %d/%d, AC %d, gold %d",
			member.Name, member.ID, member.Level, member.Race, member.Class,
			member.CurrentHP, member.MaxHP, member.ArmorClass, member.Gold)
		if len(member.Conditions) > 0 {
			fmt.Fprintf(&b, ", conditions: %s", strings.Join(member.Conditions, ", "))
		}
		b.WriteString("\n")
	}

	if len(o.gs.Quests) > 0 {
		b.WriteString("\n### Quests\n")
		for _, questID := range sortedKeys(o.gs.Quests) {
			quest := o.gs.Quests[questID]
			fmt.Fprintf(&b, "- [%s] %s (%s)\n", quest.Status, quest.Title, quest.ID)
		}
	}

	if o.gs.Combat.IsActive {
		b.WriteString("\n### Combat\n")
		fmt.Fprintf(&b, "Round %d.\n", o.gs.Combat.RoundNumber)
		for i := range o.gs.Combat.Combatants {
			combatant := &o.gs.Combat.Combatants[i]
			marker := "  "
			if i == o.gs.Combat.CurrentTurnIndex && o.gs.Combat.OrderFixed {
				marker = "->"
			}
			fmt.Fprintf(&b, "%s %s (%s): initiative %d, HP %d/%d, AC %d",
				marker, combatant.Name, combatant.ID, combatant.Initiative,
				combatant.CurrentHP, combatant.MaxHP, combatant.ArmorClass)
			if len(combatant.Conditions) > 0 {
				fmt.Fprintf(&b, ", conditions: %s", strings.Join(combatant.Conditions, ", "))
			}
			b.WriteString("\n")
		}
		if lore := o.combatLoreLocked(ctx); lore != "" {
			b.WriteString("\n### Reference\n")
			b.WriteString(lore)
		}
	}

	if len(o.gs.PendingPlayerRequests) > 0 {
		b.WriteString("\n### Pending Player Rolls\n")
		for _, request := range o.gs.PendingPlayerRequests {
			fmt.Fprintf(&b, "- %s: %s %s for %s\n",
				request.RequestID, request.RollType, request.Formula,
				strings.Join(request.CharacterIDs, ", "))
		}
	}

	return b.String()
}

// combatLoreLocked pulls reference entries for the NPCs on the field.
// Lookup failures degrade to an empty section; lore is flavor, not load.
func (o *Orchestrator) combatLoreLocked(ctx context.Context) string {
	if o.lore == nil {
		return ""
	}

	var b strings.Builder
	seen := make(map[string]struct{})
	for i := range o.gs.Combat.Combatants {
		combatant := &o.gs.Combat.Combatants[i]
		if combatant.IsPlayer {
			continue
		}
		name := strings.ToLower(combatant.Name)
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}

		entries, err := o.lore.Lookup(ctx, combatant.Name, 1)
		if err != nil {
			log.Printf("lore lookup failed query=%q error=%v", combatant.Name, err)
			continue
		}
		for _, entry := range entries {
			b.WriteString(entry)
			b.WriteString("\n")
		}
	}
	return b.String()
}

func chatRole(role state.ChatRole) ai.Role {
	switch role {
	case state.RoleAssistant:
		return ai.RoleAssistant
	case state.RoleSystem:
		return ai.RoleSystem
	default:
		return ai.RoleUser
	}
}
