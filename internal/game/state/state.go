// Package state holds the mutable game session aggregate.
//
// GameState is shared by the handlers and the AI response processor. It
// carries no lock of its own: the single-flight AI gate guarantees at
// most one block of state mutation is in flight at a time.
package state

import (
	"sort"
	"strings"
	"time"

	"github.com/mmerah/ai-gamemaster/internal/game/combat"
)

// ChatRole identifies the author of a chat history entry.
type ChatRole string

const (
	// RoleUser marks player-authored messages.
	RoleUser ChatRole = "user"
	// RoleAssistant marks game-master narration from the AI.
	RoleAssistant ChatRole = "assistant"
	// RoleSystem marks system notices (errors, roll summaries).
	RoleSystem ChatRole = "system"
)

// ChatMessage is one entry in the session transcript.
type ChatMessage struct {
	Role      ChatRole  `json:"role"`
	Content   string    `json:"content"`
	GMThought string    `json:"gm_thought,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Item is one inventory entry.
type Item struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Quantity    int    `json:"quantity"`
}

// PartyMember is a player character in the campaign.
type PartyMember struct {
	ID                 string         `json:"id"`
	Name               string         `json:"name"`
	Race               string         `json:"race,omitempty"`
	Class              string         `json:"class,omitempty"`
	Level              int            `json:"level"`
	CurrentHP          int            `json:"current_hp"`
	MaxHP              int            `json:"max_hp"`
	ArmorClass         int            `json:"armor_class"`
	InitiativeModifier int            `json:"initiative_modifier"`
	Gold               int            `json:"gold"`
	Conditions         []string       `json:"conditions,omitempty"`
	Inventory          []Item         `json:"inventory,omitempty"`
	Stats              map[string]int `json:"stats,omitempty"`
	Proficiencies      []string       `json:"proficiencies,omitempty"`
}

// ApplyHPChange adjusts current HP by delta, re-clamping to [0, MaxHP].
// It returns the HP before and after the change.
func (m *PartyMember) ApplyHPChange(delta int) (oldHP, newHP int) {
	oldHP = m.CurrentHP
	newHP = oldHP + delta
	if newHP < 0 {
		newHP = 0
	}
	if newHP > m.MaxHP {
		newHP = m.MaxHP
	}
	m.CurrentHP = newHP
	return oldHP, newHP
}

// AbilityModifier derives the 5e modifier for a named ability score,
// defaulting to 0 when the stat is absent.
func (m *PartyMember) AbilityModifier(ability string) int {
	if m.Stats == nil {
		return 0
	}
	score, ok := m.Stats[strings.ToLower(strings.TrimSpace(ability))]
	if !ok {
		return 0
	}
	return (score - 10) / 2
}

// Quest tracks one quest log entry.
type Quest struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Status      string `json:"status"`
}

// DiceRequest asks one or more characters for a roll.
type DiceRequest struct {
	RequestID    string   `json:"request_id"`
	CharacterIDs []string `json:"character_ids"`
	RollType     string   `json:"roll_type"`
	Formula      string   `json:"formula"`
	Reason       string   `json:"reason,omitempty"`
	DC           int      `json:"dc,omitempty"`
	Skill        string   `json:"skill,omitempty"`
	Ability      string   `json:"ability,omitempty"`
}

// RollResult is one resolved roll, submitted by a player or auto-rolled
// for an NPC.
type RollResult struct {
	RequestID     string `json:"request_id"`
	CharacterID   string `json:"character_id"`
	CharacterName string `json:"character_name,omitempty"`
	RollType      string `json:"roll_type"`
	Formula       string `json:"formula"`
	Total         int    `json:"total"`
	Rolls         []int  `json:"rolls,omitempty"`
	Modifier      int    `json:"modifier,omitempty"`
	DC            int    `json:"dc,omitempty"`
	Success       *bool  `json:"success,omitempty"`
	Description   string `json:"description,omitempty"`
}

// GameState is the whole mutable session: party, transcript, combat,
// pending dice, and world facts. It is serialized as-is for campaign
// saves.
type GameState struct {
	CampaignID          string                  `json:"campaign_id"`
	Location            string                  `json:"location,omitempty"`
	LocationDescription string                  `json:"location_description,omitempty"`
	Party               map[string]*PartyMember `json:"party"`
	ChatHistory         []ChatMessage           `json:"chat_history"`
	Combat              combat.State            `json:"combat"`
	Quests              map[string]*Quest       `json:"quests,omitempty"`

	// PendingPlayerRequests holds dice requests awaiting player rolls;
	// entries are cleared once matching results are submitted.
	PendingPlayerRequests []DiceRequest `json:"pending_player_requests,omitempty"`
	// NPCRollResults buffers auto-rolled NPC dice for the next AI turn.
	NPCRollResults []RollResult `json:"npc_roll_results,omitempty"`
}

// New creates an empty game state for a campaign.
func New(campaignID string) *GameState {
	return &GameState{
		CampaignID: campaignID,
		Party:      make(map[string]*PartyMember),
		Quests:     make(map[string]*Quest),
	}
}

// AddChatMessage appends a transcript entry stamped with now.
func (g *GameState) AddChatMessage(role ChatRole, content, gmThought string, now time.Time) {
	g.ChatHistory = append(g.ChatHistory, ChatMessage{
		Role:      role,
		Content:   content,
		GMThought: gmThought,
		Timestamp: now.UTC(),
	})
}

// FindPartyMember resolves a party member by id, falling back to a
// case-insensitive name match for AI-provided references.
func (g *GameState) FindPartyMember(ref string) (*PartyMember, bool) {
	if member, ok := g.Party[ref]; ok {
		return member, true
	}
	for _, member := range g.Party {
		if strings.EqualFold(member.Name, ref) {
			return member, true
		}
	}
	return nil, false
}

// PartyIDs returns the ids of all party members.
func (g *GameState) PartyIDs() []string {
	ids := make([]string, 0, len(g.Party))
	for memberID := range g.Party {
		ids = append(ids, memberID)
	}
	return ids
}

// LivingPartyIDs returns ids of party members with HP above zero.
func (g *GameState) LivingPartyIDs() []string {
	var ids []string
	for memberID, member := range g.Party {
		if member.CurrentHP > 0 {
			ids = append(ids, memberID)
		}
	}
	return ids
}

// ClearPendingRequests drops pending dice requests whose ids appear in
// resolved and returns the ids actually cleared.
func (g *GameState) ClearPendingRequests(resolved []string) []string {
	if len(resolved) == 0 {
		return nil
	}
	resolvedSet := make(map[string]struct{}, len(resolved))
	for _, requestID := range resolved {
		resolvedSet[requestID] = struct{}{}
	}

	var cleared []string
	remaining := g.PendingPlayerRequests[:0]
	for _, request := range g.PendingPlayerRequests {
		if _, done := resolvedSet[request.RequestID]; done {
			cleared = append(cleared, request.RequestID)
			continue
		}
		remaining = append(remaining, request)
	}
	g.PendingPlayerRequests = remaining
	return cleared
}

// TakeNPCRollResults returns and clears the buffered NPC roll results.
func (g *GameState) TakeNPCRollResults() []RollResult {
	results := g.NPCRollResults
	g.NPCRollResults = nil
	return results
}

// PartyCombatants converts living party members into combatants for a
// combat start. Output is ordered by member id so the pre-initiative turn
// order is stable across runs.
func (g *GameState) PartyCombatants() []combat.Combatant {
	ids := g.PartyIDs()
	sort.Strings(ids)

	var combatants []combat.Combatant
	for _, memberID := range ids {
		member := g.Party[memberID]
		combatants = append(combatants, combat.Combatant{
			ID:                 member.ID,
			Name:               member.Name,
			Initiative:         combat.InitiativeUnrolled,
			InitiativeModifier: member.InitiativeModifier,
			CurrentHP:          member.CurrentHP,
			MaxHP:              member.MaxHP,
			ArmorClass:         member.ArmorClass,
			Conditions:         append([]string(nil), member.Conditions...),
			IsPlayer:           true,
		})
	}
	return combatants
}
