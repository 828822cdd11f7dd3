// Package ai provides the LLM client, prompt types, and retry cache for
// the game master orchestration loop.
package ai

import (
	"github.com/mmerah/ai-gamemaster/internal/game/update"
)

// Role identifies the author of a prompt message.
type Role string

const (
	// RoleSystem carries game master instructions and state context.
	RoleSystem Role = "system"
	// RoleUser carries player input and backend-triggered instructions.
	RoleUser Role = "user"
	// RoleAssistant carries prior AI responses replayed for context.
	RoleAssistant Role = "assistant"
)

// PromptMessage is one entry in the prompt transcript sent upstream.
type PromptMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// DiceRequestSpec is one roll request declared by the AI. Character ids
// may contain the keywords "all" or "party" which the processor expands.
type DiceRequestSpec struct {
	RequestID    string   `json:"request_id"`
	CharacterIDs []string `json:"character_ids"`
	RollType     string   `json:"type"`
	Formula      string   `json:"dice_formula"`
	Reason       string   `json:"reason,omitempty"`
	DC           int      `json:"dc,omitempty"`
	Skill        string   `json:"skill,omitempty"`
	Ability      string   `json:"ability,omitempty"`
}

// LocationUpdate moves the party as part of a response.
type LocationUpdate struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Response is the structured game-master output parsed from the LLM.
//
// EndTurn is tri-state: nil means the AI said nothing about the turn,
// which the processor treats differently from an explicit false (an
// explicit false with unnarrated NPC rolls triggers a rerun for
// multi-step resolutions such as save-then-damage sequences).
type Response struct {
	Reasoning        string            `json:"reasoning,omitempty"`
	Narrative        string            `json:"narrative"`
	Location         *LocationUpdate   `json:"location_update,omitempty"`
	GameStateUpdates update.List       `json:"game_state_updates,omitempty"`
	DiceRequests     []DiceRequestSpec `json:"dice_requests,omitempty"`
	EndTurn          *bool             `json:"end_turn,omitempty"`
}
