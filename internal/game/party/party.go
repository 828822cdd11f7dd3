// Package party loads campaign definition files: party roster, starting
// location, opening narrative, and initial quests.
package party

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mmerah/ai-gamemaster/internal/game/state"
)

// File is the on-disk campaign definition.
type File struct {
	Campaign Campaign `yaml:"campaign"`
	Party    []Member `yaml:"party"`
	Quests   []Quest  `yaml:"quests"`
}

// Campaign holds campaign-level metadata.
type Campaign struct {
	ID               string   `yaml:"id"`
	Name             string   `yaml:"name"`
	StartingLocation Location `yaml:"starting_location"`
	OpeningNarrative string   `yaml:"opening_narrative"`
}

// Location names the party's starting position.
type Location struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// Member describes one player character.
type Member struct {
	ID                 string         `yaml:"id"`
	Name               string         `yaml:"name"`
	Race               string         `yaml:"race"`
	Class              string         `yaml:"class"`
	Level              int            `yaml:"level"`
	MaxHP              int            `yaml:"max_hp"`
	CurrentHP          *int           `yaml:"current_hp"`
	ArmorClass         int            `yaml:"armor_class"`
	InitiativeModifier int            `yaml:"initiative_modifier"`
	Gold               int            `yaml:"gold"`
	Stats              map[string]int `yaml:"stats"`
	Proficiencies      []string       `yaml:"proficiencies"`
	Inventory          []Item         `yaml:"inventory"`
}

// Item is one starting inventory entry.
type Item struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Quantity    int    `yaml:"quantity"`
}

// Quest is one starting quest log entry.
type Quest struct {
	ID          string `yaml:"id"`
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	Status      string `yaml:"status"`
}

// Load reads and validates a campaign file, returning a fresh game state.
func Load(path string) (*state.GameState, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open campaign file: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse decodes and validates a campaign definition.
func Parse(r io.Reader) (*state.GameState, error) {
	var file File
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&file); err != nil {
		return nil, fmt.Errorf("decode campaign file: %w", err)
	}
	if err := file.validate(); err != nil {
		return nil, err
	}
	return file.gameState(), nil
}

func (f *File) validate() error {
	if strings.TrimSpace(f.Campaign.ID) == "" {
		return fmt.Errorf("campaign id is required")
	}
	if len(f.Party) == 0 {
		return fmt.Errorf("campaign requires at least one party member")
	}

	seen := make(map[string]struct{}, len(f.Party))
	for i, member := range f.Party {
		if strings.TrimSpace(member.ID) == "" {
			return fmt.Errorf("party member %d: id is required", i)
		}
		if strings.TrimSpace(member.Name) == "" {
			return fmt.Errorf("party member %s: name is required", member.ID)
		}
		if member.MaxHP <= 0 {
			return fmt.Errorf("party member %s: max_hp must be positive", member.ID)
		}
		if member.CurrentHP != nil && (*member.CurrentHP < 0 || *member.CurrentHP > member.MaxHP) {
			return fmt.Errorf("party member %s: current_hp out of range", member.ID)
		}
		if _, dup := seen[member.ID]; dup {
			return fmt.Errorf("party member %s: duplicate id", member.ID)
		}
		seen[member.ID] = struct{}{}
	}

	for i, quest := range f.Quests {
		if strings.TrimSpace(quest.ID) == "" {
			return fmt.Errorf("quest %d: id is required", i)
		}
	}
	return nil
}

func (f *File) gameState() *state.GameState {
	gs := state.New(f.Campaign.ID)
	gs.Location = f.Campaign.StartingLocation.Name
	gs.LocationDescription = f.Campaign.StartingLocation.Description

	for _, member := range f.Party {
		currentHP := member.MaxHP
		if member.CurrentHP != nil {
			currentHP = *member.CurrentHP
		}
		level := member.Level
		if level <= 0 {
			level = 1
		}

		inventory := make([]state.Item, 0, len(member.Inventory))
		for _, item := range member.Inventory {
			quantity := item.Quantity
			if quantity <= 0 {
				quantity = 1
			}
			inventory = append(inventory, state.Item{
				Name:        item.Name,
				Description: item.Description,
				Quantity:    quantity,
			})
		}

		gs.Party[member.ID] = &state.PartyMember{
			ID:                 member.ID,
			Name:               member.Name,
			Race:               member.Race,
			Class:              member.Class,
			Level:              level,
			CurrentHP:          currentHP,
			MaxHP:              member.MaxHP,
			ArmorClass:         member.ArmorClass,
			InitiativeModifier: member.InitiativeModifier,
			Gold:               member.Gold,
			Stats:              member.Stats,
			Proficiencies:      member.Proficiencies,
			Inventory:          inventory,
		}
	}

	for _, quest := range f.Quests {
		status := quest.Status
		if status == "" {
			status = "active"
		}
		gs.Quests[quest.ID] = &state.Quest{
			ID:          quest.ID,
			Title:       quest.Title,
			Description: quest.Description,
			Status:      status,
		}
	}

	if narrative := strings.TrimSpace(f.Campaign.OpeningNarrative); narrative != "" {
		gs.AddChatMessage(state.RoleAssistant, narrative, "", time.Now())
	}
	return gs
}
