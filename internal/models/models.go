package models

import (
	"fmt"
	"strings"
)

// Gender is the protagonist's gender, fixed at character creation.
type Gender string

const (
	Male      Gender = "Male"
	Female    Gender = "Female"
	NonBinary Gender = "Non-Binary"
)

// Genders lists the selectable genders in menu order.
var Genders = []Gender{Male, Female, NonBinary}

// Class is the character archetype, fixed at character creation.
type Class string

const (
	Human Class = "Human"
	Elf   Class = "Elf"
	Dwarf Class = "Dwarf"
	Mage  Class = "Mage"
)

// Classes lists the selectable archetypes in menu order.
var Classes = []Class{Human, Elf, Dwarf, Mage}

// ParseGender resolves a gender name case-insensitively.
func ParseGender(s string) (Gender, error) {
	for _, g := range Genders {
		if strings.EqualFold(string(g), strings.TrimSpace(s)) {
			return g, nil
		}
	}
	return "", fmt.Errorf("unknown gender %q", s)
}

// ParseClass resolves a class name case-insensitively.
func ParseClass(s string) (Class, error) {
	for _, c := range Classes {
		if strings.EqualFold(string(c), strings.TrimSpace(s)) {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown class %q", s)
}

// Environment is the categorical tag of a scene. It drives narrative tone,
// ambient audio and combat gating.
type Environment string

const (
	Forest  Environment = "FOREST"
	Cave    Environment = "CAVE"
	Town    Environment = "TOWN"
	Combat  Environment = "COMBAT"
	Dungeon Environment = "DUNGEON"
	Ocean   Environment = "OCEAN"
)

// Environments is the closed set accepted from the story generator.
var Environments = []Environment{Forest, Cave, Town, Combat, Dungeon, Ocean}

// ParseEnvironment upper-cases s and checks it against Environments.
func ParseEnvironment(s string) (Environment, error) {
	e := Environment(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range Environments {
		if e == known {
			return e, nil
		}
	}
	return "", fmt.Errorf("unknown environment %q", s)
}

// PlayerStats is the protagonist's identity. VisualDescription is generated
// once and embedded in every image prompt to keep the character consistent.
type PlayerStats struct {
	Gender            Gender `json:"gender" yaml:"gender"`
	Class             Class  `json:"class" yaml:"class"`
	VisualDescription string `json:"visualDescription,omitempty" yaml:"visual_description,omitempty"`
}

// GameState is the canonical mutable record of a run.
type GameState struct {
	Inventory    []Item      `json:"inventory" yaml:"inventory"`
	CurrentQuest string      `json:"currentQuest" yaml:"current_quest"`
	Health       int         `json:"health" yaml:"health"`
	MaxHealth    int         `json:"maxHealth" yaml:"max_health"`
	Mana         int         `json:"mana" yaml:"mana"`
	MaxMana      int         `json:"maxMana" yaml:"max_mana"`
	Player       PlayerStats `json:"player" yaml:"player"`
	TurnCount    int         `json:"turnCount" yaml:"turn_count"`
	LastRoll     *int        `json:"lastRoll,omitempty" yaml:"last_roll,omitempty"`
}

// StorySegment is one generated scene. It is not stored long-term; the
// session copies its fields into the current turn.
type StorySegment struct {
	Text                string      `json:"text"`
	Options             []string    `json:"options"`
	VisualDescription   string      `json:"visualDescription"`
	OptionVisualPrompts []string    `json:"optionVisualPrompts"`
	Environment         Environment `json:"environment"`
}

// MaxOptions is the most choices a segment may offer.
const MaxOptions = 3

// Validate reports whether the segment is structurally complete.
func (s *StorySegment) Validate() error {
	if strings.TrimSpace(s.Text) == "" {
		return fmt.Errorf("segment text is empty")
	}
	if len(s.Options) > MaxOptions {
		return fmt.Errorf("segment has %d options, at most %d allowed", len(s.Options), MaxOptions)
	}
	if len(s.Options) != len(s.OptionVisualPrompts) {
		return fmt.Errorf("segment has %d options but %d option visual prompts", len(s.Options), len(s.OptionVisualPrompts))
	}
	if _, err := ParseEnvironment(string(s.Environment)); err != nil {
		return err
	}
	return nil
}

// StoryHistoryItem is an archived turn.
type StoryHistoryItem struct {
	Text           string `json:"text"`
	Image          []byte `json:"imageUri,omitempty"`
	SelectedOption string `json:"selectedOption,omitempty"`
	DiceRoll       *int   `json:"diceRoll,omitempty"`
}

// Clone returns a deep copy of the game state.
func (g GameState) Clone() GameState {
	out := g
	out.Inventory = cloneItems(g.Inventory)
	if g.LastRoll != nil {
		r := *g.LastRoll
		out.LastRoll = &r
	}
	return out
}

// Clone returns a deep copy of the history item.
func (h StoryHistoryItem) Clone() StoryHistoryItem {
	out := h
	out.Image = cloneBytes(h.Image)
	if h.DiceRoll != nil {
		r := *h.DiceRoll
		out.DiceRoll = &r
	}
	return out
}

func cloneItems(items []Item) []Item {
	if items == nil {
		return nil
	}
	out := make([]Item, len(items))
	copy(out, items)
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
