package models

// EndingTurn is the turn at which the story concludes and no options are offered.
const EndingTurn = 100

// Patch is a field-level update derived from what just happened in the story.
// Nil or empty fields leave the current value untouched.
type Patch struct {
	Inventory []Item
	Quest     string
	Health    *int
	Mana      *int
}

// FullPatch builds a patch that sets every reconciled field.
func FullPatch(inventory []Item, quest string, health, mana int) Patch {
	return Patch{Inventory: cloneItems(inventory), Quest: quest, Health: &health, Mana: &mana}
}

// Clamp enforces 0 <= Health <= MaxHealth and 0 <= Mana <= MaxMana.
func (g *GameState) Clamp() {
	if g.MaxHealth < 0 {
		g.MaxHealth = 0
	}
	if g.MaxMana < 0 {
		g.MaxMana = 0
	}
	g.Health = clamp(g.Health, 0, g.MaxHealth)
	g.Mana = clamp(g.Mana, 0, g.MaxMana)
}

// Apply overwrites inventory, quest, health and mana from p, then clamps.
// No other field is touched.
func (g *GameState) Apply(p Patch) {
	if p.Inventory != nil {
		g.Inventory = cloneItems(p.Inventory)
	}
	if p.Quest != "" {
		g.CurrentQuest = p.Quest
	}
	if p.Health != nil {
		g.Health = *p.Health
	}
	if p.Mana != nil {
		g.Mana = *p.Mana
	}
	g.Clamp()
}

// IsEnding reports whether the run has reached its final turn.
func (g GameState) IsEnding() bool {
	return g.TurnCount >= EndingTurn
}

// IsDead reports whether the protagonist has no health left.
func (g GameState) IsDead() bool {
	return g.Health <= 0
}

// EquippedWeapon is the first inventory item by convention.
func (g GameState) EquippedWeapon() (Item, bool) {
	if len(g.Inventory) == 0 {
		return Item{}, false
	}
	return g.Inventory[0], true
}

// DefaultGameState is the state shown before a character exists.
func DefaultGameState(l Language) GameState {
	lp := LanguageFor(l)
	return GameState{
		Inventory:    []Item{{Name: lp.HealingPotion, Category: CategoryHealing}},
		CurrentQuest: lp.Quest,
		Health:       20,
		MaxHealth:    20,
		Mana:         10,
		MaxMana:      10,
		Player:       PlayerStats{Gender: Male, Class: Human},
		TurnCount:    1,
	}
}

// NewGameState builds the opening state of a character from the catalog.
func NewGameState(class Class, gender Gender, l Language, visual string) GameState {
	cp := ProfileFor(class)
	lp := LanguageFor(l)

	weapon := cp.Weapon[l]
	if weapon == "" {
		weapon = cp.Weapon[English]
	}
	inventory := []Item{
		{Name: weapon, Category: CategoryWeapon},
		{Name: lp.HealingPotion, Category: CategoryHealing},
	}
	for i := 0; i < cp.ManaPotions; i++ {
		inventory = append(inventory, Item{Name: lp.ManaPotion, Category: CategoryMana})
	}

	return GameState{
		Inventory:    inventory,
		CurrentQuest: lp.Quest,
		Health:       cp.MaxHealth,
		MaxHealth:    cp.MaxHealth,
		Mana:         cp.MaxMana,
		MaxMana:      cp.MaxMana,
		Player:       PlayerStats{Gender: gender, Class: class, VisualDescription: visual},
		TurnCount:    1,
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
