package models

import (
	"encoding/json"
	"strings"
)

// Category tags an inventory item with what it does when used.
type Category string

const (
	CategoryWeapon  Category = "WEAPON"
	CategoryHealing Category = "HEALING"
	CategoryMana    Category = "MANA"
	CategoryMisc    Category = "MISC"
)

// Categories is the closed set of item categories.
var Categories = []Category{CategoryWeapon, CategoryHealing, CategoryMana, CategoryMisc}

// ParseCategory normalizes c, returning CategoryMisc for anything unknown.
func ParseCategory(c string) Category {
	up := Category(strings.ToUpper(strings.TrimSpace(c)))
	for _, known := range Categories {
		if up == known {
			return up
		}
	}
	return CategoryMisc
}

// Consumable reports whether using the item restores a resource.
func (c Category) Consumable() bool {
	return c == CategoryHealing || c == CategoryMana
}

// Item is a named inventory entry. Index 0 of an inventory is the equipped weapon.
type Item struct {
	Name     string   `json:"name" yaml:"name"`
	Category Category `json:"category" yaml:"category"`
}

// NewItem builds an item, classifying it by name when category is empty.
func NewItem(name string, category Category) Item {
	if category == "" {
		category = ClassifyItem(name)
	}
	return Item{Name: name, Category: category}
}

// UnmarshalJSON accepts either an object or a bare item name. Bare names come
// from saves written before items carried a category.
func (i *Item) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		*i = NewItem(name, "")
		return nil
	}
	type plain Item
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	var category Category
	if p.Category != "" {
		category = ParseCategory(string(p.Category))
	}
	*i = NewItem(p.Name, category)
	return nil
}

var (
	healingKeywords = []string{"healing", "heal", "curativa", "heiltrank", "guérison", "curación", "curacion"}
	manaKeywords    = []string{"mana", "maná", "magic", "magia", "magique", "mágico", "magico"}
	potionKeywords  = []string{"potion", "pozione", "trank", "poción", "pocion", "elixir", "flask"}
)

// ClassifyItem guesses a category from an item name in any supported
// language. It is only used for items that arrive without a category.
func ClassifyItem(name string) Category {
	n := fold.String(name)
	switch {
	case containsAny(n, healingKeywords):
		return CategoryHealing
	case containsAny(n, manaKeywords) && containsAny(n, potionKeywords):
		return CategoryMana
	default:
		return CategoryMisc
	}
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, fold.String(k)) {
			return true
		}
	}
	return false
}

// FindItem returns the index of the first item named name, or -1.
func FindItem(items []Item, name string) int {
	for i, it := range items {
		if fold.String(it.Name) == fold.String(name) {
			return i
		}
	}
	return -1
}

// ItemNames flattens an inventory to its names.
func ItemNames(items []Item) []string {
	names := make([]string, len(items))
	for i, it := range items {
		names[i] = it.Name
	}
	return names
}
