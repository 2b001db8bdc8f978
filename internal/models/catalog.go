package models

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var catalogYAML []byte

// ClassProfile holds the balance and visual rules of an archetype.
type ClassProfile struct {
	MaxHealth      int                 `yaml:"max_health"`
	MaxMana        int                 `yaml:"max_mana"`
	ManaPotions    int                 `yaml:"mana_potions"`
	RequiredWeapon string              `yaml:"required_weapon"`
	ArmorStyle     string              `yaml:"armor_style"`
	Rules          string              `yaml:"rules"`
	Weapon         map[Language]string `yaml:"weapon"`
}

// LanguageProfile holds the localized starting content of a run.
type LanguageProfile struct {
	HealingPotion   string   `yaml:"healing_potion"`
	ManaPotion      string   `yaml:"mana_potion"`
	Quest           string   `yaml:"quest"`
	Intro           string   `yaml:"intro"`
	FallbackOptions []string `yaml:"fallback_options"`
}

// Catalog is the static game data shipped with the binary.
type Catalog struct {
	Classes   map[Class]ClassProfile       `yaml:"classes"`
	Languages map[Language]LanguageProfile `yaml:"languages"`
}

var catalog = mustParseCatalog(catalogYAML)

// ParseCatalog decodes and checks a catalog document.
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	for _, class := range Classes {
		p, ok := c.Classes[class]
		if !ok {
			return nil, fmt.Errorf("catalog: missing class %s", class)
		}
		for _, l := range Languages {
			if p.Weapon[l] == "" {
				return nil, fmt.Errorf("catalog: class %s has no %s weapon name", class, l)
			}
		}
	}
	for _, l := range Languages {
		if _, ok := c.Languages[l]; !ok {
			return nil, fmt.Errorf("catalog: missing language %s", l)
		}
	}
	return &c, nil
}

func mustParseCatalog(data []byte) *Catalog {
	c, err := ParseCatalog(data)
	if err != nil {
		panic(err)
	}
	return c
}

// ProfileFor returns the archetype profile, falling back to Human.
func ProfileFor(class Class) ClassProfile {
	if p, ok := catalog.Classes[class]; ok {
		return p
	}
	return catalog.Classes[Human]
}

// LanguageFor returns the localized content, falling back to English.
func LanguageFor(l Language) LanguageProfile {
	if p, ok := catalog.Languages[l]; ok {
		return p
	}
	return catalog.Languages[English]
}
