package tui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tatianab/mythic-paths/internal/models"
)

func numbered(items []string) string {
	var b strings.Builder
	for i, it := range items {
		fmt.Fprintf(&b, "  %d. %s\n", i+1, it)
	}
	return strings.TrimRight(b.String(), "\n")
}

func languageNames() []string {
	names := make([]string, len(models.Languages))
	for i, l := range models.Languages {
		names[i] = string(l)
	}
	return names
}

func genderNames() []string {
	names := make([]string, len(models.Genders))
	for i, g := range models.Genders {
		names[i] = string(g)
	}
	return names
}

func classNames() []string {
	names := make([]string, len(models.Classes))
	for i, c := range models.Classes {
		p := models.ProfileFor(c)
		names[i] = fmt.Sprintf("%s (HP %d, MP %d)", c, p.MaxHealth, p.MaxMana)
	}
	return names
}

// pick resolves a menu answer given either as a 1-based number or a name.
func pick[T any](input string, items []T, parse func(string) (T, bool)) (T, bool) {
	var zero T
	if n, err := strconv.Atoi(strings.TrimSpace(input)); err == nil {
		if n < 1 || n > len(items) {
			return zero, false
		}
		return items[n-1], true
	}
	return parse(input)
}

func parseLanguage(input string) (models.Language, bool) {
	return pick(input, models.Languages, models.MatchLanguage)
}

func parseGender(input string) (models.Gender, bool) {
	return pick(input, models.Genders, func(s string) (models.Gender, bool) {
		g, err := models.ParseGender(s)
		return g, err == nil
	})
}

func parseClass(input string) (models.Class, bool) {
	return pick(input, models.Classes, func(s string) (models.Class, bool) {
		c, err := models.ParseClass(s)
		return c, err == nil
	})
}
