package models

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Language is a supported story language, named in its own tongue.
type Language string

const (
	Italian Language = "Italiano"
	English Language = "English"
	German  Language = "Deutsch"
	French  Language = "Français"
	Spanish Language = "Español"
)

// Languages lists the supported languages in menu order.
var Languages = []Language{Italian, English, German, French, Spanish}

var (
	languageTags = map[Language]language.Tag{
		Italian: language.Italian,
		English: language.English,
		German:  language.German,
		French:  language.French,
		Spanish: language.Spanish,
	}
	languageMatcher = language.NewMatcher([]language.Tag{
		language.Italian,
		language.English,
		language.German,
		language.French,
		language.Spanish,
	})
	fold = cases.Fold()
)

// Tag returns the BCP 47 tag for l, or language.Und when l is unknown.
func (l Language) Tag() language.Tag {
	if t, ok := languageTags[l]; ok {
		return t
	}
	return language.Und
}

// Valid reports whether l is one of Languages.
func (l Language) Valid() bool {
	_, ok := languageTags[l]
	return ok
}

// MatchLanguage resolves s to a supported language. s may be a native name
// ("Deutsch"), a BCP 47 tag ("fr-CA") or a POSIX locale ("es_ES.UTF-8").
func MatchLanguage(s string) (Language, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	for _, l := range Languages {
		if fold.String(string(l)) == fold.String(s) {
			return l, true
		}
	}
	if i := strings.IndexAny(s, ".@"); i >= 0 {
		s = s[:i]
	}
	tag, err := language.Parse(strings.ReplaceAll(s, "_", "-"))
	if err != nil {
		return "", false
	}
	_, idx, conf := languageMatcher.Match(tag)
	if conf == language.No {
		return "", false
	}
	return Languages[idx], true
}
