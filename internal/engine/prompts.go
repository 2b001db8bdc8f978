package engine

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"github.com/tatianab/mythic-paths/internal/dice"
	"github.com/tatianab/mythic-paths/internal/models"
)

//go:embed prompts/story.txt
var storyPrompt string

//go:embed prompts/derived_state.txt
var derivedStatePrompt string

//go:embed prompts/character.txt
var characterPrompt string

//go:embed prompts/image.txt
var imagePrompt string

var (
	storyTmpl        = template.Must(template.New("story").Parse(storyPrompt))
	derivedStateTmpl = template.Must(template.New("derived_state").Parse(derivedStatePrompt))
	characterTmpl    = template.Must(template.New("character").Parse(characterPrompt))
	imageTmpl        = template.Must(template.New("image").Parse(imagePrompt))
)

// ContextWindow is how many trailing history texts feed a narrative request.
const ContextWindow = 4

// imageStyle prefixes every image prompt.
const imageStyle = "Cinematic dark fantasy, oil painting, dramatic lighting, 8k resolution, highly detailed, no text, no words, no letters."

func render(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s prompt: %w", t.Name(), err)
	}
	return buf.String(), nil
}

func tail(history []string, n int) []string {
	if len(history) <= n {
		return history
	}
	return history[len(history)-n:]
}

func buildStoryPrompt(req NarrativeRequest) (string, error) {
	gs := req.State
	playerDesc := fmt.Sprintf("Main Character: %s %s", gs.Player.Gender, gs.Player.Class)
	if gs.Player.VisualDescription != "" {
		playerDesc = "Main Character Visuals (IMMUTABLE): " + gs.Player.VisualDescription
	}

	envs := make([]string, len(models.Environments))
	for i, e := range models.Environments {
		envs[i] = "'" + string(e) + "'"
	}

	data := struct {
		Language          models.Language
		Gender            models.Gender
		Class             models.Class
		PlayerDescription string
		VisualDescription string
		ClassRules        string
		Turn              int
		EndingTurn        int
		Context           []string
		Choice            string
		Health, MaxHealth int
		Mana, MaxMana     int
		Inventory         string
		HasRoll           bool
		Roll              int
		CriticalFailure   bool
		CriticalSuccess   bool
		IsEnding          bool
		Environments      string
	}{
		Language:          req.Language,
		Gender:            gs.Player.Gender,
		Class:             gs.Player.Class,
		PlayerDescription: playerDesc,
		VisualDescription: gs.Player.VisualDescription,
		ClassRules:        models.ProfileFor(gs.Player.Class).Rules,
		Turn:              gs.TurnCount,
		EndingTurn:        models.EndingTurn,
		Context:           tail(req.History, ContextWindow),
		Choice:            req.Choice,
		Health:            gs.Health,
		MaxHealth:         gs.MaxHealth,
		Mana:              gs.Mana,
		MaxMana:           gs.MaxMana,
		Inventory:         strings.Join(models.ItemNames(gs.Inventory), ", "),
		IsEnding:          gs.IsEnding(),
		Environments:      strings.Join(envs, ", "),
	}
	if req.DieRoll != nil {
		data.HasRoll = true
		data.Roll = *req.DieRoll
		data.CriticalFailure = dice.IsCriticalFailure(*req.DieRoll)
		data.CriticalSuccess = dice.IsCriticalSuccess(*req.DieRoll)
	}
	return render(storyTmpl, data)
}

func buildDerivedStatePrompt(req DerivedStateRequest) (string, error) {
	inv, err := json.Marshal(req.Inventory)
	if err != nil {
		return "", fmt.Errorf("encode inventory: %w", err)
	}
	lang := req.Language
	if lang == "" {
		lang = models.English
	}
	action := req.Action
	if action == "" {
		action = "None"
	}
	return render(derivedStateTmpl, struct {
		Language          models.Language
		Narrative         string
		Action            string
		Inventory         string
		Quest             string
		Health, MaxHealth int
		Mana, MaxMana     int
	}{
		Language:  lang,
		Narrative: req.Narrative,
		Action:    action,
		Inventory: string(inv),
		Quest:     req.Quest,
		Health:    req.Health,
		MaxHealth: req.MaxHealth,
		Mana:      req.Mana,
		MaxMana:   req.MaxMana,
	})
}

func buildCharacterPrompt(gender models.Gender, class models.Class, lang models.Language) (string, error) {
	cp := models.ProfileFor(class)
	return render(characterTmpl, struct {
		Gender   models.Gender
		Class    models.Class
		Weapon   string
		Armor    string
		Language models.Language
	}{gender, class, cp.RequiredWeapon, cp.ArmorStyle, lang})
}

// BuildImagePrompt layers an optional immutable character description under
// the scene. The same inputs always produce the same prompt.
func BuildImagePrompt(scene, character string, ratio AspectRatio) string {
	out, err := render(imageTmpl, struct {
		Style       string
		Character   string
		Scene       string
		AspectRatio AspectRatio
	}{imageStyle, strings.TrimSpace(character), strings.TrimSpace(scene), ratio})
	if err != nil {
		// The template only interpolates strings.
		return imageStyle + " " + scene
	}
	return out
}

// stripFences removes a Markdown code fence around a JSON payload.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
