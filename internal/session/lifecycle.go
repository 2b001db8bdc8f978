package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tatianab/mythic-paths/internal/engine"
	"github.com/tatianab/mythic-paths/internal/models"
	"github.com/tatianab/mythic-paths/internal/store"
)

// initialScenePrompt paints the opening forest shared by every new game.
const initialScenePrompt = "A photorealistic dark forest at night, fog, ancient trees, cinematic lighting, 8k resolution, highly detailed, mysterious atmosphere, no text"

// SelectLanguage picks the story language and moves to character creation.
func (s *Session) SelectLanguage(l models.Language) error {
	if !l.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownLanguage, l)
	}
	err := s.update(func(w *world) error {
		if w.phase != PhaseLanguageSelect && w.phase != PhaseCharacterCreate {
			return ErrWrongPhase
		}
		w.language = l
		w.phase = PhaseCharacterCreate
		w.state = models.DefaultGameState(l)
		return nil
	})
	if err != nil {
		return err
	}
	s.changed(0)
	return nil
}

// StartGame creates the character and opens the story. A failing first
// segment leaves the game playable with localized fallback options.
func (s *Session) StartGame(ctx context.Context, gender models.Gender, class models.Class) error {
	var (
		id   uuid.UUID
		lang models.Language
	)
	err := s.update(func(w *world) error {
		if w.phase != PhaseCharacterCreate {
			return ErrWrongPhase
		}
		w.phase = PhaseGenerating
		id = w.id
		lang = w.language
		return nil
	})
	if err != nil {
		return err
	}
	s.changed(0)

	visual := s.gen.GenerateCharacterVisuals(ctx, gender, class, lang)
	state := models.NewGameState(class, gender, lang, visual)
	lp := models.LanguageFor(lang)
	opening := s.initialScene(ctx)

	err = s.update(func(w *world) error {
		if w.id != id || w.phase != PhaseGenerating {
			return errStale
		}
		w.state = state.Clone()
		w.history = nil
		w.text = lp.Intro
		w.options = nil
		w.optionPrompts = nil
		w.environment = models.Forest
		w.image = opening
		w.portrait = nil
		w.weaponImage = nil
		w.deathImage = nil
		s.ambience.PlayEnvironment(models.Forest)
		return nil
	})
	if err != nil {
		return nil
	}
	s.logger.Info("Game started",
		zap.String("session_id", id.String()),
		zap.String("class", string(class)),
		zap.String("gender", string(gender)),
		zap.String("language", string(lang)),
	)
	s.changed(state.TurnCount)
	s.paintCharacter(id, state)

	seg, genErr := s.gen.GenerateNarrative(ctx, engine.NarrativeRequest{
		Choice:   lp.Intro,
		State:    state,
		Language: lang,
	})
	err = s.update(func(w *world) error {
		if w.id != id || w.phase != PhaseGenerating {
			return errStale
		}
		w.phase = PhaseIdle
		if genErr != nil {
			w.options = append([]string(nil), lp.FallbackOptions...)
			w.optionPrompts = append([]string(nil), lp.FallbackOptions...)
			return nil
		}
		w.text = seg.Text
		w.options = append([]string(nil), seg.Options...)
		w.optionPrompts = append([]string(nil), seg.OptionVisualPrompts...)
		w.environment = seg.Environment
		s.ambience.PlayEnvironment(seg.Environment)
		return nil
	})
	if err != nil {
		return nil
	}
	if genErr != nil {
		s.logger.Error("Opening segment failed", zap.String("session_id", id.String()), zap.Error(genErr))
		s.notify(NoticeStartFailed)
	} else {
		s.gen.PreloadOptionImages(seg.OptionVisualPrompts)
	}
	s.changed(state.TurnCount)
	return nil
}

// paintCharacter generates the portrait and weapon icon in the background.
func (s *Session) paintCharacter(id uuid.UUID, state models.GameState) {
	p := state.Player
	weapon, _ := state.EquippedWeapon()

	portrait := fmt.Sprintf("Portrait of a %s %s, %s, fantasy rpg character art, detailed face, upper body, cinematic lighting, oil painting style, no text",
		p.Gender, p.Class, p.VisualDescription)
	s.detach(func(ctx context.Context) {
		if img := s.gen.GenerateImage(ctx, engine.ImageRequest{Prompt: portrait, AspectRatio: engine.Portrait}); img != nil {
			s.setImage(id, func(w *world) { w.portrait = img })
		}
	})

	icon := fmt.Sprintf("Fantasy RPG icon of a %s, %s style, magical, sharp, highly detailed, cinematic lighting, 8k, no text, no background",
		weapon.Name, p.VisualDescription)
	s.detach(func(ctx context.Context) {
		if img := s.gen.GenerateImage(ctx, engine.ImageRequest{Prompt: icon, AspectRatio: engine.Square}); img != nil {
			s.setImage(id, func(w *world) { w.weaponImage = img })
		}
	})
}

// initialScene reads the cached opening image, or nil.
func (s *Session) initialScene(ctx context.Context) []byte {
	img, err := s.store.Get(ctx, store.InitialSceneSlot)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.logger.Warn("Reading initial scene failed", zap.Error(err))
		}
		return nil
	}
	return img
}

// WarmInitialScene generates and caches the opening image if no earlier run
// did. A game that opened without it picks it up while still on its first
// turn.
func (s *Session) WarmInitialScene(ctx context.Context) {
	img := s.initialScene(ctx)
	if img == nil {
		img = s.gen.GenerateImage(ctx, engine.ImageRequest{Prompt: initialScenePrompt, AspectRatio: engine.Landscape})
		if img == nil {
			return
		}
		if err := s.store.Put(ctx, store.InitialSceneSlot, img); err != nil {
			s.logger.Warn("Caching initial scene failed", zap.Error(err))
		}
	}

	var turn int
	err := s.update(func(w *world) error {
		if !w.phase.playing() || len(w.history) > 0 || w.image != nil {
			return errStale
		}
		w.image = img
		turn = w.state.TurnCount
		return nil
	})
	if err == nil {
		s.changed(turn)
	}
}

// Restart abandons the run and returns to character creation in the same
// language. Results of detached work from the old run are dropped.
func (s *Session) Restart() {
	_ = s.update(func(w *world) error {
		lang := w.language
		phase := PhaseCharacterCreate
		if w.phase == PhaseLanguageSelect {
			phase = PhaseLanguageSelect
		}
		*w = world{
			id:          uuid.New(),
			phase:       phase,
			language:    lang,
			state:       models.DefaultGameState(lang),
			environment: models.Forest,
		}
		s.ambience.Stop()
		return nil
	})
	s.changed(0)
}
