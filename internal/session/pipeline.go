package session

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tatianab/mythic-paths/internal/dice"
	"github.com/tatianab/mythic-paths/internal/engine"
	"github.com/tatianab/mythic-paths/internal/models"
)

// Choose resolves option i. In a combat scene the option is held and the
// session waits in PhaseCombat for Roll; otherwise the turn runs now.
func (s *Session) Choose(ctx context.Context, i int) error {
	var (
		in     turnInput
		combat bool
		turn   int
	)
	err := s.update(func(w *world) error {
		if err := w.phase.acceptsInput(); err != nil {
			return err
		}
		if len(w.options) == 0 {
			return ErrNoOptions
		}
		if i < 0 || i >= len(w.options) {
			return fmt.Errorf("%w: %d of %d", ErrInvalidOption, i, len(w.options))
		}
		turn = w.state.TurnCount
		if dice.RequiresRoll(w.environment) {
			w.phase = PhaseCombat
			w.pendingIndex = i
			combat = true
			return nil
		}
		in = beginTurn(w, i)
		return nil
	})
	if err != nil {
		return err
	}
	s.changed(turn)
	if combat {
		return nil
	}
	return s.runTurn(ctx, in, nil)
}

// Roll throws the die for the held option and runs the turn with it.
func (s *Session) Roll(ctx context.Context) (int, error) {
	var (
		in   turnInput
		roll int
	)
	err := s.update(func(w *world) error {
		switch w.phase {
		case PhaseCombat:
		case PhaseDead:
			return ErrDead
		default:
			return ErrNoPendingRoll
		}
		roll = s.roller.Roll()
		w.state.LastRoll = &roll
		in = beginTurn(w, w.pendingIndex)
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.logger.Debug("Rolled", zap.Int("roll", roll), zap.String("outcome", dice.OutcomeFor(roll).String()))
	s.changed(in.state.TurnCount)
	return roll, s.runTurn(ctx, in, &roll)
}

// turnInput is what a turn is generated from, copied out of the world before
// any request is made.
type turnInput struct {
	id       uuid.UUID
	language models.Language
	state    models.GameState
	history  []string
	text     string
	image    []byte
	choice   string
	prompt   string
}

// beginTurn must be called inside update with a valid option index.
func beginTurn(w *world, i int) turnInput {
	w.phase = PhaseGenerating
	w.pendingIndex = 0
	in := turnInput{
		id:       w.id,
		language: w.language,
		state:    w.state.Clone(),
		text:     w.text,
		image:    clone(w.image),
		choice:   w.options[i],
	}
	if i < len(w.optionPrompts) {
		in.prompt = w.optionPrompts[i]
	}
	in.history = make([]string, 0, len(w.history)+1)
	for _, h := range w.history {
		in.history = append(in.history, h.Text)
	}
	in.history = append(in.history, w.text)
	return in
}

// runTurn forks the narrative and the primary image, joins, falls back to
// the narrative's own picture, commits, then reconciles in the background.
func (s *Session) runTurn(ctx context.Context, in turnInput, roll *int) error {
	visual := in.state.Player.VisualDescription
	next := in.state.Clone()
	next.TurnCount++

	var (
		seg *models.StorySegment
		img []byte
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		seg, err = s.gen.GenerateNarrative(gctx, engine.NarrativeRequest{
			History:  in.history,
			Choice:   in.choice,
			State:    next,
			Language: in.language,
			DieRoll:  roll,
		})
		return err
	})
	if in.prompt != "" {
		g.Go(func() error {
			img = s.gen.GenerateImage(gctx, engine.ImageRequest{
				Prompt:               in.prompt,
				UseCache:             true,
				CharacterDescription: visual,
				AspectRatio:          engine.Landscape,
			})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.turnFailed(in, err)
		return err
	}

	if img == nil && seg.VisualDescription != "" {
		img = s.gen.GenerateImage(ctx, engine.ImageRequest{
			Prompt:               seg.VisualDescription,
			CharacterDescription: visual,
			AspectRatio:          engine.Landscape,
		})
	}

	var turn int
	err := s.update(func(w *world) error {
		if w.id != in.id || w.phase != PhaseGenerating {
			return errStale
		}
		w.history = append(w.history, models.StoryHistoryItem{
			Text:           in.text,
			Image:          in.image,
			SelectedOption: in.choice,
			DiceRoll:       copyRoll(roll),
		})
		w.state.TurnCount++
		w.text = seg.Text
		w.options = append([]string(nil), seg.Options...)
		w.optionPrompts = append([]string(nil), seg.OptionVisualPrompts...)
		w.environment = seg.Environment
		if img != nil {
			w.image = img
		}
		w.phase = PhaseIdle
		s.ambience.PlayEnvironment(seg.Environment)
		turn = w.state.TurnCount
		return nil
	})
	if err != nil {
		// Restarted, reloaded or killed while generating.
		turnsTotal.WithLabelValues("discarded").Inc()
		return nil
	}
	turnsTotal.WithLabelValues("committed").Inc()
	s.logger.Info("Turn committed",
		zap.String("session_id", in.id.String()),
		zap.Int("turn", turn),
		zap.String("environment", string(seg.Environment)),
		zap.Bool("image", img != nil),
	)
	s.changed(turn)

	// Reconciliation works from the state the turn started with.
	req := engine.DerivedStateRequest{
		Narrative: seg.Text,
		Inventory: in.state.Inventory,
		Quest:     in.state.CurrentQuest,
		Health:    in.state.Health,
		Mana:      in.state.Mana,
		MaxHealth: in.state.MaxHealth,
		MaxMana:   in.state.MaxMana,
		Language:  in.language,
	}
	if roll != nil {
		req.Action = fmt.Sprintf("Rolled %d", *roll)
	}
	s.reconcile(in.id, turn, req)
	s.gen.PreloadOptionImages(seg.OptionVisualPrompts)
	return nil
}

// turnFailed returns the session to Idle with the turn it had.
func (s *Session) turnFailed(in turnInput, err error) {
	turnsTotal.WithLabelValues("failed").Inc()
	s.logger.Error("Turn generation failed",
		zap.String("session_id", in.id.String()),
		zap.Int("turn", in.state.TurnCount),
		zap.Error(err),
	)
	_ = s.update(func(w *world) error {
		if w.id == in.id && w.phase == PhaseGenerating {
			w.phase = PhaseIdle
		}
		return nil
	})
	s.notify(NoticeTurnFailed)
	s.changed(in.state.TurnCount)
}

func copyRoll(r *int) *int {
	if r == nil {
		return nil
	}
	v := *r
	return &v
}
