package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tatianab/mythic-paths/internal/engine"
	"github.com/tatianab/mythic-paths/internal/models"
)

// errStale marks a result that belongs to a session that has moved on.
var errStale = errors.New("stale result")

// taggedPatch is a reconciliation result waiting to be applied. baseHealth is
// the health the patch was computed against.
type taggedPatch struct {
	sessionID  uuid.UUID
	turn       int
	baseHealth int
	patch      models.Patch
	done       func()
}

// reconcile asks for the derived state of a committed turn in the background
// and queues the result for the patch consumer.
func (s *Session) reconcile(id uuid.UUID, turn int, req engine.DerivedStateRequest) {
	if !s.track() {
		return
	}
	go func() {
		patch := s.gen.UpdateDerivedState(s.ctx, req)
		s.patches <- taggedPatch{
			sessionID:  id,
			turn:       turn,
			baseHealth: req.Health,
			patch:      patch,
			done:       s.detached.Done,
		}
	}()
}

func (s *Session) consumePatches() {
	defer s.consumer.Done()
	for tp := range s.patches {
		s.applyReconciliation(tp)
		tp.done()
	}
}

// applyReconciliation patches whatever state is current, field by field. A
// patch for another session, or one arriving outside play, is dropped.
func (s *Session) applyReconciliation(tp taggedPatch) {
	var (
		died  bool
		scene deathScene
		turn  int
	)
	err := s.update(func(w *world) error {
		if w.id != tp.sessionID || !w.phase.playing() || w.phase == PhaseDead {
			return errStale
		}
		died = s.applyPatch(w, tp.patch, tp.baseHealth)
		if died {
			scene = newDeathScene(w)
		}
		turn = w.state.TurnCount
		return nil
	})
	if err != nil {
		reconciliationsTotal.WithLabelValues("discarded").Inc()
		s.logger.Debug("Discarding stale state patch",
			zap.String("session_id", tp.sessionID.String()),
			zap.Int("turn", tp.turn),
		)
		return
	}
	reconciliationsTotal.WithLabelValues("applied").Inc()
	s.changed(turn)
	if died {
		s.die(scene)
	}
}

// applyPatch must be called inside update. Damage is judged by the patch's
// own health against the health it was computed from. It reports whether the
// patch killed the character.
func (s *Session) applyPatch(w *world, p models.Patch, baseHealth int) bool {
	w.state.Apply(p)
	if p.Health != nil && *p.Health < baseHealth {
		s.ambience.PlayDamage()
	}
	if !w.state.IsDead() {
		return false
	}
	w.phase = PhaseDead
	w.pendingIndex = 0
	w.options = nil
	w.optionPrompts = nil
	s.ambience.Stop()
	deathsTotal.Inc()
	return true
}

type deathScene struct {
	id     uuid.UUID
	turn   int
	prompt string
	visual string
}

func newDeathScene(w *world) deathScene {
	p := w.state.Player
	return deathScene{
		id:   w.id,
		turn: w.state.TurnCount,
		prompt: fmt.Sprintf("GAME OVER. Tragic scene. The %s %s (%s) lies defeated on the ground in the %s. Dark, somber atmosphere, dramatic lighting.",
			p.Gender, p.Class, p.VisualDescription, w.environment),
		visual: p.VisualDescription,
	}
}

// die announces the death and paints the death scene in the background.
func (s *Session) die(scene deathScene) {
	s.logger.Info("Character died", zap.String("session_id", scene.id.String()), zap.Int("turn", scene.turn))
	s.emit(Event{Kind: EventDied, Turn: scene.turn})
	s.detach(func(ctx context.Context) {
		img := s.gen.GenerateImage(ctx, engine.ImageRequest{
			Prompt:               scene.prompt,
			CharacterDescription: scene.visual,
			AspectRatio:          engine.Landscape,
		})
		if img == nil {
			return
		}
		s.setImage(scene.id, func(w *world) { w.deathImage = img })
	})
}

// setImage stores a detached image result if its session is still current.
func (s *Session) setImage(id uuid.UUID, set func(w *world)) {
	var turn int
	err := s.update(func(w *world) error {
		if w.id != id {
			return errStale
		}
		set(w)
		turn = w.state.TurnCount
		return nil
	})
	if err == nil {
		s.changed(turn)
	}
}
