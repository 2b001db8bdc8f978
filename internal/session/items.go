package session

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/tatianab/mythic-paths/internal/engine"
	"github.com/tatianab/mythic-paths/internal/models"
)

// UseItem drinks a healing or mana item and applies the derived state
// synchronously. Other items are refused with ErrItemNotUsable.
func (s *Session) UseItem(ctx context.Context, name string) error {
	var (
		in       turnInput
		category models.Category
	)
	err := s.update(func(w *world) error {
		switch w.phase {
		case PhaseIdle, PhaseCombat:
		case PhaseGenerating:
			return ErrBusy
		case PhaseDead:
			return ErrDead
		default:
			return ErrNotPlaying
		}
		idx := models.FindItem(w.state.Inventory, name)
		if idx < 0 {
			return fmt.Errorf("%w: %q", ErrItemNotFound, name)
		}
		item := w.state.Inventory[idx]
		category = item.Category
		if category == "" {
			category = models.ClassifyItem(item.Name)
		}
		if !category.Consumable() {
			return fmt.Errorf("%w: %q", ErrItemNotUsable, item.Name)
		}
		in = turnInput{id: w.id, language: w.language, state: w.state.Clone()}
		return nil
	})
	if err != nil {
		return err
	}

	narrative, action, notice := "You drink the healing potion.", "Drink Health Potion", NoticeHealthGained
	if category == models.CategoryMana {
		narrative, action, notice = "You drink the Mana potion.", "Drink Mana Potion", NoticeManaGained
	}
	patch := s.gen.UpdateDerivedState(ctx, engine.DerivedStateRequest{
		Narrative: narrative,
		Inventory: in.state.Inventory,
		Quest:     in.state.CurrentQuest,
		Health:    in.state.Health,
		Mana:      in.state.Mana,
		MaxHealth: in.state.MaxHealth,
		MaxMana:   in.state.MaxMana,
		Action:    action,
		Language:  in.language,
	})

	var (
		died  bool
		scene deathScene
		turn  int
	)
	err = s.update(func(w *world) error {
		if w.id != in.id || !w.phase.playing() || w.phase == PhaseDead {
			return errStale
		}
		died = s.applyPatch(w, patch, in.state.Health)
		if died {
			scene = newDeathScene(w)
		}
		turn = w.state.TurnCount
		return nil
	})
	if err != nil {
		return nil
	}
	s.logger.Info("Item used", zap.String("item", name), zap.String("category", string(category)))
	s.notify(notice)
	s.changed(turn)
	if died {
		s.die(scene)
	}
	return nil
}
