package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tatianab/mythic-paths/internal/models"
	"github.com/tatianab/mythic-paths/internal/store"
)

// SaveResult tells a full save from one that had to drop history images.
type SaveResult int

const (
	SaveOK SaveResult = iota
	SaveDegraded
)

func (r SaveResult) String() string {
	if r == SaveDegraded {
		return "degraded"
	}
	return "ok"
}

func (s *Session) snapshot() (*models.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w := &s.w
	if !w.phase.playing() {
		return nil, ErrNotPlaying
	}
	snap := &models.Snapshot{
		Language:           w.language,
		History:            make([]models.StoryHistoryItem, len(w.history)),
		CurrentText:        w.text,
		CurrentOptions:     append([]string{}, w.options...),
		CurrentImage:       clone(w.image),
		CharacterPortrait:  clone(w.portrait),
		WeaponImage:        clone(w.weaponImage),
		NextOptionPrompts:  append([]string{}, w.optionPrompts...),
		GameState:          w.state.Clone(),
		CurrentEnvironment: w.environment,
		Date:               time.Now().UTC(),
	}
	for i, h := range w.history {
		snap.History[i] = h.Clone()
	}
	return snap, nil
}

// Save writes the session to the save slot. When the full snapshot does not
// fit the store quota it is written again without history images and
// SaveDegraded is returned.
func (s *Session) Save(ctx context.Context) (SaveResult, error) {
	snap, err := s.snapshot()
	if err != nil {
		return SaveOK, err
	}

	result, err := s.write(ctx, snap)
	if err != nil {
		savesTotal.WithLabelValues("error").Inc()
		s.logger.Error("Save failed", zap.Error(err))
		s.notify(NoticeSaveFailed)
		return SaveOK, err
	}
	savesTotal.WithLabelValues(result.String()).Inc()
	if result == SaveDegraded {
		s.notify(NoticeStorageFull)
	} else {
		s.notify(NoticeSaved)
	}
	return result, nil
}

func (s *Session) write(ctx context.Context, snap *models.Snapshot) (SaveResult, error) {
	data, err := snap.Encode()
	if err != nil {
		return SaveOK, err
	}
	err = s.store.Put(ctx, store.SaveSlot, data)
	if err == nil {
		return SaveOK, nil
	}
	if !errors.Is(err, store.ErrQuotaExceeded) {
		return SaveOK, fmt.Errorf("write save: %w", err)
	}

	s.logger.Warn("Save exceeds quota, dropping history images", zap.Int("bytes", len(data)))
	data, err = snap.WithoutHistoryImages().Encode()
	if err != nil {
		return SaveOK, err
	}
	if err := s.store.Put(ctx, store.SaveSlot, data); err != nil {
		return SaveOK, fmt.Errorf("write degraded save: %w", err)
	}
	return SaveDegraded, nil
}

// HasSave reports whether the save slot holds anything.
func (s *Session) HasSave(ctx context.Context) bool {
	_, err := s.store.Get(ctx, store.SaveSlot)
	return err == nil
}

// Load replaces the session with the saved one. A missing or corrupt save
// leaves the session as it was.
func (s *Session) Load(ctx context.Context) error {
	if s.Phase() == PhaseGenerating {
		return ErrBusy
	}

	data, err := s.store.Get(ctx, store.SaveSlot)
	if errors.Is(err, store.ErrNotFound) {
		s.notify(NoticeNoSave)
		return ErrNoSave
	}
	if err != nil {
		s.logger.Error("Reading save failed", zap.Error(err))
		s.notify(NoticeLoadFailed)
		return fmt.Errorf("read save: %w", err)
	}
	snap, err := models.DecodeSnapshot(data)
	if err != nil {
		s.logger.Error("Save is corrupt", zap.Error(err))
		s.notify(NoticeLoadFailed)
		return fmt.Errorf("%w: %v", ErrCorruptSave, err)
	}

	var turn int
	err = s.update(func(w *world) error {
		if w.phase == PhaseGenerating {
			return ErrBusy
		}
		phase := PhaseIdle
		if snap.GameState.IsDead() {
			phase = PhaseDead
		}
		*w = world{
			id:            uuid.New(),
			phase:         phase,
			language:      snap.Language,
			state:         snap.GameState,
			history:       snap.History,
			text:          snap.CurrentText,
			options:       snap.CurrentOptions,
			optionPrompts: snap.NextOptionPrompts,
			environment:   snap.CurrentEnvironment,
			image:         snap.CurrentImage,
			portrait:      snap.CharacterPortrait,
			weaponImage:   snap.WeaponImage,
		}
		if phase == PhaseDead {
			w.options = nil
			w.optionPrompts = nil
		} else {
			s.ambience.PlayEnvironment(w.environment)
		}
		turn = w.state.TurnCount
		return nil
	})
	if err != nil {
		return err
	}
	s.gen.PreloadOptionImages(snap.NextOptionPrompts)
	s.notify(NoticeLoaded)
	s.changed(turn)
	return nil
}
