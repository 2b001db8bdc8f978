// Package session owns a single run of the game: the canonical state, the
// turn pipeline that advances it and the background reconciliation that
// corrects it.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tatianab/mythic-paths/internal/dice"
	"github.com/tatianab/mythic-paths/internal/engine"
	"github.com/tatianab/mythic-paths/internal/models"
	"github.com/tatianab/mythic-paths/internal/store"
)

var (
	ErrBusy            = errors.New("a turn is already being generated")
	ErrNoOptions       = errors.New("no options to choose from")
	ErrInvalidOption   = errors.New("option index out of range")
	ErrAwaitingRoll    = errors.New("roll the die to resolve the chosen option")
	ErrNoPendingRoll   = errors.New("no option is waiting for a roll")
	ErrDead            = errors.New("the character is dead")
	ErrNotPlaying      = errors.New("no game in progress")
	ErrNoSave          = errors.New("no save found")
	ErrCorruptSave     = errors.New("save is corrupt")
	ErrItemNotFound    = errors.New("item not in inventory")
	ErrItemNotUsable   = errors.New("item cannot be used")
	ErrWrongPhase      = errors.New("command not available now")
	ErrUnknownLanguage = errors.New("unsupported language")
	ErrClosed          = errors.New("session closed")
)

// Generator is the generation gateway as seen by the session.
type Generator interface {
	GenerateNarrative(ctx context.Context, req engine.NarrativeRequest) (*models.StorySegment, error)
	GenerateImage(ctx context.Context, req engine.ImageRequest) []byte
	UpdateDerivedState(ctx context.Context, req engine.DerivedStateRequest) models.Patch
	GenerateCharacterVisuals(ctx context.Context, gender models.Gender, class models.Class, lang models.Language) string
	PreloadOptionImages(prompts []string)
}

// world is everything a view shows. It is only touched inside update.
type world struct {
	id           uuid.UUID
	phase        Phase
	pendingIndex int
	language     models.Language

	state         models.GameState
	history       []models.StoryHistoryItem
	text          string
	options       []string
	optionPrompts []string
	environment   models.Environment
	image         []byte
	portrait      []byte
	weaponImage   []byte
	deathImage    []byte
}

// Session is safe for concurrent use. Every mutation is serialized through
// update.
type Session struct {
	gen      Generator
	store    store.Store
	logger   *zap.Logger
	roller   dice.Roller
	ambience Ambience

	mu sync.Mutex
	w  world

	events  chan Event
	patches chan taggedPatch

	ctx      context.Context
	cancel   context.CancelFunc
	closeMu  sync.RWMutex
	closed   bool
	detached sync.WaitGroup
	consumer sync.WaitGroup
}

// Option configures a Session.
type Option func(*Session)

func WithLogger(l *zap.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithRoller replaces the die. Tests use it to fix rolls.
func WithRoller(r dice.Roller) Option {
	return func(s *Session) {
		if r != nil {
			s.roller = r
		}
	}
}

func WithAmbience(a Ambience) Option {
	return func(s *Session) {
		if a != nil {
			s.ambience = a
		}
	}
}

// WithLanguage preselects a language and skips the language menu.
func WithLanguage(l models.Language) Option {
	return func(s *Session) {
		if l.Valid() {
			s.w.language = l
			s.w.phase = PhaseCharacterCreate
			s.w.state = models.DefaultGameState(l)
		}
	}
}

// New creates a session in the language menu.
func New(gen Generator, st store.Store, opts ...Option) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		gen:      gen,
		store:    st,
		logger:   zap.NewNop(),
		ambience: nopAmbience{},
		events:   make(chan Event, 64),
		patches:  make(chan taggedPatch),
		ctx:      ctx,
		cancel:   cancel,
		w: world{
			id:          uuid.New(),
			phase:       PhaseLanguageSelect,
			language:    models.English,
			state:       models.DefaultGameState(models.English),
			environment: models.Forest,
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.roller == nil {
		d, err := dice.NewRandomD20()
		if err != nil {
			s.logger.Warn("Seeding the die from crypto/rand failed, using the clock", zap.Error(err))
			d = dice.NewD20(time.Now().UnixNano())
		}
		s.roller = d
	}

	s.consumer.Add(1)
	go s.consumePatches()
	return s
}

// Events delivers notices and state changes. The channel is never closed.
func (s *Session) Events() <-chan Event {
	return s.events
}

// Wait blocks until every detached operation started so far has finished and
// its result has been applied.
func (s *Session) Wait() {
	s.detached.Wait()
}

// Close cancels detached work, waits for it and stops the patch consumer.
// Commands that would start detached work afterwards skip it.
func (s *Session) Close() error {
	s.closeMu.Lock()
	if s.closed {
		s.closeMu.Unlock()
		return nil
	}
	s.closed = true
	s.closeMu.Unlock()

	s.cancel()
	s.detached.Wait()
	close(s.patches)
	s.consumer.Wait()
	return nil
}

// update is the single entry point for state mutation.
func (s *Session) update(fn func(w *world) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&s.w)
}

// track registers one unit of detached work. It reports false once the
// session is closed.
func (s *Session) track() bool {
	s.closeMu.RLock()
	defer s.closeMu.RUnlock()
	if s.closed {
		return false
	}
	s.detached.Add(1)
	return true
}

// detach runs fn in the background, tracked by Wait and Close.
func (s *Session) detach(fn func(ctx context.Context)) {
	if !s.track() {
		return
	}
	go func() {
		defer s.detached.Done()
		fn(s.ctx)
	}()
}

// Phase returns the current phase.
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.phase
}

// View is a deep copy of what the player sees.
type View struct {
	Phase       Phase
	Language    models.Language
	State       models.GameState
	History     []models.StoryHistoryItem
	Text        string
	Options     []string
	Environment models.Environment
	Image       []byte
	Portrait    []byte
	WeaponImage []byte
	DeathImage  []byte
	// PendingOption is the option waiting for a roll in PhaseCombat, else -1.
	PendingOption int
}

// Ending reports whether the story has concluded.
func (v View) Ending() bool {
	return v.Phase == PhaseIdle && len(v.Options) == 0 && v.State.IsEnding()
}

func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	w := &s.w

	v := View{
		Phase:         w.phase,
		Language:      w.language,
		State:         w.state.Clone(),
		History:       make([]models.StoryHistoryItem, len(w.history)),
		Text:          w.text,
		Options:       append([]string(nil), w.options...),
		Environment:   w.environment,
		Image:         clone(w.image),
		Portrait:      clone(w.portrait),
		WeaponImage:   clone(w.weaponImage),
		DeathImage:    clone(w.deathImage),
		PendingOption: -1,
	}
	for i, h := range w.history {
		v.History[i] = h.Clone()
	}
	if w.phase == PhaseCombat {
		v.PendingOption = w.pendingIndex
	}
	if w.phase == PhaseDead {
		v.Options = nil
	}
	return v
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}

func (s *Session) changed(turn int) {
	s.emit(Event{Kind: EventStateChanged, Turn: turn})
}
