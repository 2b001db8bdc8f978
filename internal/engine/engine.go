// Package engine is the gateway to the generative backend. It builds prompts,
// retries throttled calls, caches images and turns raw responses into
// validated domain values.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/tatianab/mythic-paths/internal/models"
)

// Models names the backend model used for each kind of call.
type Models struct {
	Narrative string
	State     string
	Character string
	Image     string
}

var defaultModels = Models{
	Narrative: "gemini-2.5-flash",
	State:     "gemini-2.5-flash-lite",
	Character: "gemini-2.5-flash",
	Image:     "gemini-2.5-flash-image",
}

// Policies holds the retry policy of each kind of call. Character
// descriptions are never retried.
type Policies struct {
	Narrative RetryPolicy
	State     RetryPolicy
	Image     RetryPolicy
}

var defaultPolicies = Policies{
	Narrative: RetryPolicy{MaxRetries: 3, BaseDelay: time.Second},
	State:     RetryPolicy{MaxRetries: 1, BaseDelay: 2 * time.Second},
	Image:     RetryPolicy{MaxRetries: 2, BaseDelay: 3 * time.Second},
}

const defaultStagger = 200 * time.Millisecond

// Request kinds, used in logs and metrics.
const (
	KindNarrative = "narrative"
	KindState     = "state"
	KindCharacter = "character"
	KindImage     = "image"
)

// NarrativeRequest asks for the next story segment.
type NarrativeRequest struct {
	History  []string
	Choice   string
	State    models.GameState
	Language models.Language
	DieRoll  *int
}

// ImageRequest asks for one image. Prompt is the scene; CharacterDescription,
// when set, is layered on top of it.
type ImageRequest struct {
	Prompt               string
	UseCache             bool
	CharacterDescription string
	AspectRatio          AspectRatio
}

// DerivedStateRequest asks for the state changes implied by a narrative.
type DerivedStateRequest struct {
	Narrative string
	Inventory []models.Item
	Quest     string
	Health    int
	Mana      int
	MaxHealth int
	MaxMana   int
	Action    string
	Language  models.Language
}

// Engine is safe for concurrent use.
type Engine struct {
	backend       Backend
	logger        *zap.Logger
	models        Models
	policies      Policies
	stagger       time.Duration
	retryObserver RetryObserver

	cache    *ImageCache
	inflight singleflight.Group

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures an Engine.
type Option func(*Engine)

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithModels overrides the model names. Empty names keep the default.
func WithModels(m Models) Option {
	return func(e *Engine) {
		if m.Narrative != "" {
			e.models.Narrative = m.Narrative
		}
		if m.State != "" {
			e.models.State = m.State
		}
		if m.Character != "" {
			e.models.Character = m.Character
		}
		if m.Image != "" {
			e.models.Image = m.Image
		}
	}
}

func WithPolicies(p Policies) Option {
	return func(e *Engine) { e.policies = p }
}

// WithPreloadStagger sets the delay between consecutive preload requests.
func WithPreloadStagger(d time.Duration) Option {
	return func(e *Engine) { e.stagger = d }
}

func WithRetryObserver(fn RetryObserver) Option {
	return func(e *Engine) { e.retryObserver = fn }
}

// New creates an Engine over backend.
func New(backend Backend, opts ...Option) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		backend:  backend,
		logger:   zap.NewNop(),
		models:   defaultModels,
		policies: defaultPolicies,
		stagger:  defaultStagger,
		cache:    NewImageCache(),
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// GenerateNarrative produces the next segment. Throttling errors are retried
// under the narrative policy; any other failure is returned to the caller.
func (e *Engine) GenerateNarrative(ctx context.Context, req NarrativeRequest) (*models.StorySegment, error) {
	prompt, err := buildStoryPrompt(req)
	if err != nil {
		return nil, err
	}

	var seg models.StorySegment
	err = e.retry(ctx, KindNarrative, e.policies.Narrative, func() error {
		raw, err := e.backend.GenerateText(ctx, TextRequest{
			Model:  e.models.Narrative,
			Prompt: prompt,
			Schema: segmentSchema,
		})
		if err != nil {
			return err
		}
		if strings.TrimSpace(raw) == "" {
			return ErrEmptyResponse
		}
		seg = models.StorySegment{}
		if err := json.Unmarshal([]byte(stripFences(raw)), &seg); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedSegment, err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("generate story segment: %w", err)
	}

	if req.State.IsEnding() {
		seg.Options = []string{}
		seg.OptionVisualPrompts = []string{}
	}
	if err := seg.Validate(); err != nil {
		return nil, fmt.Errorf("generate story segment: %w: %v", ErrMalformedSegment, err)
	}
	seg.Environment, _ = models.ParseEnvironment(string(seg.Environment))
	return &seg, nil
}

// GenerateImage returns image bytes, or nil when generation fails after
// retries. It never returns an error.
func (e *Engine) GenerateImage(ctx context.Context, req ImageRequest) []byte {
	if req.AspectRatio == "" {
		req.AspectRatio = Landscape
	}
	key := CacheKey(req.Prompt, req.AspectRatio)
	if req.UseCache {
		if img, ok := e.cache.Get(key); ok {
			imageCacheLookups.WithLabelValues("hit").Inc()
			return img
		}
		imageCacheLookups.WithLabelValues("miss").Inc()
	}

	prompt := BuildImagePrompt(req.Prompt, req.CharacterDescription, req.AspectRatio)
	v, err, _ := e.inflight.Do(string(req.AspectRatio)+"\x00"+prompt, func() (any, error) {
		var img []byte
		err := e.retry(ctx, KindImage, e.policies.Image, func() error {
			var err error
			img, err = e.backend.GenerateImage(ctx, e.models.Image, prompt, req.AspectRatio)
			return err
		})
		return img, err
	})
	if err != nil {
		e.logger.Warn("Image generation failed", zap.String("key", key), zap.Error(err))
		return nil
	}
	img, _ := v.([]byte)
	if len(img) == 0 {
		return nil
	}
	if req.UseCache {
		e.cache.Put(key, img)
	}
	return img
}

type derivedStateResponse struct {
	Inventory    []models.Item `json:"inventory"`
	CurrentQuest string        `json:"currentQuest"`
	Health       *int          `json:"health"`
	Mana         *int          `json:"mana"`
}

// UpdateDerivedState asks for the inventory, quest, health and mana implied by
// the narrative. On any failure it returns a patch equal to the inputs.
func (e *Engine) UpdateDerivedState(ctx context.Context, req DerivedStateRequest) models.Patch {
	noop := models.FullPatch(req.Inventory, req.Quest, req.Health, req.Mana)

	prompt, err := buildDerivedStatePrompt(req)
	if err != nil {
		e.logger.Error("Error updating game state (non-critical)", zap.Error(err))
		return noop
	}

	var resp derivedStateResponse
	err = e.retry(ctx, KindState, e.policies.State, func() error {
		raw, err := e.backend.GenerateText(ctx, TextRequest{
			Model:  e.models.State,
			Prompt: prompt,
			Schema: derivedStateSchema,
		})
		if err != nil {
			return err
		}
		if strings.TrimSpace(raw) == "" {
			return ErrEmptyResponse
		}
		resp = derivedStateResponse{}
		return json.Unmarshal([]byte(stripFences(raw)), &resp)
	})
	if err != nil {
		e.logger.Error("Error updating game state (non-critical)", zap.Error(err))
		return noop
	}

	patch := noop
	if resp.Inventory != nil {
		patch.Inventory = resp.Inventory
	}
	if resp.CurrentQuest != "" {
		patch.Quest = resp.CurrentQuest
	}
	if resp.Health != nil {
		patch.Health = resp.Health
	}
	if resp.Mana != nil {
		patch.Mana = resp.Mana
	}
	return patch
}

// GenerateCharacterVisuals returns the immutable visual description of a new
// character. It falls back to a generic description on failure.
func (e *Engine) GenerateCharacterVisuals(ctx context.Context, gender models.Gender, class models.Class, lang models.Language) string {
	prompt, err := buildCharacterPrompt(gender, class, lang)
	if err == nil {
		var raw string
		start := time.Now()
		raw, err = e.backend.GenerateText(ctx, TextRequest{Model: e.models.Character, Prompt: prompt})
		observeRequest(KindCharacter, start, err)
		if err == nil {
			if desc := strings.TrimSpace(raw); desc != "" {
				return desc
			}
			return fmt.Sprintf("%s %s with silver hair and %s", gender, class, models.ProfileFor(class).RequiredWeapon)
		}
	}
	e.logger.Warn("Character visuals failed, using fallback", zap.Error(err))
	return fmt.Sprintf("%s %s adventurer with epic gear", gender, class)
}

// PreloadOptionImages warms the cache for each prompt in the background,
// spacing the requests by the preload stagger. It returns immediately.
func (e *Engine) PreloadOptionImages(prompts []string) {
	for i, p := range prompts {
		if strings.TrimSpace(p) == "" {
			continue
		}
		delay := time.Duration(i) * e.stagger
		e.Go(func(ctx context.Context) {
			if delay > 0 {
				t := time.NewTimer(delay)
				defer t.Stop()
				select {
				case <-ctx.Done():
					return
				case <-t.C:
				}
			}
			e.GenerateImage(ctx, ImageRequest{Prompt: p, UseCache: true, AspectRatio: Landscape})
		})
	}
}

// Go runs fn in a goroutine tied to the engine lifetime. Wait blocks until
// every such goroutine has returned.
func (e *Engine) Go(fn func(ctx context.Context)) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		fn(e.ctx)
	}()
}

// SeedImage stores an image under the key a cached request for prompt and
// ratio would use.
func (e *Engine) SeedImage(prompt string, ratio AspectRatio, img []byte) {
	if len(img) == 0 {
		return
	}
	e.cache.Put(CacheKey(prompt, ratio), img)
}

// CachedImage looks up an image without generating it.
func (e *Engine) CachedImage(prompt string, ratio AspectRatio) ([]byte, bool) {
	return e.cache.Get(CacheKey(prompt, ratio))
}

// Wait blocks until background work started by the engine is done.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// Close cancels background work and waits for it.
func (e *Engine) Close() error {
	e.cancel()
	e.wg.Wait()
	return nil
}

// IsMalformed reports whether err came from an unusable story segment.
func IsMalformed(err error) bool {
	return errors.Is(err, ErrMalformedSegment)
}
