package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/tatianab/mythic-paths/internal/engine"
	"github.com/tatianab/mythic-paths/internal/models"
)

// fakeGen scripts the gateway. Segments are handed out in order and the last
// one repeats.
type fakeGen struct {
	mu sync.Mutex

	visual      string
	segments    []*models.StorySegment
	narrativeFn func(req engine.NarrativeRequest) (*models.StorySegment, error)
	images      map[string][]byte
	imageFn     func(req engine.ImageRequest) []byte
	stateFn     func(req engine.DerivedStateRequest) models.Patch

	narrativeReqs []engine.NarrativeRequest
	imageReqs     []engine.ImageRequest
	stateReqs     []engine.DerivedStateRequest
	preloads      [][]string
}

func newFakeGen(segs ...*models.StorySegment) *fakeGen {
	return &fakeGen{
		visual:   "copper braid, grey eyes, iron plate, heavy warhammer",
		segments: segs,
		images:   map[string][]byte{},
	}
}

func (f *fakeGen) GenerateNarrative(_ context.Context, req engine.NarrativeRequest) (*models.StorySegment, error) {
	f.mu.Lock()
	f.narrativeReqs = append(f.narrativeReqs, req)
	fn := f.narrativeFn
	var seg *models.StorySegment
	if len(f.segments) > 0 {
		seg = f.segments[0]
		if len(f.segments) > 1 {
			f.segments = f.segments[1:]
		}
	}
	f.mu.Unlock()

	if fn != nil {
		return fn(req)
	}
	if seg == nil {
		return nil, fmt.Errorf("no segment scripted")
	}
	cp := *seg
	return &cp, nil
}

func (f *fakeGen) GenerateImage(_ context.Context, req engine.ImageRequest) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.imageReqs = append(f.imageReqs, req)
	if img, ok := f.images[req.Prompt]; ok {
		return img
	}
	if f.imageFn != nil {
		return f.imageFn(req)
	}
	return nil
}

func (f *fakeGen) UpdateDerivedState(_ context.Context, req engine.DerivedStateRequest) models.Patch {
	f.mu.Lock()
	f.stateReqs = append(f.stateReqs, req)
	fn := f.stateFn
	f.mu.Unlock()
	if fn == nil {
		return models.Patch{}
	}
	return fn(req)
}

func (f *fakeGen) GenerateCharacterVisuals(context.Context, models.Gender, models.Class, models.Language) string {
	return f.visual
}

func (f *fakeGen) PreloadOptionImages(prompts []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.preloads = append(f.preloads, append([]string(nil), prompts...))
}

func (f *fakeGen) narrativeCalls() []engine.NarrativeRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]engine.NarrativeRequest(nil), f.narrativeReqs...)
}

func (f *fakeGen) imageCalls() []engine.ImageRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]engine.ImageRequest(nil), f.imageReqs...)
}

func (f *fakeGen) stateCalls() []engine.DerivedStateRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]engine.DerivedStateRequest(nil), f.stateReqs...)
}

func (f *fakeGen) setImage(prompt string, img []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.images[prompt] = img
}

func (f *fakeGen) setNarrative(fn func(req engine.NarrativeRequest) (*models.StorySegment, error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.narrativeFn = fn
}

func (f *fakeGen) setSegments(segs ...*models.StorySegment) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.segments = segs
	f.narrativeFn = nil
}

type fixedRoller int

func (r fixedRoller) Roll() int { return int(r) }

type recordingAmbience struct {
	mu     sync.Mutex
	envs   []models.Environment
	damage int
	stops  int
}

func (a *recordingAmbience) PlayEnvironment(env models.Environment) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.envs = append(a.envs, env)
}

func (a *recordingAmbience) PlayDamage() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.damage++
}

func (a *recordingAmbience) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stops++
}

func segment(text string, env models.Environment, options ...string) *models.StorySegment {
	prompts := make([]string, len(options))
	for i, o := range options {
		prompts[i] = "vision of " + o
	}
	return &models.StorySegment{
		Text:                text,
		Options:             options,
		VisualDescription:   "scene of " + text,
		OptionVisualPrompts: prompts,
		Environment:         env,
	}
}
