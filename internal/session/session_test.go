package session

import (
	"bytes"
	"context"
	"errors"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tatianab/mythic-paths/internal/dice"
	"github.com/tatianab/mythic-paths/internal/engine"
	"github.com/tatianab/mythic-paths/internal/models"
	"github.com/tatianab/mythic-paths/internal/store"
)

func newTestSession(t *testing.T, gen *fakeGen, st store.Store, opts ...Option) *Session {
	t.Helper()
	if st == nil {
		st = store.NewMemory()
	}
	s := New(gen, st, append([]Option{WithLanguage(models.English)}, opts...)...)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func startDwarf(t *testing.T, s *Session) {
	t.Helper()
	require.NoError(t, s.StartGame(context.Background(), models.Female, models.Dwarf))
}

func notices(s *Session) []string {
	var out []string
	for {
		select {
		case e := <-s.Events():
			if e.Kind == EventNotice {
				out = append(out, e.Message)
			}
		default:
			return out
		}
	}
}

func hasEvent(s *Session, kind EventKind) bool {
	for {
		select {
		case e := <-s.Events():
			if e.Kind == kind {
				return true
			}
		default:
			return false
		}
	}
}

func opening() *models.StorySegment {
	return segment("The woods part before you.", models.Forest, "Left", "Right", "Wait")
}

func TestStartGame(t *testing.T) {
	ctx := context.Background()
	gen := newFakeGen(opening())
	gen.imageFn = func(req engine.ImageRequest) []byte {
		switch req.AspectRatio {
		case engine.Portrait:
			return []byte("portrait")
		case engine.Square:
			return []byte("weapon")
		}
		return nil
	}
	st := store.NewMemory()
	require.NoError(t, st.Put(ctx, store.InitialSceneSlot, []byte("opening")))
	amb := &recordingAmbience{}
	s := newTestSession(t, gen, st, WithAmbience(amb))

	startDwarf(t, s)
	s.Wait()

	v := s.View()
	assert.Equal(t, PhaseIdle, v.Phase)
	assert.Equal(t, 1, v.State.TurnCount)
	assert.Equal(t, "The woods part before you.", v.Text)
	assert.Equal(t, []string{"Left", "Right", "Wait"}, v.Options)
	assert.Equal(t, []byte("opening"), v.Image)
	assert.Equal(t, []byte("portrait"), v.Portrait)
	assert.Equal(t, []byte("weapon"), v.WeaponImage)
	assert.Equal(t, gen.visual, v.State.Player.VisualDescription)
	assert.Empty(t, v.History)

	calls := gen.narrativeCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, models.LanguageFor(models.English).Intro, calls[0].Choice)
	assert.Empty(t, calls[0].History)
	assert.Nil(t, calls[0].DieRoll)

	for _, req := range gen.imageCalls() {
		switch req.AspectRatio {
		case engine.Portrait:
			assert.Contains(t, req.Prompt, "Portrait of a Female Dwarf")
			assert.Contains(t, req.Prompt, gen.visual)
		case engine.Square:
			assert.Contains(t, req.Prompt, "icon of a Warhammer")
		}
	}
	require.Len(t, gen.preloads, 1)
	assert.Equal(t, []string{"vision of Left", "vision of Right", "vision of Wait"}, gen.preloads[0])
	assert.Equal(t, []models.Environment{models.Forest, models.Forest}, amb.envs)
}

func TestStartGameClassBalance(t *testing.T) {
	tests := []struct {
		class       models.Class
		health      int
		mana        int
		weapon      string
		manaPotions int
	}{
		{models.Dwarf, 28, 5, "Warhammer", 0},
		{models.Mage, 14, 35, "Magic Staff", 2},
		{models.Elf, 18, 20, "Longbow", 1},
		{models.Human, 22, 12, "Sword", 0},
	}
	for _, tt := range tests {
		t.Run(string(tt.class), func(t *testing.T) {
			s := newTestSession(t, newFakeGen(opening()), nil)
			require.NoError(t, s.StartGame(context.Background(), models.Male, tt.class))

			gs := s.View().State
			assert.Equal(t, tt.health, gs.Health)
			assert.Equal(t, tt.health, gs.MaxHealth)
			assert.Equal(t, tt.mana, gs.Mana)
			assert.Equal(t, tt.mana, gs.MaxMana)
			weapon, ok := gs.EquippedWeapon()
			require.True(t, ok)
			assert.Equal(t, tt.weapon, weapon.Name)
			assert.Equal(t, models.CategoryWeapon, weapon.Category)

			mana := 0
			for _, it := range gs.Inventory {
				if it.Category == models.CategoryMana {
					mana++
				}
			}
			assert.Equal(t, tt.manaPotions, mana)
		})
	}
}

func TestStartGameFallbackOptions(t *testing.T) {
	gen := newFakeGen()
	gen.narrativeFn = func(engine.NarrativeRequest) (*models.StorySegment, error) {
		return nil, engine.ErrRateLimited
	}
	s := newTestSession(t, gen, nil)

	startDwarf(t, s)

	v := s.View()
	lp := models.LanguageFor(models.English)
	assert.Equal(t, PhaseIdle, v.Phase)
	assert.Equal(t, lp.Intro, v.Text)
	assert.Equal(t, lp.FallbackOptions, v.Options)
	assert.Contains(t, notices(s), NoticeStartFailed)
	assert.Empty(t, gen.preloads)
}

func TestChooseCommitsTurn(t *testing.T) {
	gen := newFakeGen(opening(), segment("A river blocks the way.", models.Town, "Swim", "Build a raft"))
	gen.images["vision of Right"] = []byte("river")
	amb := &recordingAmbience{}
	s := newTestSession(t, gen, nil, WithAmbience(amb))
	startDwarf(t, s)
	before := s.View()

	require.NoError(t, s.Choose(context.Background(), 1))
	s.Wait()

	v := s.View()
	assert.Equal(t, PhaseIdle, v.Phase)
	assert.Equal(t, 2, v.State.TurnCount)
	assert.Equal(t, "A river blocks the way.", v.Text)
	assert.Equal(t, []string{"Swim", "Build a raft"}, v.Options)
	assert.Equal(t, models.Town, v.Environment)
	assert.Equal(t, []byte("river"), v.Image)
	require.Len(t, v.History, 1)
	assert.Equal(t, models.StoryHistoryItem{Text: before.Text, SelectedOption: "Right"}, v.History[0])
	assert.Equal(t, models.Town, amb.envs[len(amb.envs)-1])

	calls := gen.narrativeCalls()
	require.Len(t, calls, 2)
	assert.Equal(t, "Right", calls[1].Choice)
	assert.Equal(t, 2, calls[1].State.TurnCount)
	assert.Nil(t, calls[1].DieRoll)
	assert.Equal(t, before.Text, calls[1].History[len(calls[1].History)-1])

	var primary *engine.ImageRequest
	for _, req := range gen.imageCalls() {
		if req.Prompt == "vision of Right" {
			primary = &req
		}
	}
	require.NotNil(t, primary)
	assert.True(t, primary.UseCache)
	assert.Equal(t, gen.visual, primary.CharacterDescription)
	assert.Equal(t, engine.Landscape, primary.AspectRatio)

	recon := gen.stateCalls()
	require.Len(t, recon, 1)
	assert.Equal(t, "A river blocks the way.", recon[0].Narrative)
	assert.Equal(t, before.State.Health, recon[0].Health)
	assert.Empty(t, recon[0].Action)
	assert.Equal(t, []string{"vision of Swim", "vision of Build a raft"}, gen.preloads[len(gen.preloads)-1])
}

func TestChooseValidation(t *testing.T) {
	ctx := context.Background()
	s := New(newFakeGen(opening()), store.NewMemory())
	defer s.Close()

	assert.ErrorIs(t, s.Choose(ctx, 0), ErrNotPlaying)
	assert.ErrorIs(t, s.StartGame(ctx, models.Male, models.Human), ErrWrongPhase)
	_, err := s.Save(ctx)
	assert.ErrorIs(t, err, ErrNotPlaying)
	assert.ErrorIs(t, s.SelectLanguage("Klingon"), ErrUnknownLanguage)

	require.NoError(t, s.SelectLanguage(models.Italian))
	assert.Equal(t, PhaseCharacterCreate, s.Phase())
	assert.Equal(t, models.LanguageFor(models.Italian).Quest, s.View().State.CurrentQuest)

	require.NoError(t, s.StartGame(ctx, models.Male, models.Human))
	weapon, _ := s.View().State.EquippedWeapon()
	assert.Equal(t, "Spada", weapon.Name)
	assert.ErrorIs(t, s.Choose(ctx, 3), ErrInvalidOption)
	assert.ErrorIs(t, s.Choose(ctx, -1), ErrInvalidOption)
	assert.ErrorIs(t, s.SelectLanguage(models.English), ErrWrongPhase)
}

func TestCombatGating(t *testing.T) {
	ctx := context.Background()
	gen := newFakeGen(
		segment("An orc charges!", models.Combat, "Strike", "Flee"),
		segment("The orc falls.", models.Forest, "Loot", "Rest"),
	)
	s := newTestSession(t, gen, nil, WithRoller(fixedRoller(17)))
	startDwarf(t, s)

	require.NoError(t, s.Choose(ctx, 0))
	v := s.View()
	assert.Equal(t, PhaseCombat, v.Phase)
	assert.Equal(t, 0, v.PendingOption)
	assert.Len(t, gen.narrativeCalls(), 1, "no narrative request before the roll")
	assert.ErrorIs(t, s.Choose(ctx, 1), ErrAwaitingRoll)

	roll, err := s.Roll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 17, roll)
	s.Wait()

	calls := gen.narrativeCalls()
	require.Len(t, calls, 2)
	require.NotNil(t, calls[1].DieRoll)
	assert.Equal(t, 17, *calls[1].DieRoll)
	assert.Equal(t, "Strike", calls[1].Choice)

	v = s.View()
	assert.Equal(t, 2, v.State.TurnCount)
	require.NotNil(t, v.State.LastRoll)
	assert.Equal(t, 17, *v.State.LastRoll)
	require.Len(t, v.History, 1)
	require.NotNil(t, v.History[0].DiceRoll)
	assert.Equal(t, 17, *v.History[0].DiceRoll)
	assert.Equal(t, "Rolled 17", gen.stateCalls()[0].Action)

	_, err = s.Roll(ctx)
	assert.ErrorIs(t, err, ErrNoPendingRoll)
}

func TestCombatRollsAreOnePerChoice(t *testing.T) {
	ctx := context.Background()
	gen := newFakeGen(segment("Steel rings.", models.Combat, "Strike", "Parry"))
	s := newTestSession(t, gen, nil, WithRoller(dice.NewD20(7)))
	startDwarf(t, s)

	for i := 0; i < 30; i++ {
		require.NoError(t, s.Choose(ctx, i%2))
		before := len(gen.narrativeCalls())
		roll, err := s.Roll(ctx)
		require.NoError(t, err)
		assert.True(t, dice.Valid(roll), "roll %d out of range", roll)

		calls := gen.narrativeCalls()
		require.Len(t, calls, before+1)
		require.NotNil(t, calls[before].DieRoll)
		assert.Equal(t, roll, *calls[before].DieRoll)
	}
	s.Wait()
	assert.Equal(t, 31, s.View().State.TurnCount)
}

func TestImageFallback(t *testing.T) {
	gen := newFakeGen(opening(), segment("Into the dark.", models.Cave, "Light a torch"))
	gen.images["scene of Into the dark."] = []byte("fallback")
	s := newTestSession(t, gen, nil)
	startDwarf(t, s)

	require.NoError(t, s.Choose(context.Background(), 0))

	primary, fallback := -1, -1
	calls := gen.imageCalls()
	for i, req := range calls {
		switch req.Prompt {
		case "vision of Left":
			primary = i
		case "scene of Into the dark.":
			fallback = i
		}
	}
	require.NotEqual(t, -1, primary)
	require.NotEqual(t, -1, fallback)
	assert.Less(t, primary, fallback)
	assert.False(t, calls[fallback].UseCache)
	assert.Equal(t, gen.visual, calls[fallback].CharacterDescription)
	assert.Equal(t, []byte("fallback"), s.View().Image)
}

func TestImageFallbackKeepsPreviousImage(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	require.NoError(t, st.Put(ctx, store.InitialSceneSlot, []byte("opening")))
	gen := newFakeGen(opening(), segment("Nothing to see.", models.Forest, "Go on"))
	s := newTestSession(t, gen, st)
	startDwarf(t, s)

	require.NoError(t, s.Choose(ctx, 2))

	v := s.View()
	assert.Equal(t, 2, v.State.TurnCount)
	assert.Equal(t, []byte("opening"), v.Image)
	assert.Equal(t, []byte("opening"), v.History[0].Image)

	var attempted bool
	for _, req := range gen.imageCalls() {
		if req.Prompt == "scene of Nothing to see." {
			attempted = true
		}
	}
	assert.True(t, attempted, "fallback image must be attempted")
}

func TestNarrativeFailureKeepsTurn(t *testing.T) {
	ctx := context.Background()
	gen := newFakeGen(opening())
	s := newTestSession(t, gen, nil)
	startDwarf(t, s)
	before := s.View()
	notices(s)

	gen.setNarrative(func(engine.NarrativeRequest) (*models.StorySegment, error) {
		return nil, engine.ErrRateLimited
	})
	err := s.Choose(ctx, 0)
	assert.ErrorIs(t, err, engine.ErrRateLimited)

	v := s.View()
	assert.Equal(t, PhaseIdle, v.Phase)
	assert.Equal(t, before.State.TurnCount, v.State.TurnCount)
	assert.Equal(t, before.Text, v.Text)
	assert.Equal(t, before.Options, v.Options)
	assert.Empty(t, v.History)
	assert.Contains(t, notices(s), NoticeTurnFailed)
	assert.Empty(t, gen.stateCalls())

	gen.setSegments(segment("Second try.", models.Forest, "Onward"))
	require.NoError(t, s.Choose(ctx, 0))
	assert.Equal(t, 2, s.View().State.TurnCount)
}

func TestBusyWhileGenerating(t *testing.T) {
	ctx := context.Background()
	gen := newFakeGen(opening())
	s := newTestSession(t, gen, nil)
	startDwarf(t, s)

	release := make(chan struct{})
	gen.setNarrative(func(engine.NarrativeRequest) (*models.StorySegment, error) {
		<-release
		return segment("At last.", models.Forest, "Onward"), nil
	})
	done := make(chan error, 1)
	go func() { done <- s.Choose(ctx, 0) }()

	require.Eventually(t, func() bool { return s.Phase() == PhaseGenerating }, time.Second, time.Millisecond)
	assert.ErrorIs(t, s.Choose(ctx, 1), ErrBusy)
	assert.ErrorIs(t, s.UseItem(ctx, "Healing Potion"), ErrBusy)
	assert.ErrorIs(t, s.Load(ctx), ErrBusy)
	_, err := s.Roll(ctx)
	assert.ErrorIs(t, err, ErrNoPendingRoll)

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, 2, s.View().State.TurnCount)
}

func TestReconciliationAppliesOnLaterTurn(t *testing.T) {
	ctx := context.Background()
	gen := newFakeGen(
		opening(),
		segment("Turn two.", models.Forest, "A2", "B2"),
		segment("Turn three.", models.Town, "A3"),
	)
	release := make(chan struct{})
	rope := []models.Item{models.NewItem("Warhammer", models.CategoryWeapon), models.NewItem("Rope", "")}
	gen.stateFn = func(req engine.DerivedStateRequest) models.Patch {
		if req.Narrative == "Turn two." {
			<-release
			return models.FullPatch(rope, "Escape the ruins", 5, 1)
		}
		return models.Patch{}
	}
	amb := &recordingAmbience{}
	s := newTestSession(t, gen, nil, WithAmbience(amb))
	startDwarf(t, s)

	require.NoError(t, s.Choose(ctx, 0))
	require.NoError(t, s.Choose(ctx, 1))
	v := s.View()
	require.Equal(t, 3, v.State.TurnCount)
	require.Equal(t, 28, v.State.Health, "turn two's reconciliation is still pending")

	close(release)
	s.Wait()

	v = s.View()
	assert.Equal(t, 3, v.State.TurnCount)
	assert.Equal(t, "Turn three.", v.Text)
	assert.Equal(t, []string{"A3"}, v.Options)
	assert.Equal(t, models.Town, v.Environment)
	assert.Len(t, v.History, 2)
	assert.Equal(t, 5, v.State.Health)
	assert.Equal(t, 1, v.State.Mana)
	assert.Equal(t, "Escape the ruins", v.State.CurrentQuest)
	assert.Equal(t, rope, v.State.Inventory)
	assert.Equal(t, PhaseIdle, v.Phase)
	assert.Equal(t, 1, amb.damage)

	recon := gen.stateCalls()
	require.Len(t, recon, 2)
	for _, req := range recon {
		assert.Equal(t, 28, req.Health, "both turns reconcile from the state they started with")
		assert.Contains(t, []string{"Turn two.", "Turn three."}, req.Narrative)
	}
}

func TestDamageCueFollowsPatchHealth(t *testing.T) {
	ctx := context.Background()
	gen := newFakeGen(
		opening(),
		segment("Ambush.", models.Forest, "Run"),
		segment("A map in the mud.", models.Forest, "Read"),
		segment("A spring.", models.Forest, "Drink"),
		segment("Rest.", models.Forest, "Sleep"),
	)
	gen.stateFn = func(req engine.DerivedStateRequest) models.Patch {
		switch req.Narrative {
		case "Ambush.":
			health := 5
			return models.Patch{Health: &health}
		case "A map in the mud.":
			return models.Patch{Quest: "Follow the map"}
		case "A spring.":
			health := 20
			return models.Patch{Health: &health}
		}
		return models.FullPatch(req.Inventory, req.Quest, req.Health, req.Mana)
	}
	amb := &recordingAmbience{}
	s := newTestSession(t, gen, nil, WithAmbience(amb))
	startDwarf(t, s)

	require.NoError(t, s.Choose(ctx, 0))
	s.Wait()
	require.Equal(t, 5, s.View().State.Health)
	assert.Equal(t, 1, amb.damage)

	require.NoError(t, s.Choose(ctx, 0))
	s.Wait()
	assert.Equal(t, "Follow the map", s.View().State.CurrentQuest)
	assert.Equal(t, 1, amb.damage, "a patch without health is not damage")

	require.NoError(t, s.Choose(ctx, 0))
	s.Wait()
	assert.Equal(t, 20, s.View().State.Health)
	assert.Equal(t, 1, amb.damage, "healing is not damage")

	require.NoError(t, s.Choose(ctx, 0))
	s.Wait()
	assert.Equal(t, 20, s.View().State.Health)
	assert.Equal(t, 1, amb.damage, "an unchanged health is not damage")
}

func TestReconciliationClampsOutOfRange(t *testing.T) {
	ctx := context.Background()
	rng := rand.New(rand.NewSource(42))
	gen := newFakeGen(opening(), segment("The road goes on.", models.Forest, "Walk"))
	gen.stateFn = func(engine.DerivedStateRequest) models.Patch {
		health := 1 + rng.Intn(300)
		mana := rng.Intn(400) - 100
		return models.Patch{Health: &health, Mana: &mana}
	}
	s := newTestSession(t, gen, nil)
	startDwarf(t, s)

	for i := 0; i < 40; i++ {
		require.NoError(t, s.Choose(ctx, 0))
		s.Wait()
		gs := s.View().State
		assert.Equal(t, i+2, gs.TurnCount)
		assert.GreaterOrEqual(t, gs.Health, 0)
		assert.LessOrEqual(t, gs.Health, gs.MaxHealth)
		assert.GreaterOrEqual(t, gs.Mana, 0)
		assert.LessOrEqual(t, gs.Mana, gs.MaxMana)
	}
}

func TestDeath(t *testing.T) {
	ctx := context.Background()
	gen := newFakeGen(opening(), segment("A blade finds you.", models.Dungeon, "Crawl"))
	gen.imageFn = func(req engine.ImageRequest) []byte {
		if strings.HasPrefix(req.Prompt, "GAME OVER") {
			return []byte("death")
		}
		return nil
	}
	gen.stateFn = func(engine.DerivedStateRequest) models.Patch {
		health := -3
		return models.Patch{Health: &health}
	}
	amb := &recordingAmbience{}
	s := newTestSession(t, gen, nil, WithAmbience(amb))
	startDwarf(t, s)

	require.NoError(t, s.Choose(ctx, 0))
	s.Wait()

	v := s.View()
	assert.Equal(t, PhaseDead, v.Phase)
	assert.Equal(t, 0, v.State.Health)
	assert.Empty(t, v.Options)
	assert.Equal(t, []byte("death"), v.DeathImage)
	assert.GreaterOrEqual(t, amb.stops, 1)
	assert.True(t, hasEvent(s, EventDied))

	var deathPrompt string
	for _, req := range gen.imageCalls() {
		if strings.HasPrefix(req.Prompt, "GAME OVER") {
			deathPrompt = req.Prompt
			assert.Equal(t, gen.visual, req.CharacterDescription)
		}
	}
	assert.Contains(t, deathPrompt, gen.visual)
	assert.Contains(t, deathPrompt, string(models.Dungeon))

	assert.ErrorIs(t, s.Choose(ctx, 0), ErrDead)
	_, err := s.Roll(ctx)
	assert.ErrorIs(t, err, ErrDead)
	assert.ErrorIs(t, s.UseItem(ctx, "Healing Potion"), ErrDead)

	s.Restart()
	v = s.View()
	assert.Equal(t, PhaseCharacterCreate, v.Phase)
	assert.Equal(t, models.English, v.Language)
	assert.Equal(t, models.DefaultGameState(models.English), v.State)
	assert.Empty(t, v.History)
	assert.Nil(t, v.DeathImage)
	assert.Empty(t, v.Text)
}

func TestStalePatchDiscardedAfterRestart(t *testing.T) {
	ctx := context.Background()
	gen := newFakeGen(opening(), segment("Deeper.", models.Cave, "On"))
	release := make(chan struct{})
	gen.stateFn = func(req engine.DerivedStateRequest) models.Patch {
		if req.Narrative == "Deeper." {
			<-release
			health := 0
			return models.Patch{Health: &health, Quest: "Stale quest"}
		}
		return models.Patch{}
	}
	s := newTestSession(t, gen, nil)
	startDwarf(t, s)
	require.NoError(t, s.Choose(ctx, 0))

	s.Restart()
	gen.setSegments(opening())
	require.NoError(t, s.StartGame(ctx, models.Male, models.Mage))

	close(release)
	s.Wait()

	v := s.View()
	assert.Equal(t, PhaseIdle, v.Phase, "a patch from the old run must not kill the new one")
	assert.Equal(t, 14, v.State.Health)
	assert.Equal(t, 1, v.State.TurnCount)
	assert.Equal(t, models.LanguageFor(models.English).Quest, v.State.CurrentQuest)
}

func TestCommitDiscardedAfterRestartMidTurn(t *testing.T) {
	ctx := context.Background()
	gen := newFakeGen(opening())
	s := newTestSession(t, gen, nil)
	startDwarf(t, s)

	release := make(chan struct{})
	gen.setNarrative(func(engine.NarrativeRequest) (*models.StorySegment, error) {
		<-release
		return segment("Too late.", models.Forest, "On"), nil
	})
	done := make(chan error, 1)
	go func() { done <- s.Choose(ctx, 0) }()
	require.Eventually(t, func() bool { return s.Phase() == PhaseGenerating }, time.Second, time.Millisecond)

	s.Restart()
	close(release)
	require.NoError(t, <-done)
	s.Wait()

	v := s.View()
	assert.Equal(t, PhaseCharacterCreate, v.Phase)
	assert.Empty(t, v.History)
	assert.Empty(t, v.Text)
	assert.Empty(t, gen.stateCalls())
}

func TestEnding(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	gs := models.NewGameState(models.Elf, models.Female, models.English, "silver hair, longbow")
	gs.TurnCount = models.EndingTurn - 1
	snap := models.Snapshot{
		Language:           models.English,
		History:            []models.StoryHistoryItem{},
		CurrentText:        "The last gate.",
		CurrentOptions:     []string{"Enter"},
		NextOptionPrompts:  []string{"a shining gate"},
		GameState:          gs,
		CurrentEnvironment: models.Town,
	}
	data, err := snap.Encode()
	require.NoError(t, err)
	require.NoError(t, st.Put(ctx, store.SaveSlot, data))

	gen := newFakeGen()
	gen.narrativeFn = func(req engine.NarrativeRequest) (*models.StorySegment, error) {
		if req.State.IsEnding() {
			return segment("Your tale is told.", models.Town), nil
		}
		return segment("Not yet.", models.Town, "On"), nil
	}
	s := newTestSession(t, gen, st)
	require.NoError(t, s.Load(ctx))
	require.NoError(t, s.Choose(ctx, 0))

	calls := gen.narrativeCalls()
	assert.Equal(t, models.EndingTurn, calls[len(calls)-1].State.TurnCount)

	v := s.View()
	assert.Equal(t, models.EndingTurn, v.State.TurnCount)
	assert.True(t, v.Ending())
	assert.Empty(t, v.Options)
	assert.ErrorIs(t, s.Choose(ctx, 0), ErrNoOptions)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	gen := newFakeGen(opening(), segment("A quiet camp.", models.Forest, "Sleep", "Watch"), segment("Morning.", models.Ocean, "Sail"))
	gen.images["vision of Left"] = []byte("camp")
	gen.imageFn = func(req engine.ImageRequest) []byte {
		if req.AspectRatio == engine.Portrait {
			return []byte("portrait")
		}
		return nil
	}
	s := newTestSession(t, gen, nil)
	startDwarf(t, s)
	require.NoError(t, s.Choose(ctx, 0))
	s.Wait()
	notices(s)

	result, err := s.Save(ctx)
	require.NoError(t, err)
	assert.Equal(t, SaveOK, result)
	assert.Contains(t, notices(s), NoticeSaved)
	assert.True(t, s.HasSave(ctx))
	want := s.View()

	require.NoError(t, s.Choose(ctx, 1))
	s.Wait()
	require.Equal(t, 3, s.View().State.TurnCount)

	require.NoError(t, s.Load(ctx))
	got := s.View()
	assert.Equal(t, PhaseIdle, got.Phase)
	assert.Equal(t, want.Language, got.Language)
	assert.Equal(t, want.State, got.State)
	assert.Equal(t, want.History, got.History)
	assert.Equal(t, want.Text, got.Text)
	assert.Equal(t, want.Options, got.Options)
	assert.Equal(t, want.Environment, got.Environment)
	assert.Equal(t, want.Image, got.Image)
	assert.Equal(t, want.Portrait, got.Portrait)
	assert.Contains(t, notices(s), NoticeLoaded)
	assert.Equal(t, []string{"vision of Sleep", "vision of Watch"}, gen.preloads[len(gen.preloads)-1])

	require.NoError(t, s.Choose(ctx, 0), "a loaded session is playable")
}

func TestLoadDeadSave(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	state := models.NewGameState(models.Elf, models.Male, models.English, "an elf")
	state.Health = 0
	snap := &models.Snapshot{
		Language:          models.English,
		CurrentText:       "The wolves circle.",
		CurrentOptions:    []string{"Fight"},
		NextOptionPrompts: []string{"vision of Fight"},
		GameState:         state,
	}
	data, err := snap.Encode()
	require.NoError(t, err)
	require.NoError(t, st.Put(ctx, store.SaveSlot, data))

	s := newTestSession(t, newFakeGen(), st)
	require.NoError(t, s.Load(ctx))
	v := s.View()
	assert.Equal(t, PhaseDead, v.Phase)
	assert.Empty(t, v.Options)
	assert.ErrorIs(t, s.Choose(ctx, 0), ErrDead)
	assert.ErrorIs(t, s.UseItem(ctx, "Healing Potion"), ErrDead)

	s.Restart()
	assert.Equal(t, PhaseCharacterCreate, s.Phase(), "restart leaves the dead run")
}

func TestSaveDegraded(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	require.NoError(t, mem.Put(ctx, store.InitialSceneSlot, bytes.Repeat([]byte("o"), 4000)))
	gen := newFakeGen(opening(), segment("A small room.", models.Dungeon, "Leave"))
	gen.images["vision of Left"] = []byte("room")
	s := newTestSession(t, gen, store.WithQuota(mem, 4000))
	startDwarf(t, s)
	require.NoError(t, s.Choose(ctx, 0))
	s.Wait()
	notices(s)

	result, err := s.Save(ctx)
	require.NoError(t, err)
	assert.Equal(t, SaveDegraded, result)
	assert.Contains(t, notices(s), NoticeStorageFull)

	require.NoError(t, s.Load(ctx))
	v := s.View()
	require.Len(t, v.History, 1)
	assert.Nil(t, v.History[0].Image)
	assert.Equal(t, "The woods part before you.", v.History[0].Text)
	assert.Equal(t, []byte("room"), v.Image)
	assert.Equal(t, "A small room.", v.Text)
}

func TestSaveFailsWhenEvenSlimSaveIsTooLarge(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(t, newFakeGen(opening()), store.WithQuota(store.NewMemory(), 10))
	startDwarf(t, s)
	notices(s)

	_, err := s.Save(ctx)
	assert.ErrorIs(t, err, store.ErrQuotaExceeded)
	assert.Contains(t, notices(s), NoticeSaveFailed)
	assert.False(t, s.HasSave(ctx))
}

func TestLoadMissingOrCorrupt(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	s := newTestSession(t, newFakeGen(opening()), st)
	startDwarf(t, s)
	before := s.View()
	notices(s)

	assert.ErrorIs(t, s.Load(ctx), ErrNoSave)
	assert.Contains(t, notices(s), NoticeNoSave)

	for _, data := range []string{"{not json", `{"language":"Klingon","gameState":{"turnCount":3}}`} {
		require.NoError(t, st.Put(ctx, store.SaveSlot, []byte(data)))
		err := s.Load(ctx)
		assert.ErrorIs(t, err, ErrCorruptSave)
		assert.False(t, errors.Is(err, ErrNoSave))
	}
	assert.Contains(t, notices(s), NoticeLoadFailed)

	after := s.View()
	assert.Equal(t, before.State, after.State)
	assert.Equal(t, before.Text, after.Text)
	assert.Equal(t, before.Options, after.Options)
	assert.Equal(t, PhaseIdle, after.Phase)
}

func TestUseItem(t *testing.T) {
	ctx := context.Background()
	gen := newFakeGen(opening())
	gen.stateFn = func(req engine.DerivedStateRequest) models.Patch {
		inv := append([]models.Item(nil), req.Inventory...)
		switch req.Action {
		case "Drink Health Potion":
			inv = append(inv[:1], inv[2:]...)
			return models.FullPatch(inv, req.Quest, req.Health+8, req.Mana)
		case "Drink Mana Potion":
			inv = inv[:len(inv)-1]
			return models.FullPatch(inv, req.Quest, req.Health, req.Mana+15)
		}
		return models.Patch{}
	}
	s := newTestSession(t, gen, nil)
	require.NoError(t, s.StartGame(ctx, models.Female, models.Mage))
	notices(s)

	require.NoError(t, s.UseItem(ctx, "healing potion"))
	gs := s.View().State
	assert.Equal(t, 14, gs.Health, "healing is capped at max health")
	assert.Len(t, gs.Inventory, 3)
	assert.Contains(t, notices(s), NoticeHealthGained)

	require.NoError(t, s.UseItem(ctx, "Mana Potion"))
	gs = s.View().State
	assert.Equal(t, 35, gs.Mana)
	assert.Len(t, gs.Inventory, 2)
	assert.Contains(t, notices(s), NoticeManaGained)

	calls := gen.stateCalls()
	require.Len(t, calls, 2)
	assert.Equal(t, "Drink Health Potion", calls[0].Action)
	assert.Equal(t, "Drink Mana Potion", calls[1].Action)

	assert.ErrorIs(t, s.UseItem(ctx, "Magic Staff"), ErrItemNotUsable)
	assert.ErrorIs(t, s.UseItem(ctx, "Ghost Lantern"), ErrItemNotFound)
	assert.Len(t, gen.stateCalls(), 2)
}

func TestWarmInitialScene(t *testing.T) {
	ctx := context.Background()
	gen := newFakeGen(opening())
	gen.imageFn = func(req engine.ImageRequest) []byte {
		if req.Prompt == initialScenePrompt {
			return []byte("forest")
		}
		return nil
	}
	st := store.NewMemory()
	s := newTestSession(t, gen, st)
	startDwarf(t, s)
	assert.Nil(t, s.View().Image)

	s.WarmInitialScene(ctx)
	assert.Equal(t, []byte("forest"), s.View().Image)
	cached, err := st.Get(ctx, store.InitialSceneSlot)
	require.NoError(t, err)
	assert.Equal(t, []byte("forest"), cached)

	next := newTestSession(t, newFakeGen(opening()), st)
	next.WarmInitialScene(ctx)
	require.NoError(t, next.StartGame(ctx, models.Male, models.Elf))
	assert.Equal(t, []byte("forest"), next.View().Image)
}

func TestViewIsACopy(t *testing.T) {
	s := newTestSession(t, newFakeGen(opening()), nil)
	startDwarf(t, s)

	v := s.View()
	v.Options[0] = "tampered"
	v.State.Inventory[0].Name = "tampered"

	fresh := s.View()
	assert.Equal(t, "Left", fresh.Options[0])
	assert.Equal(t, "Warhammer", fresh.State.Inventory[0].Name)
}

func TestCloseIsIdempotent(t *testing.T) {
	s := New(newFakeGen(opening()), store.NewMemory(), WithLanguage(models.English))
	startDwarf(t, s)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
}
