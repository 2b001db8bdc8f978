// Command simulate plays a game end to end with a second model acting as the
// player. It is a smoke test for prompts and pacing against the live backend.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand/v2"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/ilyakaznacheev/cleanenv"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/tatianab/mythic-paths/internal/app"
	"github.com/tatianab/mythic-paths/internal/config"
	"github.com/tatianab/mythic-paths/internal/logging"
	"github.com/tatianab/mythic-paths/internal/models"
	"github.com/tatianab/mythic-paths/internal/session"
	"github.com/tatianab/mythic-paths/internal/store"
)

// settings are read from the environment alongside the game config.
type settings struct {
	Turns       int    `env:"SIMULATE_TURNS" env-default:"10"`
	PlayerModel string `env:"SIMULATE_PLAYER_MODEL" env-default:"gemini-2.5-flash"`
	Gender      string `env:"SIMULATE_GENDER" env-default:"Female"`
	Class       string `env:"SIMULATE_CLASS" env-default:"Elf"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	var set settings
	if err := cleanenv.ReadEnv(&set); err != nil {
		log.Fatalf("Failed to read simulation settings: %v", err)
	}
	gender, err := models.ParseGender(set.Gender)
	if err != nil {
		log.Fatal(err)
	}
	class, err := models.ParseClass(set.Class)
	if err != nil {
		log.Fatal(err)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	// Simulated runs never touch the player's saves.
	cfg.Language = string(cfg.DefaultLanguage)
	a, err := app.New(ctx, cfg, logger, store.NewMemory())
	if err != nil {
		log.Fatalf("Failed to create game: %v", err)
	}
	defer a.Close()

	playerClient, err := genai.NewClient(ctx, option.WithAPIKey(cfg.GeminiAPIKey))
	if err != nil {
		log.Fatalf("Failed to create player client: %v", err)
	}
	defer playerClient.Close()
	player := playerClient.GenerativeModel(set.PlayerModel)

	s := a.Session
	go drain(s.Events(), logger)

	fmt.Printf("--- Creating a %s %s ---\n", gender, class)
	if err := s.StartGame(ctx, gender, class); err != nil {
		log.Fatalf("Failed to start game: %v", err)
	}
	printView(s.View())

	for turn := 1; turn <= set.Turns; turn++ {
		v := s.View()
		if v.Phase == session.PhaseDead || v.Ending() {
			break
		}
		if len(v.Options) == 0 {
			fmt.Println("No options offered; stopping.")
			break
		}

		fmt.Printf("--- Turn %d ---\n", turn)
		choice := choose(ctx, player, v)
		fmt.Printf("Player chose %d: %s\n", choice+1, v.Options[choice])

		err := s.Choose(ctx, choice)
		if errors.Is(err, session.ErrAwaitingRoll) || (err == nil && s.Phase() == session.PhaseCombat) {
			var roll int
			roll, err = s.Roll(ctx)
			fmt.Printf("Rolled %d\n", roll)
		}
		if err != nil {
			fmt.Printf("Error processing turn: %v\n", err)
			if ctx.Err() != nil {
				break
			}
			continue
		}

		// Let the state reconciliation for this turn land before printing.
		s.Wait()
		printView(s.View())
	}

	v := s.View()
	switch {
	case v.Phase == session.PhaseDead:
		fmt.Println("Game Ended: Player died.")
	case v.Ending():
		fmt.Println("Game Ended: the story reached its conclusion.")
	default:
		fmt.Println("Simulation stopped.")
	}
}

func drain(events <-chan session.Event, logger *zap.Logger) {
	for e := range events {
		logger.Info("Session event", zap.String("message", e.Message), zap.Int("turn", e.Turn))
	}
}

func printView(v session.View) {
	st := v.State
	fmt.Printf("[%s] %s\n", v.Environment, v.Text)
	for i, o := range v.Options {
		fmt.Printf("  %d. %s\n", i+1, o)
	}
	fmt.Printf("Stats: Health=%d/%d, Mana=%d/%d, Quest=%q, Inventory=%v\n\n",
		st.Health, st.MaxHealth, st.Mana, st.MaxMana, st.CurrentQuest, models.ItemNames(st.Inventory))
}

// choose asks the player model for an option number and falls back to a
// random pick when the answer is unusable.
func choose(ctx context.Context, model *genai.GenerativeModel, v session.View) int {
	var b strings.Builder
	for i, o := range v.Options {
		fmt.Fprintf(&b, "%d. %s\n", i+1, o)
	}
	prompt := fmt.Sprintf(`You are playing a fantasy text adventure as a %s %s.
Health: %d/%d. Mana: %d/%d. Quest: %s

Scene:
%s

Options:
%s
Which option do you pick? Return ONLY the option number.`,
		v.State.Player.Gender, v.State.Player.Class,
		v.State.Health, v.State.MaxHealth, v.State.Mana, v.State.MaxMana,
		v.State.CurrentQuest, v.Text, b.String())

	fallback := rand.IntN(len(v.Options))
	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return fallback
	}
	return parseChoice(fmt.Sprintf("%v", resp.Candidates[0].Content.Parts[0]), len(v.Options), fallback)
}

func parseChoice(answer string, n, fallback int) int {
	answer = strings.Trim(strings.TrimSpace(answer), ".")
	i, err := strconv.Atoi(answer)
	if err != nil || i < 1 || i > n {
		return fallback
	}
	return i - 1
}
