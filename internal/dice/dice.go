// Package dice resolves the d20 roll that gates choices made in combat.
//
// A roll is a uniform draw over 1..20. A 1 is a critical failure and a 20 a
// critical success; both are passed to the story generator as resolution
// context and surfaced to the player.
package dice

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math/rand"
	"sync"

	"github.com/tatianab/mythic-paths/internal/models"
)

const (
	Sides           = 20
	CriticalFailure = 1
	CriticalSuccess = Sides
)

// Roller produces one die result per call.
type Roller interface {
	Roll() int
}

// D20 is a seeded twenty-sided die. It is safe for concurrent use.
type D20 struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewD20 returns a die seeded with seed. Given the same seed the sequence of
// rolls is the same.
func NewD20(seed int64) *D20 {
	return &D20{rng: rand.New(rand.NewSource(seed))}
}

// NewRandomD20 returns a die seeded from crypto/rand.
func NewRandomD20() (*D20, error) {
	seed, err := NewSeed()
	if err != nil {
		return nil, err
	}
	return NewD20(seed), nil
}

// Roll returns a value in [1, 20].
func (d *D20) Roll() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rng.Intn(Sides) + 1
}

// NewSeed generates a random seed using crypto/rand.
func NewSeed() (int64, error) {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("read random seed: %w", err)
	}
	return int64(binary.LittleEndian.Uint64(b[:])), nil
}

// RequiresRoll reports whether choosing in env must be resolved by a roll.
func RequiresRoll(env models.Environment) bool {
	return env == models.Combat
}

// IsCriticalFailure reports a natural 1.
func IsCriticalFailure(roll int) bool { return roll == CriticalFailure }

// IsCriticalSuccess reports a natural 20.
func IsCriticalSuccess(roll int) bool { return roll == CriticalSuccess }

// Valid reports whether roll could have come from a d20.
func Valid(roll int) bool { return roll >= 1 && roll <= Sides }

// Outcome is the narrative band a roll falls into.
type Outcome int

const (
	OutcomeBad Outcome = iota
	OutcomeMarginal
	OutcomeSuccess
	OutcomeGreat
	OutcomePerfect
)

func (o Outcome) String() string {
	switch o {
	case OutcomeBad:
		return "bad"
	case OutcomeMarginal:
		return "marginal"
	case OutcomeSuccess:
		return "success"
	case OutcomeGreat:
		return "great"
	case OutcomePerfect:
		return "perfect"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// OutcomeFor maps a roll to its band: 1-5 bad, 6-10 marginal, 11-15 success,
// 16-19 great, 20 perfect.
func OutcomeFor(roll int) Outcome {
	switch {
	case roll <= 5:
		return OutcomeBad
	case roll <= 10:
		return OutcomeMarginal
	case roll <= 15:
		return OutcomeSuccess
	case roll <= 19:
		return OutcomeGreat
	default:
		return OutcomePerfect
	}
}
