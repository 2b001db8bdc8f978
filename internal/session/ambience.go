package session

import (
	"go.uber.org/zap"

	"github.com/tatianab/mythic-paths/internal/models"
)

// Ambience plays the sound of the current scene.
type Ambience interface {
	PlayEnvironment(env models.Environment)
	PlayDamage()
	Stop()
}

type nopAmbience struct{}

func (nopAmbience) PlayEnvironment(models.Environment) {}
func (nopAmbience) PlayDamage()                        {}
func (nopAmbience) Stop()                              {}

// LogAmbience records ambience cues in the log. Terminals have no soundtrack.
type LogAmbience struct {
	Logger *zap.Logger
}

func (a LogAmbience) PlayEnvironment(env models.Environment) {
	a.Logger.Debug("Ambience", zap.String("environment", string(env)))
}

func (a LogAmbience) PlayDamage() {
	a.Logger.Debug("Ambience", zap.String("cue", "damage"))
}

func (a LogAmbience) Stop() {
	a.Logger.Debug("Ambience", zap.String("cue", "stop"))
}
