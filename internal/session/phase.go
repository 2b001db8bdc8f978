package session

// Phase is where the session is in its lifecycle.
type Phase int

const (
	PhaseLanguageSelect Phase = iota
	PhaseCharacterCreate
	// PhaseIdle waits for a choice. With no options at the final turn it is
	// the ending.
	PhaseIdle
	// PhaseCombat holds a chosen option until the die is rolled.
	PhaseCombat
	PhaseGenerating
	PhaseDead
)

func (p Phase) String() string {
	switch p {
	case PhaseLanguageSelect:
		return "language_select"
	case PhaseCharacterCreate:
		return "character_create"
	case PhaseIdle:
		return "idle"
	case PhaseCombat:
		return "combat"
	case PhaseGenerating:
		return "generating"
	case PhaseDead:
		return "dead"
	default:
		return "unknown"
	}
}

// playing reports whether a character exists in this phase.
func (p Phase) playing() bool {
	switch p {
	case PhaseIdle, PhaseCombat, PhaseGenerating, PhaseDead:
		return true
	}
	return false
}

// acceptsInput maps the phase to the error a player command gets, or nil.
func (p Phase) acceptsInput() error {
	switch p {
	case PhaseIdle:
		return nil
	case PhaseCombat:
		return ErrAwaitingRoll
	case PhaseGenerating:
		return ErrBusy
	case PhaseDead:
		return ErrDead
	default:
		return ErrNotPlaying
	}
}
