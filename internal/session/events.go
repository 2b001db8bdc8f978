package session

// EventKind tells a subscriber what happened.
type EventKind int

const (
	// EventNotice carries a transient message for the player.
	EventNotice EventKind = iota
	// EventStateChanged follows every committed change a view would show.
	EventStateChanged
	// EventDied is sent once when the character dies.
	EventDied
)

// Event is sent on the channel returned by Events.
type Event struct {
	Kind    EventKind
	Message string
	Turn    int
}

// Notices shown to the player.
const (
	NoticeTurnFailed   = "The mists of time are thick... (Retrying)"
	NoticeStartFailed  = "Error starting story. Retrying..."
	NoticeSaved        = "Game saved"
	NoticeStorageFull  = "Storage full: saved without history images"
	NoticeSaveFailed   = "Error saving game"
	NoticeLoaded       = "Game loaded"
	NoticeNoSave       = "No save found"
	NoticeLoadFailed   = "Error loading game"
	NoticeHealthGained = "+ Health"
	NoticeManaGained   = "+ Mana"
)

// emit never blocks; a slow subscriber loses events.
func (s *Session) emit(e Event) {
	select {
	case s.events <- e:
	default:
	}
}

func (s *Session) notify(msg string) {
	s.emit(Event{Kind: EventNotice, Message: msg})
}
