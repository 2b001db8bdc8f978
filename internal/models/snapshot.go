package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Snapshot is the persisted form of a session.
type Snapshot struct {
	Language           Language           `json:"language"`
	History            []StoryHistoryItem `json:"history"`
	CurrentText        string             `json:"currentText"`
	CurrentOptions     []string           `json:"currentOptions"`
	CurrentImage       []byte             `json:"currentImage,omitempty"`
	CharacterPortrait  []byte             `json:"characterPortrait,omitempty"`
	WeaponImage        []byte             `json:"weaponImage,omitempty"`
	NextOptionPrompts  []string           `json:"nextOptionPrompts"`
	GameState          GameState          `json:"gameState"`
	CurrentEnvironment Environment        `json:"currentEnvironment"`
	Date               time.Time          `json:"date"`
}

// Encode serializes the snapshot.
func (s *Snapshot) Encode() ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return data, nil
}

// DecodeSnapshot parses a snapshot and checks that it describes a playable run.
func DecodeSnapshot(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if !s.Language.Valid() {
		return nil, fmt.Errorf("decode snapshot: unknown language %q", s.Language)
	}
	if s.GameState.TurnCount < 1 {
		return nil, fmt.Errorf("decode snapshot: invalid turn count %d", s.GameState.TurnCount)
	}
	if len(s.CurrentOptions) != len(s.NextOptionPrompts) {
		return nil, fmt.Errorf("decode snapshot: %d options but %d option prompts", len(s.CurrentOptions), len(s.NextOptionPrompts))
	}
	if s.CurrentEnvironment == "" {
		s.CurrentEnvironment = Forest
	}
	s.GameState.Clamp()
	return &s, nil
}

// WithoutHistoryImages returns a copy with every archived image dropped.
// Images dominate the size of a save.
func (s *Snapshot) WithoutHistoryImages() *Snapshot {
	slim := *s
	slim.History = make([]StoryHistoryItem, len(s.History))
	for i, h := range s.History {
		h.Image = nil
		slim.History[i] = h
	}
	return &slim
}
