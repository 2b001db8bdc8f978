package engine

import (
	"context"
	"errors"

	"github.com/google/generative-ai-go/genai"
)

var (
	// ErrRateLimited marks a quota or rate-limit rejection. It is retried.
	ErrRateLimited = errors.New("generation rate limited")
	// ErrUnavailable marks a temporarily unavailable backend. It is retried.
	ErrUnavailable = errors.New("generation service unavailable")
	// ErrEmptyResponse is returned when the backend answered with no content.
	ErrEmptyResponse = errors.New("no content returned from backend")
	// ErrMalformedSegment is returned when a story segment is not structurally valid.
	ErrMalformedSegment = errors.New("malformed story segment")
)

// AspectRatio is one of the three ratios the image model accepts.
type AspectRatio string

const (
	Landscape AspectRatio = "16:9"
	Portrait  AspectRatio = "9:16"
	Square    AspectRatio = "1:1"
)

// TextRequest is a single prompt sent to a text model. A non-nil Schema asks
// for a JSON response of that shape.
type TextRequest struct {
	Model  string
	Prompt string
	Schema *genai.Schema
}

// Backend is the external generative service.
type Backend interface {
	GenerateText(ctx context.Context, req TextRequest) (string, error)
	// GenerateImage returns nil data and a nil error when the model answered
	// without an image.
	GenerateImage(ctx context.Context, model, prompt string, ratio AspectRatio) ([]byte, error)
}

// Retryable reports whether err is worth another attempt.
func Retryable(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrUnavailable)
}

var segmentSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"text":                {Type: genai.TypeString},
		"options":             {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
		"visualDescription":   {Type: genai.TypeString},
		"optionVisualPrompts": {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
		"environment": {
			Type: genai.TypeString,
			Enum: []string{"FOREST", "CAVE", "TOWN", "COMBAT", "DUNGEON", "OCEAN"},
		},
	},
	Required: []string{"text", "options", "visualDescription", "optionVisualPrompts", "environment"},
}

var derivedStateSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"inventory": {
			Type: genai.TypeArray,
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"name":     {Type: genai.TypeString},
					"category": {Type: genai.TypeString, Enum: []string{"WEAPON", "HEALING", "MANA", "MISC"}},
				},
				Required: []string{"name", "category"},
			},
		},
		"currentQuest": {Type: genai.TypeString},
		"health":       {Type: genai.TypeInteger},
		"mana":         {Type: genai.TypeInteger},
	},
	Required: []string{"inventory", "currentQuest", "health", "mana"},
}
