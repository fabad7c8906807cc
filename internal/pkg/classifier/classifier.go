// Package classifier defines the upstream classification providers used by
// the moderation pipeline: text safety, image vision and audio transcription.
package classifier

import (
	"context"
	"errors"
)

var (
	// ErrTransport indicates the provider could not be reached.
	ErrTransport = errors.New("classifier transport failed")
	// ErrResponse indicates the provider answered with something unusable.
	ErrResponse = errors.New("classifier response invalid")
)

// TextResult is the outcome of classifying one piece of text.
// Scores maps every category the provider knows to a value in [0,1];
// Flagged lists the categories that tripped.
type TextResult struct {
	Flagged []string
	Scores  map[string]float64
}

// Text classifies raw text for safety violations.
type Text interface {
	ClassifyText(ctx context.Context, text string) (*TextResult, error)
}

// ImageInput is one image handed to a vision provider: a public URL or
// inline bytes, never both.
type ImageInput struct {
	URL  string
	Data []byte
	Mime string
}

// Vision evaluates an image against a moderation instruction and returns
// the provider's raw reply. Callers parse the reply into a verdict so every
// provider can share the same parsing and degradation path.
type Vision interface {
	ClassifyImage(ctx context.Context, img ImageInput, instruction string) (string, error)
}

// Transcriber converts an audio file on disk into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (string, error)
}
