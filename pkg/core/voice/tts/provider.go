// Package tts synthesizes reply audio.
package tts

import (
	"context"
)

// Provider is the interface for text-to-speech services.
type Provider interface {
	// Name returns the provider identifier.
	Name() string

	// Synthesize converts text to a complete audio clip.
	Synthesize(ctx context.Context, text string, opts SynthesizeOptions) (*Synthesis, error)
}

// SynthesizeOptions configures synthesis. Zero values fall back to provider defaults.
type SynthesizeOptions struct {
	Voice           string  // Voice identifier
	Model           string  // Provider model id
	Stability       float64 // Voice stability (0-1)
	SimilarityBoost float64 // Voice similarity boost (0-1)
	Format          string  // Output format hint, e.g. "mp3"
}

// Synthesis is the result of synthesis.
type Synthesis struct {
	Audio       []byte // Audio data
	ContentType string // MIME type of Audio
	Format      string // Audio format
}
