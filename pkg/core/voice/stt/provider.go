// Package stt provides streaming speech-to-text used as the capture recognizer.
package stt

import (
	"context"
)

// Provider opens streaming transcription sessions.
type Provider interface {
	// Name returns the provider identifier.
	Name() string

	// NewStreamingSTT opens a realtime session. Audio is pushed with SendAudio and
	// transcripts arrive on Transcripts.
	NewStreamingSTT(ctx context.Context, opts TranscribeOptions) (*StreamingSTT, error)
}

// TranscribeOptions configures transcription.
type TranscribeOptions struct {
	Model      string // Provider-specific model (default: "ink-whisper")
	Language   string // ISO language code (default: "en")
	Format     string // Audio encoding (default: "pcm_s16le")
	SampleRate int    // Audio sample rate in Hz (default: 16000)
}

// TranscriptDelta is a streaming transcript update.
type TranscriptDelta struct {
	Text      string  // Transcript text for the segment
	IsFinal   bool    // True if this is a final segment
	Timestamp float64 // Audio duration covered, in seconds
}
