package stt

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/vango-go/poppy/pkg/core/capture"
)

const defaultFinalizeTimeout = 1500 * time.Millisecond

// Recognizer adapts a streaming STT provider to capture.Recognizer. Microphone audio is
// pushed with Feed while a recognition is running.
type Recognizer struct {
	provider        Provider
	opts            TranscribeOptions
	finalizeTimeout time.Duration
	logger          *slog.Logger

	mu       sync.Mutex
	stream   *StreamingSTT
	pumpDone chan struct{}
}

// NewRecognizer wraps p. Empty opts.Language is derived from the capture locale.
func NewRecognizer(p Provider, opts TranscribeOptions, logger *slog.Logger) *Recognizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recognizer{
		provider:        p,
		opts:            opts,
		finalizeTimeout: defaultFinalizeTimeout,
		logger:          logger,
	}
}

var _ capture.Recognizer = (*Recognizer)(nil)

func (r *Recognizer) Start(ctx context.Context, locale string, h capture.Handler) error {
	if r == nil || r.provider == nil {
		return capture.ErrUnsupported
	}
	r.mu.Lock()
	if r.stream != nil {
		r.mu.Unlock()
		return errors.New("recognition already running")
	}
	r.mu.Unlock()

	opts := r.opts
	if opts.Language == "" {
		opts.Language = languageFromLocale(locale)
	}
	stream, err := r.provider.NewStreamingSTT(ctx, opts)
	if err != nil {
		return err
	}

	done := make(chan struct{})
	r.mu.Lock()
	r.stream = stream
	r.pumpDone = done
	r.mu.Unlock()

	go r.pump(stream, h, done)
	return nil
}

func (r *Recognizer) pump(stream *StreamingSTT, h capture.Handler, done chan struct{}) {
	defer close(done)
	for delta := range stream.Transcripts() {
		if !delta.IsFinal || strings.TrimSpace(delta.Text) == "" {
			continue
		}
		if h.OnResult != nil {
			h.OnResult(delta.Text)
		}
	}

	r.mu.Lock()
	stopped := r.stream != stream
	if !stopped {
		r.stream = nil
		r.pumpDone = nil
	}
	r.mu.Unlock()
	_ = stream.Close()
	if stopped {
		return
	}

	if err := stream.Err(); err != nil {
		if h.OnError != nil {
			h.OnError(err)
		}
		return
	}
	if h.OnEnd != nil {
		h.OnEnd()
	}
}

// Feed forwards microphone audio. Audio arriving while idle is dropped.
func (r *Recognizer) Feed(pcm []byte) error {
	r.mu.Lock()
	s := r.stream
	r.mu.Unlock()
	if s == nil || len(pcm) == 0 {
		return nil
	}
	return s.SendAudio(pcm)
}

// Stop flushes buffered audio, waits briefly for the final transcripts and closes the session.
func (r *Recognizer) Stop() error {
	r.mu.Lock()
	s := r.stream
	done := r.pumpDone
	r.stream = nil
	r.pumpDone = nil
	r.mu.Unlock()
	if s == nil {
		return nil
	}

	timer := time.NewTimer(r.finalizeTimeout)
	defer timer.Stop()

	if err := s.Finalize(); err == nil {
		select {
		case <-s.Flushed():
		case <-s.Done():
		case <-timer.C:
			r.logger.Warn("stt finalize timed out")
		}
	}
	closeErr := s.Close()

	if done != nil {
		select {
		case <-done:
		case <-timer.C:
		}
	}
	return closeErr
}

func languageFromLocale(locale string) string {
	locale = strings.TrimSpace(locale)
	if locale == "" {
		return "en"
	}
	if i := strings.IndexAny(locale, "-_"); i > 0 {
		locale = locale[:i]
	}
	return strings.ToLower(locale)
}
