// Package capture turns a continuous speech recognizer into the start/stop/reset API the
// turn orchestrator drives. The transcript accumulates across results until Reset.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// ErrUnsupported is returned by Start when no recognizer is available.
var ErrUnsupported = errors.New("speech recognition is not supported")

// DefaultLocale is the recognition locale used when none is configured.
const DefaultLocale = "en-US"

// Handler receives recognizer callbacks. Results are final (non-interim) chunks.
type Handler struct {
	OnResult func(text string)
	OnError  func(err error)
	OnEnd    func()
}

// Recognizer is a continuous speech recognition backend.
type Recognizer interface {
	Start(ctx context.Context, locale string, h Handler) error
	// Stop ends recognition. Implementations deliver any pending final results before
	// returning when they can.
	Stop() error
}

// State is a snapshot of the capture.
type State struct {
	Listening  bool
	Transcript string
}

type Config struct {
	Locale string
}

type Dependencies struct {
	Recognizer Recognizer
	Logger     *slog.Logger
}

// Capture owns the listening flag and the pending transcript.
type Capture struct {
	rec    Recognizer
	locale string
	logger *slog.Logger

	mu         sync.Mutex
	listening  bool
	transcript string
	gen        uint64
	onChange   func(State)
}

// New builds a Capture. A nil Recognizer yields a capture that reports unsupported.
func New(cfg Config, deps Dependencies) *Capture {
	locale := strings.TrimSpace(cfg.Locale)
	if locale == "" {
		locale = DefaultLocale
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Capture{
		rec:    deps.Recognizer,
		locale: locale,
		logger: logger,
	}
}

// OnChange registers a listener invoked after every state change.
func (c *Capture) OnChange(f func(State)) {
	c.mu.Lock()
	c.onChange = f
	c.mu.Unlock()
}

// Supported reports whether a recognizer is available.
func (c *Capture) Supported() bool {
	return c != nil && c.rec != nil
}

func (c *Capture) IsListening() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.listening
}

func (c *Capture) PendingTranscript() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transcript
}

func (c *Capture) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return State{Listening: c.listening, Transcript: c.transcript}
}

// Start begins continuous recognition. Without a recognizer it returns ErrUnsupported and
// leaves the capture idle.
func (c *Capture) Start(ctx context.Context) error {
	if !c.Supported() {
		return ErrUnsupported
	}

	c.mu.Lock()
	if c.listening {
		c.mu.Unlock()
		return nil
	}
	c.gen++
	gen := c.gen
	// Set before the recognizer starts so an immediate end event is not lost.
	c.listening = true
	c.mu.Unlock()

	h := Handler{
		OnResult: func(text string) { c.handleResult(gen, text) },
		OnError:  func(err error) { c.handleError(gen, err) },
		OnEnd:    func() { c.handleEnd(gen) },
	}
	if err := c.rec.Start(ctx, c.locale, h); err != nil {
		c.mu.Lock()
		if c.gen == gen {
			c.listening = false
		}
		c.mu.Unlock()
		c.logger.Error("failed to start speech recognition", "error", err)
		return fmt.Errorf("start recognition: %w", err)
	}
	c.notify()
	return nil
}

// Stop ends recognition. The transcript is kept.
func (c *Capture) Stop() {
	if !c.Supported() {
		return
	}
	if err := c.rec.Stop(); err != nil {
		c.logger.Error("failed to stop speech recognition", "error", err)
	}
	c.mu.Lock()
	changed := c.listening
	c.listening = false
	c.mu.Unlock()
	if changed {
		c.notify()
	}
}

// Reset clears the pending transcript.
func (c *Capture) Reset() {
	c.mu.Lock()
	changed := c.transcript != ""
	c.transcript = ""
	c.mu.Unlock()
	if changed {
		c.notify()
	}
}

func (c *Capture) handleResult(gen uint64, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	if c.transcript == "" {
		c.transcript = text
	} else {
		c.transcript = c.transcript + " " + text
	}
	c.mu.Unlock()
	c.notify()
}

func (c *Capture) handleError(gen uint64, err error) {
	c.logger.Error("speech recognition error", "error", err)
	c.stopListening(gen)
}

func (c *Capture) handleEnd(gen uint64) {
	c.stopListening(gen)
}

func (c *Capture) stopListening(gen uint64) {
	c.mu.Lock()
	if gen != c.gen || !c.listening {
		c.mu.Unlock()
		return
	}
	c.listening = false
	c.mu.Unlock()
	c.notify()
}

func (c *Capture) notify() {
	c.mu.Lock()
	f := c.onChange
	st := State{Listening: c.listening, Transcript: c.transcript}
	c.mu.Unlock()
	if f != nil {
		f(st)
	}
}
