package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/vango-go/poppy/pkg/core/playback"
	"github.com/vango-go/poppy/pkg/gateway/live/protocol"
)

var (
	errAudioReleased   = errors.New("audio released")
	errAudioEnded      = errors.New("audio already ended")
	errPlaybackTimeout = errors.New("client did not start playback")
)

// audioSink carries commands for a clip to the client.
type audioSink interface {
	sendAudioCommand(kind, audioID string) error
	releaseAudio(audioID string)
}

// remoteAudio is a clip played by the client's audio element. Its clock follows the
// playback marks the client reports and is extrapolated between them.
type remoteAudio struct {
	id           string
	sink         audioSink
	startTimeout time.Duration
	now          func() time.Time

	mu          sync.Mutex
	duration    time.Duration
	hasDuration bool
	position    time.Duration
	positionAt  time.Time
	playing     bool
	ended       bool
	released    bool
	loaded      chan struct{}
	loadedDone  bool
	pendingPlay chan error
	onEnded     func()
}

var _ playback.Audio = (*remoteAudio)(nil)

func newRemoteAudio(id string, sink audioSink, startTimeout time.Duration, now func() time.Time) *remoteAudio {
	if now == nil {
		now = time.Now
	}
	if startTimeout <= 0 {
		startTimeout = 3 * time.Second
	}
	return &remoteAudio{
		id:           id,
		sink:         sink,
		startTimeout: startTimeout,
		now:          now,
		loaded:       make(chan struct{}),
	}
}

// Play asks the client to start the clip and waits for it to confirm or reject.
func (a *remoteAudio) Play(ctx context.Context) error {
	a.mu.Lock()
	switch {
	case a.released:
		a.mu.Unlock()
		return errAudioReleased
	case a.ended:
		a.mu.Unlock()
		return errAudioEnded
	case a.playing:
		a.mu.Unlock()
		return nil
	}
	wait := make(chan error, 1)
	a.pendingPlay = wait
	a.mu.Unlock()

	if err := a.sink.sendAudioCommand("audio_play", a.id); err != nil {
		a.clearPending(wait)
		return fmt.Errorf("send audio_play: %w", err)
	}

	timer := time.NewTimer(a.startTimeout)
	defer timer.Stop()
	select {
	case err := <-wait:
		return err
	case <-ctx.Done():
		a.clearPending(wait)
		return ctx.Err()
	case <-timer.C:
		a.clearPending(wait)
		return errPlaybackTimeout
	}
}

func (a *remoteAudio) Resume() {
	a.mu.Lock()
	if a.released || a.ended || a.playing {
		a.mu.Unlock()
		return
	}
	a.mu.Unlock()
	_ = a.sink.sendAudioCommand("audio_play", a.id)
}

func (a *remoteAudio) Pause() {
	a.mu.Lock()
	if a.released || a.ended {
		a.mu.Unlock()
		return
	}
	a.position = a.currentLocked()
	a.positionAt = a.now()
	a.playing = false
	a.mu.Unlock()
	_ = a.sink.sendAudioCommand("audio_pause", a.id)
}

func (a *remoteAudio) CurrentTime() time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.currentLocked()
}

func (a *remoteAudio) currentLocked() time.Duration {
	pos := a.position
	if a.playing && !a.positionAt.IsZero() {
		if elapsed := a.now().Sub(a.positionAt); elapsed > 0 {
			pos += elapsed
		}
	}
	if a.hasDuration && pos > a.duration {
		pos = a.duration
	}
	return pos
}

func (a *remoteAudio) Duration() (time.Duration, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.duration, a.hasDuration
}

func (a *remoteAudio) Ended() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ended
}

func (a *remoteAudio) MetadataLoaded() <-chan struct{} {
	return a.loaded
}

func (a *remoteAudio) OnEnded(f func()) {
	a.mu.Lock()
	a.onEnded = f
	ended := a.ended
	a.mu.Unlock()
	if ended && f != nil {
		f()
	}
}

// Release tells the client to drop the clip. Later marks for it are ignored.
func (a *remoteAudio) Release() {
	a.mu.Lock()
	if a.released {
		a.mu.Unlock()
		return
	}
	a.released = true
	a.playing = false
	pending := a.pendingPlay
	a.pendingPlay = nil
	a.mu.Unlock()

	if pending != nil {
		pending <- errAudioReleased
	}
	a.sink.releaseAudio(a.id)
	_ = a.sink.sendAudioCommand("audio_stop", a.id)
}

// mark applies a playback event reported by the client.
func (a *remoteAudio) mark(m protocol.ClientPlayback) {
	a.mu.Lock()
	if a.released {
		a.mu.Unlock()
		return
	}
	if m.DurationMS > 0 && !a.hasDuration {
		a.duration = time.Duration(m.DurationMS) * time.Millisecond
		a.hasDuration = true
	}
	pos := time.Duration(m.PositionMS) * time.Millisecond

	var (
		resolve chan error
		result  error
		ended   func()
	)
	switch m.Event {
	case protocol.PlaybackLoaded:
	case protocol.PlaybackPlaying:
		a.playing = true
		a.position = pos
		a.positionAt = a.now()
		resolve, result = a.pendingPlay, nil
	case protocol.PlaybackRejected:
		a.playing = false
		reason := m.Error
		if reason == "" {
			reason = "rejected by client"
		}
		resolve, result = a.pendingPlay, fmt.Errorf("playback rejected: %s", reason)
	case protocol.PlaybackPaused:
		a.playing = false
		a.position = pos
		a.positionAt = a.now()
	case protocol.PlaybackEnded:
		if !a.ended {
			a.ended = true
			ended = a.onEnded
		}
		a.playing = false
		if a.hasDuration {
			a.position = a.duration
		} else {
			a.position = pos
		}
		resolve, result = a.pendingPlay, errAudioEnded
	}
	if resolve != nil {
		a.pendingPlay = nil
	}
	if (a.hasDuration || m.Event == protocol.PlaybackLoaded) && !a.loadedDone {
		a.loadedDone = true
		close(a.loaded)
	}
	a.mu.Unlock()

	if resolve != nil {
		resolve <- result
	}
	if ended != nil {
		ended()
	}
}

func (a *remoteAudio) clearPending(wait chan error) {
	a.mu.Lock()
	if a.pendingPlay == wait {
		a.pendingPlay = nil
	}
	a.mu.Unlock()
}

// remoteVisualizer mirrors the orb lifecycle to the client.
type remoteVisualizer struct {
	s *LiveSession
}

func (v remoteVisualizer) Start(a playback.Audio) error {
	id := ""
	if ra, ok := a.(*remoteAudio); ok {
		id = ra.id
	}
	return v.s.sendJSON(protocol.ServerVisualizer{Type: "visualizer", Active: true, AudioID: id})
}

func (v remoteVisualizer) Stop() {
	_ = v.s.sendJSON(protocol.ServerVisualizer{Type: "visualizer", Active: false})
}
