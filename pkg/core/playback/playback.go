// Package playback fetches synthesized speech for a reply and owns the single active audio
// session. Every failure degrades to "no audio" so the typing reveal can always proceed.
package playback

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/vango-go/poppy/pkg/core/voice/tts"
)

// DefaultMetadataWait bounds how long Speak waits for the clip duration.
const DefaultMetadataWait = 300 * time.Millisecond

// Audio is one playable clip, typically a remote audio element.
type Audio interface {
	// Play starts playback and returns once it is running. An error means playback was
	// rejected (autoplay policy, decode failure, client gone).
	Play(ctx context.Context) error
	// Resume continues a paused clip without waiting for confirmation.
	Resume()
	Pause()
	CurrentTime() time.Duration
	// Duration reports the clip duration once metadata is known.
	Duration() (time.Duration, bool)
	Ended() bool
	// MetadataLoaded is closed once the duration is known.
	MetadataLoaded() <-chan struct{}
	OnEnded(f func())
	// Release frees the clip. It is safe to call more than once.
	Release()
}

// AudioFactory turns synthesized bytes into a playable clip.
type AudioFactory func(ctx context.Context, clip *tts.Synthesis) (Audio, error)

// Visualizer is the audio-reactive orb. Only its lifecycle matters to playback.
type Visualizer interface {
	Start(a Audio) error
	Stop()
}

// StartInfo is passed to the playback-start callback. Both fields are zero when no audio
// will play; Audio is nil when playback was rejected.
type StartInfo struct {
	Duration time.Duration
	Audio    Audio
}

type Config struct {
	MetadataWait time.Duration
	TTSOptions   tts.SynthesizeOptions
}

type Dependencies struct {
	TTS        tts.Provider
	NewAudio   AudioFactory
	Visualizer Visualizer
	Logger     *slog.Logger
}

// Player implements speak/mute/stop over at most one active Audio.
type Player struct {
	cfg      Config
	tts      tts.Provider
	newAudio AudioFactory
	vis      Visualizer
	logger   *slog.Logger

	mu         sync.Mutex
	muted      bool
	speaking   bool
	current    Audio
	onSpeaking func(bool)
}

var errNoAudioFactory = errors.New("no audio output configured")

func New(cfg Config, deps Dependencies) *Player {
	if cfg.MetadataWait <= 0 {
		cfg.MetadataWait = DefaultMetadataWait
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	vis := deps.Visualizer
	if vis == nil {
		vis = nopVisualizer{}
	}
	return &Player{
		cfg:      cfg,
		tts:      deps.TTS,
		newAudio: deps.NewAudio,
		vis:      vis,
		logger:   logger,
	}
}

// OnSpeakingChange registers a listener for speaking transitions.
func (p *Player) OnSpeakingChange(f func(bool)) {
	p.mu.Lock()
	p.onSpeaking = f
	p.mu.Unlock()
}

func (p *Player) IsSpeaking() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.speaking
}

func (p *Player) Muted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.muted
}

// HasSession reports whether an audio session is active.
func (p *Player) HasSession() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current != nil
}

// Speak synthesizes text and plays it, replacing any active session. onStart is called
// exactly once: with the clip when playback starts, with only the duration when playback is
// rejected, and with an empty StartInfo when no audio is available. The returned duration is
// valid only when ok is true.
func (p *Player) Speak(ctx context.Context, text string, onStart func(StartInfo)) (d time.Duration, ok bool) {
	notify := func(info StartInfo) {
		defer func() {
			if v := recover(); v != nil {
				p.logger.Error("panic in playback start callback", "panic", v)
			}
		}()
		if onStart != nil {
			onStart(info)
		}
	}
	noAudio := func() (time.Duration, bool) {
		p.settleIdle()
		notify(StartInfo{})
		return 0, false
	}

	if p.Muted() {
		p.vis.Stop()
		p.setSpeaking(false)
		notify(StartInfo{})
		return 0, false
	}
	if p.tts == nil || p.newAudio == nil {
		p.logger.Warn("speech playback unavailable", "error", errNoAudioFactory)
		return noAudio()
	}

	clip, err := p.tts.Synthesize(ctx, text, p.cfg.TTSOptions)
	if err != nil {
		p.logger.Error("tts request failed", "provider", p.tts.Name(), "error", err)
		return noAudio()
	}

	audio, err := p.newAudio(ctx, clip)
	if err != nil {
		p.logger.Error("failed to build audio from tts bytes", "error", err)
		return noAudio()
	}
	if !p.install(ctx, audio) {
		audio.Release()
		return noAudio()
	}

	d, ok = p.awaitMetadata(ctx, audio)
	audio.OnEnded(func() { p.handleEnded(audio) })

	if ctx.Err() != nil {
		p.release(audio)
		return noAudio()
	}

	if err := audio.Play(ctx); err != nil {
		p.logger.Error("audio playback error", "error", err)
		p.release(audio)
		p.settleIdle()
		if ok {
			notify(StartInfo{Duration: d})
		} else {
			notify(StartInfo{})
		}
		return d, ok
	}

	if !p.markPlaying(audio) {
		// Stopped or superseded while Play was starting.
		audio.Pause()
		audio.Release()
		return noAudio()
	}
	if err := p.vis.Start(audio); err != nil {
		p.logger.Warn("visualizer failed to start", "error", err)
	}
	if ok {
		notify(StartInfo{Duration: d, Audio: audio})
	} else {
		notify(StartInfo{Audio: audio})
	}
	return d, ok
}

// SetMuted pauses the active session when muting and resumes it when unmuting.
func (p *Player) SetMuted(muted bool) {
	p.mu.Lock()
	p.muted = muted
	a := p.current
	p.mu.Unlock()
	if a == nil {
		return
	}
	if muted {
		a.Pause()
	} else {
		a.Resume()
	}
}

// Stop pauses and releases the active session.
func (p *Player) Stop() {
	p.mu.Lock()
	a := p.current
	p.current = nil
	p.mu.Unlock()
	if a != nil {
		a.Pause()
		a.Release()
	}
	p.vis.Stop()
	p.setSpeaking(false)
}

// install makes audio the active session, pausing and releasing the previous one.
func (p *Player) install(ctx context.Context, audio Audio) bool {
	p.mu.Lock()
	if ctx.Err() != nil {
		p.mu.Unlock()
		return false
	}
	prev := p.current
	p.current = audio
	p.mu.Unlock()

	if prev != nil {
		prev.Pause()
		prev.Release()
		p.vis.Stop()
	}
	return true
}

func (p *Player) awaitMetadata(ctx context.Context, audio Audio) (time.Duration, bool) {
	if d, ok := knownDuration(audio); ok {
		return d, true
	}
	timer := time.NewTimer(p.cfg.MetadataWait)
	defer timer.Stop()
	select {
	case <-audio.MetadataLoaded():
	case <-timer.C:
	case <-ctx.Done():
	}
	return knownDuration(audio)
}

func knownDuration(audio Audio) (time.Duration, bool) {
	d, ok := audio.Duration()
	if !ok || d <= 0 {
		return 0, false
	}
	return d, true
}

func (p *Player) handleEnded(audio Audio) {
	p.mu.Lock()
	wasCurrent := p.current == audio
	if wasCurrent {
		p.current = nil
	}
	p.mu.Unlock()

	audio.Release()
	if wasCurrent {
		p.vis.Stop()
		p.setSpeaking(false)
	}
}

func (p *Player) release(audio Audio) {
	p.mu.Lock()
	if p.current == audio {
		p.current = nil
	}
	p.mu.Unlock()
	audio.Pause()
	audio.Release()
}

// markPlaying sets speaking=true if audio is still the active session.
func (p *Player) markPlaying(audio Audio) bool {
	p.mu.Lock()
	if p.current != audio {
		p.mu.Unlock()
		return false
	}
	changed := !p.speaking
	p.speaking = true
	f := p.onSpeaking
	p.mu.Unlock()
	if changed && f != nil {
		f(true)
	}
	return true
}

// settleIdle clears speaking and stops the visualizer unless a newer Speak has installed
// its own session.
func (p *Player) settleIdle() {
	p.mu.Lock()
	if p.current != nil {
		p.mu.Unlock()
		return
	}
	changed := p.speaking
	p.speaking = false
	f := p.onSpeaking
	p.mu.Unlock()
	p.vis.Stop()
	if changed && f != nil {
		f(false)
	}
}

func (p *Player) setSpeaking(v bool) {
	p.mu.Lock()
	changed := p.speaking != v
	p.speaking = v
	f := p.onSpeaking
	p.mu.Unlock()
	if changed && f != nil {
		f(v)
	}
}

type nopVisualizer struct{}

func (nopVisualizer) Start(Audio) error { return nil }
func (nopVisualizer) Stop()             {}
