// Package typing reveals assistant replies character by character, paced either by the live
// audio position or by the timing heuristics when no audio is playing.
//
// At most one Session is active per Synchronizer. Starting a new reveal cancels the previous
// one first, which forces its message to the full text and stops its timers.
package typing

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/vango-go/poppy/pkg/core/playback"
	"github.com/vango-go/poppy/pkg/core/sched"
	"github.com/vango-go/poppy/pkg/core/timing"
	"github.com/vango-go/poppy/pkg/core/types"
)

// latePadding stretches a known audio duration so the text does not finish ahead of the voice.
const latePadding = 1.02

// Speaker plays a reply. playback.Player implements it.
type Speaker interface {
	Speak(ctx context.Context, text string, onStart func(playback.StartInfo)) (time.Duration, bool)
	Stop()
}

// Conversation receives the assistant message being revealed. SetContent is called while the
// session lock is held, so implementations must not call back into the Session.
type Conversation interface {
	Append(msg types.Message) int
	SetContent(index int, content string)
}

// Mode is how a session paces its reveal. It is chosen once, when typing begins.
type Mode int

const (
	ModePending Mode = iota
	ModeHeuristic
	ModeAudioSynced
)

func (m Mode) String() string {
	switch m {
	case ModeHeuristic:
		return "heuristic"
	case ModeAudioSynced:
		return "audio_synced"
	default:
		return "pending"
	}
}

type Dependencies struct {
	Scheduler    sched.Scheduler
	Speaker      Speaker
	Conversation Conversation
	Logger       *slog.Logger
}

// Synchronizer owns the current typing session.
type Synchronizer struct {
	sched   sched.Scheduler
	speaker Speaker
	conv    Conversation
	logger  *slog.Logger

	// revealMu serializes RevealReply so a new session never starts before the previous one
	// is cancelled.
	revealMu sync.Mutex
	mu       sync.Mutex
	current  *Session
}

func New(deps Dependencies) *Synchronizer {
	s := deps.Scheduler
	if s == nil {
		s = sched.System{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Synchronizer{
		sched:   s,
		speaker: deps.Speaker,
		conv:    deps.Conversation,
		logger:  logger,
	}
}

// RevealReply cancels the active session, appends an empty assistant message and starts
// revealing text into it. Speech playback is requested in the background and typing begins
// once playback starts or is known to be unavailable.
func (s *Synchronizer) RevealReply(ctx context.Context, text string, provider types.Provider) *Session {
	s.revealMu.Lock()
	defer s.revealMu.Unlock()

	s.mu.Lock()
	prev := s.current
	s.current = nil
	s.mu.Unlock()
	if prev != nil {
		prev.Cancel()
	}

	index := s.conv.Append(types.Message{Role: types.RoleAssistant, Provider: provider})
	sess := newSession(ctx, s, text, index, provider)
	if len(sess.text) == 0 {
		sess.mu.Lock()
		sess.finishLocked()
		sess.mu.Unlock()
		sess.cancelCtx()
		return sess
	}

	s.mu.Lock()
	s.current = sess
	s.mu.Unlock()
	go sess.run()
	return sess
}

// Current returns the session that is still revealing, or nil.
func (s *Synchronizer) Current() *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil || s.current.Completed() {
		return nil
	}
	return s.current
}

// Cancel cancels the active session. It reports whether one was still revealing.
func (s *Synchronizer) Cancel() bool {
	s.mu.Lock()
	sess := s.current
	s.current = nil
	s.mu.Unlock()
	if sess == nil || sess.Completed() {
		return false
	}
	sess.Cancel()
	return true
}

// Session is one reveal of one assistant message.
type Session struct {
	sync     *Synchronizer
	full     string
	text     []rune
	index    int
	provider types.Provider

	ctx       context.Context
	cancelCtx context.CancelFunc
	done      chan struct{}

	mu        sync.Mutex
	mode      Mode
	started   bool
	finished  bool
	cancelled bool
	revealed  int
	baseDelay time.Duration
	timer     sched.Timer
	audio     playback.Audio
	expected  time.Duration
}

func newSession(ctx context.Context, s *Synchronizer, text string, index int, provider types.Provider) *Session {
	if ctx == nil {
		ctx = context.Background()
	}
	sctx, cancel := context.WithCancel(ctx)
	return &Session{
		sync:      s,
		full:      text,
		text:      []rune(text),
		index:     index,
		provider:  provider,
		ctx:       sctx,
		cancelCtx: cancel,
		done:      make(chan struct{}),
		baseDelay: timing.BaseTypingDelay(text, 0),
	}
}

// Index is the position of the revealed message in the conversation.
func (x *Session) Index() int { return x.index }

func (x *Session) Text() string { return x.full }

func (x *Session) Provider() types.Provider { return x.provider }

func (x *Session) Mode() Mode {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.mode
}

// Revealed returns the number of runes revealed so far.
func (x *Session) Revealed() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.revealed
}

func (x *Session) Completed() bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.finished
}

func (x *Session) Cancelled() bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.cancelled
}

// Done is closed once the full text is revealed, by completion or cancellation.
func (x *Session) Done() <-chan struct{} { return x.done }

// Wait blocks until the session completes or ctx is done.
func (x *Session) Wait(ctx context.Context) error {
	select {
	case <-x.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Cancel stops the reveal, releases its timers and audio, and forces the message to the full
// text. Cancelling a completed session does nothing.
func (x *Session) Cancel() {
	x.mu.Lock()
	if x.finished {
		x.mu.Unlock()
		return
	}
	x.cancelled = true
	x.revealed = len(x.text)
	x.sync.conv.SetContent(x.index, x.full)
	x.finishLocked()
	x.mu.Unlock()

	x.cancelCtx()
	if x.sync.speaker != nil {
		x.sync.speaker.Stop()
	}
}

func (x *Session) run() {
	defer x.cancelCtx()
	defer func() {
		if v := recover(); v != nil {
			x.sync.logger.Error("panic in reply playback", "panic", v)
			x.begin(playback.StartInfo{})
		}
	}()

	if x.sync.speaker == nil {
		x.begin(playback.StartInfo{})
		return
	}
	d, ok := x.sync.speaker.Speak(x.ctx, x.full, x.begin)
	if ok {
		x.begin(playback.StartInfo{Duration: d})
	} else {
		x.begin(playback.StartInfo{})
	}
}

// begin starts typing on its first call. Later calls only refresh the heuristic base delay
// from a known duration; they never change the mode or realign revealed text.
func (x *Session) begin(info playback.StartInfo) {
	x.mu.Lock()
	defer x.mu.Unlock()

	if info.Duration > 0 {
		padded := time.Duration(float64(info.Duration) * latePadding)
		x.baseDelay = timing.BaseTypingDelay(x.full, padded)
	}
	if x.started || x.finished {
		return
	}
	x.started = true

	if info.Audio != nil {
		x.mode = ModeAudioSynced
		x.audio = info.Audio
		x.expected = info.Duration
		if x.expected <= 0 {
			x.expected = time.Duration(len(x.text)) * x.baseDelay
		}
		x.timer = x.sync.sched.NextFrame(x.step)
		return
	}

	x.mode = ModeHeuristic
	x.typeNextLocked()
}

func (x *Session) typeNext() {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.typeNextLocked()
}

func (x *Session) typeNextLocked() {
	if x.finished {
		return
	}
	x.timer = nil
	x.reveal(min(x.revealed+1, len(x.text)))
	if x.revealed >= len(x.text) {
		x.finishLocked()
		return
	}
	delay := timing.PerCharacterDelay(x.text[x.revealed-1], x.baseDelay)
	x.timer = x.sync.sched.AfterFunc(delay, x.typeNext)
}

func (x *Session) step() {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.finished {
		return
	}
	x.timer = nil

	duration := x.expected
	if live, ok := x.audio.Duration(); ok && live > 0 {
		duration = live
	}
	var progress float64
	if duration > 0 {
		progress = float64(x.audio.CurrentTime()) / float64(duration)
	}
	target := int(math.Floor(math.Min(1, progress) * float64(len(x.text))))
	if target > x.revealed {
		x.reveal(target)
	}

	if progress >= 1 || x.audio.Ended() {
		x.reveal(len(x.text))
		x.finishLocked()
		return
	}
	x.timer = x.sync.sched.NextFrame(x.step)
}

// reveal publishes the first n runes. Counts never decrease.
func (x *Session) reveal(n int) {
	if n <= x.revealed {
		return
	}
	x.revealed = n
	x.sync.conv.SetContent(x.index, string(x.text[:n]))
}

func (x *Session) finishLocked() {
	if x.finished {
		return
	}
	x.finished = true
	if x.timer != nil {
		x.timer.Stop()
		x.timer = nil
	}
	x.audio = nil
	close(x.done)
}
