// Package turn ties speech capture, reply generation, playback and typing into one
// conversation state machine.
package turn

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/vango-go/poppy/pkg/core/capture"
	"github.com/vango-go/poppy/pkg/core/playback"
	"github.com/vango-go/poppy/pkg/core/sched"
	"github.com/vango-go/poppy/pkg/core/types"
	"github.com/vango-go/poppy/pkg/core/typing"
)

const (
	// IntroText opens a fresh conversation.
	IntroText = "Hey, I’m Poppy 👋 I’m your AI content buddy. Tell me what kind of content you make, and I’ll help you turn it into banger posts. What platform are you most active on right now?"

	// EmptyReplyFallback is revealed when the model returns nothing.
	EmptyReplyFallback = "I'm having a little brain fart right now, try asking me again? 😅"

	unsupportedMessage   = "Your device doesn’t support voice input. Try Chrome for the full experience."
	captureFailedMessage = "Couldn't start the microphone. Tap the mic to try again."
)

// Capture is the speech capture surface the orchestrator drives. capture.Capture implements it.
type Capture interface {
	Start(ctx context.Context) error
	Stop()
	Reset()
	Supported() bool
	PendingTranscript() string
	OnChange(f func(capture.State))
}

// Player is the playback surface the orchestrator drives. playback.Player implements it.
type Player interface {
	typing.Speaker
	SetMuted(muted bool)
	HasSession() bool
	OnSpeakingChange(f func(bool))
}

// ReplyGenerator produces the assistant reply for a turn. It never fails; implementations
// return an apology string on provider errors.
type ReplyGenerator interface {
	GenerateReply(ctx context.Context, history []types.Message, provider types.Provider, rc types.ReferenceContext) string
}

type Config struct {
	DefaultProvider types.Provider
	IntroProvider   types.Provider
	IntroText       string
}

type Dependencies struct {
	Capture   Capture
	Player    Player
	Replies   ReplyGenerator
	Scheduler sched.Scheduler
	Emitter   Emitter
	Logger    *slog.Logger
}

// Orchestrator owns the live conversation state. Every async callback reads provider,
// messages and mute from here at call time.
type Orchestrator struct {
	cfg     Config
	capture Capture
	player  Player
	replies ReplyGenerator
	typist  *typing.Synchronizer
	emitter Emitter
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// historyMu keeps a reveal from appending to a conversation LoadHistory is replacing.
	historyMu sync.Mutex

	mu         sync.Mutex
	generation uint64
	owned      map[int]struct{}
	provider   types.Provider
	muted      bool
	listening  bool
	speaking   bool
	thinking   bool
	revealing  int
	transcript string
	messages   []types.Message
	boards     []types.Board
	selected   []string
	looseLinks []string
	looseDocs  []types.ContentDoc
	state      State
	started    bool
	closed     bool
}

func New(cfg Config, deps Dependencies) *Orchestrator {
	if cfg.DefaultProvider == "" {
		cfg.DefaultProvider = types.DefaultProvider
	}
	if cfg.IntroProvider == "" {
		cfg.IntroProvider = types.ProviderOpenAI
	}
	if cfg.IntroText == "" {
		cfg.IntroText = IntroText
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	emitter := deps.Emitter
	if emitter == nil {
		emitter = nopEmitter{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		cfg:      cfg,
		capture:  deps.Capture,
		player:   deps.Player,
		replies:  deps.Replies,
		emitter:  emitter,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		provider: cfg.DefaultProvider,
		state:    StateIdle,
		owned:    make(map[int]struct{}),
	}

	var speaker typing.Speaker
	if deps.Player != nil {
		speaker = deps.Player
		deps.Player.OnSpeakingChange(o.handleSpeaking)
	}
	if deps.Capture != nil {
		deps.Capture.OnChange(o.handleCapture)
	}
	o.typist = typing.New(typing.Dependencies{
		Scheduler:    deps.Scheduler,
		Speaker:      speaker,
		Conversation: conversation{o},
		Logger:       logger,
	})
	return o
}

// ToggleListening is the mic button. While a reply is being spoken or typed it interrupts;
// while listening it ends the utterance and sends the turn; otherwise it starts listening.
func (o *Orchestrator) ToggleListening(ctx context.Context) error {
	o.mu.Lock()
	listening := o.listening
	busy := o.speaking || o.revealing > 0
	o.mu.Unlock()

	if busy && !listening {
		o.Interrupt()
		return nil
	}
	if o.capture == nil || !o.capture.Supported() {
		o.notice(NoticeCaptureUnsupported, unsupportedMessage)
		return capture.ErrUnsupported
	}
	if listening {
		o.finishUtterance()
		return nil
	}
	return o.startListening(ctx)
}

// Interrupt stops the reply in progress and reveals its full text. It reports whether
// anything was interrupted.
func (o *Orchestrator) Interrupt() bool {
	interrupted := o.typist.Cancel()
	if !interrupted && o.player != nil && o.player.HasSession() {
		o.player.Stop()
		interrupted = true
	}
	if interrupted {
		o.mu.Lock()
		o.state = StateInterrupted
		snap := o.snapshotLocked(StateInterrupted)
		o.mu.Unlock()
		o.emitter.Emit(Event{Type: EventStateChanged, Snapshot: snap})
	}
	o.refresh(false)
	return interrupted
}

func (o *Orchestrator) startListening(ctx context.Context) error {
	if o.typist.Current() != nil {
		o.Interrupt()
	} else if o.player != nil && o.player.HasSession() {
		o.player.Stop()
	}

	o.capture.Reset()
	if err := o.capture.Start(ctx); err != nil {
		if errors.Is(err, capture.ErrUnsupported) {
			o.notice(NoticeCaptureUnsupported, unsupportedMessage)
		} else {
			o.notice(NoticeCaptureFailed, captureFailedMessage)
		}
		o.refresh(false)
		return err
	}
	return nil
}

func (o *Orchestrator) finishUtterance() {
	o.capture.Stop()
	text := strings.TrimSpace(o.capture.PendingTranscript())
	if text == "" {
		o.refresh(false)
		return
	}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	msg := types.Message{Role: types.RoleUser, Content: text}
	o.messages = append(o.messages, msg)
	index := len(o.messages) - 1
	history := types.CloneMessages(o.messages)
	provider := o.provider
	rc := o.referenceContextLocked()
	gen := o.generation
	o.thinking = true
	o.wg.Add(1)
	o.mu.Unlock()

	o.emitter.Emit(Event{Type: EventMessageAppended, Index: index, Message: msg})
	o.capture.Reset()
	o.refresh(false)

	go o.sendTurn(history, provider, rc, gen)
}

func (o *Orchestrator) sendTurn(history []types.Message, provider types.Provider, rc types.ReferenceContext, gen uint64) {
	defer o.wg.Done()

	var reply string
	if o.replies != nil {
		reply = o.replies.GenerateReply(o.ctx, history, provider, rc)
	}
	if strings.TrimSpace(reply) == "" {
		reply = EmptyReplyFallback
	}

	o.mu.Lock()
	o.thinking = false
	o.mu.Unlock()

	if o.ctx.Err() != nil {
		o.refresh(false)
		return
	}
	o.reveal(reply, provider, gen)
}

// reveal types text out as a new assistant message and blocks until it is fully delivered.
// A reveal for history generation gen is dropped once LoadHistory has replaced that history.
func (o *Orchestrator) reveal(text string, provider types.Provider, gen uint64) {
	o.historyMu.Lock()
	o.mu.Lock()
	if o.generation != gen {
		o.mu.Unlock()
		o.historyMu.Unlock()
		o.refresh(false)
		return
	}
	o.revealing++
	o.mu.Unlock()
	sess := o.typist.RevealReply(o.ctx, text, provider)
	o.historyMu.Unlock()

	o.refresh(false)
	<-sess.Done()

	o.mu.Lock()
	o.revealing--
	current := o.generation == gen
	if current {
		delete(o.owned, sess.Index())
	}
	o.mu.Unlock()

	o.refresh(false)
	if !current {
		return
	}
	o.emitter.Emit(Event{
		Type:        EventTurnCompleted,
		Index:       sess.Index(),
		Message:     types.Message{Role: types.RoleAssistant, Content: sess.Text(), Provider: sess.Provider()},
		Interrupted: sess.Cancelled(),
	})
}

// StartExperience reveals the intro message when the conversation is empty.
func (o *Orchestrator) StartExperience() bool {
	o.mu.Lock()
	if o.started || o.closed || len(o.messages) > 0 {
		o.started = true
		o.mu.Unlock()
		return false
	}
	o.started = true
	gen := o.generation
	o.wg.Add(1)
	o.mu.Unlock()

	go func() {
		defer o.wg.Done()
		o.reveal(o.cfg.IntroText, o.cfg.IntroProvider, gen)
	}()
	return true
}

// SetProvider switches the model used by the next turn. The conversation is kept.
func (o *Orchestrator) SetProvider(p types.Provider) {
	o.mu.Lock()
	if o.provider == p {
		o.mu.Unlock()
		return
	}
	o.provider = p
	o.mu.Unlock()
	o.refresh(true)
}

func (o *Orchestrator) Provider() types.Provider {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.provider
}

// SetMuted affects the next reply's audio and pauses or resumes the current one.
func (o *Orchestrator) SetMuted(muted bool) {
	o.mu.Lock()
	changed := o.muted != muted
	o.muted = muted
	o.mu.Unlock()
	if o.player != nil {
		o.player.SetMuted(muted)
	}
	if changed {
		o.refresh(true)
	}
}

// ToggleMute flips the mute state and returns the new value.
func (o *Orchestrator) ToggleMute() bool {
	o.mu.Lock()
	next := !o.muted
	o.mu.Unlock()
	o.SetMuted(next)
	return next
}

func (o *Orchestrator) Muted() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.muted
}

// SetBoards replaces the known boards. Selected ids that no longer exist are ignored.
func (o *Orchestrator) SetBoards(boards []types.Board) {
	o.mu.Lock()
	o.boards = append([]types.Board(nil), boards...)
	o.mu.Unlock()
}

// SelectBoards sets the boards whose content steers the next turn, in priority order.
func (o *Orchestrator) SelectBoards(ids []string) {
	o.mu.Lock()
	o.selected = append([]string(nil), ids...)
	o.mu.Unlock()
}

// SetLooseContent sets the links and docs used when no board is selected.
func (o *Orchestrator) SetLooseContent(links []string, docs []types.ContentDoc) {
	o.mu.Lock()
	o.looseLinks = append([]string(nil), links...)
	o.looseDocs = append([]types.ContentDoc(nil), docs...)
	o.mu.Unlock()
}

// ReferenceContext returns the context the next turn would send.
func (o *Orchestrator) ReferenceContext() types.ReferenceContext {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.referenceContextLocked()
}

func (o *Orchestrator) referenceContextLocked() types.ReferenceContext {
	var selected []types.Board
	for _, id := range o.selected {
		for _, b := range o.boards {
			if b.ID == id {
				selected = append(selected, b)
				break
			}
		}
	}
	return types.ContextFromBoards(selected, o.looseLinks, o.looseDocs)
}

// LoadHistory replaces the conversation with a saved chat. Any reveal in progress is
// finished first, and replies still pending for the old conversation are discarded.
func (o *Orchestrator) LoadHistory(msgs []types.Message) {
	o.historyMu.Lock()
	defer o.historyMu.Unlock()

	o.typist.Cancel()
	if o.player != nil && o.player.HasSession() {
		o.player.Stop()
	}

	o.mu.Lock()
	o.generation++
	o.owned = make(map[int]struct{})
	o.messages = types.CloneMessages(msgs)
	o.started = true
	out := types.CloneMessages(o.messages)
	o.mu.Unlock()

	o.emitter.Emit(Event{Type: EventMessagesReplaced, Messages: out})
	o.refresh(false)
}

func (o *Orchestrator) Messages() []types.Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	return types.CloneMessages(o.messages)
}

func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.deriveLocked()
}

func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked(o.deriveLocked())
}

func (o *Orchestrator) Transcript() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.transcript
}

// Wait blocks until in-flight turns finish or ctx is done.
func (o *Orchestrator) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close aborts pending replies, finishes any reveal and stops capture and playback.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	listening := o.listening
	o.mu.Unlock()

	o.cancel()
	o.typist.Cancel()
	if listening && o.capture != nil {
		o.capture.Stop()
	}
	if o.player != nil {
		o.player.Stop()
	}
}

func (o *Orchestrator) handleCapture(st capture.State) {
	o.mu.Lock()
	transcriptChanged := o.transcript != st.Transcript
	o.listening = st.Listening
	o.transcript = st.Transcript
	o.mu.Unlock()

	if transcriptChanged {
		o.emitter.Emit(Event{Type: EventTranscriptChanged, Transcript: st.Transcript})
	}
	o.refresh(false)
}

func (o *Orchestrator) handleSpeaking(speaking bool) {
	o.mu.Lock()
	o.speaking = speaking
	o.mu.Unlock()
	o.refresh(false)
}

func (o *Orchestrator) notice(code, message string) {
	o.emitter.Emit(Event{Type: EventNotice, Notice: Notice{Code: code, Message: message}})
}

// refresh emits StateChanged when the derived state moved, or always when force is set.
func (o *Orchestrator) refresh(force bool) {
	o.mu.Lock()
	next := o.deriveLocked()
	if next == o.state && !force {
		o.mu.Unlock()
		return
	}
	o.state = next
	snap := o.snapshotLocked(next)
	o.mu.Unlock()
	o.emitter.Emit(Event{Type: EventStateChanged, Snapshot: snap})
}

func (o *Orchestrator) deriveLocked() State {
	switch {
	case o.listening:
		return StateListening
	case o.speaking || o.revealing > 0:
		return StateSpeaking
	case o.thinking:
		return StateSending
	default:
		return StateIdle
	}
}

func (o *Orchestrator) snapshotLocked(st State) Snapshot {
	return Snapshot{State: st, Provider: o.provider, Muted: o.muted}
}

// conversation adapts the orchestrator's message list to typing.Conversation.
type conversation struct {
	o *Orchestrator
}

func (c conversation) Append(msg types.Message) int {
	c.o.mu.Lock()
	c.o.messages = append(c.o.messages, msg)
	index := len(c.o.messages) - 1
	c.o.owned[index] = struct{}{}
	c.o.mu.Unlock()
	c.o.emitter.Emit(Event{Type: EventMessageAppended, Index: index, Message: msg})
	return index
}

// SetContent ignores indexes not appended in the current history generation.
func (c conversation) SetContent(index int, content string) {
	c.o.mu.Lock()
	if _, ok := c.o.owned[index]; !ok || index >= len(c.o.messages) {
		c.o.mu.Unlock()
		return
	}
	c.o.messages[index].Content = content
	msg := c.o.messages[index]
	c.o.mu.Unlock()
	c.o.emitter.Emit(Event{Type: EventMessageUpdated, Index: index, Message: msg})
}

var _ Player = (*playback.Player)(nil)
var _ Capture = (*capture.Capture)(nil)
