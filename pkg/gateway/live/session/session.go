// Package session runs one /v1/live connection: it drives a turn orchestrator with the
// client's microphone, plays replies through the client's audio element and mirrors every
// conversation change back as JSON frames.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vango-go/poppy/pkg/core/capture"
	"github.com/vango-go/poppy/pkg/core/playback"
	"github.com/vango-go/poppy/pkg/core/sched"
	"github.com/vango-go/poppy/pkg/core/turn"
	"github.com/vango-go/poppy/pkg/core/types"
	"github.com/vango-go/poppy/pkg/core/voice/stt"
	"github.com/vango-go/poppy/pkg/core/voice/tts"
	"github.com/vango-go/poppy/pkg/gateway/live/protocol"
	"github.com/vango-go/poppy/pkg/store"
)

const (
	maxCanceledAudioIDs       = 64
	outboundPriorityQueueSize = 8
	defaultAudioChunkBytes    = 32 * 1024
)

var errBackpressure = errors.New("live outbound backpressure")

type Config struct {
	MaxAudioFrameBytes         int
	MaxJSONMessageBytes        int64
	LiveMaxAudioFPS            int
	LiveMaxAudioBytesPerSecond int64
	LiveInboundBurstSeconds    int
	PingInterval               time.Duration
	WriteTimeout               time.Duration
	ReadTimeout                time.Duration
	MaxSessionDuration         time.Duration
	MetadataWait               time.Duration
	PlaybackStartTimeout       time.Duration
	FrameInterval              time.Duration
	OutboundQueueSize          int
	ControlQueueSize           int
	AudioChunkBytes            int
	DefaultProvider            types.Provider
	Locale                     string
	STTModel                   string
	TTSOptions                 tts.SynthesizeOptions
}

// wsConn is the subset of *websocket.Conn a session uses.
type wsConn interface {
	wsWriter
	ReadMessage() (messageType int, p []byte, err error)
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
}

type Dependencies struct {
	Conn    *websocket.Conn
	Logger  *slog.Logger
	Replies turn.ReplyGenerator
	// STT and TTS are optional. Without STT the mic reports capture_unsupported; without
	// TTS replies are only typed.
	STT       stt.Provider
	TTS       tts.Provider
	Boards    store.Boards
	Chats     store.Chats
	UserID    string
	Hello     protocol.ClientHello
	SessionID string
	RequestID string
	Config    Config
	Now       func() time.Time
}

type LiveSession struct {
	conn      wsConn
	logger    *slog.Logger
	boards    store.Boards
	chats     store.Chats
	userID    string
	hello     protocol.ClientHello
	sessionID string
	requestID string
	cfg       Config
	now       func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	outboundPriority chan outboundFrame
	outboundNormal   chan outboundFrame
	control          chan func()

	canceledAudio atomic.Value // canceledAudioState
	audioCounter  atomic.Int64

	audioMu sync.Mutex
	audios  map[string]*remoteAudio

	recognizer   *stt.Recognizer
	speechOutput bool
	capture      *capture.Capture
	player       *playback.Player
	orch         *turn.Orchestrator
}

type outboundFrame struct {
	isAudio bool
	audioID string

	textPayload   []byte
	binaryPayload []byte
}

type canceledAudioState struct {
	set   map[string]struct{}
	order []string
}

type inboundFrame struct {
	messageType int
	data        []byte
	err         error
}

func New(deps Dependencies) (*LiveSession, error) {
	if deps.Conn == nil {
		return nil, fmt.Errorf("connection is required")
	}
	return newSession(deps.Conn, deps)
}

func newSession(conn wsConn, deps Dependencies) (*LiveSession, error) {
	if deps.Replies == nil {
		return nil, fmt.Errorf("reply generator is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	cfg := deps.Config
	if cfg.OutboundQueueSize <= 0 {
		cfg.OutboundQueueSize = 256
	}
	if cfg.ControlQueueSize <= 0 {
		cfg.ControlQueueSize = 32
	}
	if cfg.AudioChunkBytes <= 0 {
		cfg.AudioChunkBytes = defaultAudioChunkBytes
	}
	if cfg.PlaybackStartTimeout <= 0 {
		cfg.PlaybackStartTimeout = 3 * time.Second
	}
	if cfg.MaxAudioFrameBytes <= 0 {
		cfg.MaxAudioFrameBytes = 8192
	}

	provider := cfg.DefaultProvider
	if strings.TrimSpace(string(deps.Hello.Provider)) != "" {
		p, err := types.ParseProvider(string(deps.Hello.Provider))
		if err != nil {
			return nil, err
		}
		provider = p
	}
	locale := strings.TrimSpace(deps.Hello.Locale)
	if locale == "" {
		locale = cfg.Locale
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &LiveSession{
		conn:             conn,
		logger:           deps.Logger,
		boards:           deps.Boards,
		chats:            deps.Chats,
		userID:           deps.UserID,
		hello:            deps.Hello,
		sessionID:        deps.SessionID,
		requestID:        deps.RequestID,
		cfg:              cfg,
		now:              deps.Now,
		ctx:              ctx,
		cancel:           cancel,
		outboundPriority: make(chan outboundFrame, max(1, min(cfg.OutboundQueueSize, outboundPriorityQueueSize))),
		outboundNormal:   make(chan outboundFrame, cfg.OutboundQueueSize),
		control:          make(chan func(), cfg.ControlQueueSize),
		audios:           make(map[string]*remoteAudio),
	}
	s.canceledAudio.Store(canceledAudioState{set: make(map[string]struct{})})

	var rec capture.Recognizer
	if deps.STT != nil {
		s.recognizer = stt.NewRecognizer(deps.STT, stt.TranscribeOptions{
			Model:      cfg.STTModel,
			Format:     deps.Hello.AudioIn.Encoding,
			SampleRate: deps.Hello.AudioIn.SampleRateHz,
		}, deps.Logger)
		rec = s.recognizer
	}
	s.capture = capture.New(capture.Config{Locale: locale}, capture.Dependencies{Recognizer: rec, Logger: deps.Logger})

	var audioFactory playback.AudioFactory
	if deps.TTS != nil {
		audioFactory = s.newRemoteAudio
		s.speechOutput = true
	}
	s.player = playback.New(playback.Config{
		MetadataWait: cfg.MetadataWait,
		TTSOptions:   cfg.TTSOptions,
	}, playback.Dependencies{
		TTS:        deps.TTS,
		NewAudio:   audioFactory,
		Visualizer: remoteVisualizer{s: s},
		Logger:     deps.Logger,
	})

	s.orch = turn.New(turn.Config{DefaultProvider: provider}, turn.Dependencies{
		Capture:   s.capture,
		Player:    s.player,
		Replies:   deps.Replies,
		Scheduler: sched.System{FrameInterval: cfg.FrameInterval},
		Emitter:   turn.EmitterFunc(s.emit),
		Logger:    deps.Logger,
	})
	return s, nil
}

func (s *LiveSession) Run() error {
	defer s.cancel()

	if s.cfg.MaxJSONMessageBytes > 0 {
		s.conn.SetReadLimit(s.cfg.MaxJSONMessageBytes)
	}
	if s.cfg.ReadTimeout > 0 {
		_ = s.conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		s.conn.SetPongHandler(func(string) error {
			return s.conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		})
	}

	readCh := make(chan inboundFrame, 64)
	writerErrCh := make(chan error, 1)
	go s.readLoop(readCh)
	go func() {
		w := outboundWriter{
			ws:         s.conn,
			ctx:        s.ctx,
			cfg:        s.cfg,
			priority:   s.outboundPriority,
			normal:     s.outboundNormal,
			isCanceled: s.isAudioCanceled,
		}
		writerErrCh <- w.Run()
		close(writerErrCh)
	}()

	controlDone := make(chan struct{})
	go s.controlLoop(controlDone)

	flushAndClose := func() error {
		s.shutdownConversation()
		s.cancel()
		wait := 100 * time.Millisecond
		if s.cfg.WriteTimeout > 0 && s.cfg.WriteTimeout < wait {
			wait = s.cfg.WriteTimeout
		}
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-writerErrCh:
		case <-timer.C:
		}
		<-controlDone
		return nil
	}

	var deadline <-chan time.Time
	if s.cfg.MaxSessionDuration > 0 {
		t := time.NewTimer(s.cfg.MaxSessionDuration)
		defer t.Stop()
		deadline = t.C
	}

	if err := s.sendHelloAck(); err != nil {
		return s.abort(err, flushAndClose)
	}
	if s.hello.Muted {
		// Announces the initial state.
		s.orch.SetMuted(true)
	} else if err := s.sendState(s.orch.Snapshot()); err != nil {
		return s.abort(err, flushAndClose)
	}
	if len(s.hello.BoardIDs) > 0 {
		ids := append([]string(nil), s.hello.BoardIDs...)
		_ = s.enqueueControl(func() { s.selectBoards(ids) })
	}
	if chatID := strings.TrimSpace(s.hello.ChatID); chatID != "" {
		_ = s.enqueueControl(func() { s.loadChat(chatID) })
	}

	limiter := newMicLimiter(s.now, s.cfg.LiveMaxAudioFPS, s.cfg.LiveMaxAudioBytesPerSecond, s.cfg.LiveInboundBurstSeconds)

	for {
		select {
		case <-s.ctx.Done():
			return flushAndClose()
		case <-deadline:
			_ = s.sendSessionError("session_expired", "live session reached its maximum duration", true, nil)
			return flushAndClose()
		case err, ok := <-writerErrCh:
			if ok && err != nil {
				s.logger.Warn("live writer failed", "session_id", s.sessionID, "error", err)
				_ = flushAndClose()
				return err
			}
			return flushAndClose()
		case frame, ok := <-readCh:
			if !ok || frame.err != nil {
				return flushAndClose()
			}
			var err error
			switch frame.messageType {
			case websocket.BinaryMessage:
				err = s.handleMicAudio(frame.data, limiter)
			case websocket.TextMessage:
				err = s.handleText(frame.data)
			}
			if err != nil {
				return s.abort(err, flushAndClose)
			}
		}
	}
}

// abort ends the session. A closing protocol error is a normal end; anything else is returned.
func (s *LiveSession) abort(err error, flushAndClose func() error) error {
	_ = flushAndClose()
	var closing *closingError
	if errors.As(err, &closing) {
		return nil
	}
	return err
}

// closingError marks a session-ending error that was already reported to the client.
type closingError struct {
	code string
}

func (e *closingError) Error() string { return "live session closed: " + e.code }

func (s *LiveSession) closeWith(code, message string, details map[string]any) error {
	if err := s.sendSessionError(code, message, true, details); err != nil {
		return err
	}
	return &closingError{code: code}
}

func (s *LiveSession) shutdownConversation() {
	s.orch.Close()
	wait := s.cfg.WriteTimeout
	if wait <= 0 {
		wait = time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), wait)
	defer cancel()
	if err := s.orch.Wait(ctx); err != nil {
		s.logger.Warn("live turns did not finish before close", "session_id", s.sessionID, "error", err)
	}
}

func (s *LiveSession) handleMicAudio(data []byte, limiter *micLimiter) error {
	if len(data) > s.cfg.MaxAudioFrameBytes {
		return s.closeWith("bad_request", "audio frame exceeds max size", nil)
	}
	if !limiter.Allow(len(data)) {
		details := map[string]any{
			"limit_fps":             s.cfg.LiveMaxAudioFPS,
			"limit_bps":             s.cfg.LiveMaxAudioBytesPerSecond,
			"inbound_burst_seconds": s.cfg.LiveInboundBurstSeconds,
		}
		return s.closeWith("rate_limited", "inbound audio rate limit exceeded", details)
	}
	if s.recognizer == nil {
		return nil
	}
	if err := s.recognizer.Feed(data); err != nil {
		s.logger.Warn("failed to forward mic audio", "session_id", s.sessionID, "error", err)
		return s.sendWarning("provider_error", "failed to forward audio frame")
	}
	return nil
}

func (s *LiveSession) handleText(data []byte) error {
	msg, decErr := protocol.DecodeClientMessage(data)
	if decErr != nil {
		code := "bad_request"
		var de *protocol.DecodeError
		if errors.As(decErr, &de) {
			code = de.Code
		}
		return s.closeWith(code, decErr.Error(), nil)
	}

	switch m := msg.(type) {
	case protocol.ClientHello:
		return s.closeWith("bad_request", "hello already received", nil)
	case protocol.ClientPlayback:
		if a := s.lookupAudio(m.AudioID); a != nil {
			a.mark(m)
		}
		return nil
	case protocol.ClientMicTap:
		return s.enqueueControl(func() {
			if err := s.orch.ToggleListening(s.ctx); err != nil {
				s.logger.Debug("mic toggle failed", "session_id", s.sessionID, "error", err)
			}
		})
	case protocol.ClientInterrupt:
		return s.enqueueControl(func() { s.orch.Interrupt() })
	case protocol.ClientStartExperience:
		return s.enqueueControl(func() { s.orch.StartExperience() })
	case protocol.ClientSetProvider:
		return s.enqueueControl(func() { s.orch.SetProvider(m.Provider) })
	case protocol.ClientSetMuted:
		return s.enqueueControl(func() { s.orch.SetMuted(m.Muted) })
	case protocol.ClientSelectBoards:
		return s.enqueueControl(func() { s.selectBoards(m.BoardIDs) })
	case protocol.ClientSetContent:
		return s.enqueueControl(func() { s.orch.SetLooseContent(m.Links, m.Docs) })
	case protocol.ClientLoadChat:
		return s.enqueueControl(func() { s.loadChat(m.ChatID) })
	}
	return nil
}

// controlLoop runs conversation commands one at a time so a slow recognizer dial or store
// read never stalls the socket reader.
func (s *LiveSession) controlLoop(done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-s.ctx.Done():
			return
		case f := <-s.control:
			func() {
				defer func() {
					if v := recover(); v != nil {
						s.logger.Error("panic in live control", "session_id", s.sessionID, "panic", v)
					}
				}()
				f()
			}()
		}
	}
}

func (s *LiveSession) enqueueControl(f func()) error {
	select {
	case s.control <- f:
		return nil
	default:
		return s.sendWarning("busy", "too many pending commands; try again")
	}
}

func (s *LiveSession) selectBoards(ids []string) {
	if len(ids) == 0 {
		s.orch.SelectBoards(nil)
		return
	}
	if s.boards == nil || strings.TrimSpace(s.userID) == "" {
		_ = s.sendWarning("boards_unavailable", "boards require a signed-in user")
		return
	}
	list, err := s.boards.List(s.ctx, s.userID)
	if err != nil {
		s.logger.Error("failed to list boards for live session", "session_id", s.sessionID, "error", err)
		_ = s.sendSessionError("store_error", "could not load boards", false, nil)
		return
	}
	s.orch.SetBoards(list)
	s.orch.SelectBoards(ids)
}

func (s *LiveSession) loadChat(chatID string) {
	if s.chats == nil || strings.TrimSpace(s.userID) == "" {
		_ = s.sendWarning("chats_unavailable", "saved chats require a signed-in user")
		return
	}
	chat, err := s.chats.Get(s.ctx, s.userID, chatID)
	if errors.Is(err, store.ErrNotFound) {
		_ = s.sendSessionError("not_found", "chat not found", false, map[string]any{"chat_id": chatID})
		return
	}
	if err != nil {
		s.logger.Error("failed to load chat for live session", "session_id", s.sessionID, "error", err)
		_ = s.sendSessionError("store_error", "could not load chat", false, nil)
		return
	}
	s.orch.LoadHistory(chat.Messages)
}

// emit mirrors orchestrator events to the client. Typing updates are droppable because every
// update and the final turn_complete carry the full content.
func (s *LiveSession) emit(ev turn.Event) {
	var (
		err       error
		droppable bool
	)
	switch ev.Type {
	case turn.EventStateChanged:
		err = s.sendState(ev.Snapshot)
	case turn.EventTranscriptChanged:
		droppable = true
		err = s.sendJSON(protocol.ServerTranscript{Type: "transcript", Text: ev.Transcript})
	case turn.EventMessageAppended:
		err = s.sendJSON(protocol.ServerMessageAppend{Type: "message_append", Index: ev.Index, Message: ev.Message})
	case turn.EventMessageUpdated:
		droppable = true
		err = s.sendJSON(protocol.ServerMessageUpdate{Type: "message_update", Index: ev.Index, Message: ev.Message})
	case turn.EventMessagesReplaced:
		msgs := ev.Messages
		if msgs == nil {
			msgs = []types.Message{}
		}
		err = s.sendJSON(protocol.ServerMessages{Type: "messages", Messages: msgs})
	case turn.EventNotice:
		err = s.sendJSON(protocol.ServerNotice{Type: "notice", Code: ev.Notice.Code, Message: ev.Notice.Message})
	case turn.EventTurnCompleted:
		err = s.sendJSON(protocol.ServerTurnComplete{Type: "turn_complete", Index: ev.Index, Message: ev.Message, Interrupted: ev.Interrupted})
	}
	if err == nil {
		return
	}
	if errors.Is(err, errBackpressure) && droppable {
		s.logger.Debug("dropped live update under backpressure", "session_id", s.sessionID, "event", ev.Type)
		return
	}
	s.handleBackpressure(err)
}

// handleBackpressure ends a session whose client cannot keep up.
func (s *LiveSession) handleBackpressure(err error) {
	if s.ctx.Err() != nil {
		return
	}
	s.logger.Warn("live session outbound queue overflow", "session_id", s.sessionID, "error", err)
	_ = s.sendSessionError("backpressure", "client is not reading fast enough", true, nil)
	s.cancel()
}

// newRemoteAudio ships a synthesized clip to the client and returns a handle that follows
// the client's playback marks.
func (s *LiveSession) newRemoteAudio(ctx context.Context, clip *tts.Synthesis) (playback.Audio, error) {
	if clip == nil || len(clip.Audio) == 0 {
		return nil, errors.New("empty synthesis")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	id := s.nextAudioID()
	a := newRemoteAudio(id, s, s.cfg.PlaybackStartTimeout, s.now)

	chunk := s.cfg.AudioChunkBytes
	chunks := (len(clip.Audio) + chunk - 1) / chunk
	s.audioMu.Lock()
	s.audios[id] = a
	s.audioMu.Unlock()

	fail := func(err error) (playback.Audio, error) {
		s.releaseAudio(id)
		return nil, err
	}
	err := s.sendAudioJSON(id, protocol.ServerAudioStart{
		Type:        "audio_start",
		AudioID:     id,
		ContentType: clip.ContentType,
		Format:      clip.Format,
		Bytes:       len(clip.Audio),
		Chunks:      chunks,
	})
	if err != nil {
		return fail(err)
	}
	for off := 0; off < len(clip.Audio); off += chunk {
		end := min(off+chunk, len(clip.Audio))
		if err := s.sendAudioBinary(id, clip.Audio[off:end]); err != nil {
			return fail(err)
		}
	}
	if err := s.sendAudioJSON(id, protocol.ServerAudioEnd{Type: "audio_end", AudioID: id}); err != nil {
		return fail(err)
	}
	return a, nil
}

func (s *LiveSession) lookupAudio(id string) *remoteAudio {
	s.audioMu.Lock()
	defer s.audioMu.Unlock()
	return s.audios[strings.TrimSpace(id)]
}

// releaseAudio forgets a clip and drops any of its frames still queued.
func (s *LiveSession) releaseAudio(id string) {
	s.audioMu.Lock()
	defer s.audioMu.Unlock()
	delete(s.audios, id)
	s.cancelAudio(id)
}

func (s *LiveSession) sendAudioCommand(kind, audioID string) error {
	return s.sendJSONPriority(protocol.ServerAudioCommand{Type: kind, AudioID: audioID})
}

func (s *LiveSession) sendHelloAck() error {
	limits := &protocol.HelloAckLimits{
		MaxAudioFrameBytes:  s.cfg.MaxAudioFrameBytes,
		MaxJSONMessageBytes: int(s.cfg.MaxJSONMessageBytes),
		MaxAudioFPS:         s.cfg.LiveMaxAudioFPS,
		MaxAudioBPS:         s.cfg.LiveMaxAudioBytesPerSecond,
		InboundBurstSeconds: s.cfg.LiveInboundBurstSeconds,
		MaxSessionMS:        s.cfg.MaxSessionDuration.Milliseconds(),
	}
	signedIn := strings.TrimSpace(s.userID) != ""
	return s.sendJSON(protocol.ServerHelloAck{
		Type:            "hello_ack",
		ProtocolVersion: protocol.ProtocolVersion1,
		SessionID:       s.sessionID,
		AudioIn:         s.hello.AudioIn,
		Features: protocol.HelloAckFeatures{
			SpeechInput:  s.capture.Supported(),
			SpeechOutput: s.speechOutput,
			Boards:       signedIn && s.boards != nil,
			SavedChats:   signedIn && s.chats != nil,
		},
		Limits: limits,
	})
}

func (s *LiveSession) sendState(snap turn.Snapshot) error {
	return s.sendJSON(protocol.ServerState{Type: "state", State: string(snap.State), Provider: snap.Provider, Muted: snap.Muted})
}

func (s *LiveSession) sendWarning(code, message string) error {
	return s.sendJSON(protocol.ServerWarning{Type: "warning", Code: code, Message: message})
}

func (s *LiveSession) sendSessionError(code, message string, close bool, details map[string]any) error {
	msg := protocol.ServerError{Type: "error", Scope: "session", Code: code, Message: message, Close: close, Details: details}
	if close {
		return s.sendJSONPriority(msg)
	}
	return s.sendJSON(msg)
}

func (s *LiveSession) sendJSON(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.enqueueNormal(outboundFrame{textPayload: payload})
}

func (s *LiveSession) sendJSONPriority(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.enqueuePriority(outboundFrame{textPayload: payload})
}

func (s *LiveSession) sendAudioJSON(audioID string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.enqueueNormal(outboundFrame{isAudio: true, audioID: audioID, textPayload: payload})
}

func (s *LiveSession) sendAudioBinary(audioID string, data []byte) error {
	buf := make([]byte, len(data))
	copy(buf, data)
	return s.enqueueNormal(outboundFrame{isAudio: true, audioID: audioID, binaryPayload: buf})
}

func (s *LiveSession) enqueueNormal(frame outboundFrame) error {
	if frame.isAudio && s.isAudioCanceled(frame.audioID) {
		return nil
	}
	select {
	case s.outboundNormal <- frame:
		return nil
	default:
		return errBackpressure
	}
}

func (s *LiveSession) enqueuePriority(frame outboundFrame) error {
	for i := 0; i < 4; i++ {
		select {
		case s.outboundPriority <- frame:
			return nil
		default:
		}
		select {
		case <-s.outboundPriority:
		default:
		}
	}
	select {
	case s.outboundPriority <- frame:
		return nil
	default:
		return errBackpressure
	}
}

func (s *LiveSession) readLoop(out chan<- inboundFrame) {
	defer close(out)
	for {
		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case out <- inboundFrame{err: err}:
			case <-s.ctx.Done():
			}
			return
		}
		select {
		case out <- inboundFrame{messageType: messageType, data: data}:
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *LiveSession) nextAudioID() string {
	n := s.audioCounter.Add(1)
	return fmt.Sprintf("a_%d", n)
}

func (s *LiveSession) Cancel() {
	if s == nil || s.cancel == nil {
		return
	}
	s.cancel()
}

func (s *LiveSession) SendWarning(code, message string) error {
	if s == nil {
		return nil
	}
	return s.sendWarning(code, message)
}

// cancelAudio records audioID so the writer skips its queued frames. Callers hold audioMu.
func (s *LiveSession) cancelAudio(audioID string) {
	audioID = strings.TrimSpace(audioID)
	if audioID == "" {
		return
	}
	state, ok := s.canceledAudio.Load().(canceledAudioState)
	if !ok {
		state = canceledAudioState{set: make(map[string]struct{})}
	}
	if _, exists := state.set[audioID]; exists {
		return
	}

	nextSet := make(map[string]struct{}, len(state.set)+1)
	for k := range state.set {
		nextSet[k] = struct{}{}
	}
	nextOrder := append(append(make([]string, 0, len(state.order)+1), state.order...), audioID)
	nextSet[audioID] = struct{}{}
	for len(nextOrder) > maxCanceledAudioIDs {
		delete(nextSet, nextOrder[0])
		nextOrder = nextOrder[1:]
	}
	s.canceledAudio.Store(canceledAudioState{set: nextSet, order: nextOrder})
}

func (s *LiveSession) isAudioCanceled(audioID string) bool {
	audioID = strings.TrimSpace(audioID)
	if audioID == "" {
		return false
	}
	state, ok := s.canceledAudio.Load().(canceledAudioState)
	if !ok || state.set == nil {
		return false
	}
	_, exists := state.set[audioID]
	return exists
}
