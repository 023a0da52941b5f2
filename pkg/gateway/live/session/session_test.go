package session

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vango-go/poppy/pkg/core/turn"
	"github.com/vango-go/poppy/pkg/core/types"
	"github.com/vango-go/poppy/pkg/core/voice/tts"
	"github.com/vango-go/poppy/pkg/gateway/live/protocol"
	"github.com/vango-go/poppy/pkg/store/memory"
)

type inboundMessage struct {
	messageType int
	data        []byte
}

// fakeConn is an in-memory socket. Frames written by the session are delivered on out.
type fakeConn struct {
	in  chan inboundMessage
	out chan recordedWrite

	closeOnce sync.Once
	closed    chan struct{}
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:     make(chan inboundMessage, 64),
		out:    make(chan recordedWrite, 1024),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case m, ok := <-c.in:
		if !ok {
			return 0, nil, &websocket.CloseError{Code: websocket.CloseNormalClosure}
		}
		return m.messageType, m.data, nil
	case <-c.closed:
		return 0, nil, errors.New("use of closed connection")
	}
}

func (c *fakeConn) SetReadLimit(int64)                        {}
func (c *fakeConn) SetReadDeadline(time.Time) error           { return nil }
func (c *fakeConn) SetPongHandler(func(string) error)         {}
func (c *fakeConn) SetWriteDeadline(time.Time) error          { return nil }
func (c *fakeConn) WriteControl(int, []byte, time.Time) error { return nil }

func (c *fakeConn) WriteMessage(messageType int, data []byte) error {
	select {
	case c.out <- recordedWrite{messageType: messageType, data: string(data)}:
		return nil
	case <-c.closed:
		return errors.New("use of closed connection")
	}
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

type fakeReplies struct {
	reply string
}

func (f fakeReplies) GenerateReply(context.Context, []types.Message, types.Provider, types.ReferenceContext) string {
	return f.reply
}

type fakeTTS struct {
	audio []byte
}

func (f fakeTTS) Name() string { return "fake" }

func (f fakeTTS) Synthesize(context.Context, string, tts.SynthesizeOptions) (*tts.Synthesis, error) {
	return &tts.Synthesis{Audio: f.audio, ContentType: "audio/mpeg", Format: "mp3"}, nil
}

type liveHarness struct {
	t    *testing.T
	conn *fakeConn
	s    *LiveSession
	done chan error
}

func testHello() protocol.ClientHello {
	return protocol.ClientHello{
		Type:            "hello",
		ProtocolVersion: protocol.ProtocolVersion1,
		AudioIn:         protocol.AudioFormat{Encoding: protocol.EncodingPCM16LE, SampleRateHz: 16000, Channels: 1},
	}
}

func startSession(t *testing.T, deps Dependencies) *liveHarness {
	t.Helper()
	if deps.Replies == nil {
		deps.Replies = fakeReplies{reply: "sure thing"}
	}
	if deps.Hello.Type == "" {
		deps.Hello = testHello()
	}
	if deps.SessionID == "" {
		deps.SessionID = "live_test"
	}
	deps.Config.PingInterval = time.Hour
	deps.Config.WriteTimeout = time.Second
	if deps.Config.MetadataWait == 0 {
		deps.Config.MetadataWait = 2 * time.Second
	}
	if deps.Config.MaxAudioFrameBytes == 0 {
		deps.Config.MaxAudioFrameBytes = 64
	}
	conn := newFakeConn()
	s, err := newSession(conn, deps)
	if err != nil {
		t.Fatalf("newSession() error = %v", err)
	}
	h := &liveHarness{t: t, conn: conn, s: s, done: make(chan error, 1)}
	go func() { h.done <- s.Run() }()
	t.Cleanup(func() {
		s.Cancel()
		select {
		case <-h.done:
		case <-time.After(5 * time.Second):
			t.Errorf("session did not stop")
		}
	})
	return h
}

func (h *liveHarness) send(v any) {
	h.t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		h.t.Fatalf("marshal: %v", err)
	}
	h.conn.in <- inboundMessage{messageType: websocket.TextMessage, data: data}
}

func (h *liveHarness) sendRaw(messageType int, data []byte) {
	h.conn.in <- inboundMessage{messageType: messageType, data: data}
}

// next returns the next text frame of the given type, skipping others. Binary frames are
// counted in binaries.
func (h *liveHarness) next(typ string) map[string]any {
	h.t.Helper()
	timeout := time.After(3 * time.Second)
	for {
		select {
		case w := <-h.conn.out:
			if w.messageType != websocket.TextMessage {
				continue
			}
			var m map[string]any
			if err := json.Unmarshal([]byte(w.data), &m); err != nil {
				h.t.Fatalf("invalid frame %q: %v", w.data, err)
			}
			if m["type"] == typ {
				return m
			}
		case <-timeout:
			h.t.Fatalf("timed out waiting for %q frame", typ)
			return nil
		}
	}
}

func (h *liveHarness) wait() error {
	h.t.Helper()
	select {
	case err := <-h.done:
		h.done <- err
		return err
	case <-time.After(3 * time.Second):
		h.t.Fatalf("session did not finish")
		return nil
	}
}

func TestLiveSession_HelloAckAndInitialState(t *testing.T) {
	hello := testHello()
	hello.Provider = types.ProviderOpenAI
	hello.Muted = true
	h := startSession(t, Dependencies{Hello: hello, Config: Config{DefaultProvider: types.ProviderClaude}})

	ack := h.next("hello_ack")
	if ack["session_id"] != "live_test" || ack["protocol_version"] != "1" {
		t.Fatalf("hello_ack=%v", ack)
	}
	features := ack["features"].(map[string]any)
	if features["speech_input"] != false || features["speech_output"] != false || features["boards"] != false {
		t.Fatalf("features=%v", features)
	}

	state := h.next("state")
	if state["state"] != string(turn.StateIdle) || state["provider"] != "openai" || state["muted"] != true {
		t.Fatalf("state=%v", state)
	}
}

func TestLiveSession_MicTapWithoutRecognizerSendsNotice(t *testing.T) {
	h := startSession(t, Dependencies{})
	h.next("hello_ack")

	h.send(protocol.ClientMicTap{Type: "mic_tap"})
	notice := h.next("notice")
	if notice["code"] != turn.NoticeCaptureUnsupported {
		t.Fatalf("notice=%v", notice)
	}
}

func TestLiveSession_StartExperienceThenInterruptRevealsIntro(t *testing.T) {
	h := startSession(t, Dependencies{})
	h.next("hello_ack")

	h.send(protocol.ClientStartExperience{Type: "start_experience"})
	appended := h.next("message_append")
	msg := appended["message"].(map[string]any)
	if msg["role"] != string(types.RoleAssistant) {
		t.Fatalf("appended=%v", appended)
	}

	h.send(protocol.ClientInterrupt{Type: "interrupt"})
	done := h.next("turn_complete")
	if done["interrupted"] != true {
		t.Fatalf("turn_complete=%v", done)
	}
	final := done["message"].(map[string]any)
	if final["content"] != turn.IntroText {
		t.Fatalf("final content=%q", final["content"])
	}
}

func TestLiveSession_SpeaksThroughClientAudioElement(t *testing.T) {
	clip := make([]byte, 100)
	h := startSession(t, Dependencies{
		TTS:    fakeTTS{audio: clip},
		Config: Config{AudioChunkBytes: 40},
	})
	ack := h.next("hello_ack")
	if ack["features"].(map[string]any)["speech_output"] != true {
		t.Fatalf("hello_ack=%v", ack)
	}

	h.send(protocol.ClientStartExperience{Type: "start_experience"})

	start := h.next("audio_start")
	id := start["audio_id"].(string)
	if start["bytes"] != float64(100) || start["chunks"] != float64(3) || start["content_type"] != "audio/mpeg" {
		t.Fatalf("audio_start=%v", start)
	}
	h.next("audio_end")
	h.send(protocol.ClientPlayback{Type: "playback", AudioID: id, Event: protocol.PlaybackLoaded, DurationMS: 4000})

	play := h.next("audio_play")
	if play["audio_id"] != id {
		t.Fatalf("audio_play=%v", play)
	}
	h.send(protocol.ClientPlayback{Type: "playback", AudioID: id, Event: protocol.PlaybackPlaying})

	vis := h.next("visualizer")
	if vis["active"] != true || vis["audio_id"] != id {
		t.Fatalf("visualizer=%v", vis)
	}
	if snap := h.s.orch.Snapshot(); snap.State != turn.StateSpeaking {
		t.Fatalf("state=%v", snap.State)
	}

	h.send(protocol.ClientInterrupt{Type: "interrupt"})
	stop := h.next("audio_stop")
	if stop["audio_id"] != id {
		t.Fatalf("audio_stop=%v", stop)
	}
	if done := h.next("turn_complete"); done["interrupted"] != true {
		t.Fatalf("turn_complete=%v", done)
	}
}

func TestLiveSession_LoadChat(t *testing.T) {
	chats := memory.NewChats()
	saved, err := chats.Save(context.Background(), "user_1", "Hooks", []types.Message{
		{Role: types.RoleUser, Content: "hi"},
		{Role: types.RoleAssistant, Content: "hello!", Provider: types.ProviderClaude},
	})
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	h := startSession(t, Dependencies{Chats: chats, UserID: "user_1"})
	h.next("hello_ack")

	h.send(protocol.ClientLoadChat{Type: "load_chat", ChatID: "missing"})
	errFrame := h.next("error")
	if errFrame["code"] != "not_found" || errFrame["close"] == true {
		t.Fatalf("error=%v", errFrame)
	}

	h.send(protocol.ClientLoadChat{Type: "load_chat", ChatID: saved.ID})
	msgs := h.next("messages")["messages"].([]any)
	if len(msgs) != 2 || msgs[1].(map[string]any)["content"] != "hello!" {
		t.Fatalf("messages=%v", msgs)
	}
}

func TestLiveSession_BoardsRequireUser(t *testing.T) {
	h := startSession(t, Dependencies{Boards: memory.NewBoards()})
	h.next("hello_ack")

	h.send(protocol.ClientSelectBoards{Type: "select_boards", BoardIDs: []string{"b1"}})
	if w := h.next("warning"); w["code"] != "boards_unavailable" {
		t.Fatalf("warning=%v", w)
	}
}

func TestLiveSession_InvalidFrameClosesSession(t *testing.T) {
	h := startSession(t, Dependencies{})
	h.next("hello_ack")

	h.sendRaw(websocket.TextMessage, []byte(`{"type":"nope"}`))
	errFrame := h.next("error")
	if errFrame["code"] != "bad_request" || errFrame["close"] != true {
		t.Fatalf("error=%v", errFrame)
	}
	if err := h.wait(); err != nil {
		t.Fatalf("Run() error = %v, want nil for a reported protocol error", err)
	}
}

func TestLiveSession_OversizedMicFrameCloses(t *testing.T) {
	h := startSession(t, Dependencies{})
	h.next("hello_ack")

	h.sendRaw(websocket.BinaryMessage, make([]byte, 65))
	errFrame := h.next("error")
	if !strings.Contains(errFrame["message"].(string), "exceeds max size") {
		t.Fatalf("error=%v", errFrame)
	}
	if err := h.wait(); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
}

func TestLiveSession_MicRateLimitCloses(t *testing.T) {
	h := startSession(t, Dependencies{Config: Config{LiveMaxAudioFPS: 1, LiveInboundBurstSeconds: 1}})
	h.next("hello_ack")

	h.sendRaw(websocket.BinaryMessage, []byte{0, 0})
	h.sendRaw(websocket.BinaryMessage, []byte{0, 0})
	if errFrame := h.next("error"); errFrame["code"] != "rate_limited" {
		t.Fatalf("error=%v", errFrame)
	}
	if err := h.wait(); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
}

func TestLiveSession_ClientCloseEndsRun(t *testing.T) {
	h := startSession(t, Dependencies{})
	h.next("hello_ack")
	close(h.conn.in)
	if err := h.wait(); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
}

func TestLiveSession_CanceledAudioSetIsBounded(t *testing.T) {
	s := &LiveSession{}
	s.canceledAudio.Store(canceledAudioState{set: make(map[string]struct{})})
	for i := 0; i < maxCanceledAudioIDs+10; i++ {
		s.cancelAudio("a_" + strings.Repeat("x", i+1))
	}
	state := s.canceledAudio.Load().(canceledAudioState)
	if len(state.set) != maxCanceledAudioIDs || len(state.order) != maxCanceledAudioIDs {
		t.Fatalf("set=%d order=%d", len(state.set), len(state.order))
	}
	if s.isAudioCanceled("a_x") {
		t.Fatalf("oldest id should have been evicted")
	}
	if !s.isAudioCanceled("a_" + strings.Repeat("x", maxCanceledAudioIDs+10)) {
		t.Fatalf("newest id should be canceled")
	}
}

func TestNew_RequiresConnection(t *testing.T) {
	if _, err := New(Dependencies{Replies: fakeReplies{}}); err == nil {
		t.Fatalf("expected error without connection")
	}
	if _, err := newSession(newFakeConn(), Dependencies{}); err == nil {
		t.Fatalf("expected error without reply generator")
	}
}
