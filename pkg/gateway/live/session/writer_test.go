package session

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type recordedWrite struct {
	messageType int
	data        string
}

type fakeWSWriter struct {
	mu     sync.Mutex
	writes []recordedWrite
	closed bool
}

func (f *fakeWSWriter) SetWriteDeadline(time.Time) error { return nil }

func (f *fakeWSWriter) WriteMessage(messageType int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, recordedWrite{messageType: messageType, data: string(data)})
	return nil
}

func (f *fakeWSWriter) WriteControl(messageType int, data []byte, deadline time.Time) error {
	_ = deadline
	return f.WriteMessage(messageType, data)
}

func (f *fakeWSWriter) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeWSWriter) snapshot() []recordedWrite {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]recordedWrite, len(f.writes))
	copy(out, f.writes)
	return out
}

func runWriter(t *testing.T, ctx context.Context, priority, normal chan outboundFrame, isCanceled func(string) bool) *fakeWSWriter {
	t.Helper()
	ws := &fakeWSWriter{}
	w := outboundWriter{
		ws:         ws,
		ctx:        ctx,
		cfg:        Config{PingInterval: time.Hour, WriteTimeout: time.Second},
		priority:   priority,
		normal:     normal,
		isCanceled: isCanceled,
	}
	if err := w.Run(); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	return ws
}

func TestOutboundWriter_PriorityBeatsNormal(t *testing.T) {
	priority := make(chan outboundFrame, 1)
	normal := make(chan outboundFrame, 1)

	normal <- outboundFrame{isAudio: true, audioID: "a_1", binaryPayload: []byte{1, 2, 3}}
	priority <- outboundFrame{textPayload: []byte(`{"type":"audio_stop","audio_id":"a_1"}`)}
	close(priority)
	close(normal)

	writes := runWriter(t, context.Background(), priority, normal, nil).snapshot()
	if len(writes) != 2 {
		t.Fatalf("expected 2 writes, got %+v", writes)
	}
	if !strings.Contains(writes[0].data, `"type":"audio_stop"`) {
		t.Fatalf("first write was not audio_stop: %q", writes[0].data)
	}
	if writes[1].messageType != websocket.BinaryMessage {
		t.Fatalf("second write type=%d, want BinaryMessage", writes[1].messageType)
	}
}

func TestOutboundWriter_CanceledAudioDropped(t *testing.T) {
	priority := make(chan outboundFrame, 1)
	normal := make(chan outboundFrame, 8)

	normal <- outboundFrame{isAudio: true, audioID: "a_1", textPayload: []byte(`{"type":"audio_start","audio_id":"a_1"}`)}
	normal <- outboundFrame{isAudio: true, audioID: "a_1", binaryPayload: []byte{0x01, 0x02}}
	normal <- outboundFrame{isAudio: true, audioID: "a_1", textPayload: []byte(`{"type":"audio_end","audio_id":"a_1"}`)}
	normal <- outboundFrame{isAudio: true, audioID: "a_2", binaryPayload: []byte{0x03}}
	close(priority)
	close(normal)

	writes := runWriter(t, context.Background(), priority, normal, func(id string) bool { return id == "a_1" }).snapshot()
	if len(writes) != 1 {
		t.Fatalf("expected only a_2 to be written, got %d: %+v", len(writes), writes)
	}
	if writes[0].data != "\x03" {
		t.Fatalf("unexpected write %+v", writes[0])
	}
}

func TestOutboundWriter_NonAudioUnaffectedByCancelSet(t *testing.T) {
	priority := make(chan outboundFrame, 1)
	normal := make(chan outboundFrame, 8)

	normal <- outboundFrame{textPayload: []byte(`{"type":"warning","code":"x","message":"y"}`)}
	normal <- outboundFrame{textPayload: []byte(`{"type":"transcript","text":"hello"}`)}
	close(priority)
	close(normal)

	writes := runWriter(t, context.Background(), priority, normal, func(string) bool { return true }).snapshot()
	if len(writes) != 2 {
		t.Fatalf("expected 2 writes, got %d: %+v", len(writes), writes)
	}
	for _, w := range writes {
		if w.messageType != websocket.TextMessage {
			t.Fatalf("write type=%d, want TextMessage", w.messageType)
		}
	}
}

func TestOutboundWriter_FlushesPriorityOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	priority := make(chan outboundFrame, 1)
	normal := make(chan outboundFrame, 1)
	priority <- outboundFrame{textPayload: []byte(`{"type":"error","code":"backpressure","close":true}`)}
	close(priority)
	close(normal)

	cancel()
	ws := runWriter(t, ctx, priority, normal, nil)

	writes := ws.snapshot()
	if len(writes) < 2 || !strings.Contains(writes[0].data, `"code":"backpressure"`) {
		t.Fatalf("expected error to flush before close, writes=%+v", writes)
	}
	if writes[len(writes)-1].messageType != websocket.CloseMessage {
		t.Fatalf("last write type=%d, want CloseMessage", writes[len(writes)-1].messageType)
	}
	if !ws.closed {
		t.Fatalf("expected socket to be closed")
	}
}
