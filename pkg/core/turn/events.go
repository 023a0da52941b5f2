package turn

import "github.com/vango-go/poppy/pkg/core/types"

// State is the conversation state shown to the user.
type State string

const (
	StateIdle        State = "idle"
	StateListening   State = "listening"
	StateSending     State = "sending"
	StateSpeaking    State = "speaking_and_typing"
	StateInterrupted State = "interrupted"
)

// EventType names an orchestrator event.
type EventType string

const (
	EventStateChanged      EventType = "state_changed"
	EventTranscriptChanged EventType = "transcript_changed"
	EventMessageAppended   EventType = "message_appended"
	EventMessageUpdated    EventType = "message_updated"
	EventMessagesReplaced  EventType = "messages_replaced"
	EventNotice            EventType = "notice"
	EventTurnCompleted     EventType = "turn_completed"
)

// Notice codes.
const (
	NoticeCaptureUnsupported = "capture_unsupported"
	NoticeCaptureFailed      = "capture_failed"
)

// Snapshot is the state reported with EventStateChanged.
type Snapshot struct {
	State    State          `json:"state"`
	Provider types.Provider `json:"provider"`
	Muted    bool           `json:"muted"`
}

// Notice is a user-visible message that does not change the conversation.
type Notice struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Event is delivered to the Emitter. Only the fields relevant to Type are set.
type Event struct {
	Type        EventType
	Snapshot    Snapshot
	Transcript  string
	Index       int
	Message     types.Message
	Messages    []types.Message
	Notice      Notice
	Interrupted bool
}

// Emitter receives orchestrator events. Emit may be called from any goroutine and must not
// call back into the Orchestrator synchronously.
type Emitter interface {
	Emit(ev Event)
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(Event)

func (f EmitterFunc) Emit(ev Event) { f(ev) }

type nopEmitter struct{}

func (nopEmitter) Emit(Event) {}
