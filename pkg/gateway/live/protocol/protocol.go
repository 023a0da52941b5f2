// Package protocol defines the JSON frames exchanged on /v1/live. Microphone audio travels
// client to server as raw binary frames; reply audio travels server to client as binary
// frames between audio_start and audio_end.
package protocol

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/vango-go/poppy/pkg/core/types"
)

const (
	ProtocolVersion1 = "1"

	EncodingPCM16LE = "pcm_s16le"
)

// Playback events reported by the client's audio element.
const (
	PlaybackLoaded   = "loaded"
	PlaybackPlaying  = "playing"
	PlaybackRejected = "rejected"
	PlaybackPaused   = "paused"
	PlaybackEnded    = "ended"
)

type DecodeError struct {
	Code    string
	Message string
	Param   string
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	if strings.TrimSpace(e.Param) == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Param)
}

func badRequest(message, param string) *DecodeError {
	return &DecodeError{Code: "bad_request", Message: message, Param: param}
}

func unsupported(message, param string) *DecodeError {
	return &DecodeError{Code: "unsupported", Message: message, Param: param}
}

// AudioFormat describes the microphone stream.
type AudioFormat struct {
	Encoding     string `json:"encoding"`
	SampleRateHz int    `json:"sample_rate_hz"`
	Channels     int    `json:"channels"`
}

type HelloClient struct {
	Name     string `json:"name,omitempty"`
	Version  string `json:"version,omitempty"`
	Platform string `json:"platform,omitempty"`
}

type ClientHello struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	Client          HelloClient `json:"client,omitempty"`
	// Token is a session token for clients that cannot send cookies or headers on upgrade.
	Token    string         `json:"token,omitempty"`
	Locale   string         `json:"locale,omitempty"`
	Provider types.Provider `json:"provider,omitempty"`
	Muted    bool           `json:"muted,omitempty"`
	AudioIn  AudioFormat    `json:"audio_in"`
	BoardIDs []string       `json:"board_ids,omitempty"`
	ChatID   string         `json:"chat_id,omitempty"`
}

func (h ClientHello) RedactedForLog() map[string]any {
	return map[string]any{
		"type":             h.Type,
		"protocol_version": h.ProtocolVersion,
		"client":           h.Client,
		"locale":           h.Locale,
		"provider":         h.Provider,
		"muted":            h.Muted,
		"audio_in":         h.AudioIn,
		"board_count":      len(h.BoardIDs),
		"has_chat":         strings.TrimSpace(h.ChatID) != "",
		"has_token":        strings.TrimSpace(h.Token) != "",
	}
}

type ClientMicTap struct {
	Type string `json:"type"`
}

type ClientInterrupt struct {
	Type string `json:"type"`
}

type ClientSetProvider struct {
	Type     string         `json:"type"`
	Provider types.Provider `json:"provider"`
}

type ClientSetMuted struct {
	Type  string `json:"type"`
	Muted bool   `json:"muted"`
}

type ClientSelectBoards struct {
	Type     string   `json:"type"`
	BoardIDs []string `json:"board_ids"`
}

type ClientSetContent struct {
	Type  string             `json:"type"`
	Links []string           `json:"links"`
	Docs  []types.ContentDoc `json:"docs"`
}

type ClientLoadChat struct {
	Type   string `json:"type"`
	ChatID string `json:"chat_id"`
}

type ClientStartExperience struct {
	Type string `json:"type"`
}

// ClientPlayback reports an audio element event for a clip sent with audio_start.
type ClientPlayback struct {
	Type       string `json:"type"`
	AudioID    string `json:"audio_id"`
	Event      string `json:"event"`
	PositionMS int64  `json:"position_ms,omitempty"`
	DurationMS int64  `json:"duration_ms,omitempty"`
	Error      string `json:"error,omitempty"`
}

func DecodeClientMessage(data []byte) (any, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, badRequest("invalid json frame", "")
	}
	typ := strings.TrimSpace(envelope.Type)
	if typ == "" {
		return nil, badRequest("missing type", "type")
	}

	switch typ {
	case "hello":
		var msg ClientHello
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid hello frame", "")
		}
		if err := ValidateHello(msg); err != nil {
			return nil, err
		}
		return msg, nil
	case "mic_tap":
		return ClientMicTap{Type: typ}, nil
	case "interrupt":
		return ClientInterrupt{Type: typ}, nil
	case "start_experience":
		return ClientStartExperience{Type: typ}, nil
	case "set_provider":
		var msg ClientSetProvider
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid set_provider", "")
		}
		p, err := types.ParseProvider(string(msg.Provider))
		if err != nil || strings.TrimSpace(string(msg.Provider)) == "" {
			return nil, unsupported("set_provider.provider must be openai or claude", "provider")
		}
		msg.Provider = p
		return msg, nil
	case "set_muted":
		var msg ClientSetMuted
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid set_muted", "")
		}
		return msg, nil
	case "select_boards":
		var msg ClientSelectBoards
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid select_boards", "")
		}
		for i, id := range msg.BoardIDs {
			if strings.TrimSpace(id) == "" {
				return nil, badRequest("select_boards.board_ids entries must be non-empty", fmt.Sprintf("board_ids[%d]", i))
			}
		}
		return msg, nil
	case "set_content":
		var msg ClientSetContent
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid set_content", "")
		}
		return msg, nil
	case "load_chat":
		var msg ClientLoadChat
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid load_chat", "")
		}
		if strings.TrimSpace(msg.ChatID) == "" {
			return nil, badRequest("load_chat.chat_id is required", "chat_id")
		}
		return msg, nil
	case "playback":
		var msg ClientPlayback
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid playback", "")
		}
		if strings.TrimSpace(msg.AudioID) == "" {
			return nil, badRequest("playback.audio_id is required", "audio_id")
		}
		switch msg.Event {
		case PlaybackLoaded, PlaybackPlaying, PlaybackRejected, PlaybackPaused, PlaybackEnded:
		default:
			return nil, unsupported("unsupported playback event", "event")
		}
		if msg.PositionMS < 0 {
			return nil, badRequest("playback.position_ms must be >= 0", "position_ms")
		}
		if msg.DurationMS < 0 {
			return nil, badRequest("playback.duration_ms must be >= 0", "duration_ms")
		}
		return msg, nil
	default:
		return nil, badRequest("unsupported message type", "type")
	}
}

func ValidateHello(msg ClientHello) error {
	if strings.TrimSpace(msg.ProtocolVersion) == "" {
		return badRequest("hello.protocol_version is required", "protocol_version")
	}
	if msg.ProtocolVersion != ProtocolVersion1 {
		return unsupported("unsupported protocol_version", "protocol_version")
	}
	if strings.TrimSpace(string(msg.Provider)) != "" {
		if _, err := types.ParseProvider(string(msg.Provider)); err != nil {
			return unsupported("hello.provider must be openai or claude", "provider")
		}
	}
	if strings.TrimSpace(msg.AudioIn.Encoding) == "" {
		return badRequest("hello.audio_in.encoding is required", "audio_in.encoding")
	}
	if msg.AudioIn.Encoding != EncodingPCM16LE {
		return unsupported("hello.audio_in.encoding must be pcm_s16le", "audio_in.encoding")
	}
	if msg.AudioIn.SampleRateHz <= 0 {
		return badRequest("hello.audio_in.sample_rate_hz must be > 0", "audio_in.sample_rate_hz")
	}
	if msg.AudioIn.Channels != 1 {
		return unsupported("hello.audio_in.channels must be 1", "audio_in.channels")
	}
	return nil
}

type HelloAckLimits struct {
	MaxAudioFrameBytes  int   `json:"max_audio_frame_bytes"`
	MaxJSONMessageBytes int   `json:"max_json_message_bytes"`
	MaxAudioFPS         int   `json:"max_audio_fps,omitempty"`
	MaxAudioBPS         int64 `json:"max_audio_bps,omitempty"`
	InboundBurstSeconds int   `json:"inbound_burst_seconds,omitempty"`
	MaxSessionMS        int64 `json:"max_session_ms,omitempty"`
}

type HelloAckFeatures struct {
	SpeechInput  bool `json:"speech_input"`
	SpeechOutput bool `json:"speech_output"`
	Boards       bool `json:"boards"`
	SavedChats   bool `json:"saved_chats"`
}

type ServerHelloAck struct {
	Type            string           `json:"type"`
	ProtocolVersion string           `json:"protocol_version"`
	SessionID       string           `json:"session_id"`
	AudioIn         AudioFormat      `json:"audio_in"`
	Features        HelloAckFeatures `json:"features"`
	Limits          *HelloAckLimits  `json:"limits,omitempty"`
}

type ServerState struct {
	Type     string         `json:"type"`
	State    string         `json:"state"`
	Provider types.Provider `json:"provider"`
	Muted    bool           `json:"muted"`
}

type ServerTranscript struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type ServerMessageAppend struct {
	Type    string        `json:"type"`
	Index   int           `json:"index"`
	Message types.Message `json:"message"`
}

type ServerMessageUpdate struct {
	Type    string        `json:"type"`
	Index   int           `json:"index"`
	Message types.Message `json:"message"`
}

type ServerMessages struct {
	Type     string          `json:"type"`
	Messages []types.Message `json:"messages"`
}

type ServerAudioStart struct {
	Type        string `json:"type"`
	AudioID     string `json:"audio_id"`
	ContentType string `json:"content_type"`
	Format      string `json:"format,omitempty"`
	Bytes       int    `json:"bytes"`
	Chunks      int    `json:"chunks"`
}

type ServerAudioEnd struct {
	Type    string `json:"type"`
	AudioID string `json:"audio_id"`
}

// ServerAudioCommand is audio_play, audio_pause or audio_stop.
type ServerAudioCommand struct {
	Type    string `json:"type"`
	AudioID string `json:"audio_id"`
}

type ServerVisualizer struct {
	Type    string `json:"type"`
	Active  bool   `json:"active"`
	AudioID string `json:"audio_id,omitempty"`
}

type ServerNotice struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ServerTurnComplete struct {
	Type        string        `json:"type"`
	Index       int           `json:"index"`
	Message     types.Message `json:"message"`
	Interrupted bool          `json:"interrupted"`
}

type ServerError struct {
	Type      string         `json:"type"`
	Scope     string         `json:"scope,omitempty"`
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Retryable bool           `json:"retryable,omitempty"`
	Close     bool           `json:"close,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

type ServerWarning struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}
