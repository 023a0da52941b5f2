package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/vango-go/poppy/pkg/core"
)

const (
	elevenLabsDefaultBaseURL = "https://api.elevenlabs.io"
	elevenLabsDefaultModel   = "eleven_multilingual_v2"

	defaultStability       = 0.4
	defaultSimilarityBoost = 0.9

	// Upstream bodies are echoed into logs; cap them.
	maxErrorBodyBytes = 4 << 10
)

// ElevenLabsProvider calls the ElevenLabs streaming text-to-speech endpoint and buffers the
// full clip.
type ElevenLabsProvider struct {
	apiKey     string
	voiceID    string
	httpClient *http.Client
	baseURL    string
}

func NewElevenLabs(apiKey, voiceID string) *ElevenLabsProvider {
	return NewElevenLabsWithClient(apiKey, voiceID, nil)
}

func NewElevenLabsWithClient(apiKey, voiceID string, client *http.Client) *ElevenLabsProvider {
	if client == nil {
		client = &http.Client{}
	}
	return &ElevenLabsProvider{
		apiKey:     strings.TrimSpace(apiKey),
		voiceID:    strings.TrimSpace(voiceID),
		httpClient: client,
		baseURL:    elevenLabsDefaultBaseURL,
	}
}

// WithBaseURL overrides the API origin.
func (e *ElevenLabsProvider) WithBaseURL(base string) *ElevenLabsProvider {
	if e == nil {
		return e
	}
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	if base != "" {
		e.baseURL = base
	}
	return e
}

func (e *ElevenLabsProvider) Name() string {
	return "elevenlabs"
}

// Configured reports whether both the api key and a voice are set.
func (e *ElevenLabsProvider) Configured() bool {
	return e != nil && e.apiKey != "" && e.voiceID != ""
}

type elevenLabsRequest struct {
	Text          string                  `json:"text"`
	ModelID       string                  `json:"model_id"`
	VoiceSettings elevenLabsVoiceSettings `json:"voice_settings"`
}

type elevenLabsVoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

func (e *ElevenLabsProvider) Synthesize(ctx context.Context, text string, opts SynthesizeOptions) (*Synthesis, error) {
	if e == nil {
		return nil, core.NewNotConfiguredError("elevenlabs tts")
	}
	voiceID := firstNonEmpty(opts.Voice, e.voiceID)
	if e.apiKey == "" || voiceID == "" {
		return nil, core.NewNotConfiguredError("elevenlabs tts")
	}
	if strings.TrimSpace(text) == "" {
		return nil, core.NewInvalidRequestErrorWithParam("text is required", "text")
	}

	body := elevenLabsRequest{
		Text:    text,
		ModelID: firstNonEmpty(opts.Model, elevenLabsDefaultModel),
		VoiceSettings: elevenLabsVoiceSettings{
			Stability:       orDefault(opts.Stability, defaultStability),
			SimilarityBoost: orDefault(opts.SimilarityBoost, defaultSimilarityBoost),
		},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode elevenlabs request: %w", err)
	}

	endpoint := e.baseURL + "/v1/text-to-speech/" + url.PathEscape(voiceID) + "/stream"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create elevenlabs request: %w", err)
	}
	req.Header.Set("xi-api-key", e.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, core.NewProviderError(e.Name(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return nil, core.NewProviderError(e.Name(), fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, core.NewProviderError(e.Name(), fmt.Errorf("read audio: %w", err))
	}
	if len(audio) == 0 {
		return nil, core.NewProviderError(e.Name(), fmt.Errorf("empty audio response"))
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "audio/mpeg"
	}
	return &Synthesis{
		Audio:       audio,
		ContentType: contentType,
		Format:      getFormat(opts.Format),
	}, nil
}

func getFormat(format string) string {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "wav", "pcm":
		return strings.ToLower(strings.TrimSpace(format))
	default:
		return "mp3"
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func orDefault(v, def float64) float64 {
	if v <= 0 {
		return def
	}
	return v
}
