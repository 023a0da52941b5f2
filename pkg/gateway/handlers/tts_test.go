package handlers

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/vango-go/poppy/pkg/core/voice/tts"
)

type fakeSynth struct {
	audio []byte
	err   error
	text  string
	opts  tts.SynthesizeOptions
}

func (f *fakeSynth) Name() string { return "fake" }

func (f *fakeSynth) Synthesize(_ context.Context, text string, opts tts.SynthesizeOptions) (*tts.Synthesis, error) {
	f.text, f.opts = text, opts
	if f.err != nil {
		return nil, f.err
	}
	return &tts.Synthesis{Audio: f.audio, ContentType: "audio/mpeg", Format: "mp3"}, nil
}

func TestTTSHandler_ReturnsAudio(t *testing.T) {
	synth := &fakeSynth{audio: []byte("ID3-mp3-bytes")}
	h := TTSHandler{Config: testConfig(), TTS: synth, Options: tts.SynthesizeOptions{Voice: "v1", Format: "mp3"}}

	rr := serve(h, newJSONRequest(http.MethodPost, "/v1/tts", `{"text":"hello there"}`))
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); ct != "audio/mpeg" {
		t.Fatalf("content-type=%q", ct)
	}
	if cc := rr.Header().Get("Cache-Control"); cc != "no-store" {
		t.Fatalf("cache-control=%q", cc)
	}
	if rr.Body.String() != "ID3-mp3-bytes" {
		t.Fatalf("body=%q", rr.Body.String())
	}
	if synth.text != "hello there" || synth.opts.Voice != "v1" {
		t.Fatalf("synth text=%q opts=%+v", synth.text, synth.opts)
	}
}

func TestTTSHandler_MissingText(t *testing.T) {
	h := TTSHandler{Config: testConfig(), TTS: &fakeSynth{}}
	rr := serve(h, newJSONRequest(http.MethodPost, "/v1/tts", `{"text":"  "}`))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status=%d", rr.Code)
	}
}

func TestTTSHandler_NotConfiguredAndFailure(t *testing.T) {
	rr := serve(TTSHandler{Config: testConfig()}, newJSONRequest(http.MethodPost, "/v1/tts", `{"text":"hi"}`))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("unconfigured status=%d", rr.Code)
	}

	h := TTSHandler{Config: testConfig(), TTS: &fakeSynth{err: errors.New("quota")}}
	rr = serve(h, newJSONRequest(http.MethodPost, "/v1/tts", `{"text":"hi"}`))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("failure status=%d", rr.Code)
	}
}
