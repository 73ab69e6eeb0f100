package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type generateRequest struct {
	Contents []struct {
		Parts []struct {
			Text string `json:"text"`
		} `json:"parts"`
	} `json:"contents"`
	GenerationConfig struct {
		ResponseModalities []string `json:"responseModalities"`
		SpeechConfig       struct {
			VoiceConfig struct {
				PrebuiltVoiceConfig struct {
					VoiceName string `json:"voiceName"`
				} `json:"prebuiltVoiceConfig"`
			} `json:"voiceConfig"`
		} `json:"speechConfig"`
	} `json:"generationConfig"`
}

// startServer replies with one inline audio part of the given MIME type.
func startServer(t *testing.T, pcm []byte, mime string) (*httptest.Server, <-chan generateRequest) {
	t.Helper()
	reqs := make(chan generateRequest, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, ":generateContent") {
			t.Errorf("path = %q", r.URL.Path)
		}
		var body generateRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		reqs <- body
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{{
				"content": map[string]any{
					"role": "model",
					"parts": []map[string]any{{
						"inlineData": map[string]any{
							"mimeType": mime,
							"data":     base64.StdEncoding.EncodeToString(pcm),
						},
					}},
				},
			}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv, reqs
}

func TestSynthesize_DefaultVoice(t *testing.T) {
	t.Parallel()
	pcm := []byte{0x01, 0x00, 0xff, 0x7f}
	srv, reqs := startServer(t, pcm, "audio/L16;codec=pcm;rate=24000")

	p, err := New("test-key", WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	out, err := p.Synthesize(context.Background(), "Hello there", "")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if !bytes.Equal(out.PCM, pcm) {
		t.Errorf("PCM = %v; want %v", out.PCM, pcm)
	}
	if out.SampleRate != 24000 {
		t.Errorf("SampleRate = %d; want 24000", out.SampleRate)
	}

	body := <-reqs
	if len(body.Contents) != 1 || body.Contents[0].Parts[0].Text != "Hello there" {
		t.Errorf("contents = %+v", body.Contents)
	}
	if got := body.GenerationConfig.ResponseModalities; len(got) != 1 || got[0] != "AUDIO" {
		t.Errorf("responseModalities = %v", got)
	}
	if got := body.GenerationConfig.SpeechConfig.VoiceConfig.PrebuiltVoiceConfig.VoiceName; got != "Kore" {
		t.Errorf("voice = %q; want Kore", got)
	}
}

func TestSynthesize_ExplicitVoiceAndRate(t *testing.T) {
	t.Parallel()
	srv, reqs := startServer(t, []byte{0, 0}, "audio/L16;rate=16000")

	p, err := New("test-key", WithBaseURL(srv.URL), WithDefaultVoice("Puck"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	out, err := p.Synthesize(context.Background(), "hi", "Charon")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if out.SampleRate != 16000 {
		t.Errorf("SampleRate = %d; want 16000", out.SampleRate)
	}
	body := <-reqs
	if got := body.GenerationConfig.SpeechConfig.VoiceConfig.PrebuiltVoiceConfig.VoiceName; got != "Charon" {
		t.Errorf("voice = %q; want Charon", got)
	}
}

func TestSynthesize_NoAudio(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"sorry"}]}}]}`))
	}))
	t.Cleanup(srv.Close)

	p, err := New("test-key", WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.Synthesize(context.Background(), "hi", ""); err == nil {
		t.Fatal("expected error when response has no audio")
	}
}

func TestSynthesize_EmptyText(t *testing.T) {
	t.Parallel()
	p, err := New("test-key", WithBaseURL("http://127.0.0.1:1"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.Synthesize(context.Background(), "  ", ""); err == nil {
		t.Fatal("expected error for blank text")
	}
}

func TestRateFromMIME(t *testing.T) {
	t.Parallel()
	tests := []struct {
		mime string
		want int
	}{
		{"audio/L16;codec=pcm;rate=24000", 24000},
		{"audio/pcm; rate=16000", 16000},
		{"audio/L16", defaultSampleRate},
		{"audio/L16;rate=abc", defaultSampleRate},
		{"", defaultSampleRate},
	}
	for _, tt := range tests {
		if got := rateFromMIME(tt.mime); got != tt.want {
			t.Errorf("rateFromMIME(%q) = %d; want %d", tt.mime, got, tt.want)
		}
	}
}
