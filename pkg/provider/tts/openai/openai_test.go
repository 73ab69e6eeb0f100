package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

type speechRequest struct {
	Input          string `json:"input"`
	Model          string `json:"model"`
	Voice          string `json:"voice"`
	ResponseFormat string `json:"response_format"`
}

func startServer(t *testing.T, body []byte) (*httptest.Server, <-chan speechRequest) {
	t.Helper()
	reqs := make(chan speechRequest, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/audio/speech" {
			t.Errorf("path = %q", r.URL.Path)
		}
		var req speechRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		reqs <- req
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv, reqs
}

func TestSynthesize_RequestsPCM(t *testing.T) {
	t.Parallel()
	pcm := []byte{1, 0, 2, 0, 3, 0}
	srv, reqs := startServer(t, pcm)

	p, err := New("sk-test", WithBaseURL(srv.URL+"/v1/"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	out, err := p.Synthesize(context.Background(), "Hello", "")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if !bytes.Equal(out.PCM, pcm) || out.SampleRate != 24000 {
		t.Errorf("out = %+v", out)
	}

	req := <-reqs
	if req.Input != "Hello" || req.Model != "tts-1" || req.Voice != "alloy" || req.ResponseFormat != "pcm" {
		t.Errorf("request = %+v", req)
	}
}

func TestSynthesize_VoiceOverrideAndOddLength(t *testing.T) {
	t.Parallel()
	srv, reqs := startServer(t, []byte{1, 0, 2})

	p, err := New("sk-test", WithBaseURL(srv.URL+"/v1/"), WithDefaultVoice("nova"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	out, err := p.Synthesize(context.Background(), "Hi", "Shimmer")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if len(out.PCM) != 2 {
		t.Errorf("PCM length = %d; want trailing odd byte dropped", len(out.PCM))
	}
	if req := <-reqs; req.Voice != "shimmer" {
		t.Errorf("voice = %q; want shimmer", req.Voice)
	}
}

func TestSynthesize_ServerError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key"}}`))
	}))
	t.Cleanup(srv.Close)

	p, err := New("sk-test", WithBaseURL(srv.URL+"/v1/"), WithMaxRetries(0))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.Synthesize(context.Background(), "Hi", ""); err == nil {
		t.Fatal("expected error")
	}
}

func TestSynthesize_EmptyText(t *testing.T) {
	t.Parallel()
	p, _ := New("sk-test")
	if _, err := p.Synthesize(context.Background(), "", ""); err == nil {
		t.Fatal("expected error")
	}
}
