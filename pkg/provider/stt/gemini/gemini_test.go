package gemini

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// generateRequest is the subset of a generateContent body the tests inspect.
type generateRequest struct {
	Contents []struct {
		Role  string `json:"role"`
		Parts []struct {
			Text       string `json:"text"`
			InlineData *struct {
				MIMEType string `json:"mimeType"`
				Data     string `json:"data"`
			} `json:"inlineData"`
		} `json:"parts"`
	} `json:"contents"`
}

// startServer serves a single text candidate and forwards each decoded
// request body and path on the returned channels.
func startServer(t *testing.T, reply string) (*httptest.Server, <-chan generateRequest, <-chan string) {
	t.Helper()
	reqs := make(chan generateRequest, 1)
	paths := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body generateRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		paths <- r.URL.Path
		reqs <- body
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{{
				"content": map[string]any{
					"role":  "model",
					"parts": []map[string]any{{"text": reply}},
				},
			}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv, reqs, paths
}

func TestNew_MissingAPIKey(t *testing.T) {
	t.Parallel()
	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty API key")
	}
}

func TestTranscribe_SendsAudioAndInstruction(t *testing.T) {
	t.Parallel()
	srv, reqs, paths := startServer(t, "  مرحبا  \n")

	p, err := New("test-key", WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	audio := []byte{1, 2, 3, 4}
	text, err := p.Transcribe(context.Background(), audio, "audio/webm", "")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "مرحبا" {
		t.Errorf("text = %q; want trimmed transcript", text)
	}

	if path := <-paths; !strings.HasSuffix(path, "models/gemini-3-flash-preview:generateContent") {
		t.Errorf("path = %q", path)
	}
	body := <-reqs
	if len(body.Contents) != 1 || len(body.Contents[0].Parts) != 2 {
		t.Fatalf("contents = %+v; want one content with two parts", body.Contents)
	}
	parts := body.Contents[0].Parts
	if parts[0].Text != instruction {
		t.Errorf("instruction = %q", parts[0].Text)
	}
	if parts[1].InlineData == nil || parts[1].InlineData.MIMEType != "audio/webm" {
		t.Fatalf("inline data = %+v", parts[1].InlineData)
	}
	if got := parts[1].InlineData.Data; got != base64.StdEncoding.EncodeToString(audio) {
		t.Errorf("data = %q", got)
	}
}

func TestTranscribe_LanguageHintAndModel(t *testing.T) {
	t.Parallel()
	srv, reqs, paths := startServer(t, "namaste")

	p, err := New("test-key", WithBaseURL(srv.URL), WithModel("custom-model"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.Transcribe(context.Background(), []byte{0}, "", "Hindi"); err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if path := <-paths; !strings.HasSuffix(path, "models/custom-model:generateContent") {
		t.Errorf("path = %q", path)
	}
	body := <-reqs
	parts := body.Contents[0].Parts
	if !strings.Contains(parts[0].Text, "Hindi") {
		t.Errorf("prompt %q lacks language hint", parts[0].Text)
	}
	if parts[1].InlineData == nil || parts[1].InlineData.MIMEType != "audio/wav" {
		t.Errorf("default MIME not applied: %+v", parts[1].InlineData)
	}
}

func TestTranscribe_EmptyAudio(t *testing.T) {
	t.Parallel()
	p, err := New("test-key", WithBaseURL("http://127.0.0.1:1"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.Transcribe(context.Background(), nil, "audio/wav", ""); err == nil {
		t.Fatal("expected error for empty audio")
	}
}

func TestTranscribe_ServerError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":400,"message":"bad audio","status":"INVALID_ARGUMENT"}}`))
	}))
	t.Cleanup(srv.Close)

	p, err := New("test-key", WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.Transcribe(context.Background(), []byte{1}, "audio/wav", ""); err == nil {
		t.Fatal("expected error from failing server")
	}
}
