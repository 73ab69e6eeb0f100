package gemini

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestTranslate_SendsPrompt(t *testing.T) {
	t.Parallel()
	prompts := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Contents []struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"contents"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode: %v", err)
		}
		if len(body.Contents) == 1 && len(body.Contents[0].Parts) == 1 {
			prompts <- body.Contents[0].Parts[0].Text
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"كيف حالك؟\n"}]}}]}`))
	}))
	t.Cleanup(srv.Close)

	p, err := New("test-key", WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	out, err := p.Translate(context.Background(), "How are you?", "Arabic")
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if out != "كيف حالك؟" {
		t.Errorf("out = %q", out)
	}
	if got := <-prompts; got != `Translate to Arabic: "How are you?"` {
		t.Errorf("prompt = %q", got)
	}
}

func TestTranslate_Validation(t *testing.T) {
	t.Parallel()
	p, err := New("test-key", WithBaseURL("http://127.0.0.1:1"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.Translate(context.Background(), "", "Arabic"); err == nil {
		t.Error("expected error for empty text")
	}
	if _, err := p.Translate(context.Background(), "hi", ""); err == nil {
		t.Error("expected error for empty target")
	}
}

func TestTranslate_EmptyResponse(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"  "}]}}]}`))
	}))
	t.Cleanup(srv.Close)

	p, err := New("test-key", WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.Translate(context.Background(), "hi", "Urdu"); err == nil {
		t.Fatal("expected error for blank response")
	}
}

func TestNew_MissingAPIKey(t *testing.T) {
	t.Parallel()
	if _, err := New(""); err == nil {
		t.Fatal("expected error")
	}
}
