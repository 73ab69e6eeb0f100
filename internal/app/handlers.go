package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/voxdesk/internal/dialect"
	"github.com/MrWong99/voxdesk/internal/observe"
	"github.com/MrWong99/voxdesk/pkg/audio"
)

const (
	// maxAudioBody caps uploads to /v1/transcribe.
	maxAudioBody = 25 << 20

	// maxJSONBody caps JSON request bodies.
	maxJSONBody = 1 << 20
)

// routes registers every endpoint on a fresh mux.
func (a *App) routes() *http.ServeMux {
	mux := http.NewServeMux()
	a.health.Register(mux)
	if a.metricsHandler != nil {
		mux.Handle("GET /metrics", a.metricsHandler)
	}
	mux.HandleFunc("GET /v1/dialects", a.handleDialects)
	mux.HandleFunc("POST /v1/transcribe", a.handleTranscribe)
	mux.HandleFunc("POST /v1/synthesize", a.handleSynthesize)
	mux.HandleFunc("POST /v1/translate", a.handleTranslate)
	mux.HandleFunc("GET /v1/live", a.handleLive)
	return mux
}

// ─── Responses ───────────────────────────────────────────────────────────────

type errorResponse struct {
	Error string `json:"error"`
}

type textResponse struct {
	Text   string `json:"text"`
	Target string `json:"target,omitempty"`
}

type dialectsResponse struct {
	Default  string            `json:"default"`
	Dialects []dialect.Dialect `json:"dialects"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("write response", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// decodeJSON reads a bounded JSON body into v, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

// providerFailed maps a provider error to a response.
func providerFailed(w http.ResponseWriter, r *http.Request, kind string, err error) {
	if errors.Is(err, context.Canceled) && r.Context().Err() != nil {
		return
	}
	observe.Logger(r.Context()).Warn("provider call failed", "kind", kind, "err", err)
	writeError(w, http.StatusBadGateway, fmt.Sprintf("%s failed", kind))
}

// record reports one provider call to the metrics.
func (a *App) record(ctx context.Context, kind string, h metric.Float64Histogram, start time.Time, err error) {
	name := a.providers.name(kind)
	h.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(observe.Attr("provider", name)))
	status := "ok"
	if err != nil {
		status = "error"
		a.metrics.RecordProviderError(ctx, name, kind)
	}
	a.metrics.RecordProviderRequest(ctx, name, kind, status)
}

// language resolves a dialect ID to its label; anything else is passed
// through unchanged.
func (a *App) language(idOrName string) string {
	if d, err := a.catalog.Get(idOrName); err == nil {
		return d.Label
	}
	return idOrName
}

// ─── Handlers ────────────────────────────────────────────────────────────────

func (a *App) handleDialects(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, dialectsResponse{
		Default:  a.liveConfig().session.Dialect,
		Dialects: a.catalog.List(),
	})
}

// handleTranscribe runs one-shot speech-to-text over the request body. The
// Content-Type names the audio format; the optional lang query is a dialect
// ID or language name.
func (a *App) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	if a.providers.STT == nil {
		writeError(w, http.StatusServiceUnavailable, "speech-to-text is not configured")
		return
	}
	mimeType := r.Header.Get("Content-Type")
	if mimeType == "" {
		writeError(w, http.StatusBadRequest, "Content-Type is required")
		return
	}
	if _, _, err := mime.ParseMediaType(mimeType); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid Content-Type: %v", err))
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxAudioBody))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "audio body too large")
		return
	}
	if len(body) == 0 {
		writeError(w, http.StatusBadRequest, "audio body is empty")
		return
	}

	var hint string
	if lang := r.URL.Query().Get("lang"); lang != "" {
		hint = a.language(lang)
	}

	ctx, span := observe.StartSpan(r.Context(), "stt.transcribe")
	defer span.End()
	start := time.Now()
	text, err := a.providers.STT.Transcribe(ctx, body, mimeType, hint)
	a.record(ctx, "stt", a.metrics.STTDuration, start, err)
	if err != nil {
		providerFailed(w, r, "transcription", err)
		return
	}
	writeJSON(w, http.StatusOK, textResponse{Text: strings.TrimSpace(text)})
}

type synthesizeRequest struct {
	Text    string `json:"text"`
	Voice   string `json:"voice"`
	Dialect string `json:"dialect"`
}

// handleSynthesize renders text to a WAV file. Without an explicit voice the
// dialect's voice is used.
func (a *App) handleSynthesize(w http.ResponseWriter, r *http.Request) {
	if a.providers.TTS == nil {
		writeError(w, http.StatusServiceUnavailable, "text-to-speech is not configured")
		return
	}
	var req synthesizeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}
	voice := req.Voice
	if voice == "" && req.Dialect != "" {
		d, err := a.catalog.Get(req.Dialect)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		voice = d.Voice
	}

	ctx, span := observe.StartSpan(r.Context(), "tts.synthesize")
	defer span.End()
	start := time.Now()
	out, err := a.providers.TTS.Synthesize(ctx, req.Text, voice)
	a.record(ctx, "tts", a.metrics.TTSDuration, start, err)
	if err != nil {
		providerFailed(w, r, "synthesis", err)
		return
	}

	wav, err := audio.EncodeWAV(audio.PCM16Samples(out.PCM), audio.Format{SampleRate: out.SampleRate, Channels: 1})
	if err != nil {
		observe.Logger(ctx).Warn("encode synthesized audio", "err", err)
		writeError(w, http.StatusBadGateway, "synthesis returned unusable audio")
		return
	}
	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("X-Audio-Duration", fmt.Sprintf("%.3f", out.Duration()))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(wav)
}

type translateRequest struct {
	Text   string `json:"text"`
	Target string `json:"target"`
}

// handleTranslate translates text into target, a dialect ID or language name.
func (a *App) handleTranslate(w http.ResponseWriter, r *http.Request) {
	if a.providers.Translate == nil {
		writeError(w, http.StatusServiceUnavailable, "translation is not configured")
		return
	}
	var req translateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Text) == "" || req.Target == "" {
		writeError(w, http.StatusBadRequest, "text and target are required")
		return
	}
	target := a.language(req.Target)

	ctx, span := observe.StartSpan(r.Context(), "translate")
	defer span.End()
	start := time.Now()
	text, err := a.providers.Translate.Translate(ctx, req.Text, target)
	a.record(ctx, "translate", a.metrics.TranslateDuration, start, err)
	if err != nil {
		providerFailed(w, r, "translation", err)
		return
	}
	writeJSON(w, http.StatusOK, textResponse{Text: text, Target: target})
}
