// Package openai implements the s2s.Provider interface for OpenAI's Realtime API.
//
// It establishes a bidirectional WebSocket connection to the OpenAI Realtime
// endpoint and exchanges JSON events according to the Realtime API protocol.
// The Realtime API only accepts 24 kHz PCM16, so microphone chunks are
// resampled before they are appended to the input buffer.
package openai

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/MrWong99/voxdesk/pkg/audio"
	"github.com/MrWong99/voxdesk/pkg/provider/s2s"
	"github.com/coder/websocket"
)

// Compile-time assertions that Provider and session satisfy the s2s interfaces.
var _ s2s.Provider = (*Provider)(nil)
var _ s2s.SessionHandle = (*session)(nil)

const (
	defaultModel   = "gpt-4o-realtime-preview"
	defaultBaseURL = "wss://api.openai.com/v1/realtime"
	defaultVoice   = "alloy"

	// realtimeRate is the only PCM16 rate the Realtime API speaks.
	realtimeRate = 24000

	eventBuffer = 64
)

// ── Options ────────────────────────────────────────────────────────────────────

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the OpenAI model used for sessions.
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithBaseURL overrides the base WebSocket URL. Primarily used in tests to
// point at a local mock server.
func WithBaseURL(url string) Option {
	return func(p *Provider) { p.baseURL = url }
}

// WithLogger sets the logger for protocol-level diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(p *Provider) { p.log = l }
}

// ── Provider ───────────────────────────────────────────────────────────────────

// Provider implements s2s.Provider for OpenAI's Realtime API.
type Provider struct {
	apiKey  string
	model   string
	baseURL string
	log     *slog.Logger
}

// New creates a new OpenAI Realtime Provider with the given API key and options.
func New(apiKey string, opts ...Option) *Provider {
	p := &Provider{
		apiKey:  apiKey,
		model:   defaultModel,
		baseURL: defaultBaseURL,
		log:     slog.Default(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Capabilities returns static metadata about the OpenAI Realtime provider.
func (p *Provider) Capabilities() s2s.Capabilities {
	return s2s.Capabilities{
		Voices:             []string{"alloy", "ash", "ballad", "coral", "echo", "sage", "shimmer", "verse"},
		OutputSampleRate:   realtimeRate,
		MaxSessionDuration: 30 * time.Minute,
	}
}

// Connect establishes a new OpenAI Realtime session with the given configuration.
// The returned SessionHandle is ready to accept audio immediately after the
// session.update message is sent.
func (p *Provider) Connect(ctx context.Context, cfg s2s.SessionConfig) (s2s.SessionHandle, error) {
	wsURL := fmt.Sprintf("%s?model=%s", p.baseURL, p.model)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: http.Header{
			"Authorization": []string{"Bearer " + p.apiKey},
			"OpenAI-Beta":   []string{"realtime=v1"},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("openai: dial: %w", err)
	}
	conn.SetReadLimit(4 << 20)

	sessCtx, sessCancel := context.WithCancel(context.Background())
	sess := &session{
		conn:   conn,
		events: s2s.NewStream(sessCtx, eventBuffer),
		inRate: cfg.InputSampleRate,
		log:    p.log,
		ctx:    sessCtx,
		cancel: sessCancel,
	}
	if sess.inRate == 0 {
		sess.inRate = audio.InputSampleRate
	}

	if err := sess.sendSessionUpdate(ctx, cfg); err != nil {
		sessCancel()
		conn.Close(websocket.StatusInternalError, "session update failed")
		return nil, fmt.Errorf("openai: session update: %w", err)
	}

	go sess.receiveLoop()

	return sess, nil
}

// ── Protocol message types (outgoing) ─────────────────────────────────────────

type sessionUpdateMessage struct {
	Type    string        `json:"type"`
	Session sessionParams `json:"session"`
}

type sessionParams struct {
	Modalities              []string       `json:"modalities"`
	Voice                   string         `json:"voice,omitempty"`
	Instructions            string         `json:"instructions,omitempty"`
	InputAudioFormat        string         `json:"input_audio_format"`
	OutputAudioFormat       string         `json:"output_audio_format"`
	InputAudioTranscription *transcribeCfg `json:"input_audio_transcription,omitempty"`
	TurnDetection           *turnDetection `json:"turn_detection,omitempty"`
}

type transcribeCfg struct {
	Model string `json:"model"`
}

type turnDetection struct {
	Type string `json:"type"`
}

type inputAudioAppend struct {
	Type  string `json:"type"`
	Audio string `json:"audio"`
}

type conversationItemCreate struct {
	Type string           `json:"type"`
	Item conversationItem `json:"item"`
}

type conversationItem struct {
	Type    string        `json:"type"`
	Role    string        `json:"role"`
	Content []itemContent `json:"content"`
}

type itemContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type typedMessage struct {
	Type string `json:"type"`
}

// ── Protocol message types (incoming) ─────────────────────────────────────────

type serverEvent struct {
	Type       string    `json:"type"`
	Delta      string    `json:"delta,omitempty"`
	Transcript string    `json:"transcript,omitempty"`
	Error      *oaiError `json:"error,omitempty"`
}

type oaiError struct {
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// ── session ────────────────────────────────────────────────────────────────────

type session struct {
	conn   *websocket.Conn
	events *s2s.Stream
	inRate int
	log    *slog.Logger

	mu     sync.Mutex
	closed bool

	// sawInputDelta suppresses the completed transcript when deltas already
	// carried the same text.
	sawInputDelta bool

	ctx    context.Context
	cancel context.CancelFunc
}

func (s *session) sendSessionUpdate(ctx context.Context, cfg s2s.SessionConfig) error {
	voice := cfg.Voice
	if voice == "" {
		voice = defaultVoice
	}
	modalities := []string{"text"}
	if cfg.Modality != s2s.ModalityText {
		modalities = []string{"audio", "text"}
	}
	params := sessionParams{
		Modalities:        modalities,
		Voice:             voice,
		Instructions:      cfg.Instructions,
		InputAudioFormat:  "pcm16",
		OutputAudioFormat: "pcm16",
		TurnDetection:     &turnDetection{Type: "server_vad"},
	}
	if cfg.InputTranscription {
		params.InputAudioTranscription = &transcribeCfg{Model: "whisper-1"}
	}
	return s.writeJSON(ctx, sessionUpdateMessage{Type: "session.update", Session: params})
}

// writeJSON marshals v and writes it as a text WebSocket message.
func (s *session) writeJSON(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("openai: marshal: %w", err)
	}
	return s.conn.Write(ctx, websocket.MessageText, data)
}

// receiveLoop reads server events and dispatches them.
func (s *session) receiveLoop() {
	for {
		_, data, err := s.conn.Read(s.ctx)
		if err != nil {
			if s.ctx.Err() != nil {
				s.events.Finish(nil)
				return
			}
			ev := s2s.CloseEvent("openai", err)
			s.events.Finish(&ev)
			return
		}

		var evt serverEvent
		if err := json.Unmarshal(data, &evt); err != nil {
			s.log.Debug("openai: skipping malformed event", "err", err)
			continue
		}
		if !s.handleServerEvent(&evt) {
			return
		}
	}
}

// handleServerEvent maps one Realtime event. It returns false once the stream
// has been finished.
func (s *session) handleServerEvent(evt *serverEvent) bool {
	switch evt.Type {
	case "response.audio.delta":
		if evt.Delta == "" {
			return true
		}
		return s.events.Emit(s2s.Event{
			Kind:  s2s.EventAudio,
			Audio: audio.EncodedChunk{MIMEType: audio.PCMMIMEType(realtimeRate), Data: evt.Delta},
		})

	case "response.audio_transcript.delta":
		if evt.Delta == "" {
			return true
		}
		return s.events.Emit(s2s.Event{Kind: s2s.EventOutputTranscript, Text: evt.Delta})

	case "conversation.item.input_audio_transcription.delta":
		if evt.Delta == "" {
			return true
		}
		s.sawInputDelta = true
		return s.events.Emit(s2s.Event{Kind: s2s.EventInputTranscript, Text: evt.Delta})

	case "conversation.item.input_audio_transcription.completed":
		if s.sawInputDelta {
			s.sawInputDelta = false
			return true
		}
		if evt.Transcript == "" {
			return true
		}
		return s.events.Emit(s2s.Event{Kind: s2s.EventInputTranscript, Text: evt.Transcript})

	case "input_audio_buffer.speech_started":
		return s.events.Emit(s2s.Event{Kind: s2s.EventInterrupted})

	case "response.done":
		return s.events.Emit(s2s.Event{Kind: s2s.EventTurnComplete})

	case "error":
		msg := "unknown error"
		if evt.Error != nil {
			msg = evt.Error.Message
		}
		ev := s2s.Event{Kind: s2s.EventError, Err: fmt.Errorf("openai: %s", msg)}
		s.events.Finish(&ev)
		return false
	}
	return true
}

func (s *session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// ── SessionHandle methods ──────────────────────────────────────────────────────

// SendAudio appends one microphone chunk to the input audio buffer,
// resampling it to 24 kHz first.
func (s *session) SendAudio(ctx context.Context, chunk audio.EncodedChunk) error {
	if s.isClosed() {
		return s2s.ErrSessionClosed
	}
	data := chunk.Data
	if s.inRate != realtimeRate {
		raw, err := base64.StdEncoding.DecodeString(chunk.Data)
		if err != nil {
			return fmt.Errorf("openai: decode chunk: %w", err)
		}
		data = base64.StdEncoding.EncodeToString(int16Bytes(audio.ResampleMono(bytesInt16(raw), s.inRate, realtimeRate)))
	}
	return s.writeJSON(ctx, inputAudioAppend{Type: "input_audio_buffer.append", Audio: data})
}

// SendText adds a user text message to the conversation and requests a
// response.
func (s *session) SendText(ctx context.Context, text string) error {
	if s.isClosed() {
		return s2s.ErrSessionClosed
	}
	item := conversationItemCreate{
		Type: "conversation.item.create",
		Item: conversationItem{
			Type:    "message",
			Role:    "user",
			Content: []itemContent{{Type: "input_text", Text: text}},
		},
	}
	if err := s.writeJSON(ctx, item); err != nil {
		return err
	}
	return s.writeJSON(ctx, typedMessage{Type: "response.create"})
}

// Events returns the ordered inbound event stream.
func (s *session) Events() <-chan s2s.Event { return s.events.Events() }

// Close terminates the session. Idempotent.
func (s *session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.conn.Close(websocket.StatusNormalClosure, "session closed")
	return nil
}

// ── PCM helpers ────────────────────────────────────────────────────────────────

func bytesInt16(b []byte) []int16 {
	out := make([]int16, len(b)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(b[2*i:]))
	}
	return out
}

func int16Bytes(s []int16) []byte {
	out := make([]byte, 2*len(s))
	for i, v := range s {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(v))
	}
	return out
}
