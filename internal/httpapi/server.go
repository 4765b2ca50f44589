package httpapi

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/antoniostano/meera/internal/chat"
	"github.com/antoniostano/meera/internal/config"
	"github.com/antoniostano/meera/internal/observability"
	"github.com/antoniostano/meera/internal/pipeline"
	"github.com/antoniostano/meera/internal/protocol"
	"github.com/antoniostano/meera/internal/session"
	"github.com/antoniostano/meera/internal/voice"
)

// Pipeline is the turn pipeline surface the API depends on.
type Pipeline interface {
	Submit(ctx context.Context, username, utterance string) pipeline.Result
	DisplayLog(ctx context.Context, username string) []chat.DisplayEntry
}

type Server struct {
	cfg      config.Config
	pipeline Pipeline
	sessions *session.Manager
	tts      voice.Provider
	metrics  *observability.Metrics
	upgrader websocket.Upgrader
}

func New(cfg config.Config, pl Pipeline, sessions *session.Manager, tts voice.Provider, metrics *observability.Metrics) *Server {
	return &Server{
		cfg:      cfg,
		pipeline: pl,
		sessions: sessions,
		tts:      tts,
		metrics:  metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Only allow browser websocket connections from the same origin
				// unless explicitly opened up. Non-browser clients omit Origin
				// and are allowed.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Get("/v1/perf/latency", s.handlePerfLatency)

	r.Post("/v1/chat/message", s.handleChatMessage)
	r.Get("/v1/chat/transcript", s.handleTranscript)
	r.Delete("/v1/chat/session", s.handleResetSession)
	r.Get("/v1/chat/ws", s.handleChatWS)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

// handlePerfLatency reports the rolling per-stage turn latency window.
func (s *Server) handlePerfLatency(w http.ResponseWriter, _ *http.Request) {
	if s.metrics == nil {
		respondJSON(w, http.StatusOK, observability.TurnStageSnapshot{
			GeneratedAt: time.Now().UTC(),
			Stages:      []observability.TurnStageStats{},
		})
		return
	}
	respondJSON(w, http.StatusOK, s.metrics.SnapshotTurnStages())
}

type chatMessageRequest struct {
	Username string `json:"username"`
	Text     string `json:"text"`
	Speak    bool   `json:"speak"`
}

type chatMessageResponse struct {
	Username    string            `json:"username"`
	TurnID      string            `json:"turn_id"`
	Outcome     string            `json:"outcome"`
	Reply       chat.DisplayEntry `json:"reply"`
	Retryable   bool              `json:"retryable,omitempty"`
	Warnings    []string          `json:"warnings,omitempty"`
	AudioBase64 string            `json:"audio_base64,omitempty"`
	AudioFormat string            `json:"audio_format,omitempty"`
}

func (s *Server) handleChatMessage(w http.ResponseWriter, r *http.Request) {
	var req chatMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	username := strings.TrimSpace(req.Username)
	if username == "" {
		username = "anonymous"
	}

	result := s.pipeline.Submit(r.Context(), username, req.Text)
	if result.Outcome == pipeline.OutcomeRejected {
		respondError(w, http.StatusBadRequest, "empty_utterance", "text must not be empty")
		return
	}
	s.metrics.ActiveConversations.Set(float64(s.sessions.ActiveCount()))

	res := chatMessageResponse{
		Username:  username,
		TurnID:    result.TurnID,
		Outcome:   string(result.Outcome),
		Reply:     result.Reply,
		Retryable: result.Retryable,
		Warnings:  result.Warnings,
	}
	if req.Speak && result.Outcome == pipeline.OutcomeCompleted && s.tts != nil {
		// Speech is best-effort decoration; a synthesis failure downgrades the
		// response to text-only.
		audio, err := s.tts.Synthesize(r.Context(), result.Reply.Content)
		if err == nil {
			res.AudioBase64 = base64.StdEncoding.EncodeToString(audio.Data)
			res.AudioFormat = audio.Format
		}
	}
	respondJSON(w, http.StatusOK, res)
}

type transcriptResponse struct {
	Username string              `json:"username"`
	Entries  []chat.DisplayEntry `json:"entries"`
}

func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	username := strings.TrimSpace(r.URL.Query().Get("username"))
	if username == "" {
		respondError(w, http.StatusBadRequest, "missing_username", "query parameter username is required")
		return
	}
	entries := s.pipeline.DisplayLog(r.Context(), username)
	s.metrics.ActiveConversations.Set(float64(s.sessions.ActiveCount()))
	respondJSON(w, http.StatusOK, transcriptResponse{Username: username, Entries: entries})
}

func (s *Server) handleResetSession(w http.ResponseWriter, r *http.Request) {
	username := strings.TrimSpace(r.URL.Query().Get("username"))
	if username == "" {
		respondError(w, http.StatusBadRequest, "missing_username", "query parameter username is required")
		return
	}
	s.sessions.Reset(username)
	s.metrics.ActiveConversations.Set(float64(s.sessions.ActiveCount()))
	respondJSON(w, http.StatusOK, map[string]any{"status": "reset", "username": username})
}

func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	username := strings.TrimSpace(r.URL.Query().Get("username"))
	if username == "" {
		respondError(w, http.StatusBadRequest, "missing_username", "query parameter username is required")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx := r.Context()
	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		return nil
	})

	// Replay the transcript so a reconnecting client starts in sync with the
	// session state.
	s.writeWS(conn, protocol.TranscriptSnapshot{
		Type:     protocol.TypeTranscriptSnapshot,
		Username: username,
		Entries:  s.pipeline.DisplayLog(ctx, username),
	})
	s.metrics.ActiveConversations.Set(float64(s.sessions.ActiveCount()))

	// The protocol is strictly turn-taking, so each utterance is handled to
	// completion before the next read. That keeps exactly one turn in flight
	// per connection and makes this loop the only websocket writer.
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		if msgType != websocket.TextMessage {
			continue
		}

		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			s.writeWS(conn, protocol.ErrorEvent{
				Type:      protocol.TypeErrorEvent,
				Username:  username,
				Code:      "invalid_client_message",
				Source:    "gateway",
				Retryable: false,
				Detail:    err.Error(),
			})
			continue
		}
		msg, ok := parsed.(protocol.ClientUtterance)
		if !ok {
			continue
		}
		s.metrics.WSMessages.WithLabelValues("inbound", string(protocol.TypeClientUtterance)).Inc()

		result := s.pipeline.Submit(ctx, username, msg.Text)
		switch result.Outcome {
		case pipeline.OutcomeRejected:
			s.writeWS(conn, protocol.ErrorEvent{
				Type:      protocol.TypeErrorEvent,
				Username:  username,
				Code:      "empty_utterance",
				Source:    "pipeline",
				Retryable: false,
				Detail:    "text must not be empty",
			})
			continue
		case pipeline.OutcomeFailed:
			s.writeWS(conn, protocol.ErrorEvent{
				Type:      protocol.TypeErrorEvent,
				Username:  username,
				Code:      "model_invocation_failed",
				Source:    "brain",
				Retryable: result.Retryable,
				Detail:    result.Reply.Content,
			})
		}

		s.writeWS(conn, protocol.AssistantReply{
			Type:     protocol.TypeAssistantReply,
			Username: username,
			TurnID:   result.TurnID,
			Text:     result.Reply.Content,
			Outcome:  string(result.Outcome),
			Warnings: result.Warnings,
		})

		if result.Outcome == pipeline.OutcomeCompleted && s.tts != nil {
			audio, err := s.tts.Synthesize(ctx, result.Reply.Content)
			if err == nil {
				s.writeWS(conn, protocol.AssistantAudio{
					Type:        protocol.TypeAssistantAudio,
					Username:    username,
					TurnID:      result.TurnID,
					Format:      audio.Format,
					AudioBase64: base64.StdEncoding.EncodeToString(audio.Data),
				})
			}
		}
	}
}

func (s *Server) writeWS(conn *websocket.Conn, msg any) {
	_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := conn.WriteJSON(msg); err != nil {
		return
	}
	if t, ok := messageTypeOf(msg); ok {
		s.metrics.WSMessages.WithLabelValues("outbound", string(t)).Inc()
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

func messageTypeOf(v any) (protocol.MessageType, bool) {
	switch m := v.(type) {
	case protocol.ClientUtterance:
		return m.Type, true
	case protocol.AssistantReply:
		return m.Type, true
	case protocol.AssistantAudio:
		return m.Type, true
	case protocol.TranscriptSnapshot:
		return m.Type, true
	case protocol.ErrorEvent:
		return m.Type, true
	default:
		return "", false
	}
}
