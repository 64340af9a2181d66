package server

import (
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/normanking/cortexcompanion/internal/bus"
	"github.com/normanking/cortexcompanion/internal/history"
	"github.com/normanking/cortexcompanion/internal/listen"
	"github.com/normanking/cortexcompanion/internal/queue"
	"github.com/normanking/cortexcompanion/internal/turn"
)

const turnTimeout = 60 * time.Second

type askRequest struct {
	Message     string `json:"message"`
	ImageBase64 string `json:"image_base64,omitempty"`
}

type turnResponse struct {
	Reply      string `json:"reply"`
	Mood       string `json:"mood"`
	Moderated  bool   `json:"moderated"`
	Fallback   bool   `json:"fallback"`
	Transcript string `json:"transcript,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func toResponse(result turn.Result) turnResponse {
	return turnResponse{
		Reply:     result.Reply,
		Mood:      string(result.MoodLabel),
		Moderated: result.Moderated,
		Fallback:  result.Fallback,
	}
}

// handleAsk accepts a text message, optionally with an attached image,
// and answers with the completed turn. The item rides the high-priority
// tier so interactive input outranks ingested chat.
func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	caption := ""
	if req.ImageBase64 != "" {
		if s.captioner == nil {
			writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "image captioning not configured"})
			return
		}
		image, err := base64.StdEncoding.DecodeString(req.ImageBase64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid image encoding"})
			return
		}
		caption, err = s.captioner.Caption(r.Context(), image)
		if err != nil {
			s.logger.Warn().Err(err).Msg("Image caption failed")
			writeJSON(w, http.StatusBadGateway, errorResponse{Error: "could not read the image"})
			return
		}
	}

	if strings.TrimSpace(req.Message) == "" && caption == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "empty message"})
		return
	}

	s.submitAndRespond(w, r, req.Message, caption)
}

func (s *Server) publishEnqueued(item *queue.Item) {
	s.events.Publish(bus.Event{Type: bus.EventTypeItemEnqueued, Data: map[string]any{
		"id":       item.ID,
		"source":   string(item.Source),
		"priority": string(item.Priority),
	}})
}

// submitAndRespond enqueues on the high tier and waits for the
// serializer to deliver the result.
func (s *Server) submitAndRespond(w http.ResponseWriter, r *http.Request, text, caption string) {
	item := queue.NewItem(queue.SourceInput, queue.PriorityHigh, text)
	item.ImageCaption = caption
	item.Reply = make(chan turn.Result, 1)

	if err := s.inputs.Put(item); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "shutting down"})
		return
	}
	s.publishEnqueued(item)

	select {
	case result := <-item.Reply:
		writeJSON(w, http.StatusOK, toResponse(result))
	case <-r.Context().Done():
		// Client gave up; the serializer will still run the turn.
	case <-time.After(turnTimeout):
		writeJSON(w, http.StatusGatewayTimeout, errorResponse{Error: "turn timed out"})
	}
}

// handleVoice accepts one recorded utterance (multipart field "audio",
// WAV or MP3) and runs it as a user turn.
func (s *Server) handleVoice(w http.ResponseWriter, r *http.Request) {
	if s.transcriber == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "transcription not configured"})
		return
	}

	file, _, err := r.FormFile("audio")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing audio upload"})
		return
	}
	defer file.Close()

	wav, err := io.ReadAll(io.LimitReader(file, 25<<20))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "unreadable audio upload"})
		return
	}

	transcript, err := s.transcriber.Transcribe(r.Context(), wav)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Voice transcription failed")
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: "could not transcribe audio"})
		return
	}
	if strings.TrimSpace(transcript) == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "no speech detected"})
		return
	}

	item := queue.NewItem(queue.SourceInput, queue.PriorityHigh, transcript)
	item.Reply = make(chan turn.Result, 1)
	if err := s.inputs.Put(item); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "shutting down"})
		return
	}
	s.publishEnqueued(item)

	select {
	case result := <-item.Reply:
		resp := toResponse(result)
		resp.Transcript = transcript
		writeJSON(w, http.StatusOK, resp)
	case <-r.Context().Done():
	case <-time.After(turnTimeout):
		writeJSON(w, http.StatusGatewayTimeout, errorResponse{Error: "turn timed out"})
	}
}

// handleGreeting opens the conversation with the persona's greeting.
func (s *Server) handleGreeting(w http.ResponseWriter, r *http.Request) {
	result, err := s.orchestrator.Greeting(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "greeting failed"})
		return
	}
	writeJSON(w, http.StatusOK, toResponse(result))
}

// handlePeriodic nudges the conversation with a passive prompt, the
// same mechanism listen mode uses when the user goes quiet.
func (s *Server) handlePeriodic(w http.ResponseWriter, r *http.Request) {
	active := s.orchestrator.Session().Personas.Active()
	prompt := "The user has been quiet for a while. Gently check in on them."
	if len(active.PeriodicPassive) > 0 {
		prompt = active.PeriodicPassive[0]
	}

	result, err := s.orchestrator.RunTurn(r.Context(), turn.Input{Text: prompt, Role: history.RoleSystem})
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "periodic message failed"})
		return
	}
	writeJSON(w, http.StatusOK, toResponse(result))
}

type settingsResponse struct {
	UserName  string   `json:"user_name"`
	PersonaID string   `json:"persona_id"`
	Personas  []string `json:"personas"`
	Mood      string   `json:"mood"`
	ListenOn  bool     `json:"listen_on"`
}

type settingsRequest struct {
	UserName  string `json:"user_name,omitempty"`
	PersonaID string `json:"persona_id,omitempty"`
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	session := s.orchestrator.Session()
	label, _ := session.Mood.Current()

	listenOn := false
	if s.listenSess != nil {
		state := s.listenSess.State()
		listenOn = state == listen.StateListening || state == listen.StateProcessing
	}

	writeJSON(w, http.StatusOK, settingsResponse{
		UserName:  session.Name(),
		PersonaID: session.Personas.Active().ID,
		Personas:  session.Personas.List(),
		Mood:      string(label),
		ListenOn:  listenOn,
	})
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	session := s.orchestrator.Session()
	if req.PersonaID != "" {
		if err := session.Personas.Select(req.PersonaID); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
		s.events.Publish(bus.Event{Type: bus.EventTypePersonaChanged, Data: map[string]any{
			"persona_id": req.PersonaID,
		}})
	}
	if req.UserName != "" {
		session.SetName(req.UserName)
	}

	s.handleGetSettings(w, r)
}

// handleReset wipes history, mood, and the persisted transcript.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := s.orchestrator.Reset(r.Context()); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "reset failed"})
		return
	}
	s.events.Publish(bus.Event{Type: bus.EventTypeSessionReset})
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (s *Server) handleListenStart(w http.ResponseWriter, r *http.Request) {
	if s.listenSess == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "listen mode not configured"})
		return
	}
	// The session must outlive this request, so it runs on the server's
	// base context, not the request context.
	if err := s.listenSess.Start(s.baseCtx); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	s.events.Publish(bus.Event{Type: bus.EventTypeListenStarted})
	writeJSON(w, http.StatusOK, map[string]string{"state": string(s.listenSess.State())})
}

func (s *Server) handleListenStop(w http.ResponseWriter, r *http.Request) {
	if s.listenSess == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "listen mode not configured"})
		return
	}
	s.listenSess.Stop()
	writeJSON(w, http.StatusOK, map[string]string{"state": string(s.listenSess.State())})
}

type healthResponse struct {
	Status    string `json:"status"`
	Uptime    string `json:"uptime"`
	QueueHigh int    `json:"queue_high"`
	QueueLow  int    `json:"queue_low"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	high, low := s.inputs.Len()
	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "ok",
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
		QueueHigh: high,
		QueueLow:  low,
	})
}
