package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/respondeo/internal/interfaces"
	"github.com/ternarybob/respondeo/internal/models"
	"github.com/ternarybob/respondeo/internal/services/agent"
	"github.com/yuin/goldmark"
)

// AskRequest is the payload for question-answering endpoints
type AskRequest struct {
	Question string        `json:"question" validate:"required,min=1,max=4000"`
	History  []models.Turn `json:"history" validate:"max=50,dive"`
}

// AskHandler handles question-answering HTTP requests
type AskHandler struct {
	agentService interfaces.AgentService
	validate     *validator.Validate
	markdown     goldmark.Markdown
	logger       arbor.ILogger
}

// NewAskHandler creates a new ask handler
func NewAskHandler(agentService interfaces.AgentService, logger arbor.ILogger) *AskHandler {
	return &AskHandler{
		agentService: agentService,
		validate:     validator.New(),
		markdown:     goldmark.New(),
		logger:       logger,
	}
}

// AskHandler handles POST /api/ask requests
func (h *AskHandler) AskHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	req, ok := h.decodeRequest(w, r)
	if !ok {
		return
	}

	h.logger.Info().
		Int("question_length", len(req.Question)).
		Int("history_turns", len(req.History)).
		Msg("Processing ask request")

	query := &models.Query{Text: req.Question, History: req.History}
	result, err := h.agentService.Ask(r.Context(), query)
	if err != nil {
		h.writeAgentError(w, err)
		return
	}

	result.AnswerHTML = h.renderAnswer(result.Answer)
	WriteJSON(w, http.StatusOK, result)
}

// AskStreamHandler handles POST /api/ask/stream requests with SSE output.
// Each agent event is one "data:" frame; the stream ends after the done
// or error event.
func (h *AskHandler) AskStreamHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	req, ok := h.decodeRequest(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		WriteError(w, http.StatusInternalServerError, "Streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	emit := func(event models.AgentEvent) error {
		payload, err := json.Marshal(event)
		if err != nil {
			return err
		}
		if _, err := w.Write([]byte("data: ")); err != nil {
			return err
		}
		if _, err := w.Write(payload); err != nil {
			return err
		}
		if _, err := w.Write([]byte("\n\n")); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	query := &models.Query{Text: req.Question, History: req.History}
	if _, err := h.agentService.AskStream(r.Context(), query, emit); err != nil {
		// Client disconnects surface here as context errors. The error
		// event for agent failures was already emitted on the stream.
		h.logger.Warn().Err(err).Msg("Ask stream ended with error")
	}
}

// HealthHandler handles GET /api/ask/health requests
func (h *AskHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	if err := h.agentService.HealthCheck(r.Context()); err != nil {
		h.logger.Warn().Err(err).Msg("Agent health check failed")
		WriteJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"healthy": false,
			"error":   err.Error(),
		})
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"healthy": true,
	})
}

func (h *AskHandler) decodeRequest(w http.ResponseWriter, r *http.Request) (*AskRequest, bool) {
	var req AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error().Err(err).Msg("Failed to decode ask request")
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return nil, false
	}

	if err := h.validate.Struct(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Validation failed: "+err.Error())
		return nil, false
	}

	return &req, true
}

func (h *AskHandler) writeAgentError(w http.ResponseWriter, err error) {
	h.logger.Error().Err(err).Msg("Failed to answer question")

	status := http.StatusInternalServerError
	if errors.Is(err, agent.ErrAllToolsUnavailable) {
		status = http.StatusServiceUnavailable
	}
	WriteError(w, status, err.Error())
}

// renderAnswer converts the markdown answer to HTML for web clients.
// Rendering failures fall back to the raw markdown.
func (h *AskHandler) renderAnswer(answer string) string {
	var buf bytes.Buffer
	if err := h.markdown.Convert([]byte(answer), &buf); err != nil {
		h.logger.Warn().Err(err).Msg("Failed to render answer markdown")
		return answer
	}
	return buf.String()
}
