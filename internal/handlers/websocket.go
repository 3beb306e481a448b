package handlers

import (
	"errors"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/respondeo/internal/common"
	"github.com/ternarybob/respondeo/internal/interfaces"
	"github.com/ternarybob/respondeo/internal/models"
)

// errClientGone aborts an in-flight session once the writer goroutine
// has observed a failed write.
var errClientGone = errors.New("websocket client disconnected")

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// WebSocketHandler streams agent events over a websocket. Each connection
// carries one question: the client sends an AskRequest, receives the
// ordered event stream, and the server closes the socket after the
// terminal event.
type WebSocketHandler struct {
	agentService interfaces.AgentService
	logger       arbor.ILogger
}

// NewWebSocketHandler creates a websocket ask handler
func NewWebSocketHandler(agentService interfaces.AgentService, logger arbor.ILogger) *WebSocketHandler {
	return &WebSocketHandler{
		agentService: agentService,
		logger:       logger,
	}
}

// AskHandler handles GET /ws/ask connections
func (h *WebSocketHandler) AskHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	var req AskRequest
	if err := conn.ReadJSON(&req); err != nil {
		h.logger.Warn().Err(err).Msg("Failed to read websocket ask request")
		h.writeClose(conn, websocket.ClosePolicyViolation, "invalid request")
		return
	}
	if req.Question == "" {
		h.writeClose(conn, websocket.ClosePolicyViolation, "question is required")
		return
	}

	// Events flow through a channel so a single goroutine owns all writes.
	// writerDone unblocks emit when the client goes away: a hijacked
	// connection never cancels r.Context(), so the failed write is the
	// only disconnect signal.
	events := make(chan models.AgentEvent, 64)
	writerDone := make(chan struct{})
	common.SafeGo(h.logger, "ws-ask-writer", func() {
		defer close(writerDone)
		for event := range events {
			if err := conn.WriteJSON(event); err != nil {
				h.logger.Warn().Err(err).Msg("WebSocket write failed")
				return
			}
		}
	})

	emit := func(event models.AgentEvent) error {
		select {
		case <-writerDone:
			return errClientGone
		default:
		}
		select {
		case events <- event:
			return nil
		case <-writerDone:
			return errClientGone
		}
	}

	query := &models.Query{Text: req.Question, History: req.History}
	_, askErr := h.agentService.AskStream(r.Context(), query, emit)
	close(events)
	<-writerDone

	if errors.Is(askErr, errClientGone) {
		h.logger.Debug().Msg("WebSocket client disconnected mid-session")
		return
	}
	if askErr != nil {
		h.logger.Warn().Err(askErr).Msg("WebSocket ask session ended with error")
		h.writeClose(conn, websocket.CloseInternalServerErr, askErr.Error())
		return
	}
	h.writeClose(conn, websocket.CloseNormalClosure, "")
}

func (h *WebSocketHandler) writeClose(conn *websocket.Conn, code int, reason string) {
	// Close reasons are capped at 125 bytes by the protocol
	if len(reason) > 120 {
		reason = reason[:120]
	}
	message := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteMessage(websocket.CloseMessage, message)
}
