package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/respondeo/internal/interfaces"
	"github.com/ternarybob/respondeo/internal/models"
)

// fakeAgentService scripts the agent for transport tests
type fakeAgentService struct {
	result    *models.AskResult
	events    []models.AgentEvent
	err       error
	lastQuery *models.Query
}

func (f *fakeAgentService) Ask(ctx context.Context, query *models.Query) (*models.AskResult, error) {
	f.lastQuery = query
	return f.result, f.err
}

func (f *fakeAgentService) AskStream(ctx context.Context, query *models.Query, emit interfaces.EventEmitter) (*models.AskResult, error) {
	f.lastQuery = query
	for _, e := range f.events {
		if err := emit(e); err != nil {
			return nil, err
		}
	}
	return f.result, f.err
}

func (f *fakeAgentService) HealthCheck(ctx context.Context) error { return f.err }

func askBody(t *testing.T, question string) *bytes.Buffer {
	t.Helper()
	body, err := json.Marshal(map[string]interface{}{
		"question": question,
		"history": []models.Turn{
			{Role: "user", Content: "earlier question"},
			{Role: "assistant", Content: "earlier answer"},
		},
	})
	require.NoError(t, err)
	return bytes.NewBuffer(body)
}

func TestAskHandlerReturnsResult(t *testing.T) {
	agent := &fakeAgentService{
		result: &models.AskResult{
			Answer:     "Refunds are issued within **30 days** [1].",
			Citations:  []models.Citation{{ChunkID: "chn_1", DocumentTitle: "Refund Policy", Score: 0.9}},
			Iterations: 1,
			ToolCalls:  1,
			Success:    true,
			Confidence: models.ConfidenceAccepted,
		},
	}
	handler := NewAskHandler(agent, arbor.NewLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/ask", askBody(t, "How long is the refund window?"))
	rec := httptest.NewRecorder()
	handler.AskHandler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var result models.AskResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, models.ConfidenceAccepted, result.Confidence)
	assert.Contains(t, result.AnswerHTML, "<strong>30 days</strong>")

	require.NotNil(t, agent.lastQuery)
	assert.Equal(t, "How long is the refund window?", agent.lastQuery.Text)
	assert.Len(t, agent.lastQuery.History, 2)
}

func TestAskHandlerRejectsEmptyQuestion(t *testing.T) {
	handler := NewAskHandler(&fakeAgentService{}, arbor.NewLogger())

	body := bytes.NewBufferString(`{"question": ""}`)
	req := httptest.NewRequest(http.MethodPost, "/api/ask", body)
	rec := httptest.NewRecorder()
	handler.AskHandler(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAskHandlerRejectsInvalidJSON(t *testing.T) {
	handler := NewAskHandler(&fakeAgentService{}, arbor.NewLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/ask", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	handler.AskHandler(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAskHandlerMethodNotAllowed(t *testing.T) {
	handler := NewAskHandler(&fakeAgentService{}, arbor.NewLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/ask", nil)
	rec := httptest.NewRecorder()
	handler.AskHandler(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestAskStreamHandlerEmitsSSEFrames(t *testing.T) {
	statusEvent := models.NewAgentEvent(models.EventStatus)
	statusEvent.Content = "selecting retrieval strategy"
	chunkEvent := models.NewAgentEvent(models.EventAnswerChunk)
	chunkEvent.Content = "Refunds are "
	doneEvent := models.NewAgentEvent(models.EventDone)

	agent := &fakeAgentService{
		result: &models.AskResult{Answer: "Refunds are issued.", Success: true},
		events: []models.AgentEvent{statusEvent, chunkEvent, doneEvent},
	}
	handler := NewAskHandler(agent, arbor.NewLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/ask/stream", askBody(t, "refunds?"))
	rec := httptest.NewRecorder()
	handler.AskStreamHandler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	frames := strings.Split(strings.TrimSpace(rec.Body.String()), "\n\n")
	require.Len(t, frames, 3)

	var types []models.AgentEventType
	for _, frame := range frames {
		require.True(t, strings.HasPrefix(frame, "data: "))
		var event models.AgentEvent
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(frame, "data: ")), &event))
		types = append(types, event.Type)
	}
	assert.Equal(t, []models.AgentEventType{models.EventStatus, models.EventAnswerChunk, models.EventDone}, types)
}

func TestAskHealthHandler(t *testing.T) {
	handler := NewAskHandler(&fakeAgentService{}, arbor.NewLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/ask/health", nil)
	rec := httptest.NewRecorder()
	handler.HealthHandler(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"healthy":true`)
}
