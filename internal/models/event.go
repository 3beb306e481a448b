package models

import "time"

// AgentEventType identifies an entry on the agent's event stream
type AgentEventType string

const (
	EventStatus           AgentEventType = "status"
	EventToolStart        AgentEventType = "tool_start"
	EventToolResult       AgentEventType = "tool_result"
	EventReflectionStart  AgentEventType = "reflection_start"
	EventReflectionResult AgentEventType = "reflection_result"
	EventAnswerStart      AgentEventType = "answer_start"
	EventAnswerChunk      AgentEventType = "answer_chunk"
	EventAnswerEnd        AgentEventType = "answer_end"
	EventMetadata         AgentEventType = "metadata"
	EventError            AgentEventType = "error"
	EventDone             AgentEventType = "done"
)

// AgentEvent is one entry on the ordered, append-only event stream the
// transport layer relays to the caller. Event order is significant: per
// iteration it follows routing -> tool events -> synthesis -> reflection ->
// answer/metadata/done.
type AgentEvent struct {
	Type      AgentEventType     `json:"type"`
	State     AgentState         `json:"state,omitempty"`
	Iteration int                `json:"iteration,omitempty"`
	Tool      ToolKind           `json:"tool,omitempty"`
	Content   string             `json:"content,omitempty"`
	Invocation *ToolInvocation   `json:"invocation,omitempty"`
	Verdict   *ReflectionVerdict `json:"verdict,omitempty"`
	Result    *AskResult         `json:"result,omitempty"`
	Timestamp string             `json:"timestamp"`
}

// NewAgentEvent stamps an event with the current time
func NewAgentEvent(t AgentEventType) AgentEvent {
	return AgentEvent{
		Type:      t,
		Timestamp: time.Now().Format(time.RFC3339),
	}
}
