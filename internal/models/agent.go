package models

import "time"

// ToolKind identifies a retrieval strategy. The set is closed: the router
// selects from these variants explicitly, never by runtime string lookup.
type ToolKind string

const (
	ToolKindSemantic   ToolKind = "semantic_search"
	ToolKindMultiQuery ToolKind = "multi_query_search"
	ToolKindExact      ToolKind = "exact_match_search"
)

// InvocationStatus records the outcome of a single tool execution
type InvocationStatus string

const (
	InvocationSuccess InvocationStatus = "success"
	InvocationFailure InvocationStatus = "failure"
)

// AgentState is a state of the query-answering loop
type AgentState string

const (
	StateRouting      AgentState = "routing"
	StateRetrieving   AgentState = "retrieving"
	StateSynthesizing AgentState = "synthesizing"
	StateReflecting   AgentState = "reflecting"
	StateAccepted     AgentState = "accepted"
	StateRevising     AgentState = "revising"
	StateExhausted    AgentState = "exhausted"
)

// Confidence describes how the final answer was validated
type Confidence string

const (
	ConfidenceAccepted    Confidence = "accepted"    // reflection accepted the answer
	ConfidenceSkipped     Confidence = "skipped"     // reflection disabled by config
	ConfidenceUnverified  Confidence = "unverified"  // iteration budget exhausted without acceptance
	ConfidenceNoGrounding Confidence = "no_grounding" // no passages found, explicit insufficient-information answer
)

// Turn is one prior exchange in the conversation history
type Turn struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// Query is the user question plus ordered conversation history.
// Immutable once received.
type Query struct {
	Text    string `json:"text"`
	History []Turn `json:"history,omitempty"`
}

// RetrievedPassage is a ranked retrieval result. Produced by a tool,
// read-only afterward.
type RetrievedPassage struct {
	ChunkID       string   `json:"chunk_id"`
	Text          string   `json:"text"`
	DocumentID    string   `json:"document_id"`
	DocumentTitle string   `json:"document_title"`
	Score         float64  `json:"score"` // 0-1 relevance
	Strategy      ToolKind `json:"strategy"`
}

// ToolParams carries the input parameters for one tool call
type ToolParams struct {
	Query      string   `json:"query,omitempty"`
	SubQueries []string `json:"sub_queries,omitempty"`
	Keyword    string   `json:"keyword,omitempty"`
	TopK       int      `json:"top_k,omitempty"`
}

// ToolCall is one router decision: a tool kind plus its parameters
type ToolCall struct {
	Kind   ToolKind   `json:"kind"`
	Params ToolParams `json:"params"`
}

// ToolInvocation is the record of one executed tool call, appended to the
// session's ordered invocation log.
type ToolInvocation struct {
	Kind      ToolKind           `json:"kind"`
	Params    ToolParams         `json:"params"`
	Passages  []RetrievedPassage `json:"passages,omitempty"`
	Status    InvocationStatus   `json:"status"`
	Error     string             `json:"error,omitempty"`
	Iteration int                `json:"iteration"`
	StartedAt time.Time          `json:"started_at"`
	Duration  time.Duration      `json:"duration"`
}

// Citation points at a passage the answer actually used
type Citation struct {
	ChunkID       string  `json:"chunk_id"`
	DocumentID    string  `json:"document_id"`
	DocumentTitle string  `json:"document_title"`
	Score         float64 `json:"score"`
}

// Candidate is a draft answer. Superseded, never mutated, by later
// candidates within the same session.
type Candidate struct {
	Answer    string             `json:"answer"`
	Passages  []RetrievedPassage `json:"passages"` // grounding set the draft was synthesized from
	Citations []Citation         `json:"citations"` // subset actually cited by the answer
	Iteration int                `json:"iteration"`
	Truncated bool               `json:"truncated"` // provider cut the generation short
}

// ReflectionVerdict is the evaluator's judgement of one candidate
type ReflectionVerdict struct {
	Grounding     float64 `json:"grounding"`    // 0-1
	Completeness  float64 `json:"completeness"` // 0-1
	Contradiction bool    `json:"contradiction"`
	Accept        bool    `json:"accept"`
	Rationale     string  `json:"rationale"`
	Skipped       bool    `json:"skipped,omitempty"` // reflection disabled
	Implicit      bool    `json:"implicit,omitempty"` // evaluator failed, accepted by policy
}

// AgentSession owns the per-query loop state. Created at query receipt,
// mutated only by the loop controller, discarded after delivery.
type AgentSession struct {
	ID          string              `json:"id"` // ans_{uuid}
	Query       *Query              `json:"query"`
	Invocations []ToolInvocation    `json:"invocations"`
	Candidates  []Candidate         `json:"candidates"`
	Verdicts    []ReflectionVerdict `json:"verdicts"`
	State       AgentState          `json:"state"`
	Iteration   int                 `json:"iteration"`
	StartedAt   time.Time           `json:"started_at"`
}

// ToolCallCount returns the number of tool invocations recorded so far
func (s *AgentSession) ToolCallCount() int {
	return len(s.Invocations)
}

// LastCandidate returns the most recent candidate, or nil
func (s *AgentSession) LastCandidate() *Candidate {
	if len(s.Candidates) == 0 {
		return nil
	}
	return &s.Candidates[len(s.Candidates)-1]
}

// AskResult is the final structured result mapped from the terminal state
type AskResult struct {
	Answer     string     `json:"answer"`
	AnswerHTML string     `json:"answer_html,omitempty"`
	Citations  []Citation `json:"citations"`
	Iterations int        `json:"iterations"`
	ToolCalls  int        `json:"tool_calls"`
	Success    bool       `json:"success"`
	Confidence Confidence `json:"confidence"`
}
