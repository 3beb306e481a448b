package agent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/respondeo/internal/common"
	"github.com/ternarybob/respondeo/internal/interfaces"
	"github.com/ternarybob/respondeo/internal/models"
	"github.com/ternarybob/respondeo/internal/services/tools"
)

// chatReply is one scripted LLM response
type chatReply struct {
	text      string
	truncated bool
	err       error
}

// fakeLoopLLM scripts Chat (judge) and ChatStream (synthesis) separately.
// Replies are consumed in order; the last reply repeats when exhausted.
type fakeLoopLLM struct {
	chatReplies   []chatReply
	streamReplies []chatReply
	chatCalls     int
	streamCalls   int
	lastMessages  []interfaces.Message
}

func pop(replies []chatReply, call int) chatReply {
	if len(replies) == 0 {
		return chatReply{text: "ok"}
	}
	if call >= len(replies) {
		return replies[len(replies)-1]
	}
	return replies[call]
}

func (f *fakeLoopLLM) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, errors.New("embedding not supported")
}

func (f *fakeLoopLLM) Chat(ctx context.Context, messages []interfaces.Message) (*interfaces.Completion, error) {
	reply := pop(f.chatReplies, f.chatCalls)
	f.chatCalls++
	if reply.err != nil {
		return nil, reply.err
	}
	return &interfaces.Completion{Text: reply.text, Truncated: reply.truncated}, nil
}

func (f *fakeLoopLLM) ChatStream(ctx context.Context, messages []interfaces.Message, onDelta func(string) error) (*interfaces.Completion, error) {
	reply := pop(f.streamReplies, f.streamCalls)
	f.streamCalls++
	f.lastMessages = messages
	if reply.err != nil {
		return nil, reply.err
	}
	if onDelta != nil {
		if err := onDelta(reply.text); err != nil {
			return nil, err
		}
	}
	return &interfaces.Completion{Text: reply.text, Truncated: reply.truncated}, nil
}

func (f *fakeLoopLLM) HealthCheck(ctx context.Context) error { return nil }
func (f *fakeLoopLLM) GetMode() interfaces.LLMMode           { return interfaces.LLMModeMock }
func (f *fakeLoopLLM) Close() error                          { return nil }

// fakeTool returns fixed passages or a fixed error for its kind
type fakeTool struct {
	kind     models.ToolKind
	passages []models.RetrievedPassage
	err      error
	calls    int
}

func (t *fakeTool) Kind() models.ToolKind { return t.kind }

func (t *fakeTool) Search(ctx context.Context, call models.ToolCall, query *models.Query) ([]models.RetrievedPassage, error) {
	t.calls++
	if t.err != nil {
		return nil, t.err
	}
	return t.passages, nil
}

func testAgentConfig() *common.AgentConfig {
	return &common.AgentConfig{
		TopKResults:          5,
		SimilarityThreshold:  0.7,
		MaxIterations:        3,
		EnableSelfReflection: true,
		MinGrounding:         0.7,
		MinCompleteness:      0.6,
		ToolTimeout:          "5s",
		SynthesisTimeout:     "5s",
	}
}

func newTestController(config *common.AgentConfig, llm *fakeLoopLLM, toolset ...tools.Tool) *Controller {
	logger := arbor.NewLogger()
	return NewController(
		config,
		NewRouter(config.TopKResults, logger),
		toolset,
		NewSynthesizer(llm, logger),
		NewEvaluator(llm, config.MinGrounding, config.MinCompleteness, logger),
		llm,
		logger,
	)
}

func testPassages() []models.RetrievedPassage {
	return []models.RetrievedPassage{
		{ChunkID: "chn_1", DocumentID: "doc_1", DocumentTitle: "Refund Policy", Score: 0.92, Text: "Refunds are issued within 30 days of purchase."},
		{ChunkID: "chn_2", DocumentID: "doc_1", DocumentTitle: "Refund Policy", Score: 0.81, Text: "Refunds are processed in 5 business days."},
	}
}

const acceptJudgeJSON = `{"grounding": 0.9, "completeness": 0.8, "contradiction": false, "rationale": "well grounded"}`
const rejectJudgeJSON = `{"grounding": 0.3, "completeness": 0.4, "contradiction": false, "rationale": "claims not supported by the passages"}`

func collectEvents(events *[]models.AgentEvent) interfaces.EventEmitter {
	return func(event models.AgentEvent) error {
		*events = append(*events, event)
		return nil
	}
}

func eventTypes(events []models.AgentEvent) []models.AgentEventType {
	types := make([]models.AgentEventType, 0, len(events))
	for _, e := range events {
		types = append(types, e.Type)
	}
	return types
}

func TestAskAcceptedFirstIteration(t *testing.T) {
	llm := &fakeLoopLLM{
		streamReplies: []chatReply{{text: "Refunds are issued within 30 days [1]."}},
		chatReplies:   []chatReply{{text: acceptJudgeJSON}},
	}
	semantic := &fakeTool{kind: models.ToolKindSemantic, passages: testPassages()}
	controller := newTestController(testAgentConfig(), llm, semantic)

	var events []models.AgentEvent
	query := &models.Query{Text: "How long is the refund window?"}
	result, err := controller.AskStream(context.Background(), query, collectEvents(&events))
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, models.ConfidenceAccepted, result.Confidence)
	assert.Equal(t, 1, result.Iterations)
	assert.Equal(t, 1, result.ToolCalls)
	require.Len(t, result.Citations, 1)
	assert.Equal(t, "chn_1", result.Citations[0].ChunkID)

	types := eventTypes(events)
	// Routing status, one tool pair, synthesis status, reflection pair,
	// then the answer sequence.
	require.GreaterOrEqual(t, len(types), 9)
	assert.Equal(t, models.EventStatus, types[0])
	assert.Equal(t, models.EventToolStart, types[1])
	assert.Equal(t, models.EventToolResult, types[2])
	assert.Equal(t, models.EventStatus, types[3])
	assert.Equal(t, models.EventReflectionStart, types[4])
	assert.Equal(t, models.EventReflectionResult, types[5])
	assert.Equal(t, models.EventAnswerStart, types[6])
	assert.Equal(t, models.EventAnswerChunk, types[7])
	assert.Equal(t, models.EventDone, types[len(types)-1])
	assert.Equal(t, models.EventMetadata, types[len(types)-2])
	assert.Equal(t, models.EventAnswerEnd, types[len(types)-3])
}

func TestAskStreamsAnswerAfterAcceptance(t *testing.T) {
	llm := &fakeLoopLLM{
		streamReplies: []chatReply{{text: "Refunds are issued within 30 days of purchase [1]."}},
		chatReplies:   []chatReply{{text: acceptJudgeJSON}},
	}
	semantic := &fakeTool{kind: models.ToolKindSemantic, passages: testPassages()}
	controller := newTestController(testAgentConfig(), llm, semantic)

	var events []models.AgentEvent
	result, err := controller.AskStream(context.Background(), &models.Query{Text: "refund window?"}, collectEvents(&events))
	require.NoError(t, err)

	reflectionSeen := false
	var rebuilt strings.Builder
	for _, e := range events {
		switch e.Type {
		case models.EventReflectionResult:
			reflectionSeen = true
		case models.EventAnswerChunk:
			assert.True(t, reflectionSeen, "answer chunk emitted before reflection settled")
			rebuilt.WriteString(e.Content)
		}
	}
	assert.Equal(t, result.Answer, rebuilt.String())
}

func TestAskReflectionDisabledSingleIteration(t *testing.T) {
	config := testAgentConfig()
	config.EnableSelfReflection = false

	llm := &fakeLoopLLM{
		streamReplies: []chatReply{{text: "Refunds take 5 business days [2]."}},
	}
	semantic := &fakeTool{kind: models.ToolKindSemantic, passages: testPassages()}
	controller := newTestController(config, llm, semantic)

	var events []models.AgentEvent
	result, err := controller.AskStream(context.Background(), &models.Query{Text: "refund processing time?"}, collectEvents(&events))
	require.NoError(t, err)

	assert.Equal(t, models.ConfidenceSkipped, result.Confidence)
	assert.Equal(t, 1, result.Iterations)
	assert.Equal(t, 0, llm.chatCalls, "judge must not run when reflection is disabled")
	for _, e := range events {
		assert.NotEqual(t, models.EventReflectionStart, e.Type)
		assert.NotEqual(t, models.EventReflectionResult, e.Type)
	}
}

func TestAskInsufficientInformation(t *testing.T) {
	llm := &fakeLoopLLM{}
	semantic := &fakeTool{kind: models.ToolKindSemantic}
	multi := &fakeTool{kind: models.ToolKindMultiQuery}
	exact := &fakeTool{kind: models.ToolKindExact}
	controller := newTestController(testAgentConfig(), llm, semantic, multi, exact)

	result, err := controller.Ask(context.Background(), &models.Query{Text: "What is the meaning of life?"})
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, models.ConfidenceNoGrounding, result.Confidence)
	assert.Equal(t, insufficientInformationAnswer, result.Answer)
	assert.Empty(t, result.Citations)
	assert.Equal(t, 0, llm.streamCalls, "no synthesis without passages")

	// All three strategies were exercised before giving up
	assert.Positive(t, semantic.calls)
	assert.Positive(t, multi.calls)
	assert.Positive(t, exact.calls)
}

func TestAskAllToolsUnavailable(t *testing.T) {
	llm := &fakeLoopLLM{}
	down := errors.New("index unavailable")
	semantic := &fakeTool{kind: models.ToolKindSemantic, err: down}
	multi := &fakeTool{kind: models.ToolKindMultiQuery, err: down}
	exact := &fakeTool{kind: models.ToolKindExact, err: down}
	controller := newTestController(testAgentConfig(), llm, semantic, multi, exact)

	var events []models.AgentEvent
	result, err := controller.AskStream(context.Background(), &models.Query{Text: "anything at all"}, collectEvents(&events))

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAllToolsUnavailable))
	assert.Nil(t, result)

	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, models.EventError, last.Type)

	// Failed invocations were still reported, not swallowed
	failures := 0
	for _, e := range events {
		if e.Type == models.EventToolResult && e.Invocation != nil && e.Invocation.Status == models.InvocationFailure {
			failures++
		}
	}
	assert.GreaterOrEqual(t, failures, 3)
}

func TestAskToolFailureDoesNotAbortWhenAnotherSucceeds(t *testing.T) {
	llm := &fakeLoopLLM{
		streamReplies: []chatReply{{text: "Refunds are issued within 30 days [1]."}},
		chatReplies:   []chatReply{{text: acceptJudgeJSON}},
	}
	semantic := &fakeTool{kind: models.ToolKindSemantic, passages: testPassages()}
	exact := &fakeTool{kind: models.ToolKindExact, err: errors.New("store closed")}
	controller := newTestController(testAgentConfig(), llm, semantic, exact)

	query := &models.Query{Text: `What does the "Refund Policy" say?`}
	result, err := controller.Ask(context.Background(), query)
	require.NoError(t, err)
	assert.Equal(t, models.ConfidenceAccepted, result.Confidence)
	assert.Equal(t, 1, exact.calls, "quoted phrase routes exact match on the first pass")
}

func TestAskRejectedThenRevised(t *testing.T) {
	llm := &fakeLoopLLM{
		streamReplies: []chatReply{
			{text: "Refunds take about a month."},
			{text: "Refunds are issued within 30 days of purchase [1]."},
		},
		chatReplies: []chatReply{
			{text: rejectJudgeJSON},
			{text: acceptJudgeJSON},
		},
	}
	semantic := &fakeTool{kind: models.ToolKindSemantic, passages: testPassages()}
	multi := &fakeTool{kind: models.ToolKindMultiQuery, passages: testPassages()}
	exact := &fakeTool{kind: models.ToolKindExact}
	controller := newTestController(testAgentConfig(), llm, semantic, multi, exact)

	var events []models.AgentEvent
	result, err := controller.AskStream(context.Background(), &models.Query{Text: "How long until a refund?"}, collectEvents(&events))
	require.NoError(t, err)

	assert.Equal(t, models.ConfidenceAccepted, result.Confidence)
	assert.Equal(t, 2, result.Iterations)
	assert.Equal(t, 1, multi.calls, "revision escalates to multi-query")

	revised := false
	for _, e := range events {
		if e.Type == models.EventStatus && e.State == models.StateRevising {
			revised = true
		}
	}
	assert.True(t, revised)

	// The revision pass carries the rejection rationale into the prompt
	require.NotEmpty(t, llm.lastMessages)
	prompt := llm.lastMessages[len(llm.lastMessages)-1].Content
	assert.Contains(t, prompt, "claims not supported by the passages")
}

func TestAskExhaustedDeliversUnverified(t *testing.T) {
	config := testAgentConfig()
	config.MaxIterations = 2

	llm := &fakeLoopLLM{
		streamReplies: []chatReply{
			{text: "First draft."},
			{text: "Second draft [1]."},
		},
		chatReplies: []chatReply{{text: rejectJudgeJSON}},
	}
	semantic := &fakeTool{kind: models.ToolKindSemantic, passages: testPassages()}
	multi := &fakeTool{kind: models.ToolKindMultiQuery, passages: testPassages()}
	exact := &fakeTool{kind: models.ToolKindExact, passages: nil}
	controller := newTestController(config, llm, semantic, multi, exact)

	result, err := controller.Ask(context.Background(), &models.Query{Text: "refund terms?"})
	require.NoError(t, err)

	assert.Equal(t, models.ConfidenceUnverified, result.Confidence)
	assert.Equal(t, "Second draft [1].", result.Answer)
	assert.Equal(t, 2, result.Iterations)
}

func TestAskSynthesisFailureIsFatal(t *testing.T) {
	llm := &fakeLoopLLM{
		streamReplies: []chatReply{{err: errors.New("provider overloaded")}},
	}
	semantic := &fakeTool{kind: models.ToolKindSemantic, passages: testPassages()}
	controller := newTestController(testAgentConfig(), llm, semantic)

	result, err := controller.Ask(context.Background(), &models.Query{Text: "refund terms?"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSynthesisFailed))
	assert.Nil(t, result)
	assert.Equal(t, 2, llm.streamCalls, "synthesis is retried once before failing")
}

func TestAskEmptyQuery(t *testing.T) {
	controller := newTestController(testAgentConfig(), &fakeLoopLLM{})

	_, err := controller.Ask(context.Background(), &models.Query{Text: "   "})
	assert.Error(t, err)

	_, err = controller.Ask(context.Background(), nil)
	assert.Error(t, err)
}

func TestAskIterationsNeverExceedBudget(t *testing.T) {
	config := testAgentConfig()
	config.MaxIterations = 3

	llm := &fakeLoopLLM{
		streamReplies: []chatReply{{text: "Draft."}},
		chatReplies:   []chatReply{{text: rejectJudgeJSON}},
	}
	semantic := &fakeTool{kind: models.ToolKindSemantic, passages: testPassages()}
	multi := &fakeTool{kind: models.ToolKindMultiQuery, passages: testPassages()}
	exact := &fakeTool{kind: models.ToolKindExact, passages: testPassages()}
	controller := newTestController(config, llm, semantic, multi, exact)

	result, err := controller.Ask(context.Background(), &models.Query{Text: "refund terms?"})
	require.NoError(t, err)
	assert.LessOrEqual(t, result.Iterations, config.MaxIterations)
	assert.Equal(t, config.MaxIterations, llm.streamCalls)
}

func TestAskContextCancellation(t *testing.T) {
	llm := &fakeLoopLLM{}
	semantic := &fakeTool{kind: models.ToolKindSemantic, passages: testPassages()}
	controller := newTestController(testAgentConfig(), llm, semantic)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := controller.Ask(ctx, &models.Query{Text: "refund terms?"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}
