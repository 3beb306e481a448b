package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/respondeo/internal/common"
	"github.com/ternarybob/respondeo/internal/interfaces"
	"github.com/ternarybob/respondeo/internal/models"
	"github.com/ternarybob/respondeo/internal/services/tools"
)

const insufficientInformationAnswer = "I don't have enough information in the ingested documents to answer this question."

// answerChunkWords is how many words each answer_chunk event carries
const answerChunkWords = 3

// Controller runs the bounded retrieve-synthesize-reflect loop. All
// mutation of the session happens here; tools, synthesizer, and evaluator
// are pure collaborators.
type Controller struct {
	config      *common.AgentConfig
	router      *Router
	toolset     map[models.ToolKind]tools.Tool
	synthesizer *Synthesizer
	evaluator   *Evaluator
	llm         interfaces.LLMService
	logger      arbor.ILogger
}

// NewController creates the agent loop controller
func NewController(
	config *common.AgentConfig,
	router *Router,
	toolset []tools.Tool,
	synthesizer *Synthesizer,
	evaluator *Evaluator,
	llm interfaces.LLMService,
	logger arbor.ILogger,
) *Controller {
	byKind := make(map[models.ToolKind]tools.Tool, len(toolset))
	for _, t := range toolset {
		byKind[t.Kind()] = t
	}

	return &Controller{
		config:      config,
		router:      router,
		toolset:     byKind,
		synthesizer: synthesizer,
		evaluator:   evaluator,
		llm:         llm,
		logger:      logger,
	}
}

// Ask runs the loop to completion without streaming
func (c *Controller) Ask(ctx context.Context, query *models.Query) (*models.AskResult, error) {
	return c.AskStream(ctx, query, nil)
}

// AskStream runs the loop, emitting ordered events. Event order per
// iteration: status(routing) -> tool_start/tool_result per call ->
// status(synthesizing) -> reflection_start/reflection_result -> either
// the answer sequence (answer_start, answer_chunk*, answer_end, metadata,
// done) or status(revising).
func (c *Controller) AskStream(ctx context.Context, query *models.Query, emit interfaces.EventEmitter) (*models.AskResult, error) {
	if query == nil || strings.TrimSpace(query.Text) == "" {
		return nil, ErrNoQuery
	}
	if emit == nil {
		emit = func(models.AgentEvent) error { return nil }
	}

	session := &models.AgentSession{
		ID:        common.NewSessionID(),
		Query:     query,
		State:     models.StateRouting,
		StartedAt: time.Now(),
	}

	c.logger.Info().
		Str("session_id", session.ID).
		Int("max_iterations", c.config.MaxIterations).
		Bool("reflection", c.config.EnableSelfReflection).
		Msg("Starting answer session")

	maxIterations := c.config.MaxIterations
	if maxIterations < 1 {
		maxIterations = 1
	}
	if !c.config.EnableSelfReflection {
		// Without reflection there is nothing to revise against
		maxIterations = 1
	}

	rejection := ""

	for iter := 1; iter <= maxIterations; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		session.Iteration = iter

		// Retrieve
		session.State = models.StateRouting
		if err := c.emitStatus(emit, session, "selecting retrieval strategy"); err != nil {
			return nil, err
		}
		calls := c.router.Route(query, session)

		session.State = models.StateRetrieving
		for _, call := range calls {
			if err := c.runTool(ctx, session, call, emit); err != nil {
				return nil, err
			}
		}

		pool := c.passagePool(session)

		if len(pool) == 0 {
			done, result, err := c.handleEmptyPool(session, iter, maxIterations, emit)
			if err != nil {
				return nil, err
			}
			if done {
				return c.deliver(session, result, emit)
			}
			// Untried strategies remain: go around again
			session.State = models.StateRevising
			if err := c.emitStatus(emit, session, "no passages found, escalating retrieval"); err != nil {
				return nil, err
			}
			continue
		}

		// Synthesize
		session.State = models.StateSynthesizing
		if err := c.emitStatus(emit, session, "drafting answer"); err != nil {
			return nil, err
		}

		synthCtx, cancel := context.WithTimeout(ctx, c.config.SynthesisTimeoutDuration())
		candidate, err := c.synthesizer.Synthesize(synthCtx, query, pool, rejection, iter)
		cancel()
		if err != nil {
			c.emitError(emit, session, err)
			return nil, err
		}
		session.Candidates = append(session.Candidates, *candidate)

		// Reflect
		if !c.config.EnableSelfReflection {
			verdict := models.ReflectionVerdict{Accept: true, Skipped: true, Rationale: "self-reflection disabled"}
			session.Verdicts = append(session.Verdicts, verdict)
			session.State = models.StateAccepted
			return c.deliver(session, c.buildResult(session, candidate, models.ConfidenceSkipped), emit)
		}

		session.State = models.StateReflecting
		startEvent := models.NewAgentEvent(models.EventReflectionStart)
		startEvent.State = session.State
		startEvent.Iteration = iter
		if err := emit(startEvent); err != nil {
			return nil, err
		}

		reflectCtx, cancel := context.WithTimeout(ctx, c.config.SynthesisTimeoutDuration())
		verdict := c.evaluator.Evaluate(reflectCtx, query, candidate)
		cancel()
		session.Verdicts = append(session.Verdicts, *verdict)

		resultEvent := models.NewAgentEvent(models.EventReflectionResult)
		resultEvent.State = session.State
		resultEvent.Iteration = iter
		resultEvent.Verdict = verdict
		if err := emit(resultEvent); err != nil {
			return nil, err
		}

		if verdict.Accept {
			session.State = models.StateAccepted
			return c.deliver(session, c.buildResult(session, candidate, models.ConfidenceAccepted), emit)
		}

		if iter == maxIterations {
			break
		}

		rejection = verdict.Rationale
		session.State = models.StateRevising
		if err := c.emitStatus(emit, session, "answer rejected, revising"); err != nil {
			return nil, err
		}
	}

	// Iteration budget exhausted without acceptance: deliver the last
	// candidate marked unverified rather than nothing.
	session.State = models.StateExhausted
	last := session.LastCandidate()
	if last == nil {
		result := c.insufficientResult(session)
		return c.deliver(session, result, emit)
	}
	return c.deliver(session, c.buildResult(session, last, models.ConfidenceUnverified), emit)
}

// HealthCheck verifies the agent's collaborators are operational
func (c *Controller) HealthCheck(ctx context.Context) error {
	if c.llm == nil {
		return fmt.Errorf("LLM service is not configured")
	}
	return c.llm.HealthCheck(ctx)
}

// runTool executes one routed tool call, records the invocation, and emits
// the start/result events. Tool errors become failed invocations; they
// never abort the session.
func (c *Controller) runTool(ctx context.Context, session *models.AgentSession, call models.ToolCall, emit interfaces.EventEmitter) error {
	startEvent := models.NewAgentEvent(models.EventToolStart)
	startEvent.State = session.State
	startEvent.Iteration = session.Iteration
	startEvent.Tool = call.Kind
	if err := emit(startEvent); err != nil {
		return err
	}

	invocation := models.ToolInvocation{
		Kind:      call.Kind,
		Params:    call.Params,
		Iteration: session.Iteration,
		StartedAt: time.Now(),
	}

	tool, ok := c.toolset[call.Kind]
	if !ok {
		invocation.Status = models.InvocationFailure
		invocation.Error = fmt.Sprintf("no tool registered for kind %s", call.Kind)
	} else {
		toolCtx, cancel := context.WithTimeout(ctx, c.config.ToolTimeoutDuration())
		passages, err := tool.Search(toolCtx, call, session.Query)
		cancel()

		if err != nil {
			invocation.Status = models.InvocationFailure
			invocation.Error = err.Error()
			c.logger.Warn().
				Err(err).
				Str("tool", string(call.Kind)).
				Int("iteration", session.Iteration).
				Msg("Tool invocation failed")
		} else {
			invocation.Status = models.InvocationSuccess
			invocation.Passages = passages
		}
	}
	invocation.Duration = time.Since(invocation.StartedAt)
	session.Invocations = append(session.Invocations, invocation)

	resultEvent := models.NewAgentEvent(models.EventToolResult)
	resultEvent.State = session.State
	resultEvent.Iteration = session.Iteration
	resultEvent.Tool = call.Kind
	resultEvent.Invocation = &invocation
	return emit(resultEvent)
}

// passagePool merges all successful retrievals of the session so far,
// deduplicated by chunk with the best score kept.
func (c *Controller) passagePool(session *models.AgentSession) []models.RetrievedPassage {
	lists := make([][]models.RetrievedPassage, 0, len(session.Invocations))
	for _, inv := range session.Invocations {
		if inv.Status == models.InvocationSuccess {
			lists = append(lists, inv.Passages)
		}
	}
	return tools.MergeRanked(lists...)
}

// handleEmptyPool decides what an empty retrieval pool means. Returns
// done=true with a result when the session should end now.
func (c *Controller) handleEmptyPool(session *models.AgentSession, iter, maxIterations int, emit interfaces.EventEmitter) (bool, *models.AskResult, error) {
	allFailed := true
	for _, inv := range session.Invocations {
		if inv.Status == models.InvocationSuccess {
			allFailed = false
			break
		}
	}

	tried := make(map[models.ToolKind]bool)
	for _, inv := range session.Invocations {
		tried[inv.Kind] = true
	}
	allKindsTried := tried[models.ToolKindSemantic] && tried[models.ToolKindMultiQuery] && tried[models.ToolKindExact]

	if allFailed && allKindsTried {
		// Every strategy was exercised and every invocation failed
		c.emitError(emit, session, ErrAllToolsUnavailable)
		return false, nil, ErrAllToolsUnavailable
	}

	if iter < maxIterations && !allKindsTried {
		return false, nil, nil // escalate and retry
	}

	// Tools ran but the corpus has nothing relevant: answer honestly
	return true, c.insufficientResult(session), nil
}

// insufficientResult builds the explicit no-grounding answer. This is a
// successful outcome: the honest answer is that the corpus cannot answer.
func (c *Controller) insufficientResult(session *models.AgentSession) *models.AskResult {
	return &models.AskResult{
		Answer:     insufficientInformationAnswer,
		Citations:  []models.Citation{},
		Iterations: session.Iteration,
		ToolCalls:  session.ToolCallCount(),
		Success:    true,
		Confidence: models.ConfidenceNoGrounding,
	}
}

// buildResult maps the terminal session state to the caller-facing result
func (c *Controller) buildResult(session *models.AgentSession, candidate *models.Candidate, confidence models.Confidence) *models.AskResult {
	citations := candidate.Citations
	if citations == nil {
		citations = []models.Citation{}
	}
	return &models.AskResult{
		Answer:     candidate.Answer,
		Citations:  citations,
		Iterations: session.Iteration,
		ToolCalls:  session.ToolCallCount(),
		Success:    true,
		Confidence: confidence,
	}
}

// deliver streams the accepted answer and terminal events. The answer is
// released only now, after reflection settled, in small word groups so
// transports can relay progressively.
func (c *Controller) deliver(session *models.AgentSession, result *models.AskResult, emit interfaces.EventEmitter) (*models.AskResult, error) {
	startEvent := models.NewAgentEvent(models.EventAnswerStart)
	startEvent.State = session.State
	startEvent.Iteration = session.Iteration
	if err := emit(startEvent); err != nil {
		return nil, err
	}

	words := strings.Fields(result.Answer)
	for i := 0; i < len(words); i += answerChunkWords {
		end := i + answerChunkWords
		if end > len(words) {
			end = len(words)
		}
		chunk := strings.Join(words[i:end], " ")
		if end < len(words) {
			chunk += " "
		}

		chunkEvent := models.NewAgentEvent(models.EventAnswerChunk)
		chunkEvent.Content = chunk
		if err := emit(chunkEvent); err != nil {
			return nil, err
		}
	}

	endEvent := models.NewAgentEvent(models.EventAnswerEnd)
	if err := emit(endEvent); err != nil {
		return nil, err
	}

	metaEvent := models.NewAgentEvent(models.EventMetadata)
	metaEvent.State = session.State
	metaEvent.Iteration = session.Iteration
	metaEvent.Result = result
	if err := emit(metaEvent); err != nil {
		return nil, err
	}

	doneEvent := models.NewAgentEvent(models.EventDone)
	if err := emit(doneEvent); err != nil {
		return nil, err
	}

	c.logger.Info().
		Str("session_id", session.ID).
		Str("confidence", string(result.Confidence)).
		Int("iterations", result.Iterations).
		Int("tool_calls", result.ToolCalls).
		Dur("duration", time.Since(session.StartedAt)).
		Msg("Answer session completed")

	return result, nil
}

// emitStatus sends a status event for the session's current state
func (c *Controller) emitStatus(emit interfaces.EventEmitter, session *models.AgentSession, content string) error {
	event := models.NewAgentEvent(models.EventStatus)
	event.State = session.State
	event.Iteration = session.Iteration
	event.Content = content
	return emit(event)
}

// emitError sends an error event. Emission failures are ignored: the
// session is already failing.
func (c *Controller) emitError(emit interfaces.EventEmitter, session *models.AgentSession, err error) {
	event := models.NewAgentEvent(models.EventError)
	event.State = session.State
	event.Iteration = session.Iteration
	event.Content = err.Error()
	_ = emit(event)
}
