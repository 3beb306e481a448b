package agent

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/respondeo/internal/models"
	"github.com/ternarybob/respondeo/internal/services/tools"
)

// Router decides which retrieval tools to run next. Decisions are a pure
// function of the query and the session's invocation log, so a replayed
// session routes identically.
type Router struct {
	topK   int
	logger arbor.ILogger
}

// NewRouter creates a router with the configured default result width
func NewRouter(topK int, logger arbor.ILogger) *Router {
	if topK <= 0 {
		topK = 5
	}
	return &Router{
		topK:   topK,
		logger: logger,
	}
}

// Route returns the tool calls for the current iteration. Strategy
// escalates across iterations:
//   - first pass: semantic search, plus exact match when the question
//     carries a quoted phrase
//   - first revision: multi-query expansion, plus exact match if untried
//   - further revisions: any untried strategy, then multi-query again
//     with a widened result window
func (r *Router) Route(query *models.Query, session *models.AgentSession) []models.ToolCall {
	tried := make(map[models.ToolKind]bool)
	for _, inv := range session.Invocations {
		tried[inv.Kind] = true
	}

	var calls []models.ToolCall

	switch {
	case len(session.Invocations) == 0:
		calls = append(calls, models.ToolCall{
			Kind:   models.ToolKindSemantic,
			Params: models.ToolParams{Query: query.Text, TopK: r.topK},
		})
		if phrase := tools.QuotedPhrase(query.Text); phrase != "" {
			calls = append(calls, models.ToolCall{
				Kind:   models.ToolKindExact,
				Params: models.ToolParams{Keyword: phrase, TopK: r.topK},
			})
		}

	case !tried[models.ToolKindMultiQuery]:
		calls = append(calls, models.ToolCall{
			Kind:   models.ToolKindMultiQuery,
			Params: models.ToolParams{Query: query.Text, TopK: r.topK},
		})
		if !tried[models.ToolKindExact] {
			calls = append(calls, models.ToolCall{
				Kind:   models.ToolKindExact,
				Params: models.ToolParams{Keyword: tools.ExtractKeyword(query.Text), TopK: r.topK},
			})
		}

	case !tried[models.ToolKindExact]:
		calls = append(calls, models.ToolCall{
			Kind:   models.ToolKindExact,
			Params: models.ToolParams{Keyword: tools.ExtractKeyword(query.Text), TopK: r.topK},
		})

	default:
		// Everything tried: widen the multi-query window
		calls = append(calls, models.ToolCall{
			Kind:   models.ToolKindMultiQuery,
			Params: models.ToolParams{Query: query.Text, TopK: r.topK * 2},
		})
	}

	r.logger.Debug().
		Int("iteration", session.Iteration).
		Int("calls", len(calls)).
		Msg("Routed retrieval strategies")

	return calls
}
