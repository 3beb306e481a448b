package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/respondeo/internal/interfaces"
	"github.com/ternarybob/respondeo/internal/models"
)

const paraphrasePrompt = `Rewrite the question below as %d alternative search queries that each emphasize a different aspect of it. Respond with a JSON array of strings only, no prose.

Question: %s`

// MultiQueryTool expands the question into paraphrased sub-queries, runs a
// semantic search for each concurrently, and merges the result lists
// deduplicated by chunk with the best score kept.
type MultiQueryTool struct {
	llm        interfaces.LLMService
	semantic   *SemanticTool
	maxQueries int
	logger     arbor.ILogger
}

// NewMultiQueryTool creates the multi-query search tool
func NewMultiQueryTool(llm interfaces.LLMService, semantic *SemanticTool, maxQueries int, logger arbor.ILogger) *MultiQueryTool {
	if maxQueries <= 0 {
		maxQueries = 3
	}
	return &MultiQueryTool{
		llm:        llm,
		semantic:   semantic,
		maxQueries: maxQueries,
		logger:     logger,
	}
}

// Kind identifies the strategy
func (t *MultiQueryTool) Kind() models.ToolKind {
	return models.ToolKindMultiQuery
}

// Search expands the query and merges concurrent semantic sub-searches
func (t *MultiQueryTool) Search(ctx context.Context, call models.ToolCall, query *models.Query) ([]models.RetrievedPassage, error) {
	text := call.Params.Query
	if text == "" {
		text = query.Text
	}
	if text == "" {
		return nil, fmt.Errorf("multi-query search requires a query")
	}

	subQueries := call.Params.SubQueries
	if len(subQueries) == 0 {
		subQueries = t.expandQuery(ctx, text, query)
	}

	// The original query always participates
	all := append([]string{text}, subQueries...)

	type subResult struct {
		passages []models.RetrievedPassage
		err      error
	}

	results := make([]subResult, len(all))
	var wg sync.WaitGroup
	for i, sq := range all {
		wg.Add(1)
		go func(i int, sq string) {
			defer wg.Done()
			subCall := models.ToolCall{
				Kind:   models.ToolKindSemantic,
				Params: models.ToolParams{Query: sq, TopK: call.Params.TopK},
			}
			passages, err := t.semantic.Search(ctx, subCall, query)
			results[i] = subResult{passages: passages, err: err}
		}(i, sq)
	}
	wg.Wait()

	lists := make([][]models.RetrievedPassage, 0, len(results))
	failures := 0
	var lastErr error
	for _, r := range results {
		if r.err != nil {
			failures++
			lastErr = r.err
			continue
		}
		lists = append(lists, r.passages)
	}

	// Partial sub-query failure is tolerated; total failure is not
	if failures == len(results) {
		return nil, fmt.Errorf("all %d sub-queries failed: %w", failures, lastErr)
	}

	merged := MergeRanked(lists...)
	for i := range merged {
		merged[i].Strategy = models.ToolKindMultiQuery
	}

	t.logger.Debug().
		Str("query", text).
		Int("sub_queries", len(all)).
		Int("failed", failures).
		Int("results", len(merged)).
		Msg("Multi-query search completed")

	return merged, nil
}

// expandQuery asks the LLM for paraphrases, falling back to deterministic
// variants when generation fails or returns unusable output. The last user
// turn disambiguates follow-up questions ("and how fast is it?").
func (t *MultiQueryTool) expandQuery(ctx context.Context, text string, query *models.Query) []string {
	prompt := fmt.Sprintf(paraphrasePrompt, t.maxQueries, text)
	if query != nil {
		for i := len(query.History) - 1; i >= 0; i-- {
			if query.History[i].Role == "user" {
				prompt += "\n\nEarlier question for context: " + query.History[i].Content
				break
			}
		}
	}

	completion, err := t.llm.Chat(ctx, []interfaces.Message{
		{Role: "user", Content: prompt},
	})
	if err != nil {
		t.logger.Debug().Err(err).Msg("Paraphrase generation failed, using deterministic expansion")
		return deterministicExpansion(text, t.maxQueries)
	}

	var paraphrases []string
	raw := stripJSONFence(completion.Text)
	if err := json.Unmarshal([]byte(raw), &paraphrases); err != nil {
		t.logger.Debug().Err(err).Msg("Paraphrase output unparseable, using deterministic expansion")
		return deterministicExpansion(text, t.maxQueries)
	}

	cleaned := make([]string, 0, t.maxQueries)
	for _, p := range paraphrases {
		p = strings.TrimSpace(p)
		if p == "" || strings.EqualFold(p, text) {
			continue
		}
		cleaned = append(cleaned, p)
		if len(cleaned) == t.maxQueries {
			break
		}
	}

	if len(cleaned) == 0 {
		return deterministicExpansion(text, t.maxQueries)
	}
	return cleaned
}

// deterministicExpansion builds sub-queries without an LLM: question
// reframings that shift lexical emphasis while preserving the key terms.
func deterministicExpansion(text string, max int) []string {
	variants := []string{
		"key facts about " + text,
		"details and conditions for " + text,
		"explanation of " + text,
	}
	if max < len(variants) {
		variants = variants[:max]
	}
	return variants
}

// stripJSONFence removes a surrounding ```json ... ``` fence if present
func stripJSONFence(s string) string {
	trimmed := strings.TrimSpace(s)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```json")
		trimmed = strings.TrimPrefix(trimmed, "```")
		if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
			trimmed = trimmed[:idx]
		}
		trimmed = strings.TrimSpace(trimmed)
	}
	return trimmed
}
