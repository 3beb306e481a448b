package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/respondeo/internal/interfaces"
	"github.com/ternarybob/respondeo/internal/models"
)

// ExactMatchTool retrieves passages containing a literal keyword or phrase.
// For identifiers, error codes, and quoted phrases where embeddings blur
// the signal.
type ExactMatchTool struct {
	storage interfaces.PassageStorage
	logger  arbor.ILogger
}

// NewExactMatchTool creates the exact match search tool
func NewExactMatchTool(storage interfaces.PassageStorage, logger arbor.ILogger) *ExactMatchTool {
	return &ExactMatchTool{
		storage: storage,
		logger:  logger,
	}
}

// Kind identifies the strategy
func (t *ExactMatchTool) Kind() models.ToolKind {
	return models.ToolKindExact
}

// Search finds passages containing the keyword, ranked by match density
// (occurrences per passage length) so short focused passages outrank long
// ones that mention the term in passing.
func (t *ExactMatchTool) Search(ctx context.Context, call models.ToolCall, query *models.Query) ([]models.RetrievedPassage, error) {
	keyword := call.Params.Keyword
	if keyword == "" {
		keyword = ExtractKeyword(query.Text)
	}
	if keyword == "" {
		return nil, fmt.Errorf("exact match search requires a keyword")
	}

	limit := call.Params.TopK
	if limit <= 0 {
		limit = 5
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Over-fetch so density ranking has candidates to discard
	passages, err := t.storage.KeywordSearch(keyword, limit*4)
	if err != nil {
		return nil, fmt.Errorf("keyword search failed: %w", err)
	}

	results := make([]models.RetrievedPassage, 0, len(passages))
	for _, p := range passages {
		score := matchDensity(p.Text, keyword)
		if score <= 0 {
			continue
		}
		results = append(results, models.RetrievedPassage{
			ChunkID:       p.ID,
			Text:          p.Text,
			DocumentID:    p.DocumentID,
			DocumentTitle: p.DocumentTitle,
			Score:         score,
			Strategy:      models.ToolKindExact,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ChunkID < results[j].ChunkID
	})

	if len(results) > limit {
		results = results[:limit]
	}

	t.logger.Debug().
		Str("keyword", keyword).
		Int("results", len(results)).
		Msg("Exact match search completed")

	return results, nil
}

// matchDensity scores a passage by keyword occurrences per word, capped
// at 1.0 to stay comparable with similarity scores.
func matchDensity(text, keyword string) float64 {
	lower := strings.ToLower(text)
	count := strings.Count(lower, strings.ToLower(keyword))
	if count == 0 {
		return 0
	}

	words := len(strings.Fields(text))
	if words == 0 {
		words = 1
	}

	density := float64(count) * 10.0 / float64(words)
	if density > 1.0 {
		density = 1.0
	}
	return density
}

// ExtractKeyword pulls a search keyword from free text: a quoted phrase if
// one exists, otherwise the longest word.
func ExtractKeyword(text string) string {
	if phrase := QuotedPhrase(text); phrase != "" {
		return phrase
	}

	longest := ""
	for _, w := range strings.Fields(text) {
		w = strings.Trim(w, `.,!?;:"'`)
		if len(w) > len(longest) {
			longest = w
		}
	}
	return longest
}

// QuotedPhrase returns the first double-quoted phrase in text, or ""
func QuotedPhrase(text string) string {
	start := strings.Index(text, `"`)
	if start < 0 {
		return ""
	}
	end := strings.Index(text[start+1:], `"`)
	if end < 0 {
		return ""
	}
	return strings.TrimSpace(text[start+1 : start+1+end])
}
