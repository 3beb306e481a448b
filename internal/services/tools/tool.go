package tools

import (
	"context"
	"sort"

	"github.com/ternarybob/respondeo/internal/models"
)

// Tool is one retrieval strategy. Implementations are stateless across
// calls; all per-query state lives in the ToolCall parameters.
type Tool interface {
	// Kind identifies the strategy
	Kind() models.ToolKind

	// Search executes the strategy and returns ranked passages ordered by
	// score descending then chunk ID ascending.
	Search(ctx context.Context, call models.ToolCall, query *models.Query) ([]models.RetrievedPassage, error)
}

// MergeRanked merges ranked result lists, deduplicating by chunk ID and
// keeping the best score per chunk. The merged list is ordered by score
// descending with chunk ID ascending as tiebreak, so identical inputs
// always produce identical output.
func MergeRanked(lists ...[]models.RetrievedPassage) []models.RetrievedPassage {
	best := make(map[string]models.RetrievedPassage)
	for _, list := range lists {
		for _, p := range list {
			existing, ok := best[p.ChunkID]
			if !ok || p.Score > existing.Score {
				best[p.ChunkID] = p
			}
		}
	}

	merged := make([]models.RetrievedPassage, 0, len(best))
	for _, p := range best {
		merged = append(merged, p)
	}

	sort.Slice(merged, func(i, j int) bool {
		if merged[i].Score != merged[j].Score {
			return merged[i].Score > merged[j].Score
		}
		return merged[i].ChunkID < merged[j].ChunkID
	})

	return merged
}
