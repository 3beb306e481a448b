package tools

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/respondeo/internal/interfaces"
	"github.com/ternarybob/respondeo/internal/models"
)

// SemanticTool retrieves passages by embedding the query text and ranking
// the corpus by cosine similarity.
type SemanticTool struct {
	embedder  interfaces.EmbeddingService
	index     interfaces.VectorIndex
	threshold float64
	logger    arbor.ILogger
}

// NewSemanticTool creates the semantic search tool
func NewSemanticTool(embedder interfaces.EmbeddingService, index interfaces.VectorIndex, threshold float64, logger arbor.ILogger) *SemanticTool {
	return &SemanticTool{
		embedder:  embedder,
		index:     index,
		threshold: threshold,
		logger:    logger,
	}
}

// Kind identifies the strategy
func (t *SemanticTool) Kind() models.ToolKind {
	return models.ToolKindSemantic
}

// Search embeds the query and ranks the corpus against it
func (t *SemanticTool) Search(ctx context.Context, call models.ToolCall, query *models.Query) ([]models.RetrievedPassage, error) {
	text := call.Params.Query
	if text == "" {
		text = query.Text
	}
	if text == "" {
		return nil, fmt.Errorf("semantic search requires a query")
	}

	topK := call.Params.TopK
	if topK <= 0 {
		topK = 5
	}

	vector, err := t.embedder.GenerateQueryEmbedding(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("query embedding failed: %w", err)
	}

	results, err := t.index.Query(ctx, vector, topK, t.threshold)
	if err != nil {
		return nil, fmt.Errorf("vector query failed: %w", err)
	}

	for i := range results {
		results[i].Strategy = models.ToolKindSemantic
	}

	t.logger.Debug().
		Str("query", text).
		Int("top_k", topK).
		Int("results", len(results)).
		Msg("Semantic search completed")

	return results, nil
}
