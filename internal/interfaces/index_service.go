package interfaces

import (
	"context"

	"github.com/ternarybob/respondeo/internal/models"
)

// VectorIndex is the retrieval backend: it ranks the corpus against a
// query vector. Eventually consistent with ingestion; callers must
// tolerate empty results.
type VectorIndex interface {
	// Upsert stores passages with their embedding vectors
	Upsert(ctx context.Context, passages []*models.Passage) error

	// Query ranks the corpus by similarity to the vector, filters results
	// scoring below minScore, and returns at most topK passages ordered by
	// score descending then chunk ID ascending (deterministic).
	Query(ctx context.Context, vector []float32, topK int, minScore float64) ([]models.RetrievedPassage, error)

	// Count returns the number of indexed (embedded) passages
	Count(ctx context.Context) (int, error)
}
