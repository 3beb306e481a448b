package interfaces

import (
	"context"

	"github.com/ternarybob/respondeo/internal/models"
)

// EmbeddingService generates vector embeddings
type EmbeddingService interface {
	// Generate embedding for raw text
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)

	// Generate query embedding (may have different handling than passage embedding)
	GenerateQueryEmbedding(ctx context.Context, query string) ([]float32, error)

	// Generate and set embedding for a passage
	EmbedPassage(ctx context.Context, p *models.Passage) error

	// Generate and set embeddings for multiple passages. Failed passages are
	// marked pending rather than aborting the batch; the first error is
	// returned after the batch completes.
	EmbedPassages(ctx context.Context, passages []*models.Passage) error

	// Get model information
	ModelName() string
	Dimension() int

	// Check if service is available
	IsAvailable(ctx context.Context) bool
}
