package embeddings

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/respondeo/internal/interfaces"
	"github.com/ternarybob/respondeo/internal/models"
)

// Service implements EmbeddingService interface
type Service struct {
	llmService interfaces.LLMService
	modelName  string
	dimension  int
	logger     arbor.ILogger
}

// NewService creates a new embedding service
func NewService(llmService interfaces.LLMService, modelName string, dimension int, logger arbor.ILogger) interfaces.EmbeddingService {
	return &Service{
		llmService: llmService,
		modelName:  modelName,
		dimension:  dimension,
		logger:     logger,
	}
}

// GenerateEmbedding creates a vector embedding for text
func (s *Service) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("text cannot be empty")
	}

	start := time.Now()
	embedding, err := s.llmService.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to generate embedding: %w", err)
	}

	if len(embedding) == 0 {
		return nil, fmt.Errorf("LLM service returned empty embedding")
	}

	s.logger.Debug().
		Str("model", s.modelName).
		Int("embedding_dim", len(embedding)).
		Dur("duration", time.Since(start)).
		Msg("Generated embedding")

	return embedding, nil
}

// GenerateQueryEmbedding generates embedding for a search query
func (s *Service) GenerateQueryEmbedding(ctx context.Context, query string) ([]float32, error) {
	// Queries use the same embedding space as passages
	return s.GenerateEmbedding(ctx, query)
}

// EmbedPassage generates and sets the embedding for a passage
func (s *Service) EmbedPassage(ctx context.Context, p *models.Passage) error {
	embedding, err := s.GenerateEmbedding(ctx, p.Text)
	if err != nil {
		return fmt.Errorf("failed to embed passage %s: %w", p.ID, err)
	}

	p.Embedding = embedding
	p.EmbeddingModel = s.modelName
	p.EmbeddingPending = false

	s.logger.Debug().
		Str("passage_id", p.ID).
		Int("embedding_dim", len(embedding)).
		Int("text_length", len(p.Text)).
		Msg("Embedded passage")

	return nil
}

// EmbedPassages generates embeddings for multiple passages. A passage whose
// embedding fails is marked pending for later retry rather than aborting the
// batch; the first error is returned after the batch completes.
func (s *Service) EmbedPassages(ctx context.Context, passages []*models.Passage) error {
	var firstErr error
	failed := 0

	for i, p := range passages {
		if err := ctx.Err(); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			// Mark the remainder pending so the scheduler picks them up
			for _, rest := range passages[i:] {
				rest.EmbeddingPending = true
			}
			break
		}

		if err := s.EmbedPassage(ctx, p); err != nil {
			s.logger.Warn().
				Err(err).
				Str("passage_id", p.ID).
				Int("index", i).
				Msg("Failed to embed passage, marking pending")
			p.EmbeddingPending = true
			failed++
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	if failed > 0 {
		s.logger.Warn().
			Int("failed", failed).
			Int("total", len(passages)).
			Msg("Some passages failed embedding and await retry")
	}

	return firstErr
}

// ModelName returns the embedding model name
func (s *Service) ModelName() string {
	return s.modelName
}

// Dimension returns the embedding dimension
func (s *Service) Dimension() int {
	return s.dimension
}

// IsAvailable checks if the embedding service is available
func (s *Service) IsAvailable(ctx context.Context) bool {
	if s.llmService == nil {
		return false
	}

	err := s.llmService.HealthCheck(ctx)
	if err != nil {
		s.logger.Debug().Err(err).Msg("LLM service not available")
		return false
	}

	return true
}
