package ingest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/respondeo/internal/common"
	"github.com/ternarybob/respondeo/internal/interfaces"
	"github.com/ternarybob/respondeo/internal/models"
)

// Service implements the IngestService interface. Each upload is extracted
// to markdown, chunked, embedded, persisted, and upserted into the vector
// index. Embedding failures leave passages pending for the scheduler.
type Service struct {
	config     *common.IngestConfig
	extractor  *Extractor
	chunker    *Chunker
	embedder   interfaces.EmbeddingService
	storage    interfaces.StorageManager
	index      interfaces.VectorIndex
	logger     arbor.ILogger
}

// NewService creates a new ingest service
func NewService(
	config *common.IngestConfig,
	embedder interfaces.EmbeddingService,
	storage interfaces.StorageManager,
	index interfaces.VectorIndex,
	logger arbor.ILogger,
) *Service {
	return &Service{
		config:    config,
		extractor: NewExtractor(logger),
		chunker:   NewChunker(config.ChunkSize, config.ChunkOverlap),
		embedder:  embedder,
		storage:   storage,
		index:     index,
		logger:    logger,
	}
}

// IngestFile ingests a file by name and raw content
func (s *Service) IngestFile(ctx context.Context, filename string, content []byte) (*models.Document, error) {
	if len(content) == 0 {
		return nil, fmt.Errorf("file content cannot be empty")
	}

	sourceType := DetectSourceType(filename)
	markdown, err := s.extractor.Extract(ctx, sourceType, content)
	if err != nil {
		return nil, fmt.Errorf("extraction failed for %s: %w", filename, err)
	}
	if strings.TrimSpace(markdown) == "" {
		return nil, fmt.Errorf("no text content extracted from %s", filename)
	}

	title := TitleFromContent(markdown, filename)
	return s.ingest(ctx, filename, sourceType, title, markdown)
}

// IngestText ingests already-extracted plain text or markdown
func (s *Service) IngestText(ctx context.Context, title, text string) (*models.Document, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("text cannot be empty")
	}
	if title == "" {
		title = TitleFromContent(text, "untitled")
	}
	return s.ingest(ctx, title, "text", title, text)
}

// ingest is the shared pipeline: persist document, chunk, embed, index
func (s *Service) ingest(ctx context.Context, sourceName, sourceType, title, markdown string) (*models.Document, error) {
	start := time.Now()

	chunks := s.chunker.Chunk(markdown)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("chunking produced no passages")
	}

	doc := &models.Document{
		ID:              common.NewDocumentID(),
		SourceName:      sourceName,
		SourceType:      sourceType,
		Title:           title,
		ContentMarkdown: markdown,
		ChunkCount:      len(chunks),
	}

	passages := make([]*models.Passage, len(chunks))
	for i, chunk := range chunks {
		passages[i] = &models.Passage{
			ID:            common.NewPassageID(),
			DocumentID:    doc.ID,
			DocumentTitle: doc.Title,
			Ordinal:       i,
			Text:          chunk,
			CreatedAt:     time.Now(),
		}
	}

	// Embed before persisting so pending flags land in storage. Failures
	// mark passages pending rather than failing the upload.
	if err := s.embedder.EmbedPassages(ctx, passages); err != nil {
		s.logger.Warn().
			Err(err).
			Str("doc_id", doc.ID).
			Msg("Some passages failed embedding during ingest")
	}

	if err := s.storage.DocumentStorage().SaveDocument(doc); err != nil {
		return nil, fmt.Errorf("failed to save document: %w", err)
	}
	if err := s.storage.PassageStorage().SavePassages(passages); err != nil {
		return nil, fmt.Errorf("failed to save passages: %w", err)
	}

	if err := s.index.Upsert(ctx, passages); err != nil {
		s.logger.Warn().Err(err).Str("doc_id", doc.ID).Msg("Failed to upsert passages into vector index")
	}

	embedded := 0
	for _, p := range passages {
		if p.Embedded() {
			embedded++
		}
	}

	s.logger.Info().
		Str("doc_id", doc.ID).
		Str("source_type", sourceType).
		Int("chunks", len(chunks)).
		Int("embedded", embedded).
		Dur("duration", time.Since(start)).
		Msg("Document ingested")

	return doc, nil
}

// DeleteDocument removes a document, its passages, and its index entries
func (s *Service) DeleteDocument(ctx context.Context, documentID string) error {
	if err := s.storage.PassageStorage().DeleteByDocument(documentID); err != nil {
		return fmt.Errorf("failed to delete passages: %w", err)
	}
	if err := s.storage.DocumentStorage().DeleteDocument(documentID); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}

	type remover interface {
		Remove(ctx context.Context, documentID string) error
	}
	if r, ok := s.index.(remover); ok {
		if err := r.Remove(ctx, documentID); err != nil {
			s.logger.Warn().Err(err).Str("doc_id", documentID).Msg("Failed to remove document from vector index")
		}
	}

	s.logger.Info().Str("doc_id", documentID).Msg("Document deleted")
	return nil
}

// ReembedPending retries embedding for passages that failed at ingest time.
// Returns the number of passages successfully embedded.
func (s *Service) ReembedPending(ctx context.Context, limit int) (int, error) {
	pending, err := s.storage.PassageStorage().Pending(limit)
	if err != nil {
		return 0, fmt.Errorf("failed to load pending passages: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}

	s.logger.Debug().Int("pending", len(pending)).Msg("Retrying pending embeddings")

	recovered := make([]*models.Passage, 0, len(pending))
	for _, p := range pending {
		if err := ctx.Err(); err != nil {
			break
		}
		if err := s.embedder.EmbedPassage(ctx, p); err != nil {
			s.logger.Debug().Err(err).Str("passage_id", p.ID).Msg("Passage still failing embedding")
			continue
		}
		recovered = append(recovered, p)
	}

	if len(recovered) == 0 {
		return 0, nil
	}

	if err := s.storage.PassageStorage().SavePassages(recovered); err != nil {
		return 0, fmt.Errorf("failed to save re-embedded passages: %w", err)
	}
	if err := s.index.Upsert(ctx, recovered); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to upsert re-embedded passages into vector index")
	}

	s.logger.Info().
		Int("recovered", len(recovered)).
		Int("attempted", len(pending)).
		Msg("Re-embedded pending passages")

	return len(recovered), nil
}

// Stats reports corpus statistics
func (s *Service) Stats(ctx context.Context) (*models.CorpusStats, error) {
	docCount, err := s.storage.DocumentStorage().CountDocuments()
	if err != nil {
		return nil, fmt.Errorf("failed to count documents: %w", err)
	}
	passageCount, err := s.storage.PassageStorage().CountPassages()
	if err != nil {
		return nil, fmt.Errorf("failed to count passages: %w", err)
	}
	pendingCount, err := s.storage.PassageStorage().CountPending()
	if err != nil {
		return nil, fmt.Errorf("failed to count pending passages: %w", err)
	}

	bySourceType := make(map[string]int)
	docs, err := s.storage.DocumentStorage().ListDocuments(0, 0)
	if err == nil {
		for _, doc := range docs {
			bySourceType[doc.SourceType]++
		}
	}

	return &models.CorpusStats{
		TotalDocuments:  docCount,
		TotalPassages:   passageCount,
		PendingPassages: pendingCount,
		BySourceType:    bySourceType,
		LastUpdated:     time.Now(),
	}, nil
}
