package interfaces

import (
	"context"

	"github.com/ternarybob/respondeo/internal/models"
)

// IngestService turns uploaded files into indexed passages:
// extract text -> chunk -> embed -> upsert into the vector index.
type IngestService interface {
	// IngestFile ingests a file by name and raw content. The extractor is
	// chosen from the file extension (pdf, html, md, txt).
	IngestFile(ctx context.Context, filename string, content []byte) (*models.Document, error)

	// IngestText ingests already-extracted plain text or markdown
	IngestText(ctx context.Context, title, text string) (*models.Document, error)

	// DeleteDocument removes a document, its passages, and its index entries
	DeleteDocument(ctx context.Context, documentID string) error

	// ReembedPending retries embedding for passages that failed at ingest
	// time. Returns the number of passages successfully embedded.
	ReembedPending(ctx context.Context, limit int) (int, error)

	// Stats reports corpus statistics
	Stats(ctx context.Context) (*models.CorpusStats, error)
}
