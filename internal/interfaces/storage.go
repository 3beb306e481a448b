package interfaces

import (
	"context"

	"github.com/ternarybob/respondeo/internal/models"
)

// DocumentStorage persists ingested source documents
type DocumentStorage interface {
	SaveDocument(doc *models.Document) error
	GetDocument(id string) (*models.Document, error)
	ListDocuments(limit, offset int) ([]*models.Document, error)
	DeleteDocument(id string) error
	CountDocuments() (int, error)
}

// PassageStorage persists chunked passages and their embeddings
type PassageStorage interface {
	SavePassages(passages []*models.Passage) error
	GetPassage(id string) (*models.Passage, error)
	PassagesByDocument(documentID string) ([]*models.Passage, error)

	// Embedded returns all passages carrying a usable embedding vector,
	// ordered by passage ID for deterministic iteration.
	Embedded() ([]*models.Passage, error)

	// Pending returns passages whose embedding generation failed and is
	// awaiting retry.
	Pending(limit int) ([]*models.Passage, error)

	// KeywordSearch returns passages whose text contains the keyword
	// (case-insensitive literal match), up to limit.
	KeywordSearch(keyword string, limit int) ([]*models.Passage, error)

	DeleteByDocument(documentID string) error
	CountPassages() (int, error)
	CountPending() (int, error)
}

// KeyValueStorage provides generic key/value persistence (API keys, settings)
type KeyValueStorage interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	GetAll(ctx context.Context) (map[string]string, error)
}

// StorageManager provides access to all storage interfaces
type StorageManager interface {
	DocumentStorage() DocumentStorage
	PassageStorage() PassageStorage
	KeyValueStorage() KeyValueStorage
	Close() error
}
