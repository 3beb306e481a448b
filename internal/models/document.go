package models

import "time"

// Document represents an ingested source document
// PRIMARY CONTENT FORMAT: Markdown (ContentMarkdown field)
type Document struct {
	// Identity
	ID         string `json:"id"`          // doc_{uuid}
	SourceName string `json:"source_name"` // Original filename or upload label
	SourceType string `json:"source_type"` // pdf, html, markdown, text

	// Content (markdown-first)
	Title           string `json:"title"`
	ContentMarkdown string `json:"content_markdown"`

	// Chunking
	ChunkCount int `json:"chunk_count"`

	// Metadata (source-specific data, e.g. {"pages": 12, "upload_ip": "..."})
	Metadata map[string]interface{} `json:"metadata,omitempty"`

	// Timestamps
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Passage is a bounded span of document text indexed for retrieval.
// Immutable once embedded; EmbeddingPending marks chunks whose embedding
// failed at ingest time and will be retried by the scheduler.
type Passage struct {
	ID            string    `json:"id"` // chn_{uuid}
	DocumentID    string    `json:"document_id"`
	DocumentTitle string    `json:"document_title"`
	Ordinal       int       `json:"ordinal"` // position within the document
	Text          string    `json:"text"`

	Embedding        []float32 `json:"embedding,omitempty"`
	EmbeddingModel   string    `json:"embedding_model,omitempty"`
	EmbeddingPending bool      `json:"embedding_pending,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Embedded reports whether the passage carries a usable embedding vector.
func (p *Passage) Embedded() bool {
	return len(p.Embedding) > 0 && !p.EmbeddingPending
}

// CorpusStats represents statistics about the ingested corpus
type CorpusStats struct {
	TotalDocuments  int            `json:"total_documents"`
	TotalPassages   int            `json:"total_passages"`
	PendingPassages int            `json:"pending_passages"`
	BySourceType    map[string]int `json:"by_source_type"`
	LastUpdated     time.Time      `json:"last_updated"`
}
