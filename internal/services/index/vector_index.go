package index

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/respondeo/internal/interfaces"
	"github.com/ternarybob/respondeo/internal/models"
)

// VectorIndex is an in-process cosine similarity index over embedded
// passages. Vectors live in memory; the passage store is the durable copy
// and Load rebuilds the index from it at startup.
type VectorIndex struct {
	mu       sync.RWMutex
	entries  map[string]*models.Passage
	storage  interfaces.PassageStorage
	logger   arbor.ILogger
}

// NewVectorIndex creates an empty index backed by the given passage storage
func NewVectorIndex(storage interfaces.PassageStorage, logger arbor.ILogger) *VectorIndex {
	return &VectorIndex{
		entries: make(map[string]*models.Passage),
		storage: storage,
		logger:  logger,
	}
}

// Load rebuilds the index from all embedded passages in storage
func (idx *VectorIndex) Load(ctx context.Context) error {
	passages, err := idx.storage.Embedded()
	if err != nil {
		return fmt.Errorf("failed to load embedded passages: %w", err)
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.entries = make(map[string]*models.Passage, len(passages))
	for _, p := range passages {
		idx.entries[p.ID] = p
	}

	idx.logger.Info().Int("passages", len(passages)).Msg("Vector index loaded")
	return nil
}

// Upsert adds or replaces passages in the index. Passages without an
// embedding are skipped.
func (idx *VectorIndex) Upsert(ctx context.Context, passages []*models.Passage) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	added := 0
	for _, p := range passages {
		if !p.Embedded() {
			continue
		}
		idx.entries[p.ID] = p
		added++
	}

	idx.logger.Debug().Int("indexed", added).Int("offered", len(passages)).Msg("Upserted passages into vector index")
	return nil
}

// Remove drops all passages of a document from the index
func (idx *VectorIndex) Remove(ctx context.Context, documentID string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	removed := 0
	for id, p := range idx.entries {
		if p.DocumentID == documentID {
			delete(idx.entries, id)
			removed++
		}
	}

	idx.logger.Debug().Str("document_id", documentID).Int("removed", removed).Msg("Removed document passages from vector index")
	return nil
}

// Query returns up to topK passages whose cosine similarity with the query
// vector meets minScore, ordered by score descending with passage ID as a
// deterministic tiebreak.
func (idx *VectorIndex) Query(ctx context.Context, vector []float32, topK int, minScore float64) ([]models.RetrievedPassage, error) {
	if len(vector) == 0 {
		return nil, fmt.Errorf("query vector cannot be empty")
	}
	if topK <= 0 {
		return nil, fmt.Errorf("topK must be positive, got %d", topK)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	results := make([]models.RetrievedPassage, 0, topK)
	for _, p := range idx.entries {
		score, ok := CosineSimilarity(vector, p.Embedding)
		if !ok || score < minScore {
			continue
		}
		results = append(results, models.RetrievedPassage{
			ChunkID:       p.ID,
			Text:          p.Text,
			DocumentID:    p.DocumentID,
			DocumentTitle: p.DocumentTitle,
			Score:         score,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ChunkID < results[j].ChunkID
	})

	if len(results) > topK {
		results = results[:topK]
	}

	return results, nil
}

// Count returns the number of indexed passages
func (idx *VectorIndex) Count(ctx context.Context) (int, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.entries), nil
}

// CosineSimilarity computes the cosine similarity of two vectors.
// Returns false when the vectors differ in length or either has zero norm.
func CosineSimilarity(a, b []float32) (float64, bool) {
	if len(a) != len(b) || len(a) == 0 {
		return 0, false
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0, false
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), true
}
