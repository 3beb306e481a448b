package badger

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/respondeo/internal/interfaces"
	"github.com/ternarybob/respondeo/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// PassageStorage implements the PassageStorage interface for Badger
type PassageStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewPassageStorage creates a new PassageStorage instance
func NewPassageStorage(db *BadgerDB, logger arbor.ILogger) interfaces.PassageStorage {
	return &PassageStorage{
		db:     db,
		logger: logger,
	}
}

func (s *PassageStorage) SavePassages(passages []*models.Passage) error {
	// BadgerHold doesn't expose bulk upsert; iterate and fail fast.
	for _, p := range passages {
		if p.ID == "" {
			return fmt.Errorf("passage ID is required")
		}
		if err := s.db.Store().Upsert(p.ID, p); err != nil {
			return fmt.Errorf("failed to save passage %s: %w", p.ID, err)
		}
	}
	return nil
}

func (s *PassageStorage) GetPassage(id string) (*models.Passage, error) {
	var passage models.Passage
	if err := s.db.Store().Get(id, &passage); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("passage not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get passage: %w", err)
	}
	return &passage, nil
}

func (s *PassageStorage) PassagesByDocument(documentID string) ([]*models.Passage, error) {
	var passages []models.Passage
	err := s.db.Store().Find(&passages, badgerhold.Where("DocumentID").Eq(documentID).SortBy("Ordinal"))
	if err != nil {
		return nil, fmt.Errorf("failed to get passages for document %s: %w", documentID, err)
	}

	result := make([]*models.Passage, len(passages))
	for i := range passages {
		result[i] = &passages[i]
	}
	return result, nil
}

// Embedded returns all passages carrying an embedding vector, ordered by
// passage ID so index rebuilds see a stable iteration order.
func (s *PassageStorage) Embedded() ([]*models.Passage, error) {
	var passages []models.Passage
	err := s.db.Store().Find(&passages, badgerhold.Where("EmbeddingPending").Eq(false))
	if err != nil {
		return nil, fmt.Errorf("failed to get embedded passages: %w", err)
	}

	result := make([]*models.Passage, 0, len(passages))
	for i := range passages {
		if passages[i].Embedded() {
			result = append(result, &passages[i])
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func (s *PassageStorage) Pending(limit int) ([]*models.Passage, error) {
	query := badgerhold.Where("EmbeddingPending").Eq(true).SortBy("ID")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var passages []models.Passage
	if err := s.db.Store().Find(&passages, query); err != nil {
		return nil, fmt.Errorf("failed to get pending passages: %w", err)
	}

	result := make([]*models.Passage, len(passages))
	for i := range passages {
		result[i] = &passages[i]
	}
	return result, nil
}

// KeywordSearch finds passages containing the keyword as a literal,
// case-insensitive match. BadgerHold only offers RegExp matching, so the
// keyword is quoted before compiling. Slow on large corpora.
func (s *PassageStorage) KeywordSearch(keyword string, limit int) ([]*models.Passage, error) {
	escaped := regexp.QuoteMeta(keyword)
	regex, err := regexp.Compile("(?i)" + escaped)
	if err != nil {
		return nil, fmt.Errorf("invalid keyword: %w", err)
	}

	query := badgerhold.Where("Text").RegExp(regex)
	if limit > 0 {
		query = query.Limit(limit)
	}

	var passages []models.Passage
	if err := s.db.Store().Find(&passages, query); err != nil {
		return nil, fmt.Errorf("keyword search failed: %w", err)
	}

	result := make([]*models.Passage, len(passages))
	for i := range passages {
		result[i] = &passages[i]
	}
	return result, nil
}

func (s *PassageStorage) DeleteByDocument(documentID string) error {
	err := s.db.Store().DeleteMatching(&models.Passage{}, badgerhold.Where("DocumentID").Eq(documentID))
	if err != nil {
		return fmt.Errorf("failed to delete passages for document %s: %w", documentID, err)
	}
	return nil
}

func (s *PassageStorage) CountPassages() (int, error) {
	count, err := s.db.Store().Count(&models.Passage{}, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to count passages: %w", err)
	}
	return int(count), nil
}

func (s *PassageStorage) CountPending() (int, error) {
	count, err := s.db.Store().Count(&models.Passage{}, badgerhold.Where("EmbeddingPending").Eq(true))
	if err != nil {
		return 0, fmt.Errorf("failed to count pending passages: %w", err)
	}
	return int(count), nil
}
