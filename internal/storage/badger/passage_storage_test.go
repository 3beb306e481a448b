package badger

import (
	"os"
	"testing"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/respondeo/internal/common"
	"github.com/ternarybob/respondeo/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

func newTestDB(t *testing.T) *BadgerDB {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "badger-test")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	options := badgerhold.DefaultOptions
	options.Dir = tmpDir
	options.ValueDir = tmpDir
	options.Logger = nil

	store, err := badgerhold.Open(options)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	return &BadgerDB{store: store}
}

func TestPassageLifecycle(t *testing.T) {
	db := newTestDB(t)
	logger := arbor.NewLogger()
	storage := NewPassageStorage(db, logger)

	docID := common.NewDocumentID()
	passages := []*models.Passage{
		{
			ID:         "chn_aaa",
			DocumentID: docID,
			Ordinal:    0,
			Text:       "The refund policy allows returns within 30 days.",
			Embedding:  []float32{0.1, 0.2, 0.3},
		},
		{
			ID:               "chn_bbb",
			DocumentID:       docID,
			Ordinal:          1,
			Text:             "Shipping is free for orders over fifty dollars.",
			EmbeddingPending: true,
		},
	}

	if err := storage.SavePassages(passages); err != nil {
		t.Fatalf("Failed to save passages: %v", err)
	}

	got, err := storage.GetPassage("chn_aaa")
	if err != nil {
		t.Fatalf("Failed to get passage: %v", err)
	}
	if got.DocumentID != docID {
		t.Errorf("Expected document ID %s, got %s", docID, got.DocumentID)
	}

	byDoc, err := storage.PassagesByDocument(docID)
	if err != nil {
		t.Fatalf("Failed to get passages by document: %v", err)
	}
	if len(byDoc) != 2 {
		t.Fatalf("Expected 2 passages, got %d", len(byDoc))
	}
	if byDoc[0].Ordinal != 0 || byDoc[1].Ordinal != 1 {
		t.Errorf("Expected passages ordered by ordinal, got %d then %d", byDoc[0].Ordinal, byDoc[1].Ordinal)
	}

	embedded, err := storage.Embedded()
	if err != nil {
		t.Fatalf("Failed to get embedded passages: %v", err)
	}
	if len(embedded) != 1 || embedded[0].ID != "chn_aaa" {
		t.Errorf("Expected only chn_aaa embedded, got %d passages", len(embedded))
	}

	pending, err := storage.Pending(10)
	if err != nil {
		t.Fatalf("Failed to get pending passages: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != "chn_bbb" {
		t.Errorf("Expected only chn_bbb pending, got %d passages", len(pending))
	}

	count, err := storage.CountPending()
	if err != nil {
		t.Fatalf("Failed to count pending: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 pending passage, got %d", count)
	}

	if err := storage.DeleteByDocument(docID); err != nil {
		t.Fatalf("Failed to delete passages: %v", err)
	}
	total, err := storage.CountPassages()
	if err != nil {
		t.Fatalf("Failed to count passages: %v", err)
	}
	if total != 0 {
		t.Errorf("Expected 0 passages after delete, got %d", total)
	}
}

func TestKeywordSearch(t *testing.T) {
	db := newTestDB(t)
	logger := arbor.NewLogger()
	storage := NewPassageStorage(db, logger)

	docID := common.NewDocumentID()
	passages := []*models.Passage{
		{ID: "chn_1", DocumentID: docID, Ordinal: 0, Text: "Refunds are processed within 5 business days."},
		{ID: "chn_2", DocumentID: docID, Ordinal: 1, Text: "The REFUND window closes after 30 days."},
		{ID: "chn_3", DocumentID: docID, Ordinal: 2, Text: "Shipping rates vary by region."},
	}
	if err := storage.SavePassages(passages); err != nil {
		t.Fatalf("Failed to save passages: %v", err)
	}

	results, err := storage.KeywordSearch("refund", 10)
	if err != nil {
		t.Fatalf("Keyword search failed: %v", err)
	}
	if len(results) != 2 {
		t.Errorf("Expected 2 case-insensitive matches for 'refund', got %d", len(results))
	}

	// Regex metacharacters in the keyword must be treated literally
	results, err = storage.KeywordSearch("5 business days.", 10)
	if err != nil {
		t.Fatalf("Keyword search failed: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("Expected 1 literal match, got %d", len(results))
	}
}
