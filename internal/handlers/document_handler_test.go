package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/respondeo/internal/models"
)

// fakeIngestService records calls and serves canned results
type fakeIngestService struct {
	doc       *models.Document
	err       error
	deleted   []string
	recovered int
}

func (f *fakeIngestService) IngestFile(ctx context.Context, filename string, content []byte) (*models.Document, error) {
	return f.doc, f.err
}

func (f *fakeIngestService) IngestText(ctx context.Context, title, text string) (*models.Document, error) {
	return f.doc, f.err
}

func (f *fakeIngestService) DeleteDocument(ctx context.Context, documentID string) error {
	f.deleted = append(f.deleted, documentID)
	return f.err
}

func (f *fakeIngestService) ReembedPending(ctx context.Context, limit int) (int, error) {
	return f.recovered, f.err
}

func (f *fakeIngestService) Stats(ctx context.Context) (*models.CorpusStats, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.CorpusStats{TotalDocuments: 2, TotalPassages: 10, LastUpdated: time.Now()}, nil
}

// fakeDocStorage is an in-memory DocumentStorage
type fakeDocStorage struct {
	docs map[string]*models.Document
}

func newFakeDocStorage(docs ...*models.Document) *fakeDocStorage {
	s := &fakeDocStorage{docs: make(map[string]*models.Document)}
	for _, d := range docs {
		s.docs[d.ID] = d
	}
	return s
}

func (s *fakeDocStorage) SaveDocument(doc *models.Document) error { s.docs[doc.ID] = doc; return nil }

func (s *fakeDocStorage) GetDocument(id string) (*models.Document, error) {
	doc, ok := s.docs[id]
	if !ok {
		return nil, fmt.Errorf("document not found: %s", id)
	}
	return doc, nil
}

func (s *fakeDocStorage) ListDocuments(limit, offset int) ([]*models.Document, error) {
	var out []*models.Document
	for _, d := range s.docs {
		out = append(out, d)
	}
	return out, nil
}

func (s *fakeDocStorage) DeleteDocument(id string) error { delete(s.docs, id); return nil }

func (s *fakeDocStorage) CountDocuments() (int, error) { return len(s.docs), nil }

func uploadRequest(t *testing.T, filename, content string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/documents/upload", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func TestUploadHandlerIngestsFile(t *testing.T) {
	ingest := &fakeIngestService{
		doc: &models.Document{ID: "doc_1", Title: "Refund Policy", SourceType: "markdown", ChunkCount: 3},
	}
	handler := NewDocumentHandler(ingest, newFakeDocStorage(), arbor.NewLogger())

	rec := httptest.NewRecorder()
	handler.UploadHandler(rec, uploadRequest(t, "policy.md", "# Refund Policy\n\nRefunds within 30 days."))

	require.Equal(t, http.StatusCreated, rec.Code)

	var doc models.Document
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	assert.Equal(t, "doc_1", doc.ID)
	assert.Equal(t, 3, doc.ChunkCount)
}

func TestUploadHandlerRejectsEmptyFile(t *testing.T) {
	handler := NewDocumentHandler(&fakeIngestService{}, newFakeDocStorage(), arbor.NewLogger())

	rec := httptest.NewRecorder()
	handler.UploadHandler(rec, uploadRequest(t, "empty.txt", ""))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadHandlerMissingFileField(t *testing.T) {
	handler := NewDocumentHandler(&fakeIngestService{}, newFakeDocStorage(), arbor.NewLogger())

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	require.NoError(t, writer.WriteField("other", "value"))
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/documents/upload", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := httptest.NewRecorder()
	handler.UploadHandler(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIngestTextHandler(t *testing.T) {
	ingest := &fakeIngestService{
		doc: &models.Document{ID: "doc_2", Title: "Shipping FAQ", SourceType: "text"},
	}
	handler := NewDocumentHandler(ingest, newFakeDocStorage(), arbor.NewLogger())

	body := bytes.NewBufferString(`{"title": "Shipping FAQ", "text": "Orders ship within 2 days."}`)
	req := httptest.NewRequest(http.MethodPost, "/api/documents/text", body)
	rec := httptest.NewRecorder()
	handler.IngestTextHandler(rec, req)

	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestIngestTextHandlerValidation(t *testing.T) {
	handler := NewDocumentHandler(&fakeIngestService{}, newFakeDocStorage(), arbor.NewLogger())

	body := bytes.NewBufferString(`{"title": "", "text": ""}`)
	req := httptest.NewRequest(http.MethodPost, "/api/documents/text", body)
	rec := httptest.NewRecorder()
	handler.IngestTextHandler(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListHandler(t *testing.T) {
	storage := newFakeDocStorage(
		&models.Document{ID: "doc_1", Title: "One"},
		&models.Document{ID: "doc_2", Title: "Two"},
	)
	handler := NewDocumentHandler(&fakeIngestService{}, storage, arbor.NewLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/documents?limit=10", nil)
	rec := httptest.NewRecorder()
	handler.ListHandler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Documents []models.Document `json:"documents"`
		Total     int               `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Documents, 2)
	assert.Equal(t, 2, resp.Total)
}

func TestDeleteDocumentHandler(t *testing.T) {
	storage := newFakeDocStorage(&models.Document{ID: "doc_1", Title: "One"})
	ingest := &fakeIngestService{}
	handler := NewDocumentHandler(ingest, storage, arbor.NewLogger())

	req := httptest.NewRequest(http.MethodDelete, "/api/documents/doc_1", nil)
	rec := httptest.NewRecorder()
	handler.DocumentHandler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"doc_1"}, ingest.deleted)
}

func TestDeleteUnknownDocumentReturns404(t *testing.T) {
	handler := NewDocumentHandler(&fakeIngestService{}, newFakeDocStorage(), arbor.NewLogger())

	req := httptest.NewRequest(http.MethodDelete, "/api/documents/doc_missing", nil)
	rec := httptest.NewRecorder()
	handler.DocumentHandler(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReembedHandler(t *testing.T) {
	ingest := &fakeIngestService{recovered: 4}
	handler := NewDocumentHandler(ingest, newFakeDocStorage(), arbor.NewLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/documents/reembed?limit=10", nil)
	rec := httptest.NewRecorder()
	handler.ReembedHandler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"recovered":4`)
}
