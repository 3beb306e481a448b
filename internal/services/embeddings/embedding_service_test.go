package embeddings

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/respondeo/internal/interfaces"
	"github.com/ternarybob/respondeo/internal/models"
)

// fakeLLM returns canned embeddings and fails on texts listed in failOn.
type fakeLLM struct {
	failOn map[string]bool
	calls  int
}

func (f *fakeLLM) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	if f.failOn[text] {
		return nil, errors.New("embedding backend unavailable")
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

func (f *fakeLLM) Chat(ctx context.Context, messages []interfaces.Message) (*interfaces.Completion, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeLLM) ChatStream(ctx context.Context, messages []interfaces.Message, onDelta func(string) error) (*interfaces.Completion, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeLLM) HealthCheck(ctx context.Context) error { return nil }
func (f *fakeLLM) GetMode() interfaces.LLMMode           { return interfaces.LLMModeMock }
func (f *fakeLLM) Close() error                          { return nil }

func TestEmbedPassageSetsVectorAndModel(t *testing.T) {
	svc := NewService(&fakeLLM{}, "test-embed", 3, arbor.NewLogger())

	p := &models.Passage{ID: "chn_1", Text: "some passage text", EmbeddingPending: true}
	err := svc.EmbedPassage(context.Background(), p)
	require.NoError(t, err)

	assert.Equal(t, []float32{0.1, 0.2, 0.3}, p.Embedding)
	assert.Equal(t, "test-embed", p.EmbeddingModel)
	assert.False(t, p.EmbeddingPending)
}

func TestEmbedPassagesMarksFailuresPending(t *testing.T) {
	llm := &fakeLLM{failOn: map[string]bool{"bad passage": true}}
	svc := NewService(llm, "test-embed", 3, arbor.NewLogger())

	passages := []*models.Passage{
		{ID: "chn_1", Text: "good passage"},
		{ID: "chn_2", Text: "bad passage"},
		{ID: "chn_3", Text: "another good passage"},
	}

	err := svc.EmbedPassages(context.Background(), passages)
	assert.Error(t, err, "first failure should be surfaced after the batch")

	// Batch continues past failures
	assert.True(t, passages[0].Embedded())
	assert.False(t, passages[1].Embedded())
	assert.True(t, passages[1].EmbeddingPending)
	assert.True(t, passages[2].Embedded())
	assert.Equal(t, 3, llm.calls)
}

func TestGenerateEmbeddingRejectsEmptyText(t *testing.T) {
	svc := NewService(&fakeLLM{}, "test-embed", 3, arbor.NewLogger())

	_, err := svc.GenerateEmbedding(context.Background(), "")
	assert.Error(t, err)
}
