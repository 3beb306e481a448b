package agent

import (
	"context"
	"fmt"
	"regexp"
	"strconv"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/respondeo/internal/interfaces"
	"github.com/ternarybob/respondeo/internal/models"
)

// Synthesizer drafts answers from retrieved passages. Generation streams
// internally to keep provider connections short; the controller releases
// text to the caller only after reflection accepts the draft.
type Synthesizer struct {
	llm    interfaces.LLMService
	logger arbor.ILogger
}

// NewSynthesizer creates an answer synthesizer
func NewSynthesizer(llm interfaces.LLMService, logger arbor.ILogger) *Synthesizer {
	return &Synthesizer{
		llm:    llm,
		logger: logger,
	}
}

var citationMarkerRegex = regexp.MustCompile(`\[(\d+)\]`)

// Synthesize drafts an answer grounded on the passages. rejection carries
// the previous verdict's rationale on revision passes. Generation is
// retried once; a second failure is fatal for the session.
func (s *Synthesizer) Synthesize(ctx context.Context, query *models.Query, passages []models.RetrievedPassage, rejection string, iteration int) (*models.Candidate, error) {
	if len(passages) == 0 {
		return nil, fmt.Errorf("cannot synthesize without passages")
	}

	messages := buildSynthesisMessages(query, passages, rejection)

	var completion *interfaces.Completion
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		completion, err = s.llm.ChatStream(ctx, messages, nil)
		if err == nil {
			break
		}
		s.logger.Warn().
			Err(err).
			Int("attempt", attempt+1).
			Msg("Answer synthesis attempt failed")
		if ctx.Err() != nil {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSynthesisFailed, err)
	}

	candidate := &models.Candidate{
		Answer:    completion.Text,
		Passages:  passages,
		Citations: extractCitations(completion.Text, passages),
		Iteration: iteration,
		Truncated: completion.Truncated,
	}

	s.logger.Debug().
		Int("iteration", iteration).
		Int("answer_length", len(candidate.Answer)).
		Int("citations", len(candidate.Citations)).
		Bool("truncated", candidate.Truncated).
		Msg("Synthesized answer candidate")

	return candidate, nil
}

// extractCitations maps bracketed markers in the answer back to the
// numbered passages, preserving first-mention order without duplicates.
func extractCitations(answer string, passages []models.RetrievedPassage) []models.Citation {
	seen := make(map[int]bool)
	var citations []models.Citation

	for _, match := range citationMarkerRegex.FindAllStringSubmatch(answer, -1) {
		n, err := strconv.Atoi(match[1])
		if err != nil || n < 1 || n > len(passages) {
			continue
		}
		if seen[n] {
			continue
		}
		seen[n] = true

		p := passages[n-1]
		citations = append(citations, models.Citation{
			ChunkID:       p.ChunkID,
			DocumentID:    p.DocumentID,
			DocumentTitle: p.DocumentTitle,
			Score:         p.Score,
		})
	}

	return citations
}
