package agent

import (
	"fmt"
	"strings"

	"github.com/ternarybob/respondeo/internal/interfaces"
	"github.com/ternarybob/respondeo/internal/models"
)

const synthesisSystemPrompt = `You answer questions using only the numbered context passages provided. Rules:
- Use only information from the passages. Do not add outside knowledge.
- Cite passages with bracketed numbers like [1] or [2][3] after each claim.
- If the passages contradict each other, say so explicitly and present both positions with their citations.
- If the passages do not contain enough information to answer, say exactly that.
- Be direct and concise.`

const reflectionPrompt = `You are grading a draft answer against its source passages.

Question:
%s

Source passages:
%s

Draft answer:
%s

Evaluate the draft on two scales from 0.0 to 1.0:
- grounding: every claim in the draft is supported by the passages (1.0 = fully supported, 0.0 = fabricated)
- completeness: the draft addresses all parts of the question answerable from the passages
Also determine whether the draft contradicts any passage.

Respond with JSON only, no prose:
{"grounding": 0.0, "completeness": 0.0, "contradiction": false, "rationale": "one sentence"}`

const revisionNote = `The previous draft was rejected: %s
Produce an improved answer that fixes this, still using only the numbered passages.`

// buildSynthesisMessages assembles the chat history for answer generation:
// system rules, prior conversation turns, then the question with its
// numbered context block.
func buildSynthesisMessages(query *models.Query, passages []models.RetrievedPassage, rejection string) []interfaces.Message {
	messages := make([]interfaces.Message, 0, len(query.History)+3)
	messages = append(messages, interfaces.Message{Role: "system", Content: synthesisSystemPrompt})

	for _, turn := range query.History {
		role := turn.Role
		if role != "user" && role != "assistant" {
			role = "user"
		}
		messages = append(messages, interfaces.Message{Role: role, Content: turn.Content})
	}

	var sb strings.Builder
	sb.WriteString("Context passages:\n\n")
	sb.WriteString(formatPassages(passages))
	sb.WriteString("\n\nQuestion: ")
	sb.WriteString(query.Text)
	if rejection != "" {
		sb.WriteString("\n\n")
		sb.WriteString(fmt.Sprintf(revisionNote, rejection))
	}

	messages = append(messages, interfaces.Message{Role: "user", Content: sb.String()})
	return messages
}

// formatPassages renders passages as a numbered context block. Numbering is
// 1-based and matches the citation markers the synthesizer extracts.
func formatPassages(passages []models.RetrievedPassage) string {
	var sb strings.Builder
	for i, p := range passages {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(fmt.Sprintf("[%d] (%s, score %.2f)\n%s", i+1, p.DocumentTitle, p.Score, p.Text))
	}
	return sb.String()
}
