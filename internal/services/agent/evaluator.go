package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/respondeo/internal/interfaces"
	"github.com/ternarybob/respondeo/internal/models"
)

// Evaluator grades answer candidates. The primary path asks the LLM to
// score grounding and completeness; when the judge fails or returns
// unparseable output, a lexical keyword-overlap heuristic takes over so
// evaluation never blocks the loop.
type Evaluator struct {
	llm             interfaces.LLMService
	minGrounding    float64
	minCompleteness float64
	logger          arbor.ILogger
}

// NewEvaluator creates a reflection evaluator with acceptance thresholds
func NewEvaluator(llm interfaces.LLMService, minGrounding, minCompleteness float64, logger arbor.ILogger) *Evaluator {
	return &Evaluator{
		llm:             llm,
		minGrounding:    minGrounding,
		minCompleteness: minCompleteness,
		logger:          logger,
	}
}

// judgeResponse is the JSON shape the reflection prompt requests
type judgeResponse struct {
	Grounding     float64 `json:"grounding"`
	Completeness  float64 `json:"completeness"`
	Contradiction bool    `json:"contradiction"`
	Rationale     string  `json:"rationale"`
}

// Evaluate grades a candidate and applies the acceptance rule. A truncated
// candidate is never accepted regardless of scores.
func (e *Evaluator) Evaluate(ctx context.Context, query *models.Query, candidate *models.Candidate) *models.ReflectionVerdict {
	verdict := e.judge(ctx, query, candidate)

	if verdict.Implicit {
		// Judge unavailable: accept by policy rather than loop on an
		// evaluator that cannot run. Truncation still forces a revision.
		verdict.Accept = !candidate.Truncated
	} else {
		verdict.Accept = Decide(verdict, candidate.Truncated, e.minGrounding, e.minCompleteness)
	}
	if candidate.Truncated && !verdict.Accept && verdict.Rationale == "" {
		verdict.Rationale = "answer was cut short by the generation limit"
	}

	e.logger.Debug().
		Float64("grounding", verdict.Grounding).
		Float64("completeness", verdict.Completeness).
		Bool("contradiction", verdict.Contradiction).
		Bool("accept", verdict.Accept).
		Bool("implicit", verdict.Implicit).
		Msg("Evaluated answer candidate")

	return verdict
}

// Decide applies the acceptance rule. Split out as a pure function so the
// rule is testable in isolation: accept iff grounding and completeness
// meet their thresholds, no contradiction was flagged, and the draft was
// not truncated.
func Decide(v *models.ReflectionVerdict, truncated bool, minGrounding, minCompleteness float64) bool {
	if truncated {
		return false
	}
	if v.Contradiction {
		return false
	}
	return v.Grounding >= minGrounding && v.Completeness >= minCompleteness
}

// judge runs the LLM rubric, falling back to the lexical heuristic
func (e *Evaluator) judge(ctx context.Context, query *models.Query, candidate *models.Candidate) *models.ReflectionVerdict {
	prompt := fmt.Sprintf(reflectionPrompt, query.Text, formatPassages(candidate.Passages), candidate.Answer)

	completion, err := e.llm.Chat(ctx, []interfaces.Message{
		{Role: "user", Content: prompt},
	})
	if err != nil {
		e.logger.Warn().Err(err).Msg("Reflection judge failed, using lexical fallback")
		return e.lexicalVerdict(candidate, true)
	}

	var parsed judgeResponse
	raw := stripJudgeFence(completion.Text)
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		e.logger.Warn().
			Err(err).
			Str("raw", truncateForLog(completion.Text, 200)).
			Msg("Reflection judge output unparseable, using lexical fallback")
		return e.lexicalVerdict(candidate, false)
	}

	return &models.ReflectionVerdict{
		Grounding:     clamp01(parsed.Grounding),
		Completeness:  clamp01(parsed.Completeness),
		Contradiction: parsed.Contradiction,
		Rationale:     parsed.Rationale,
	}
}

// lexicalVerdict scores grounding by keyword overlap between the answer
// and its passages. Stop words are excluded; an answer much longer than
// its context is treated as suspect. When the judge itself errored the
// verdict is marked implicit.
func (e *Evaluator) lexicalVerdict(candidate *models.Candidate, judgeErrored bool) *models.ReflectionVerdict {
	var contextText strings.Builder
	for _, p := range candidate.Passages {
		contextText.WriteString(strings.ToLower(p.Text))
		contextText.WriteString(" ")
	}

	contextWords := make(map[string]bool)
	for _, w := range strings.Fields(contextText.String()) {
		contextWords[strings.Trim(w, `.,!?;:"'()[]`)] = true
	}

	answerWords := strings.Fields(strings.ToLower(candidate.Answer))
	keywords := 0
	overlap := 0
	for _, w := range answerWords {
		w = strings.Trim(w, `.,!?;:"'()[]`)
		if w == "" || stopWords[w] {
			continue
		}
		keywords++
		if contextWords[w] {
			overlap++
		}
	}

	coverage := 0.0
	if keywords > 0 {
		coverage = float64(overlap) / float64(keywords)
	}

	reasonableLength := len(candidate.Answer) < totalPassageLength(candidate.Passages)*3/2

	grounding := coverage
	if !reasonableLength {
		grounding = coverage * 0.5
	}

	return &models.ReflectionVerdict{
		Grounding:    grounding,
		Completeness: coverage,
		Rationale:    fmt.Sprintf("lexical fallback: keyword coverage %.2f", coverage),
		Implicit:     judgeErrored,
	}
}

var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "but": true,
	"in": true, "on": true, "at": true, "to": true, "for": true, "is": true,
	"are": true, "was": true, "were": true, "be": true, "been": true, "being": true,
}

func totalPassageLength(passages []models.RetrievedPassage) int {
	total := 0
	for _, p := range passages {
		total += len(p.Text)
	}
	return total
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// stripJudgeFence removes a surrounding ```json ... ``` fence if present
func stripJudgeFence(s string) string {
	trimmed := strings.TrimSpace(s)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```json")
		trimmed = strings.TrimPrefix(trimmed, "```")
		if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
			trimmed = trimmed[:idx]
		}
		trimmed = strings.TrimSpace(trimmed)
	}
	return trimmed
}

func truncateForLog(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
