package agent

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/respondeo/internal/models"
)

func TestDecide(t *testing.T) {
	tests := []struct {
		name      string
		verdict   models.ReflectionVerdict
		truncated bool
		want      bool
	}{
		{"both thresholds met", models.ReflectionVerdict{Grounding: 0.8, Completeness: 0.7}, false, true},
		{"thresholds exactly met", models.ReflectionVerdict{Grounding: 0.7, Completeness: 0.6}, false, true},
		{"grounding too low", models.ReflectionVerdict{Grounding: 0.69, Completeness: 0.9}, false, false},
		{"completeness too low", models.ReflectionVerdict{Grounding: 0.9, Completeness: 0.59}, false, false},
		{"contradiction rejects", models.ReflectionVerdict{Grounding: 1, Completeness: 1, Contradiction: true}, false, false},
		{"truncation rejects", models.ReflectionVerdict{Grounding: 1, Completeness: 1}, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Decide(&tt.verdict, tt.truncated, 0.7, 0.6)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecideMatchesThresholdContract(t *testing.T) {
	// Decide must agree with the decision rule on arbitrary inputs:
	// reject on truncation or contradiction, otherwise accept exactly
	// when both scores meet their thresholds.
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 500; i++ {
		verdict := &models.ReflectionVerdict{
			Grounding:     rng.Float64(),
			Completeness:  rng.Float64(),
			Contradiction: rng.Intn(4) == 0,
		}
		truncated := rng.Intn(4) == 0
		minGrounding := rng.Float64()
		minCompleteness := rng.Float64()

		want := !truncated && !verdict.Contradiction &&
			verdict.Grounding >= minGrounding &&
			verdict.Completeness >= minCompleteness
		got := Decide(verdict, truncated, minGrounding, minCompleteness)

		require.Equalf(t, want, got,
			"grounding=%.3f/%.3f completeness=%.3f/%.3f contradiction=%v truncated=%v",
			verdict.Grounding, minGrounding, verdict.Completeness, minCompleteness,
			verdict.Contradiction, truncated)
	}
}

func TestEvaluateParsesJudgeOutput(t *testing.T) {
	llm := &fakeLoopLLM{
		chatReplies: []chatReply{{text: "```json\n" + acceptJudgeJSON + "\n```"}},
	}
	eval := NewEvaluator(llm, 0.7, 0.6, arbor.NewLogger())

	candidate := &models.Candidate{Answer: "Refunds within 30 days [1].", Passages: testPassages()}
	verdict := eval.Evaluate(context.Background(), &models.Query{Text: "refunds?"}, candidate)

	assert.True(t, verdict.Accept)
	assert.False(t, verdict.Implicit)
	assert.InDelta(t, 0.9, verdict.Grounding, 0.001)
	assert.InDelta(t, 0.8, verdict.Completeness, 0.001)
	assert.Equal(t, "well grounded", verdict.Rationale)
}

func TestEvaluateClampsScores(t *testing.T) {
	llm := &fakeLoopLLM{
		chatReplies: []chatReply{{text: `{"grounding": 1.7, "completeness": -0.3, "contradiction": false, "rationale": "odd"}`}},
	}
	eval := NewEvaluator(llm, 0.7, 0.6, arbor.NewLogger())

	candidate := &models.Candidate{Answer: "a", Passages: testPassages()}
	verdict := eval.Evaluate(context.Background(), &models.Query{Text: "q"}, candidate)

	assert.Equal(t, 1.0, verdict.Grounding)
	assert.Equal(t, 0.0, verdict.Completeness)
	assert.False(t, verdict.Accept)
}

func TestEvaluateJudgeErrorAcceptsByPolicy(t *testing.T) {
	llm := &fakeLoopLLM{
		chatReplies: []chatReply{{err: errors.New("provider down")}},
	}
	eval := NewEvaluator(llm, 0.7, 0.6, arbor.NewLogger())

	candidate := &models.Candidate{Answer: "Refunds within 30 days.", Passages: testPassages()}
	verdict := eval.Evaluate(context.Background(), &models.Query{Text: "refunds?"}, candidate)

	assert.True(t, verdict.Implicit)
	assert.True(t, verdict.Accept, "unavailable judge must not stall the loop")
}

func TestEvaluateJudgeErrorStillRejectsTruncated(t *testing.T) {
	llm := &fakeLoopLLM{
		chatReplies: []chatReply{{err: errors.New("provider down")}},
	}
	eval := NewEvaluator(llm, 0.7, 0.6, arbor.NewLogger())

	candidate := &models.Candidate{Answer: "Refunds within", Passages: testPassages(), Truncated: true}
	verdict := eval.Evaluate(context.Background(), &models.Query{Text: "refunds?"}, candidate)

	assert.True(t, verdict.Implicit)
	assert.False(t, verdict.Accept)
	assert.NotEmpty(t, verdict.Rationale)
}

func TestEvaluateUnparseableFallsBackToLexical(t *testing.T) {
	llm := &fakeLoopLLM{
		chatReplies: []chatReply{{text: "I think the answer looks fine overall."}},
	}
	eval := NewEvaluator(llm, 0.5, 0.5, arbor.NewLogger())

	// Answer drawn verbatim from passage text: high keyword coverage
	candidate := &models.Candidate{
		Answer:   "Refunds issued within 30 days of purchase.",
		Passages: testPassages(),
	}
	verdict := eval.Evaluate(context.Background(), &models.Query{Text: "refunds?"}, candidate)

	assert.False(t, verdict.Implicit, "parse failure uses lexical scores, not policy")
	assert.True(t, verdict.Accept)
	assert.Contains(t, verdict.Rationale, "lexical fallback")
}

func TestEvaluateLexicalRejectsUngrounded(t *testing.T) {
	llm := &fakeLoopLLM{
		chatReplies: []chatReply{{text: "not json"}},
	}
	eval := NewEvaluator(llm, 0.5, 0.5, arbor.NewLogger())

	candidate := &models.Candidate{
		Answer:   "Quantum entanglement governs shipping logistics worldwide.",
		Passages: testPassages(),
	}
	verdict := eval.Evaluate(context.Background(), &models.Query{Text: "refunds?"}, candidate)

	assert.False(t, verdict.Accept)
	assert.Less(t, verdict.Grounding, 0.5)
}

func TestStripJudgeFence(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain json", `{"grounding": 1}`, `{"grounding": 1}`},
		{"json fence", "```json\n{\"grounding\": 1}\n```", `{"grounding": 1}`},
		{"bare fence", "```\n{\"grounding\": 1}\n```", `{"grounding": 1}`},
		{"surrounding whitespace", "  {\"grounding\": 1}  ", `{"grounding": 1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, stripJudgeFence(tt.in))
		})
	}
}

func TestEvaluateTruncatedCandidateRejected(t *testing.T) {
	llm := &fakeLoopLLM{
		chatReplies: []chatReply{{text: acceptJudgeJSON}},
	}
	eval := NewEvaluator(llm, 0.7, 0.6, arbor.NewLogger())

	candidate := &models.Candidate{Answer: "Refunds within", Passages: testPassages(), Truncated: true}
	verdict := eval.Evaluate(context.Background(), &models.Query{Text: "refunds?"}, candidate)

	require.False(t, verdict.Accept, "truncated output is never accepted")
}
