package llm

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIsRateLimitError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"429 status", errors.New("Error 429, Message: quota exceeded"), true},
		{"resource exhausted", errors.New("Status: RESOURCE_EXHAUSTED"), true},
		{"quota message", errors.New("quota limit reached for model"), true},
		{"overloaded", errors.New("anthropic: overloaded_error"), true},
		{"unrelated error", errors.New("connection refused"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsRateLimitError(tt.err))
		})
	}
}

func TestExtractRetryDelay(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected time.Duration
	}{
		{"nil error", nil, 0},
		{
			"please retry format",
			errors.New("Error 429, Message: ... Please retry in 45.387061394s., Status: RESOURCE_EXHAUSTED"),
			time.Duration(45.387061394 * float64(time.Second)),
		},
		{
			"retryDelay format",
			errors.New("retryDelay: 30s"),
			30 * time.Second,
		},
		{"no delay present", errors.New("Error 429"), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ExtractRetryDelay(tt.err))
		})
	}
}

func TestCalculateBackoff(t *testing.T) {
	cfg := NewDefaultRetryConfig()

	// First attempt without API delay uses InitialBackoff
	assert.Equal(t, cfg.InitialBackoff, cfg.CalculateBackoff(0, 0))

	// API-provided delay gets a small buffer added
	assert.Equal(t, 35*time.Second, cfg.CalculateBackoff(0, 30*time.Second))

	// Backoff grows with attempts but never exceeds MaxBackoff
	prev := time.Duration(0)
	for attempt := 0; attempt < 10; attempt++ {
		backoff := cfg.CalculateBackoff(attempt, 0)
		assert.LessOrEqual(t, backoff, cfg.MaxBackoff)
		assert.GreaterOrEqual(t, backoff, prev)
		prev = backoff
	}
}
