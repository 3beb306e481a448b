package llm

import (
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/respondeo/internal/common"
	"github.com/ternarybob/respondeo/internal/interfaces"
)

// NewLLMServices creates the chat and embedding LLM services based on the
// configured provider. Embeddings always come from Gemini; a Claude chat
// provider is paired with a Gemini embedder.
func NewLLMServices(
	cfg *common.Config,
	kvStorage interfaces.KeyValueStorage,
	logger arbor.ILogger,
) (chat interfaces.LLMService, embed interfaces.LLMService, err error) {
	logger.Info().Str("provider", string(cfg.LLM.Provider)).Msg("Initializing LLM services")

	switch cfg.LLM.Provider {
	case common.LLMProviderGemini:
		gemini, err := NewGeminiService(&cfg.LLM, kvStorage, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create Gemini service: %w", err)
		}
		return gemini, gemini, nil

	case common.LLMProviderClaude:
		claude, err := NewClaudeService(&cfg.LLM.Claude, kvStorage, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create Claude service: %w", err)
		}
		gemini, err := NewGeminiService(&cfg.LLM, kvStorage, logger)
		if err != nil {
			claude.Close()
			return nil, nil, fmt.Errorf("failed to create Gemini embedding service: %w", err)
		}
		return claude, gemini, nil

	default:
		return nil, nil, fmt.Errorf("invalid LLM provider '%s': must be 'claude' or 'gemini'", cfg.LLM.Provider)
	}
}
