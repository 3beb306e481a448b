package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/respondeo/internal/common"
	"github.com/ternarybob/respondeo/internal/interfaces"
	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

// GeminiService implements the LLMService interface using Google genai.
// It provides both embedding and chat completions using Gemini models.
type GeminiService struct {
	config    *common.GeminiConfig
	embedDim  int
	logger    arbor.ILogger
	client    *genai.Client
	limiter   *rate.Limiter
	retry     *RetryConfig
	timeout   time.Duration
}

// convertMessagesToGemini converts []interfaces.Message to Gemini Content format.
// Maps Role values to provider's expected values and maintains chronological ordering.
// Extracts system messages separately for use with SystemInstruction.
// Returns the user/model messages, the first system message content (if any), and an error.
func convertMessagesToGemini(messages []interfaces.Message) ([]*genai.Content, string, error) {
	if len(messages) == 0 {
		return nil, "", fmt.Errorf("messages cannot be empty")
	}

	// Check that at least one message has role "user"
	hasUserMessage := false
	for _, msg := range messages {
		if msg.Role == "user" {
			hasUserMessage = true
			break
		}
	}
	if !hasUserMessage {
		return nil, "", fmt.Errorf("at least one message must have role 'user'")
	}

	// Convert messages to Gemini format, excluding system messages
	contents := make([]*genai.Content, 0, len(messages))
	var systemText string
	for _, msg := range messages {
		// Handle system messages separately
		if msg.Role == "system" {
			if systemText == "" {
				systemText = msg.Content
			}
			continue // Don't add system messages to contents
		}

		// Map Role values to Gemini expected values
		var geminiRole string
		switch msg.Role {
		case "assistant":
			geminiRole = genai.RoleModel
		case "user":
			geminiRole = genai.RoleUser
		default:
			geminiRole = genai.RoleUser // Default to user for unknown roles
		}

		part := genai.NewPartFromText(msg.Content)
		content := &genai.Content{
			Role:  geminiRole,
			Parts: []*genai.Part{part},
		}

		contents = append(contents, content)
	}

	return contents, systemText, nil
}

// NewGeminiService creates a new Gemini LLM service instance.
// The API key is resolved KV-first with config fallback.
func NewGeminiService(llmConfig *common.LLMConfig, kvStorage interfaces.KeyValueStorage, logger arbor.ILogger) (*GeminiService, error) {
	ctx := context.Background()
	apiKey, err := common.ResolveAPIKey(ctx, kvStorage, "gemini_api_key", llmConfig.Gemini.APIKey)
	if err != nil {
		return nil, fmt.Errorf("Gemini API key is required for LLM service (set via GEMINI_API_KEY, RESPONDEO_GEMINI_API_KEY, or llm.gemini.api_key in config): %w", err)
	}

	// Set default model names if not specified
	if llmConfig.Gemini.EmbedModel == "" {
		llmConfig.Gemini.EmbedModel = "gemini-embedding-001"
	}
	if llmConfig.Gemini.ChatModel == "" {
		llmConfig.Gemini.ChatModel = "gemini-2.0-flash"
	}

	embedDim := llmConfig.EmbedDimension
	if embedDim <= 0 {
		embedDim = 768
	}

	// Parse timeout duration
	timeout, err := time.ParseDuration(llmConfig.Gemini.Timeout)
	if err != nil {
		return nil, fmt.Errorf("invalid timeout duration '%s': %w", llmConfig.Gemini.Timeout, err)
	}

	// Minimum interval between requests
	interval, err := time.ParseDuration(llmConfig.Gemini.RateLimit)
	if err != nil || interval <= 0 {
		interval = 4 * time.Second
	}

	// Initialize genai client
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize genai client: %w", err)
	}

	service := &GeminiService{
		config:   &llmConfig.Gemini,
		embedDim: embedDim,
		logger:   logger,
		client:   client,
		limiter:  rate.NewLimiter(rate.Every(interval), 1),
		retry:    NewDefaultRetryConfig(),
		timeout:  timeout,
	}

	logger.Info().
		Str("embed_model", llmConfig.Gemini.EmbedModel).
		Str("chat_model", llmConfig.Gemini.ChatModel).
		Int("embed_dimension", embedDim).
		Dur("timeout", timeout).
		Msg("Gemini LLM service initialized successfully")

	return service, nil
}

// Embed generates an embedding vector for the given text using the
// configured embedding model and output dimensionality.
func (s *GeminiService) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("text cannot be empty for embedding generation")
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	startTime := time.Now()
	s.logger.Debug().
		Int("text_length", len(text)).
		Msg("Starting embedding generation")

	var embedding []float32
	var err error
	for attempt := 0; attempt <= s.retry.MaxRetries; attempt++ {
		embedding, err = s.generateEmbedding(timeoutCtx, text)
		if err == nil {
			break
		}
		if !IsRateLimitError(err) || attempt == s.retry.MaxRetries {
			break
		}
		backoff := s.retry.CalculateBackoff(attempt, ExtractRetryDelay(err))
		s.logger.Warn().
			Err(err).
			Int("attempt", attempt+1).
			Dur("backoff", backoff).
			Msg("Gemini rate limited, backing off")
		select {
		case <-timeoutCtx.Done():
			return nil, timeoutCtx.Err()
		case <-time.After(backoff):
		}
	}
	if err != nil {
		s.logger.Error().
			Err(err).
			Int("text_length", len(text)).
			Msg("Embedding generation failed")
		return nil, fmt.Errorf("embedding generation failed: %w", err)
	}

	s.logger.Debug().
		Int("text_length", len(text)).
		Int("embedding_dim", len(embedding)).
		Dur("duration", time.Since(startTime)).
		Msg("Embedding generation completed successfully")

	return embedding, nil
}

// Chat generates a completion response based on the conversation history.
func (s *GeminiService) Chat(ctx context.Context, messages []interfaces.Message) (*interfaces.Completion, error) {
	if len(messages) == 0 {
		return nil, fmt.Errorf("messages cannot be empty for chat completion")
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	startTime := time.Now()
	s.logger.Debug().
		Int("message_count", len(messages)).
		Msg("Starting chat completion")

	var completion *interfaces.Completion
	var err error
	for attempt := 0; attempt <= s.retry.MaxRetries; attempt++ {
		completion, err = s.generateCompletion(timeoutCtx, messages)
		if err == nil {
			break
		}
		if !IsRateLimitError(err) || attempt == s.retry.MaxRetries {
			break
		}
		backoff := s.retry.CalculateBackoff(attempt, ExtractRetryDelay(err))
		s.logger.Warn().
			Err(err).
			Int("attempt", attempt+1).
			Dur("backoff", backoff).
			Msg("Gemini rate limited, backing off")
		select {
		case <-timeoutCtx.Done():
			return nil, timeoutCtx.Err()
		case <-time.After(backoff):
		}
	}
	if err != nil {
		s.logger.Error().
			Err(err).
			Int("message_count", len(messages)).
			Msg("Chat completion failed")
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}

	s.logger.Debug().
		Int("message_count", len(messages)).
		Int("response_length", len(completion.Text)).
		Dur("duration", time.Since(startTime)).
		Msg("Chat completion completed successfully")

	return completion, nil
}

// ChatStream generates a completion, forwarding text fragments to onDelta
// as each response chunk arrives.
func (s *GeminiService) ChatStream(ctx context.Context, messages []interfaces.Message, onDelta func(string) error) (*interfaces.Completion, error) {
	if len(messages) == 0 {
		return nil, fmt.Errorf("messages cannot be empty for chat completion")
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.limiter.Wait(timeoutCtx); err != nil {
		return nil, fmt.Errorf("rate limiter wait failed: %w", err)
	}

	geminiContents, systemText, err := convertMessagesToGemini(messages)
	if err != nil {
		return nil, fmt.Errorf("failed to convert messages to Gemini format: %w", err)
	}

	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(s.config.Temperature),
	}
	if systemText != "" {
		config.SystemInstruction = genai.NewContentFromText(systemText, genai.RoleUser)
	}

	var text strings.Builder
	truncated := false

	for resp, streamErr := range s.client.Models.GenerateContentStream(timeoutCtx, s.config.ChatModel, geminiContents, config) {
		if streamErr != nil {
			return nil, fmt.Errorf("Gemini streaming failed: %w", streamErr)
		}
		if resp == nil {
			continue
		}

		chunk := resp.Text()
		if chunk != "" {
			text.WriteString(chunk)
			if onDelta != nil {
				if err := onDelta(chunk); err != nil {
					return nil, fmt.Errorf("delta callback aborted stream: %w", err)
				}
			}
		}

		for _, candidate := range resp.Candidates {
			if candidate.FinishReason == genai.FinishReasonMaxTokens {
				truncated = true
			}
		}
	}

	if text.Len() == 0 {
		return nil, fmt.Errorf("no response generated from chat model")
	}

	return &interfaces.Completion{
		Text:      text.String(),
		Truncated: truncated,
	}, nil
}

// HealthCheck verifies the LLM service is operational by exercising both
// the embedding and chat models with lightweight probes.
func (s *GeminiService) HealthCheck(ctx context.Context) error {
	s.logger.Debug().Msg("Running Gemini LLM service health check")

	if s.client == nil {
		return fmt.Errorf("genai client is not initialized")
	}

	if err := s.performEmbeddingHealthCheck(ctx); err != nil {
		s.logger.Error().
			Err(err).
			Msg("Embedding model health check failed")
		return fmt.Errorf("embedding model health check failed: %w", err)
	}

	if err := s.performChatHealthCheck(ctx); err != nil {
		s.logger.Error().
			Err(err).
			Msg("Chat model health check failed")
		return fmt.Errorf("chat model health check failed: %w", err)
	}

	s.logger.Info().
		Str("embed_model", s.config.EmbedModel).
		Str("chat_model", s.config.ChatModel).
		Msg("Gemini LLM service health check passed")

	return nil
}

// performEmbeddingHealthCheck exercises the embedding model with a lightweight probe.
func (s *GeminiService) performEmbeddingHealthCheck(ctx context.Context) error {
	healthCheckCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	embedding, err := s.generateEmbedding(healthCheckCtx, "health check probe")
	if err != nil {
		return fmt.Errorf("embedding probe failed: %w", err)
	}

	if len(embedding) == 0 {
		return fmt.Errorf("embedding probe returned empty vector")
	}

	s.logger.Debug().
		Int("embedding_dim", len(embedding)).
		Msg("Embedding model health check passed")

	return nil
}

// performChatHealthCheck exercises the chat model with a minimal probe.
func (s *GeminiService) performChatHealthCheck(ctx context.Context) error {
	healthCheckCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	testMessages := []interfaces.Message{
		{
			Role:    "user",
			Content: "ping",
		},
	}

	completion, err := s.generateCompletion(healthCheckCtx, testMessages)
	if err != nil {
		return fmt.Errorf("chat probe failed: %w", err)
	}

	if len(strings.TrimSpace(completion.Text)) == 0 {
		return fmt.Errorf("chat probe returned empty response")
	}

	s.logger.Debug().
		Int("response_length", len(completion.Text)).
		Msg("Chat model health check passed")

	return nil
}

// GetMode returns the current operational mode of the LLM service.
func (s *GeminiService) GetMode() interfaces.LLMMode {
	return interfaces.LLMModeCloud
}

// Close releases resources and performs cleanup operations.
func (s *GeminiService) Close() error {
	s.logger.Info().Msg("Closing Gemini LLM service")

	// genai.Client doesn't require explicit Close
	s.client = nil

	return nil
}

// generateEmbedding encapsulates the embedding API call with the configured
// output dimensionality.
func (s *GeminiService) generateEmbedding(ctx context.Context, text string) ([]float32, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait failed: %w", err)
	}

	outputDim := int32(s.embedDim)
	embeddingConfig := &genai.EmbedContentConfig{
		OutputDimensionality: &outputDim,
	}

	result, err := s.client.Models.EmbedContent(ctx, s.config.EmbedModel, []*genai.Content{genai.NewContentFromText(text, genai.RoleUser)}, embeddingConfig)
	if err != nil {
		return nil, fmt.Errorf("embedding generation failed: %w", err)
	}

	var embedding []float32
	if result != nil && len(result.Embeddings) > 0 {
		embedding = result.Embeddings[0].Values
	}

	if embedding == nil {
		return nil, fmt.Errorf("no embedding returned from API")
	}

	if len(embedding) != s.embedDim {
		return nil, fmt.Errorf("embedding dimension mismatch: expected %d, got %d", s.embedDim, len(embedding))
	}

	return embedding, nil
}

// generateCompletion encapsulates the non-streaming chat completion call.
func (s *GeminiService) generateCompletion(ctx context.Context, messages []interfaces.Message) (*interfaces.Completion, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait failed: %w", err)
	}

	geminiContents, systemText, err := convertMessagesToGemini(messages)
	if err != nil {
		return nil, fmt.Errorf("failed to convert messages to Gemini format: %w", err)
	}

	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(s.config.Temperature),
	}
	if systemText != "" {
		config.SystemInstruction = genai.NewContentFromText(systemText, genai.RoleUser)
	}

	resp, err := s.client.Models.GenerateContent(ctx, s.config.ChatModel, geminiContents, config)
	if err != nil {
		return nil, fmt.Errorf("chat generation failed: %w", err)
	}

	// Extract text from response - iterate candidates until non-empty text is found
	var response strings.Builder
	truncated := false
	if resp != nil && len(resp.Candidates) > 0 {
		for _, candidate := range resp.Candidates {
			if candidate.Content != nil {
				for _, part := range candidate.Content.Parts {
					if part.Text != "" {
						response.WriteString(part.Text)
					}
				}
			}
			if candidate.FinishReason == genai.FinishReasonMaxTokens {
				truncated = true
			}
			if response.Len() > 0 {
				break
			}
		}
	}

	if response.Len() == 0 {
		return nil, fmt.Errorf("no response generated from chat model")
	}

	return &interfaces.Completion{
		Text:      response.String(),
		Truncated: truncated,
	}, nil
}
