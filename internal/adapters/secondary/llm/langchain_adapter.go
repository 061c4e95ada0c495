package llm

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/vibin/derma-chat/config"
	"github.com/vibin/derma-chat/internal/core/domain"
	"github.com/vibin/derma-chat/internal/core/ports"
	"github.com/vibin/derma-chat/internal/logger"
)

// Supported providers
const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
	ProviderMock   = "mock"
)

// errNoChoices is returned when the model answers without any choice
var errNoChoices = errors.New("model returned no choices")

// LangChainAdapter implements ports.ModelCapability on top of a langchaingo model
type LangChainAdapter struct {
	client    llms.Model
	provider  string
	modelName string
	endpoint  string
	timeout   time.Duration
	logger    logger.Logger
}

// NewModelCapability builds the adapter selected by cfg.Provider
func NewModelCapability(cfg *config.LLMConfig, log logger.Logger) (ports.ModelCapability, error) {
	switch strings.ToLower(cfg.Provider) {
	case ProviderOpenAI, "":
		return NewOpenAIAdapter(cfg, log)
	case ProviderOllama:
		return NewOllamaAdapter(cfg, log)
	case ProviderMock:
		return NewMockAdapter(log), nil
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
}

// NewOpenAIAdapter creates an adapter for OpenAI or an OpenAI-compatible endpoint
func NewOpenAIAdapter(cfg *config.LLMConfig, log logger.Logger) (*LangChainAdapter, error) {
	log.Info("Initializing OpenAI adapter", "model", cfg.OpenAI.Model, "base_url", cfg.OpenAI.BaseURL)

	opts := []openai.Option{
		openai.WithModel(cfg.OpenAI.Model),
	}
	if cfg.OpenAI.APIKey != "" {
		opts = append(opts, openai.WithToken(cfg.OpenAI.APIKey))
	}
	if cfg.OpenAI.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.OpenAI.BaseURL))
	}

	client, err := openai.New(opts...)
	if err != nil {
		log.Error("Failed to initialize OpenAI client", "error", err)
		return nil, err
	}

	return NewLangChainAdapter(client, ProviderOpenAI, cfg.OpenAI.Model, cfg.OpenAI.BaseURL, cfg.TimeoutSeconds, log), nil
}

// NewOllamaAdapter creates an adapter for a local Ollama server
func NewOllamaAdapter(cfg *config.LLMConfig, log logger.Logger) (*LangChainAdapter, error) {
	log.Info("Initializing Ollama adapter", "endpoint", cfg.Ollama.Endpoint, "model", cfg.Ollama.Model)

	client, err := ollama.New(
		ollama.WithServerURL(cfg.Ollama.Endpoint),
		ollama.WithModel(cfg.Ollama.Model),
	)
	if err != nil {
		log.Error("Failed to initialize Ollama client", "error", err)
		return nil, err
	}

	return NewLangChainAdapter(client, ProviderOllama, cfg.Ollama.Model, cfg.Ollama.Endpoint, cfg.TimeoutSeconds, log), nil
}

// NewLangChainAdapter wraps an existing langchaingo model. A non-positive
// timeout leaves the caller's deadline in charge.
func NewLangChainAdapter(client llms.Model, provider, modelName, endpoint string, timeoutSeconds int, log logger.Logger) *LangChainAdapter {
	return &LangChainAdapter{
		client:    client,
		provider:  provider,
		modelName: modelName,
		endpoint:  endpoint,
		timeout:   time.Duration(timeoutSeconds) * time.Second,
		logger:    log,
	}
}

// Call sends the messages to the model and returns its reply as an assistant message
func (a *LangChainAdapter) Call(ctx context.Context, messages []domain.Message, opts ports.CallOptions) (domain.Message, error) {
	content, err := a.toMessageContent(messages)
	if err != nil {
		return domain.Message{}, &domain.CapabilityError{Provider: a.provider, Err: err}
	}

	callOpts := []llms.CallOption{
		llms.WithTemperature(opts.Temperature),
	}
	if opts.MaxTokens > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(opts.MaxTokens))
	}

	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	a.logger.Debug("Calling model",
		"provider", a.provider,
		"model", a.modelName,
		"messages", len(content),
		"max_tokens", opts.MaxTokens)

	start := time.Now()
	resp, err := a.client.GenerateContent(ctx, content, callOpts...)
	if err != nil {
		a.logger.Error("Model call failed", "provider", a.provider, "error", err)
		return domain.Message{}, &domain.CapabilityError{Provider: a.provider, Err: err}
	}
	if resp == nil || len(resp.Choices) == 0 {
		return domain.Message{}, &domain.CapabilityError{Provider: a.provider, Err: errNoChoices}
	}

	reply := cleanThinkingTags(resp.Choices[0].Content)
	a.logger.Info("Model call completed",
		"provider", a.provider,
		"duration", time.Since(start),
		"length", len(reply))

	return domain.TextMessage(domain.RoleAssistant, reply), nil
}

// GetModelInfo returns information about the current model
func (a *LangChainAdapter) GetModelInfo(ctx context.Context) (map[string]interface{}, error) {
	return map[string]interface{}{
		"name":           a.modelName,
		"provider":       a.provider,
		"endpoint":       a.endpoint,
		"timeoutSeconds": int(a.timeout / time.Second),
	}, nil
}

// toMessageContent converts domain messages into langchaingo message content
func (a *LangChainAdapter) toMessageContent(messages []domain.Message) ([]llms.MessageContent, error) {
	content := make([]llms.MessageContent, 0, len(messages))
	for i, msg := range messages {
		role, err := chatMessageType(msg.Role)
		if err != nil {
			return nil, fmt.Errorf("message %d: %w", i, err)
		}

		var parts []llms.ContentPart
		if msg.Content.IsStructured() {
			parts, err = a.structuredParts(msg.Content)
			if err != nil {
				return nil, fmt.Errorf("message %d: %w", i, err)
			}
		} else {
			parts = []llms.ContentPart{llms.TextPart(msg.Content.Text())}
		}

		content = append(content, llms.MessageContent{Role: role, Parts: parts})
	}
	return content, nil
}

// structuredParts converts each part in order. Ollama takes images as raw
// bytes and at most one text part per message, so its text parts are merged
// ahead of the images.
func (a *LangChainAdapter) structuredParts(c domain.Content) ([]llms.ContentPart, error) {
	if a.provider == ProviderOllama {
		parts := []llms.ContentPart{}
		if text := c.Text(); text != "" {
			parts = append(parts, llms.TextPart(text))
		}
		for _, img := range c.Images() {
			data, err := img.Bytes()
			if err != nil {
				return nil, err
			}
			parts = append(parts, llms.BinaryPart(img.MIMEType, data))
		}
		return parts, nil
	}

	parts := make([]llms.ContentPart, 0, len(c.Parts()))
	for _, part := range c.Parts() {
		switch part.Type {
		case domain.PartTypeText:
			parts = append(parts, llms.TextPart(part.Text))
		case domain.PartTypeImage:
			parts = append(parts, llms.ImageURLPart(part.Image.DataURL()))
		default:
			return nil, fmt.Errorf("unsupported content part %q", part.Type)
		}
	}
	return parts, nil
}

func chatMessageType(role domain.Role) (llms.ChatMessageType, error) {
	switch role {
	case domain.RoleSystem:
		return llms.ChatMessageTypeSystem, nil
	case domain.RoleUser:
		return llms.ChatMessageTypeHuman, nil
	case domain.RoleAssistant:
		return llms.ChatMessageTypeAI, nil
	default:
		return "", fmt.Errorf("unsupported role %q", role)
	}
}

var thinkingTags = regexp.MustCompile(`<think>\s*</think>`)

// cleanThinkingTags removes empty thinking tags that reasoning models emit
func cleanThinkingTags(input string) string {
	return strings.TrimSpace(thinkingTags.ReplaceAllString(input, ""))
}
