package ports

import (
	"context"

	"github.com/vibin/derma-chat/internal/core/domain"
)

// CallOptions are the generation parameters for one model call
type CallOptions struct {
	MaxTokens   int     `json:"max_tokens" toml:"max_tokens"`
	Temperature float64 `json:"temperature" toml:"temperature"`
}

// ModelCapability is the text-and-vision model the conversation is replayed to
type ModelCapability interface {
	// Call sends the ordered messages and returns one assistant message. Failures
	// are reported as *domain.CapabilityError.
	Call(ctx context.Context, messages []domain.Message, opts CallOptions) (domain.Message, error)

	// GetModelInfo returns information about the current model
	GetModelInfo(ctx context.Context) (map[string]interface{}, error)
}
