package llm

import (
	"context"
	"fmt"

	"github.com/vibin/derma-chat/internal/core/domain"
	"github.com/vibin/derma-chat/internal/core/ports"
	"github.com/vibin/derma-chat/internal/logger"
)

const mockDiagnosis = `**Most likely diagnosis:** Contact dermatitis

**Danger level:** 2/5

**Treatment:** Avoid the suspected irritant, wash the area with mild soap and apply an over-the-counter hydrocortisone cream.

**Disclaimer:** This is not medical advice. Please consult a qualified dermatologist.`

// MockAdapter answers without any backend, for local development
type MockAdapter struct {
	logger logger.Logger
}

// NewMockAdapter creates a new MockAdapter
func NewMockAdapter(log logger.Logger) *MockAdapter {
	log.Warn("Using mock model capability, replies are canned")
	return &MockAdapter{logger: log}
}

// Call returns a canned diagnosis when the last message carries an image and
// echoes the last user text otherwise
func (m *MockAdapter) Call(ctx context.Context, messages []domain.Message, opts ports.CallOptions) (domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return domain.Message{}, &domain.CapabilityError{Provider: ProviderMock, Err: err}
	}
	if len(messages) == 0 {
		return domain.Message{}, &domain.CapabilityError{Provider: ProviderMock, Err: fmt.Errorf("no messages")}
	}

	last := messages[len(messages)-1]
	if len(last.Content.Images()) > 0 {
		return domain.TextMessage(domain.RoleAssistant, mockDiagnosis), nil
	}

	return domain.TextMessage(domain.RoleAssistant,
		fmt.Sprintf("You asked: %q. Keep an eye on the area and see a dermatologist if it spreads or worsens.", last.Content.Text())), nil
}

// GetModelInfo returns information about the mock model
func (m *MockAdapter) GetModelInfo(ctx context.Context) (map[string]interface{}, error) {
	return map[string]interface{}{
		"name":     "mock",
		"provider": ProviderMock,
	}, nil
}
