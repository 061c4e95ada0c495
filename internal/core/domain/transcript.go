package domain

import (
	"slices"
	"sync"
)

// Transcript is the append-only message history of one conversation. The
// system instruction is never stored; it is added by Render at call time.
type Transcript struct {
	mu       sync.RWMutex
	messages []Message
}

// NewTranscript creates a transcript seeded with the given messages
func NewTranscript(seed ...Message) *Transcript {
	return &Transcript{messages: slices.Clone(seed)}
}

// Append adds a message to the end of the transcript
func (t *Transcript) Append(msg Message) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.messages = append(t.messages, msg)
}

// History returns a snapshot of the stored messages
func (t *Transcript) History() []Message {
	t.mu.RLock()
	defer t.mu.RUnlock()

	history := make([]Message, len(t.messages))
	copy(history, t.messages)
	return history
}

// Render returns the message list sent to the model: a system message with the
// instruction followed by the history. An empty instruction renders the raw
// history.
func (t *Transcript) Render(systemInstruction string) []Message {
	history := t.History()
	if systemInstruction == "" {
		return history
	}

	rendered := make([]Message, 0, len(history)+1)
	rendered = append(rendered, TextMessage(RoleSystem, systemInstruction))
	return append(rendered, history...)
}

// Len returns the number of stored messages
func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return len(t.messages)
}
