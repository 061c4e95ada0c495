package ports

import "github.com/vibin/derma-chat/internal/core/domain"

// SessionRegistry maps session ids to sessions for the lifetime of the process
type SessionRegistry interface {
	// GetOrCreate returns the session for id, creating an empty one if needed
	GetOrCreate(id string) *domain.Session

	// CreateNew allocates a session with a fresh unique id
	CreateNew() *domain.Session

	// Get returns domain.ErrSessionNotFound for unknown ids
	Get(id string) (*domain.Session, error)

	// List returns the session ids in creation order
	List() []string

	// Remove deletes a session
	Remove(id string) error
}
