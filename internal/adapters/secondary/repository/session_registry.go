package repository

import (
	"fmt"
	"sync"

	"github.com/vibin/derma-chat/internal/core/domain"
	"github.com/vibin/derma-chat/internal/logger"
)

// sessionIDPrefix is the prefix of ids allocated by CreateNew
const sessionIDPrefix = "chat_"

// InMemoryRegistry implements ports.SessionRegistry. Sessions live as long as
// the registry; nothing is persisted.
type InMemoryRegistry struct {
	sessions map[string]*domain.Session
	order    []string
	nextID   int
	mutex    sync.RWMutex
	logger   logger.Logger
}

// NewInMemoryRegistry creates an empty registry
func NewInMemoryRegistry(log logger.Logger) *InMemoryRegistry {
	return &InMemoryRegistry{
		sessions: make(map[string]*domain.Session),
		nextID:   1,
		logger:   log,
	}
}

// GetOrCreate returns the session for id, creating an empty one if needed
func (r *InMemoryRegistry) GetOrCreate(id string) *domain.Session {
	r.mutex.RLock()
	session, exists := r.sessions[id]
	r.mutex.RUnlock()
	if exists {
		return session
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	// another caller may have created it between the two locks
	if session, exists := r.sessions[id]; exists {
		return session
	}
	return r.addLocked(id)
}

// CreateNew allocates a session with the next free chat_<n> id
func (r *InMemoryRegistry) CreateNew() *domain.Session {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	for {
		id := fmt.Sprintf("%s%d", sessionIDPrefix, r.nextID)
		r.nextID++
		if _, taken := r.sessions[id]; !taken {
			return r.addLocked(id)
		}
	}
}

// Get retrieves a session by id
func (r *InMemoryRegistry) Get(id string) (*domain.Session, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	session, exists := r.sessions[id]
	if !exists {
		r.logger.Warn("Session not found", "session_id", id)
		return nil, fmt.Errorf("%w: %s", domain.ErrSessionNotFound, id)
	}
	return session, nil
}

// List returns the session ids in creation order
func (r *InMemoryRegistry) List() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	ids := make([]string, len(r.order))
	copy(ids, r.order)
	return ids
}

// Remove deletes a session by id
func (r *InMemoryRegistry) Remove(id string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, exists := r.sessions[id]; !exists {
		r.logger.Warn("Session not found for removal", "session_id", id)
		return fmt.Errorf("%w: %s", domain.ErrSessionNotFound, id)
	}

	delete(r.sessions, id)
	for i, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}

	r.logger.Info("Removed session", "session_id", id)
	return nil
}

func (r *InMemoryRegistry) addLocked(id string) *domain.Session {
	session := domain.NewSession(id)
	r.sessions[id] = session
	r.order = append(r.order, id)

	r.logger.Info("Created session", "session_id", id)
	return session
}
