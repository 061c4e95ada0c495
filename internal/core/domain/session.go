package domain

import (
	"sync"
	"time"
)

// Session binds a session id to exactly one transcript
type Session struct {
	ID         string
	Transcript *Transcript
	CreatedAt  time.Time

	// turnMu serialises whole turns so two turns on one session never interleave
	turnMu sync.Mutex
}

// NewSession creates a session with an empty transcript
func NewSession(id string) *Session {
	return &Session{
		ID:         id,
		Transcript: NewTranscript(),
		CreatedAt:  time.Now(),
	}
}

// LockTurn blocks until the caller owns the session's turn. The returned
// function releases it.
func (s *Session) LockTurn() (unlock func()) {
	s.turnMu.Lock()
	return s.turnMu.Unlock
}
