package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyTurn is returned when a turn carries neither an image nor text
	ErrEmptyTurn = errors.New("turn has neither an image nor a query")

	// ErrSessionNotFound is returned for an unknown session id
	ErrSessionNotFound = errors.New("session not found")

	// ErrInvalidHistoryFormat is returned when a supplied chat history can't be parsed
	ErrInvalidHistoryFormat = errors.New("invalid chat history format")

	// ErrAnalysisFailed wraps a failed diagnosis call
	ErrAnalysisFailed = errors.New("image analysis failed")

	// ErrReplyFailed wraps a failed follow-up call
	ErrReplyFailed = errors.New("reply generation failed")

	// ErrUnsupportedImage is returned for uploads that are not JPEG or PNG
	ErrUnsupportedImage = errors.New("unsupported image type")
)

// CapabilityError is the failure reported by a model capability adapter
type CapabilityError struct {
	Provider string
	Err      error
}

func (e *CapabilityError) Error() string {
	if e.Provider == "" {
		return fmt.Sprintf("model call failed: %v", e.Err)
	}
	return fmt.Sprintf("%s model call failed: %v", e.Provider, e.Err)
}

func (e *CapabilityError) Unwrap() error {
	return e.Err
}

// Stable error kinds exposed to callers
const (
	KindEmptyTurn        = "empty_turn"
	KindSessionNotFound  = "session_not_found"
	KindInvalidHistory   = "invalid_history"
	KindAnalysisFailed   = "analysis_failed"
	KindReplyFailed      = "reply_failed"
	KindUnsupportedImage = "unsupported_image"
	KindInternal         = "internal"
)

// ErrorKind classifies err into one of the stable kinds
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, ErrEmptyTurn):
		return KindEmptyTurn
	case errors.Is(err, ErrSessionNotFound):
		return KindSessionNotFound
	case errors.Is(err, ErrInvalidHistoryFormat):
		return KindInvalidHistory
	case errors.Is(err, ErrAnalysisFailed):
		return KindAnalysisFailed
	case errors.Is(err, ErrReplyFailed):
		return KindReplyFailed
	case errors.Is(err, ErrUnsupportedImage):
		return KindUnsupportedImage
	default:
		return KindInternal
	}
}
