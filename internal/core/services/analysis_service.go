package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/vibin/derma-chat/config"
	"github.com/vibin/derma-chat/internal/core/domain"
	"github.com/vibin/derma-chat/internal/core/ports"
	"github.com/vibin/derma-chat/internal/logger"
)

// TurnRequest is one caller-initiated exchange: an optional image and an
// optional query, against a registry session or a resent history
type TurnRequest struct {
	SessionID string
	Image     *domain.ImageRef
	Query     string

	// PriorHistory is set by stateless callers that resend the whole
	// transcript each turn. A non-empty one cannot be combined with
	// SessionID; an empty one next to SessionID is ignored.
	PriorHistory []domain.Message
}

// TurnResult is what a turn produced. Diagnosis and Reply are nil when the
// corresponding step did not run.
type TurnResult struct {
	SessionID string           `json:"session_id,omitempty"`
	Diagnosis *string          `json:"diagnosis"`
	Reply     *string          `json:"reply"`
	History   []domain.Message `json:"chat_history"`
}

// AnalysisService runs turns against the model capability and keeps the
// session transcripts up to date
type AnalysisService struct {
	model    ports.ModelCapability
	registry ports.SessionRegistry
	config   *config.Config
	logger   logger.Logger
}

// NewAnalysisService creates a new AnalysisService
func NewAnalysisService(model ports.ModelCapability, registry ports.SessionRegistry, config *config.Config, logger logger.Logger) *AnalysisService {
	return &AnalysisService{
		model:    model,
		registry: registry,
		config:   config,
		logger:   logger,
	}
}

// SubmitTurn processes one turn. An image runs the diagnosis step, a query
// runs the follow-up step, and both run them in that order.
func (s *AnalysisService) SubmitTurn(ctx context.Context, req TurnRequest) (*TurnResult, error) {
	query := strings.TrimSpace(req.Query)
	hasImage := req.Image != nil

	if !hasImage && query == "" {
		return nil, domain.ErrEmptyTurn
	}

	log := s.logger.WithFields(map[string]any{
		"turn_id":   uuid.NewString(),
		"has_image": hasImage,
		"has_query": query != "",
	})

	target, err := s.resolveTranscript(req, hasImage)
	if err != nil {
		log.Warn("Failed to resolve session", "session_id", req.SessionID, "error", err)
		return nil, err
	}
	defer target.unlock()

	sessionID, transcript := target.sessionID, target.transcript
	if sessionID != "" {
		log = log.WithField("session_id", sessionID)
	}
	log.Info("Processing turn", "history_length", transcript.Len())

	result := &TurnResult{SessionID: sessionID}

	if hasImage {
		diagnosis, err := s.diagnose(ctx, transcript, *req.Image)
		if err != nil {
			log.Error("Diagnosis failed", "error", err)
			s.discard(target, log)
			return nil, err
		}
		result.Diagnosis = &diagnosis
		log.Info("Diagnosis completed", "length", len(diagnosis))
	}

	if query != "" {
		reply, err := s.followUp(ctx, transcript, query)
		if err != nil {
			log.Error("Follow-up failed", "error", err)
			s.discard(target, log)
			return nil, err
		}
		result.Reply = &reply
		log.Info("Follow-up completed", "length", len(reply))
	}

	result.History = transcript.History()
	return result, nil
}

// turnTarget is the transcript a turn works on, held under its turn lock
type turnTarget struct {
	sessionID  string
	transcript *domain.Transcript
	unlock     func()
	// created is set when the turn allocated the session itself
	created bool
}

// resolveTranscript picks the transcript a turn works on and takes its turn
// lock. Stateless turns get a transient transcript that nothing else shares.
// An empty resent history alongside a session id counts as no history.
func (s *AnalysisService) resolveTranscript(req TurnRequest, hasImage bool) (turnTarget, error) {
	prior := req.PriorHistory
	if len(prior) == 0 && req.SessionID != "" {
		prior = nil
	}
	if prior != nil {
		if req.SessionID != "" {
			return turnTarget{}, fmt.Errorf("%w: chat history cannot be combined with a session id", domain.ErrInvalidHistoryFormat)
		}
		return turnTarget{transcript: domain.NewTranscript(prior...), unlock: func() {}}, nil
	}

	var session *domain.Session
	created := false
	switch {
	case req.SessionID == "":
		session = s.registry.CreateNew()
		created = true
	case hasImage:
		session = s.registry.GetOrCreate(req.SessionID)
	default:
		var err error
		session, err = s.registry.Get(req.SessionID)
		if err != nil {
			return turnTarget{}, err
		}
	}

	return turnTarget{
		sessionID:  session.ID,
		transcript: session.Transcript,
		unlock:     session.LockTurn(),
		created:    created,
	}, nil
}

// discard drops a session the failed turn allocated. The caller never saw
// its id.
func (s *AnalysisService) discard(target turnTarget, log logger.Logger) {
	if !target.created {
		return
	}
	if err := s.registry.Remove(target.sessionID); err != nil {
		log.Warn("Failed to drop session of failed turn", "error", err)
	}
}

// diagnose sends the stored history plus one user message carrying the
// diagnosis instruction and the image. Only the reply is appended.
func (s *AnalysisService) diagnose(ctx context.Context, transcript *domain.Transcript, image domain.ImageRef) (string, error) {
	request, err := domain.MultiModalUserMessage(s.config.Prompts.Diagnosis, &image)
	if err != nil {
		return "", err
	}

	messages := append(transcript.History(), request)
	reply, err := s.model.Call(ctx, messages, callOptions(s.config.LLM.Diagnosis))
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrAnalysisFailed, err)
	}

	text := reply.Content.Text()
	transcript.Append(domain.TextMessage(domain.RoleAssistant, text))
	return text, nil
}

// followUp appends the query before calling so a failed call still leaves
// the user's contribution in the transcript
func (s *AnalysisService) followUp(ctx context.Context, transcript *domain.Transcript, query string) (string, error) {
	transcript.Append(domain.TextMessage(domain.RoleUser, query))

	messages := transcript.Render(s.config.Prompts.FollowUp)
	reply, err := s.model.Call(ctx, messages, callOptions(s.config.LLM.FollowUp))
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrReplyFailed, err)
	}

	text := reply.Content.Text()
	transcript.Append(domain.TextMessage(domain.RoleAssistant, text))
	return text, nil
}

// CreateSession allocates a new empty session
func (s *AnalysisService) CreateSession() string {
	session := s.registry.CreateNew()
	s.logger.Info("Created session", "session_id", session.ID)
	return session.ID
}

// OpenSession returns id, creating an empty session under it when absent.
// Transports keyed by an external conversation id use it so text-only turns
// find a session.
func (s *AnalysisService) OpenSession(id string) string {
	return s.registry.GetOrCreate(id).ID
}

// ListSessions returns all session ids in creation order
func (s *AnalysisService) ListSessions() []string {
	return s.registry.List()
}

// GetHistory returns the stored transcript of a session
func (s *AnalysisService) GetHistory(sessionID string) ([]domain.Message, error) {
	session, err := s.registry.Get(sessionID)
	if err != nil {
		return nil, err
	}
	return session.Transcript.History(), nil
}

// DeleteSession removes a session and its transcript
func (s *AnalysisService) DeleteSession(sessionID string) error {
	if err := s.registry.Remove(sessionID); err != nil {
		return err
	}
	s.logger.Info("Deleted session", "session_id", sessionID)
	return nil
}

// GetModelInfo returns information about the configured model
func (s *AnalysisService) GetModelInfo(ctx context.Context) (map[string]interface{}, error) {
	return s.model.GetModelInfo(ctx)
}

func callOptions(gen config.GenerationConfig) ports.CallOptions {
	return ports.CallOptions{
		MaxTokens:   gen.MaxTokens,
		Temperature: gen.Temperature,
	}
}
