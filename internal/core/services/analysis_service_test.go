package services_test

import (
	"context"
	"errors"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/vibin/derma-chat/config"
	"github.com/vibin/derma-chat/internal/adapters/secondary/repository"
	"github.com/vibin/derma-chat/internal/core/domain"
	"github.com/vibin/derma-chat/internal/core/ports"
	"github.com/vibin/derma-chat/internal/core/services"
	"github.com/vibin/derma-chat/internal/logger"
)

type recordedCall struct {
	messages []domain.Message
	opts     ports.CallOptions
}

// stubModel answers diagnosis calls (those carrying an image) and follow-up
// calls from separate queues and records every call it receives
type stubModel struct {
	mu           sync.Mutex
	calls        []recordedCall
	diagnosis    string
	reply        string
	diagnosisErr error
	replyErr     error
}

func (m *stubModel) Call(_ context.Context, messages []domain.Message, opts ports.CallOptions) (domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, recordedCall{messages: messages, opts: opts})

	last := messages[len(messages)-1]
	if len(last.Content.Images()) > 0 {
		if m.diagnosisErr != nil {
			return domain.Message{}, &domain.CapabilityError{Provider: "stub", Err: m.diagnosisErr}
		}
		return domain.TextMessage(domain.RoleAssistant, m.diagnosis), nil
	}
	if m.replyErr != nil {
		return domain.Message{}, &domain.CapabilityError{Provider: "stub", Err: m.replyErr}
	}
	return domain.TextMessage(domain.RoleAssistant, m.reply), nil
}

func (m *stubModel) GetModelInfo(context.Context) (map[string]interface{}, error) {
	return map[string]interface{}{"provider": "stub"}, nil
}

func (m *stubModel) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func (m *stubModel) lastCall() recordedCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[len(m.calls)-1]
}

var _ = Describe("AnalysisService", func() {
	const (
		diagnosisText = "Likely: contact dermatitis. Danger: 2. ..."
		replyText     = "Try an OTC hydrocortisone cream..."
		question      = "What cream should I use?"
	)

	var (
		ctx      context.Context
		cfg      *config.Config
		model    *stubModel
		registry *repository.InMemoryRegistry
		service  *services.AnalysisService
		img1     domain.ImageRef
	)

	BeforeEach(func() {
		ctx = context.Background()
		cfg = config.DefaultConfig()
		cfg.LLM.FollowUp = config.GenerationConfig{MaxTokens: 300, Temperature: 0.1}
		model = &stubModel{diagnosis: diagnosisText, reply: replyText}
		registry = repository.NewInMemoryRegistry(logger.Nop())
		service = services.NewAnalysisService(model, registry, cfg, logger.Nop())
		img1 = domain.EncodeImage([]byte("IMG1"), domain.MIMETypeJPEG)
	})

	historyLen := func(id string) int {
		history, err := service.GetHistory(id)
		Expect(err).NotTo(HaveOccurred())
		return len(history)
	}

	Describe("image-only turn on a new session", func() {
		It("returns the diagnosis and stores one assistant message", func() {
			result, err := service.SubmitTurn(ctx, services.TurnRequest{SessionID: "visit", Image: &img1})
			Expect(err).NotTo(HaveOccurred())

			Expect(result.SessionID).To(Equal("visit"))
			Expect(result.Diagnosis).NotTo(BeNil())
			Expect(*result.Diagnosis).To(Equal(diagnosisText))
			Expect(result.Reply).To(BeNil())
			Expect(result.History).To(HaveLen(1))
			Expect(result.History[0].Role).To(Equal(domain.RoleAssistant))
			Expect(result.History[0].Content.Text()).To(Equal(diagnosisText))
			Expect(result.History[0].Content.IsStructured()).To(BeFalse())
		})

		It("folds the diagnosis instruction into the image message", func() {
			_, err := service.SubmitTurn(ctx, services.TurnRequest{SessionID: "visit", Image: &img1})
			Expect(err).NotTo(HaveOccurred())

			call := model.lastCall()
			Expect(call.messages).To(HaveLen(1))
			request := call.messages[0]
			Expect(request.Role).To(Equal(domain.RoleUser))

			parts := request.Content.Parts()
			Expect(parts).To(HaveLen(2))
			Expect(parts[0].Type).To(Equal(domain.PartTypeText))
			Expect(parts[0].Text).To(Equal(cfg.Prompts.Diagnosis))
			Expect(parts[1].Type).To(Equal(domain.PartTypeImage))
			Expect(parts[1].Image).To(Equal(img1))

			Expect(call.opts).To(Equal(ports.CallOptions{MaxTokens: 500, Temperature: 0.2}))
		})
	})

	Describe("follow-up on an existing session", func() {
		BeforeEach(func() {
			_, err := service.SubmitTurn(ctx, services.TurnRequest{SessionID: "visit", Image: &img1})
			Expect(err).NotTo(HaveOccurred())
		})

		It("replies and stores the question and the answer", func() {
			result, err := service.SubmitTurn(ctx, services.TurnRequest{SessionID: "visit", Query: question})
			Expect(err).NotTo(HaveOccurred())

			Expect(result.Diagnosis).To(BeNil())
			Expect(result.Reply).NotTo(BeNil())
			Expect(*result.Reply).To(Equal(replyText))

			Expect(result.History).To(HaveLen(3))
			Expect(result.History[0].Role).To(Equal(domain.RoleAssistant))
			Expect(result.History[0].Content.Text()).To(Equal(diagnosisText))
			Expect(result.History[1].Role).To(Equal(domain.RoleUser))
			Expect(result.History[1].Content.Text()).To(Equal(question))
			Expect(result.History[2].Role).To(Equal(domain.RoleAssistant))
			Expect(result.History[2].Content.Text()).To(Equal(replyText))
		})

		It("renders the transcript behind the follow-up system instruction", func() {
			_, err := service.SubmitTurn(ctx, services.TurnRequest{SessionID: "visit", Query: question})
			Expect(err).NotTo(HaveOccurred())

			call := model.lastCall()
			Expect(call.messages).To(HaveLen(3))
			Expect(call.messages[0].Role).To(Equal(domain.RoleSystem))
			Expect(call.messages[0].Content.Text()).To(Equal(cfg.Prompts.FollowUp))
			Expect(call.messages[1].Content.Text()).To(Equal(diagnosisText))
			Expect(call.messages[2].Content.Text()).To(Equal(question))
			Expect(call.opts).To(Equal(ports.CallOptions{MaxTokens: 300, Temperature: 0.1}))
		})

		It("sends the raw history when no follow-up instruction is configured", func() {
			cfg.Prompts.FollowUp = ""

			_, err := service.SubmitTurn(ctx, services.TurnRequest{SessionID: "visit", Query: question})
			Expect(err).NotTo(HaveOccurred())

			call := model.lastCall()
			Expect(call.messages).To(HaveLen(2))
			Expect(call.messages[0].Role).To(Equal(domain.RoleAssistant))
		})

		It("keeps the user message but no reply when the follow-up call fails", func() {
			model.replyErr = errors.New("quota exceeded")
			before := historyLen("visit")

			result, err := service.SubmitTurn(ctx, services.TurnRequest{SessionID: "visit", Query: question})
			Expect(result).To(BeNil())
			Expect(err).To(MatchError(domain.ErrReplyFailed))
			Expect(err.Error()).To(ContainSubstring("quota exceeded"))

			var capErr *domain.CapabilityError
			Expect(errors.As(err, &capErr)).To(BeTrue())
			Expect(domain.ErrorKind(err)).To(Equal(domain.KindReplyFailed))

			history, err := service.GetHistory("visit")
			Expect(err).NotTo(HaveOccurred())
			Expect(history).To(HaveLen(before + 1))
			Expect(history[len(history)-1].Role).To(Equal(domain.RoleUser))
			Expect(history[len(history)-1].Content.Text()).To(Equal(question))
		})
	})

	Describe("empty turns", func() {
		It("rejects a turn with neither image nor query before calling the model", func() {
			_, err := service.SubmitTurn(ctx, services.TurnRequest{SessionID: "visit", Image: &img1})
			Expect(err).NotTo(HaveOccurred())
			calls := model.callCount()

			result, err := service.SubmitTurn(ctx, services.TurnRequest{SessionID: "visit", Query: "   "})
			Expect(result).To(BeNil())
			Expect(err).To(MatchError(domain.ErrEmptyTurn))
			Expect(model.callCount()).To(Equal(calls))
			Expect(historyLen("visit")).To(Equal(1))
		})

		It("does not allocate a session for an empty turn", func() {
			_, err := service.SubmitTurn(ctx, services.TurnRequest{})
			Expect(err).To(MatchError(domain.ErrEmptyTurn))
			Expect(service.ListSessions()).To(BeEmpty())
		})
	})

	Describe("image and query in one turn", func() {
		It("diagnoses first and answers with the diagnosis in context", func() {
			result, err := service.SubmitTurn(ctx, services.TurnRequest{Image: &img1, Query: question})
			Expect(err).NotTo(HaveOccurred())

			Expect(result.SessionID).To(Equal("chat_1"))
			Expect(*result.Diagnosis).To(Equal(diagnosisText))
			Expect(*result.Reply).To(Equal(replyText))
			Expect(result.History).To(HaveLen(3))
			Expect(model.callCount()).To(Equal(2))

			followUp := model.lastCall().messages
			Expect(followUp[1].Content.Text()).To(Equal(diagnosisText))
		})

		It("stops before the follow-up when the diagnosis fails", func() {
			model.diagnosisErr = errors.New("connection reset")

			result, err := service.SubmitTurn(ctx, services.TurnRequest{SessionID: "visit", Image: &img1, Query: question})
			Expect(result).To(BeNil())
			Expect(err).To(MatchError(domain.ErrAnalysisFailed))
			Expect(err.Error()).To(ContainSubstring("connection reset"))
			Expect(model.callCount()).To(Equal(1))
			Expect(historyLen("visit")).To(Equal(0))
		})
	})

	Describe("session resolution", func() {
		It("fails a text-only turn on an unknown session", func() {
			_, err := service.SubmitTurn(ctx, services.TurnRequest{SessionID: "missing", Query: question})
			Expect(err).To(MatchError(domain.ErrSessionNotFound))
			Expect(model.callCount()).To(BeZero())
		})

		It("allows a follow-up without a prior diagnosis", func() {
			id := service.CreateSession()

			result, err := service.SubmitTurn(ctx, services.TurnRequest{SessionID: id, Query: question})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.History).To(HaveLen(2))
		})

		It("creates a session when none is named", func() {
			result, err := service.SubmitTurn(ctx, services.TurnRequest{Query: question})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.SessionID).To(Equal("chat_1"))
			Expect(service.ListSessions()).To(Equal([]string{"chat_1"}))
		})

		It("drops the session it allocated when the turn fails", func() {
			model.diagnosisErr = errors.New("connection reset")

			_, err := service.SubmitTurn(ctx, services.TurnRequest{Image: &img1})
			Expect(err).To(MatchError(domain.ErrAnalysisFailed))
			Expect(service.ListSessions()).To(BeEmpty())

			model.diagnosisErr = nil
			model.replyErr = errors.New("rate limited")
			_, err = service.SubmitTurn(ctx, services.TurnRequest{Image: &img1, Query: question})
			Expect(err).To(MatchError(domain.ErrReplyFailed))
			Expect(service.ListSessions()).To(BeEmpty())
		})

		It("keeps a named session when its turn fails", func() {
			model.diagnosisErr = errors.New("connection reset")

			_, err := service.SubmitTurn(ctx, services.TurnRequest{SessionID: "visit", Image: &img1})
			Expect(err).To(HaveOccurred())
			Expect(service.ListSessions()).To(Equal([]string{"visit"}))
		})

		It("removes sessions", func() {
			id := service.CreateSession()
			Expect(service.DeleteSession(id)).To(Succeed())
			Expect(service.DeleteSession(id)).To(MatchError(domain.ErrSessionNotFound))
			_, err := service.GetHistory(id)
			Expect(err).To(MatchError(domain.ErrSessionNotFound))
		})
	})

	Describe("stateless turns", func() {
		It("continues a resent history without touching the registry", func() {
			prior := []domain.Message{domain.TextMessage(domain.RoleAssistant, diagnosisText)}

			result, err := service.SubmitTurn(ctx, services.TurnRequest{PriorHistory: prior, Query: question})
			Expect(err).NotTo(HaveOccurred())

			Expect(result.SessionID).To(BeEmpty())
			Expect(result.History).To(HaveLen(3))
			Expect(prior).To(HaveLen(1))
			Expect(service.ListSessions()).To(BeEmpty())
		})

		It("accepts an empty resent history", func() {
			result, err := service.SubmitTurn(ctx, services.TurnRequest{PriorHistory: []domain.Message{}, Image: &img1})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.History).To(HaveLen(1))
			Expect(service.ListSessions()).To(BeEmpty())
		})

		It("rejects a resent history combined with a session id", func() {
			_, err := service.SubmitTurn(ctx, services.TurnRequest{
				SessionID:    "visit",
				PriorHistory: []domain.Message{domain.TextMessage(domain.RoleAssistant, diagnosisText)},
				Query:        question,
			})
			Expect(err).To(MatchError(domain.ErrInvalidHistoryFormat))
		})

		It("ignores an empty resent history next to a session id", func() {
			id := service.CreateSession()

			result, err := service.SubmitTurn(ctx, services.TurnRequest{
				SessionID:    id,
				PriorHistory: []domain.Message{},
				Query:        question,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.SessionID).To(Equal(id))
			Expect(historyLen(id)).To(Equal(2))
		})
	})

	Describe("append-only history", func() {
		It("counts exactly the messages appended across turns", func() {
			id := service.CreateSession()
			appended := 0

			for i := 0; i < 3; i++ {
				_, err := service.SubmitTurn(ctx, services.TurnRequest{SessionID: id, Image: &img1, Query: question})
				Expect(err).NotTo(HaveOccurred())
				appended += 3
			}
			first, err := service.GetHistory(id)
			Expect(err).NotTo(HaveOccurred())
			Expect(first).To(HaveLen(appended))

			model.replyErr = errors.New("boom")
			_, err = service.SubmitTurn(ctx, services.TurnRequest{SessionID: id, Query: question})
			Expect(err).To(HaveOccurred())

			second, err := service.GetHistory(id)
			Expect(err).NotTo(HaveOccurred())
			Expect(second).To(HaveLen(appended + 1))
			for i := range first {
				Expect(second[i].Equal(first[i])).To(BeTrue())
			}
		})

		It("serialises concurrent turns on one session", func() {
			id := service.CreateSession()

			var wg sync.WaitGroup
			for i := 0; i < 10; i++ {
				wg.Add(1)
				go func() {
					defer GinkgoRecover()
					defer wg.Done()
					_, err := service.SubmitTurn(ctx, services.TurnRequest{SessionID: id, Query: question})
					Expect(err).NotTo(HaveOccurred())
				}()
			}
			wg.Wait()

			history, err := service.GetHistory(id)
			Expect(err).NotTo(HaveOccurred())
			Expect(history).To(HaveLen(20))
			for i := 0; i < len(history); i += 2 {
				Expect(history[i].Role).To(Equal(domain.RoleUser))
				Expect(history[i+1].Role).To(Equal(domain.RoleAssistant))
			}
		})
	})

	It("reports model info from the capability", func() {
		info, err := service.GetModelInfo(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(info).To(HaveKeyWithValue("provider", "stub"))
	})
})
