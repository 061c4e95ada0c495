package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/vibin/derma-chat/config"
	"github.com/vibin/derma-chat/internal/core/domain"
	"github.com/vibin/derma-chat/internal/core/ports"
	"github.com/vibin/derma-chat/internal/core/services"
	"github.com/vibin/derma-chat/internal/logger"
)

type contextKey string

const loggerKey contextKey = "logger"

// Handler is the HTTP handler for the analysis API
type Handler struct {
	service         *services.AnalysisService
	logger          logger.Logger
	router          *chi.Mux
	config          *config.Config
	configMu        sync.Mutex // serializes allowed group updates and saves
	whatsappAdapter ports.WhatsAppPort
}

// NewHandler creates a new HTTP handler. whatsappAdapter may be nil.
func NewHandler(service *services.AnalysisService, cfg *config.Config, whatsappAdapter ports.WhatsAppPort, log logger.Logger) *Handler {
	h := &Handler{
		service:         service,
		logger:          log,
		config:          cfg,
		whatsappAdapter: whatsappAdapter,
	}

	h.setupRouter()
	return h
}

// setupRouter sets up the Chi router with middleware and routes
func (h *Handler) setupRouter() {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LoggerMiddleware(h.logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(time.Duration(2*h.config.LLM.TimeoutSeconds+10) * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", h.Health)

	r.Route("/api", func(r chi.Router) {
		r.Post("/analyze", h.Analyze)

		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", h.ListSessions)
			r.Post("/", h.CreateSession)
			r.Route("/{sessionID}", func(r chi.Router) {
				r.Get("/", h.GetSession)
				r.Delete("/", h.DeleteSession)
				r.Post("/turns", h.SubmitTurn)
			})
		})

		r.Get("/model", h.GetModelInfo)

		if h.config.WhatsApp.Enabled && h.whatsappAdapter != nil {
			h.setupWhatsAppAdminRoutes(r)
		}
	})

	h.router = r
}

// ServeHTTP implements the http.Handler interface
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

// Health reports liveness
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Analyze runs one turn. With a session_id it continues that session;
// otherwise the caller resends the conversation in chat_history.
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	form, err := h.parseTurnForm(w, r)
	if err != nil {
		h.respondWithDomainError(w, err)
		return
	}

	req := services.TurnRequest{
		SessionID: form.sessionID,
		Image:     form.image,
		Query:     form.query,
	}
	if form.sessionID == "" || form.hasHistory {
		history, err := domain.ParseHistory([]byte(form.history))
		if err != nil {
			h.respondWithDomainError(w, err)
			return
		}
		req.PriorHistory = history
	}

	h.submit(w, r, req)
}

// SubmitTurn runs one turn against the session in the path
func (h *Handler) SubmitTurn(w http.ResponseWriter, r *http.Request) {
	form, err := h.parseTurnForm(w, r)
	if err != nil {
		h.respondWithDomainError(w, err)
		return
	}

	h.submit(w, r, services.TurnRequest{
		SessionID: chi.URLParam(r, "sessionID"),
		Image:     form.image,
		Query:     form.query,
	})
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request, req services.TurnRequest) {
	result, err := h.service.SubmitTurn(r.Context(), req)
	if err != nil {
		h.respondWithDomainError(w, err)
		return
	}

	requestLogger(r, h.logger).Debug("Turn completed",
		"session_id", result.SessionID,
		"diagnosis", result.Diagnosis != nil,
		"reply", result.Reply != nil)
	h.respondWithJSON(w, http.StatusOK, result)
}

// requestLogger returns the logger LoggerMiddleware attached to the request
func requestLogger(r *http.Request, fallback logger.Logger) logger.Logger {
	if log, ok := r.Context().Value(loggerKey).(logger.Logger); ok {
		return log
	}
	return fallback
}

// ListSessions handles the list sessions request
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	h.respondWithJSON(w, http.StatusOK, map[string][]string{"sessions": h.service.ListSessions()})
}

// CreateSession handles the create session request
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	id := h.service.CreateSession()
	h.respondWithJSON(w, http.StatusCreated, map[string]string{"session_id": id})
}

// GetSession returns the stored history of a session
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	history, err := h.service.GetHistory(sessionID)
	if err != nil {
		h.respondWithDomainError(w, err)
		return
	}

	h.respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"session_id":   sessionID,
		"chat_history": history,
	})
}

// DeleteSession handles the delete session request
func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteSession(chi.URLParam(r, "sessionID")); err != nil {
		h.respondWithDomainError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetModelInfo handles the get model info request
func (h *Handler) GetModelInfo(w http.ResponseWriter, r *http.Request) {
	info, err := h.service.GetModelInfo(r.Context())
	if err != nil {
		h.respondWithError(w, http.StatusInternalServerError, "Failed to get model info", domain.KindInternal)
		return
	}

	h.respondWithJSON(w, http.StatusOK, info)
}

// respondWithDomainError maps an error onto its status code and stable kind
func (h *Handler) respondWithDomainError(w http.ResponseWriter, err error) {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		h.respondWithError(w, http.StatusRequestEntityTooLarge, err.Error(), kindUploadTooLarge)
		return
	}
	var reqErr *requestError
	if errors.As(err, &reqErr) {
		h.respondWithError(w, http.StatusBadRequest, err.Error(), kindBadRequest)
		return
	}

	kind := domain.ErrorKind(err)
	status := http.StatusInternalServerError
	switch kind {
	case domain.KindEmptyTurn, domain.KindInvalidHistory, domain.KindUnsupportedImage:
		status = http.StatusBadRequest
	case domain.KindSessionNotFound:
		status = http.StatusNotFound
	case domain.KindAnalysisFailed, domain.KindReplyFailed:
		status = http.StatusBadGateway
	}

	if status == http.StatusInternalServerError || status == http.StatusBadGateway {
		h.logger.Error("Request failed", "kind", kind, "error", err)
	}
	h.respondWithError(w, status, err.Error(), kind)
}

// respondWithError sends an error response
func (h *Handler) respondWithError(w http.ResponseWriter, code int, message, kind string) {
	h.respondWithJSON(w, code, map[string]string{"error": message, "kind": kind})
}

// respondWithJSON sends a JSON response
func (h *Handler) respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("Failed to marshal JSON response", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

// LoggerMiddleware is a middleware that logs HTTP requests
func LoggerMiddleware(log logger.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			reqLog := log.WithField("request_id", middleware.GetReqID(r.Context()))
			ctx := context.WithValue(r.Context(), loggerKey, reqLog)

			defer func() {
				reqLog.Info("HTTP request",
					"method", r.Method,
					"path", r.URL.Path,
					"status", ww.Status(),
					"bytes", ww.BytesWritten(),
					"duration", time.Since(start),
				)
			}()

			next.ServeHTTP(ww, r.WithContext(ctx))
		})
	}
}
