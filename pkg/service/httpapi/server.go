package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/OsoPanda1/isabella/pkg/model"
	"github.com/OsoPanda1/isabella/pkg/usecase/assistant"
	"github.com/OsoPanda1/isabella/pkg/utils/logging"
	"github.com/OsoPanda1/isabella/pkg/utils/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/m-mizutani/goerr/v2"
)

// Server exposes the assistant service as a JSON HTTP API
type Server struct {
	service *assistant.Service
	metrics *metrics.Metrics
}

// New creates a new Server. metrics may be nil, which disables /metrics.
func New(service *assistant.Service, m *metrics.Metrics) *Server {
	return &Server{
		service: service,
		metrics: m,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Get("/healthz", s.handleHealth)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}

	r.Route("/v1", func(r chi.Router) {
		r.Post("/sessions", s.handleStartSession)
		r.Route("/sessions/{user}/{conv}", func(r chi.Router) {
			r.Delete("/", s.handleEndSession)
			r.Post("/messages", s.handleProcessMessage)
			r.Get("/history", s.handleGetHistory)
			r.Delete("/history", s.handleClearHistory)
			r.Patch("/config", s.handleUpdateConfig)
			r.Get("/transcript", s.handleGetTranscript)
		})

		r.Route("/users/{user}", func(r chi.Router) {
			r.Post("/memories", s.handleRemember)
			r.Get("/memories", s.handleRecall)
			r.Delete("/memories", s.handleClearAll)
			r.Get("/memories/search", s.handleSearch)
			r.Delete("/memories/{id}", s.handleForget)
			r.Get("/preferences", s.handlePreferences)
			r.Get("/emotions", s.handleEmotions)
			r.Post("/diary", s.handleDiary)
		})
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"active_sessions": s.service.ActiveSessions(),
	})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		logger := logging.From(r.Context()).With(
			"request_id", middleware.GetReqID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
		)
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(logging.With(r.Context(), logger)))
		logger.Debug("request served", "status", ww.Status(), "duration", time.Since(start))
	})
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = goerr.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		// io.ErrUnexpectedEOF means a truncated body, not an empty one
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return goerr.Wrap(err, "failed to decode request body")
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

// respondServiceError maps domain errors to status codes
func respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, model.ErrInvalidInput),
		errors.Is(err, model.ErrInvalidImportance),
		errors.Is(err, model.ErrInvalidMemoryType),
		errors.Is(err, model.ErrInvalidEmotion):
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, model.ErrSessionNotFound):
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
	case errors.Is(err, model.ErrMemoryNotFound):
		respondError(w, http.StatusNotFound, "memory_not_found", err.Error())
	case errors.Is(err, model.ErrStoreUnavailable):
		logging.From(r.Context()).Error("store unavailable", "error", err)
		respondError(w, http.StatusServiceUnavailable, "store_unavailable", "memory store is unavailable")
	default:
		logging.From(r.Context()).Error("request failed", "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "internal error")
	}
}

func userParam(r *http.Request) model.UserID {
	return model.UserID(strings.TrimSpace(chi.URLParam(r, "user")))
}

func conversationParam(r *http.Request) model.ConversationID {
	return model.ConversationID(strings.TrimSpace(chi.URLParam(r, "conv")))
}
