package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/OsoPanda1/isabella/pkg/model"
	"github.com/OsoPanda1/isabella/pkg/usecase/vault"
	"github.com/go-chi/chi/v5"
	"github.com/m-mizutani/goerr/v2"
)

type memoryResponse struct {
	ID              model.MemoryID   `json:"id"`
	Type            model.MemoryType `json:"type"`
	Content         map[string]any   `json:"content"`
	Importance      model.Importance `json:"importance"`
	EmotionContext  model.Emotion    `json:"emotion_context,omitempty"`
	RelatedEntities []string         `json:"related_entities"`
	ExpiresAt       *time.Time       `json:"expires_at,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
}

func toMemoryResponse(r *model.MemoryRecord) memoryResponse {
	return memoryResponse{
		ID:              r.ID,
		Type:            r.Type,
		Content:         r.Content,
		Importance:      r.Importance,
		EmotionContext:  r.EmotionContext,
		RelatedEntities: r.RelatedEntities,
		ExpiresAt:       r.ExpiresAt,
		CreatedAt:       r.CreatedAt,
	}
}

func toMemoryList(records []*model.MemoryRecord) map[string]any {
	out := make([]memoryResponse, 0, len(records))
	for _, r := range records {
		out = append(out, toMemoryResponse(r))
	}
	return map[string]any{"memories": out}
}

type rememberRequest struct {
	Type            model.MemoryType  `json:"type"`
	Content         map[string]any    `json:"content"`
	Importance      *model.Importance `json:"importance,omitempty"`
	EmotionContext  model.Emotion     `json:"emotion_context"`
	RelatedEntities []string          `json:"related_entities"`
	ExpiresAt       *time.Time        `json:"expires_at"`
}

func (s *Server) handleRemember(w http.ResponseWriter, r *http.Request) {
	var req rememberRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	record, err := s.service.Remember(r.Context(), userParam(r), req.Type, req.Content, &vault.RememberOptions{
		Importance:      req.Importance,
		EmotionContext:  req.EmotionContext,
		RelatedEntities: req.RelatedEntities,
		ExpiresAt:       req.ExpiresAt,
	})
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, toMemoryResponse(record))
}

func (s *Server) handleRecall(w http.ResponseWriter, r *http.Request) {
	memoryType := model.MemoryType(r.URL.Query().Get("type"))
	if memoryType != "" {
		if err := memoryType.Validate(); err != nil {
			respondServiceError(w, r, err)
			return
		}
	}
	limit, err := intQuery(r, "limit")
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, toMemoryList(s.service.Recall(r.Context(), userParam(r), memoryType, limit)))
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	tag := strings.TrimSpace(r.URL.Query().Get("tag"))
	if tag == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "tag is required")
		return
	}
	respondJSON(w, http.StatusOK, toMemoryList(s.service.Search(r.Context(), userParam(r), tag)))
}

func (s *Server) handleForget(w http.ResponseWriter, r *http.Request) {
	id := model.MemoryID(strings.TrimSpace(chi.URLParam(r, "id")))
	respondJSON(w, http.StatusOK, map[string]any{
		"deleted": s.service.Forget(r.Context(), userParam(r), id),
	})
}

func (s *Server) handleClearAll(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"cleared": s.service.ClearAll(r.Context(), userParam(r)),
	})
}

func (s *Server) handlePreferences(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"preferences": s.service.Preferences(r.Context(), userParam(r)),
	})
}

func (s *Server) handleEmotions(w http.ResponseWriter, r *http.Request) {
	limit, err := intQuery(r, "limit")
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"emotions": s.service.EmotionalContext(r.Context(), userParam(r), limit),
	})
}

type diaryRequest struct {
	Text            string            `json:"text"`
	EntryType       string            `json:"entry_type"`
	EmotionDetected model.Emotion     `json:"emotion_detected"`
	Importance      *model.Importance `json:"importance,omitempty"`
	Tags            []string          `json:"tags"`
}

func (s *Server) handleDiary(w http.ResponseWriter, r *http.Request) {
	var req diaryRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "text is required")
		return
	}

	stored := s.service.AddDiaryEntry(r.Context(), userParam(r), req.Text, req.EntryType, &vault.DiaryOptions{
		EmotionDetected: req.EmotionDetected,
		Importance:      req.Importance,
		Tags:            req.Tags,
	})
	status := http.StatusCreated
	if !stored {
		status = http.StatusOK
	}
	respondJSON(w, status, map[string]any{"stored": stored})
}

func intQuery(r *http.Request, key string) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, goerr.Wrap(model.ErrInvalidInput, "invalid integer query parameter", goerr.V(key, raw))
	}
	return n, nil
}
