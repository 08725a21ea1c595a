package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/OsoPanda1/isabella/pkg/model"
	"github.com/OsoPanda1/isabella/pkg/usecase/dialogue"
)

type startSessionRequest struct {
	UserID         model.UserID         `json:"user_id"`
	ConversationID model.ConversationID `json:"conversation_id"`
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	info, err := s.service.StartSession(r.Context(), req.UserID, req.ConversationID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, info)
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	info, err := s.service.EndSession(r.Context(), userParam(r), conversationParam(r))
	if err != nil && info == nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"session":  info,
		"archived": err == nil,
	})
}

type processMessageRequest struct {
	Message        string `json:"message"`
	ContextSpaceID string `json:"context_space_id"`
}

func (s *Server) handleProcessMessage(w http.ResponseWriter, r *http.Request) {
	var req processMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	result, err := s.service.ProcessMessage(r.Context(), userParam(r), &model.DialogueInput{
		Message:        req.Message,
		ConversationID: conversationParam(r),
		ContextSpaceID: req.ContextSpaceID,
	})
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	history, err := s.service.History(userParam(r), conversationParam(r))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"turns": history})
}

func (s *Server) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	if err := s.service.ClearHistory(userParam(r), conversationParam(r)); err != nil {
		respondServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type updateConfigRequest struct {
	Model        *string  `json:"model"`
	Temperature  *float64 `json:"temperature"`
	MaxTokens    *int64   `json:"max_tokens"`
	SystemPrompt *string  `json:"system_prompt"`
	TimeoutMS    *int64   `json:"timeout_ms"`
}

type configResponse struct {
	Model              string  `json:"model"`
	Temperature        float64 `json:"temperature"`
	MaxTokens          int64   `json:"max_tokens"`
	SystemPrompt       string  `json:"system_prompt"`
	TimeoutMS          int64   `json:"timeout_ms"`
	TranscriptCapacity int     `json:"transcript_capacity"`
}

func (s *Server) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	var req updateConfigRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	patch := dialogue.ConfigPatch{
		Model:        req.Model,
		Temperature:  req.Temperature,
		MaxTokens:    req.MaxTokens,
		SystemPrompt: req.SystemPrompt,
	}
	if req.TimeoutMS != nil {
		timeout := time.Duration(*req.TimeoutMS) * time.Millisecond
		patch.Timeout = &timeout
	}

	cfg, err := s.service.UpdateConfig(userParam(r), conversationParam(r), patch)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, configResponse{
		Model:              cfg.Model,
		Temperature:        cfg.Temperature,
		MaxTokens:          cfg.MaxTokens,
		SystemPrompt:       cfg.SystemPrompt,
		TimeoutMS:          cfg.Timeout.Milliseconds(),
		TranscriptCapacity: cfg.TranscriptCapacity,
	})
}

func (s *Server) handleGetTranscript(w http.ResponseWriter, r *http.Request) {
	transcript, err := s.service.ArchivedTranscript(r.Context(), userParam(r), conversationParam(r))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, transcript)
}
