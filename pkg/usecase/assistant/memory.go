package assistant

import (
	"context"

	"github.com/OsoPanda1/isabella/pkg/model"
	"github.com/OsoPanda1/isabella/pkg/usecase/vault"
	"github.com/OsoPanda1/isabella/pkg/utils/logging"
)

// Vault returns a vault bound to userID that shares the service cache
func (s *Service) Vault(userID model.UserID) (*vault.Vault, error) {
	opts := []vault.Option{vault.WithClock(s.now)}
	if s.cache != nil {
		opts = append(opts, vault.WithCache(s.cache))
	}
	return vault.New(s.repo, userID, opts...)
}

// The methods below apply the fallback policy of the service: a store
// failure is logged and counted, and the caller gets an empty result. Only
// Remember reports errors so the caller can decide whether to retry.

// Remember stores a memory for userID
func (s *Service) Remember(ctx context.Context, userID model.UserID, memoryType model.MemoryType, content map[string]any, opts *vault.RememberOptions) (*model.MemoryRecord, error) {
	v, err := s.Vault(userID)
	if err != nil {
		return nil, err
	}
	record, err := v.Remember(ctx, memoryType, content, opts)
	s.metrics.ObserveVault("remember", err)
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (s *Service) Recall(ctx context.Context, userID model.UserID, memoryType model.MemoryType, limit int) []*model.MemoryRecord {
	v, ok := s.vaultOrLog(ctx, userID, "recall")
	if !ok {
		return []*model.MemoryRecord{}
	}
	records, err := v.Recall(ctx, memoryType, limit)
	if s.degraded(ctx, "recall", userID, err) {
		return []*model.MemoryRecord{}
	}
	return records
}

func (s *Service) Search(ctx context.Context, userID model.UserID, tag string) []*model.MemoryRecord {
	v, ok := s.vaultOrLog(ctx, userID, "search")
	if !ok {
		return []*model.MemoryRecord{}
	}
	records, err := v.Search(ctx, tag)
	if s.degraded(ctx, "search", userID, err) {
		return []*model.MemoryRecord{}
	}
	return records
}

func (s *Service) Forget(ctx context.Context, userID model.UserID, id model.MemoryID) bool {
	v, ok := s.vaultOrLog(ctx, userID, "forget")
	if !ok {
		return false
	}
	deleted, err := v.Forget(ctx, id)
	if s.degraded(ctx, "forget", userID, err) {
		return false
	}
	return deleted
}

func (s *Service) Preferences(ctx context.Context, userID model.UserID) map[string]any {
	v, ok := s.vaultOrLog(ctx, userID, "preferences")
	if !ok {
		return map[string]any{}
	}
	prefs, err := v.Preferences(ctx)
	if s.degraded(ctx, "preferences", userID, err) {
		return map[string]any{}
	}
	return prefs
}

func (s *Service) EmotionalContext(ctx context.Context, userID model.UserID, limit int) []model.Emotion {
	v, ok := s.vaultOrLog(ctx, userID, "emotional_context")
	if !ok {
		return []model.Emotion{}
	}
	emotions, err := v.EmotionalContext(ctx, limit)
	if s.degraded(ctx, "emotional_context", userID, err) {
		return []model.Emotion{}
	}
	return emotions
}

// AddDiaryEntry reports whether the entry was stored
func (s *Service) AddDiaryEntry(ctx context.Context, userID model.UserID, text, entryType string, opts *vault.DiaryOptions) bool {
	v, ok := s.vaultOrLog(ctx, userID, "diary")
	if !ok {
		return false
	}
	_, err := v.AddDiaryEntry(ctx, text, entryType, opts)
	return !s.degraded(ctx, "diary", userID, err)
}

// ClearAll reports whether every memory of userID was deleted
func (s *Service) ClearAll(ctx context.Context, userID model.UserID) bool {
	v, ok := s.vaultOrLog(ctx, userID, "clear_all")
	if !ok {
		return false
	}
	n, err := v.ClearAll(ctx)
	if s.degraded(ctx, "clear_all", userID, err) {
		return false
	}
	logging.From(ctx).Info("memories cleared", "user_id", userID, "count", n)
	return true
}

func (s *Service) vaultOrLog(ctx context.Context, userID model.UserID, operation string) (*vault.Vault, bool) {
	v, err := s.Vault(userID)
	if err != nil {
		s.degraded(ctx, operation, userID, err)
		return nil, false
	}
	return v, true
}

// degraded logs and counts err and reports whether the caller must fall back
func (s *Service) degraded(ctx context.Context, operation string, userID model.UserID, err error) bool {
	s.metrics.ObserveVault(operation, err)
	if err == nil {
		return false
	}
	logging.From(ctx).Warn("memory vault degraded", "operation", operation, "user_id", userID, "error", err)
	return true
}
