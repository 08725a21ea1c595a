package assistant

import (
	"context"
	"time"

	"github.com/OsoPanda1/isabella/pkg/model"
	"github.com/OsoPanda1/isabella/pkg/usecase/dialogue"
	"github.com/OsoPanda1/isabella/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
)

type sessionKey struct {
	userID         model.UserID
	conversationID model.ConversationID
}

type session struct {
	key          sessionKey
	engine       *dialogue.Engine
	startedAt    time.Time
	lastActivity time.Time
}

// SessionInfo describes a live or ended session
type SessionInfo struct {
	UserID         model.UserID         `json:"user_id"`
	ConversationID model.ConversationID `json:"conversation_id"`
	StartedAt      time.Time            `json:"started_at"`
	LastActivityAt time.Time            `json:"last_activity_at"`
	Turns          int                  `json:"turns"`
}

func (x *session) info() *SessionInfo {
	return &SessionInfo{
		UserID:         x.key.userID,
		ConversationID: x.key.conversationID,
		StartedAt:      x.startedAt,
		LastActivityAt: x.lastActivity,
		Turns:          len(x.engine.History()),
	}
}

// StartSession returns the session for (userID, conversationID), creating
// it when needed. An empty conversationID starts a new conversation.
func (s *Service) StartSession(ctx context.Context, userID model.UserID, conversationID model.ConversationID) (*SessionInfo, error) {
	if userID == "" {
		return nil, goerr.Wrap(model.ErrInvalidInput, "user ID is required")
	}
	if conversationID == "" {
		conversationID = model.NewConversationID()
	}

	sess := s.acquire(ctx, userID, conversationID)

	s.mu.Lock()
	defer s.mu.Unlock()
	return sess.info(), nil
}

// EndSession removes the session and archives its transcript when an
// archive is configured. Ending an unknown session returns
// model.ErrSessionNotFound.
func (s *Service) EndSession(ctx context.Context, userID model.UserID, conversationID model.ConversationID) (*SessionInfo, error) {
	key := sessionKey{userID: userID, conversationID: conversationID}

	s.mu.Lock()
	sess, ok := s.sessions[key]
	if ok {
		delete(s.sessions, key)
	}
	active := len(s.sessions)
	s.mu.Unlock()

	if !ok {
		return nil, goerr.Wrap(model.ErrSessionNotFound, "session not found",
			goerr.V("user_id", userID), goerr.V("conversation_id", conversationID))
	}
	s.metrics.SetActiveSessions(active)
	s.metrics.SessionEvent("end")

	info := sess.info()
	if err := s.archiveSession(ctx, sess); err != nil {
		return info, err
	}
	return info, nil
}

// ActiveSessions returns the number of live sessions
func (s *Service) ActiveSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// acquire returns the live session for the key or creates one, evicting the
// least recently used session when the registry is full
func (s *Service) acquire(ctx context.Context, userID model.UserID, conversationID model.ConversationID) *session {
	key := sessionKey{userID: userID, conversationID: conversationID}
	now := s.now()

	s.mu.Lock()
	if sess, ok := s.sessions[key]; ok {
		sess.lastActivity = now
		s.mu.Unlock()
		return sess
	}

	var evicted *session
	if len(s.sessions) >= s.maxSessions {
		for _, candidate := range s.sessions {
			if evicted == nil || candidate.lastActivity.Before(evicted.lastActivity) {
				evicted = candidate
			}
		}
		if evicted != nil {
			delete(s.sessions, evicted.key)
		}
	}

	sess := &session{
		key:          key,
		engine:       s.newEngine(key),
		startedAt:    now,
		lastActivity: now,
	}
	s.sessions[key] = sess
	active := len(s.sessions)
	s.mu.Unlock()

	s.metrics.SessionEvent("start")
	s.metrics.SetActiveSessions(active)

	if evicted != nil {
		s.metrics.SessionEvent("evict")
		logging.From(ctx).Info("session evicted by capacity",
			"user_id", evicted.key.userID, "conversation_id", evicted.key.conversationID)
		if err := s.archiveSession(ctx, evicted); err != nil {
			logging.From(ctx).Error("failed to archive evicted session", "error", err)
		}
	}
	return sess
}

func (s *Service) lookup(userID model.UserID, conversationID model.ConversationID) (*session, error) {
	key := sessionKey{userID: userID, conversationID: conversationID}

	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[key]
	if !ok {
		return nil, goerr.Wrap(model.ErrSessionNotFound, "session not found",
			goerr.V("user_id", userID), goerr.V("conversation_id", conversationID))
	}
	sess.lastActivity = s.now()
	return sess, nil
}

// StartJanitor evicts idle sessions every interval until ctx is done
func (s *Service) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.ExpireIdle(ctx)
			}
		}
	}()
}

// ExpireIdle evicts every session untouched for longer than the idle TTL and
// returns how many were evicted
func (s *Service) ExpireIdle(ctx context.Context) int {
	now := s.now()
	var expired []*session

	s.mu.Lock()
	for key, sess := range s.sessions {
		if now.Sub(sess.lastActivity) < s.idleTTL {
			continue
		}
		expired = append(expired, sess)
		delete(s.sessions, key)
	}
	active := len(s.sessions)
	s.mu.Unlock()

	if len(expired) == 0 {
		return 0
	}
	s.metrics.SetActiveSessions(active)

	for _, sess := range expired {
		s.metrics.SessionEvent("expire")
		if err := s.archiveSession(ctx, sess); err != nil {
			logging.From(ctx).Error("failed to archive expired session", "error", err,
				"user_id", sess.key.userID, "conversation_id", sess.key.conversationID)
		}
	}
	logging.From(ctx).Info("idle sessions expired", "count", len(expired))
	return len(expired)
}
