package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"path"
	"time"

	"github.com/OsoPanda1/isabella/pkg/adapter"
	"github.com/OsoPanda1/isabella/pkg/model"
	"github.com/m-mizutani/goerr/v2"
)

// Transcript is the archived form of one ended session
type Transcript struct {
	UserID         model.UserID             `json:"user_id"`
	ConversationID model.ConversationID     `json:"conversation_id"`
	StartedAt      time.Time                `json:"started_at"`
	EndedAt        time.Time                `json:"ended_at"`
	Turns          []model.ConversationTurn `json:"turns"`
}

func transcriptKey(userID model.UserID, conversationID model.ConversationID) string {
	return path.Join("transcripts", string(userID), string(conversationID)+".json")
}

func (s *Service) archiveSession(ctx context.Context, sess *session) error {
	if s.archive == nil {
		return nil
	}

	turns := sess.engine.History()
	if len(turns) == 0 {
		return nil
	}

	record := &Transcript{
		UserID:         sess.key.userID,
		ConversationID: sess.key.conversationID,
		StartedAt:      sess.startedAt.UTC(),
		EndedAt:        s.now().UTC(),
		Turns:          turns,
	}

	key := transcriptKey(sess.key.userID, sess.key.conversationID)
	w, err := s.archive.Put(ctx, key)
	if err != nil {
		return goerr.Wrap(err, "failed to open transcript writer", goerr.V("key", key))
	}
	if err := json.NewEncoder(w).Encode(record); err != nil {
		_ = w.Close()
		return goerr.Wrap(err, "failed to encode transcript", goerr.V("key", key))
	}
	if err := w.Close(); err != nil {
		return goerr.Wrap(err, "failed to write transcript", goerr.V("key", key))
	}
	return nil
}

// ArchivedTranscript loads the transcript of an ended session. It returns
// model.ErrSessionNotFound when no archive is configured or nothing was
// archived for the key.
func (s *Service) ArchivedTranscript(ctx context.Context, userID model.UserID, conversationID model.ConversationID) (*Transcript, error) {
	if s.archive == nil {
		return nil, goerr.Wrap(model.ErrSessionNotFound, "transcript archive is not configured")
	}

	key := transcriptKey(userID, conversationID)
	r, err := s.archive.Get(ctx, key)
	if err != nil {
		if errors.Is(err, adapter.ErrObjectNotFound) {
			return nil, goerr.Wrap(model.ErrSessionNotFound, "transcript not found", goerr.V("key", key))
		}
		return nil, goerr.Wrap(err, "failed to open transcript", goerr.V("key", key))
	}
	defer r.Close()

	var transcript Transcript
	if err := json.NewDecoder(r).Decode(&transcript); err != nil {
		return nil, goerr.Wrap(err, "failed to decode transcript", goerr.V("key", key))
	}
	return &transcript, nil
}
