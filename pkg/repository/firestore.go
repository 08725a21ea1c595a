package repository

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/OsoPanda1/isabella/pkg/model"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const memoryCollection = "memories"

// Firestore implements Repository using Cloud Firestore
type Firestore struct {
	client     *firestore.Client
	collection string
}

// memoryDoc is the Firestore document layout of a MemoryRecord
type memoryDoc struct {
	ID              string         `firestore:"id"`
	UserID          string         `firestore:"user_id"`
	Type            string         `firestore:"type"`
	Content         map[string]any `firestore:"content"`
	Importance      int            `firestore:"importance"`
	EmotionContext  string         `firestore:"emotion_context"`
	RelatedEntities []string       `firestore:"related_entities"`
	ExpiresAt       *time.Time     `firestore:"expires_at"`
	CreatedAt       time.Time      `firestore:"created_at"`
	UpdatedAt       time.Time      `firestore:"updated_at"`
}

func toMemoryDoc(m *model.MemoryRecord) *memoryDoc {
	return &memoryDoc{
		ID:              string(m.ID),
		UserID:          string(m.UserID),
		Type:            string(m.Type),
		Content:         m.Content,
		Importance:      int(m.Importance),
		EmotionContext:  string(m.EmotionContext),
		RelatedEntities: m.RelatedEntities,
		ExpiresAt:       m.ExpiresAt,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}

func (d *memoryDoc) toModel() *model.MemoryRecord {
	return &model.MemoryRecord{
		ID:              model.MemoryID(d.ID),
		UserID:          model.UserID(d.UserID),
		Type:            model.MemoryType(d.Type),
		Content:         d.Content,
		Importance:      model.Importance(d.Importance),
		EmotionContext:  model.Emotion(d.EmotionContext),
		RelatedEntities: d.RelatedEntities,
		ExpiresAt:       d.ExpiresAt,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
	}
}

// NewFirestore creates a new Firestore repository
func NewFirestore(ctx context.Context, projectID, databaseID string) (*Firestore, error) {
	if projectID == "" {
		return nil, goerr.New("firestore project ID is required")
	}
	if databaseID == "" {
		databaseID = firestore.DefaultDatabaseID
	}

	client, err := firestore.NewClientWithDatabase(ctx, projectID, databaseID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create firestore client",
			goerr.V("project_id", projectID),
			goerr.V("database_id", databaseID))
	}

	return &Firestore{
		client:     client,
		collection: memoryCollection,
	}, nil
}

func (r *Firestore) PutMemory(ctx context.Context, memory *model.MemoryRecord) error {
	if memory == nil {
		return goerr.New("memory is nil")
	}
	prepareRecord(memory)

	doc := r.client.Collection(r.collection).Doc(string(memory.ID))
	if _, err := doc.Set(ctx, toMemoryDoc(memory)); err != nil {
		return goerr.Wrap(err, "failed to put memory", goerr.V("memory_id", memory.ID))
	}
	return nil
}

func (r *Firestore) GetMemory(ctx context.Context, id model.MemoryID) (*model.MemoryRecord, error) {
	snap, err := r.client.Collection(r.collection).Doc(string(id)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(model.ErrMemoryNotFound, "memory not found", goerr.V("memory_id", id))
		}
		return nil, goerr.Wrap(err, "failed to get memory", goerr.V("memory_id", id))
	}

	var doc memoryDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, goerr.Wrap(err, "failed to decode memory", goerr.V("memory_id", id))
	}
	return doc.toModel(), nil
}

func (r *Firestore) ListMemories(ctx context.Context, query *MemoryQuery) ([]*model.MemoryRecord, error) {
	if query == nil || query.UserID == "" {
		return nil, goerr.New("user ID is required for listing memories")
	}

	q := r.client.Collection(r.collection).Where("user_id", "==", string(query.UserID))
	if query.Type != "" {
		q = q.Where("type", "==", string(query.Type))
	}
	if query.Entity != "" {
		q = q.Where("related_entities", "array-contains", query.Entity)
	}
	q = q.OrderBy("importance", firestore.Desc).OrderBy("created_at", firestore.Desc)

	// Firestore cannot express "expires_at is null or in the future", so
	// expired documents are skipped here and the limit is applied after.
	if query.Limit > 0 && query.ActiveAt.IsZero() {
		q = q.Limit(query.Limit)
	}

	iter := q.Documents(ctx)
	defer iter.Stop()

	result := make([]*model.MemoryRecord, 0)
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate memories", goerr.V("user_id", query.UserID))
		}

		var doc memoryDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, goerr.Wrap(err, "failed to decode memory", goerr.V("doc_id", snap.Ref.ID))
		}
		record := doc.toModel()
		if !query.Match(record) {
			continue
		}
		result = append(result, record)
		if query.Limit > 0 && len(result) >= query.Limit {
			break
		}
	}

	return result, nil
}

func (r *Firestore) DeleteMemory(ctx context.Context, userID model.UserID, id model.MemoryID) (bool, error) {
	ref := r.client.Collection(r.collection).Doc(string(id))

	deleted := false
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		deleted = false
		snap, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return nil
			}
			return err
		}

		var doc memoryDoc
		if err := snap.DataTo(&doc); err != nil {
			return err
		}
		if doc.UserID != string(userID) {
			return nil
		}

		if err := tx.Delete(ref); err != nil {
			return err
		}
		deleted = true
		return nil
	})
	if err != nil {
		return false, goerr.Wrap(err, "failed to delete memory",
			goerr.V("memory_id", id),
			goerr.V("user_id", userID))
	}

	return deleted, nil
}

func (r *Firestore) DeleteMemoriesByUser(ctx context.Context, userID model.UserID) (int, error) {
	iter := r.client.Collection(r.collection).Where("user_id", "==", string(userID)).Documents(ctx)
	defer iter.Stop()

	bw := r.client.BulkWriter(ctx)
	count := 0
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			bw.End()
			return count, goerr.Wrap(err, "failed to iterate memories", goerr.V("user_id", userID))
		}

		if _, err := bw.Delete(snap.Ref); err != nil {
			bw.End()
			return count, goerr.Wrap(err, "failed to enqueue memory deletion", goerr.V("doc_id", snap.Ref.ID))
		}
		count++
	}
	bw.End()

	return count, nil
}

func (r *Firestore) Close() error {
	if err := r.client.Close(); err != nil {
		return goerr.Wrap(err, "failed to close firestore client")
	}
	return nil
}
