package repository

import (
	"context"
	"time"

	"github.com/OsoPanda1/isabella/pkg/model"
)

// Repository defines the interface for memory record persistence. Every
// backend returns ListMemories results ordered by importance descending, then
// creation time descending.
type Repository interface {
	// PutMemory inserts a memory record. ID, CreatedAt and UpdatedAt are
	// assigned when empty.
	PutMemory(ctx context.Context, memory *model.MemoryRecord) error

	// GetMemory retrieves a memory record by ID. It returns an error wrapping
	// model.ErrMemoryNotFound when no record exists.
	GetMemory(ctx context.Context, id model.MemoryID) (*model.MemoryRecord, error)

	// ListMemories retrieves memory records matching the query
	ListMemories(ctx context.Context, query *MemoryQuery) ([]*model.MemoryRecord, error)

	// DeleteMemory removes the record only if it is owned by userID. It
	// returns false when nothing matched.
	DeleteMemory(ctx context.Context, userID model.UserID, id model.MemoryID) (bool, error)

	// DeleteMemoriesByUser removes every record owned by userID and returns
	// how many were removed.
	DeleteMemoriesByUser(ctx context.Context, userID model.UserID) (int, error)

	// Close releases resources
	Close() error
}

// MemoryQuery holds filters for ListMemories
type MemoryQuery struct {
	UserID model.UserID     // required
	Type   model.MemoryType // empty means all types
	Entity string           // exact match against RelatedEntities, empty means no filter

	// ActiveAt excludes records whose ExpiresAt is before this instant. Zero
	// disables the expiry filter.
	ActiveAt time.Time

	// Limit caps the number of records, 0 means unlimited
	Limit int
}

// Match reports whether record satisfies every filter of q except Limit
func (q *MemoryQuery) Match(record *model.MemoryRecord) bool {
	if record.UserID != q.UserID {
		return false
	}
	if q.Type != "" && record.Type != q.Type {
		return false
	}
	if q.Entity != "" && !record.HasEntity(q.Entity) {
		return false
	}
	if !q.ActiveAt.IsZero() && record.Expired(q.ActiveAt) {
		return false
	}
	return true
}

// prepareRecord fills store-assigned fields before insertion
func prepareRecord(memory *model.MemoryRecord) {
	if memory.ID == "" {
		memory.ID = model.NewMemoryID()
	}
	now := time.Now().UTC()
	if memory.CreatedAt.IsZero() {
		memory.CreatedAt = now
	}
	memory.UpdatedAt = now
}
