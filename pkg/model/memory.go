package model

import (
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
)

type MemoryID string

// NewMemoryID generates a new unique MemoryID
func NewMemoryID() MemoryID {
	return MemoryID(uuid.New().String())
}

type MemoryType string

const (
	MemoryTypePreference   MemoryType = "preference"
	MemoryTypeFact         MemoryType = "fact"
	MemoryTypeEmotion      MemoryType = "emotion"
	MemoryTypeGoal         MemoryType = "goal"
	MemoryTypeRelationship MemoryType = "relationship"
)

// Validate checks if the memory type is valid
func (t MemoryType) Validate() error {
	switch t {
	case MemoryTypePreference, MemoryTypeFact, MemoryTypeEmotion, MemoryTypeGoal, MemoryTypeRelationship:
		return nil
	default:
		return goerr.Wrap(ErrInvalidMemoryType, "unknown memory type", goerr.V("type", t))
	}
}

// Importance ranks a memory for recall. 5 is must-recall, 1 is trivial.
type Importance int

const (
	ImportanceMin     Importance = 1
	ImportanceDefault Importance = 3
	ImportanceMax     Importance = 5
)

// Validate rejects values outside 1..5. Out of range values are never clamped.
func (i Importance) Validate() error {
	if i < ImportanceMin || i > ImportanceMax {
		return goerr.Wrap(ErrInvalidImportance, "importance out of range", goerr.V("importance", int(i)))
	}
	return nil
}

// MemoryRecord is a durable fact kept about exactly one user
type MemoryRecord struct {
	ID              MemoryID
	UserID          UserID
	Type            MemoryType
	Content         map[string]any
	Importance      Importance
	EmotionContext  Emotion
	RelatedEntities []string
	ExpiresAt       *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Expired reports whether the record is past its soft expiry at now
func (r *MemoryRecord) Expired(now time.Time) bool {
	return r.ExpiresAt != nil && now.After(*r.ExpiresAt)
}

// HasEntity reports whether tag is one of the related entities (exact match)
func (r *MemoryRecord) HasEntity(tag string) bool {
	return slices.Contains(r.RelatedEntities, tag)
}

// Clone returns a copy that shares no mutable state with r. Content is copied
// one level deep.
func (r *MemoryRecord) Clone() *MemoryRecord {
	if r == nil {
		return nil
	}
	c := *r
	if r.Content != nil {
		c.Content = maps.Clone(r.Content)
	}
	if r.RelatedEntities != nil {
		c.RelatedEntities = slices.Clone(r.RelatedEntities)
	}
	if r.ExpiresAt != nil {
		t := *r.ExpiresAt
		c.ExpiresAt = &t
	}
	return &c
}

// Less reports whether a ranks before b in recall order: importance
// descending, then creation time descending.
func Less(a, b *MemoryRecord) bool {
	if a.Importance != b.Importance {
		return a.Importance > b.Importance
	}
	return a.CreatedAt.After(b.CreatedAt)
}

// SortMemories sorts records in recall order
func SortMemories(records []*MemoryRecord) {
	slices.SortStableFunc(records, func(a, b *MemoryRecord) int {
		switch {
		case Less(a, b):
			return -1
		case Less(b, a):
			return 1
		default:
			return 0
		}
	})
}
