package model_test

import (
	"errors"
	"testing"
	"time"

	"github.com/OsoPanda1/isabella/pkg/model"
	"github.com/m-mizutani/gt"
)

func TestImportanceValidate(t *testing.T) {
	for _, v := range []model.Importance{1, 3, 5} {
		gt.NoError(t, v.Validate())
	}
	for _, v := range []model.Importance{0, 6, -1} {
		err := v.Validate()
		gt.Error(t, err)
		gt.True(t, errors.Is(err, model.ErrInvalidImportance))
	}
}

func TestMemoryTypeValidate(t *testing.T) {
	gt.NoError(t, model.MemoryTypeRelationship.Validate())
	err := model.MemoryType("secret").Validate()
	gt.True(t, errors.Is(err, model.ErrInvalidMemoryType))
}

func TestEmotionValidate(t *testing.T) {
	for _, e := range model.Emotions {
		gt.NoError(t, e.Validate())
	}
	gt.True(t, errors.Is(model.Emotion("angry").Validate(), model.ErrInvalidEmotion))
}

func TestMemoryRecordExpired(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Second)
	future := now.Add(time.Second)

	gt.False(t, (&model.MemoryRecord{}).Expired(now))
	gt.True(t, (&model.MemoryRecord{ExpiresAt: &past}).Expired(now))
	gt.False(t, (&model.MemoryRecord{ExpiresAt: &future}).Expired(now))
	gt.False(t, (&model.MemoryRecord{ExpiresAt: &now}).Expired(now))
}

func TestSortMemories(t *testing.T) {
	t1 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	a := &model.MemoryRecord{ID: "A", Importance: 3, CreatedAt: t1}
	b := &model.MemoryRecord{ID: "B", Importance: 5, CreatedAt: t1.Add(time.Minute)}
	c := &model.MemoryRecord{ID: "C", Importance: 3, CreatedAt: t1.Add(2 * time.Minute)}

	records := []*model.MemoryRecord{a, b, c}
	model.SortMemories(records)

	gt.Equal(t, records[0].ID, model.MemoryID("B"))
	gt.Equal(t, records[1].ID, model.MemoryID("C"))
	gt.Equal(t, records[2].ID, model.MemoryID("A"))
}

func TestMemoryRecordClone(t *testing.T) {
	exp := time.Now()
	r := &model.MemoryRecord{
		Content:         map[string]any{"k": "v"},
		RelatedEntities: []string{"x"},
		ExpiresAt:       &exp,
	}
	c := r.Clone()
	c.Content["k"] = "changed"
	c.RelatedEntities[0] = "y"

	gt.V(t, r.Content["k"]).Equal("v")
	gt.Equal(t, r.RelatedEntities[0], "x")
	gt.True(t, c.HasEntity("y"))
	gt.False(t, c.HasEntity("x"))
}
