package repository

import (
	"context"
	"sync"

	"github.com/OsoPanda1/isabella/pkg/model"
	"github.com/m-mizutani/goerr/v2"
)

// Memory is an in-process Repository for local use and tests
type Memory struct {
	mu      sync.RWMutex
	records map[model.MemoryID]*model.MemoryRecord
}

// NewMemory creates an empty in-process repository
func NewMemory() *Memory {
	return &Memory{
		records: make(map[model.MemoryID]*model.MemoryRecord),
	}
}

func (m *Memory) PutMemory(ctx context.Context, memory *model.MemoryRecord) error {
	if memory == nil {
		return goerr.New("memory is nil")
	}
	prepareRecord(memory)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[memory.ID] = memory.Clone()
	return nil
}

func (m *Memory) GetMemory(ctx context.Context, id model.MemoryID) (*model.MemoryRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	record, ok := m.records[id]
	if !ok {
		return nil, goerr.Wrap(model.ErrMemoryNotFound, "memory not found", goerr.V("memory_id", id))
	}
	return record.Clone(), nil
}

func (m *Memory) ListMemories(ctx context.Context, query *MemoryQuery) ([]*model.MemoryRecord, error) {
	if query == nil || query.UserID == "" {
		return nil, goerr.New("user ID is required for listing memories")
	}

	m.mu.RLock()
	result := make([]*model.MemoryRecord, 0)
	for _, record := range m.records {
		if query.Match(record) {
			result = append(result, record.Clone())
		}
	}
	m.mu.RUnlock()

	model.SortMemories(result)
	if query.Limit > 0 && len(result) > query.Limit {
		result = result[:query.Limit]
	}
	return result, nil
}

func (m *Memory) DeleteMemory(ctx context.Context, userID model.UserID, id model.MemoryID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	record, ok := m.records[id]
	if !ok || record.UserID != userID {
		return false, nil
	}
	delete(m.records, id)
	return true, nil
}

func (m *Memory) DeleteMemoriesByUser(ctx context.Context, userID model.UserID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for id, record := range m.records {
		if record.UserID == userID {
			delete(m.records, id)
			count++
		}
	}
	return count, nil
}

func (m *Memory) Close() error { return nil }
