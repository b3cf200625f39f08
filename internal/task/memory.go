package task

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store. Every method holds one lock, so a
// read never observes a half-applied update.
type MemoryStore struct {
	mu    sync.Mutex
	tasks map[string]*Task
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tasks: make(map[string]*Task), now: time.Now}
}

// WithClock replaces the time source.
func (m *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	m.now = now
	return m
}

func clone(t *Task) *Task {
	c := *t
	if t.Result != nil {
		c.Result = append([]byte(nil), t.Result...)
	}
	return &c
}

func (m *MemoryStore) Create(_ context.Context, userID int, typ Type) (*Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	t := &Task{
		ID:        uuid.NewString(),
		UserID:    userID,
		Type:      typ,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.tasks[t.ID] = t
	return clone(t), nil
}

func (m *MemoryStore) Update(_ context.Context, id string, status Status, result any, errMsg string) (*Task, error) {
	payload, err := marshalResult(result)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	if err := checkTransition(t.Status, status); err != nil {
		return nil, err
	}
	t.Status = status
	t.Result = payload
	t.Error = ""
	if status == StatusFailed {
		t.Error = errMsg
	}
	t.UpdatedAt = m.now()
	return clone(t), nil
}

func (m *MemoryStore) Get(_ context.Context, id string, userID int, typ Type) (*Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok || t.UserID != userID || t.Type != typ {
		return nil, ErrNotFound
	}
	return clone(t), nil
}

func (m *MemoryStore) SetTotal(_ context.Context, id string, total int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok || t.Status != StatusStarted {
		return ErrNotFound
	}
	t.TotalCount = total
	t.ProcessedCount = 0
	t.UpdatedAt = m.now()
	return nil
}

func (m *MemoryStore) IncrementProcessed(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok || t.Status != StatusStarted || t.ProcessedCount >= t.TotalCount {
		return nil
	}
	t.ProcessedCount++
	t.UpdatedAt = m.now()
	return nil
}

func (m *MemoryStore) LastFinished(_ context.Context, userID int, typ Type) (*time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var last *time.Time
	for _, t := range m.tasks {
		if t.UserID != userID || t.Type != typ || t.Status != StatusFinished {
			continue
		}
		if last == nil || t.CreatedAt.After(*last) {
			at := t.CreatedAt
			last = &at
		}
	}
	return last, nil
}

func (m *MemoryStore) FailStale(_ context.Context, olderThan time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for id, t := range m.tasks {
		if t.Status != StatusStarted || !t.UpdatedAt.Before(olderThan) {
			continue
		}
		t.Status = StatusFailed
		t.Error = staleError(t.UpdatedAt)
		t.UpdatedAt = m.now()
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
