package todo

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-process Store ordered by id.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]Todo
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: map[string]Todo{}}
}

func (s *MemoryStore) Put(_ context.Context, t Todo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[t.ID] = cloneTodo(t)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (Todo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.items[id]
	if !ok {
		return Todo{}, ErrNotFound
	}
	return cloneTodo(t), nil
}

// List returns todos with ids greater than the cursor, in id order.
func (s *MemoryStore) List(_ context.Context, q ListQuery) (Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.items))
	for id, t := range s.items {
		if q.Status != "" && t.Status != q.Status {
			continue
		}
		if q.Cursor != "" && id <= q.Cursor {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)

	limit := normalizeLimit(q.Limit)
	page := Page{Items: make([]Todo, 0, min(limit, len(ids)))}
	for i, id := range ids {
		if i == limit {
			page.NextCursor = ids[i-1]
			break
		}
		page.Items = append(page.Items, cloneTodo(s.items[id]))
	}
	return page, nil
}

func (s *MemoryStore) Update(_ context.Context, id string, p Patch, updatedAt string) (Todo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.items[id]
	if !ok {
		return Todo{}, ErrNotFound
	}
	t = p.Apply(t, updatedAt)
	s.items[id] = t
	return cloneTodo(t), nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, id)
	return nil
}

func cloneTodo(t Todo) Todo {
	if t.Description != nil {
		d := *t.Description
		t.Description = &d
	}
	return t
}
