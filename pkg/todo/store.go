package todo

import "context"

// ListQuery selects todos for the list operation.
type ListQuery struct {
	Status string
	Limit  int
	Cursor string
}

// Page is one page of list results.
type Page struct {
	Items      []Todo
	NextCursor string
}

// Store persists todos.
type Store interface {
	Put(ctx context.Context, t Todo) error
	Get(ctx context.Context, id string) (Todo, error)
	List(ctx context.Context, q ListQuery) (Page, error)
	Update(ctx context.Context, id string, p Patch, updatedAt string) (Todo, error)
	Delete(ctx context.Context, id string) error
}

func normalizeLimit(limit int) int {
	if limit > 0 && limit <= DefaultListLimit {
		return limit
	}
	return DefaultListLimit
}
