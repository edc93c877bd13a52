// Package todo implements the request handler behind every todo route.
package todo

import "time"

// StatusPending is assigned to todos created without a status.
const StatusPending = "pending"

// StatusDone marks a finished todo.
const StatusDone = "done"

// DefaultListLimit caps the number of items a single list returns.
const DefaultListLimit = 100

// Todo is the stored and returned representation of a todo item.
type Todo struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Description *string `json:"description"`
	Status      string  `json:"status"`
	CreatedAt   string  `json:"created_at"`
	UpdatedAt   string  `json:"updated_at"`
}

// CreateInput is the body accepted by POST /todos.
type CreateInput struct {
	Title       string  `json:"title"`
	Description *string `json:"description"`
	Status      *string `json:"status"`
}

// Validate reports the first problem with the input, or nil. A title needs at least one
// character; whitespace is kept as given.
func (in CreateInput) Validate() error {
	if in.Title == "" {
		return &AppError{Code: ErrorCodeValidationFailed, Message: "title is required"}
	}
	return nil
}

// Patch is the body accepted by PUT /todos/{id}. Nil fields are left unchanged.
type Patch struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Status      *string `json:"status"`
}

// Apply returns t with the patch fields and the new update timestamp applied.
func (p Patch) Apply(t Todo, updatedAt string) Todo {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		d := *p.Description
		t.Description = &d
	}
	if p.Status != nil {
		t.Status = *p.Status
	}
	t.UpdatedAt = updatedAt
	return t
}

// NewTodo builds a todo from validated input.
func NewTodo(id string, in CreateInput, now time.Time) Todo {
	status := StatusPending
	if in.Status != nil {
		status = *in.Status
	}
	ts := Timestamp(now)
	return Todo{
		ID:          id,
		Title:       in.Title,
		Description: in.Description,
		Status:      status,
		CreatedAt:   ts,
		UpdatedAt:   ts,
	}
}

// Timestamp formats t as UTC with second precision and a trailing Z.
func Timestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05") + "Z"
}
