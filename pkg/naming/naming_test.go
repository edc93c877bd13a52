package naming

import "testing"

func TestNormalizeStage(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"prod", "live"},
		{"production", "live"},
		{"dev", "dev"},
		{"development", "dev"},
		{"stg", "stage"},
		{"staging", "stage"},
		{"testing", "test"},
		{"Local", "local"},
		{"My Env!", "my-env"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizeStage(tt.in); got != tt.want {
			t.Fatalf("NormalizeStage(%q)=%q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestStackName(t *testing.T) {
	if got := StackName("Todo", "prod", ""); got != "todo-live" {
		t.Fatalf("StackName app-stage: %q", got)
	}
	if got := StackName("Todo", "", "Acme"); got != "todo-acme" {
		t.Fatalf("StackName app-tenant: %q", got)
	}
}

func TestResourceName(t *testing.T) {
	if got := ResourceName("Todo", "todos", "dev", ""); got != "todo-todos-dev" {
		t.Fatalf("ResourceName app-resource-stage: %q", got)
	}
	if got := ResourceName("Todo App", "todos", "stg", "Acme"); got != "todo-app-acme-todos-stage" {
		t.Fatalf("ResourceName app-tenant-resource-stage: %q", got)
	}
	if got := ResourceName("Todo", "todos", "", ""); got != "todo-todos" {
		t.Fatalf("ResourceName without stage: %q", got)
	}
}

func TestLogicalID(t *testing.T) {
	if got := LogicalID("todo", "Table"); got != "TodoTable" {
		t.Fatalf("LogicalID simple: %q", got)
	}
	if got := LogicalID("my_todo app", "Function"); got != "MyTodoAppFunction" {
		t.Fatalf("LogicalID multi-part: %q", got)
	}
}
