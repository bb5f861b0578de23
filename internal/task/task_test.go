package task

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTasks(t *testing.T, content string) *FileStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tasks.json")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return NewFileStore(path)
}

func TestListInProgressFilters(t *testing.T) {
	store := writeTasks(t, `[
		{"id":"T-1","title":"Ship it","status":"in_progress","assignee":"alice"},
		{"id":"T-2","title":"Done already","status":"done","assignee":"bob"},
		{"id":"T-3","title":"Not started","status":"todo","assignee":"carol"}
	]`)

	tasks, err := store.ListInProgress()
	if err != nil {
		t.Fatalf("ListInProgress: %v", err)
	}
	if len(tasks) != 1 || tasks[0].ID != "T-1" {
		t.Errorf("tasks = %+v, want only T-1", tasks)
	}
}

func TestListInProgressMissingFile(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "nope.json"))
	tasks, err := store.ListInProgress()
	if err != nil {
		t.Fatalf("missing file should not error, got %v", err)
	}
	if tasks != nil {
		t.Errorf("tasks = %+v, want nil", tasks)
	}
}

func TestListInProgressMalformed(t *testing.T) {
	store := writeTasks(t, `{not an array`)
	if _, err := store.ListInProgress(); err == nil {
		t.Error("malformed export should surface an error")
	}
}

func TestMatchAssignee(t *testing.T) {
	tasks := []Task{
		{ID: "T-1", Assignee: "Alice"},
		{ID: "T-2", Assignee: "bob"},
	}

	if got := MatchAssignee(tasks, "alice"); got == nil || got.ID != "T-1" {
		t.Errorf("MatchAssignee(alice) = %+v, want T-1", got)
	}
	if got := MatchAssignee(tasks, "BOB"); got == nil || got.ID != "T-2" {
		t.Errorf("MatchAssignee(BOB) = %+v, want T-2", got)
	}
	if got := MatchAssignee(tasks, "nobody"); got != nil {
		t.Errorf("MatchAssignee(nobody) = %+v, want nil", got)
	}
}
