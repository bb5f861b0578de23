// Package task is the read-only boundary to the external task-tracking
// store. agentdeck only ever asks which tasks are in progress so it can
// associate a session with the task its agent is working on; it never
// mutates task state.
package task

import (
	"encoding/json"
	"os"
	"strings"
)

// Task is one in-progress task as exported by the tracker.
type Task struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Status   string `json:"status"`
	Assignee string `json:"assignee"`
}

// Store lists in-progress tasks.
type Store interface {
	ListInProgress() ([]Task, error)
}

// FileStore reads tasks from a JSON array on disk, the tracker's export
// format. A missing file means no tasks, not an error.
type FileStore struct {
	path string
}

// NewFileStore creates a store over the given export file.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// ListInProgress returns the tasks whose status is "in_progress".
// Entries with other statuses are filtered out so stale exports that
// include done tasks do not produce bogus associations.
func (s *FileStore) ListInProgress() ([]Task, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var all []Task
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, err
	}

	var inProgress []Task
	for _, t := range all {
		if t.Status == "in_progress" {
			inProgress = append(inProgress, t)
		}
	}
	return inProgress, nil
}

// MatchAssignee finds the task assigned to the given agent, matching the
// tracker's assignee field case-insensitively. Returns nil when no
// in-progress task references the agent.
func MatchAssignee(tasks []Task, agent string) *Task {
	for i := range tasks {
		if strings.EqualFold(tasks[i].Assignee, agent) {
			return &tasks[i]
		}
	}
	return nil
}
