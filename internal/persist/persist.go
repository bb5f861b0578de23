// Package persist durably records completion bundles so a finished task's
// summary survives session destruction and signal expiry.
package persist

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/agentdeck/agentdeck/internal/logging"
)

// QualitySignals summarizes verification status reported by the agent.
type QualitySignals struct {
	TestsPassed *bool  `json:"testsPassed,omitempty"`
	BuildPassed *bool  `json:"buildPassed,omitempty"`
	Notes       string `json:"notes,omitempty"`
}

// FollowUpTask is a task the agent suggests creating next.
type FollowUpTask struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// Bundle is the durable record of a finished task.
type Bundle struct {
	TaskID       string          `json:"taskId"`
	AgentName    string          `json:"agentName"`
	Summary      []string        `json:"summary"`
	Quality      *QualitySignals `json:"quality,omitempty"`
	HumanActions []string        `json:"humanActions,omitempty"`
	FollowUps    []FollowUpTask  `json:"followUps,omitempty"`
	RecordedAt   time.Time       `json:"recordedAt"`
}

// Store writes bundles to the completions directory, one file per task,
// with upsert semantics keyed by task id.
type Store struct {
	dir string
}

// NewStore creates a bundle store over dir.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Path returns the bundle file path for a task.
func (s *Store) Path(taskID string) string {
	return filepath.Join(s.dir, taskID+".json")
}

// Persist writes the bundle atomically via a temp file and rename, so a
// crash mid-write never leaves a truncated record.
func (s *Store) Persist(taskID string, b *Bundle) error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("create completions dir: %w", err)
	}

	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal bundle: %w", err)
	}

	tmp := s.Path(taskID) + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write bundle: %w", err)
	}
	if err := os.Rename(tmp, s.Path(taskID)); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("commit bundle: %w", err)
	}
	return nil
}

// Load reads a previously persisted bundle. Missing bundles return
// os.ErrNotExist wrapped.
func (s *Store) Load(taskID string) (*Bundle, error) {
	data, err := os.ReadFile(s.Path(taskID))
	if err != nil {
		return nil, err
	}
	var b Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("parse bundle %s: %w", taskID, err)
	}
	return &b, nil
}

// Recorder deduplicates completion observations by content hash and makes
// persistence failure non-fatal: the broadcast still proceeds and the hash
// is only remembered on success, so a rewritten (or re-observed) signal
// retries the write.
type Recorder struct {
	store *Store
	log   *logging.Logger

	persisted map[string]uint64 // taskID -> payload hash last durably written
}

// NewRecorder creates a recorder over the given store.
func NewRecorder(store *Store, log *logging.Logger) *Recorder {
	return &Recorder{
		store:     store,
		log:       log,
		persisted: make(map[string]uint64),
	}
}

// Record persists the bundle unless an identical observation was already
// written. Returns true when this observation is new to connected clients,
// i.e. the caller should broadcast it.
func (r *Recorder) Record(taskID string, contentHash uint64, b *Bundle) bool {
	if prev, ok := r.persisted[taskID]; ok && prev == contentHash {
		return false
	}

	if err := r.store.Persist(taskID, b); err != nil {
		// The in-memory signal remains the source of truth; broadcast
		// proceeds and the next observation retries persistence.
		r.log.Error("failed to persist completion bundle",
			"task", taskID, "error", err)
		return true
	}

	r.persisted[taskID] = contentHash
	return true
}

// Reset forgets dedupe state. Called on engine teardown.
func (r *Recorder) Reset() {
	r.persisted = make(map[string]uint64)
}
