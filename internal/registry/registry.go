// Package registry tracks which managed terminal sessions exist and how
// the live set changed since the previous poll.
package registry

import (
	"strings"
	"time"

	"github.com/agentdeck/agentdeck/internal/task"
	"github.com/agentdeck/agentdeck/internal/tmux"
)

// Session is one live terminal-hosted agent process.
type Session struct {
	Name      string
	CreatedAt time.Time
	Attached  bool

	// Task is the in-progress task associated with this session's agent,
	// if one could be resolved. Association is best-effort.
	Task *task.Task
}

// AgentName derives the agent identifier from the session name by
// stripping the managed prefix.
func (s *Session) AgentName(prefix string) string {
	return strings.TrimPrefix(s.Name, prefix)
}

// Registry diffs each poll's session set against the previous one.
// It is not safe for concurrent use; the engine serializes access.
type Registry struct {
	prefix            string
	provisionalSuffix string

	known map[string]*Session
}

// New creates a registry for sessions matching the managed naming
// convention.
func New(prefix, provisionalSuffix string) *Registry {
	return &Registry{
		prefix:            prefix,
		provisionalSuffix: provisionalSuffix,
		known:             make(map[string]*Session),
	}
}

// Managed reports whether a raw tmux session belongs to agentdeck and is
// past its provisional (not-yet-registered) phase.
func (r *Registry) Managed(name string) bool {
	if !strings.HasPrefix(name, r.prefix) {
		return false
	}
	if r.provisionalSuffix != "" && strings.HasSuffix(name, r.provisionalSuffix) {
		return false
	}
	return true
}

// Filter reduces a raw session listing to the managed set.
func (r *Registry) Filter(raw []tmux.SessionInfo) []tmux.SessionInfo {
	var managed []tmux.SessionInfo
	for _, info := range raw {
		if r.Managed(info.Name) {
			managed = append(managed, info)
		}
	}
	return managed
}

// Diff compares the current managed set against the previously tracked one
// and replaces the tracked set. Created sessions are returned before
// destroyed ones; a name can never appear in both within one tick.
func (r *Registry) Diff(current []tmux.SessionInfo) (created []*Session, destroyed []*Session) {
	next := make(map[string]*Session, len(current))
	for _, info := range current {
		if existing, ok := r.known[info.Name]; ok {
			existing.Attached = info.Attached
			next[info.Name] = existing
			continue
		}
		sess := &Session{
			Name:      info.Name,
			CreatedAt: info.CreatedAt,
			Attached:  info.Attached,
		}
		next[info.Name] = sess
		created = append(created, sess)
	}

	for name, sess := range r.known {
		if _, ok := next[name]; !ok {
			destroyed = append(destroyed, sess)
		}
	}

	r.known = next
	return created, destroyed
}

// Get returns the tracked session by name, or nil.
func (r *Registry) Get(name string) *Session {
	return r.known[name]
}

// Sessions returns all currently tracked sessions.
func (r *Registry) Sessions() []*Session {
	out := make([]*Session, 0, len(r.known))
	for _, s := range r.known {
		out = append(out, s)
	}
	return out
}

// Reset forgets all tracked sessions. Called on engine teardown so a
// reconnecting client sees a clean create stream rather than a stale diff.
func (r *Registry) Reset() {
	r.known = make(map[string]*Session)
}

// AssociateTask resolves a session's task by matching its derived agent
// name against in-progress task assignees. Failure to list tasks leaves
// the session unassociated; the next poll retries.
func (r *Registry) AssociateTask(sess *Session, store task.Store) {
	if store == nil {
		return
	}
	tasks, err := store.ListInProgress()
	if err != nil {
		return
	}
	sess.Task = task.MatchAssignee(tasks, sess.AgentName(r.prefix))
}
