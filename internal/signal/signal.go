// Package signal reads the out-of-band documents coding agents write to
// report their own state or deliver structured data.
//
// Each session owns at most one signal document and one question document,
// both small JSON files at deterministic paths under the signals directory.
// Documents are valid only while younger than a type-dependent TTL; an
// expired or malformed document is indistinguishable from an absent one.
package signal

import (
	"encoding/json"
	"hash/fnv"
	"os"
	"path/filepath"
	"time"
)

// Kind identifies what a signal document carries.
type Kind string

// State kinds describe the agent's current lifecycle state.
const (
	KindWorking     Kind = "working"
	KindReview      Kind = "review"
	KindNeedsInput  Kind = "needs_input"
	KindIdle        Kind = "idle"
	KindCompleting  Kind = "completing"
	KindCompleted   Kind = "completed"
	KindStarting    Kind = "starting"
	KindCompacting  Kind = "compacting"
	KindAutoProceed Kind = "auto_proceed"
)

// Data kinds carry structured payloads rather than a state.
const (
	// KindTasks carries suggested follow-up tasks.
	KindTasks Kind = "tasks"
	// KindAction carries a request for a human action.
	KindAction Kind = "action"
	// KindComplete carries the full completion bundle for a finished task.
	KindComplete Kind = "complete"
)

// IsState reports whether the kind describes a lifecycle state.
func (k Kind) IsState() bool {
	switch k {
	case KindWorking, KindReview, KindNeedsInput, KindIdle,
		KindCompleting, KindCompleted, KindStarting, KindCompacting,
		KindAutoProceed:
		return true
	}
	return false
}

// IsData reports whether the kind carries a structured data payload.
func (k Kind) IsData() bool {
	switch k {
	case KindTasks, KindAction, KindComplete:
		return true
	}
	return false
}

// Known reports whether the kind is one agentdeck understands at all.
func (k Kind) Known() bool {
	return k.IsState() || k.IsData()
}

// Signal is one decoded, unexpired signal document.
type Signal struct {
	Session   string
	Kind      Kind
	Payload   json.RawMessage
	WrittenAt time.Time
}

// PayloadHash returns a cheap content hash of the decoded payload, used to
// suppress re-broadcast when a document is rewritten with identical content
// and to deduplicate completion bundles. Collisions are acceptable; this is
// a change detector, not an integrity check.
func (s *Signal) PayloadHash() uint64 {
	h := fnv.New64a()
	h.Write([]byte(s.Kind))
	h.Write([]byte{0})
	h.Write(s.Payload)
	return h.Sum64()
}

// Question is a pending request for human input, kept in its own document
// so answering machinery never races the state signal.
type Question struct {
	Session   string
	Text      string
	Payload   json.RawMessage
	WrittenAt time.Time
}

// Hash returns a content hash of the question for rebroadcast suppression.
func (q *Question) Hash() uint64 {
	h := fnv.New64a()
	h.Write([]byte(q.Text))
	h.Write([]byte{0})
	h.Write(q.Payload)
	return h.Sum64()
}

// TTLs holds the freshness window per document class.
type TTLs struct {
	State    time.Duration
	Question time.Duration
	Data     time.Duration
	Complete time.Duration
}

// DefaultTTLs returns the built-in freshness windows.
func DefaultTTLs() TTLs {
	return TTLs{
		State:    30 * time.Second,
		Question: 5 * time.Minute,
		Data:     10 * time.Minute,
		Complete: 24 * time.Hour,
	}
}

// forKind returns the TTL governing a signal kind.
func (t TTLs) forKind(k Kind) time.Duration {
	switch {
	case k == KindComplete:
		return t.Complete
	case k.IsData():
		return t.Data
	default:
		return t.State
	}
}

// signalDoc is the on-disk shape of a signal document.
type signalDoc struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// questionDoc is the on-disk shape of a question document.
type questionDoc struct {
	Question string          `json:"question"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// Store reads signal and question documents for sessions.
// It never writes; the agent CLI owns document content.
type Store struct {
	dir string
	ttl TTLs

	// now is swappable for TTL tests.
	now func() time.Time
}

// NewStore creates a store over the given signals directory.
func NewStore(dir string, ttl TTLs) *Store {
	return &Store{dir: dir, ttl: ttl, now: time.Now}
}

// SetClock overrides the store's notion of now. Intended for tests.
func (st *Store) SetClock(now func() time.Time) {
	st.now = now
}

// Dir returns the watched signals directory.
func (st *Store) Dir() string {
	return st.dir
}

// SignalPath returns the deterministic signal document path for a session.
func (st *Store) SignalPath(session string) string {
	return filepath.Join(st.dir, session+".signal.json")
}

// QuestionPath returns the deterministic question document path for a session.
func (st *Store) QuestionPath(session string) string {
	return filepath.Join(st.dir, session+".question.json")
}

// Read returns the session's current signal, or nil if the document is
// absent, expired, malformed, or of an unknown type. It never returns an
// error for any per-document condition: the next poll or watch cycle
// retries naturally.
func (st *Store) Read(session string) *Signal {
	path := st.SignalPath(session)

	info, err := os.Stat(path)
	if err != nil {
		return nil
	}
	writtenAt := info.ModTime()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}

	var doc signalDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil
	}

	kind := Kind(doc.Type)
	if !kind.Known() {
		return nil
	}

	if st.now().Sub(writtenAt) > st.ttl.forKind(kind) {
		return nil
	}

	return &Signal{
		Session:   session,
		Kind:      kind,
		Payload:   doc.Payload,
		WrittenAt: writtenAt,
	}
}

// ReadQuestion returns the session's pending question, or nil if absent,
// expired, or malformed. Questions clear implicitly by expiry; no tombstone
// is required.
func (st *Store) ReadQuestion(session string) *Question {
	path := st.QuestionPath(session)

	info, err := os.Stat(path)
	if err != nil {
		return nil
	}
	writtenAt := info.ModTime()

	if st.now().Sub(writtenAt) > st.ttl.Question {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}

	var doc questionDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil
	}
	if doc.Question == "" {
		return nil
	}

	return &Question{
		Session:   session,
		Text:      doc.Question,
		Payload:   doc.Payload,
		WrittenAt: writtenAt,
	}
}

// DocKind distinguishes the two per-session document classes the change
// watcher can observe.
type DocKind string

const (
	DocSignal   DocKind = "signal"
	DocQuestion DocKind = "question"
)

// ParseDocName maps a file name in the signals directory back to its
// session and document kind. Returns ok=false for unrelated files.
func ParseDocName(name string) (session string, kind DocKind, ok bool) {
	const (
		signalSuffix   = ".signal.json"
		questionSuffix = ".question.json"
	)
	switch {
	case len(name) > len(signalSuffix) && name[len(name)-len(signalSuffix):] == signalSuffix:
		return name[:len(name)-len(signalSuffix)], DocSignal, true
	case len(name) > len(questionSuffix) && name[len(name)-len(questionSuffix):] == questionSuffix:
		return name[:len(name)-len(questionSuffix)], DocQuestion, true
	}
	return "", "", false
}
