package signal

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeDoc(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	return NewStore(dir, DefaultTTLs()), dir
}

func TestReadValidStateSignal(t *testing.T) {
	st, dir := newTestStore(t)
	writeDoc(t, filepath.Join(dir, "agent-1.signal.json"), `{"type":"working"}`)

	sig := st.Read("agent-1")
	if sig == nil {
		t.Fatal("expected signal, got nil")
	}
	if sig.Kind != KindWorking {
		t.Errorf("Kind = %q, want %q", sig.Kind, KindWorking)
	}
	if !sig.Kind.IsState() {
		t.Error("working should be a state kind")
	}
}

func TestReadAbsentSignal(t *testing.T) {
	st, _ := newTestStore(t)
	if sig := st.Read("agent-none"); sig != nil {
		t.Errorf("expected nil for absent document, got %+v", sig)
	}
}

func TestReadMalformedSignal(t *testing.T) {
	st, dir := newTestStore(t)

	cases := map[string]string{
		"bad-json":     `{not json`,
		"unknown-type": `{"type":"resting"}`,
		"no-type":      `{"payload":{}}`,
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			writeDoc(t, filepath.Join(dir, "agent-2.signal.json"), content)
			if sig := st.Read("agent-2"); sig != nil {
				t.Errorf("malformed document resolved to %+v, want nil", sig)
			}
		})
	}
}

func TestExpiredSignalTreatedAsAbsent(t *testing.T) {
	st, dir := newTestStore(t)
	writeDoc(t, filepath.Join(dir, "agent-3.signal.json"), `{"type":"review"}`)

	// Fresh: valid.
	if sig := st.Read("agent-3"); sig == nil {
		t.Fatal("fresh state signal should be valid")
	}

	// Older than the state TTL: absent.
	st.SetClock(func() time.Time { return time.Now().Add(31 * time.Second) })
	if sig := st.Read("agent-3"); sig != nil {
		t.Errorf("expired state signal resolved to %+v, want nil", sig)
	}
}

func TestCompleteSignalOutlivesStateTTL(t *testing.T) {
	st, dir := newTestStore(t)
	writeDoc(t, filepath.Join(dir, "agent-4.signal.json"), `{"type":"complete","payload":{"taskId":"T-1"}}`)

	// Well past the state TTL but within the complete TTL.
	st.SetClock(func() time.Time { return time.Now().Add(2 * time.Hour) })
	sig := st.Read("agent-4")
	if sig == nil {
		t.Fatal("complete signal should survive state-TTL expiry")
	}
	if sig.Kind != KindComplete {
		t.Errorf("Kind = %q, want %q", sig.Kind, KindComplete)
	}

	// Past the complete TTL: absent.
	st.SetClock(func() time.Time { return time.Now().Add(25 * time.Hour) })
	if sig := st.Read("agent-4"); sig != nil {
		t.Error("complete signal should expire after its own TTL")
	}
}

func TestWrittenAtComesFromFileNotBody(t *testing.T) {
	st, dir := newTestStore(t)
	path := filepath.Join(dir, "agent-5.signal.json")
	// A document claiming a future timestamp in the body must not be able
	// to extend its own freshness.
	writeDoc(t, path, `{"type":"working","writtenAt":"2099-01-01T00:00:00Z"}`)

	old := time.Now().Add(-10 * time.Minute)
	if err := os.Chtimes(path, old, old); err != nil {
		t.Fatalf("failed to age file: %v", err)
	}

	if sig := st.Read("agent-5"); sig != nil {
		t.Error("aged file should be expired regardless of body content")
	}
}

func TestPayloadHashChangesWithContent(t *testing.T) {
	a := &Signal{Kind: KindTasks, Payload: []byte(`{"tasks":["one"]}`)}
	b := &Signal{Kind: KindTasks, Payload: []byte(`{"tasks":["one"]}`)}
	c := &Signal{Kind: KindTasks, Payload: []byte(`{"tasks":["two"]}`)}

	if a.PayloadHash() != b.PayloadHash() {
		t.Error("identical payloads should hash equal")
	}
	if a.PayloadHash() == c.PayloadHash() {
		t.Error("different payloads should hash differently")
	}
}

func TestReadQuestion(t *testing.T) {
	st, dir := newTestStore(t)
	writeDoc(t, filepath.Join(dir, "agent-6.question.json"), `{"question":"Deploy to staging?"}`)

	q := st.ReadQuestion("agent-6")
	if q == nil {
		t.Fatal("expected question, got nil")
	}
	if q.Text != "Deploy to staging?" {
		t.Errorf("Text = %q", q.Text)
	}

	// Expiry clears implicitly; no tombstone needed.
	st.SetClock(func() time.Time { return time.Now().Add(6 * time.Minute) })
	if q := st.ReadQuestion("agent-6"); q != nil {
		t.Error("expired question should be absent")
	}
}

func TestReadQuestionMissingText(t *testing.T) {
	st, dir := newTestStore(t)
	writeDoc(t, filepath.Join(dir, "agent-7.question.json"), `{"payload":{"x":1}}`)
	if q := st.ReadQuestion("agent-7"); q != nil {
		t.Error("question without text is malformed and should be absent")
	}
}

func TestParseDocName(t *testing.T) {
	tests := []struct {
		name        string
		wantSession string
		wantKind    DocKind
		wantOK      bool
	}{
		{"agent-1.signal.json", "agent-1", DocSignal, true},
		{"agent-1.question.json", "agent-1", DocQuestion, true},
		{"agentdeck-x.y.signal.json", "agentdeck-x.y", DocSignal, true},
		{"notes.txt", "", "", false},
		{".signal.json", "", "", false},
	}
	for _, tt := range tests {
		session, kind, ok := ParseDocName(tt.name)
		if ok != tt.wantOK || session != tt.wantSession || kind != tt.wantKind {
			t.Errorf("ParseDocName(%q) = (%q, %q, %v), want (%q, %q, %v)",
				tt.name, session, kind, ok, tt.wantSession, tt.wantKind, tt.wantOK)
		}
	}
}
