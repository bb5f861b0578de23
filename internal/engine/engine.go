// Package engine is the real-time session synchronization core. It polls
// the process host for sessions, reconciles signal documents against
// captured output, and feeds canonical events to the broadcast hub.
//
// The engine runs only while at least one client is connected. On the last
// disconnect it is fully torn down: timers cancelled, tracking maps
// cleared, watcher closed. That lifecycle is a contract, not an
// optimization — a reconnecting client must never receive a backlog
// accumulated across a zero-clients window.
package engine

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/agentdeck/agentdeck/internal/capture"
	"github.com/agentdeck/agentdeck/internal/config"
	"github.com/agentdeck/agentdeck/internal/debounce"
	"github.com/agentdeck/agentdeck/internal/hub"
	"github.com/agentdeck/agentdeck/internal/logging"
	"github.com/agentdeck/agentdeck/internal/persist"
	"github.com/agentdeck/agentdeck/internal/protocol"
	"github.com/agentdeck/agentdeck/internal/registry"
	"github.com/agentdeck/agentdeck/internal/signal"
	"github.com/agentdeck/agentdeck/internal/state"
	"github.com/agentdeck/agentdeck/internal/task"
	"github.com/agentdeck/agentdeck/internal/tmux"
	"github.com/agentdeck/agentdeck/internal/watch"
)

// Debounce kinds used by the engine.
const (
	debounceOutput = debounce.Kind("output")
)

// Host is the subset of the process-host boundary the engine needs.
type Host interface {
	ListSessions(ctx context.Context) ([]tmux.SessionInfo, error)
	CapturePane(ctx context.Context, name string, lines int) (string, error)
}

// Engine coordinates the poll loop, the change watcher, and event fan-out.
type Engine struct {
	cfg      *config.Config
	log      *logging.Logger
	host     Host
	hub      *hub.Hub
	reg      *registry.Registry
	signals  *signal.Store
	resolver *state.Resolver
	recorder *persist.Recorder
	tasks    task.Store
	debounce *debounce.Registry
	watcher  *watch.Watcher

	mu sync.Mutex
	// Per-session tracking. Purged on session destroy and on teardown.
	outputHashes   map[string]uint64
	lastStates     map[string]state.Canonical
	dataHashes     map[string]uint64
	questionHashes map[string]uint64

	running bool
	stop    chan struct{}
}

// New wires an engine from its collaborators and registers the client
// lifecycle hook on the hub.
func New(cfg *config.Config, log *logging.Logger, host Host, h *hub.Hub, tasks task.Store, recorder *persist.Recorder) *Engine {
	reg := registry.New(cfg.Session.Prefix, cfg.Session.ProvisionalSuffix)
	signals := signal.NewStore(cfg.Paths.SignalsDir, signal.TTLs{
		State:    time.Duration(cfg.Signals.StateTTLSeconds) * time.Second,
		Question: time.Duration(cfg.Signals.QuestionTTLSeconds) * time.Second,
		Data:     time.Duration(cfg.Signals.DataTTLSeconds) * time.Second,
		Complete: time.Duration(cfg.Signals.CompleteTTLSeconds) * time.Second,
	})

	e := &Engine{
		cfg:      cfg,
		log:      log.WithComponent("engine"),
		host:     host,
		hub:      h,
		reg:      reg,
		signals:  signals,
		resolver: state.NewResolver(markerTable(cfg.Markers), cfg.Poll.ShortOutputLines),
		recorder: recorder,
		tasks:    tasks,
		debounce: debounce.NewRegistry(),

		outputHashes:   make(map[string]uint64),
		lastStates:     make(map[string]state.Canonical),
		dataHashes:     make(map[string]uint64),
		questionHashes: make(map[string]uint64),
	}
	e.watcher = watch.New(cfg.Paths.SignalsDir, cfg.SignalDebounce(), e.debounce, e.onDocChange, log.WithComponent("watcher"))

	h.OnClientCountChange(e.onClientCount)
	return e
}

// markerTable converts the configured marker lists into the resolver's
// ordered candidate table.
func markerTable(m config.MarkersConfig) []state.MarkerSet {
	return []state.MarkerSet{
		{State: state.Working, Markers: m.Working},
		{State: state.NeedsInput, Markers: m.NeedsInput},
		{State: state.ReadyForReview, Markers: m.Review},
		{State: state.Completing, Markers: m.Completing},
		{State: state.Compacting, Markers: m.Compacting},
		{State: state.Completed, Markers: m.Completed},
		{State: state.Idle, Markers: m.Idle},
	}
}

// onClientCount starts the engine on the first connected client and tears
// it down when the last one leaves.
func (e *Engine) onClientCount(count int) {
	if count > 0 {
		e.Start()
	} else {
		e.Stop()
	}
}

// Start begins the poll loop and the change watcher. Idempotent.
func (e *Engine) Start() {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return
	}
	e.running = true
	e.stop = make(chan struct{})
	stop := e.stop
	e.mu.Unlock()

	if err := e.watcher.Start(); err != nil {
		e.log.Warn("signal watcher unavailable, relying on poll only", "error", err)
	}

	e.log.Info("engine started", "poll_interval", e.cfg.PollInterval().String())

	go func() {
		ticker := time.NewTicker(e.cfg.PollInterval())
		defer ticker.Stop()

		// Immediate first tick so a new client sees sessions right away.
		e.pollTick()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				e.pollTick()
			}
		}
	}()
}

// Stop halts the loop and clears all per-session tracking state. Idempotent.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	close(e.stop)

	e.outputHashes = make(map[string]uint64)
	e.lastStates = make(map[string]state.Canonical)
	e.dataHashes = make(map[string]uint64)
	e.questionHashes = make(map[string]uint64)
	e.reg.Reset()
	e.mu.Unlock()

	e.watcher.Stop()
	e.debounce.CancelAll()
	e.recorder.Reset()
	e.log.Info("engine stopped")
}

// pollTick is the slow path: session discovery, output capture, and the
// catch-all signal re-evaluation.
func (e *Engine) pollTick() {
	ctx := context.Background()

	raw, err := e.host.ListSessions(ctx)
	if err != nil {
		// Transient host failure; the next tick retries naturally.
		e.log.Warn("session listing failed", "error", err)
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	// A tick that raced with teardown must not repopulate cleared state.
	if !e.running {
		return
	}

	created, destroyed := e.reg.Diff(e.reg.Filter(raw))

	for _, sess := range created {
		e.reg.AssociateTask(sess, e.tasks)
		e.log.Info("session created", "session", sess.Name)
		e.publishSession(protocol.TypeSessionCreated, sess)
	}
	for _, sess := range destroyed {
		e.log.Info("session destroyed", "session", sess.Name)
		// Publish before purging so the destroy event still carries the
		// session's last known state.
		e.publishSession(protocol.TypeSessionDestroyed, sess)
		e.purgeSessionLocked(sess.Name)
	}

	for _, sess := range e.reg.Sessions() {
		e.syncSessionLocked(ctx, sess)
	}
}

// publishSession emits a lifecycle event on the system channel.
func (e *Engine) publishSession(eventType string, sess *registry.Session) {
	msg, err := protocol.NewMessage(eventType, sessionPayload(sess, e.lastStates[sess.Name]))
	if err != nil {
		return
	}
	e.hub.Publish(hub.ChannelSystem, msg)
}

func sessionPayload(sess *registry.Session, st state.Canonical) protocol.SessionPayload {
	p := protocol.SessionPayload{
		SessionName: sess.Name,
		CreatedAt:   sess.CreatedAt,
		Attached:    sess.Attached,
		State:       string(st),
	}
	if sess.Task != nil {
		p.Task = &protocol.TaskRef{
			ID:     sess.Task.ID,
			Title:  sess.Task.Title,
			Status: sess.Task.Status,
		}
	}
	return p
}

// purgeSessionLocked drops all per-session tracking for a destroyed
// session. Caller holds e.mu.
func (e *Engine) purgeSessionLocked(name string) {
	delete(e.outputHashes, name)
	delete(e.lastStates, name)
	delete(e.questionHashes, name)
	// dataHashes is keyed by session and signal kind.
	for key := range e.dataHashes {
		if strings.HasPrefix(key, name+"/") {
			delete(e.dataHashes, key)
		}
	}
	e.debounce.CancelID(name)
	e.hub.DropSession(name)
}

// syncSessionLocked performs one full evaluation of a session: signals,
// questions, canonical state, and output. Caller holds e.mu.
func (e *Engine) syncSessionLocked(ctx context.Context, sess *registry.Session) {
	sig := e.signals.Read(sess.Name)

	if sig != nil && sig.Kind.IsData() {
		e.handleDataSignalLocked(sess, sig)
	}
	e.checkQuestionLocked(sess.Name)

	// Capture is expensive (a subprocess per session); skip it only when no
	// one is watching output and the signal alone decides the state. A
	// data-kind signal says nothing about lifecycle, so the heuristic still
	// needs text.
	var output string
	needOutput := e.hub.SubscriberCount(hub.ChannelOutput) > 0
	stateFromSignal := sig != nil && (sig.Kind.IsState() || sig.Kind == signal.KindComplete)
	if needOutput || !stateFromSignal {
		text, err := e.host.CapturePane(ctx, sess.Name, e.cfg.Poll.CaptureLines)
		if err != nil {
			// Treat as unchanged for this cycle.
			e.log.Debug("capture failed", "session", sess.Name, "error", err)
		} else {
			output = text
			if needOutput {
				e.handleOutputLocked(sess.Name, text)
			}
		}
	}

	resolved := e.resolver.Resolve(state.ResolveInput{
		Signal:  sig,
		Output:  output,
		HasTask: sess.Task != nil,
	})
	e.applyStateLocked(sess.Name, resolved)
}

// applyStateLocked broadcasts a canonical state change. Change detection
// is on the resolved state, never on raw signal bytes.
func (e *Engine) applyStateLocked(name string, resolved state.Canonical) {
	prev, known := e.lastStates[name]
	if known && prev == resolved {
		return
	}
	e.lastStates[name] = resolved

	payload := protocol.StatePayload{
		SessionName:   name,
		State:         string(resolved),
		PreviousState: string(prev),
	}
	msg, err := protocol.NewMessage(protocol.TypeSessionState, payload)
	if err != nil {
		return
	}
	e.hub.Publish(hub.ChannelAgentState, msg)
	e.log.Debug("state changed", "session", name, "from", string(prev), "to", string(resolved))
}

// handleOutputLocked fingerprints captured output and schedules a
// debounced delta broadcast on change. The debounce is keyed per session
// so one chatty agent never delays another's updates.
func (e *Engine) handleOutputLocked(name, text string) {
	fp := capture.Fingerprint(text)
	if e.outputHashes[name] == fp {
		return
	}
	e.outputHashes[name] = fp

	e.debounce.Trigger(debounceOutput, name, e.cfg.OutputDebounce(), func() {
		e.hub.BroadcastOutput(name, text)
	})
}

// handleDataSignalLocked relays tasks/action/complete signals, suppressing
// re-broadcast when a document was rewritten with identical content.
func (e *Engine) handleDataSignalLocked(sess *registry.Session, sig *signal.Signal) {
	hash := sig.PayloadHash()

	if sig.Kind == signal.KindComplete {
		e.handleCompleteLocked(sess, sig, hash)
		return
	}

	key := sess.Name + "/" + string(sig.Kind)
	if e.dataHashes[key] == hash {
		return
	}
	e.dataHashes[key] = hash

	msg, err := protocol.NewMessage(protocol.TypeSessionSignal, protocol.SignalPayload{
		SessionName: sess.Name,
		Kind:        string(sig.Kind),
		Payload:     sig.Payload,
	})
	if err != nil {
		return
	}
	e.hub.Publish(hub.ChannelTaskChange, msg)
}

// completeDoc is the payload shape of a complete-kind signal.
type completeDoc struct {
	TaskID       string                  `json:"taskId"`
	Summary      []string                `json:"summary"`
	Quality      *persist.QualitySignals `json:"quality,omitempty"`
	HumanActions []string                `json:"humanActions,omitempty"`
	FollowUps    []persist.FollowUpTask  `json:"followUps,omitempty"`
}

// handleCompleteLocked persists a completion bundle once per distinct
// content and relays it. Persistence failure never blocks the broadcast.
func (e *Engine) handleCompleteLocked(sess *registry.Session, sig *signal.Signal, hash uint64) {
	var doc completeDoc
	if err := json.Unmarshal(sig.Payload, &doc); err != nil {
		e.log.Debug("malformed complete payload", "session", sess.Name, "error", err)
		return
	}

	taskID := doc.TaskID
	if taskID == "" && sess.Task != nil {
		taskID = sess.Task.ID
	}
	if taskID == "" {
		e.log.Debug("complete signal without task id", "session", sess.Name)
		return
	}

	bundle := &persist.Bundle{
		TaskID:       taskID,
		AgentName:    sess.AgentName(e.cfg.Session.Prefix),
		Summary:      doc.Summary,
		Quality:      doc.Quality,
		HumanActions: doc.HumanActions,
		FollowUps:    doc.FollowUps,
		RecordedAt:   time.Now().UTC(),
	}

	if !e.recorder.Record(taskID, hash, bundle) {
		return
	}

	raw, err := json.Marshal(bundle)
	if err != nil {
		return
	}
	msg, err := protocol.NewMessage(protocol.TypeSessionComplete, protocol.CompletePayload{
		SessionName: sess.Name,
		TaskID:      taskID,
		Bundle:      raw,
	})
	if err != nil {
		return
	}
	e.hub.Publish(hub.ChannelTaskChange, msg)
}

// checkQuestionLocked relays a pending question, suppressing duplicates.
// An expired or answered question clears its hash so a later identical
// question is relayed again.
func (e *Engine) checkQuestionLocked(name string) {
	q := e.signals.ReadQuestion(name)
	if q == nil {
		delete(e.questionHashes, name)
		return
	}

	hash := q.Hash()
	if e.questionHashes[name] == hash {
		return
	}
	e.questionHashes[name] = hash

	msg, err := protocol.NewMessage(protocol.TypeSessionQuestion, protocol.QuestionPayload{
		SessionName: name,
		Question:    q.Text,
		Payload:     q.Payload,
	})
	if err != nil {
		return
	}
	e.hub.Publish(hub.ChannelQuestions, msg)
}

// onDocChange is the watcher fast path. It re-evaluates only what the
// changed document can decide; output-derived fallback stays on the poll
// tick, which also catches anything the watcher missed.
func (e *Engine) onDocChange(session string, kind signal.DocKind) {
	e.mu.Lock()
	defer e.mu.Unlock()

	sess := e.reg.Get(session)
	if sess == nil {
		// Signal for a session the registry hasn't observed yet; the next
		// poll will pick both up.
		return
	}

	switch kind {
	case signal.DocQuestion:
		e.checkQuestionLocked(session)

	case signal.DocSignal:
		sig := e.signals.Read(session)
		if sig == nil {
			return
		}
		if sig.Kind.IsData() {
			e.handleDataSignalLocked(sess, sig)
		}
		// Broadcast immediately when the signal alone determines the
		// state; heuristic fallback waits for the poll tick.
		if resolved, ok := state.FromSignal(sig.Kind); ok {
			e.applyStateLocked(session, resolved)
		} else if sig.Kind == signal.KindComplete {
			e.applyStateLocked(session, state.Completed)
		}
	}
}

// Snapshot returns the current sessions with their resolved states, for
// new connections and the REST surface.
func (e *Engine) Snapshot() []protocol.SessionPayload {
	e.mu.Lock()
	defer e.mu.Unlock()

	sessions := e.reg.Sessions()
	out := make([]protocol.SessionPayload, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, sessionPayload(sess, e.lastStates[sess.Name]))
	}
	return out
}
