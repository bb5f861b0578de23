// Package state resolves the canonical lifecycle state of an agent session.
//
// Two independent sources of truth exist: the authoritative out-of-band
// signal document written by the agent CLI, and a heuristic scan of the
// session's raw terminal output. The resolver tries them in fixed priority
// order and recomputes the state from scratch on every evaluation; there
// are no transition edges to advance.
package state

import (
	"regexp"
	"strings"

	"github.com/agentdeck/agentdeck/internal/signal"
)

// Canonical is the single resolved lifecycle label for a session.
type Canonical string

const (
	Starting       Canonical = "starting"
	Working        Canonical = "working"
	NeedsInput     Canonical = "needs-input"
	ReadyForReview Canonical = "ready-for-review"
	Completing     Canonical = "completing"
	Compacting     Canonical = "compacting"
	Idle           Canonical = "idle"
	Completed      Canonical = "completed"
)

// signalStates maps a state-kind signal to its canonical state. Signals
// whose kind already matches a canonical label pass through unchanged.
var signalStates = map[signal.Kind]Canonical{
	signal.KindWorking:     Working,
	signal.KindReview:      ReadyForReview,
	signal.KindNeedsInput:  NeedsInput,
	signal.KindIdle:        Idle,
	signal.KindCompleting:  Completing,
	signal.KindCompleted:   Completed,
	signal.KindStarting:    Starting,
	signal.KindCompacting:  Compacting,
	signal.KindAutoProceed: Completed,
}

// FromSignal maps a state-kind signal to its canonical state.
// Returns ok=false for data-kind or unknown signals.
func FromSignal(kind signal.Kind) (Canonical, bool) {
	c, ok := signalStates[kind]
	return c, ok
}

// MarkerSet binds one candidate state to the output phrases that imply it.
// The exact strings are an external contract with the agent CLI and are
// supplied by configuration.
type MarkerSet struct {
	State   Canonical
	Markers []string
}

// ResolveInput carries everything a single resolution needs. Output is the
// raw captured tail of the terminal buffer; the resolver strips ANSI
// sequences itself.
type ResolveInput struct {
	Signal  *signal.Signal
	Output  string
	HasTask bool
}

// Resolver computes canonical states from signals and output markers.
type Resolver struct {
	markers []MarkerSet

	// shortOutputLines is the non-empty line count below which a session
	// with no task and no matching marker is considered freshly launched.
	shortOutputLines int
}

// NewResolver creates a resolver over the given marker table.
// shortOutputLines <= 0 falls back to 5.
func NewResolver(markers []MarkerSet, shortOutputLines int) *Resolver {
	if shortOutputLines <= 0 {
		shortOutputLines = 5
	}
	return &Resolver{markers: markers, shortOutputLines: shortOutputLines}
}

// Resolve returns the canonical state for one session evaluation.
//
// Priority order:
//  1. A valid state-kind signal wins over everything else.
//  2. A valid complete-kind signal resolves to Completed.
//  3. The marker whose last occurrence sits at the highest offset in the
//     ANSI-stripped output wins; defaults apply when nothing matches.
func (r *Resolver) Resolve(in ResolveInput) Canonical {
	if in.Signal != nil {
		if c, ok := FromSignal(in.Signal.Kind); ok {
			return c
		}
		if in.Signal.Kind == signal.KindComplete {
			return Completed
		}
		// tasks/action data signals say nothing about lifecycle state.
	}

	text := StripANSI(in.Output)

	if best, found := r.scanMarkers(text); found {
		return best
	}

	if in.HasTask {
		return Working
	}
	if countNonEmptyLines(text) < r.shortOutputLines {
		return Starting
	}
	return Idle
}

// scanMarkers makes a single pass over the marker table, recording the
// highest last-occurrence offset per candidate state. The most recent
// marker (highest offset) decides.
func (r *Resolver) scanMarkers(text string) (Canonical, bool) {
	bestOffset := -1
	var best Canonical

	for _, set := range r.markers {
		for _, marker := range set.Markers {
			if marker == "" {
				continue
			}
			if off := strings.LastIndex(text, marker); off > bestOffset {
				bestOffset = off
				best = set.State
			}
		}
	}

	return best, bestOffset >= 0
}

func countNonEmptyLines(text string) int {
	n := 0
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) != "" {
			n++
		}
	}
	return n
}

// ansiRegex matches CSI sequences (ESC[...letter) and OSC sequences
// (ESC]...BEL).
var ansiRegex = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]|\x1b\][^\x07]*\x07`)

// StripANSI removes ANSI escape codes from captured terminal text.
func StripANSI(text string) string {
	return ansiRegex.ReplaceAllString(text, "")
}
