// Package scheduler turns a read-only session.Snapshot plus a beat window
// into the deterministic set of timestamped events to dispatch to the
// synthesis engine (spec.md §4.4). It is a pure function of its inputs
// except for the small per-entity cursor/projection bookkeeping a
// Scheduler value owns between ticks; it never mutates session state
// itself — state changes flow back to internal/engine as postback
// messages assembled by internal/transport.
package scheduler

import (
	"sort"

	"github.com/trusch/vibelang/internal/session"
	"github.com/trusch/vibelang/internal/timing"
)

// DispatchKind is the kind of a scheduled event, used for tie-break
// ordering (spec.md §4.4: "note-off < parameter-set < trigger/note-on").
type DispatchKind int

const (
	DispatchNoteOff DispatchKind = iota
	DispatchParamSet
	DispatchTrigger
	DispatchNoteOn
)

func dispatchPriority(k DispatchKind) int {
	switch k {
	case DispatchNoteOff:
		return 0
	case DispatchParamSet:
		return 1
	default: // DispatchTrigger, DispatchNoteOn share a tie rank
		return 2
	}
}

// SourceKind is the originating entity kind of an event, used for the
// second tie-break key ("pattern < melody < sequence-clip").
type SourceKind int

const (
	SourcePattern SourceKind = iota
	SourceMelody
	SourceSequenceClip
)

// Event is one dispatch-ready action with an absolute beat time.
type Event struct {
	Beat       timing.Beat
	Kind       DispatchKind
	Source     SourceKind
	EntityName string // pattern/melody/sequence/fade name the event originated from
	Index      int    // position within the entity's event/note list
	Voice      string
	GroupPath  string
	Note       int
	Velocity   float64
	Params     map[string]float64

	// Populated only for DispatchParamSet events produced by a running fade.
	TargetKind  session.FadeTargetKind
	TargetName  string
	TargetParam string
	Value       float64
}

// sortEvents orders events per spec.md §4.4's deterministic tie-break
// chain: absolute beat, then dispatch-kind rank, then source-kind rank,
// then entity name, then index.
func sortEvents(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		a, b := events[i], events[j]
		if a.Beat != b.Beat {
			return a.Beat < b.Beat
		}
		if pa, pb := dispatchPriority(a.Kind), dispatchPriority(b.Kind); pa != pb {
			return pa < pb
		}
		if a.Source != b.Source {
			return a.Source < b.Source
		}
		if a.EntityName != b.EntityName {
			return a.EntityName < b.EntityName
		}
		return a.Index < b.Index
	})
}
