package engine

import (
	"github.com/trusch/vibelang/internal/session"
	"github.com/trusch/vibelang/internal/timing"
)

// Message is anything that can be enqueued on the state manager's mailbox
// (spec.md §4.3). Messages from a single source apply in arrival order;
// across sources they interleave by mailbox arrival order.
type Message interface {
	apply(m *Manager) error
}

// EntityKind names the kind of a start/stop/delete target.
type EntityKind int

const (
	EntityPattern EntityKind = iota
	EntityMelody
	EntitySequence
)

// MuteTargetKind names what a Mute/Solo message targets.
type MuteTargetKind int

const (
	MuteTargetGroup MuteTargetKind = iota
	MuteTargetVoice
)

type SetTempo struct{ BPM float64 }

type SetTimeSignature struct {
	Numerator, Denominator int
}

type DefineGroup struct {
	Path   string
	Parent string
	Gain   float64
}

type DeleteGroup struct{ Path string }

type DefineVoice struct {
	Name          string
	SynthDefID    string
	SampleID      string
	GroupPath     string
	Polyphony     int
	BaseGain      float64
	ParamDefaults map[string]float64
	MIDIBinding   *session.MIDIBinding
}

type DeleteVoice struct{ Name string }

type DefinePattern struct {
	Name      string
	Voice     string
	GroupPath string
	LoopBeats timing.Beat
	Events    []session.PatternEvent
}

type DeletePattern struct{ Name string }

type DefineMelody struct {
	Name      string
	Voice     string
	GroupPath string
	LoopBeats timing.Beat
	Notes     []session.MelodyNote
}

type DeleteMelody struct{ Name string }

type DefineSequence struct {
	Name      string
	LoopBeats timing.Beat
	Clips     []session.Clip
}

type DeleteSequence struct{ Name string }

// Start moves a pattern/melody/sequence through stopped -> queued-start ->
// playing (spec.md §4.3, §4.4).
type Start struct {
	Kind     EntityKind
	Name     string
	Quantize timing.Beat // 0 means immediate
}

// Stop moves a pattern/melody/sequence through playing -> queued-stop ->
// stopped.
type Stop struct {
	Kind     EntityKind
	Name     string
	Quantize timing.Beat
}

type SetParam struct {
	Target    session.FadeTarget
	Value     float64
	FadeBeats timing.Beat
	Curve     timing.Curve
}

type Mute struct {
	Kind MuteTargetKind
	Name string
}

type Unmute struct {
	Kind MuteTargetKind
	Name string
}

type Solo struct {
	Kind MuteTargetKind
	Name string
}

type Unsolo struct {
	Kind MuteTargetKind
	Name string
}

// NoteOn is the immediate (non-scheduled) note-on path used by MIDI input
// and script/REST preview (spec.md §4.8).
type NoteOn struct {
	Voice    string
	Note     int
	Velocity float64
}

// NoteOff is the immediate counterpart to NoteOn.
type NoteOff struct {
	Voice string
	Note  int
}

type LoadSample struct {
	ID   string
	Path string
}

type UnloadSample struct{ ID string }

type RegisterSynthDef struct {
	Name   string
	Params map[string]float64
	Source string
	Origin session.SynthDefOrigin
}

type UnregisterSynthDef struct{ Name string }

type DefineEffect struct {
	ID          string
	SynthDefID  string
	TargetGroup string
	Position    int
	Params      map[string]float64
}

type DeleteEffect struct{ ID string }

type StartTransport struct{}

type StopTransport struct{}

// SeekTransport sets the beat position directly; only valid while stopped
// (spec.md §3 invariant).
type SeekTransport struct{ Beat timing.Beat }

// Eval applies a batch of messages as a single atomic unit — the core's
// boundary for "Eval-script fragments" (spec.md §4.3): the scripting
// language itself is out of scope, so a script fragment reaches the core
// already decoded into a slice of the same messages the REST API builds.
type Eval struct {
	Mutations []Message
}

// apply validates the whole batch against a scratch clone of the live
// state before touching anything real: every mutation in a batch applies
// atomically relative to the others, and a failure leaves the live state
// untouched. The validation
// pass runs against noopBackend, so a mutation late in the batch failing
// never leaves an earlier mutation's real CreateGroup/CreateVoice/etc.
// OSC side effect stranded with no compensating undo. Only once every
// sub-mutation validates clean does the batch get replayed for real,
// against the live state and backend, in the same order.
func (msg Eval) apply(m *Manager) error {
	validator := &Manager{backend: noopBackend{}, logger: m.logger, state: m.state.Clone()}
	for _, mut := range msg.Mutations {
		// Returned as-is (not wrapped) so apierr.As still recognizes its
		// Kind — apierr.As type-asserts rather than unwrapping.
		if err := mut.apply(validator); err != nil {
			return err
		}
	}

	for i, mut := range msg.Mutations {
		if err := mut.apply(m); err != nil {
			// The validation pass above should make this unreachable; it
			// would mean the real backend rejected something the scratch
			// pass accepted. Earlier mutations in this batch already
			// issued real backend side effects with no undo path, so this
			// is logged rather than silently swallowed.
			m.logger.Printf("engine: eval mutation %d of %d failed commit after validating clean: %v", i+1, len(msg.Mutations), err)
			return err
		}
	}
	return nil
}
