// Package session defines the VibeLang live-session data model: the
// entities of spec.md §3 and the invariants that govern their lifecycle.
// The package is intentionally inert — it holds no goroutines and no
// network clients; internal/engine is the sole writer of session.State,
// and everything else (scheduler, dispatcher, transport, REST API, MIDI
// input) only reads the Snapshot it publishes.
package session

import (
	"time"

	"github.com/trusch/vibelang/internal/timing"
)

// RootGroupPath is the name of the always-present root group (spec.md §3).
const RootGroupPath = "main"

// Transport is the session's singleton tempo/beat clock state.
type Transport struct {
	Tempo         timing.TempoMap
	TimeSig       timing.TimeSignature
	Running       bool
	Beat          timing.Beat
	StartWallTime time.Time
}

// Group is a mix-bus node in the group forest rooted at RootGroupPath.
type Group struct {
	Path    string
	Name    string
	Parent  string // empty only for the root group
	Muted   bool
	Soloed  bool
	Gain    float64
	Params  map[string]float64
}

// ActiveNote is one entry in a Voice's active-notes map: the synth node
// currently sounding a given MIDI note, and when it started (for
// oldest-first voice stealing, spec.md §3 invariant).
type ActiveNote struct {
	SynthNodeID int64
	StartBeat   timing.Beat
}

// MIDIBinding routes MIDI input on (Device, Channel) to a Voice (spec.md §4.8).
type MIDIBinding struct {
	Device  string
	Channel int
}

// Voice is a named instrument binding.
type Voice struct {
	Name          string
	SynthDefID    string // empty if sample-backed
	SampleID      string // empty if synth-backed
	GroupPath     string
	Polyphony     int
	BaseGain      float64
	Muted         bool
	ParamDefaults map[string]float64
	ActiveNotes   map[int]ActiveNote // note (MIDI semitone) -> allocation
	MIDIBinding   *MIDIBinding
}

// PlaybackStatus is the lifecycle state machine of a Pattern, Melody or
// Sequence (spec.md §3 invariant, §4.4 "State machine per pattern").
type PlaybackStatus int

const (
	StatusStopped PlaybackStatus = iota
	StatusQueuedStart
	StatusPlaying
	StatusQueuedStop
)

func (s PlaybackStatus) String() string {
	switch s {
	case StatusQueuedStart:
		return "queued-start"
	case StatusPlaying:
		return "playing"
	case StatusQueuedStop:
		return "queued-stop"
	default:
		return "stopped"
	}
}

// EventKind is the kind of a pattern event.
type EventKind int

const (
	EventTrigger EventKind = iota
	EventNoteOn
	EventNoteOff
)

func (k EventKind) String() string {
	switch k {
	case EventNoteOn:
		return "note-on"
	case EventNoteOff:
		return "note-off"
	default:
		return "trigger"
	}
}

// PatternEvent is one drum-like event inside a Pattern's loop.
type PatternEvent struct {
	Offset timing.Beat
	Kind   EventKind
	Params map[string]float64
}

// Pattern is a fixed-length looping sequence of trigger events bound to
// one voice (spec.md §3, glossary).
type Pattern struct {
	Name              string
	Voice             string
	GroupPath         string
	LoopBeats         timing.Beat
	Events            []PatternEvent
	Status            PlaybackStatus
	ScheduledStart    timing.Beat
	ScheduledStop     timing.Beat
	QuantizeStart     timing.Beat
	QuantizeStop      timing.Beat
}

// MelodyNote is one pitched note inside a Melody's loop.
type MelodyNote struct {
	Offset   timing.Beat
	Pitch    int
	Duration timing.Beat
	Velocity float64
	Params   map[string]float64
}

// Melody is a fixed-length looping sequence of pitched note events
// (spec.md §3, glossary).
type Melody struct {
	Name           string
	Voice          string
	GroupPath      string
	LoopBeats      timing.Beat
	Notes          []MelodyNote
	Status         PlaybackStatus
	ScheduledStart timing.Beat
	ScheduledStop  timing.Beat
	QuantizeStart  timing.Beat
	QuantizeStop   timing.Beat
}

// ClipKind names what a Sequence Clip refers to.
type ClipKind int

const (
	ClipPattern ClipKind = iota
	ClipMelody
)

// Clip places a pattern or melody on a Sequence's shared timeline.
type Clip struct {
	Kind        ClipKind
	Ref         string
	StartBeat   timing.Beat
	LengthBeats timing.Beat
}

// Sequence composes patterns and melodies as clips on a shared timeline
// (spec.md §3, glossary).
type Sequence struct {
	Name           string
	LoopBeats      timing.Beat
	Clips          []Clip
	Status         PlaybackStatus
	ScheduledStart timing.Beat
	ScheduledStop  timing.Beat
	QuantizeStart  timing.Beat
	QuantizeStop   timing.Beat
}

// Effect is a processing node inserted in a group's output chain.
type Effect struct {
	ID          string
	SynthDefID  string
	TargetGroup string
	Position    int
	Params      map[string]float64
}

// Sample is an audio buffer loaded into the synthesis engine.
type Sample struct {
	ID         string
	Path       string
	Channels   int
	SampleRate int64
	FrameCount int64
	BufferID   int64
}

// SynthDefOrigin names where a SynthDef came from.
type SynthDefOrigin int

const (
	OriginBuiltin SynthDefOrigin = iota
	OriginStdlib
	OriginUser
)

// SynthDef is a named, immutable synthesis-graph description.
type SynthDef struct {
	Name     string
	Params   map[string]float64
	Source   string
	Origin   SynthDefOrigin
}

// FadeTargetKind names what kind of entity a Fade's target parameter lives on.
type FadeTargetKind int

const (
	FadeTargetGroup FadeTargetKind = iota
	FadeTargetVoice
	FadeTargetEffect
)

// FadeTarget identifies the (entity, parameter) a Fade interpolates.
type FadeTarget struct {
	Kind  FadeTargetKind
	Name  string
	Param string
}

// Fade is a time-bounded interpolation of a target parameter (spec.md §3,
// §4.4).
type Fade struct {
	ID         string
	Target     FadeTarget
	StartValue float64
	EndValue   float64
	StartBeat  timing.Beat
	EndBeat    timing.Beat
	Curve      timing.Curve
}
