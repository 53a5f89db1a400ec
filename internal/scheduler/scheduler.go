package scheduler

import (
	"fmt"
	"math"

	"github.com/trusch/vibelang/internal/session"
	"github.com/trusch/vibelang/internal/timing"
)

// ControlKind names the entity kind of a start/stop state transition,
// mirroring the three things that move through the stopped/queued-start/
// playing/queued-stop state machine (spec.md §4.4).
type ControlKind int

const (
	ControlPattern ControlKind = iota
	ControlMelody
	ControlSequence
)

// Transition is a status-machine boundary crossing the scheduler detected
// this tick (queued-start -> playing, queued-stop -> stopped). The caller
// (internal/transport) is responsible for posting it back to the state
// manager; the scheduler itself never mutates session state.
type Transition struct {
	Kind ControlKind
	Name string
	From session.PlaybackStatus
	To   session.PlaybackStatus
}

// Result is everything one Tick produced.
type Result struct {
	Events      []Event
	Transitions []Transition
}

const fadeEpsilon = 1e-6

// Scheduler owns the small amount of state that must persist between ticks:
// per-entity emission cursors (so loop unrolling never repeats or skips an
// event across tick boundaries), per-entity open-note bookkeeping (so a
// stop can release whatever it left sounding) and the last value sampled
// for each active fade. None of this is session state; it is scratch the
// scheduler alone reads and writes.
type Scheduler struct {
	cursors       map[string]timing.Beat
	starts        map[string]timing.Beat
	openNotes     map[string]map[int]timing.Beat
	lastFadeValue map[string]float64
	lastFadeSeen  map[string]bool
}

// New builds an empty scheduler.
func New() *Scheduler {
	return &Scheduler{
		cursors:       map[string]timing.Beat{},
		starts:        map[string]timing.Beat{},
		openNotes:     map[string]map[int]timing.Beat{},
		lastFadeValue: map[string]float64{},
		lastFadeSeen:  map[string]bool{},
	}
}

// Tick computes the events to dispatch and any status transitions for the
// window [last-emitted-horizon, currentBeat+lookahead) (spec.md §4.4).
func (sch *Scheduler) Tick(snap *session.Snapshot, currentBeat, lookahead timing.Beat) Result {
	windowEnd := currentBeat + lookahead
	var events []Event
	var transitions []Transition

	for name, p := range snap.Patterns {
		key := "pattern:" + name
		if p.Status == session.StatusQueuedStart && currentBeat >= p.ScheduledStart {
			transitions = append(transitions, Transition{ControlPattern, name, session.StatusQueuedStart, session.StatusPlaying})
		}
		active, end := sch.activeWindow(p.Status, p.ScheduledStop, currentBeat, windowEnd)
		if p.Status == session.StatusQueuedStop && currentBeat >= p.ScheduledStop {
			transitions = append(transitions, Transition{ControlPattern, name, session.StatusQueuedStop, session.StatusStopped})
			events = append(events, sch.releaseOpenNotes(key, SourcePattern, name, p.Voice, p.GroupPath, currentBeat)...)
		}
		if !active {
			delete(sch.cursors, key)
			delete(sch.starts, key)
			continue
		}
		start := sch.effectiveStart(key, p.ScheduledStart)
		winStart := sch.cursors[key]
		if winStart < start {
			winStart = start
		}
		for i, e := range p.Events {
			for _, t := range unrollTimes(start, p.LoopBeats, e.Offset, winStart, end) {
				events = append(events, sch.patternEvent(key, p, name, i, e, t))
			}
		}
		sch.cursors[key] = end
	}

	for name, mel := range snap.Melodies {
		key := "melody:" + name
		if mel.Status == session.StatusQueuedStart && currentBeat >= mel.ScheduledStart {
			transitions = append(transitions, Transition{ControlMelody, name, session.StatusQueuedStart, session.StatusPlaying})
		}
		active, end := sch.activeWindow(mel.Status, mel.ScheduledStop, currentBeat, windowEnd)
		if mel.Status == session.StatusQueuedStop && currentBeat >= mel.ScheduledStop {
			transitions = append(transitions, Transition{ControlMelody, name, session.StatusQueuedStop, session.StatusStopped})
			events = append(events, sch.releaseOpenNotes(key, SourceMelody, name, mel.Voice, mel.GroupPath, currentBeat)...)
		}
		if !active {
			delete(sch.cursors, key)
			delete(sch.starts, key)
			continue
		}
		start := sch.effectiveStart(key, mel.ScheduledStart)
		winStart := sch.cursors[key]
		if winStart < start {
			winStart = start
		}
		for i, n := range mel.Notes {
			for _, t := range unrollTimes(start, mel.LoopBeats, n.Offset, winStart, end) {
				events = append(events, Event{
					Beat: t, Kind: DispatchNoteOn, Source: SourceMelody, EntityName: name, Index: i,
					Voice: mel.Voice, GroupPath: mel.GroupPath, Note: n.Pitch, Velocity: n.Velocity, Params: n.Params,
				})
				sch.markOpen(key, n.Pitch, t)
			}
			for _, t := range unrollTimes(start, mel.LoopBeats, n.Offset+n.Duration, winStart, end) {
				events = append(events, Event{
					Beat: t, Kind: DispatchNoteOff, Source: SourceMelody, EntityName: name, Index: i,
					Voice: mel.Voice, GroupPath: mel.GroupPath, Note: n.Pitch,
				})
				sch.markClosed(key, n.Pitch)
			}
		}
		sch.cursors[key] = end
	}

	for name, sq := range snap.Sequences {
		skey := "sequence:" + name
		if sq.Status == session.StatusQueuedStart && currentBeat >= sq.ScheduledStart {
			transitions = append(transitions, Transition{ControlSequence, name, session.StatusQueuedStart, session.StatusPlaying})
		}
		active, end := sch.activeWindow(sq.Status, sq.ScheduledStop, currentBeat, windowEnd)
		if sq.Status == session.StatusQueuedStop && currentBeat >= sq.ScheduledStop {
			transitions = append(transitions, Transition{ControlSequence, name, session.StatusQueuedStop, session.StatusStopped})
		}
		if !active {
			for idx := range sq.Clips {
				ckey := fmt.Sprintf("%s:clip%d", skey, idx)
				delete(sch.cursors, ckey)
				delete(sch.starts, ckey)
			}
			continue
		}
		start := sch.effectiveStart(skey, sq.ScheduledStart)
		for idx, c := range sq.Clips {
			ckey := fmt.Sprintf("%s:clip%d", skey, idx)
			winStart := sch.cursors[ckey]
			if seen, ok := sch.starts[ckey]; !ok || seen != sq.ScheduledStart {
				sch.starts[ckey] = sq.ScheduledStart
				winStart = start
			}
			for _, occ := range sch.clipOccurrences(start, sq.LoopBeats, c.StartBeat, c.LengthBeats, winStart, end) {
				events = append(events, sch.clipEvents(snap, name, c, occ.anchor, occ.start, occ.end)...)
			}
			sch.cursors[ckey] = end
		}
	}

	for id, f := range snap.Fades {
		value := timing.Sample(f.Curve, f.StartValue, f.EndValue, f.StartBeat, f.EndBeat, currentBeat)
		last, seen := sch.lastFadeValue[id], sch.lastFadeSeen[id]
		if seen && math.Abs(value-last) <= fadeEpsilon {
			continue
		}
		events = append(events, Event{
			Beat: currentBeat, Kind: DispatchParamSet, Source: SourcePattern, EntityName: id,
			TargetKind: f.Target.Kind, TargetName: f.Target.Name, TargetParam: f.Target.Param, Value: value,
		})
		sch.lastFadeValue[id] = value
		sch.lastFadeSeen[id] = true
	}

	events = sch.applyVoiceStealing(snap, events)
	sortEvents(events)
	return Result{Events: events, Transitions: transitions}
}

// activeWindow reports whether an entity should still be unrolled this
// tick and, if so, the exclusive end of its active window (windowEnd,
// clamped to a pending quantize-stop boundary).
func (sch *Scheduler) activeWindow(status session.PlaybackStatus, scheduledStop, currentBeat, windowEnd timing.Beat) (active bool, end timing.Beat) {
	switch status {
	case session.StatusPlaying:
		return true, windowEnd
	case session.StatusQueuedStop:
		if currentBeat >= scheduledStop {
			return false, scheduledStop
		}
		end = windowEnd
		if scheduledStop < end {
			end = scheduledStop
		}
		return true, end
	default:
		return false, 0
	}
}

// effectiveStart resets the cursor for key whenever the entity's scheduled
// start changes (a fresh Start after being stopped), so a restarted loop
// begins unrolling from beat zero again rather than from a stale horizon.
func (sch *Scheduler) effectiveStart(key string, scheduledStart timing.Beat) timing.Beat {
	if seen, ok := sch.starts[key]; !ok || seen != scheduledStart {
		sch.starts[key] = scheduledStart
		sch.cursors[key] = scheduledStart
	}
	return scheduledStart
}

func (sch *Scheduler) markOpen(key string, note int, at timing.Beat) {
	m, ok := sch.openNotes[key]
	if !ok {
		m = map[int]timing.Beat{}
		sch.openNotes[key] = m
	}
	m[note] = at
}

func (sch *Scheduler) markClosed(key string, note int) {
	if m, ok := sch.openNotes[key]; ok {
		delete(m, note)
	}
}

// releaseOpenNotes emits an explicit note-off for everything the entity
// left sounding when it stopped (spec.md §4.4: "at this point any
// still-sounding notes get note-off").
func (sch *Scheduler) releaseOpenNotes(key string, source SourceKind, name, voice, groupPath string, at timing.Beat) []Event {
	m, ok := sch.openNotes[key]
	if !ok || len(m) == 0 {
		return nil
	}
	var out []Event
	for note := range m {
		out = append(out, Event{Beat: at, Kind: DispatchNoteOff, Source: source, EntityName: name, Voice: voice, GroupPath: groupPath, Note: note})
	}
	delete(sch.openNotes, key)
	return out
}

func (sch *Scheduler) patternEvent(key string, p session.Pattern, name string, idx int, e session.PatternEvent, t timing.Beat) Event {
	ev := Event{Beat: t, Source: SourcePattern, EntityName: name, Index: idx, Voice: p.Voice, GroupPath: p.GroupPath, Params: e.Params}
	switch e.Kind {
	case session.EventNoteOn:
		ev.Kind = DispatchNoteOn
		ev.Velocity = paramOr(e.Params, "velocity", 1)
		sch.markOpen(key, 0, t)
	case session.EventNoteOff:
		ev.Kind = DispatchNoteOff
		sch.markClosed(key, 0)
	default:
		ev.Kind = DispatchTrigger
	}
	return ev
}

func paramOr(params map[string]float64, key string, def float64) float64 {
	if v, ok := params[key]; ok {
		return v
	}
	return def
}

// clipOccurrences returns every overlap, clamped to [winStart, winEnd), of
// a clip repeating every sqLoop beats starting at sqStart+cStart with
// length cLen (spec.md §4.4 "sequence composition").
func (sch *Scheduler) clipOccurrences(sqStart, sqLoop, cStart, cLen, winStart, winEnd timing.Beat) []struct{ anchor, start, end timing.Beat } {
	if sqLoop <= 0 || cLen <= 0 {
		return nil
	}
	k := int64(math.Floor(float64(winStart-sqStart-cStart)/float64(sqLoop))) - 1
	if k < 0 {
		k = 0
	}
	var out []struct{ anchor, start, end timing.Beat }
	for {
		clipStart := sqStart + timing.Beat(k)*sqLoop + cStart
		if clipStart >= winEnd {
			break
		}
		clipEnd := clipStart + cLen
		if clipEnd > winStart {
			s, e := clipStart, clipEnd
			if s < winStart {
				s = winStart
			}
			if e > winEnd {
				e = winEnd
			}
			if e > s {
				out = append(out, struct{ anchor, start, end timing.Beat }{clipStart, s, e})
			}
		}
		k++
	}
	return out
}

// clipEvents unrolls the referenced pattern or melody's own events inside
// one clip occurrence. anchor is the clip occurrence's true (unclamped)
// start beat, so the reference's own loop phase always restarts at zero
// when the clip begins, even when the reported [occStart, occEnd) window
// has been clamped to the scheduling window rather than the clip's full
// extent.
func (sch *Scheduler) clipEvents(snap *session.Snapshot, seqName string, c session.Clip, anchor, occStart, occEnd timing.Beat) []Event {
	var out []Event
	switch c.Kind {
	case session.ClipPattern:
		p, ok := snap.Pattern(c.Ref)
		if !ok {
			return nil
		}
		for i, e := range p.Events {
			for _, t := range unrollTimes(anchor, p.LoopBeats, e.Offset, occStart, occEnd) {
				ev := Event{Beat: t, Source: SourceSequenceClip, EntityName: seqName, Index: i, Voice: p.Voice, GroupPath: p.GroupPath, Params: e.Params}
				switch e.Kind {
				case session.EventNoteOn:
					ev.Kind = DispatchNoteOn
					ev.Velocity = paramOr(e.Params, "velocity", 1)
				case session.EventNoteOff:
					ev.Kind = DispatchNoteOff
				default:
					ev.Kind = DispatchTrigger
				}
				out = append(out, ev)
			}
		}
	case session.ClipMelody:
		mel, ok := snap.Melody(c.Ref)
		if !ok {
			return nil
		}
		for i, n := range mel.Notes {
			for _, t := range unrollTimes(anchor, mel.LoopBeats, n.Offset, occStart, occEnd) {
				out = append(out, Event{
					Beat: t, Kind: DispatchNoteOn, Source: SourceSequenceClip, EntityName: seqName, Index: i,
					Voice: mel.Voice, GroupPath: mel.GroupPath, Note: n.Pitch, Velocity: n.Velocity, Params: n.Params,
				})
			}
			for _, t := range unrollTimes(anchor, mel.LoopBeats, n.Offset+n.Duration, occStart, occEnd) {
				out = append(out, Event{
					Beat: t, Kind: DispatchNoteOff, Source: SourceSequenceClip, EntityName: seqName, Index: i,
					Voice: mel.Voice, GroupPath: mel.GroupPath, Note: n.Pitch,
				})
			}
		}
	}
	return out
}
