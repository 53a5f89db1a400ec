package scheduler

import (
	"math"

	"github.com/trusch/vibelang/internal/session"
	"github.com/trusch/vibelang/internal/timing"
)

// unrollTimes returns every absolute beat time start+k*loop+offset (k >= 0
// integer) that falls in [winStart, winEnd) (spec.md §4.4 loop unrolling).
func unrollTimes(start, loop, offset, winStart, winEnd timing.Beat) []timing.Beat {
	if loop <= 0 {
		return nil
	}
	lo := winStart
	if start > lo {
		lo = start
	}
	k := int64(math.Ceil(float64(lo-start-offset) / float64(loop)))
	if k < 0 {
		k = 0
	}
	var out []timing.Beat
	for {
		t := start + timing.Beat(k)*loop + offset
		if t >= winEnd {
			break
		}
		if t >= winStart {
			out = append(out, t)
		}
		k++
	}
	return out
}

// applyVoiceStealing walks note-on/note-off events in their eventual
// dispatch order and, whenever a note-on would push a voice over its
// polyphony limit, injects an explicit note-off for that voice's oldest
// still-sounding note at the same beat (spec.md §4.4 "polyphony and voice
// stealing"). It projects forward from each voice's current active-notes
// snapshot so that several note-ons within one lookahead window interact
// correctly even though the state manager has not yet observed any of
// them.
func (sch *Scheduler) applyVoiceStealing(snap *session.Snapshot, events []Event) []Event {
	ordered := make([]Event, len(events))
	copy(ordered, events)
	sortEvents(ordered)

	projected := map[string]map[int]timing.Beat{}
	seedFor := func(voice string) map[int]timing.Beat {
		if m, ok := projected[voice]; ok {
			return m
		}
		m := map[int]timing.Beat{}
		if v, ok := snap.Voice(voice); ok {
			for note, alloc := range v.ActiveNotes {
				m[note] = alloc.StartBeat
			}
		}
		projected[voice] = m
		return m
	}

	var stolen []Event
	for _, ev := range ordered {
		if ev.Voice == "" {
			continue
		}
		notes := seedFor(ev.Voice)
		switch ev.Kind {
		case DispatchNoteOff:
			delete(notes, ev.Note)
		case DispatchNoteOn:
			poly := 1
			if v, ok := snap.Voice(ev.Voice); ok && v.Polyphony > 0 {
				poly = v.Polyphony
			}
			if len(notes) >= poly {
				oldestNote, oldestBeat, first := -1, timing.Beat(0), true
				for n, b := range notes {
					if n == ev.Note {
						continue
					}
					if first || b < oldestBeat {
						oldestNote, oldestBeat, first = n, b, false
					}
				}
				if oldestNote >= 0 {
					stolen = append(stolen, Event{
						Beat: ev.Beat, Kind: DispatchNoteOff, Source: ev.Source, EntityName: ev.EntityName,
						Voice: ev.Voice, GroupPath: ev.GroupPath, Note: oldestNote,
					})
					delete(notes, oldestNote)
				}
			}
			notes[ev.Note] = ev.Beat
		}
	}
	return append(events, stolen...)
}
