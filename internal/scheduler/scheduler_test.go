package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trusch/vibelang/internal/session"
	"github.com/trusch/vibelang/internal/timing"
)

func buildPlayingPattern(loop timing.Beat, offsets ...timing.Beat) *session.State {
	s := session.NewState()
	s.Voices["kick"] = &session.Voice{Name: "kick", GroupPath: session.RootGroupPath, Polyphony: 4, ActiveNotes: map[int]session.ActiveNote{}}
	var events []session.PatternEvent
	for _, o := range offsets {
		events = append(events, session.PatternEvent{Offset: o, Kind: session.EventTrigger, Params: map[string]float64{}})
	}
	s.Patterns["four"] = &session.Pattern{
		Name: "four", Voice: "kick", GroupPath: session.RootGroupPath, LoopBeats: loop, Events: events,
		Status: session.StatusPlaying, ScheduledStart: 0,
	}
	return s
}

func TestLoopUnrollingNoDuplicatesNoGapsAcrossTicks(t *testing.T) {
	s := buildPlayingPattern(4, 0, 1, 2, 3)
	sch := New()

	var all []timing.Beat
	beat := timing.Beat(0)
	const lookahead = timing.Beat(1.5)
	for beat < 16 {
		snap := s.Freeze()
		res := sch.Tick(snap, beat, lookahead)
		for _, ev := range res.Events {
			all = append(all, ev.Beat)
		}
		beat += 0.5
	}

	// every integer beat in [0, 16) must appear exactly once
	seen := map[timing.Beat]int{}
	for _, b := range all {
		seen[b]++
	}
	for b := timing.Beat(0); b < 16; b++ {
		assert.Equal(t, 1, seen[b], "beat %v should be dispatched exactly once", b)
	}
}

func TestQueuedStartTransitionsWhenBeatReached(t *testing.T) {
	s := session.NewState()
	s.Voices["kick"] = &session.Voice{Name: "kick", GroupPath: session.RootGroupPath, Polyphony: 1, ActiveNotes: map[int]session.ActiveNote{}}
	s.Patterns["p"] = &session.Pattern{
		Name: "p", Voice: "kick", GroupPath: session.RootGroupPath, LoopBeats: 4,
		Status: session.StatusQueuedStart, ScheduledStart: 8,
	}
	sch := New()

	res := sch.Tick(s.Freeze(), 4, 1)
	assert.Empty(t, res.Transitions)

	res = sch.Tick(s.Freeze(), 8, 1)
	require.Len(t, res.Transitions, 1)
	assert.Equal(t, ControlPattern, res.Transitions[0].Kind)
	assert.Equal(t, session.StatusPlaying, res.Transitions[0].To)
}

func TestQuantizeStopNoEventsAtOrAfterBoundary(t *testing.T) {
	s := buildPlayingPattern(4, 0, 1, 2, 3)
	s.Patterns["four"].Status = session.StatusQueuedStop
	s.Patterns["four"].ScheduledStop = 6
	sch := New()

	res := sch.Tick(s.Freeze(), 0, 8)
	for _, ev := range res.Events {
		assert.Less(t, float64(ev.Beat), 6.0)
	}
	assert.Empty(t, res.Transitions) // boundary not reached yet at currentBeat=0

	res = sch.Tick(s.Freeze(), 6, 1)
	require.Len(t, res.Transitions, 1)
	assert.Equal(t, session.StatusStopped, res.Transitions[0].To)
	for _, ev := range res.Events {
		assert.Less(t, float64(ev.Beat), 6.0)
	}
}

func TestVoiceStealingInjectsNoteOffForOldestNote(t *testing.T) {
	s := session.NewState()
	s.Voices["lead"] = &session.Voice{Name: "lead", GroupPath: session.RootGroupPath, Polyphony: 1, ActiveNotes: map[int]session.ActiveNote{}}
	s.Melodies["m"] = &session.Melody{
		Name: "m", Voice: "lead", GroupPath: session.RootGroupPath, LoopBeats: 4,
		Notes: []session.MelodyNote{
			{Offset: 0, Pitch: 60, Duration: 3, Velocity: 1},
			{Offset: 1, Pitch: 64, Duration: 3, Velocity: 1}, // overlaps note 60 while it's still sounding
		},
		Status: session.StatusPlaying, ScheduledStart: 0,
	}
	sch := New()
	res := sch.Tick(s.Freeze(), 0, 4)

	var stealOff, secondOn bool
	for _, ev := range res.Events {
		if ev.Kind == DispatchNoteOff && ev.Note == 60 && ev.Beat == 1 {
			stealOff = true
		}
		if ev.Kind == DispatchNoteOn && ev.Note == 64 && ev.Beat == 1 {
			secondOn = true
		}
	}
	assert.True(t, stealOff, "expected an implicit note-off for note 60 when note 64 steals its voice")
	assert.True(t, secondOn)
}

func TestFadeEmitsParamSetWhenValueChanges(t *testing.T) {
	s := session.NewState()
	s.Fades["f1"] = &session.Fade{
		ID: "f1", Target: session.FadeTarget{Kind: session.FadeTargetGroup, Name: session.RootGroupPath, Param: "gain"},
		StartValue: 0, EndValue: 1, StartBeat: 0, EndBeat: 4, Curve: timing.CurveLinear,
	}
	sch := New()

	res := sch.Tick(s.Freeze(), 2, 1)
	require.Len(t, res.Events, 1)
	assert.Equal(t, DispatchParamSet, res.Events[0].Kind)
	assert.InDelta(t, 0.5, res.Events[0].Value, 1e-9)

	// same beat again: value unchanged, no duplicate event
	res = sch.Tick(s.Freeze(), 2, 1)
	assert.Empty(t, res.Events)
}

func TestSequenceClipUnrollsReferencedPattern(t *testing.T) {
	s := session.NewState()
	s.Voices["kick"] = &session.Voice{Name: "kick", GroupPath: session.RootGroupPath, Polyphony: 4, ActiveNotes: map[int]session.ActiveNote{}}
	s.Patterns["four"] = &session.Pattern{
		Name: "four", Voice: "kick", GroupPath: session.RootGroupPath, LoopBeats: 4,
		Events: []session.PatternEvent{{Offset: 0, Kind: session.EventTrigger, Params: map[string]float64{}}},
		Status: session.StatusStopped,
	}
	s.Sequences["verse"] = &session.Sequence{
		Name: "verse", LoopBeats: 8,
		Clips:  []session.Clip{{Kind: session.ClipPattern, Ref: "four", StartBeat: 0, LengthBeats: 4}},
		Status: session.StatusPlaying, ScheduledStart: 0,
	}
	sch := New()

	res := sch.Tick(s.Freeze(), 0, 8)
	var beats []timing.Beat
	for _, ev := range res.Events {
		if ev.EntityName == "verse" {
			beats = append(beats, ev.Beat)
		}
	}
	assert.Contains(t, beats, timing.Beat(0))
	assert.NotContains(t, beats, timing.Beat(4)) // clip only occupies [0,4) of the 8-beat sequence loop
}
