package session

import "github.com/trusch/vibelang/internal/timing"

// State is the full mutable session record. Exactly one goroutine (the
// state-manager worker in internal/engine) ever writes to a State value;
// everyone else reads a Snapshot produced by Freeze.
type State struct {
	Transport Transport
	Groups    map[string]*Group
	Voices    map[string]*Voice
	Patterns  map[string]*Pattern
	Melodies  map[string]*Melody
	Sequences map[string]*Sequence
	Effects   map[string]*Effect
	Samples   map[string]*Sample
	SynthDefs map[string]*SynthDef
	Fades     map[string]*Fade
	Version   uint64
}

// NewState builds an initial session: a running-false transport at 120 BPM
// 4/4, and a single root group named "main".
func NewState() *State {
	return &State{
		Transport: Transport{
			Tempo:   timing.NewConstantTempoMap(120),
			TimeSig: timing.TimeSignature{Numerator: 4, Denominator: 4},
		},
		Groups: map[string]*Group{
			RootGroupPath: {Path: RootGroupPath, Name: RootGroupPath, Gain: 1.0, Params: map[string]float64{}},
		},
		Voices:    map[string]*Voice{},
		Patterns:  map[string]*Pattern{},
		Melodies:  map[string]*Melody{},
		Sequences: map[string]*Sequence{},
		Effects:   map[string]*Effect{},
		Samples:   map[string]*Sample{},
		SynthDefs: map[string]*SynthDef{},
		Fades:     map[string]*Fade{},
	}
}

// Freeze deep-copies the state into an immutable Snapshot carrying the
// current version counter (spec.md §4.2). Called by the state manager
// after each applied message (or small batch).
func (s *State) Freeze() *Snapshot {
	groups := make(map[string]Group, len(s.Groups))
	for k, g := range s.Groups {
		groups[k] = cloneGroup(*g)
	}
	voices := make(map[string]Voice, len(s.Voices))
	for k, v := range s.Voices {
		voices[k] = cloneVoice(*v)
	}
	patterns := make(map[string]Pattern, len(s.Patterns))
	for k, p := range s.Patterns {
		patterns[k] = clonePattern(*p)
	}
	melodies := make(map[string]Melody, len(s.Melodies))
	for k, m := range s.Melodies {
		melodies[k] = cloneMelody(*m)
	}
	sequences := make(map[string]Sequence, len(s.Sequences))
	for k, sq := range s.Sequences {
		sequences[k] = cloneSequence(*sq)
	}
	effects := make(map[string]Effect, len(s.Effects))
	for k, e := range s.Effects {
		effects[k] = cloneEffect(*e)
	}
	samples := make(map[string]Sample, len(s.Samples))
	for k, sm := range s.Samples {
		samples[k] = *sm
	}
	synthdefs := make(map[string]SynthDef, len(s.SynthDefs))
	for k, sd := range s.SynthDefs {
		synthdefs[k] = cloneSynthDef(*sd)
	}
	fades := make(map[string]Fade, len(s.Fades))
	for k, f := range s.Fades {
		fades[k] = *f
	}

	return &Snapshot{
		Version:   s.Version,
		Transport: cloneTransport(s.Transport),
		Groups:    groups,
		Voices:    voices,
		Patterns:  patterns,
		Melodies:  melodies,
		Sequences: sequences,
		Effects:   effects,
		Samples:   samples,
		SynthDefs: synthdefs,
		Fades:     fades,
	}
}

// Clone deep-copies the state itself (as opposed to Freeze, which copies
// into the immutable Snapshot value types). It gives the state manager a
// scratch copy to validate a batch of mutations against before committing
// any of them to the live state (spec.md §4.3's atomicity requirement for
// Eval batches).
func (s *State) Clone() *State {
	groups := make(map[string]*Group, len(s.Groups))
	for k, g := range s.Groups {
		cg := cloneGroup(*g)
		groups[k] = &cg
	}
	voices := make(map[string]*Voice, len(s.Voices))
	for k, v := range s.Voices {
		cv := cloneVoice(*v)
		voices[k] = &cv
	}
	patterns := make(map[string]*Pattern, len(s.Patterns))
	for k, p := range s.Patterns {
		cp := clonePattern(*p)
		patterns[k] = &cp
	}
	melodies := make(map[string]*Melody, len(s.Melodies))
	for k, mel := range s.Melodies {
		cm := cloneMelody(*mel)
		melodies[k] = &cm
	}
	sequences := make(map[string]*Sequence, len(s.Sequences))
	for k, sq := range s.Sequences {
		csq := cloneSequence(*sq)
		sequences[k] = &csq
	}
	effects := make(map[string]*Effect, len(s.Effects))
	for k, e := range s.Effects {
		ce := cloneEffect(*e)
		effects[k] = &ce
	}
	samples := make(map[string]*Sample, len(s.Samples))
	for k, sm := range s.Samples {
		csm := *sm
		samples[k] = &csm
	}
	synthdefs := make(map[string]*SynthDef, len(s.SynthDefs))
	for k, sd := range s.SynthDefs {
		csd := cloneSynthDef(*sd)
		synthdefs[k] = &csd
	}
	fades := make(map[string]*Fade, len(s.Fades))
	for k, f := range s.Fades {
		cf := *f
		fades[k] = &cf
	}
	return &State{
		Transport: cloneTransport(s.Transport),
		Groups:    groups,
		Voices:    voices,
		Patterns:  patterns,
		Melodies:  melodies,
		Sequences: sequences,
		Effects:   effects,
		Samples:   samples,
		SynthDefs: synthdefs,
		Fades:     fades,
		Version:   s.Version,
	}
}

// cloneTransport copies the tempo map's segment slice so a later
// AppendSegment on one copy (e.g. a validation-pass clone, or the live
// state after a Snapshot was handed out) can't reuse spare slice capacity
// and silently overwrite segments still visible through the other copy.
func cloneTransport(t Transport) Transport {
	segs := make([]timing.TempoSegment, len(t.Tempo.Segments))
	copy(segs, t.Tempo.Segments)
	t.Tempo.Segments = segs
	return t
}

func cloneParams(m map[string]float64) map[string]float64 {
	if m == nil {
		return map[string]float64{}
	}
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneGroup(g Group) Group {
	g.Params = cloneParams(g.Params)
	return g
}

func cloneVoice(v Voice) Voice {
	v.ParamDefaults = cloneParams(v.ParamDefaults)
	notes := make(map[int]ActiveNote, len(v.ActiveNotes))
	for k, n := range v.ActiveNotes {
		notes[k] = n
	}
	v.ActiveNotes = notes
	if v.MIDIBinding != nil {
		b := *v.MIDIBinding
		v.MIDIBinding = &b
	}
	return v
}

func clonePattern(p Pattern) Pattern {
	events := make([]PatternEvent, len(p.Events))
	for i, e := range p.Events {
		e.Params = cloneParams(e.Params)
		events[i] = e
	}
	p.Events = events
	return p
}

func cloneMelody(m Melody) Melody {
	notes := make([]MelodyNote, len(m.Notes))
	for i, n := range m.Notes {
		n.Params = cloneParams(n.Params)
		notes[i] = n
	}
	m.Notes = notes
	return m
}

func cloneSequence(sq Sequence) Sequence {
	clips := make([]Clip, len(sq.Clips))
	copy(clips, sq.Clips)
	sq.Clips = clips
	return sq
}

func cloneEffect(e Effect) Effect {
	e.Params = cloneParams(e.Params)
	return e
}

func cloneSynthDef(sd SynthDef) SynthDef {
	sd.Params = cloneParams(sd.Params)
	return sd
}
