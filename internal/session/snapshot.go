package session

import "strings"

// Snapshot is an immutable, versioned view of the session published by the
// state manager (spec.md §4.2, §4.3). Readers (scheduler, dispatcher,
// control plane) never see a snapshot mutate underneath them.
type Snapshot struct {
	Version   uint64
	Transport Transport
	Groups    map[string]Group
	Voices    map[string]Voice
	Patterns  map[string]Pattern
	Melodies  map[string]Melody
	Sequences map[string]Sequence
	Effects   map[string]Effect
	Samples   map[string]Sample
	SynthDefs map[string]SynthDef
	Fades     map[string]Fade
}

// Group looks up a group by path.
func (s *Snapshot) Group(path string) (Group, bool) {
	g, ok := s.Groups[path]
	return g, ok
}

// Voice looks up a voice by name.
func (s *Snapshot) Voice(name string) (Voice, bool) {
	v, ok := s.Voices[name]
	return v, ok
}

// Pattern looks up a pattern by name.
func (s *Snapshot) Pattern(name string) (Pattern, bool) {
	p, ok := s.Patterns[name]
	return p, ok
}

// Melody looks up a melody by name.
func (s *Snapshot) Melody(name string) (Melody, bool) {
	m, ok := s.Melodies[name]
	return m, ok
}

// Sequence looks up a sequence by name.
func (s *Snapshot) Sequence(name string) (Sequence, bool) {
	sq, ok := s.Sequences[name]
	return sq, ok
}

// isAncestorOrSelf reports whether anc is path itself or a path-prefix
// ancestor of it, using "/" as the hierarchy separator.
func isAncestorOrSelf(anc, path string) bool {
	if anc == path {
		return true
	}
	return strings.HasPrefix(path, anc+"/")
}

// soloActive reports whether any group in the snapshot is soloed.
func (s *Snapshot) soloActive() bool {
	for _, g := range s.Groups {
		if g.Soloed {
			return true
		}
	}
	return false
}

// audibleBySolo implements the session-wide solo resolution chosen for
// spec.md's open question: with no solo active every group is audible;
// with a solo active, a group is audible only if it lies on the same
// ancestor/descendant lineage as some soloed group (so the soloed
// group's mix-bus signal path stays open), see SPEC_FULL.md.
func (s *Snapshot) audibleBySolo(path string) bool {
	if !s.soloActive() {
		return true
	}
	for gp, g := range s.Groups {
		if !g.Soloed {
			continue
		}
		if isAncestorOrSelf(gp, path) || isAncestorOrSelf(path, gp) {
			return true
		}
	}
	return false
}

// EffectiveGroupMute reports whether a group should be silent right now,
// combining its own mute flag with session-wide solo resolution.
func (s *Snapshot) EffectiveGroupMute(path string) bool {
	if g, ok := s.Groups[path]; ok && g.Muted {
		return true
	}
	return !s.audibleBySolo(path)
}

// EffectiveVoiceMute reports whether a voice should be silent right now.
func (s *Snapshot) EffectiveVoiceMute(name string) bool {
	v, ok := s.Voices[name]
	if !ok {
		return true
	}
	if v.Muted {
		return true
	}
	return s.EffectiveGroupMute(v.GroupPath)
}

// GroupChildren returns the paths of groups whose Parent is path.
func (s *Snapshot) GroupChildren(path string) []string {
	var children []string
	for p, g := range s.Groups {
		if g.Parent == path {
			children = append(children, p)
		}
	}
	return children
}

// VoicesBoundTo returns the names of voices whose GroupPath is path.
func (s *Snapshot) VoicesBoundTo(path string) []string {
	var names []string
	for n, v := range s.Voices {
		if v.GroupPath == path {
			names = append(names, n)
		}
	}
	return names
}

// EntitiesReferencingGroup reports whether any voice, pattern, melody or
// effect still refers to the given group path (spec.md §8 property 5).
func (s *Snapshot) EntitiesReferencingGroup(path string) bool {
	for _, v := range s.Voices {
		if v.GroupPath == path {
			return true
		}
	}
	for _, p := range s.Patterns {
		if p.GroupPath == path {
			return true
		}
	}
	for _, m := range s.Melodies {
		if m.GroupPath == path {
			return true
		}
	}
	for _, e := range s.Effects {
		if e.TargetGroup == path {
			return true
		}
	}
	for _, g := range s.Groups {
		if g.Parent == path {
			return true
		}
	}
	return false
}
