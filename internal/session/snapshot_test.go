package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewStateHasRootGroup(t *testing.T) {
	s := NewState()
	snap := s.Freeze()
	g, ok := snap.Group(RootGroupPath)
	assert.True(t, ok)
	assert.Equal(t, RootGroupPath, g.Path)
	assert.Equal(t, 1.0, g.Gain)
}

func TestFreezeIsADeepCopy(t *testing.T) {
	s := NewState()
	s.Voices["kick"] = &Voice{Name: "kick", GroupPath: RootGroupPath, Polyphony: 4, ParamDefaults: map[string]float64{"gain": 1}}
	snap := s.Freeze()

	// mutate the live state after freezing; the snapshot must not see it
	s.Voices["kick"].Polyphony = 99
	s.Voices["kick"].ParamDefaults["gain"] = 0

	v, ok := snap.Voice("kick")
	assert.True(t, ok)
	assert.Equal(t, 4, v.Polyphony)
	assert.Equal(t, 1.0, v.ParamDefaults["gain"])
}

func TestEffectiveMuteNoSolo(t *testing.T) {
	s := NewState()
	s.Groups["main/drums"] = &Group{Path: "main/drums", Name: "drums", Parent: "main", Params: map[string]float64{}}
	snap := s.Freeze()

	assert.False(t, snap.EffectiveGroupMute("main"))
	assert.False(t, snap.EffectiveGroupMute("main/drums"))
}

func TestEffectiveMuteOwnFlag(t *testing.T) {
	s := NewState()
	s.Groups["main/drums"] = &Group{Path: "main/drums", Parent: "main", Muted: true, Params: map[string]float64{}}
	snap := s.Freeze()

	assert.True(t, snap.EffectiveGroupMute("main/drums"))
	assert.False(t, snap.EffectiveGroupMute("main"))
}

func TestEffectiveMuteSessionWideSolo(t *testing.T) {
	s := NewState()
	s.Groups["main/drums"] = &Group{Path: "main/drums", Parent: "main", Params: map[string]float64{}}
	s.Groups["main/bass"] = &Group{Path: "main/bass", Parent: "main", Params: map[string]float64{}}
	s.Groups["main/drums/kick"] = &Group{Path: "main/drums/kick", Parent: "main/drums", Params: map[string]float64{}}
	s.Groups["main/drums"].Soloed = true
	snap := s.Freeze()

	// soloed group itself: audible
	assert.False(t, snap.EffectiveGroupMute("main/drums"))
	// descendant of soloed group: audible (it feeds the soloed bus)
	assert.False(t, snap.EffectiveGroupMute("main/drums/kick"))
	// ancestor of soloed group: audible (signal must pass through to output)
	assert.False(t, snap.EffectiveGroupMute("main"))
	// unrelated sibling: muted
	assert.True(t, snap.EffectiveGroupMute("main/bass"))
}

func TestEntitiesReferencingGroup(t *testing.T) {
	s := NewState()
	s.Groups["main/drums"] = &Group{Path: "main/drums", Parent: "main", Params: map[string]float64{}}
	s.Voices["kick"] = &Voice{Name: "kick", GroupPath: "main/drums"}
	snap := s.Freeze()

	assert.True(t, snap.EntitiesReferencingGroup("main/drums"))
	assert.True(t, snap.EntitiesReferencingGroup("main")) // "main/drums" is its child

	delete(s.Voices, "kick")
	delete(s.Groups, "main/drums")
	snap2 := s.Freeze()
	assert.False(t, snap2.EntitiesReferencingGroup("main/drums"))
}
