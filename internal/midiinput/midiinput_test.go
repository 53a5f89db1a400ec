package midiinput

import (
	"context"
	"log"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trusch/vibelang/internal/engine"
	"github.com/trusch/vibelang/internal/session"
)

type fakeBackend struct{ nextNodeID int64 }

func (b *fakeBackend) CreateGroup(path, parent string) error                  { return nil }
func (b *fakeBackend) FreeGroup(path string) error                            { return nil }
func (b *fakeBackend) CreateVoice(name, groupPath string, polyphony int) error { return nil }
func (b *fakeBackend) FreeVoice(name string) error                            { return nil }
func (b *fakeBackend) LoadSample(id, path string) (int64, error)              { return 0, nil }
func (b *fakeBackend) UnloadSample(id string, bufferID int64) error           { return nil }
func (b *fakeBackend) RegisterSynthDef(name, source string) error             { return nil }
func (b *fakeBackend) UnregisterSynthDef(name string) error                   { return nil }
func (b *fakeBackend) CreateEffect(id, targetGroup string, position int) error { return nil }
func (b *fakeBackend) FreeEffect(id string) error                              { return nil }
func (b *fakeBackend) TriggerNoteOn(voice string, note int, vel float64) (int64, error) {
	return atomic.AddInt64(&b.nextNodeID, 1), nil
}
func (b *fakeBackend) TriggerNoteOff(voice string, note int, nodeID int64) error { return nil }

type testWriter struct{}

func (testWriter) Write(p []byte) (int, error) { return len(p), nil }

func newTestManager(t *testing.T) *engine.Manager {
	t.Helper()
	mgr := engine.NewManager(&fakeBackend{}, 64, log.New(testWriter{}, "", 0))
	mgr.Run(context.Background())
	t.Cleanup(mgr.Stop)
	return mgr
}

func TestNoteOnRoutesToVoiceBoundToDeviceAndChannel(t *testing.T) {
	mgr := newTestManager(t)
	require.NoError(t, mgr.Submit(engine.DefineVoice{
		Name: "lead", GroupPath: session.RootGroupPath, Polyphony: 4,
		MIDIBinding: &session.MIDIBinding{Device: "controller", Channel: 0},
	}))

	r := New(mgr, nil, log.New(testWriter{}, "", 0))
	r.noteOn("controller", 0, 60, 100)
	time.Sleep(20 * time.Millisecond)

	snap := mgr.Snapshot()
	v, ok := snap.Voice("lead")
	require.True(t, ok)
	_, sounding := v.ActiveNotes[60]
	assert.True(t, sounding)
}

func TestNoteOnIgnoredWhenNoBindingMatches(t *testing.T) {
	mgr := newTestManager(t)
	require.NoError(t, mgr.Submit(engine.DefineVoice{
		Name: "lead", GroupPath: session.RootGroupPath, Polyphony: 4,
		MIDIBinding: &session.MIDIBinding{Device: "controller", Channel: 0},
	}))

	r := New(mgr, nil, log.New(testWriter{}, "", 0))
	r.noteOn("controller", 1, 60, 100) // wrong channel
	time.Sleep(20 * time.Millisecond)

	snap := mgr.Snapshot()
	v, _ := snap.Voice("lead")
	assert.Empty(t, v.ActiveNotes)
}

func TestControlChangeScalesIntoTargetRange(t *testing.T) {
	mgr := newTestManager(t)
	require.NoError(t, mgr.Submit(engine.DefineGroup{Path: "main/synths", Parent: session.RootGroupPath}))

	binding := CCBinding{
		Device: "controller", Channel: 0, CC: 74,
		Target: session.FadeTarget{Kind: session.FadeTargetGroup, Name: "main/synths", Param: "gain"},
		Lo:     0, Hi: 1,
	}
	r := New(mgr, []CCBinding{binding}, log.New(testWriter{}, "", 0))
	r.controlChange("controller", 0, 74, 127)
	time.Sleep(20 * time.Millisecond)

	snap := mgr.Snapshot()
	g, ok := snap.Group("main/synths")
	require.True(t, ok)
	assert.InDelta(t, 1.0, g.Gain, 0.01)
}
