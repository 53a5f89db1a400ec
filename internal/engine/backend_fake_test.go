package engine

import "sync/atomic"

// fakeBackend is an in-memory Backend used by engine tests; it never talks
// to a real scsynth. A zero value accepts everything.
type fakeBackend struct {
	nextNodeID  int64
	nextBuffer  int64
	failCreate  bool
	failSamples bool
}

func (b *fakeBackend) CreateGroup(path, parent string) error { return nil }
func (b *fakeBackend) FreeGroup(path string) error            { return nil }

func (b *fakeBackend) CreateVoice(name, groupPath string, polyphony int) error {
	if b.failCreate {
		return errFakeBackend
	}
	return nil
}
func (b *fakeBackend) FreeVoice(name string) error { return nil }

func (b *fakeBackend) LoadSample(id, path string) (int64, error) {
	if b.failSamples {
		return 0, errFakeBackend
	}
	return atomic.AddInt64(&b.nextBuffer, 1), nil
}
func (b *fakeBackend) UnloadSample(id string, bufferID int64) error { return nil }

func (b *fakeBackend) RegisterSynthDef(name, source string) error { return nil }
func (b *fakeBackend) UnregisterSynthDef(name string) error       { return nil }

func (b *fakeBackend) CreateEffect(id, targetGroup string, position int) error { return nil }
func (b *fakeBackend) FreeEffect(id string) error                              { return nil }

func (b *fakeBackend) TriggerNoteOn(voiceName string, note int, velocity float64) (int64, error) {
	return atomic.AddInt64(&b.nextNodeID, 1), nil
}
func (b *fakeBackend) TriggerNoteOff(voiceName string, note int, nodeID int64) error { return nil }

type fakeBackendErr string

func (e fakeBackendErr) Error() string { return string(e) }

const errFakeBackend = fakeBackendErr("fake backend failure")
