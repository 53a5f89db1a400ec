package engine

// Backend is the synthesis-engine side-effect surface the state manager
// calls into synchronously while applying a mutation (spec.md §4.3:
// "Mutations that produce side effects on the synthesis engine ... are
// synchronous from the caller's point of view"). internal/oscdispatch
// implements this interface; tests use an in-memory fake.
//
// Every method may return a *apierr.Error (typically BackendError); the
// manager propagates it on the caller's reply channel without mutating
// session state.
type Backend interface {
	CreateGroup(path, parent string) error
	FreeGroup(path string) error

	CreateVoice(name, groupPath string, polyphony int) error
	FreeVoice(name string) error

	LoadSample(id, path string) (bufferID int64, err error)
	UnloadSample(id string, bufferID int64) error

	RegisterSynthDef(name, source string) error
	UnregisterSynthDef(name string) error

	CreateEffect(id, targetGroup string, position int) error
	FreeEffect(id string) error

	// TriggerNoteOn/TriggerNoteOff drive the immediate (non-scheduled)
	// note path used by MIDI input and preview (spec.md §4.8).
	TriggerNoteOn(voiceName string, note int, velocity float64) (nodeID int64, err error)
	TriggerNoteOff(voiceName string, note int, nodeID int64) error
}

// noopBackend issues no synthesis-engine commands at all; every call
// reports success. Eval uses it to validate a batch of sub-mutations
// against a scratch state clone without sending any real OSC traffic,
// so a batch that fails partway through never has partial side effects
// to undo.
type noopBackend struct{}

func (noopBackend) CreateGroup(path, parent string) error                   { return nil }
func (noopBackend) FreeGroup(path string) error                             { return nil }
func (noopBackend) CreateVoice(name, groupPath string, polyphony int) error  { return nil }
func (noopBackend) FreeVoice(name string) error                             { return nil }
func (noopBackend) LoadSample(id, path string) (int64, error)               { return 0, nil }
func (noopBackend) UnloadSample(id string, bufferID int64) error            { return nil }
func (noopBackend) RegisterSynthDef(name, source string) error              { return nil }
func (noopBackend) UnregisterSynthDef(name string) error                    { return nil }
func (noopBackend) CreateEffect(id, targetGroup string, position int) error { return nil }
func (noopBackend) FreeEffect(id string) error                              { return nil }
func (noopBackend) TriggerNoteOn(voiceName string, note int, velocity float64) (int64, error) {
	return 0, nil
}
func (noopBackend) TriggerNoteOff(voiceName string, note int, nodeID int64) error { return nil }
