// Package midiinput reads MIDI input ports and routes note-on/note-off/CC
// events into the state manager's immediate (non-scheduled) message path
// (spec.md §4.8). It is grounded on schollz-221e's internal/midiconnector
// package, which opens gomidi/midi/v2 ports for MIDI *output*; this
// package adapts the same device-lookup/open/close idiom to *input*
// (midi.ListenTo instead of drivers.Out.Send).
package midiinput

import (
	"log"
	"strings"
	"sync"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	"github.com/trusch/vibelang/internal/engine"
	"github.com/trusch/vibelang/internal/session"
)

// CCBinding maps one MIDI CC number on one device/channel to a session
// parameter target (spec.md §4.8: "CC values optionally map to
// parameter-sets"). lo/hi rescale the CC's 0-127 range onto the target
// parameter's range; session.State has no entity of its own for this
// mapping (it is a routing concern, not session data), so bindings are
// configured directly on the Router rather than stored as session state.
type CCBinding struct {
	Device  string
	Channel uint8
	CC      uint8
	Target  session.FadeTarget
	Lo, Hi  float64
}

// Router owns one open input port per configured device and routes its
// messages to the state manager, resolving the target voice by scanning
// the latest snapshot for a matching (Device, Channel) MIDIBinding each
// time (spec.md §4.8's binding map lives on the Voice entity itself, so
// there is nothing else for the router to cache beyond the open ports).
type Router struct {
	manager *engine.Manager
	logger  *log.Logger

	ccBindings []CCBinding

	mu    sync.Mutex
	stops []func()
}

// New builds a Router against manager, with the given CC->parameter
// bindings (may be empty).
func New(manager *engine.Manager, ccBindings []CCBinding, logger *log.Logger) *Router {
	if logger == nil {
		logger = log.Default()
	}
	return &Router{manager: manager, ccBindings: ccBindings, logger: logger}
}

// Devices lists the names of available MIDI input ports.
func Devices() []string {
	var names []string
	for _, in := range midi.GetInPorts() {
		names = append(names, in.String())
	}
	return names
}

func findDevice(name string) (drivers.In, error) {
	in, err := midi.FindInPort(name)
	if err == nil {
		return in, nil
	}
	// fall back to prefix, then contains, matching on a truncated name,
	// mirroring midiconnector_other.go's filterName for controllers whose
	// USB-MIDI name varies by OS.
	words := strings.Fields(name)
	if len(words) > 3 {
		words = words[:3]
	}
	truncated := strings.ToLower(strings.Join(words, " "))
	ports := midi.GetInPorts()
	for i, n := range ports {
		if strings.HasPrefix(strings.ToLower(n.String()), truncated) {
			return ports[i], nil
		}
	}
	for i, n := range ports {
		if strings.Contains(strings.ToLower(n.String()), truncated) {
			return ports[i], nil
		}
	}
	return nil, err
}

// Open starts listening on device and routes its events until Close is
// called. Safe to call once per distinct device name.
func (r *Router) Open(device string) error {
	in, err := findDevice(device)
	if err != nil {
		return err
	}
	if err := in.Open(); err != nil {
		return err
	}
	stop, err := midi.ListenTo(in, func(msg midi.Message, timestampms int32) {
		r.handle(device, msg)
	})
	if err != nil {
		in.Close()
		return err
	}
	r.mu.Lock()
	r.stops = append(r.stops, stop)
	r.mu.Unlock()
	return nil
}

// Close stops every open input listener.
func (r *Router) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, stop := range r.stops {
		stop()
	}
	r.stops = nil
}

func (r *Router) handle(device string, msg midi.Message) {
	var ch, key, vel, cc, val uint8
	switch {
	case msg.GetNoteOn(&ch, &key, &vel):
		r.noteOn(device, ch, key, vel)
	case msg.GetNoteOff(&ch, &key, &vel):
		r.noteOff(device, ch, key)
	case msg.GetControlChange(&ch, &cc, &val):
		r.controlChange(device, ch, cc, val)
	}
}

func (r *Router) voiceFor(device string, channel uint8) (string, bool) {
	snap := r.manager.Snapshot()
	for name, v := range snap.Voices {
		if v.MIDIBinding != nil && v.MIDIBinding.Device == device && v.MIDIBinding.Channel == int(channel) {
			return name, true
		}
	}
	return "", false
}

func (r *Router) noteOn(device string, channel, key, velocity uint8) {
	voice, ok := r.voiceFor(device, channel)
	if !ok {
		return
	}
	r.manager.SubmitAsync(engine.NoteOn{Voice: voice, Note: int(key), Velocity: float64(velocity) / 127.0})
}

func (r *Router) noteOff(device string, channel, key uint8) {
	voice, ok := r.voiceFor(device, channel)
	if !ok {
		return
	}
	r.manager.SubmitAsync(engine.NoteOff{Voice: voice, Note: int(key)})
}

func (r *Router) controlChange(device string, channel, cc, value uint8) {
	for _, b := range r.ccBindings {
		if b.Device != device || b.Channel != channel || b.CC != cc {
			continue
		}
		scaled := b.Lo + (b.Hi-b.Lo)*(float64(value)/127.0)
		r.manager.SubmitAsync(engine.SetParam{Target: b.Target, Value: scaled})
	}
}
