package oscdispatch

import (
	"fmt"
	"time"

	"github.com/hypebeast/go-osc/osc"

	"github.com/trusch/vibelang/internal/scheduler"
	"github.com/trusch/vibelang/internal/session"
	"github.com/trusch/vibelang/internal/timing"
)

// EventRecorder receives every OSC message a Dispatcher actually sends,
// with its beat and the absolute wall-clock time (Unix seconds) its bundle
// is timestamped for (spec.md §4.9).
// internal/recorder.Recorder implements this; Dispatch calls it only when
// one is attached via SetRecorder.
type EventRecorder interface {
	Record(beat timing.Beat, wallSeconds float64, msg *osc.Message)
}

// Dispatcher turns one scheduler.Tick's events into OSC bundles on the
// beat-accurate audio path (spec.md §4.5). It is driven by
// internal/transport, one Tick's Result at a time; it keeps its own
// voice+note -> node-id map so a later note-off event can address the
// same synth node its note-on created, independent of the state
// manager's own (slower, mailbox-serialized) bookkeeping.
type Dispatcher struct {
	client *osc.Client

	groupIDs *idSpace
	nodeIDs  *idSpace
	sounding map[string]int64 // "voice:note" -> node id, for this dispatcher's own note-off addressing

	recorder EventRecorder
}

// NewDispatcher shares a group-id space with a Backend (they must agree on
// which numeric group id a VibeLang group path maps to) and allocates its
// own node-id space, disjoint from the Backend's immediate-trigger range,
// so scheduled and MIDI/preview-triggered notes never collide on a node id.
func NewDispatcher(client *osc.Client, groupIDs *idSpace) *Dispatcher {
	return &Dispatcher{
		client:   client,
		groupIDs: groupIDs,
		nodeIDs:  newIDSpace(20000),
		sounding: map[string]int64{},
	}
}

// SetRecorder attaches (or, passed nil, detaches) an EventRecorder that
// observes every message this Dispatcher sends.
func (d *Dispatcher) SetRecorder(r EventRecorder) { d.recorder = r }

// Dispatch sends every event in evs, each as its own timestamped bundle
// (spec.md §6: "timestamps = now + lookahead-beats-as-wall-seconds"). It
// is fire-and-forget: send errors are returned to the caller for logging
// but never block or retry on the audio path.
func (d *Dispatcher) Dispatch(snap *session.Snapshot, evs []scheduler.Event, beatToWall func(timing.Beat) time.Time) []error {
	var errs []error
	for _, ev := range evs {
		msg := d.message(snap, ev)
		if msg == nil {
			continue
		}
		wall := beatToWall(ev.Beat)
		bundle := osc.NewBundle(wall)
		bundle.Append(msg)
		if err := d.client.Send(bundle); err != nil {
			errs = append(errs, err)
			continue
		}
		if d.recorder != nil {
			d.recorder.Record(ev.Beat, float64(wall.UnixNano())/1e9, msg)
		}
	}
	return errs
}

func (d *Dispatcher) message(snap *session.Snapshot, ev scheduler.Event) *osc.Message {
	switch ev.Kind {
	case scheduler.DispatchNoteOn:
		return d.noteOn(snap, ev)
	case scheduler.DispatchNoteOff:
		return d.noteOff(ev)
	case scheduler.DispatchTrigger:
		return d.trigger(snap, ev)
	case scheduler.DispatchParamSet:
		return d.paramSet(ev)
	default:
		return nil
	}
}

func (d *Dispatcher) targetGroupID(groupPath string) int32 {
	if id, ok := d.groupIDs.lookup(groupPath); ok {
		return int32(id)
	}
	return int32(rootGroupID)
}

func (d *Dispatcher) noteOn(snap *session.Snapshot, ev scheduler.Event) *osc.Message {
	nodeID := d.nodeIDs.alloc()
	d.sounding[soundingKey(ev.Voice, ev.Note)] = nodeID

	msg := osc.NewMessage("/s_new")
	msg.Append(ev.Voice)
	msg.Append(int32(nodeID))
	msg.Append(int32(0))
	msg.Append(d.targetGroupID(ev.GroupPath))
	msg.Append("note")
	msg.Append(float32(ev.Note))
	msg.Append("velocity")
	msg.Append(float32(ev.Velocity))
	appendParams(msg, ev.Params)
	return msg
}

func (d *Dispatcher) noteOff(ev scheduler.Event) *osc.Message {
	key := soundingKey(ev.Voice, ev.Note)
	nodeID, ok := d.sounding[key]
	if !ok {
		return nil // already released (e.g. a duplicate stop-triggered release)
	}
	delete(d.sounding, key)
	msg := osc.NewMessage("/n_free")
	msg.Append(int32(nodeID))
	return msg
}

func (d *Dispatcher) trigger(snap *session.Snapshot, ev scheduler.Event) *osc.Message {
	nodeID := d.nodeIDs.alloc()
	msg := osc.NewMessage("/s_new")
	msg.Append(ev.Voice)
	msg.Append(int32(nodeID))
	msg.Append(int32(1)) // addAction: addToTail, fire-and-forget percussive trigger
	msg.Append(d.targetGroupID(ev.GroupPath))
	appendParams(msg, ev.Params)
	return msg
}

func (d *Dispatcher) paramSet(ev scheduler.Event) *osc.Message {
	switch ev.TargetKind {
	case session.FadeTargetGroup:
		msg := osc.NewMessage("/n_set")
		msg.Append(d.targetGroupID(ev.TargetName))
		msg.Append(ev.TargetParam)
		msg.Append(float32(ev.Value))
		return msg
	default:
		// Voice/effect targets address a node by name; scsynth resolves
		// /n_set by numeric node id only, so these go out as a name-keyed
		// control-bus set understood by the per-voice/per-effect synth.
		msg := osc.NewMessage("/n_set")
		msg.Append(ev.TargetName)
		msg.Append(ev.TargetParam)
		msg.Append(float32(ev.Value))
		return msg
	}
}

func appendParams(msg *osc.Message, params map[string]float64) {
	for k, v := range params {
		msg.Append(k)
		msg.Append(float32(v))
	}
}

func soundingKey(voice string, note int) string {
	return fmt.Sprintf("%s:%d", voice, note)
}
