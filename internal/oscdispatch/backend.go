// Package oscdispatch is the synthesis-engine side of the runtime: it
// implements engine.Backend (the state manager's synchronous side-effect
// calls) and a Dispatcher that turns scheduler.Event values into OSC
// bundles with absolute engine timestamps (spec.md §4.5). All network
// writes are fire-and-forget UDP, matching schollz-221e's
// internal/model.go OSC client usage (osc.NewClient/osc.NewMessage/
// Client.Send, errors logged rather than propagated to the audio path).
package oscdispatch

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/hypebeast/go-osc/osc"

	"github.com/trusch/vibelang/internal/apierr"
)

// rootGroupID is SuperCollider's default group, created by scsynth itself;
// every top-level VibeLang group is parented under it.
const rootGroupID int64 = 1

// doneTimeout bounds how long LoadSample/RegisterSynthDef wait for the
// engine's /done reply once a ReplyListener is attached (spec.md §4.5,
// "a separate request/reply channel with a deadline"). A var, not a
// const, so tests can shorten it rather than waiting out the real value.
var doneTimeout = 2 * time.Second

// Backend sends OSC commands to a SuperCollider-compatible synthesis
// engine and implements engine.Backend. Group/effect/buffer ids are
// allocated locally (the dispatcher owns that id space per spec.md §5);
// node ids for live notes come from the nodeIDs space.
type Backend struct {
	client *osc.Client

	groupIDs  *idSpace
	effectIDs *idSpace
	bufferIDs *idSpace
	nodeIDs   *idSpace

	voiceGroup map[string]string // voice name -> owning group path, for TriggerNoteOn's target
	synthDefs  map[string]bool

	replies *ReplyListener // out-of-band /done confirmations; nil disables waiting

	degraded atomic.Bool // set when a Send fails; surfaced by Healthy()
}

// NewBackend dials host:port as the OSC destination. Dialing a UDP client
// never itself fails (no handshake); send errors surface per-call.
func NewBackend(host string, port int) *Backend {
	return &Backend{
		client:     osc.NewClient(host, port),
		groupIDs:   newIDSpace(2),
		effectIDs:  newIDSpace(1000),
		bufferIDs:  newIDSpace(0),
		nodeIDs:    newIDSpace(10000),
		voiceGroup: map[string]string{},
		synthDefs:  map[string]bool{},
	}
}

// AttachReplyListener wires rl so LoadSample and RegisterSynthDef block for
// the engine's /done confirmation (up to doneTimeout) instead of returning
// as soon as the UDP send succeeds. Without one attached — e.g. in tests
// that never run a real scsynth — both methods keep the fire-and-forget
// behavior the rest of this Backend uses.
func (b *Backend) AttachReplyListener(rl *ReplyListener) {
	b.replies = rl
}

// GroupIDs exposes the Backend's group-id space so a Dispatcher built
// alongside it resolves the same VibeLang-group-path -> numeric-group-id
// mapping (both must agree on where /g_new put each group).
func (b *Backend) GroupIDs() *idSpace { return b.groupIDs }

// Client exposes the underlying OSC client for a Dispatcher sharing the
// same UDP destination as this Backend.
func (b *Backend) Client() *osc.Client { return b.client }

// Healthy reports false once a Send has failed, until this Backend's next
// successful send clears it (spec.md's degraded-mode tracking for the audio
// path, which never blocks on an actual network confirmation).
func (b *Backend) Healthy() bool { return !b.degraded.Load() }

func (b *Backend) send(msg *osc.Message) error {
	if err := b.client.Send(msg); err != nil {
		b.degraded.Store(true)
		log.Printf("oscdispatch: send %s failed: %v", msg.Address, err)
		return apierr.BackendError("osc send %s: %v", msg.Address, err)
	}
	b.degraded.Store(false)
	return nil
}

func (b *Backend) CreateGroup(path, parent string) error {
	parentID := rootGroupID
	if parent != "" {
		id, ok := b.groupIDs.lookup(parent)
		if !ok {
			return apierr.BackendError("oscdispatch: unknown parent group %q", parent)
		}
		parentID = id
	}
	id := b.groupIDs.alloc()
	b.groupIDs.bind(path, id)
	msg := osc.NewMessage("/g_new")
	msg.Append(int32(id))
	msg.Append(int32(0)) // add action: addToHead
	msg.Append(int32(parentID))
	return b.send(msg)
}

func (b *Backend) FreeGroup(path string) error {
	id, ok := b.groupIDs.unbind(path)
	if !ok {
		return nil
	}
	b.groupIDs.free_(id)
	msg := osc.NewMessage("/g_freeAll")
	msg.Append(int32(id))
	return b.send(msg)
}

func (b *Backend) CreateVoice(name, groupPath string, polyphony int) error {
	b.voiceGroup[name] = groupPath
	return nil
}

func (b *Backend) FreeVoice(name string) error {
	delete(b.voiceGroup, name)
	return nil
}

func (b *Backend) LoadSample(id, path string) (int64, error) {
	bufID := b.bufferIDs.alloc()
	b.bufferIDs.bind(id, bufID)
	msg := osc.NewMessage("/b_allocRead")
	msg.Append(int32(bufID))
	msg.Append(path)
	if err := b.send(msg); err != nil {
		b.bufferIDs.unbind(id)
		b.bufferIDs.free_(bufID)
		return 0, err
	}
	if b.replies != nil {
		ctx, cancel := context.WithTimeout(context.Background(), doneTimeout)
		defer cancel()
		if err := b.replies.WaitForDone(ctx, "/b_allocRead"); err != nil {
			b.bufferIDs.unbind(id)
			b.bufferIDs.free_(bufID)
			return 0, err
		}
	}
	return bufID, nil
}

func (b *Backend) UnloadSample(id string, bufferID int64) error {
	b.bufferIDs.unbind(id)
	b.bufferIDs.free_(bufferID)
	msg := osc.NewMessage("/b_free")
	msg.Append(int32(bufferID))
	return b.send(msg)
}

func (b *Backend) RegisterSynthDef(name, source string) error {
	b.synthDefs[name] = true
	msg := osc.NewMessage("/d_recv")
	msg.Append([]byte(source))
	if err := b.send(msg); err != nil {
		delete(b.synthDefs, name)
		return err
	}
	if b.replies != nil {
		ctx, cancel := context.WithTimeout(context.Background(), doneTimeout)
		defer cancel()
		if err := b.replies.WaitForDone(ctx, "/d_recv"); err != nil {
			delete(b.synthDefs, name)
			return err
		}
	}
	return nil
}

func (b *Backend) UnregisterSynthDef(name string) error {
	delete(b.synthDefs, name)
	msg := osc.NewMessage("/d_free")
	msg.Append(name)
	return b.send(msg)
}

func (b *Backend) CreateEffect(id, targetGroup string, position int) error {
	groupID, ok := b.groupIDs.lookup(targetGroup)
	if !ok {
		return apierr.BackendError("oscdispatch: unknown target group %q", targetGroup)
	}
	nodeID := b.effectIDs.alloc()
	b.effectIDs.bind(id, nodeID)
	msg := osc.NewMessage("/s_new")
	msg.Append(fmt.Sprintf("fx-%s", id))
	msg.Append(int32(nodeID))
	msg.Append(int32(position)) // add action, reused as §6's "position" within the target group
	msg.Append(int32(groupID))
	return b.send(msg)
}

func (b *Backend) FreeEffect(id string) error {
	nodeID, ok := b.effectIDs.unbind(id)
	if !ok {
		return nil
	}
	b.effectIDs.free_(nodeID)
	msg := osc.NewMessage("/n_free")
	msg.Append(int32(nodeID))
	return b.send(msg)
}

func (b *Backend) TriggerNoteOn(voiceName string, note int, velocity float64) (int64, error) {
	groupPath, ok := b.voiceGroup[voiceName]
	if !ok {
		return 0, apierr.BackendError("oscdispatch: voice %q has no group binding", voiceName)
	}
	groupID, ok := b.groupIDs.lookup(groupPath)
	if !ok {
		groupID = rootGroupID
	}
	nodeID := b.nodeIDs.alloc()
	msg := osc.NewMessage("/s_new")
	msg.Append(voiceName)
	msg.Append(int32(nodeID))
	msg.Append(int32(0))
	msg.Append(int32(groupID))
	msg.Append("note")
	msg.Append(float32(note))
	msg.Append("velocity")
	msg.Append(float32(velocity))
	if err := b.send(msg); err != nil {
		b.nodeIDs.free_(nodeID)
		return 0, err
	}
	return nodeID, nil
}

func (b *Backend) TriggerNoteOff(voiceName string, note int, nodeID int64) error {
	b.nodeIDs.free_(nodeID)
	msg := osc.NewMessage("/n_free")
	msg.Append(int32(nodeID))
	return b.send(msg)
}
