// Package transport owns the wall-time -> beat mapping and the tick loop
// that drives the scheduler and OSC dispatcher (spec.md §4.6). It is the
// one parallel I/O thread, alongside the REST listener and MIDI input
// readers, that is allowed to call into the scheduler and dispatcher;
// every status/note-bookkeeping side effect it observes is posted back to
// the state manager's mailbox rather than mutated directly (spec.md §5:
// "All mutation of the session happens on the worker").
package transport

import (
	"context"
	"log"
	"time"

	"github.com/trusch/vibelang/internal/engine"
	"github.com/trusch/vibelang/internal/oscdispatch"
	"github.com/trusch/vibelang/internal/scheduler"
	"github.com/trusch/vibelang/internal/session"
	"github.com/trusch/vibelang/internal/timing"
)

// Transport ticks at a fixed wall-clock period, calling the scheduler with
// the current beat and a lookahead window, then handing its events to the
// dispatcher (spec.md §4.6).
type Transport struct {
	manager    *engine.Manager
	sched      *scheduler.Scheduler
	dispatcher *oscdispatch.Dispatcher
	logger     *log.Logger

	tickPeriod time.Duration
	lookahead  timing.Beat

	done chan struct{}
}

// New builds a Transport. tickPeriod should be in the 1-4ms range spec.md
// §4.6 names; lookahead is expressed in beats so it naturally widens at
// slow tempos and narrows at fast ones.
func New(manager *engine.Manager, dispatcher *oscdispatch.Dispatcher, tickPeriod time.Duration, lookahead timing.Beat, logger *log.Logger) *Transport {
	if logger == nil {
		logger = log.Default()
	}
	return &Transport{
		manager:    manager,
		sched:      scheduler.New(),
		dispatcher: dispatcher,
		logger:     logger,
		tickPeriod: tickPeriod,
		lookahead:  lookahead,
		done:       make(chan struct{}),
	}
}

// Run drives the tick loop until ctx is cancelled or StopTicking is called.
func (t *Transport) Run(ctx context.Context) {
	ticker := time.NewTicker(t.tickPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			t.tick()
		case <-t.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

// StopTicking ends the tick loop (process shutdown), distinct from the
// transport-playback Stop below.
func (t *Transport) StopTicking() { close(t.done) }

func (t *Transport) tick() {
	snap := t.manager.Snapshot()
	if !snap.Transport.Running {
		return
	}
	now := time.Now()
	currentBeat := snap.CurrentBeat(now)

	result := t.sched.Tick(snap, currentBeat, t.lookahead)

	beatToWall := func(b timing.Beat) time.Time {
		return wallTimeForBeat(snap.Transport, b)
	}
	for _, err := range t.dispatcher.Dispatch(snap, result.Events, beatToWall) {
		t.logger.Printf("transport: dispatch error: %v", err)
	}

	for _, ev := range result.Events {
		switch ev.Kind {
		case scheduler.DispatchNoteOn:
			// The dispatcher already allocated and addressed a node for
			// this note; bookkeeping here only needs the fact it sounded,
			// not the node id (a later note-off addresses it directly
			// inside the dispatcher, not through the engine).
			t.manager.SubmitAsync(engine.NoteSounded{Voice: ev.Voice, Note: ev.Note, Beat: ev.Beat})
		case scheduler.DispatchNoteOff:
			t.manager.SubmitAsync(engine.NoteReleased{Voice: ev.Voice, Note: ev.Note})
		}
	}

	for _, tr := range result.Transitions {
		t.manager.SubmitAsync(engine.ApplyStatusTransition{
			Kind: entityKind(tr.Kind),
			Name: tr.Name,
			From: tr.From,
			To:   tr.To,
		})
	}
}

func entityKind(k scheduler.ControlKind) engine.EntityKind {
	switch k {
	case scheduler.ControlMelody:
		return engine.EntityMelody
	case scheduler.ControlSequence:
		return engine.EntitySequence
	default:
		return engine.EntityPattern
	}
}

// wallTimeForBeat inverts session.Transport.CurrentBeat: given the same
// tempo map and wall-time base a running transport used to derive beat
// from wall-clock time, it computes the wall-clock instant a future
// (or past) beat falls on.
func wallTimeForBeat(tr session.Transport, b timing.Beat) time.Time {
	return tr.StartWallTime.Add(time.Duration(tr.Tempo.WallSecondsAt(b) * float64(time.Second)))
}

// Start begins transport playback (spec.md §4.6: "On Start, wall-time base
// is set so the beat continues from the retained position").
func (t *Transport) Start() error {
	return t.manager.Submit(engine.StartTransport{})
}

// Stop halts transport playback, retaining the current beat position.
func (t *Transport) Stop() error {
	return t.manager.Submit(engine.StopTransport{})
}

// Seek sets the beat position directly; only valid while stopped.
func (t *Transport) Seek(beat timing.Beat) error {
	return t.manager.Submit(engine.SeekTransport{Beat: beat})
}
