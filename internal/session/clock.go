package session

import (
	"time"

	"github.com/trusch/vibelang/internal/timing"
)

// CurrentBeat returns the transport's beat position at wall-clock time now.
// While stopped the retained Beat is authoritative; while running the beat
// is derived live from StartWallTime and the tempo map, so the engine never
// has to push a mailbox message on every tick just to advance a counter
// (spec.md §4.1, §4.6).
func (t Transport) CurrentBeat(now time.Time) timing.Beat {
	if !t.Running {
		return t.Beat
	}
	elapsed := now.Sub(t.StartWallTime).Seconds()
	return t.Tempo.BeatAt(elapsed)
}

// CurrentBeat is the Snapshot-level convenience wrapper used by readers
// (REST handlers, scheduler, dispatcher) that only ever see a Snapshot.
func (s *Snapshot) CurrentBeat(now time.Time) timing.Beat {
	return s.Transport.CurrentBeat(now)
}
