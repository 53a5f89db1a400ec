package api

import (
	"net/http"
	"time"

	"github.com/trusch/vibelang/internal/session"
)

// liveState is the aggregate transport + active-nodes view spec.md §6
// names for GET /live ("aggregate transport + active nodes/sequences/
// fades").
type liveState struct {
	Transport        session.Transport `json:"transport"`
	CurrentBeat      float64           `json:"current_beat"`
	PlayingPatterns  []string          `json:"playing_patterns"`
	PlayingMelodies  []string          `json:"playing_melodies"`
	PlayingSequences []string          `json:"playing_sequences"`
	ActiveNoteCount  int               `json:"active_note_count"`
	ActiveFadeCount  int               `json:"active_fade_count"`
}

func (s *Server) getLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.buildLiveState())
}

func (s *Server) buildLiveState() liveState {
	snap := s.manager.Snapshot()
	ls := liveState{
		Transport:   snap.Transport,
		CurrentBeat: float64(snap.Transport.CurrentBeat(time.Now())),
	}
	for name, p := range snap.Patterns {
		if p.Status == session.StatusPlaying || p.Status == session.StatusQueuedStop {
			ls.PlayingPatterns = append(ls.PlayingPatterns, name)
		}
	}
	for name, m := range snap.Melodies {
		if m.Status == session.StatusPlaying || m.Status == session.StatusQueuedStop {
			ls.PlayingMelodies = append(ls.PlayingMelodies, name)
		}
	}
	for name, sq := range snap.Sequences {
		if sq.Status == session.StatusPlaying || sq.Status == session.StatusQueuedStop {
			ls.PlayingSequences = append(ls.PlayingSequences, name)
		}
	}
	for _, v := range snap.Voices {
		ls.ActiveNoteCount += len(v.ActiveNotes)
	}
	ls.ActiveFadeCount = len(snap.Fades)
	return ls
}

// groupMeter is one group's entry in the per-group gain/mute view
// spec.md §6 names for GET /live/meters; there is no audio-level metering
// on the control-plane side (that lives in the synthesis engine), so this
// reports the mix state the control plane actually knows: the group's own
// gain setting and whether solo/mute currently silences the bus.
type groupMeter struct {
	Path    string  `json:"path"`
	Gain    float64 `json:"gain"`
	Silent  bool    `json:"silent"`
	Soloed  bool    `json:"soloed"`
}

func (s *Server) getLiveMeters(w http.ResponseWriter, r *http.Request) {
	snap := s.manager.Snapshot()
	meters := make([]groupMeter, 0, len(snap.Groups))
	for path, g := range snap.Groups {
		meters = append(meters, groupMeter{
			Path:   path,
			Gain:   g.Gain,
			Silent: snap.EffectiveGroupMute(path),
			Soloed: g.Soloed,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"live":   s.buildLiveState(),
		"groups": meters,
	})
}
