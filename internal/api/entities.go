package api

import (
	"net/http"

	"github.com/trusch/vibelang/internal/apierr"
	"github.com/trusch/vibelang/internal/engine"
	"github.com/trusch/vibelang/internal/session"
	"github.com/trusch/vibelang/internal/timing"
)

type startStopRequest struct {
	QuantizeBeats float64 `json:"quantize_beats"`
}

// startEntity and stopEntity are shared across /patterns, /melodies and
// /sequences (spec.md §6: "CRUD + /start, /stop, with quantize-beats
// body"); only the EntityKind differs per resource family.
func (s *Server) startEntity(kind engine.EntityKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req startStopRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, err)
			return
		}
		s.submit(w, engine.Start{Kind: kind, Name: r.PathValue("name"), Quantize: timing.Beat(req.QuantizeBeats)})
	}
}

func (s *Server) stopEntity(kind engine.EntityKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req startStopRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, err)
			return
		}
		s.submit(w, engine.Stop{Kind: kind, Name: r.PathValue("name"), Quantize: timing.Beat(req.QuantizeBeats)})
	}
}

// Patterns

type patternRequest struct {
	Name      string                `json:"name"`
	Voice     string                `json:"voice"`
	GroupPath string                `json:"group_path"`
	LoopBeats timing.Beat           `json:"loop_beats"`
	Events    []session.PatternEvent `json:"events"`
}

func (s *Server) listPatterns(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.manager.Snapshot().Patterns)
}

func (s *Server) createPattern(w http.ResponseWriter, r *http.Request) {
	var req patternRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	s.submit(w, engine.DefinePattern{Name: req.Name, Voice: req.Voice, GroupPath: req.GroupPath, LoopBeats: req.LoopBeats, Events: req.Events})
}

func (s *Server) getPattern(w http.ResponseWriter, r *http.Request) {
	p, ok := s.manager.Snapshot().Pattern(r.PathValue("name"))
	if !ok {
		writeError(w, apierr.NotFound("pattern %q not found", r.PathValue("name")))
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) patchPattern(w http.ResponseWriter, r *http.Request) {
	var req patternRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	req.Name = r.PathValue("name")
	s.submit(w, engine.DefinePattern{Name: req.Name, Voice: req.Voice, GroupPath: req.GroupPath, LoopBeats: req.LoopBeats, Events: req.Events})
}

func (s *Server) deletePattern(w http.ResponseWriter, r *http.Request) {
	s.submit(w, engine.DeletePattern{Name: r.PathValue("name")})
}

// Melodies

type melodyRequest struct {
	Name      string               `json:"name"`
	Voice     string               `json:"voice"`
	GroupPath string               `json:"group_path"`
	LoopBeats timing.Beat          `json:"loop_beats"`
	Notes     []session.MelodyNote `json:"notes"`
}

func (s *Server) listMelodies(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.manager.Snapshot().Melodies)
}

func (s *Server) createMelody(w http.ResponseWriter, r *http.Request) {
	var req melodyRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	s.submit(w, engine.DefineMelody{Name: req.Name, Voice: req.Voice, GroupPath: req.GroupPath, LoopBeats: req.LoopBeats, Notes: req.Notes})
}

func (s *Server) getMelody(w http.ResponseWriter, r *http.Request) {
	m, ok := s.manager.Snapshot().Melody(r.PathValue("name"))
	if !ok {
		writeError(w, apierr.NotFound("melody %q not found", r.PathValue("name")))
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) patchMelody(w http.ResponseWriter, r *http.Request) {
	var req melodyRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	req.Name = r.PathValue("name")
	s.submit(w, engine.DefineMelody{Name: req.Name, Voice: req.Voice, GroupPath: req.GroupPath, LoopBeats: req.LoopBeats, Notes: req.Notes})
}

func (s *Server) deleteMelody(w http.ResponseWriter, r *http.Request) {
	s.submit(w, engine.DeleteMelody{Name: r.PathValue("name")})
}

// Sequences

type sequenceRequest struct {
	Name      string          `json:"name"`
	LoopBeats timing.Beat     `json:"loop_beats"`
	Clips     []session.Clip  `json:"clips"`
}

func (s *Server) listSequences(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.manager.Snapshot().Sequences)
}

func (s *Server) createSequence(w http.ResponseWriter, r *http.Request) {
	var req sequenceRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	s.submit(w, engine.DefineSequence{Name: req.Name, LoopBeats: req.LoopBeats, Clips: req.Clips})
}

func (s *Server) getSequence(w http.ResponseWriter, r *http.Request) {
	sq, ok := s.manager.Snapshot().Sequence(r.PathValue("name"))
	if !ok {
		writeError(w, apierr.NotFound("sequence %q not found", r.PathValue("name")))
		return
	}
	writeJSON(w, http.StatusOK, sq)
}

func (s *Server) patchSequence(w http.ResponseWriter, r *http.Request) {
	var req sequenceRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	req.Name = r.PathValue("name")
	s.submit(w, engine.DefineSequence{Name: req.Name, LoopBeats: req.LoopBeats, Clips: req.Clips})
}

func (s *Server) deleteSequence(w http.ResponseWriter, r *http.Request) {
	s.submit(w, engine.DeleteSequence{Name: r.PathValue("name")})
}
