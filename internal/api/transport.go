package api

import (
	"net/http"

	"github.com/trusch/vibelang/internal/engine"
	"github.com/trusch/vibelang/internal/timing"
)

func (s *Server) getTransport(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.manager.Snapshot().Transport)
}

type patchTransportRequest struct {
	BPM            *float64 `json:"bpm,omitempty"`
	Numerator      *int     `json:"numerator,omitempty"`
	Denominator    *int     `json:"denominator,omitempty"`
}

func (s *Server) patchTransport(w http.ResponseWriter, r *http.Request) {
	var req patchTransportRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.BPM != nil {
		if err := s.manager.Submit(engine.SetTempo{BPM: *req.BPM}); err != nil {
			writeError(w, err)
			return
		}
	}
	if req.Numerator != nil || req.Denominator != nil {
		snap := s.manager.Snapshot()
		num, den := snap.Transport.TimeSig.Numerator, snap.Transport.TimeSig.Denominator
		if req.Numerator != nil {
			num = *req.Numerator
		}
		if req.Denominator != nil {
			den = *req.Denominator
		}
		if err := s.manager.Submit(engine.SetTimeSignature{Numerator: num, Denominator: den}); err != nil {
			writeError(w, err)
			return
		}
	}
	writeSnapshot(w, s.manager.Snapshot())
}

func (s *Server) startTransport(w http.ResponseWriter, r *http.Request) {
	s.submit(w, engine.StartTransport{})
}

func (s *Server) stopTransport(w http.ResponseWriter, r *http.Request) {
	s.submit(w, engine.StopTransport{})
}

type seekRequest struct {
	Beat timing.Beat `json:"beat"`
}

func (s *Server) seekTransport(w http.ResponseWriter, r *http.Request) {
	var req seekRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	s.submit(w, engine.SeekTransport{Beat: req.Beat})
}
