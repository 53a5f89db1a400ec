package api

import (
	"net/http"

	"github.com/trusch/vibelang/internal/engine"
	"github.com/trusch/vibelang/internal/session"
)

func (s *Server) listSamples(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.manager.Snapshot().Samples)
}

type createSampleRequest struct {
	ID   string `json:"id"`
	Path string `json:"path"`
}

func (s *Server) createSample(w http.ResponseWriter, r *http.Request) {
	var req createSampleRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	s.submit(w, engine.LoadSample{ID: req.ID, Path: req.Path})
}

func (s *Server) deleteSample(w http.ResponseWriter, r *http.Request) {
	s.submit(w, engine.UnloadSample{ID: r.PathValue("id")})
}

func (s *Server) listSynthDefs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.manager.Snapshot().SynthDefs)
}

type createSynthDefRequest struct {
	Name   string             `json:"name"`
	Source string             `json:"source"`
	Params map[string]float64 `json:"params"`
}

func (s *Server) createSynthDef(w http.ResponseWriter, r *http.Request) {
	var req createSynthDefRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	s.submit(w, engine.RegisterSynthDef{Name: req.Name, Source: req.Source, Params: req.Params, Origin: session.OriginUser})
}

func (s *Server) deleteSynthDef(w http.ResponseWriter, r *http.Request) {
	s.submit(w, engine.UnregisterSynthDef{Name: r.PathValue("name")})
}

func (s *Server) listFades(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.manager.Snapshot().Fades)
}
