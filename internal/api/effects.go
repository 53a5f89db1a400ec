package api

import (
	"net/http"

	"github.com/trusch/vibelang/internal/apierr"
	"github.com/trusch/vibelang/internal/engine"
)

func (s *Server) listEffects(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.manager.Snapshot().Effects)
}

type createEffectRequest struct {
	ID          string             `json:"id"`
	SynthDefID  string             `json:"synthdef_id"`
	TargetGroup string             `json:"target_group"`
	Position    int                `json:"position"`
	Params      map[string]float64 `json:"params"`
}

func (s *Server) createEffect(w http.ResponseWriter, r *http.Request) {
	var req createEffectRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	s.submit(w, engine.DefineEffect{ID: req.ID, SynthDefID: req.SynthDefID, TargetGroup: req.TargetGroup, Position: req.Position, Params: req.Params})
}

func (s *Server) getEffect(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	e, ok := s.manager.Snapshot().Effects[id]
	if !ok {
		writeError(w, apierr.NotFound("effect %q not found", id))
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) deleteEffect(w http.ResponseWriter, r *http.Request) {
	s.submit(w, engine.DeleteEffect{ID: r.PathValue("id")})
}

func (s *Server) effectParam(w http.ResponseWriter, r *http.Request) {
	handleParamSet(w, r, s, paramTargetEffect(r.PathValue("id"), r.PathValue("param")))
}
