package api

import (
	"net/http"

	"github.com/trusch/vibelang/internal/engine"
	"github.com/trusch/vibelang/internal/session"
	"github.com/trusch/vibelang/internal/timing"
)

// paramSetRequest is the body shape spec.md §6 defines for every
// params/{name} endpoint: "value and optional fade_beats".
type paramSetRequest struct {
	Value     float64 `json:"value"`
	FadeBeats float64 `json:"fade_beats"`
	Curve     string  `json:"curve"`
}

func curveFromString(s string) timing.Curve {
	switch s {
	case "exponential":
		return timing.CurveExponential
	case "cosine":
		return timing.CurveCosine
	default:
		return timing.CurveLinear
	}
}

func paramTargetGroup(path, param string) session.FadeTarget {
	return session.FadeTarget{Kind: session.FadeTargetGroup, Name: path, Param: param}
}

func paramTargetVoice(name, param string) session.FadeTarget {
	return session.FadeTarget{Kind: session.FadeTargetVoice, Name: name, Param: param}
}

func paramTargetEffect(id, param string) session.FadeTarget {
	return session.FadeTarget{Kind: session.FadeTargetEffect, Name: id, Param: param}
}

// handleParamSet decodes a paramSetRequest and submits the corresponding
// SetParam message against target.
func handleParamSet(w http.ResponseWriter, r *http.Request, s *Server, target session.FadeTarget) {
	var req paramSetRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	s.submit(w, engine.SetParam{
		Target:    target,
		Value:     req.Value,
		FadeBeats: timing.Beat(req.FadeBeats),
		Curve:     curveFromString(req.Curve),
	})
}
