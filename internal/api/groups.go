package api

import (
	"net/http"
	"strings"

	"github.com/trusch/vibelang/internal/apierr"
	"github.com/trusch/vibelang/internal/engine"
)

func (s *Server) listGroups(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.manager.Snapshot().Groups)
}

type createGroupRequest struct {
	Path   string  `json:"path"`
	Parent string  `json:"parent"`
	Gain   float64 `json:"gain"`
}

func (s *Server) createGroup(w http.ResponseWriter, r *http.Request) {
	var req createGroupRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	s.submit(w, engine.DefineGroup{Path: req.Path, Parent: req.Parent, Gain: req.Gain})
}

// routeGroupPath dispatches every /groups/{path...} request. Group paths
// contain "/" themselves, so the trailing action (if any) is split off the
// wildcard match rather than expressed as separate mux patterns (spec.md
// §6: "/groups (+ /{path}/{mute,unmute,solo,unsolo}, /{path}/params/{name})").
func (s *Server) routeGroupPath(w http.ResponseWriter, r *http.Request) {
	rest := r.PathValue("path")

	if strings.HasSuffix(rest, "/params") {
		writeError(w, apierr.InvalidArgument("params action requires a parameter name"))
		return
	}
	if idx := strings.LastIndex(rest, "/params/"); idx >= 0 {
		path := rest[:idx]
		param := rest[idx+len("/params/"):]
		s.groupParam(w, r, path, param)
		return
	}

	for _, action := range []string{"mute", "unmute", "solo", "unsolo"} {
		suffix := "/" + action
		if strings.HasSuffix(rest, suffix) && r.Method == http.MethodPost {
			path := strings.TrimSuffix(rest, suffix)
			s.groupAction(w, path, action)
			return
		}
	}

	switch r.Method {
	case http.MethodGet:
		s.getGroup(w, rest)
	case http.MethodDelete:
		s.deleteGroup(w, rest)
	default:
		http.Error(w, "unsupported group action", http.StatusNotFound)
	}
}

func (s *Server) getGroup(w http.ResponseWriter, path string) {
	g, ok := s.manager.Snapshot().Group(path)
	if !ok {
		writeError(w, apierr.NotFound("group %q not found", path))
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (s *Server) deleteGroup(w http.ResponseWriter, path string) {
	s.submit(w, engine.DeleteGroup{Path: path})
}

func (s *Server) groupAction(w http.ResponseWriter, path, action string) {
	switch action {
	case "mute":
		s.submit(w, engine.Mute{Kind: engine.MuteTargetGroup, Name: path})
	case "unmute":
		s.submit(w, engine.Unmute{Kind: engine.MuteTargetGroup, Name: path})
	case "solo":
		s.submit(w, engine.Solo{Kind: engine.MuteTargetGroup, Name: path})
	case "unsolo":
		s.submit(w, engine.Unsolo{Kind: engine.MuteTargetGroup, Name: path})
	}
}

func (s *Server) groupParam(w http.ResponseWriter, r *http.Request, path, param string) {
	handleParamSet(w, r, s, paramTargetGroup(path, param))
}
