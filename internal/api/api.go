// Package api is the REST control plane (spec.md §4.7, §6): it translates
// HTTP requests into exactly one internal/engine.Message each, submits it
// synchronously via Manager.Submit, and replies with the resulting
// snapshot. It is grounded on the stdlib http.ServeMux + http.Server
// pattern the corpus uses for its own status/control endpoints
// (other_examples' babysitter.serveHTTP), generalized to VibeLang's
// resource families and error-kind mapping.
package api

import (
	"context"
	"io"
	"log"
	"net/http"

	jsoniter "github.com/json-iterator/go"

	"github.com/trusch/vibelang/internal/apierr"
	"github.com/trusch/vibelang/internal/engine"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Server is the REST control plane (spec.md §6, default localhost:1606).
type Server struct {
	manager *engine.Manager
	logger  *log.Logger
	http    *http.Server
}

// New builds a Server bound to addr; it does not start listening until Run
// is called.
func New(manager *engine.Manager, addr string, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	s := &Server{manager: manager, logger: logger}
	s.http = &http.Server{Addr: addr, Handler: s.routes()}
	return s
}

// Handler exposes the underlying http.Handler, e.g. for tests driving it
// with httptest.NewServer without binding a real port.
func (s *Server) Handler() http.Handler { return s.http.Handler }

// Run serves until ctx is cancelled, then shuts down gracefully (grounded
// on the same ctx-cancel-triggers-Shutdown shape as the corpus's
// serveHTTP helper).
func (s *Server) Run(ctx context.Context) error {
	errs := make(chan error, 1)
	go func() { errs <- s.http.ListenAndServe() }()
	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
		return s.http.Shutdown(context.Background())
	}
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /transport", s.getTransport)
	mux.HandleFunc("PATCH /transport", s.patchTransport)
	mux.HandleFunc("POST /transport/start", s.startTransport)
	mux.HandleFunc("POST /transport/stop", s.stopTransport)
	mux.HandleFunc("POST /transport/seek", s.seekTransport)

	// Group paths are themselves "/"-separated (e.g. "main/synths"), so a
	// trailing action segment (mute, params/{name}, ...) can't be told
	// apart from the path by pattern alone; {path...} takes the whole
	// remainder and routeGroupPath splits off a known action suffix itself.
	mux.HandleFunc("GET /groups", s.listGroups)
	mux.HandleFunc("POST /groups", s.createGroup)
	mux.HandleFunc("GET /groups/{path...}", s.routeGroupPath)
	mux.HandleFunc("PATCH /groups/{path...}", s.routeGroupPath)
	mux.HandleFunc("DELETE /groups/{path...}", s.routeGroupPath)
	mux.HandleFunc("POST /groups/{path...}", s.routeGroupPath)

	mux.HandleFunc("GET /voices", s.listVoices)
	mux.HandleFunc("POST /voices", s.createVoice)
	mux.HandleFunc("GET /voices/{name}", s.getVoice)
	mux.HandleFunc("PATCH /voices/{name}", s.patchVoice)
	mux.HandleFunc("DELETE /voices/{name}", s.deleteVoice)
	mux.HandleFunc("POST /voices/{name}/trigger", s.voiceTrigger)
	mux.HandleFunc("POST /voices/{name}/stop", s.voiceStop)
	mux.HandleFunc("POST /voices/{name}/note-on", s.voiceNoteOn)
	mux.HandleFunc("POST /voices/{name}/note-off", s.voiceNoteOff)
	mux.HandleFunc("POST /voices/{name}/mute", s.voiceMute)
	mux.HandleFunc("POST /voices/{name}/unmute", s.voiceUnmute)
	mux.HandleFunc("PATCH /voices/{name}/params/{param}", s.voiceParam)

	mux.HandleFunc("GET /patterns", s.listPatterns)
	mux.HandleFunc("POST /patterns", s.createPattern)
	mux.HandleFunc("GET /patterns/{name}", s.getPattern)
	mux.HandleFunc("PATCH /patterns/{name}", s.patchPattern)
	mux.HandleFunc("DELETE /patterns/{name}", s.deletePattern)
	mux.HandleFunc("POST /patterns/{name}/start", s.startEntity(engine.EntityPattern))
	mux.HandleFunc("POST /patterns/{name}/stop", s.stopEntity(engine.EntityPattern))

	mux.HandleFunc("GET /melodies", s.listMelodies)
	mux.HandleFunc("POST /melodies", s.createMelody)
	mux.HandleFunc("GET /melodies/{name}", s.getMelody)
	mux.HandleFunc("PATCH /melodies/{name}", s.patchMelody)
	mux.HandleFunc("DELETE /melodies/{name}", s.deleteMelody)
	mux.HandleFunc("POST /melodies/{name}/start", s.startEntity(engine.EntityMelody))
	mux.HandleFunc("POST /melodies/{name}/stop", s.stopEntity(engine.EntityMelody))

	mux.HandleFunc("GET /sequences", s.listSequences)
	mux.HandleFunc("POST /sequences", s.createSequence)
	mux.HandleFunc("GET /sequences/{name}", s.getSequence)
	mux.HandleFunc("PATCH /sequences/{name}", s.patchSequence)
	mux.HandleFunc("DELETE /sequences/{name}", s.deleteSequence)
	mux.HandleFunc("POST /sequences/{name}/start", s.startEntity(engine.EntitySequence))
	mux.HandleFunc("POST /sequences/{name}/stop", s.stopEntity(engine.EntitySequence))

	mux.HandleFunc("GET /effects", s.listEffects)
	mux.HandleFunc("POST /effects", s.createEffect)
	mux.HandleFunc("GET /effects/{id}", s.getEffect)
	mux.HandleFunc("DELETE /effects/{id}", s.deleteEffect)
	mux.HandleFunc("PATCH /effects/{id}/params/{param}", s.effectParam)

	mux.HandleFunc("GET /samples", s.listSamples)
	mux.HandleFunc("POST /samples", s.createSample)
	mux.HandleFunc("DELETE /samples/{id}", s.deleteSample)

	mux.HandleFunc("GET /synthdefs", s.listSynthDefs)
	mux.HandleFunc("POST /synthdefs", s.createSynthDef)
	mux.HandleFunc("DELETE /synthdefs/{name}", s.deleteSynthDef)

	mux.HandleFunc("GET /fades", s.listFades)

	mux.HandleFunc("GET /live", s.getLive)
	mux.HandleFunc("GET /live/meters", s.getLiveMeters)

	mux.HandleFunc("POST /eval", s.eval)

	return mux
}

// submit applies msg through the state manager and writes the resulting
// snapshot (or maps its typed error to an HTTP status), per spec.md §6:
// "404 if entity absent; 409 if precondition fails; 200 with snapshot on
// success."
func (s *Server) submit(w http.ResponseWriter, msg engine.Message) {
	if err := s.manager.Submit(msg); err != nil {
		writeError(w, err)
		return
	}
	writeSnapshot(w, s.manager.Snapshot())
}

func writeError(w http.ResponseWriter, err error) {
	apiErr, ok := apierr.As(err)
	if !ok {
		apiErr = apierr.Internal("%s", err.Error())
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusFor(apiErr.Kind))
	json.NewEncoder(w).Encode(map[string]string{
		"error": apiErr.Kind.String(),
		"message": apiErr.Message,
	})
}

// statusFor is the REST error-kind mapping of spec.md §7.
func statusFor(kind apierr.Kind) int {
	switch kind {
	case apierr.KindNotFound:
		return http.StatusNotFound
	case apierr.KindConflict:
		return http.StatusConflict
	case apierr.KindInvalidArgument:
		return http.StatusBadRequest
	case apierr.KindBackendError:
		return http.StatusBadGateway
	case apierr.KindResourceExhausted:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeSnapshot(w http.ResponseWriter, snap interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(snap)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// decodeBody decodes a JSON request body into v. A missing or empty body
// is not an error: action endpoints like start/stop/mute are frequently
// called with no body at all, relying on the zero value of their
// request struct (e.g. quantize_beats: 0, meaning immediate).
func decodeBody(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return nil
	}
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		if err == io.EOF {
			return nil
		}
		return apierr.InvalidArgument("malformed request body: %v", err)
	}
	return nil
}
