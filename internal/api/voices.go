package api

import (
	"net/http"

	"github.com/trusch/vibelang/internal/apierr"
	"github.com/trusch/vibelang/internal/engine"
	"github.com/trusch/vibelang/internal/session"
)

func (s *Server) listVoices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.manager.Snapshot().Voices)
}

type createVoiceRequest struct {
	Name          string                 `json:"name"`
	SynthDefID    string                 `json:"synthdef_id"`
	SampleID      string                 `json:"sample_id"`
	GroupPath     string                 `json:"group_path"`
	Polyphony     int                    `json:"polyphony"`
	BaseGain      float64                `json:"base_gain"`
	ParamDefaults map[string]float64     `json:"param_defaults"`
	MIDIDevice    string                 `json:"midi_device"`
	MIDIChannel   int                    `json:"midi_channel"`
}

func (s *Server) createVoice(w http.ResponseWriter, r *http.Request) {
	var req createVoiceRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	var binding *session.MIDIBinding
	if req.MIDIDevice != "" {
		binding = &session.MIDIBinding{Device: req.MIDIDevice, Channel: req.MIDIChannel}
	}
	s.submit(w, engine.DefineVoice{
		Name:          req.Name,
		SynthDefID:    req.SynthDefID,
		SampleID:      req.SampleID,
		GroupPath:     req.GroupPath,
		Polyphony:     req.Polyphony,
		BaseGain:      req.BaseGain,
		ParamDefaults: req.ParamDefaults,
		MIDIBinding:   binding,
	})
}

func (s *Server) getVoice(w http.ResponseWriter, r *http.Request) {
	v, ok := s.manager.Snapshot().Voice(r.PathValue("name"))
	if !ok {
		writeError(w, apierr.NotFound("voice %q not found", r.PathValue("name")))
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// patchVoice applies the same fields createVoice accepts, re-defining the
// voice (DefineVoice is idempotent by name on the state-manager side).
func (s *Server) patchVoice(w http.ResponseWriter, r *http.Request) {
	var req createVoiceRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	req.Name = r.PathValue("name")
	var binding *session.MIDIBinding
	if req.MIDIDevice != "" {
		binding = &session.MIDIBinding{Device: req.MIDIDevice, Channel: req.MIDIChannel}
	}
	s.submit(w, engine.DefineVoice{
		Name:          req.Name,
		SynthDefID:    req.SynthDefID,
		SampleID:      req.SampleID,
		GroupPath:     req.GroupPath,
		Polyphony:     req.Polyphony,
		BaseGain:      req.BaseGain,
		ParamDefaults: req.ParamDefaults,
		MIDIBinding:   binding,
	})
}

func (s *Server) deleteVoice(w http.ResponseWriter, r *http.Request) {
	s.submit(w, engine.DeleteVoice{Name: r.PathValue("name")})
}

type noteRequest struct {
	Note     int     `json:"note"`
	Velocity float64 `json:"velocity"`
}

func (s *Server) voiceTrigger(w http.ResponseWriter, r *http.Request) {
	var req noteRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	s.submit(w, engine.NoteOn{Voice: r.PathValue("name"), Note: req.Note, Velocity: req.Velocity})
}

func (s *Server) voiceStop(w http.ResponseWriter, r *http.Request) {
	var req noteRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	s.submit(w, engine.NoteOff{Voice: r.PathValue("name"), Note: req.Note})
}

func (s *Server) voiceNoteOn(w http.ResponseWriter, r *http.Request) {
	s.voiceTrigger(w, r)
}

func (s *Server) voiceNoteOff(w http.ResponseWriter, r *http.Request) {
	s.voiceStop(w, r)
}

func (s *Server) voiceMute(w http.ResponseWriter, r *http.Request) {
	s.submit(w, engine.Mute{Kind: engine.MuteTargetVoice, Name: r.PathValue("name")})
}

func (s *Server) voiceUnmute(w http.ResponseWriter, r *http.Request) {
	s.submit(w, engine.Unmute{Kind: engine.MuteTargetVoice, Name: r.PathValue("name")})
}

func (s *Server) voiceParam(w http.ResponseWriter, r *http.Request) {
	handleParamSet(w, r, s, paramTargetVoice(r.PathValue("name"), r.PathValue("param")))
}
