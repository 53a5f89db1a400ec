package api

import (
	"net/http"

	"github.com/trusch/vibelang/internal/apierr"
	"github.com/trusch/vibelang/internal/engine"
	"github.com/trusch/vibelang/internal/timing"
)

func beatOf(f float64) timing.Beat { return timing.Beat(f) }

// evalRequest is the decoded form of a script fragment (spec.md §4.3:
// "a script fragment reaches the core already decoded into a slice of
// the same messages the REST API builds"). The script language itself
// is out of scope; /eval accepts the already-parsed mutation list a
// script host would produce, and applies it as one atomic engine.Eval.
type evalRequest struct {
	Mutations []evalMutation `json:"mutations"`
}

// evalMutation names one step of a script fragment by kind, with a
// loosely-typed payload decoded against the matching request struct —
// the same shapes /patterns, /voices etc. already accept.
type evalMutation struct {
	Kind string `json:"kind"`

	SetTempo           *struct{ BPM float64 } `json:"set_tempo,omitempty"`
	DefineGroup        *createGroupRequest    `json:"define_group,omitempty"`
	DefineVoice        *createVoiceRequest    `json:"define_voice,omitempty"`
	DefinePattern      *patternRequest        `json:"define_pattern,omitempty"`
	DefineMelody       *melodyRequest         `json:"define_melody,omitempty"`
	DefineSequence     *sequenceRequest       `json:"define_sequence,omitempty"`
	Start              *struct {
		Kind          string  `json:"kind"`
		Name          string  `json:"name"`
		QuantizeBeats float64 `json:"quantize_beats"`
	} `json:"start,omitempty"`
	Stop *struct {
		Kind          string  `json:"kind"`
		Name          string  `json:"name"`
		QuantizeBeats float64 `json:"quantize_beats"`
	} `json:"stop,omitempty"`
}

func entityKindFromString(s string) engine.EntityKind {
	switch s {
	case "melody":
		return engine.EntityMelody
	case "sequence":
		return engine.EntitySequence
	default:
		return engine.EntityPattern
	}
}

func (m evalMutation) toMessage() (engine.Message, error) {
	switch m.Kind {
	case "set_tempo":
		if m.SetTempo == nil {
			return nil, apierr.InvalidArgument("set_tempo mutation missing its payload")
		}
		return engine.SetTempo{BPM: m.SetTempo.BPM}, nil
	case "define_group":
		if m.DefineGroup == nil {
			return nil, apierr.InvalidArgument("define_group mutation missing its payload")
		}
		return engine.DefineGroup{Path: m.DefineGroup.Path, Parent: m.DefineGroup.Parent, Gain: m.DefineGroup.Gain}, nil
	case "define_voice":
		if m.DefineVoice == nil {
			return nil, apierr.InvalidArgument("define_voice mutation missing its payload")
		}
		return engine.DefineVoice{
			Name: m.DefineVoice.Name, SynthDefID: m.DefineVoice.SynthDefID, SampleID: m.DefineVoice.SampleID,
			GroupPath: m.DefineVoice.GroupPath, Polyphony: m.DefineVoice.Polyphony, BaseGain: m.DefineVoice.BaseGain,
			ParamDefaults: m.DefineVoice.ParamDefaults,
		}, nil
	case "define_pattern":
		if m.DefinePattern == nil {
			return nil, apierr.InvalidArgument("define_pattern mutation missing its payload")
		}
		p := m.DefinePattern
		return engine.DefinePattern{Name: p.Name, Voice: p.Voice, GroupPath: p.GroupPath, LoopBeats: p.LoopBeats, Events: p.Events}, nil
	case "define_melody":
		if m.DefineMelody == nil {
			return nil, apierr.InvalidArgument("define_melody mutation missing its payload")
		}
		mel := m.DefineMelody
		return engine.DefineMelody{Name: mel.Name, Voice: mel.Voice, GroupPath: mel.GroupPath, LoopBeats: mel.LoopBeats, Notes: mel.Notes}, nil
	case "define_sequence":
		if m.DefineSequence == nil {
			return nil, apierr.InvalidArgument("define_sequence mutation missing its payload")
		}
		sq := m.DefineSequence
		return engine.DefineSequence{Name: sq.Name, LoopBeats: sq.LoopBeats, Clips: sq.Clips}, nil
	case "start":
		if m.Start == nil {
			return nil, apierr.InvalidArgument("start mutation missing its payload")
		}
		return engine.Start{Kind: entityKindFromString(m.Start.Kind), Name: m.Start.Name, Quantize: beatOf(m.Start.QuantizeBeats)}, nil
	case "stop":
		if m.Stop == nil {
			return nil, apierr.InvalidArgument("stop mutation missing its payload")
		}
		return engine.Stop{Kind: entityKindFromString(m.Stop.Kind), Name: m.Stop.Name, Quantize: beatOf(m.Stop.QuantizeBeats)}, nil
	default:
		return nil, apierr.InvalidArgument("unknown eval mutation kind %q", m.Kind)
	}
}

func (s *Server) eval(w http.ResponseWriter, r *http.Request) {
	var req evalRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	mutations := make([]engine.Message, 0, len(req.Mutations))
	for _, m := range req.Mutations {
		msg, err := m.toMessage()
		if err != nil {
			writeError(w, err)
			return
		}
		mutations = append(mutations, msg)
	}
	s.submit(w, engine.Eval{Mutations: mutations})
}
