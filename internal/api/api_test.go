package api

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trusch/vibelang/internal/engine"
	"github.com/trusch/vibelang/internal/session"
)

type fakeBackend struct{ nextNodeID int64 }

func (b *fakeBackend) CreateGroup(path, parent string) error                   { return nil }
func (b *fakeBackend) FreeGroup(path string) error                             { return nil }
func (b *fakeBackend) CreateVoice(name, groupPath string, polyphony int) error  { return nil }
func (b *fakeBackend) FreeVoice(name string) error                             { return nil }
func (b *fakeBackend) LoadSample(id, path string) (int64, error)               { return 1, nil }
func (b *fakeBackend) UnloadSample(id string, bufferID int64) error            { return nil }
func (b *fakeBackend) RegisterSynthDef(name, source string) error              { return nil }
func (b *fakeBackend) UnregisterSynthDef(name string) error                    { return nil }
func (b *fakeBackend) CreateEffect(id, targetGroup string, position int) error { return nil }
func (b *fakeBackend) FreeEffect(id string) error                              { return nil }
func (b *fakeBackend) TriggerNoteOn(voice string, note int, vel float64) (int64, error) {
	return atomic.AddInt64(&b.nextNodeID, 1), nil
}
func (b *fakeBackend) TriggerNoteOff(voice string, note int, nodeID int64) error { return nil }

type testWriter struct{}

func (testWriter) Write(p []byte) (int, error) { return len(p), nil }

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mgr := engine.NewManager(&fakeBackend{}, 64, log.New(testWriter{}, "", 0))
	mgr.Run(context.Background())
	t.Cleanup(mgr.Stop)
	srv := New(mgr, "", log.New(testWriter{}, "", 0))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func doJSON(t *testing.T, ts *httptest.Server, method, path string, body interface{}) *http.Response {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, ts.URL+path, reader)
	require.NoError(t, err)
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	return resp
}

func TestCreateGroupThenGetReturnsIt(t *testing.T) {
	ts := newTestServer(t)

	resp := doJSON(t, ts, http.MethodPost, "/groups", createGroupRequest{Path: "main/drums", Parent: session.RootGroupPath, Gain: 1})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = doJSON(t, ts, http.MethodGet, "/groups/main/drums", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var g session.Group
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&g))
	resp.Body.Close()
	assert.Equal(t, "main/drums", g.Path)
}

func TestCreateGroupMissingParentIsConflict(t *testing.T) {
	ts := newTestServer(t)

	resp := doJSON(t, ts, http.MethodPost, "/groups", createGroupRequest{Path: "main/ghost", Parent: "main/nope", Gain: 1})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestGetUnknownVoiceIsNotFound(t *testing.T) {
	ts := newTestServer(t)
	resp := doJSON(t, ts, http.MethodGet, "/voices/ghost", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCreateVoiceTriggerAndNoteOff(t *testing.T) {
	ts := newTestServer(t)

	resp := doJSON(t, ts, http.MethodPost, "/voices", createVoiceRequest{
		Name: "lead", GroupPath: session.RootGroupPath, Polyphony: 4, SynthDefID: "pluck",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = doJSON(t, ts, http.MethodPost, "/voices/lead/trigger", noteRequest{Note: 60, Velocity: 100})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = doJSON(t, ts, http.MethodGet, "/voices/lead", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var v session.Voice
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	resp.Body.Close()
	_, sounding := v.ActiveNotes[60]
	assert.True(t, sounding)

	resp = doJSON(t, ts, http.MethodPost, "/voices/lead/note-off", noteRequest{Note: 60})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestGroupParamSetAppliesValue(t *testing.T) {
	ts := newTestServer(t)

	resp := doJSON(t, ts, http.MethodPatch, "/groups/main/params/gain", paramSetRequest{Value: 0.5})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = doJSON(t, ts, http.MethodGet, "/groups/main", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var g session.Group
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&g))
	resp.Body.Close()
	assert.InDelta(t, 0.5, g.Gain, 0.001)
}

func TestPatternStartQuantizesAndTransportStartSucceeds(t *testing.T) {
	ts := newTestServer(t)

	resp := doJSON(t, ts, http.MethodPost, "/voices", createVoiceRequest{Name: "kick", GroupPath: session.RootGroupPath, Polyphony: 1, SynthDefID: "kick"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = doJSON(t, ts, http.MethodPost, "/patterns", patternRequest{
		Name: "beat", Voice: "kick", GroupPath: session.RootGroupPath, LoopBeats: 4,
		Events: []session.PatternEvent{{Offset: 0, Kind: session.EventTrigger}},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = doJSON(t, ts, http.MethodPost, "/patterns/beat/start", startStopRequest{QuantizeBeats: 4})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = doJSON(t, ts, http.MethodGet, "/patterns/beat", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var p session.Pattern
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&p))
	resp.Body.Close()
	assert.Equal(t, session.StatusQueuedStart, p.Status)

	resp = doJSON(t, ts, http.MethodPost, "/transport/start", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestEvalAppliesMutationsAtomically(t *testing.T) {
	ts := newTestServer(t)

	body := map[string]interface{}{
		"mutations": []map[string]interface{}{
			{"kind": "define_group", "define_group": map[string]interface{}{"path": "main/fx", "parent": "main", "gain": 1}},
			{"kind": "set_tempo", "set_tempo": map[string]interface{}{"BPM": 128}},
		},
	}
	resp := doJSON(t, ts, http.MethodPost, "/eval", body)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = doJSON(t, ts, http.MethodGet, "/transport", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var tr session.Transport
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&tr))
	resp.Body.Close()
	assert.InDelta(t, 128, tr.Tempo.BPMAt(0), 0.001)
}
