// Package recorder logs every OSC command actually dispatched, and bundles
// that log with the session's registered synthdefs and sample payloads
// into a self-contained archive a separate, out-of-core renderer can
// replay (spec.md §4.9, §6). Grounded on schollz-221e's internal/storage
// package: a jsoniter-encoded payload, gzip-compressed, written with
// plain os.Create/io.Copy — adapted here from a single gzipped JSON file
// to a tar archive bundling the manifest, the log and referenced sample
// files together, since spec.md names that as the persisted shape. The
// log itself is append-only within a run (spec.md §3), so each dispatched
// entry is mirrored to an incremental live writer as it happens rather
// than only batched at the end; a failing write there disables recording
// for the rest of the run and logs one warning rather than propagating,
// the same error-handling discipline as storage.go's AutoSave/DoSave.
package recorder

import (
	"archive/tar"
	"fmt"
	"io"
	"log"
	"os"
	"sync"

	jsoniter "github.com/json-iterator/go"

	"github.com/hypebeast/go-osc/osc"

	"github.com/trusch/vibelang/internal/timing"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Manifest describes the run an archive was captured from (spec.md §6:
// "a manifest describing engine version, tempo map, and registered
// synthdefs").
type Manifest struct {
	EngineVersion string              `json:"engine_version"`
	TempoMap      timing.TempoMap     `json:"tempo_map"`
	TimeSig       timing.TimeSignature `json:"time_signature"`
	SynthDefs     map[string]string   `json:"synth_defs"` // name -> source
}

// Entry is one logged OSC command (spec.md §6: "binary event log of
// (beat, wall-seconds, OSC command)"). Logged as newline-delimited JSON
// rather than a custom binary encoding, matching the corpus's preference
// (jsoniter + gzip, schollz-221e/internal/storage) for JSON-based
// persistence over a bespoke binary format; an out-of-core renderer needs
// only to deserialize and replay these in order.
type Entry struct {
	Beat       timing.Beat   `json:"beat"`
	WallSecond float64       `json:"wall_seconds"`
	Address    string        `json:"address"`
	Args       []interface{} `json:"args"`
}

// Recorder accumulates Entry values in memory for WriteArchive, and — once
// a live writer is attached — mirrors each one to it as it is recorded.
// It implements oscdispatch.EventRecorder (Record(beat, wallSeconds,
// *osc.Message)) so a Dispatcher can feed it every message it actually
// sends; oscdispatch does not import this package to avoid a dependency
// cycle — the Dispatcher's recorder hook is a small interface it defines
// itself.
type Recorder struct {
	mu      sync.Mutex
	enabled bool
	warned  bool
	entries []Entry
	live    io.Writer
	logger  *log.Logger
}

// New builds a Recorder. Recording starts disabled; call Enable to turn
// it on for a run (spec.md §4.9: "If recording is enabled for a run").
func New(logger *log.Logger) *Recorder {
	if logger == nil {
		logger = log.Default()
	}
	return &Recorder{logger: logger}
}

func (r *Recorder) Enable() { r.mu.Lock(); r.enabled = true; r.warned = false; r.mu.Unlock() }
func (r *Recorder) Disable() { r.mu.Lock(); r.enabled = false; r.mu.Unlock() }

func (r *Recorder) Enabled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.enabled
}

// SetLiveWriter attaches w as the incremental append target every future
// Record call writes a jsonl line to, alongside the in-memory buffer
// WriteArchive reads from at the end of the run. Pass nil to go back to
// in-memory-only accumulation (e.g. in tests that never exercise the
// write-failure path).
func (r *Recorder) SetLiveWriter(w io.Writer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.live = w
}

// Record appends one dispatched OSC command to the log, if recording is
// enabled. If a live writer is attached and the incremental write to it
// fails, recording disables itself for the remainder of the run and logs
// one warning; the entry that failed to write is dropped rather than
// kept only in memory, so the in-memory buffer and the live log never
// diverge (spec.md §4.9: write failures "disable recording for the
// remainder of the run and emit one warning; they do not stop
// playback").
func (r *Recorder) Record(beat timing.Beat, wallSeconds float64, msg *osc.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.enabled {
		return
	}
	entry := Entry{
		Beat: beat, WallSecond: wallSeconds, Address: msg.Address, Args: append([]interface{}(nil), msg.Arguments...),
	}
	if r.live != nil {
		line, err := json.Marshal(entry)
		if err == nil {
			_, err = r.live.Write(append(line, '\n'))
		}
		if err != nil {
			r.enabled = false
			if !r.warned {
				r.warned = true
				r.logger.Printf("recorder: live log write failed, recording disabled for the rest of this run: %v", err)
			}
			return
		}
	}
	r.entries = append(r.entries, entry)
}

// Reset clears the accumulated log, e.g. between runs.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = nil
}

// WriteArchive bundles manifest, the accumulated log and every named
// sample file (id -> filesystem path) into a tar archive written to w
// (spec.md §6's persisted archive format).
func (r *Recorder) WriteArchive(w io.Writer, manifest Manifest, samplePaths map[string]string) error {
	r.mu.Lock()
	entries := append([]Entry(nil), r.entries...)
	r.mu.Unlock()

	tw := tar.NewWriter(w)
	defer tw.Close()

	manifestData, err := json.Marshal(manifest)
	if err != nil {
		return fmt.Errorf("recorder: marshal manifest: %w", err)
	}
	if err := writeTarEntry(tw, "manifest.json", manifestData); err != nil {
		return err
	}

	logData, err := marshalLog(entries)
	if err != nil {
		return fmt.Errorf("recorder: marshal log: %w", err)
	}
	if err := writeTarEntry(tw, "events.jsonl", logData); err != nil {
		return err
	}

	for id, path := range samplePaths {
		if err := writeTarFile(tw, fmt.Sprintf("samples/%s%s", id, ext(path)), path); err != nil {
			return fmt.Errorf("recorder: bundle sample %q: %w", id, err)
		}
	}
	return nil
}

func marshalLog(entries []Entry) ([]byte, error) {
	var out []byte
	for _, e := range entries {
		line, err := json.Marshal(e)
		if err != nil {
			return nil, err
		}
		out = append(out, line...)
		out = append(out, '\n')
	}
	return out, nil
}

func writeTarEntry(tw *tar.Writer, name string, data []byte) error {
	hdr := &tar.Header{Name: name, Mode: 0644, Size: int64(len(data))}
	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("recorder: write header for %q: %w", name, err)
	}
	if _, err := tw.Write(data); err != nil {
		return fmt.Errorf("recorder: write body for %q: %w", name, err)
	}
	return nil
}

func writeTarFile(tw *tar.Writer, name, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return err
	}
	hdr := &tar.Header{Name: name, Mode: 0644, Size: info.Size()}
	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("write header for %q: %w", name, err)
	}
	if _, err := io.Copy(tw, f); err != nil {
		return fmt.Errorf("write body for %q: %w", name, err)
	}
	return nil
}

func ext(path string) string {
	for i := len(path) - 1; i >= 0 && path[i] != '/'; i-- {
		if path[i] == '.' {
			return path[i:]
		}
	}
	return ""
}
