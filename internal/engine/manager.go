// Package engine owns the VibeLang session state manager: the single
// goroutine that serializes every mutation (spec.md §4.3) and publishes
// an immutable session.Snapshot after each one. It is grounded on the
// schollz-221e model's "one place mutates, everyone else reads" shape
// (internal/model in the teacher), generalized from a tracker grid to
// VibeLang's voice/pattern/melody/sequence/group data model.
package engine

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/trusch/vibelang/internal/apierr"
	"github.com/trusch/vibelang/internal/sampleinfo"
	"github.com/trusch/vibelang/internal/session"
	"github.com/trusch/vibelang/internal/timing"
)

// envelope is one mailbox entry: a message plus the channel its submitter
// is waiting on for the result.
type envelope struct {
	msg   Message
	reply chan error
}

// Manager is the sole writer of session.State. Submit serializes a message
// through the mailbox and blocks for its result (the REST/script control
// plane's path); the transport/scheduler path additionally posts
// ApplyStatusTransition, NoteSounded and NoteReleased messages through the
// non-blocking SubmitAsync to report what an async dispatch actually did.
type Manager struct {
	backend Backend
	logger  *log.Logger

	state *session.State
	snap  atomic.Pointer[session.Snapshot]

	mailbox chan envelope
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewManager constructs a manager with a fresh session and publishes its
// initial snapshot (version 0). mailboxCap bounds how many pending
// messages may queue before Submit blocks and SubmitAsync drops.
func NewManager(backend Backend, mailboxCap int, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.Default()
	}
	m := &Manager{
		backend: backend,
		logger:  logger,
		state:   session.NewState(),
		mailbox: make(chan envelope, mailboxCap),
		done:    make(chan struct{}),
	}
	m.snap.Store(m.state.Freeze())
	return m
}

// Run starts the single worker goroutine draining the mailbox and returns
// at once. The worker exits, after draining the mailbox, once ctx is
// cancelled or Stop is called.
func (m *Manager) Run(ctx context.Context) {
	m.wg.Add(1)
	go m.loop(ctx)
}

// Stop signals the worker to exit after draining queued messages already
// accepted, and waits for it to finish.
func (m *Manager) Stop() {
	close(m.done)
	m.wg.Wait()
}

func (m *Manager) loop(ctx context.Context) {
	defer m.wg.Done()
	for {
		select {
		case env := <-m.mailbox:
			m.handle(env)
		case <-m.done:
			m.drain()
			return
		case <-ctx.Done():
			m.drain()
			return
		}
	}
}

// drain applies any messages already accepted into the mailbox before
// shutdown, so a Submit caller never blocks forever waiting on a reply.
func (m *Manager) drain() {
	for {
		select {
		case env := <-m.mailbox:
			m.handle(env)
		default:
			return
		}
	}
}

func (m *Manager) handle(env envelope) {
	err := env.msg.apply(m)
	if err == nil {
		m.state.Version++
		m.snap.Store(m.state.Freeze())
	}
	if env.reply != nil {
		env.reply <- err
	}
}

// Snapshot returns the most recently published, immutable session view.
func (m *Manager) Snapshot() *session.Snapshot {
	return m.snap.Load()
}

// Submit enqueues msg and blocks until it has been applied, returning the
// typed error (if any). This is the REST/script control-plane path —
// spec.md §4.3 requires these mutations be synchronous from the caller's
// point of view.
func (m *Manager) Submit(msg Message) error {
	env := envelope{msg: msg, reply: make(chan error, 1)}
	select {
	case m.mailbox <- env:
	case <-m.done:
		return apierr.Internal("state manager is shutting down")
	}
	return <-env.reply
}

// SubmitAsync enqueues msg without waiting for a reply, used by the
// transport/scheduler postback path (status transitions, note bookkeeping)
// where audio timing must not wait on the mailbox. If the mailbox is full
// it drops msg immediately rather than blocking, since a stalled scheduler
// tick is worse than a dropped bookkeeping update; the drop is only
// logged, and no error is returned to the caller.
func (m *Manager) SubmitAsync(msg Message) {
	select {
	case m.mailbox <- envelope{msg: msg}:
	default:
		m.logger.Printf("engine: mailbox full, dropping async message %T", msg)
	}
}

func referencingGroup(s *session.State, path string) bool {
	for _, v := range s.Voices {
		if v.GroupPath == path {
			return true
		}
	}
	for _, p := range s.Patterns {
		if p.GroupPath == path {
			return true
		}
	}
	for _, mel := range s.Melodies {
		if mel.GroupPath == path {
			return true
		}
	}
	for _, e := range s.Effects {
		if e.TargetGroup == path {
			return true
		}
	}
	for _, g := range s.Groups {
		if g.Parent == path {
			return true
		}
	}
	return false
}

// --- transport ---

func (msg SetTempo) apply(m *Manager) error {
	if msg.BPM <= 0 {
		return apierr.InvalidArgument("tempo must be positive, got %v", msg.BPM)
	}
	at := m.state.Transport.CurrentBeat(time.Now())
	if m.state.Transport.Running {
		m.state.Transport.Beat = at
	}
	m.state.Transport.Tempo.AppendSegment(at, msg.BPM)
	return nil
}

func (msg SetTimeSignature) apply(m *Manager) error {
	if msg.Numerator <= 0 || msg.Denominator <= 0 {
		return apierr.InvalidArgument("time signature must have positive numerator and denominator")
	}
	m.state.Transport.TimeSig = timing.TimeSignature{Numerator: msg.Numerator, Denominator: msg.Denominator}
	return nil
}

func (msg StartTransport) apply(m *Manager) error {
	t := &m.state.Transport
	if t.Running {
		return nil // idempotent
	}
	now := time.Now()
	t.StartWallTime = now.Add(-time.Duration(t.Tempo.WallSecondsAt(t.Beat) * float64(time.Second)))
	t.Running = true
	return nil
}

func (msg StopTransport) apply(m *Manager) error {
	t := &m.state.Transport
	if !t.Running {
		return nil // idempotent
	}
	t.Beat = t.CurrentBeat(time.Now())
	t.Running = false
	return nil
}

func (msg SeekTransport) apply(m *Manager) error {
	t := &m.state.Transport
	if t.Running {
		return apierr.Conflict("transport must be stopped before seeking")
	}
	if msg.Beat < 0 {
		return apierr.InvalidArgument("seek beat must be non-negative")
	}
	t.Beat = msg.Beat
	return nil
}

// --- groups ---

func (msg DefineGroup) apply(m *Manager) error {
	if msg.Path == "" {
		return apierr.InvalidArgument("group path must not be empty")
	}
	if _, exists := m.state.Groups[msg.Path]; exists {
		return apierr.Conflict("group %q already exists", msg.Path)
	}
	if msg.Path != session.RootGroupPath {
		if _, ok := m.state.Groups[msg.Parent]; !ok {
			return apierr.Conflict("parent group %q does not exist", msg.Parent)
		}
	}
	if err := m.backend.CreateGroup(msg.Path, msg.Parent); err != nil {
		return apierr.BackendError("create group %q: %v", msg.Path, err)
	}
	name := msg.Path
	if i := lastSlash(msg.Path); i >= 0 {
		name = msg.Path[i+1:]
	}
	m.state.Groups[msg.Path] = &session.Group{
		Path: msg.Path, Name: name, Parent: msg.Parent, Gain: msg.Gain, Params: map[string]float64{},
	}
	return nil
}

func (msg DeleteGroup) apply(m *Manager) error {
	if msg.Path == session.RootGroupPath {
		return apierr.Conflict("cannot delete the root group")
	}
	if _, ok := m.state.Groups[msg.Path]; !ok {
		return apierr.NotFound("group %q not found", msg.Path)
	}
	if referencingGroup(m.state, msg.Path) {
		return apierr.Conflict("group %q is still referenced by a child group, voice, pattern, melody or effect", msg.Path)
	}
	if err := m.backend.FreeGroup(msg.Path); err != nil {
		return apierr.BackendError("free group %q: %v", msg.Path, err)
	}
	delete(m.state.Groups, msg.Path)
	return nil
}

func lastSlash(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '/' {
			return i
		}
	}
	return -1
}

// --- voices ---

func (msg DefineVoice) apply(m *Manager) error {
	if msg.Polyphony < 1 {
		return apierr.InvalidArgument("polyphony must be at least 1, got %d", msg.Polyphony)
	}
	if _, exists := m.state.Voices[msg.Name]; exists {
		return apierr.Conflict("voice %q already exists", msg.Name)
	}
	if _, ok := m.state.Groups[msg.GroupPath]; !ok {
		return apierr.NotFound("group %q not found", msg.GroupPath)
	}
	if err := m.backend.CreateVoice(msg.Name, msg.GroupPath, msg.Polyphony); err != nil {
		return apierr.BackendError("create voice %q: %v", msg.Name, err)
	}
	defaults := msg.ParamDefaults
	if defaults == nil {
		defaults = map[string]float64{}
	} else {
		cp := make(map[string]float64, len(defaults))
		for k, v := range defaults {
			cp[k] = v
		}
		defaults = cp
	}
	m.state.Voices[msg.Name] = &session.Voice{
		Name: msg.Name, SynthDefID: msg.SynthDefID, SampleID: msg.SampleID, GroupPath: msg.GroupPath,
		Polyphony: msg.Polyphony, BaseGain: msg.BaseGain, ParamDefaults: defaults,
		ActiveNotes: map[int]session.ActiveNote{}, MIDIBinding: msg.MIDIBinding,
	}
	return nil
}

func (msg DeleteVoice) apply(m *Manager) error {
	v, ok := m.state.Voices[msg.Name]
	if !ok {
		return apierr.NotFound("voice %q not found", msg.Name)
	}
	for note, alloc := range v.ActiveNotes {
		if err := m.backend.TriggerNoteOff(msg.Name, note, alloc.SynthNodeID); err != nil {
			m.logger.Printf("engine: note-off on voice teardown for %q note %d: %v", msg.Name, note, err)
		}
	}
	if err := m.backend.FreeVoice(msg.Name); err != nil {
		return apierr.BackendError("free voice %q: %v", msg.Name, err)
	}
	for _, p := range m.state.Patterns {
		if p.Voice == msg.Name {
			p.Status = session.StatusStopped
			p.ScheduledStart, p.ScheduledStop = 0, 0
		}
	}
	for _, mel := range m.state.Melodies {
		if mel.Voice == msg.Name {
			mel.Status = session.StatusStopped
			mel.ScheduledStart, mel.ScheduledStop = 0, 0
		}
	}
	delete(m.state.Voices, msg.Name)
	return nil
}

// --- patterns ---

func (msg DefinePattern) apply(m *Manager) error {
	if msg.LoopBeats <= 0 {
		return apierr.InvalidArgument("pattern loop length must be positive")
	}
	if _, exists := m.state.Patterns[msg.Name]; exists {
		return apierr.Conflict("pattern %q already exists", msg.Name)
	}
	if _, ok := m.state.Voices[msg.Voice]; !ok {
		return apierr.NotFound("voice %q not found", msg.Voice)
	}
	if _, ok := m.state.Groups[msg.GroupPath]; !ok {
		return apierr.NotFound("group %q not found", msg.GroupPath)
	}
	events := make([]session.PatternEvent, len(msg.Events))
	for i, e := range msg.Events {
		if e.Offset < 0 || e.Offset >= msg.LoopBeats {
			return apierr.InvalidArgument("event offset %v out of range [0, %v)", e.Offset, msg.LoopBeats)
		}
		if e.Params == nil {
			e.Params = map[string]float64{}
		}
		events[i] = e
	}
	m.state.Patterns[msg.Name] = &session.Pattern{
		Name: msg.Name, Voice: msg.Voice, GroupPath: msg.GroupPath, LoopBeats: msg.LoopBeats, Events: events,
		Status: session.StatusStopped,
	}
	return nil
}

func (msg DeletePattern) apply(m *Manager) error {
	if _, ok := m.state.Patterns[msg.Name]; !ok {
		return apierr.NotFound("pattern %q not found", msg.Name)
	}
	delete(m.state.Patterns, msg.Name)
	return nil
}

// --- melodies ---

func (msg DefineMelody) apply(m *Manager) error {
	if msg.LoopBeats <= 0 {
		return apierr.InvalidArgument("melody loop length must be positive")
	}
	if _, exists := m.state.Melodies[msg.Name]; exists {
		return apierr.Conflict("melody %q already exists", msg.Name)
	}
	if _, ok := m.state.Voices[msg.Voice]; !ok {
		return apierr.NotFound("voice %q not found", msg.Voice)
	}
	if _, ok := m.state.Groups[msg.GroupPath]; !ok {
		return apierr.NotFound("group %q not found", msg.GroupPath)
	}
	notes := make([]session.MelodyNote, len(msg.Notes))
	for i, n := range msg.Notes {
		if n.Offset < 0 || n.Offset >= msg.LoopBeats {
			return apierr.InvalidArgument("note offset %v out of range [0, %v)", n.Offset, msg.LoopBeats)
		}
		if n.Duration <= 0 {
			return apierr.InvalidArgument("note duration must be positive")
		}
		if n.Params == nil {
			n.Params = map[string]float64{}
		}
		notes[i] = n
	}
	m.state.Melodies[msg.Name] = &session.Melody{
		Name: msg.Name, Voice: msg.Voice, GroupPath: msg.GroupPath, LoopBeats: msg.LoopBeats, Notes: notes,
		Status: session.StatusStopped,
	}
	return nil
}

func (msg DeleteMelody) apply(m *Manager) error {
	if _, ok := m.state.Melodies[msg.Name]; !ok {
		return apierr.NotFound("melody %q not found", msg.Name)
	}
	delete(m.state.Melodies, msg.Name)
	return nil
}

// --- sequences ---

func (msg DefineSequence) apply(m *Manager) error {
	if msg.LoopBeats <= 0 {
		return apierr.InvalidArgument("sequence loop length must be positive")
	}
	if _, exists := m.state.Sequences[msg.Name]; exists {
		return apierr.Conflict("sequence %q already exists", msg.Name)
	}
	for _, c := range msg.Clips {
		switch c.Kind {
		case session.ClipPattern:
			if _, ok := m.state.Patterns[c.Ref]; !ok {
				return apierr.NotFound("pattern %q not found", c.Ref)
			}
		case session.ClipMelody:
			if _, ok := m.state.Melodies[c.Ref]; !ok {
				return apierr.NotFound("melody %q not found", c.Ref)
			}
		}
		if c.StartBeat < 0 || c.LengthBeats <= 0 || c.StartBeat+c.LengthBeats > msg.LoopBeats {
			return apierr.InvalidArgument("clip %q placement [%v, %v) out of bounds for loop length %v", c.Ref, c.StartBeat, c.StartBeat+c.LengthBeats, msg.LoopBeats)
		}
	}
	clips := make([]session.Clip, len(msg.Clips))
	copy(clips, msg.Clips)
	m.state.Sequences[msg.Name] = &session.Sequence{
		Name: msg.Name, LoopBeats: msg.LoopBeats, Clips: clips, Status: session.StatusStopped,
	}
	return nil
}

func (msg DeleteSequence) apply(m *Manager) error {
	if _, ok := m.state.Sequences[msg.Name]; !ok {
		return apierr.NotFound("sequence %q not found", msg.Name)
	}
	delete(m.state.Sequences, msg.Name)
	return nil
}

// --- start/stop state machine (spec.md §4.4) ---

type playable interface {
	status() session.PlaybackStatus
	setStatus(session.PlaybackStatus)
	setScheduledStart(timing.Beat)
	setScheduledStop(timing.Beat)
}

type patternHandle struct{ p *session.Pattern }

func (h patternHandle) status() session.PlaybackStatus             { return h.p.Status }
func (h patternHandle) setStatus(s session.PlaybackStatus)         { h.p.Status = s }
func (h patternHandle) setScheduledStart(b timing.Beat)            { h.p.ScheduledStart = b }
func (h patternHandle) setScheduledStop(b timing.Beat)             { h.p.ScheduledStop = b }

type melodyHandle struct{ m *session.Melody }

func (h melodyHandle) status() session.PlaybackStatus     { return h.m.Status }
func (h melodyHandle) setStatus(s session.PlaybackStatus) { h.m.Status = s }
func (h melodyHandle) setScheduledStart(b timing.Beat)    { h.m.ScheduledStart = b }
func (h melodyHandle) setScheduledStop(b timing.Beat)     { h.m.ScheduledStop = b }

type sequenceHandle struct{ s *session.Sequence }

func (h sequenceHandle) status() session.PlaybackStatus     { return h.s.Status }
func (h sequenceHandle) setStatus(s session.PlaybackStatus) { h.s.Status = s }
func (h sequenceHandle) setScheduledStart(b timing.Beat)    { h.s.ScheduledStart = b }
func (h sequenceHandle) setScheduledStop(b timing.Beat)     { h.s.ScheduledStop = b }

func (m *Manager) playableFor(kind EntityKind, name string) (playable, error) {
	switch kind {
	case EntityPattern:
		p, ok := m.state.Patterns[name]
		if !ok {
			return nil, apierr.NotFound("pattern %q not found", name)
		}
		return patternHandle{p}, nil
	case EntityMelody:
		mel, ok := m.state.Melodies[name]
		if !ok {
			return nil, apierr.NotFound("melody %q not found", name)
		}
		return melodyHandle{mel}, nil
	case EntitySequence:
		sq, ok := m.state.Sequences[name]
		if !ok {
			return nil, apierr.NotFound("sequence %q not found", name)
		}
		return sequenceHandle{sq}, nil
	default:
		return nil, apierr.Internal("unknown entity kind %d", kind)
	}
}

func (msg Start) apply(m *Manager) error {
	h, err := m.playableFor(msg.Kind, msg.Name)
	if err != nil {
		return err
	}
	switch h.status() {
	case session.StatusPlaying, session.StatusQueuedStart:
		return apierr.Conflict("%q is already started", msg.Name)
	}
	now := m.state.Transport.CurrentBeat(time.Now())
	if msg.Quantize <= 0 {
		h.setStatus(session.StatusPlaying)
		h.setScheduledStart(now)
		return nil
	}
	h.setStatus(session.StatusQueuedStart)
	h.setScheduledStart(timing.Quantize(now, msg.Quantize))
	return nil
}

func (msg Stop) apply(m *Manager) error {
	h, err := m.playableFor(msg.Kind, msg.Name)
	if err != nil {
		return err
	}
	switch h.status() {
	case session.StatusStopped, session.StatusQueuedStop:
		return apierr.Conflict("%q is already stopped or stopping", msg.Name)
	}
	now := m.state.Transport.CurrentBeat(time.Now())
	if msg.Quantize <= 0 {
		h.setStatus(session.StatusStopped)
		h.setScheduledStop(now)
		return nil
	}
	h.setStatus(session.StatusQueuedStop)
	h.setScheduledStop(timing.Quantize(now, msg.Quantize))
	return nil
}

// ApplyStatusTransition is posted (async) by the transport/scheduler when a
// queued-start/queued-stop boundary is crossed during Tick. It only takes
// effect if the entity's status still matches From, so a stale postback
// racing a newer user-issued Start/Stop is silently dropped rather than
// clobbering it (spec.md §4.4 edge cases).
type ApplyStatusTransition struct {
	Kind EntityKind
	Name string
	From session.PlaybackStatus
	To   session.PlaybackStatus
}

func (msg ApplyStatusTransition) apply(m *Manager) error {
	h, err := m.playableFor(msg.Kind, msg.Name)
	if err != nil {
		return nil // entity deleted concurrently; drop
	}
	if h.status() != msg.From {
		return nil // stale relative to a newer user action; drop
	}
	h.setStatus(msg.To)
	return nil
}

// --- parameters, mute, solo ---

func (msg SetParam) apply(m *Manager) error {
	if msg.FadeBeats > 0 {
		cur, err := m.paramValue(msg.Target)
		if err != nil {
			return err
		}
		id := fmt.Sprintf("%d:%s:%s", msg.Target.Kind, msg.Target.Name, msg.Target.Param)
		now := m.state.Transport.CurrentBeat(time.Now())
		m.state.Fades[id] = &session.Fade{
			ID: id, Target: msg.Target, StartValue: cur, EndValue: msg.Value,
			StartBeat: now, EndBeat: now + msg.FadeBeats, Curve: msg.Curve,
		}
		return nil
	}
	id := fmt.Sprintf("%d:%s:%s", msg.Target.Kind, msg.Target.Name, msg.Target.Param)
	delete(m.state.Fades, id)
	return m.setParamValue(msg.Target, msg.Value)
}

func (m *Manager) paramValue(t session.FadeTarget) (float64, error) {
	switch t.Kind {
	case session.FadeTargetGroup:
		g, ok := m.state.Groups[t.Name]
		if !ok {
			return 0, apierr.NotFound("group %q not found", t.Name)
		}
		if t.Param == "gain" {
			return g.Gain, nil
		}
		return g.Params[t.Param], nil
	case session.FadeTargetVoice:
		v, ok := m.state.Voices[t.Name]
		if !ok {
			return 0, apierr.NotFound("voice %q not found", t.Name)
		}
		if t.Param == "gain" {
			return v.BaseGain, nil
		}
		return v.ParamDefaults[t.Param], nil
	case session.FadeTargetEffect:
		e, ok := m.state.Effects[t.Name]
		if !ok {
			return 0, apierr.NotFound("effect %q not found", t.Name)
		}
		return e.Params[t.Param], nil
	default:
		return 0, apierr.Internal("unknown fade target kind %d", t.Kind)
	}
}

func (m *Manager) setParamValue(t session.FadeTarget, v float64) error {
	switch t.Kind {
	case session.FadeTargetGroup:
		g, ok := m.state.Groups[t.Name]
		if !ok {
			return apierr.NotFound("group %q not found", t.Name)
		}
		if t.Param == "gain" {
			g.Gain = v
		} else {
			g.Params[t.Param] = v
		}
	case session.FadeTargetVoice:
		vo, ok := m.state.Voices[t.Name]
		if !ok {
			return apierr.NotFound("voice %q not found", t.Name)
		}
		if t.Param == "gain" {
			vo.BaseGain = v
		} else {
			vo.ParamDefaults[t.Param] = v
		}
	case session.FadeTargetEffect:
		e, ok := m.state.Effects[t.Name]
		if !ok {
			return apierr.NotFound("effect %q not found", t.Name)
		}
		e.Params[t.Param] = v
	default:
		return apierr.Internal("unknown fade target kind %d", t.Kind)
	}
	return nil
}

func (msg Mute) apply(m *Manager) error {
	switch msg.Kind {
	case MuteTargetGroup:
		g, ok := m.state.Groups[msg.Name]
		if !ok {
			return apierr.NotFound("group %q not found", msg.Name)
		}
		g.Muted = true
	case MuteTargetVoice:
		v, ok := m.state.Voices[msg.Name]
		if !ok {
			return apierr.NotFound("voice %q not found", msg.Name)
		}
		v.Muted = true
	}
	return nil
}

func (msg Unmute) apply(m *Manager) error {
	switch msg.Kind {
	case MuteTargetGroup:
		g, ok := m.state.Groups[msg.Name]
		if !ok {
			return apierr.NotFound("group %q not found", msg.Name)
		}
		g.Muted = false
	case MuteTargetVoice:
		v, ok := m.state.Voices[msg.Name]
		if !ok {
			return apierr.NotFound("voice %q not found", msg.Name)
		}
		v.Muted = false
	}
	return nil
}

func (msg Solo) apply(m *Manager) error {
	if msg.Kind != MuteTargetGroup {
		return apierr.InvalidArgument("solo only applies to groups")
	}
	g, ok := m.state.Groups[msg.Name]
	if !ok {
		return apierr.NotFound("group %q not found", msg.Name)
	}
	g.Soloed = true
	return nil
}

func (msg Unsolo) apply(m *Manager) error {
	if msg.Kind != MuteTargetGroup {
		return apierr.InvalidArgument("solo only applies to groups")
	}
	g, ok := m.state.Groups[msg.Name]
	if !ok {
		return apierr.NotFound("group %q not found", msg.Name)
	}
	g.Soloed = false
	return nil
}

// --- immediate note path (spec.md §4.8) ---

func (msg NoteOn) apply(m *Manager) error {
	v, ok := m.state.Voices[msg.Voice]
	if !ok {
		return apierr.NotFound("voice %q not found", msg.Voice)
	}
	if len(v.ActiveNotes) >= v.Polyphony {
		stealNote, oldest := -1, timing.Beat(0)
		first := true
		for n, a := range v.ActiveNotes {
			if first || a.StartBeat < oldest {
				stealNote, oldest, first = n, a.StartBeat, false
			}
		}
		if stealNote >= 0 {
			alloc := v.ActiveNotes[stealNote]
			if err := m.backend.TriggerNoteOff(msg.Voice, stealNote, alloc.SynthNodeID); err != nil {
				m.logger.Printf("engine: voice-steal note-off on %q note %d: %v", msg.Voice, stealNote, err)
			}
			delete(v.ActiveNotes, stealNote)
		}
	}
	nodeID, err := m.backend.TriggerNoteOn(msg.Voice, msg.Note, msg.Velocity)
	if err != nil {
		return apierr.BackendError("trigger note-on on %q: %v", msg.Voice, err)
	}
	v.ActiveNotes[msg.Note] = session.ActiveNote{SynthNodeID: nodeID, StartBeat: m.state.Transport.CurrentBeat(time.Now())}
	return nil
}

func (msg NoteOff) apply(m *Manager) error {
	v, ok := m.state.Voices[msg.Voice]
	if !ok {
		return apierr.NotFound("voice %q not found", msg.Voice)
	}
	alloc, ok := v.ActiveNotes[msg.Note]
	if !ok {
		return nil // idempotent: note already off
	}
	if err := m.backend.TriggerNoteOff(msg.Voice, msg.Note, alloc.SynthNodeID); err != nil {
		return apierr.BackendError("trigger note-off on %q: %v", msg.Voice, err)
	}
	delete(v.ActiveNotes, msg.Note)
	return nil
}

// NoteSounded is posted (async) by the scheduler after it has dispatched a
// scheduled note-on, so the voice's active-notes bookkeeping (used for
// polyphony/voice-stealing decisions) reflects reality.
type NoteSounded struct {
	Voice  string
	Note   int
	NodeID int64
	Beat   timing.Beat
}

func (msg NoteSounded) apply(m *Manager) error {
	v, ok := m.state.Voices[msg.Voice]
	if !ok {
		return nil
	}
	v.ActiveNotes[msg.Note] = session.ActiveNote{SynthNodeID: msg.NodeID, StartBeat: msg.Beat}
	return nil
}

// NoteReleased is the scheduled-note-off counterpart to NoteSounded.
type NoteReleased struct {
	Voice string
	Note  int
}

func (msg NoteReleased) apply(m *Manager) error {
	v, ok := m.state.Voices[msg.Voice]
	if !ok {
		return nil
	}
	delete(v.ActiveNotes, msg.Note)
	return nil
}

// --- samples, synthdefs, effects ---

func (msg LoadSample) apply(m *Manager) error {
	if _, exists := m.state.Samples[msg.ID]; exists {
		return apierr.Conflict("sample %q already exists", msg.ID)
	}
	info, err := sampleinfo.Inspect(msg.Path)
	if err != nil {
		return apierr.InvalidArgument("inspect sample %q: %v", msg.Path, err)
	}
	bufferID, err := m.backend.LoadSample(msg.ID, msg.Path)
	if err != nil {
		return apierr.BackendError("load sample %q: %v", msg.ID, err)
	}
	m.state.Samples[msg.ID] = &session.Sample{
		ID: msg.ID, Path: msg.Path, Channels: info.Channels, SampleRate: info.SampleRate,
		FrameCount: info.FrameCount, BufferID: bufferID,
	}
	return nil
}

func (msg UnloadSample) apply(m *Manager) error {
	s, ok := m.state.Samples[msg.ID]
	if !ok {
		return apierr.NotFound("sample %q not found", msg.ID)
	}
	if err := m.backend.UnloadSample(msg.ID, s.BufferID); err != nil {
		return apierr.BackendError("unload sample %q: %v", msg.ID, err)
	}
	delete(m.state.Samples, msg.ID)
	return nil
}

func (msg RegisterSynthDef) apply(m *Manager) error {
	if _, exists := m.state.SynthDefs[msg.Name]; exists {
		return apierr.Conflict("synthdef %q already registered", msg.Name)
	}
	if err := m.backend.RegisterSynthDef(msg.Name, msg.Source); err != nil {
		return apierr.BackendError("register synthdef %q: %v", msg.Name, err)
	}
	params := msg.Params
	if params == nil {
		params = map[string]float64{}
	}
	m.state.SynthDefs[msg.Name] = &session.SynthDef{Name: msg.Name, Params: params, Source: msg.Source, Origin: msg.Origin}
	return nil
}

func (msg UnregisterSynthDef) apply(m *Manager) error {
	if _, ok := m.state.SynthDefs[msg.Name]; !ok {
		return apierr.NotFound("synthdef %q not found", msg.Name)
	}
	for _, v := range m.state.Voices {
		if v.SynthDefID == msg.Name {
			return apierr.Conflict("synthdef %q is still used by voice %q", msg.Name, v.Name)
		}
	}
	for _, e := range m.state.Effects {
		if e.SynthDefID == msg.Name {
			return apierr.Conflict("synthdef %q is still used by effect %q", msg.Name, e.ID)
		}
	}
	if err := m.backend.UnregisterSynthDef(msg.Name); err != nil {
		return apierr.BackendError("unregister synthdef %q: %v", msg.Name, err)
	}
	delete(m.state.SynthDefs, msg.Name)
	return nil
}

func (msg DefineEffect) apply(m *Manager) error {
	if _, exists := m.state.Effects[msg.ID]; exists {
		return apierr.Conflict("effect %q already exists", msg.ID)
	}
	if _, ok := m.state.Groups[msg.TargetGroup]; !ok {
		return apierr.NotFound("group %q not found", msg.TargetGroup)
	}
	if msg.SynthDefID != "" {
		if _, ok := m.state.SynthDefs[msg.SynthDefID]; !ok {
			return apierr.NotFound("synthdef %q not found", msg.SynthDefID)
		}
	}
	if err := m.backend.CreateEffect(msg.ID, msg.TargetGroup, msg.Position); err != nil {
		return apierr.BackendError("create effect %q: %v", msg.ID, err)
	}
	params := msg.Params
	if params == nil {
		params = map[string]float64{}
	}
	m.state.Effects[msg.ID] = &session.Effect{
		ID: msg.ID, SynthDefID: msg.SynthDefID, TargetGroup: msg.TargetGroup, Position: msg.Position, Params: params,
	}
	return nil
}

func (msg DeleteEffect) apply(m *Manager) error {
	if _, ok := m.state.Effects[msg.ID]; !ok {
		return apierr.NotFound("effect %q not found", msg.ID)
	}
	if err := m.backend.FreeEffect(msg.ID); err != nil {
		return apierr.BackendError("free effect %q: %v", msg.ID, err)
	}
	delete(m.state.Effects, msg.ID)
	return nil
}
