// Package timing holds the beat-time primitives shared by the transport,
// scheduler and OSC dispatcher: beat<->wall-seconds conversion, time
// signatures, quantization and fade-curve sampling.
package timing

import "math"

// Beat is a position in musical time, measured in beats since transport
// start. Always non-negative while a transport is running.
type Beat float64

// TempoSegment is one piecewise-constant run of a TempoMap: from beat
// StartBeat (inclusive) at BPM, until the next segment's StartBeat.
type TempoSegment struct {
	StartBeat Beat
	BPM       float64
}

// TempoMap is a piecewise-constant function from beat time to BPM. The
// common case is a single segment starting at beat 0. Segments must be
// sorted by StartBeat ascending; Segments[0].StartBeat is conventionally 0.
type TempoMap struct {
	Segments []TempoSegment
}

// NewConstantTempoMap builds a single-segment tempo map.
func NewConstantTempoMap(bpm float64) TempoMap {
	return TempoMap{Segments: []TempoSegment{{StartBeat: 0, BPM: bpm}}}
}

// BPMAt returns the tempo in effect at the given beat.
func (tm TempoMap) BPMAt(b Beat) float64 {
	if len(tm.Segments) == 0 {
		return 120
	}
	bpm := tm.Segments[0].BPM
	for _, seg := range tm.Segments {
		if seg.StartBeat > b {
			break
		}
		bpm = seg.BPM
	}
	return bpm
}

// WallSecondsAt converts a beat position into wall-clock seconds since
// transport start, by summing each tempo segment's contribution:
// segment-length-beats * 60 / segment-BPM (spec.md §4.1).
func (tm TempoMap) WallSecondsAt(b Beat) float64 {
	if len(tm.Segments) == 0 {
		return float64(b) * 60.0 / 120.0
	}
	var seconds float64
	for i, seg := range tm.Segments {
		segEnd := b
		if i+1 < len(tm.Segments) && tm.Segments[i+1].StartBeat < b {
			segEnd = tm.Segments[i+1].StartBeat
		}
		if segEnd <= seg.StartBeat {
			continue
		}
		length := float64(segEnd - seg.StartBeat)
		seconds += length * 60.0 / seg.BPM
	}
	return seconds
}

// AppendSegment rebases the map at a new tempo starting at beat b, keeping
// beat position continuous (spec.md §4.6: "no jump occurs").
func (tm *TempoMap) AppendSegment(b Beat, bpm float64) {
	for i := range tm.Segments {
		if tm.Segments[i].StartBeat >= b {
			tm.Segments = tm.Segments[:i]
			break
		}
	}
	tm.Segments = append(tm.Segments, TempoSegment{StartBeat: b, BPM: bpm})
}

// BeatAt is the inverse of WallSecondsAt: given elapsed wall-clock seconds
// since transport start, returns the corresponding beat position. Used by
// the transport clock to derive "now" without polling a ticker message
// through the state manager's mailbox.
func (tm TempoMap) BeatAt(seconds float64) Beat {
	if len(tm.Segments) == 0 {
		return Beat(seconds * 120.0 / 60.0)
	}
	segWall := make([]float64, len(tm.Segments))
	for i, seg := range tm.Segments {
		segWall[i] = tm.WallSecondsAt(seg.StartBeat)
	}
	idx := 0
	for i := range tm.Segments {
		if segWall[i] > seconds {
			break
		}
		idx = i
	}
	seg := tm.Segments[idx]
	elapsed := seconds - segWall[idx]
	return seg.StartBeat + Beat(elapsed*seg.BPM/60.0)
}

// TimeSignature partitions beat time into bars.
type TimeSignature struct {
	Numerator   int
	Denominator int
}

// BeatsPerBar returns the number of quarter-note beats in one bar under
// this signature, assuming the beat unit is a quarter note.
func (ts TimeSignature) BeatsPerBar() float64 {
	if ts.Denominator == 0 {
		return float64(ts.Numerator)
	}
	return float64(ts.Numerator) * 4.0 / float64(ts.Denominator)
}

// BarAt returns the zero-based bar number containing beat b.
func (ts TimeSignature) BarAt(b Beat) int {
	bpb := ts.BeatsPerBar()
	if bpb <= 0 {
		return 0
	}
	return int(math.Floor(float64(b) / bpb))
}

// Quantize aligns an arbitrary beat to the next multiple of q at or after b:
// ceil(b/q) * q (spec.md §4.1).
func Quantize(b Beat, q Beat) Beat {
	if q <= 0 {
		return b
	}
	n := math.Ceil(float64(b) / float64(q))
	return Beat(n) * q
}

// Curve names a fade interpolation shape (spec.md §4.4).
type Curve int

const (
	CurveLinear Curve = iota
	CurveExponential
	CurveCosine
)

// Sample evaluates a fade curve at beat b within [start, end], interpolating
// between from and to. Values outside [start, end] clamp to the endpoints.
func Sample(curve Curve, from, to float64, start, end, b Beat) float64 {
	if end <= start {
		return to
	}
	t := float64(b-start) / float64(end-start)
	if t <= 0 {
		return from
	}
	if t >= 1 {
		return to
	}
	switch curve {
	case CurveExponential:
		if from <= 0 || to <= 0 {
			// exponential interpolation is undefined through zero/negative;
			// fall back to linear rather than producing NaN.
			return from + (to-from)*t
		}
		return from * math.Pow(to/from, t)
	case CurveCosine:
		w := (1 - math.Cos(t*math.Pi)) / 2
		return from + (to-from)*w
	default:
		return from + (to-from)*t
	}
}
