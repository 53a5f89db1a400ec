package timing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWallSecondsAt(t *testing.T) {
	tm := NewConstantTempoMap(120) // 0.5s/beat
	assert.InDelta(t, 0.0, tm.WallSecondsAt(0), 1e-9)
	assert.InDelta(t, 2.0, tm.WallSecondsAt(4), 1e-9)
	assert.InDelta(t, 30.0, tm.WallSecondsAt(60), 1e-9)
}

func TestTempoChangeKeepsBeatContinuous(t *testing.T) {
	tm := NewConstantTempoMap(120)
	before := tm.WallSecondsAt(8) // 4s in at 120bpm

	tm.AppendSegment(8, 60) // slow down starting at beat 8
	after := tm.WallSecondsAt(8)

	// beat 8 itself must still land at the same wall-time; only the
	// derivative (slope) past that point changes.
	assert.InDelta(t, before, after, 1e-9)

	// past beat 8 the new, slower tempo applies: beats 8..12 take 4s at 60bpm
	assert.InDelta(t, before+4.0, tm.WallSecondsAt(12), 1e-9)
}

func TestBeatAtIsInverseOfWallSecondsAt(t *testing.T) {
	tm := NewConstantTempoMap(120)
	for _, b := range []Beat{0, 1, 4, 30.5} {
		secs := tm.WallSecondsAt(b)
		assert.InDelta(t, float64(b), float64(tm.BeatAt(secs)), 1e-9)
	}
}

func TestBeatAtAcrossTempoChange(t *testing.T) {
	tm := NewConstantTempoMap(120)
	tm.AppendSegment(8, 60) // beats 0..8 at 120bpm (4s), then 60bpm

	assert.InDelta(t, 4.0, float64(tm.BeatAt(2.0)), 1e-9)     // still in the fast segment
	assert.InDelta(t, 8.0, float64(tm.BeatAt(4.0)), 1e-9)     // exactly the breakpoint
	assert.InDelta(t, 10.0, float64(tm.BeatAt(6.0)), 1e-9)    // 2s into the slow segment = 2 beats at 60bpm
}

func TestBPMAt(t *testing.T) {
	tm := TempoMap{Segments: []TempoSegment{{0, 120}, {16, 90}}}
	assert.Equal(t, 120.0, tm.BPMAt(0))
	assert.Equal(t, 120.0, tm.BPMAt(15.9))
	assert.Equal(t, 90.0, tm.BPMAt(16))
	assert.Equal(t, 90.0, tm.BPMAt(100))
}

func TestBarAt(t *testing.T) {
	ts := TimeSignature{Numerator: 4, Denominator: 4}
	assert.Equal(t, 4.0, ts.BeatsPerBar())
	assert.Equal(t, 0, ts.BarAt(0))
	assert.Equal(t, 0, ts.BarAt(3.9))
	assert.Equal(t, 1, ts.BarAt(4))
	assert.Equal(t, 2, ts.BarAt(8.5))
}

func TestQuantize(t *testing.T) {
	cases := []struct {
		b, q, want Beat
	}{
		{0.7, 1.0, 1.0},
		{1.0, 1.0, 1.0},
		{0.0, 1.0, 0.0},
		{2.3, 0.5, 2.5},
		{5, 0, 5}, // quantize of 0 is a no-op
	}
	for _, c := range cases {
		got := Quantize(c.b, c.q)
		if got != c.want {
			t.Errorf("Quantize(%v, %v) = %v, want %v", c.b, c.q, got, c.want)
		}
	}
}

func TestSampleLinear(t *testing.T) {
	assert.InDelta(t, 0.0, Sample(CurveLinear, 0, 1, 10, 14, 10), 1e-9)
	assert.InDelta(t, 0.5, Sample(CurveLinear, 0, 1, 10, 14, 12), 1e-9)
	assert.InDelta(t, 1.0, Sample(CurveLinear, 0, 1, 10, 14, 14), 1e-9)
	assert.InDelta(t, 1.0, Sample(CurveLinear, 0, 1, 10, 14, 20), 1e-9)
}

func TestSampleCosineSymmetric(t *testing.T) {
	mid := Sample(CurveCosine, 0, 1, 0, 10, 5)
	assert.InDelta(t, 0.5, mid, 1e-9)
}

func TestSampleExponential(t *testing.T) {
	v := Sample(CurveExponential, 1, 4, 0, 2, 1)
	assert.InDelta(t, 2.0, v, 1e-9) // geometric midpoint of 1 and 4
}
