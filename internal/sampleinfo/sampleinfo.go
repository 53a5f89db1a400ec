// Package sampleinfo inspects WAV files to populate the Sample entity's
// channel count, sample rate and frame count without decoding audio data.
package sampleinfo

import (
	"fmt"
	"os"

	"github.com/go-audio/wav"
)

// Info holds the metadata the session's Sample entity needs.
type Info struct {
	Channels    int
	SampleRate  int64
	FrameCount  int64
	DurationSec float64
}

// Inspect reads a WAV file's header and PCM chunk length to compute its
// duration, sample rate, channel count and frame count. For non-PCM
// (compressed) WAVs it falls back to the decoder's own Duration().
func Inspect(filename string) (Info, error) {
	file, err := os.Open(filename)
	if err != nil {
		return Info{}, fmt.Errorf("open: %w", err)
	}
	defer file.Close()

	dec := wav.NewDecoder(file)
	if !dec.IsValidFile() {
		return Info{}, fmt.Errorf("invalid WAV file: %s", filename)
	}
	dec.ReadInfo()

	const formatPCM = 1
	const formatExtensible = 65534
	if int(dec.WavAudioFormat) != formatPCM && int(dec.WavAudioFormat) != formatExtensible {
		length, err := dec.Duration()
		if err != nil {
			return Info{}, fmt.Errorf("duration (non-PCM): %w", err)
		}
		return Info{
			Channels:    int(dec.NumChans),
			SampleRate:  int64(dec.SampleRate),
			FrameCount:  int64(length.Seconds() * float64(dec.SampleRate)),
			DurationSec: length.Seconds(),
		}, nil
	}

	if dec.SampleRate == 0 {
		return Info{}, fmt.Errorf("invalid sample rate: 0")
	}
	sampleWidth := int64(dec.BitDepth) / 8
	if sampleWidth <= 0 {
		return Info{}, fmt.Errorf("invalid bit depth: %d", dec.BitDepth)
	}
	channelCount := int64(dec.NumChans)
	if channelCount <= 0 {
		return Info{}, fmt.Errorf("invalid channel count: %d", dec.NumChans)
	}

	if !dec.WasPCMAccessed() && dec.PCMChunk == nil {
		if err := dec.FwdToPCM(); err != nil {
			return Info{}, fmt.Errorf("locate PCM: %w", err)
		}
	}

	pcmBytes := dec.PCMLen()
	if pcmBytes <= 0 {
		return Info{}, fmt.Errorf("no PCM data in %s", filename)
	}

	bytesPerFrame := sampleWidth * channelCount
	if bytesPerFrame == 0 {
		return Info{}, fmt.Errorf("invalid frame size")
	}

	frameCount := pcmBytes / bytesPerFrame
	return Info{
		Channels:    int(channelCount),
		SampleRate:  int64(dec.SampleRate),
		FrameCount:  frameCount,
		DurationSec: float64(frameCount) / float64(dec.SampleRate),
	}, nil
}

// DurationFor is a convenience that turns a wall-clock duration into a
// beat count given a reference BPM; it returns 0 for a non-positive BPM.
// Kept here, next to where frame/seconds math already lives.
func DurationFor(seconds float64, bpm float64) float64 {
	if bpm <= 0 {
		return 0
	}
	return seconds / (60.0 / bpm)
}
