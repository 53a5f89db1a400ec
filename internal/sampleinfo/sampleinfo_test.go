package sampleinfo

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
)

func writeTestWAV(t *testing.T, path string, sampleRate, numChans, bitDepth, numFrames int) {
	t.Helper()
	f, err := os.Create(path)
	assert.NoError(t, err)
	defer f.Close()

	enc := wav.NewEncoder(f, sampleRate, bitDepth, numChans, 1)
	buf := &audio.IntBuffer{
		Format: &audio.Format{NumChannels: numChans, SampleRate: sampleRate},
		Data:   make([]int, numFrames*numChans),
	}
	assert.NoError(t, enc.Write(buf))
	assert.NoError(t, enc.Close())
}

func TestInspect(t *testing.T) {
	t.Run("mono 44100hz", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "kick.wav")
		writeTestWAV(t, path, 44100, 1, 16, 4410)

		info, err := Inspect(path)
		assert.NoError(t, err)
		assert.Equal(t, 1, info.Channels)
		assert.EqualValues(t, 44100, info.SampleRate)
		assert.EqualValues(t, 4410, info.FrameCount)
		assert.InDelta(t, 0.1, info.DurationSec, 0.001)
	})

	t.Run("stereo 48000hz", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "pad.wav")
		writeTestWAV(t, path, 48000, 2, 16, 9600)

		info, err := Inspect(path)
		assert.NoError(t, err)
		assert.Equal(t, 2, info.Channels)
		assert.EqualValues(t, 48000, info.SampleRate)
		assert.EqualValues(t, 9600, info.FrameCount)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Inspect("/nonexistent/does-not-exist.wav")
		assert.Error(t, err)
	})

	t.Run("not a wav file", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "not-a-wav.txt")
		assert.NoError(t, os.WriteFile(path, []byte("hello"), 0644))

		_, err := Inspect(path)
		assert.Error(t, err)
	})
}

func TestDurationFor(t *testing.T) {
	assert.InDelta(t, 4.0, DurationFor(2.0, 120), 1e-9)
	assert.Equal(t, 0.0, DurationFor(2.0, 0))
}
