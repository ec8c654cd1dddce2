// Package audio_test tests waveform clipping, WAV encoding and the raw
// float32 artifact format.
package audio_test

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/unicorn-commander/tts-panel/internal/audio"
)

func TestClipBoundsSamples(t *testing.T) {
	t.Parallel()

	clipped := audio.Clip([]float32{0.5, 1.5, -2.0, 1.0, -1.0})
	require.Equal(t, []float32{0.5, 1.0, -1.0, 1.0, -1.0}, clipped)
}

func TestClipReplacesNonFinite(t *testing.T) {
	t.Parallel()

	nan := float32(math.NaN())
	inf := float32(math.Inf(1))

	clipped := audio.Clip([]float32{nan, inf, -inf, 0.25})
	require.Equal(t, []float32{0, 0, 0, 0.25}, clipped)
}

func TestClipDoesNotMutateInput(t *testing.T) {
	t.Parallel()

	input := []float32{2.0}
	_ = audio.Clip(input)
	require.Equal(t, float32(2.0), input[0])
}

func TestWAVRoundTrip(t *testing.T) {
	t.Parallel()

	samples := []float32{0, 0.25, -0.25, 0.9999, -1.0}

	encoded, err := audio.EncodeWAV(samples, 24000)
	require.NoError(t, err)

	decoded, sampleRate, err := audio.DecodeWAV(encoded)
	require.NoError(t, err)
	require.Equal(t, 24000, sampleRate)
	require.Len(t, decoded, len(samples))

	// 16-bit quantization bounds the round-trip error.
	for i := range samples {
		require.InDelta(t, samples[i], decoded[i], 1.0/32767.0)
	}
}

func TestEncodeWAVRejectsEmptyAudio(t *testing.T) {
	t.Parallel()

	_, err := audio.EncodeWAV(nil, 24000)
	require.ErrorIs(t, err, audio.ErrEmptyAudio)
}

func TestDecodeWAVRejectsGarbage(t *testing.T) {
	t.Parallel()

	_, _, err := audio.DecodeWAV([]byte("not a riff container"))
	require.ErrorIs(t, err, audio.ErrNotRIFF)
}

func TestDuration(t *testing.T) {
	t.Parallel()

	require.InDelta(t, 1.0, audio.Duration(24000, 24000), 1e-9)
	require.Zero(t, audio.Duration(24000, 0))
}

func TestRawFloat32RoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "samples.raw")
	samples := []float32{0.1, -0.5, 0.9999, 0}

	require.NoError(t, audio.WriteRawFloat32(path, samples))

	loaded, err := audio.ReadRawFloat32(path)
	require.NoError(t, err)
	require.Equal(t, samples, loaded)
}

func TestWriteRawFloat32RejectsEmpty(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "samples.raw")
	require.Error(t, audio.WriteRawFloat32(path, nil))
}
