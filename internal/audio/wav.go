// Package audio provides sample clipping, WAV encoding and decoding, and
// quality validation for the synthesis pipeline.
package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/up-zero/gotool/mediautil"
)

// Fixed output format: mono 16-bit PCM.
const (
	Channels      = 1
	BitsPerSample = 16

	pcmScale = 32767
)

// WAV container layout constants used by the decoder.
const (
	riffHeaderSize  = 12
	chunkHeaderSize = 8
)

// Static errors.
var (
	ErrEmptyAudio     = errors.New("audio data is empty")
	ErrNotRIFF        = errors.New("data is not a RIFF/WAVE container")
	ErrNoDataChunk    = errors.New("no data chunk found")
	ErrUnsupportedPCM = errors.New("unsupported PCM layout: expected mono 16-bit")
)

// Clip bounds every sample to [-1, 1] and squashes non-finite values to zero.
// It returns a new slice; the input is not modified.
func Clip(samples []float32) []float32 {
	clipped := make([]float32, len(samples))

	for i, s := range samples {
		switch {
		case math.IsNaN(float64(s)) || math.IsInf(float64(s), 0):
			clipped[i] = 0
		case s > 1:
			clipped[i] = 1
		case s < -1:
			clipped[i] = -1
		default:
			clipped[i] = s
		}
	}

	return clipped
}

// EncodeWAV clips the samples and encodes them as a mono 16-bit PCM WAV byte
// stream at the given sample rate.
func EncodeWAV(samples []float32, sampleRate int) ([]byte, error) {
	if len(samples) == 0 {
		return nil, ErrEmptyAudio
	}

	wavBytes, err := mediautil.Float32ToWavBytes(Clip(samples), sampleRate, Channels, BitsPerSample)
	if err != nil {
		return nil, fmt.Errorf("failed to encode WAV: %w", err)
	}

	return wavBytes, nil
}

// DecodeWAV parses a mono 16-bit PCM WAV byte stream back into float32
// samples and the sample rate. It is the inverse of EncodeWAV up to
// quantization error.
func DecodeWAV(data []byte) ([]float32, int, error) {
	if len(data) < riffHeaderSize {
		return nil, 0, ErrNotRIFF
	}

	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, 0, ErrNotRIFF
	}

	var (
		sampleRate int
		pcm        []byte
		haveFmt    bool
	)

	offset := riffHeaderSize
	for offset+chunkHeaderSize <= len(data) {
		chunkID := string(data[offset : offset+4])
		chunkSize := int(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))
		body := offset + chunkHeaderSize

		if body+chunkSize > len(data) {
			chunkSize = len(data) - body
		}

		switch chunkID {
		case "fmt ":
			if chunkSize < 16 {
				return nil, 0, ErrUnsupportedPCM
			}

			channels := binary.LittleEndian.Uint16(data[body+2 : body+4])
			bits := binary.LittleEndian.Uint16(data[body+14 : body+16])

			if channels != Channels || bits != BitsPerSample {
				return nil, 0, ErrUnsupportedPCM
			}

			sampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			haveFmt = true
		case "data":
			pcm = data[body : body+chunkSize]
		}

		// Chunks are word-aligned.
		offset = body + chunkSize + chunkSize%2
	}

	if !haveFmt || pcm == nil {
		return nil, 0, ErrNoDataChunk
	}

	samples := make([]float32, len(pcm)/2)
	for i := range samples {
		v := int16(binary.LittleEndian.Uint16(pcm[2*i : 2*i+2]))
		samples[i] = float32(v) / pcmScale
	}

	return samples, sampleRate, nil
}

// Duration returns the audio duration in seconds for a sample count at the
// given rate, zero when the rate is not positive.
func Duration(sampleCount, sampleRate int) float64 {
	if sampleRate <= 0 {
		return 0
	}

	return float64(sampleCount) / float64(sampleRate)
}
