package engine

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
)

// Voices resource layout: magic, uint32 voice count, uint32 max token length,
// uint32 style dimension, then per voice a uint16-prefixed name followed by
// maxTokens*styleDim little-endian float32 values.
const styleMagic = "VOIC"

const maxVoiceNameLen = 256

// Static errors for the voices resource reader.
var (
	ErrBadVoicesResource = errors.New("malformed voices resource")
)

// StyleTable holds every voice's length-bucketed style vectors. Loaded once at
// startup and treated as immutable, so concurrent reads need no locking.
type StyleTable struct {
	voices    map[string][][]float32
	names     []string
	styleDim  int
	maxTokens int
}

// LoadStyleTable reads the binary voices resource at path.
func LoadStyleTable(path string) (*StyleTable, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open voices resource: %w", err)
	}
	defer file.Close()

	table, err := readStyleTable(bufio.NewReader(file))
	if err != nil {
		return nil, fmt.Errorf("voices resource %s: %w", path, err)
	}

	return table, nil
}

func readStyleTable(reader io.Reader) (*StyleTable, error) {
	magic := make([]byte, len(styleMagic))

	_, err := io.ReadFull(reader, magic)
	if err != nil {
		return nil, fmt.Errorf("%w: missing header: %w", ErrBadVoicesResource, err)
	}

	if string(magic) != styleMagic {
		return nil, fmt.Errorf("%w: bad magic %q", ErrBadVoicesResource, magic)
	}

	var voiceCount, maxTokens, styleDim uint32

	for _, field := range []*uint32{&voiceCount, &maxTokens, &styleDim} {
		err = binary.Read(reader, binary.LittleEndian, field)
		if err != nil {
			return nil, fmt.Errorf("%w: truncated header: %w", ErrBadVoicesResource, err)
		}
	}

	if voiceCount == 0 || maxTokens == 0 || styleDim == 0 {
		return nil, fmt.Errorf(
			"%w: zero dimension (voices=%d max_tokens=%d style_dim=%d)",
			ErrBadVoicesResource, voiceCount, maxTokens, styleDim,
		)
	}

	table := &StyleTable{
		voices:    make(map[string][][]float32, voiceCount),
		names:     make([]string, 0, voiceCount),
		styleDim:  int(styleDim),
		maxTokens: int(maxTokens),
	}

	for range voiceCount {
		name, readErr := readVoiceName(reader)
		if readErr != nil {
			return nil, readErr
		}

		vectors, readErr := readVoiceVectors(reader, int(maxTokens), int(styleDim))
		if readErr != nil {
			return nil, fmt.Errorf("voice %q: %w", name, readErr)
		}

		table.voices[name] = vectors
		table.names = append(table.names, name)
	}

	sort.Strings(table.names)

	return table, nil
}

func readVoiceName(reader io.Reader) (string, error) {
	var nameLen uint16

	err := binary.Read(reader, binary.LittleEndian, &nameLen)
	if err != nil {
		return "", fmt.Errorf("%w: truncated voice name length: %w", ErrBadVoicesResource, err)
	}

	if nameLen == 0 || nameLen > maxVoiceNameLen {
		return "", fmt.Errorf("%w: voice name length %d", ErrBadVoicesResource, nameLen)
	}

	name := make([]byte, nameLen)

	_, err = io.ReadFull(reader, name)
	if err != nil {
		return "", fmt.Errorf("%w: truncated voice name: %w", ErrBadVoicesResource, err)
	}

	return string(name), nil
}

func readVoiceVectors(reader io.Reader, maxTokens, styleDim int) ([][]float32, error) {
	flat := make([]float32, maxTokens*styleDim)

	err := binary.Read(reader, binary.LittleEndian, flat)
	if err != nil {
		return nil, fmt.Errorf("%w: truncated style data: %w", ErrBadVoicesResource, err)
	}

	vectors := make([][]float32, maxTokens)
	for i := range vectors {
		vectors[i] = flat[i*styleDim : (i+1)*styleDim : (i+1)*styleDim]
	}

	return vectors, nil
}

// Resolve returns the style vector for a voice at the given pre-padding token
// length. Bounds are checked before indexing; an out-of-range length is a
// client-facing error, never an out-of-bounds read.
func (t *StyleTable) Resolve(voiceID string, tokenLength int) ([]float32, error) {
	vectors, ok := t.voices[voiceID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownVoice, voiceID)
	}

	if tokenLength < 0 || tokenLength >= len(vectors) {
		return nil, fmt.Errorf(
			"%w: %d tokens, voice %q supports at most %d",
			ErrStyleIndexRange, tokenLength, voiceID, len(vectors)-1,
		)
	}

	return vectors[tokenLength], nil
}

// Voices lists the available voice ids in sorted order.
func (t *StyleTable) Voices() []string {
	names := make([]string, len(t.names))
	copy(names, t.names)

	return names
}

// StyleDim returns the fixed style vector dimensionality.
func (t *StyleTable) StyleDim() int {
	return t.styleDim
}

// MaxTokens returns the largest supported pre-padding token length plus one
// (the bucket count).
func (t *StyleTable) MaxTokens() int {
	return t.maxTokens
}
