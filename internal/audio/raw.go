package audio

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
)

// WriteRawFloat32 persists samples as little-endian float32 to path. This is
// the artifact format the isolated synthesis worker hands back to its parent.
func WriteRawFloat32(path string, samples []float32) error {
	if len(samples) == 0 {
		return ErrEmptyAudio
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create audio artifact: %w", err)
	}

	writer := bufio.NewWriter(file)

	writeErr := binary.Write(writer, binary.LittleEndian, samples)
	if writeErr != nil {
		_ = file.Close()

		return fmt.Errorf("failed to write audio artifact: %w", writeErr)
	}

	flushErr := writer.Flush()
	closeErr := file.Close()

	if flushErr != nil {
		return fmt.Errorf("failed to flush audio artifact: %w", flushErr)
	}

	if closeErr != nil {
		return fmt.Errorf("failed to close audio artifact: %w", closeErr)
	}

	return nil
}

// ReadRawFloat32 loads a little-endian float32 artifact written by
// WriteRawFloat32.
func ReadRawFloat32(path string) ([]float32, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio artifact: %w", err)
	}

	if len(data) == 0 || len(data)%4 != 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrEmptyAudio, len(data))
	}

	samples := make([]float32, len(data)/4)

	readErr := binary.Read(bytes.NewReader(data), binary.LittleEndian, samples)
	if readErr != nil {
		return nil, fmt.Errorf("failed to decode audio artifact: %w", readErr)
	}

	return samples, nil
}
