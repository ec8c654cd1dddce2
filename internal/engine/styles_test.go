package engine_test

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/unicorn-commander/tts-panel/internal/engine"
)

// writeVoicesResource builds a voices file with one voice whose style values
// encode their bucket index, so lookups are verifiable.
func writeVoicesResource(t *testing.T, name string, maxTokens, styleDim int) string {
	t.Helper()

	var buf bytes.Buffer

	buf.WriteString("VOIC")
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint32(1)))
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint32(maxTokens)))
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint32(styleDim)))
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, uint16(len(name))))
	buf.WriteString(name)

	for bucket := range maxTokens {
		for range styleDim {
			require.NoError(t, binary.Write(&buf, binary.LittleEndian, float32(bucket)))
		}
	}

	path := filepath.Join(t.TempDir(), "voices.bin")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))

	return path
}

func newTestStyleTable(t *testing.T, name string, maxTokens, styleDim int) *engine.StyleTable {
	t.Helper()

	table, err := engine.LoadStyleTable(writeVoicesResource(t, name, maxTokens, styleDim))
	require.NoError(t, err)

	return table
}

func TestLoadStyleTable(t *testing.T) {
	t.Parallel()

	table := newTestStyleTable(t, "af_heart", 8, 3)

	require.Equal(t, []string{"af_heart"}, table.Voices())
	require.Equal(t, 3, table.StyleDim())
	require.Equal(t, 8, table.MaxTokens())
}

func TestResolveBucketsByTokenLength(t *testing.T) {
	t.Parallel()

	table := newTestStyleTable(t, "af_heart", 8, 3)

	style, err := table.Resolve("af_heart", 5)
	require.NoError(t, err)
	require.Equal(t, []float32{5, 5, 5}, style)

	style, err = table.Resolve("af_heart", 0)
	require.NoError(t, err)
	require.Equal(t, []float32{0, 0, 0}, style)
}

func TestResolveUnknownVoice(t *testing.T) {
	t.Parallel()

	table := newTestStyleTable(t, "af_heart", 8, 3)

	_, err := table.Resolve("am_nova", 1)
	require.ErrorIs(t, err, engine.ErrUnknownVoice)
}

func TestResolveOutOfRangeTokenLength(t *testing.T) {
	t.Parallel()

	table := newTestStyleTable(t, "af_heart", 8, 3)

	_, err := table.Resolve("af_heart", 8)
	require.ErrorIs(t, err, engine.ErrStyleIndexRange)

	_, err = table.Resolve("af_heart", -1)
	require.ErrorIs(t, err, engine.ErrStyleIndexRange)
}

func TestLoadStyleTableRejectsBadMagic(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "voices.bin")
	require.NoError(t, os.WriteFile(path, []byte("NOPE1234"), 0o600))

	_, err := engine.LoadStyleTable(path)
	require.ErrorIs(t, err, engine.ErrBadVoicesResource)
}

func TestLoadStyleTableRejectsTruncatedData(t *testing.T) {
	t.Parallel()

	full, err := os.ReadFile(writeVoicesResource(t, "af_heart", 4, 2))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "voices.bin")
	require.NoError(t, os.WriteFile(path, full[:len(full)-5], 0o600))

	_, err = engine.LoadStyleTable(path)
	require.ErrorIs(t, err, engine.ErrBadVoicesResource)
}
