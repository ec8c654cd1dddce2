package engine_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/unicorn-commander/tts-panel/internal/engine"
)

type failingPhonemizer struct{ err error }

func (p failingPhonemizer) Phonemize(_ context.Context, _, _ string) (string, error) {
	return "", p.err
}

func TestTokenizeEmptyText(t *testing.T) {
	t.Parallel()

	tokenizer := engine.NewTokenizer(fakePhonemizer{}, fakeVocabulary{}, newTestLog(t))

	_, err := tokenizer.Tokenize(context.Background(), "   \n\t", "en-us")
	require.ErrorIs(t, err, engine.ErrEmptyInput)
}

func TestTokenizeWrapsPhonemizerFailure(t *testing.T) {
	t.Parallel()

	cause := errors.New("espeak exited 1")
	tokenizer := engine.NewTokenizer(failingPhonemizer{err: cause}, fakeVocabulary{}, newTestLog(t))

	_, err := tokenizer.Tokenize(context.Background(), "hello", "en-us")
	require.ErrorIs(t, err, engine.ErrTokenization)
	require.ErrorIs(t, err, cause)
}

func TestPadTokensAddsBoundaries(t *testing.T) {
	t.Parallel()

	padded := engine.PadTokens([]int64{5, 6, 7})
	require.Equal(t, []int64{engine.BoundaryTokenID, 5, 6, 7, engine.BoundaryTokenID}, padded)
}

func TestPadTokensEmptySequence(t *testing.T) {
	t.Parallel()

	padded := engine.PadTokens(nil)
	require.Equal(t, []int64{engine.BoundaryTokenID, engine.BoundaryTokenID}, padded)
	require.Len(t, padded, 2)
}
