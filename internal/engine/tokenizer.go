package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/unicorn-commander/tts-panel/internal/core"
	"github.com/unicorn-commander/tts-panel/internal/text"
	"github.com/unicorn-commander/tts-panel/internal/weblog"
)

// BoundaryTokenID is the fixed marker wrapped around every token sequence.
const BoundaryTokenID = 0

// Tokenizer converts raw text plus a language tag into an integer token
// sequence through the injected phonemizer and vocabulary capabilities.
type Tokenizer struct {
	normalizer *text.Normalizer
	phonemizer core.Phonemizer
	vocabulary core.Vocabulary
	log        *weblog.Log
}

// NewTokenizer wires the tokenization pipeline.
func NewTokenizer(phonemizer core.Phonemizer, vocabulary core.Vocabulary, log *weblog.Log) *Tokenizer {
	return &Tokenizer{
		normalizer: text.NewNormalizer(),
		phonemizer: phonemizer,
		vocabulary: vocabulary,
		log:        log,
	}
}

// Tokenize returns the unpadded token sequence for text. The empty-input check
// happens here so every entry point shares it; any phonemizer or vocabulary
// failure propagates as ErrTokenization with the cause attached. No retry.
func (t *Tokenizer) Tokenize(ctx context.Context, text, lang string) ([]int64, error) {
	trimmed := t.normalizer.Normalize(strings.TrimSpace(text))
	if trimmed == "" {
		return nil, ErrEmptyInput
	}

	phonemes, err := t.phonemizer.Phonemize(ctx, trimmed, lang)
	if err != nil {
		return nil, fmt.Errorf("%w: phonemizer: %w", ErrTokenization, err)
	}

	tokens, err := t.vocabulary.TokenIDs(phonemes)
	if err != nil {
		return nil, fmt.Errorf("%w: vocabulary: %w", ErrTokenization, err)
	}

	t.log.Info("Tokenized %d chars into %d tokens", len(trimmed), len(tokens))

	return tokens, nil
}

// PadTokens wraps an id sequence with the leading and trailing boundary
// marker. The result length is always len(tokens) + 2.
func PadTokens(tokens []int64) []int64 {
	padded := make([]int64, 0, len(tokens)+2)
	padded = append(padded, BoundaryTokenID)
	padded = append(padded, tokens...)
	padded = append(padded, BoundaryTokenID)

	return padded
}
