package engine

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/unicorn-commander/tts-panel/internal/weblog"
)

// EspeakPhonemizer shells out to the espeak-ng binary for grapheme-to-phoneme
// conversion. Arguments are passed directly to the process, never through a
// shell.
type EspeakPhonemizer struct {
	binary string
	log    *weblog.Log
}

// NewEspeakPhonemizer creates a phonemizer backed by the given espeak-ng
// binary path or name.
func NewEspeakPhonemizer(binary string, log *weblog.Log) *EspeakPhonemizer {
	return &EspeakPhonemizer{
		binary: binary,
		log:    log,
	}
}

// Phonemize converts text into an IPA phoneme string for the given language
// tag (espeak voice name, e.g. "en-us").
func (p *EspeakPhonemizer) Phonemize(ctx context.Context, text, lang string) (string, error) {
	args := []string{"-q", "--ipa=3", "-v", lang, "--", text}

	cmd := exec.CommandContext(ctx, p.binary, args...)

	var stdout, stderr bytes.Buffer

	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		if stderr.Len() > 0 {
			p.log.Warn("espeak stderr: %s", stderr.String())
		}

		return "", fmt.Errorf("espeak execution failed: %w", err)
	}

	phonemes := normalizePhonemes(stdout.String())
	if phonemes == "" {
		return "", fmt.Errorf("espeak produced no phonemes for %d chars", len(text))
	}

	return phonemes, nil
}

// normalizePhonemes joins output lines and collapses the separator marks
// espeak inserts between phonemes.
func normalizePhonemes(raw string) string {
	joined := strings.Join(strings.Fields(raw), " ")

	return strings.ReplaceAll(joined, "_", "")
}
