package engine

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/unicorn-commander/tts-panel/internal/core"
)

// ModelConfig mirrors the model's sidecar JSON: output format, table bounds,
// and the phoneme-to-id vocabulary.
type ModelConfig struct {
	SampleRate int              `json:"sample_rate"`
	StyleDim   int              `json:"style_dim"`
	MaxTokens  int              `json:"max_tokens"`
	Vocab      map[string]int64 `json:"vocab"`
}

// LoadModelConfig reads and parses the model sidecar JSON.
func LoadModelConfig(path string) (*ModelConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model config: %w", err)
	}

	var cfg ModelConfig

	err = json.Unmarshal(data, &cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse model config: %w", err)
	}

	if len(cfg.Vocab) == 0 {
		return nil, fmt.Errorf("model config %s has an empty vocabulary", path)
	}

	return &cfg, nil
}

// TokenIDs maps each phoneme symbol to its integer id. Symbols absent from
// the vocabulary are skipped, matching the reference tokenizer's behavior for
// stress marks the model was not trained on.
func (c *ModelConfig) TokenIDs(phonemes string) ([]int64, error) {
	ids := make([]int64, 0, len(phonemes))

	for _, symbol := range phonemes {
		id, ok := c.Vocab[string(symbol)]
		if !ok {
			continue
		}

		ids = append(ids, id)
	}

	if len(ids) == 0 {
		return nil, fmt.Errorf("no vocabulary entries matched %d phoneme symbols", len([]rune(phonemes)))
	}

	return ids, nil
}

// ResolveProfile maps the configured profile name to its variant, once at
// load time. Unknown names fall back to the standard layout.
func ResolveProfile(name string) core.ModelInputProfile {
	if name == "style_only" {
		return core.ProfileStyleOnly
	}

	return core.ProfileTokensAndStyle
}
