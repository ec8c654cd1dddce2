package server

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/pelletier/go-toml/v2"

	"github.com/unicorn-commander/tts-panel/internal/audio"
	"github.com/unicorn-commander/tts-panel/internal/weblog"
)

// Static errors for the settings store.
var (
	ErrUnknownSetting = errors.New("unknown setting")
	ErrInvalidSetting = errors.New("invalid setting value")
)

const errFmtUnknownSetting = "%w: %q"

// Methods accepted by the preferred_method setting.
var validMethods = map[string]bool{
	"auto":              true,
	"mlir_npu":          true,
	"vitisai":           true,
	"cpu":               true,
	"accelerated":       true,
	"basic_accelerated": true,
}

var validLogLevels = map[string]bool{
	"DEBUG":   true,
	"INFO":    true,
	"WARNING": true,
	"ERROR":   true,
}

// Settings is the persisted user configuration of the panel.
type Settings struct {
	PreferredMethod string  `json:"preferred_method" toml:"preferred_method"`
	AudioQuality    string  `json:"audio_quality"    toml:"audio_quality"`
	SampleRate      int     `json:"sample_rate"      toml:"sample_rate"`
	Speed           float64 `json:"speed"            toml:"speed"`
	Pitch           float64 `json:"pitch"            toml:"pitch"`
	AutoPlay        bool    `json:"auto_play"        toml:"auto_play"`
	LogLevel        string  `json:"log_level"        toml:"log_level"`
	MaxTextLength   int     `json:"max_text_length"  toml:"max_text_length"`
	ShowAdvanced    bool    `json:"show_advanced"    toml:"show_advanced"`
}

// DefaultSettings returns the initial configuration.
func DefaultSettings() Settings {
	return Settings{
		PreferredMethod: "auto",
		AudioQuality:    "high",
		SampleRate:      24000,
		Speed:           1.0,
		Pitch:           1.0,
		AutoPlay:        true,
		LogLevel:        "INFO",
		MaxTextLength:   1000,
		ShowAdvanced:    false,
	}
}

// SettingsStore holds the live settings and persists them as TOML. Safe for
// concurrent use.
type SettingsStore struct {
	mu       sync.RWMutex
	settings Settings
	path     string
	log      *weblog.Log
}

// NewSettingsStore loads persisted settings from path, falling back to
// defaults when the file is absent or unreadable.
func NewSettingsStore(path string, log *weblog.Log) *SettingsStore {
	store := &SettingsStore{
		settings: DefaultSettings(),
		path:     path,
		log:      log,
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Warn("Failed to read settings file %s: %v", path, err)
		}

		return store
	}

	loaded := DefaultSettings()

	err = toml.Unmarshal(data, &loaded)
	if err != nil {
		log.Warn("Ignoring malformed settings file %s: %v", path, err)

		return store
	}

	store.settings = loaded

	return store
}

// Get returns a copy of the current settings.
func (s *SettingsStore) Get() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.settings
}

// Apply merges a partial update keyed by setting name, validating every key
// and value before any of them take effect, then persists the result.
func (s *SettingsStore) Apply(update map[string]any) (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.settings

	for key, value := range update {
		err := applySetting(&next, key, value)
		if err != nil {
			return s.settings, err
		}
	}

	s.settings = next

	err := s.persist(next)
	if err != nil {
		s.log.Warn("Failed to persist settings: %v", err)
	}

	return next, nil
}

func (s *SettingsStore) persist(settings Settings) error {
	data, err := toml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}

	dir := filepath.Dir(s.path)

	err = os.MkdirAll(dir, 0o750)
	if err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}

	err = os.WriteFile(s.path, data, 0o600)
	if err != nil {
		return fmt.Errorf("failed to write settings file: %w", err)
	}

	return nil
}

func applySetting(settings *Settings, key string, value any) error {
	switch key {
	case "preferred_method":
		method, err := stringValue(key, value)
		if err != nil {
			return err
		}

		if !validMethods[method] {
			return fmt.Errorf("%w: preferred_method %q", ErrInvalidSetting, method)
		}

		settings.PreferredMethod = method
	case "audio_quality":
		quality, err := stringValue(key, value)
		if err != nil {
			return err
		}

		validErr := audio.ValidateQualityName(quality)
		if validErr != nil {
			return fmt.Errorf("%w: %w", ErrInvalidSetting, validErr)
		}

		settings.AudioQuality = quality
	case "sample_rate":
		rate, err := intValue(key, value)
		if err != nil {
			return err
		}

		validErr := audio.ValidateSampleRate(rate)
		if validErr != nil {
			return fmt.Errorf("%w: %w", ErrInvalidSetting, validErr)
		}

		settings.SampleRate = rate
	case "speed":
		speed, err := floatValue(key, value)
		if err != nil {
			return err
		}

		validErr := audio.ValidateSpeed(speed)
		if validErr != nil {
			return fmt.Errorf("%w: %w", ErrInvalidSetting, validErr)
		}

		settings.Speed = speed
	case "pitch":
		pitch, err := floatValue(key, value)
		if err != nil {
			return err
		}

		validErr := audio.ValidatePitch(pitch)
		if validErr != nil {
			return fmt.Errorf("%w: %w", ErrInvalidSetting, validErr)
		}

		settings.Pitch = pitch
	case "auto_play":
		auto, err := boolValue(key, value)
		if err != nil {
			return err
		}

		settings.AutoPlay = auto
	case "log_level":
		level, err := stringValue(key, value)
		if err != nil {
			return err
		}

		if !validLogLevels[level] {
			return fmt.Errorf("%w: log_level %q", ErrInvalidSetting, level)
		}

		settings.LogLevel = level
	case "max_text_length":
		length, err := intValue(key, value)
		if err != nil {
			return err
		}

		if length <= 0 {
			return fmt.Errorf("%w: max_text_length %d", ErrInvalidSetting, length)
		}

		settings.MaxTextLength = length
	case "show_advanced":
		show, err := boolValue(key, value)
		if err != nil {
			return err
		}

		settings.ShowAdvanced = show
	default:
		return fmt.Errorf(errFmtUnknownSetting, ErrUnknownSetting, key)
	}

	return nil
}

func stringValue(key string, value any) (string, error) {
	str, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s expects a string", ErrInvalidSetting, key)
	}

	return str, nil
}

func intValue(key string, value any) (int, error) {
	// JSON numbers decode as float64.
	switch v := value.(type) {
	case float64:
		if v != float64(int(v)) {
			return 0, fmt.Errorf("%w: %s expects an integer", ErrInvalidSetting, key)
		}

		return int(v), nil
	case int:
		return v, nil
	default:
		return 0, fmt.Errorf("%w: %s expects an integer", ErrInvalidSetting, key)
	}
}

func floatValue(key string, value any) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("%w: %s expects a number", ErrInvalidSetting, key)
	}
}

func boolValue(key string, value any) (bool, error) {
	b, ok := value.(bool)
	if !ok {
		return false, fmt.Errorf("%w: %s expects a boolean", ErrInvalidSetting, key)
	}

	return b, nil
}
