package audio

import (
	"errors"
	"fmt"
)

// Validation limits for runtime-adjustable audio settings.
const (
	MaxSampleRate = 192000
	MinSpeed      = 0.25
	MaxSpeed      = 4.0
	MinPitch      = 0.5
	MaxPitch      = 2.0
)

// Quality level names accepted by the settings surface.
const (
	QualityLow    = "low"
	QualityMedium = "medium"
	QualityHigh   = "high"
)

// Error messages and formats.
const (
	errFmtSampleRateRange = "%w: sample rate must be between 1 and %d Hz"
	errFmtSpeedRange      = "%w: speed must be between %.2f and %.1f"
	errFmtPitchRange      = "%w: pitch must be between %.1f and %.1f"
	errFmtQualityValues   = "%w: quality must be low, medium, or high"
)

// ErrInvalidQuality marks out-of-range audio settings.
var ErrInvalidQuality = errors.New("invalid quality settings")

// ValidateSampleRate checks a sample rate against reasonable bounds.
func ValidateSampleRate(sampleRate int) error {
	if sampleRate <= 0 || sampleRate > MaxSampleRate {
		return fmt.Errorf(errFmtSampleRateRange, ErrInvalidQuality, MaxSampleRate)
	}

	return nil
}

// ValidateSpeed checks a speaking-speed multiplier.
func ValidateSpeed(speed float64) error {
	if speed < MinSpeed || speed > MaxSpeed {
		return fmt.Errorf(errFmtSpeedRange, ErrInvalidQuality, MinSpeed, MaxSpeed)
	}

	return nil
}

// ValidatePitch checks a pitch multiplier.
func ValidatePitch(pitch float64) error {
	if pitch < MinPitch || pitch > MaxPitch {
		return fmt.Errorf(errFmtPitchRange, ErrInvalidQuality, MinPitch, MaxPitch)
	}

	return nil
}

// ValidateQualityName checks a named quality level.
func ValidateQualityName(name string) error {
	switch name {
	case QualityLow, QualityMedium, QualityHigh:
		return nil
	default:
		return fmt.Errorf(errFmtQualityValues, ErrInvalidQuality)
	}
}
