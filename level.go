package gpiolive

import (
	"errors"
	"fmt"
	"math"
)

// Level is how the page colours a pin.
type Level string

const (
	// LevelLow is a pin reading low.
	LevelLow Level = "lo"

	// LevelHigh is a pin reading high.
	LevelHigh Level = "hi"

	// LevelUnavailable is a reserved pin.
	LevelUnavailable Level = "na"
)

// String returns the string representation of the level.
func (l Level) String() string {
	return string(l)
}

// DefaultThresholdVolts is the voltage at or above which an analog reading
// counts as high.
const DefaultThresholdVolts = 2.0

// ClassificationPolicy decides how a sample maps to a [Level].
type ClassificationPolicy struct {
	// VoltagePriority makes a present voltage decide the level, falling
	// back to the digital bit only when no voltage was read.
	VoltagePriority bool

	// ThresholdVolts is the high/low boundary for voltages.
	ThresholdVolts float64
}

// DefaultClassification prefers voltage with a 2.0 V threshold.
func DefaultClassification() ClassificationPolicy {
	return ClassificationPolicy{
		VoltagePriority: true,
		ThresholdVolts:  DefaultThresholdVolts,
	}
}

func (p ClassificationPolicy) validate() error {
	if math.IsNaN(p.ThresholdVolts) || math.IsInf(p.ThresholdVolts, 0) {
		return errors.New("threshold must be a finite number")
	}
	if p.ThresholdVolts < 0 {
		return fmt.Errorf("threshold must not be negative, got %v", p.ThresholdVolts)
	}
	return nil
}

// Classify returns the level the page shows for ch given s.
//
// Reserved channels are always [LevelUnavailable]. With VoltagePriority a
// present voltage at or above the threshold is high and below it low;
// otherwise the digital bit decides, and an absent bit reads as low.
func Classify(ch Channel, s Sample, p ClassificationPolicy) Level {
	if ch.reserved {
		return LevelUnavailable
	}
	if p.VoltagePriority && s.Voltage != nil {
		if *s.Voltage >= p.ThresholdVolts {
			return LevelHigh
		}
		return LevelLow
	}
	if s.Digital != nil && *s.Digital != 0 {
		return LevelHigh
	}
	return LevelLow
}
