package telemetry

import (
	"context"
	"errors"
	"fmt"
)

// ErrChannelRead indicates a transient failure reading one channel.
// Sources wrap it so callers can tell hardware faults from programming errors.
var ErrChannelRead = errors.New("channel read failed")

// Channel describes one monitored input line.
//
// Channel is a value type fixed at startup. The set of channels handed to
// [NewBuilder] never changes for the lifetime of the process.
type Channel struct {
	// ID is the stable small integer identifying the channel.
	ID int

	// Label is the key used in serialized snapshots (e.g. "D0").
	Label string

	// HasDigital reports whether the channel has a digital level.
	HasDigital bool

	// HasAnalog reports whether the channel has an ADC attached.
	HasAnalog bool
}

// Sample is one reading of a single channel.
//
// A nil field is an absent value: the source could not read that part of
// the channel this cycle. Absence is not an error and is rendered as a
// null-equivalent, never omitted.
type Sample struct {
	// Digital is the logic level, 0 or 1.
	Digital *int

	// AnalogRaw is the raw ADC count on a 16-bit scale (0..65535).
	AnalogRaw *int

	// Voltage is the measured voltage in volts.
	Voltage *float64
}

// Source reads channel state from hardware (or something pretending to be
// hardware).
//
// Implementations own any hardware handles they need and must be safe for
// concurrent use: every open stream session calls Sample on its own
// goroutine. A multi-step read (read raw, then convert) must complete inside
// a single call without exposing partial state.
type Source interface {
	// Sample reads one channel. A returned error blanks that channel only.
	Sample(ctx context.Context, channelID int) (Sample, error)

	// SystemInfo reports system, network and firmware facts.
	SystemInfo(ctx context.Context) (map[string]any, error)
}

// BatchSource is an optional extension of [Source] for readers where one
// round trip yields every channel, such as a remote board.
//
// Channels missing from the returned map are treated as absent. A returned
// error blanks every channel of that snapshot.
type BatchSource interface {
	Source
	SampleAll(ctx context.Context, channelIDs []int) (map[int]Sample, error)
}

// Int returns a pointer to v. It is a convenience for building samples.
func Int(v int) *int {
	return &v
}

// Float returns a pointer to v. It is a convenience for building samples.
func Float(v float64) *float64 {
	return &v
}

// validateChannels checks that the channel set is usable for snapshots.
func validateChannels(channels []Channel) error {
	if len(channels) == 0 {
		return errors.New("at least one channel is required")
	}

	ids := make(map[int]bool, len(channels))
	labels := make(map[string]bool, len(channels))
	for i, ch := range channels {
		if ch.Label == "" {
			return fmt.Errorf("channels[%d]: label is required", i)
		}
		if ids[ch.ID] {
			return fmt.Errorf("duplicate channel id: %d", ch.ID)
		}
		if labels[ch.Label] {
			return fmt.Errorf("duplicate channel label: %q", ch.Label)
		}
		ids[ch.ID] = true
		labels[ch.Label] = true
	}
	return nil
}
