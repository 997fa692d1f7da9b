package gpiolive

import "github.com/jpalmerr/gpiolive/internal/telemetry"

// Sample is one read of a channel. A nil field means the value is absent,
// either because the channel lacks that capability or the read failed.
type Sample = telemetry.Sample

// Source reads the physical state of channels.
//
// Sample is called with a channel's ID and must return a fresh reading on
// every call; implementations must not cache. An error marks that channel
// absent for one snapshot only. Sources wrap such errors with
// [ErrChannelRead].
//
// Implementations must be safe for concurrent use: every open stream
// samples independently.
type Source = telemetry.Source

// BatchSource is a [Source] that can read many channels in one operation.
// When a source implements it, one SampleAll call serves a whole snapshot.
type BatchSource = telemetry.BatchSource

// Memory is the heap report attached to each snapshot.
type Memory = telemetry.Memory

// ErrChannelRead marks a failed read of a single channel.
var ErrChannelRead = telemetry.ErrChannelRead

// DefaultVRef is the ADC reference voltage used when none is configured.
const DefaultVRef = telemetry.DefaultVRef

// Int returns a pointer to v, for building a [Sample].
func Int(v int) *int { return telemetry.Int(v) }

// Float returns a pointer to v, for building a [Sample].
func Float(v float64) *float64 { return telemetry.Float(v) }

// RawToVoltage converts a 16-bit ADC count to volts against vref.
func RawToVoltage(raw int, vref float64) float64 {
	return telemetry.RawToVoltage(raw, vref)
}

// RuntimeMemory reports the Go heap of the running process.
func RuntimeMemory() Memory { return telemetry.RuntimeMemory() }
