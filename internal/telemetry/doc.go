// Package telemetry builds point-in-time snapshots of the configured input
// channels.
//
// This package is internal to GPIOLive. It owns the channel model, the
// [Source] contract that hardware readers implement, and the [Builder] that
// turns one pass over every channel into an immutable [Snapshot]:
//
//   - [Channel]: identity and capability flags of one monitored line
//   - [Sample]: one reading of a channel; nil fields are absent values
//   - [Snapshot]: every configured channel, in configured order, plus memory
//   - [Builder]: samples all channels, containing per-channel faults
//
// Snapshots are never cached. Every [Builder.Build] call reads the source
// again, and a fault on one channel only blanks that channel.
package telemetry
