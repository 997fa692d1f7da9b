// Package source provides [gpiolive.Source] implementations.
//
//   - [Sim] generates deterministic waveforms for development and demos.
//   - [Sysfs] reads Linux GPIO values and IIO ADC channels from sysfs.
//   - [Remote] relays the snapshot of another board serving /data.
//
// All sources are safe for concurrent use.
package source
