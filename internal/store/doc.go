// Package store tracks live event stream sessions for GPIOLive.
//
// This package is internal to GPIOLive. It keeps a registry of open stream
// sessions and publishes their lifecycle (opened, closed) to subscribers.
// The server registers every stream session here; the info endpoint reads
// the count and the SDK forwards lifecycle events to user callbacks.
//
// The main components are:
//
//   - [Store]: Interface defining registration and subscription operations
//   - [MemoryStore]: In-memory implementation of Store with pub/sub
//   - [Session]: Registry entry for one stream session
//   - [Event]: Lifecycle notification delivered to subscribers
//
// Subscribers receive events via channels with non-blocking sends (slow
// subscribers miss events rather than stall a stream).
package store
