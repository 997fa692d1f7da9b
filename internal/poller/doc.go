// Package poller provides the HTTP client GPIOLive uses to read telemetry
// from another board.
//
// This package is internal to GPIOLive. The remote source calls
// [Client.Get] once per snapshot; the client enforces a per-request timeout
// and a response size limit, and treats any non-2xx status as an error.
//
// Users of the gpiolive library should not need to interact with this
// package directly. It is reached through source.NewRemote.
package poller
