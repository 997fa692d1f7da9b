// Package server provides the connection-handling and streaming engine for
// GPIOLive.
//
// This package is internal to GPIOLive and speaks HTTP/1.x directly over TCP
// sockets:
//
//   - Connection supervision: one goroutine per accepted socket, closed
//     exactly once whatever happens to the request
//   - Request parsing: one request line, headers drained and discarded
//   - Route table: a static (method, path) to handler mapping
//   - Snapshot and info: one-shot JSON responses
//   - Event stream: Server-Sent Events at "/events", one snapshot frame per
//     interval until the peer goes away
//
// The server supports graceful shutdown via context cancellation: the
// listener closes, stream sessions finish their current iteration, and after
// a 5-second grace period any remaining sockets are closed.
//
// Users of the gpiolive library should not need to interact with this
// package directly. The server is started automatically by [gpiolive.App.Start].
package server
