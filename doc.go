// Package gpiolive serves a live view of a board's GPIO and ADC pins over
// HTTP.
//
// GPIOLive is SDK-first: an [App] is configured in code with a [Source]
// that reads the hardware and the [Channel] set to watch, then started
// with a context. The same server the gpiolive command runs can be
// embedded in any Go program.
//
// # Quick Start
//
//	src := source.NewSim(source.SimConfig{})
//	app, _ := gpiolive.New(
//	    gpiolive.WithSource(src),
//	    gpiolive.WithChannels(
//	        gpiolive.MustChannel(1, gpiolive.WithLabel("D0"), gpiolive.WithAnalog()),
//	        gpiolive.MustChannel(2, gpiolive.WithLabel("D1")),
//	    ),
//	)
//
//	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer stop()
//
//	app.Start(ctx) // blocks until context is cancelled
//
// # Endpoints
//
// A running App answers on one port:
//
//   - GET / and /index.html: the viewer page
//   - GET /data: one JSON snapshot of every channel
//   - GET /info: system and server facts as JSON
//   - GET /events: a server-sent event stream, one snapshot per interval
//   - GET /board.png: the board image, when one is configured via [WithAssets]
//
// Anything else is answered with 404.
//
// # Snapshots
//
// A snapshot is built fresh for every request and every stream frame;
// nothing is cached between them. It has the shape:
//
//	{"levels":{"D0":1,"D1":0},"analog":{"D0":1.65,"D1":null},"heap":48000}
//
// A channel whose read failed is present with null values. A channel
// without an ADC always reports a null voltage.
//
// # Sources
//
// Package github.com/jpalmerr/gpiolive/source provides a simulator, a
// Linux sysfs reader and a remote reader that proxies another GPIOLive
// (or compatible firmware) over HTTP. Any type implementing [Source] can
// be used.
//
// # Session Callbacks
//
// [WithSessionCallback] observes event stream sessions as they open and
// close:
//
//	gpiolive.WithSessionCallback(func(ev gpiolive.SessionEvent) {
//	    if ev.Type == gpiolive.SessionClosed {
//	        log.Printf("%s watched %d frames", ev.Remote, ev.Frames)
//	    }
//	})
//
// # Thread Safety
//
// [App] and [Channel] are safe for concurrent use after construction.
// Sources must be safe for concurrent use since every stream samples on
// its own goroutine.
package gpiolive
