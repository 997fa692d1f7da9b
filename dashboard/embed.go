// Package dashboard provides the embedded viewer page for GPIOLive.
//
// The page is a single HTML document with inline CSS and JavaScript,
// rendered once at startup from a template and then served verbatim. It
// draws each channel as a dot over the board image, subscribes to the event
// stream and falls back to polling the snapshot endpoint when the browser
// has no EventSource.
//
// Users of the gpiolive library should not need to interact with this
// package directly.
package dashboard

import "embed"

// Assets is an embedded filesystem containing the page template.
//
//	assets/
//	  index.html    - viewer page template with inline CSS and JavaScript
//
//go:embed assets/*
var Assets embed.FS
