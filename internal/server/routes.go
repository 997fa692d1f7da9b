package server

import (
	"errors"
	"fmt"
	"strings"
)

// RouteKind identifies the handler a request resolves to.
type RouteKind int

const (
	RouteNotFound RouteKind = iota
	RoutePage
	RouteSnapshot
	RouteInfo
	RouteStream
	RouteAsset
)

func (k RouteKind) String() string {
	switch k {
	case RoutePage:
		return "page"
	case RouteSnapshot:
		return "snapshot"
	case RouteInfo:
		return "info"
	case RouteStream:
		return "stream"
	case RouteAsset:
		return "asset"
	default:
		return "not_found"
	}
}

// RoutePaths lists the request paths served for each route. An empty Info
// or Asset path disables that route.
type RoutePaths struct {
	Page     []string
	Snapshot string
	Info     string
	Stream   string
	Asset    string
}

// DefaultRoutePaths returns the standard GPIOLive paths.
func DefaultRoutePaths() RoutePaths {
	return RoutePaths{
		Page:     []string{"/", "/index.html"},
		Snapshot: "/data",
		Info:     "/info",
		Stream:   "/events",
		Asset:    "/board.png",
	}
}

// Routes is an immutable (method, path) table. Only GET is routed; any
// other method resolves to [RouteNotFound].
type Routes struct {
	byPath map[string]RouteKind
}

// NewRoutes builds a route table from p.
//
// Returns an error if a required path is missing, a path does not start
// with '/', or two routes share a path.
func NewRoutes(p RoutePaths) (*Routes, error) {
	if len(p.Page) == 0 {
		return nil, errors.New("at least one page path is required")
	}
	if p.Snapshot == "" {
		return nil, errors.New("snapshot path is required")
	}
	if p.Stream == "" {
		return nil, errors.New("stream path is required")
	}

	rt := &Routes{byPath: make(map[string]RouteKind)}
	add := func(path string, kind RouteKind) error {
		if path == "" {
			return nil
		}
		if !strings.HasPrefix(path, "/") {
			return fmt.Errorf("%s path %q must start with '/'", kind, path)
		}
		if prev, ok := rt.byPath[path]; ok {
			return fmt.Errorf("path %q used by both %s and %s", path, prev, kind)
		}
		rt.byPath[path] = kind
		return nil
	}

	for _, path := range p.Page {
		if path == "" {
			return nil, errors.New("page path must not be empty")
		}
		if err := add(path, RoutePage); err != nil {
			return nil, err
		}
	}
	for _, r := range []struct {
		path string
		kind RouteKind
	}{
		{p.Snapshot, RouteSnapshot},
		{p.Info, RouteInfo},
		{p.Stream, RouteStream},
		{p.Asset, RouteAsset},
	} {
		if err := add(r.path, r.kind); err != nil {
			return nil, err
		}
	}
	return rt, nil
}

// Resolve maps a request to its route. It is total: every input yields a
// kind, with [RouteNotFound] for anything not in the table. The query
// string is ignored.
func (rt *Routes) Resolve(method, path string) RouteKind {
	if method != "GET" {
		return RouteNotFound
	}
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if kind, ok := rt.byPath[path]; ok {
		return kind
	}
	return RouteNotFound
}
