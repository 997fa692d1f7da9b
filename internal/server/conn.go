package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
)

// bounds on discarding unread request bytes before close
const (
	lingerTimeout  = 250 * time.Millisecond
	maxLingerBytes = 256 << 10
)

// managedConn closes its socket exactly once, whether the handler finishes,
// the handler panics, or shutdown forces it.
type managedConn struct {
	net.Conn
	once     sync.Once
	closeErr error
}

func newManagedConn(c net.Conn) *managedConn {
	return &managedConn{Conn: c}
}

func (mc *managedConn) Close() error {
	mc.once.Do(func() {
		mc.closeErr = mc.Conn.Close()
	})
	return mc.closeErr
}

func newSessionID() string {
	return uuid.New().String()
}

// serveConn owns mc for its whole life. It must be started only after a
// successful track.
func (s *Server) serveConn(ctx context.Context, mc *managedConn) {
	remote := addrString(mc.RemoteAddr())
	cw := newConnWriter(mc.Conn, s.writeTimeout)
	s.observer.ConnectionOpened()

	defer func() {
		if r := recover(); r != nil {
			s.recoverConn(r, cw, remote)
		}
		_ = mc.Close()
		s.untrack(mc)
		s.observer.ConnectionClosed()
		s.wg.Done()
	}()

	err := s.handle(ctx, mc, cw, remote)
	switch {
	case err == nil:
	case errors.Is(err, ErrWriteFailure):
		s.logger.Debug("peer departed", "remote", remote, "error", err)
	case errors.Is(err, ErrMalformedRequest):
		s.logger.Debug("malformed request", "remote", remote, "error", err)
	case errors.Is(err, ErrAssetMissing):
		s.logger.Debug("asset unavailable", "remote", remote, "error", err)
	default:
		s.logger.Debug("connection ended with error", "remote", remote, "error", err)
	}
}

func (s *Server) handle(ctx context.Context, mc *managedConn, cw *connWriter, remote string) error {
	br := bufio.NewReader(mc)
	req, err := ReadRequest(br)
	if err != nil {
		if errors.Is(err, ErrConnectionClosed) {
			return nil
		}
		if errors.Is(err, ErrMalformedRequest) {
			s.observer.RequestRouted(RouteNotFound.String())
			_ = writeNotFound(cw)
			lingerClose(mc.Conn, br)
		}
		return err
	}

	kind := s.routes.Resolve(req.Method, req.Path)
	s.observer.RequestRouted(kind.String())
	s.logger.Debug("request", "method", req.Method, "path", req.Path, "route", kind.String(), "remote", remote)

	ex := &exchange{
		req:    req,
		w:      cw,
		remote: remote,
		local:  addrString(mc.LocalAddr()),
	}
	err = s.handlers[kind](ctx, ex)
	if kind != RouteStream {
		lingerClose(mc.Conn, br)
	}
	return err
}

// lingerClose half-closes c and discards unread request bytes, such as a
// body nobody asked for, so the close does not reset the connection before
// the peer has read the response.
func lingerClose(c net.Conn, br *bufio.Reader) {
	hc, ok := c.(interface{ CloseWrite() error })
	if !ok {
		_, _ = br.Discard(br.Buffered())
		return
	}
	if err := hc.CloseWrite(); err != nil {
		return
	}
	_ = c.SetReadDeadline(time.Now().Add(lingerTimeout))
	_, _ = io.Copy(io.Discard, io.LimitReader(br, maxLingerBytes))
}

// recoverConn logs a handler panic with a correlation ID and answers 500
// when no response bytes have gone out yet.
func (s *Server) recoverConn(r any, cw *connWriter, remote string) {
	correlationID := uuid.New().String()
	s.logger.Error("connection handler panic",
		"correlation_id", correlationID,
		"remote", remote,
		"panic", fmt.Sprint(r),
		"stack", string(debug.Stack()),
	)
	if !cw.written {
		_ = writeInternalError(cw)
	}
}

func addrString(a net.Addr) string {
	if a == nil {
		return ""
	}
	return a.String()
}
