package server

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// ErrWriteFailure means the peer stopped accepting bytes: a write failed,
// timed out, or was short.
var ErrWriteFailure = errors.New("write to peer failed")

const (
	contentTypeJSON = "application/json"
	contentTypeHTML = "text/html; charset=utf-8"
	contentTypeText = "text/plain; charset=utf-8"
	notFoundBody    = "Not Found"
)

// deadlineSetter is implemented by net.Conn. Writers without it run without
// a write timeout.
type deadlineSetter interface {
	SetWriteDeadline(t time.Time) error
}

// connWriter writes to a peer and records whether anything was attempted,
// so a recovered panic knows if a 500 can still be sent.
type connWriter struct {
	w       io.Writer
	timeout time.Duration
	written bool
}

func newConnWriter(w io.Writer, timeout time.Duration) *connWriter {
	return &connWriter{w: w, timeout: timeout}
}

func (cw *connWriter) Write(p []byte) (int, error) {
	if cw.timeout > 0 {
		if ds, ok := cw.w.(deadlineSetter); ok {
			_ = ds.SetWriteDeadline(time.Now().Add(cw.timeout))
		}
	}
	cw.written = true

	n, err := cw.w.Write(p)
	if err == nil && n < len(p) {
		err = io.ErrShortWrite
	}
	if err != nil {
		return n, fmt.Errorf("%w: %w", ErrWriteFailure, err)
	}
	return n, nil
}

// writeResponse writes a complete non-streaming response. Every such
// response carries Content-Length and Connection: close.
func writeResponse(w io.Writer, status int, contentType, cacheControl string, body []byte) error {
	var buf bytes.Buffer
	buf.Grow(160 + len(body))

	buf.WriteString("HTTP/1.1 ")
	buf.WriteString(strconv.Itoa(status))
	buf.WriteByte(' ')
	buf.WriteString(http.StatusText(status))
	buf.WriteString("\r\nContent-Type: ")
	buf.WriteString(contentType)
	buf.WriteString("\r\nContent-Length: ")
	buf.WriteString(strconv.Itoa(len(body)))
	buf.WriteString("\r\nCache-Control: ")
	buf.WriteString(cacheControl)
	buf.WriteString("\r\nConnection: close\r\n\r\n")
	buf.Write(body)

	_, err := w.Write(buf.Bytes())
	return err
}

func writeNotFound(w io.Writer) error {
	return writeResponse(w, http.StatusNotFound, contentTypeText, "no-cache", []byte(notFoundBody))
}

func writeInternalError(w io.Writer) error {
	return writeResponse(w, http.StatusInternalServerError, contentTypeText, "no-cache",
		[]byte(http.StatusText(http.StatusInternalServerError)))
}

const streamHeaders = "HTTP/1.1 200 OK\r\n" +
	"Content-Type: text/event-stream\r\n" +
	"Cache-Control: no-cache\r\n" +
	"Connection: keep-alive\r\n" +
	"Access-Control-Allow-Origin: *\r\n" +
	"\r\n"
