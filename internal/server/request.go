package server

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// maxLineBytes bounds a single request or header line.
const maxLineBytes = 8 << 10

var (
	// ErrConnectionClosed means the peer closed the socket before sending
	// anything. It needs no response, only cleanup.
	ErrConnectionClosed = errors.New("connection closed by peer")

	// ErrMalformedRequest means the request line could not be parsed.
	ErrMalformedRequest = errors.New("malformed request")

	errLineTooLong = errors.New("line too long")
)

// Request is the part of an HTTP request the server cares about.
// Headers and bodies are never retained.
type Request struct {
	Method string
	Path   string

	// Proto is the protocol segment, or empty if the client omitted it.
	Proto string
}

// ReadRequest reads one request line from br and drains the header block.
//
// The request line is split on whitespace runs into method, path and an
// optional protocol. Header lines are consumed and discarded up to the
// blank line ending the block, or end of stream, leaving br positioned where
// a body would start.
//
// Returns [ErrConnectionClosed] if the stream ends before any byte arrives
// and an error wrapping [ErrMalformedRequest] if the request line has fewer
// than two fields or exceeds 8 KiB. Other errors are read failures from the
// underlying connection.
func ReadRequest(br *bufio.Reader) (Request, error) {
	line, err := readLine(br)
	switch {
	case errors.Is(err, errLineTooLong):
		return Request{}, fmt.Errorf("%w: request line exceeds %d bytes", ErrMalformedRequest, maxLineBytes)
	case errors.Is(err, io.EOF):
		if line == "" {
			return Request{}, ErrConnectionClosed
		}
		// a final line without terminator is still a request line
	case err != nil:
		return Request{}, fmt.Errorf("failed to read request line: %w", err)
	}

	if err == nil {
		drainHeaders(br)
	}

	fields := strings.Fields(line)
	if len(fields) < 2 {
		return Request{}, fmt.Errorf("%w: %q", ErrMalformedRequest, line)
	}

	return Request{
		Method: fields[0],
		Path:   fields[1],
		Proto:  strings.Join(fields[2:], " "),
	}, nil
}

// drainHeaders discards lines until a blank line or end of stream.
func drainHeaders(br *bufio.Reader) {
	for {
		line, err := readLine(br)
		if errors.Is(err, errLineTooLong) {
			continue
		}
		if err != nil || line == "" {
			return
		}
	}
}

// readLine reads up to and including '\n' and returns the line without its
// CRLF/LF terminator. Lines longer than maxLineBytes are consumed and
// reported as errLineTooLong. On end of stream it returns whatever was read
// together with io.EOF.
func readLine(br *bufio.Reader) (string, error) {
	var buf []byte
	tooLong := false

	for {
		chunk, err := br.ReadSlice('\n')
		if !tooLong {
			if len(buf)+len(chunk) > maxLineBytes {
				tooLong = true
				buf = nil
			} else {
				buf = append(buf, chunk...)
			}
		}

		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if tooLong {
			if err != nil && !errors.Is(err, io.EOF) {
				return "", err
			}
			return "", errLineTooLong
		}
		return strings.TrimRight(string(buf), "\r\n"), err
	}
}
