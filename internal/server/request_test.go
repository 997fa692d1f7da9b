package server

import (
	"bufio"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestReadRequest(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Request
		wantErr error
	}{
		{
			name:  "full request",
			input: "GET /data HTTP/1.1\r\nHost: board.local\r\nAccept: */*\r\n\r\n",
			want:  Request{Method: "GET", Path: "/data", Proto: "HTTP/1.1"},
		},
		{
			name:  "missing protocol",
			input: "GET /\r\n\r\n",
			want:  Request{Method: "GET", Path: "/"},
		},
		{
			name:  "whitespace runs",
			input: "GET \t  /events    HTTP/1.0\r\n\r\n",
			want:  Request{Method: "GET", Path: "/events", Proto: "HTTP/1.0"},
		},
		{
			name:  "bare LF line endings",
			input: "GET /info HTTP/1.1\nHost: x\n\n",
			want:  Request{Method: "GET", Path: "/info", Proto: "HTTP/1.1"},
		},
		{
			name:  "headers end at EOF",
			input: "GET /data HTTP/1.1\r\nHost: x\r\n",
			want:  Request{Method: "GET", Path: "/data", Proto: "HTTP/1.1"},
		},
		{
			name:  "unterminated request line",
			input: "POST /data",
			want:  Request{Method: "POST", Path: "/data"},
		},
		{
			name:  "query kept in path",
			input: "GET /data?x=1 HTTP/1.1\r\n\r\n",
			want:  Request{Method: "GET", Path: "/data?x=1", Proto: "HTTP/1.1"},
		},
		{
			name:    "empty stream",
			input:   "",
			wantErr: ErrConnectionClosed,
		},
		{
			name:    "single token",
			input:   "GET\r\n\r\n",
			wantErr: ErrMalformedRequest,
		},
		{
			name:    "blank request line",
			input:   "\r\n",
			wantErr: ErrMalformedRequest,
		},
		{
			name:    "whitespace only",
			input:   "   \t \r\n",
			wantErr: ErrMalformedRequest,
		},
		{
			name:    "oversized request line",
			input:   "GET /" + strings.Repeat("a", maxLineBytes) + " HTTP/1.1\r\n\r\n",
			wantErr: ErrMalformedRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ReadRequest(bufio.NewReader(strings.NewReader(tt.input)))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ReadRequest() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ReadRequest() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("ReadRequest() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestReadRequest_LeavesBodyUnread(t *testing.T) {
	input := "POST /data HTTP/1.1\r\nContent-Length: 4\r\n\r\nBODY"
	br := bufio.NewReader(strings.NewReader(input))

	if _, err := ReadRequest(br); err != nil {
		t.Fatalf("ReadRequest() error = %v", err)
	}

	rest, _ := io.ReadAll(br)
	if string(rest) != "BODY" {
		t.Errorf("remaining = %q, want %q", rest, "BODY")
	}
}

func TestReadRequest_OversizedHeaderIsSkipped(t *testing.T) {
	input := "GET /data HTTP/1.1\r\nX-Big: " + strings.Repeat("b", 2*maxLineBytes) + "\r\n\r\nNEXT"
	br := bufio.NewReader(strings.NewReader(input))

	req, err := ReadRequest(br)
	if err != nil {
		t.Fatalf("ReadRequest() error = %v", err)
	}
	if req.Path != "/data" {
		t.Errorf("Path = %q, want /data", req.Path)
	}

	rest, _ := io.ReadAll(br)
	if string(rest) != "NEXT" {
		t.Errorf("remaining = %q, want %q", rest, "NEXT")
	}
}

type failingReader struct{ err error }

func (f failingReader) Read([]byte) (int, error) { return 0, f.err }

func TestReadRequest_ReadErrorIsNotMalformed(t *testing.T) {
	boom := errors.New("connection reset")
	_, err := ReadRequest(bufio.NewReader(failingReader{err: boom}))

	if !errors.Is(err, boom) {
		t.Errorf("ReadRequest() error = %v, want wrapping %v", err, boom)
	}
	if errors.Is(err, ErrMalformedRequest) || errors.Is(err, ErrConnectionClosed) {
		t.Errorf("ReadRequest() error = %v, should be a plain read failure", err)
	}
}
