package wire

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"time"
	"unicode/utf8"
)

// Delimiter terminates every frame.
var Delimiter = []byte("\r\n")

const (
	readChunkSize        = 4096
	DefaultMaxFrameBytes = 64 * 1024
)

// ErrConnectionTimeout matches both ErrIdleTimeout and ErrPeerClosed: either way
// no further frame will arrive on the connection.
var ErrConnectionTimeout = errors.New("connection timeout")

var (
	ErrIdleTimeout    = fmt.Errorf("%w: idle window elapsed", ErrConnectionTimeout)
	ErrPeerClosed     = fmt.Errorf("%w: peer closed", ErrConnectionTimeout)
	ErrMalformedFrame = errors.New("malformed frame")
	ErrFrameTooLarge  = errors.New("frame too large")
)

// Record is one parsed frame.
type Record struct {
	Tag    byte
	Fields []string
}

// Reader turns a connection byte stream into records.
// It is owned by a single goroutine.
type Reader struct {
	conn          net.Conn
	idle          time.Duration
	maxFrameBytes int
	now           func() time.Time

	buf          []byte
	lastActivity time.Time
	chunk        []byte
}

// ReaderOption configures a Reader.
type ReaderOption func(*Reader)

// WithMaxFrameBytes bounds the bytes buffered while waiting for a delimiter.
func WithMaxFrameBytes(n int) ReaderOption {
	return func(r *Reader) {
		if n > 0 {
			r.maxFrameBytes = n
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) ReaderOption {
	return func(r *Reader) {
		if now != nil {
			r.now = now
		}
	}
}

// NewReader creates a reader with the given idle window. The window is
// measured from the last received bytes or extracted frame.
func NewReader(conn net.Conn, idle time.Duration, opts ...ReaderOption) *Reader {
	r := &Reader{
		conn:          conn,
		idle:          idle,
		maxFrameBytes: DefaultMaxFrameBytes,
		now:           time.Now,
		chunk:         make([]byte, readChunkSize),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.lastActivity = r.now()
	return r
}

// Next returns the next record.
// Errors: ErrIdleTimeout, ErrPeerClosed, ErrMalformedFrame, ErrFrameTooLarge,
// or the underlying read error.
func (r *Reader) Next() (Record, error) {
	for {
		if i := bytes.Index(r.buf, Delimiter); i >= 0 {
			frame := r.buf[:i]
			rec, err := parseRecord(frame)
			r.buf = r.buf[i+len(Delimiter):]
			r.compact()
			r.lastActivity = r.now()
			return rec, err
		}

		if len(r.buf) > r.maxFrameBytes {
			return Record{}, fmt.Errorf("%w: %d bytes without delimiter", ErrFrameTooLarge, len(r.buf))
		}

		deadline := r.lastActivity.Add(r.idle)
		if !r.now().Before(deadline) {
			return Record{}, ErrIdleTimeout
		}
		if err := r.conn.SetReadDeadline(deadline); err != nil {
			return Record{}, fmt.Errorf("set read deadline: %w", err)
		}

		n, err := r.conn.Read(r.chunk)
		if n > 0 {
			r.buf = append(r.buf, r.chunk[:n]...)
			r.lastActivity = r.now()
			continue
		}
		switch {
		case err == nil, errors.Is(err, io.EOF):
			return Record{}, ErrPeerClosed
		case errors.Is(err, os.ErrDeadlineExceeded):
			return Record{}, ErrIdleTimeout
		default:
			return Record{}, err
		}
	}
}

// Buffered returns the number of bytes received but not yet framed.
func (r *Reader) Buffered() int {
	return len(r.buf)
}

// compact releases the consumed prefix once the buffer is empty.
func (r *Reader) compact() {
	if len(r.buf) == 0 {
		r.buf = r.buf[:0:0]
	}
}

func parseRecord(frame []byte) (Record, error) {
	if !utf8.Valid(frame) {
		return Record{}, fmt.Errorf("%w: invalid utf-8", ErrMalformedFrame)
	}
	parts := strings.Split(string(frame), ",")
	if len(parts[0]) != 1 {
		return Record{}, fmt.Errorf("%w: tag %q", ErrMalformedFrame, parts[0])
	}
	return Record{Tag: parts[0][0], Fields: parts[1:]}, nil
}

// WriteFrame writes payload followed by the delimiter.
// A zero timeout leaves the write deadline untouched.
func WriteFrame(conn net.Conn, payload string, timeout time.Duration) error {
	if timeout > 0 {
		if err := conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
			return fmt.Errorf("set write deadline: %w", err)
		}
	}
	buf := make([]byte, 0, len(payload)+len(Delimiter))
	buf = append(buf, payload...)
	buf = append(buf, Delimiter...)
	for len(buf) > 0 {
		n, err := conn.Write(buf)
		if err != nil {
			return err
		}
		buf = buf[n:]
	}
	return nil
}
