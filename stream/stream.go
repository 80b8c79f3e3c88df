// Package stream layers a buffered byte-stream collaborator and
// listen/connect/serve socket conveniences on top of a microio.Loop and
// microio.Task, the way net/textproto layers on top of net.Conn. None of it
// changes the suspension protocol; every blocking operation here is built
// entirely out of Task.RegisterIO / Task.DeregisterIO.
package stream

import (
	"bytes"
	"errors"
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/ethframe/microio"
)

// ErrConnectionClosed is returned when the peer closes the connection
// before satisfying a read or accepting a write.
var ErrConnectionClosed = errors.New("stream: connection closed")

// ErrBufferLimitExceeded is returned by ReadUntil when the accumulation
// buffer reaches its limit without finding the requested pattern.
var ErrBufferLimitExceeded = errors.New("stream: buffer limit exceeded")

// ErrIO wraps an unexpected I/O error from the underlying file descriptor.
var ErrIO = errors.New("stream: io error")

// defaultReadSize is the chunk size used for each non-blocking read
// attempt, matching the original Python collaborator's read_size default.
const defaultReadSize = 65536

// Stream wraps a non-blocking socket fd and an in-memory accumulation
// buffer. It owns fd for its lifetime: Close closes it, and every
// suspending method deregisters fd from the reactor before returning.
type Stream struct {
	fd      int
	buf     []byte
	scratch []byte
}

// New wraps fd, setting it non-blocking. The caller must not use fd
// directly afterwards.
func New(fd int) (*Stream, error) {
	if err := unix.SetNonblock(fd, true); err != nil {
		return nil, err
	}
	return &Stream{fd: fd, scratch: make([]byte, defaultReadSize)}, nil
}

// FD returns the wrapped file descriptor.
func (s *Stream) FD() int { return s.fd }

// Close closes the underlying file descriptor.
func (s *Stream) Close() error { return unix.Close(s.fd) }

// ReadBytes blocks until the buffer holds at least n bytes, then returns the
// first n bytes, removing them from the buffer. If the peer closes before n
// bytes have arrived it fails with ErrConnectionClosed.
func (s *Stream) ReadBytes(t *microio.Task, n int) ([]byte, error) {
	for len(s.buf) < n {
		if err := s.awaitReadable(t); err != nil {
			return nil, err
		}
		if err := s.fill(t); err != nil {
			return nil, err
		}
	}
	if err := t.DeregisterIO(s.fd); err != nil {
		return nil, err
	}
	out := append([]byte(nil), s.buf[:n]...)
	s.buf = s.buf[n:]
	return out, nil
}

// ReadSome blocks until at least one byte is available (from the buffer or
// a fresh read), then returns up to maxBytes of it without waiting for any
// more to arrive. This is the partial-read mode of the original collaborator
// (its read_bytes(n, partial=True)), useful for servers that echo back
// whatever a client happened to send in one write.
func (s *Stream) ReadSome(t *microio.Task, maxBytes int) ([]byte, error) {
	for len(s.buf) == 0 {
		if err := s.awaitReadable(t); err != nil {
			return nil, err
		}
		if err := s.fill(t); err != nil {
			return nil, err
		}
	}
	if err := t.DeregisterIO(s.fd); err != nil {
		return nil, err
	}
	n := maxBytes
	if n > len(s.buf) {
		n = len(s.buf)
	}
	out := append([]byte(nil), s.buf[:n]...)
	s.buf = s.buf[n:]
	return out, nil
}

// ReadUntil blocks until pat occurs in the buffer, returning everything up
// to and including the first occurrence. It fails ErrBufferLimitExceeded if
// the buffer reaches limit bytes without finding pat.
func (s *Stream) ReadUntil(t *microio.Task, pat []byte, limit int) ([]byte, error) {
	for !bytes.Contains(s.buf, pat) {
		if len(s.buf) >= limit {
			_ = t.DeregisterIO(s.fd)
			return nil, ErrBufferLimitExceeded
		}
		if err := s.awaitReadable(t); err != nil {
			return nil, err
		}
		if err := s.fill(t); err != nil {
			return nil, err
		}
	}
	if err := t.DeregisterIO(s.fd); err != nil {
		return nil, err
	}
	end := bytes.Index(s.buf, pat) + len(pat)
	out := append([]byte(nil), s.buf[:end]...)
	s.buf = s.buf[end:]
	return out, nil
}

// Write blocks until data is fully consumed by the socket.
func (s *Stream) Write(t *microio.Task, data []byte) error {
	for len(data) > 0 {
		if _, err := t.RegisterIO(s.fd, microio.EventWrite|microio.EventError); err != nil {
			return err
		}
		n, err := unix.Write(s.fd, data)
		if err != nil {
			if isWouldBlock(err) {
				continue
			}
			_ = t.DeregisterIO(s.fd)
			return fmt.Errorf("%w: %v", ErrIO, err)
		}
		if n == 0 {
			_ = t.DeregisterIO(s.fd)
			return ErrConnectionClosed
		}
		data = data[n:]
	}
	return t.DeregisterIO(s.fd)
}

// awaitReadable suspends until the fd reports read or error readiness.
func (s *Stream) awaitReadable(t *microio.Task) error {
	_, err := t.RegisterIO(s.fd, microio.EventRead|microio.EventError)
	return err
}

// fill issues one non-blocking recv, appending to the buffer. A zero-byte
// read is EOF.
func (s *Stream) fill(t *microio.Task) error {
	n, err := unix.Read(s.fd, s.scratch)
	if err != nil {
		if isWouldBlock(err) {
			return nil
		}
		_ = t.DeregisterIO(s.fd)
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	if n == 0 {
		_ = t.DeregisterIO(s.fd)
		return ErrConnectionClosed
	}
	s.buf = append(s.buf, s.scratch[:n]...)
	return nil
}

func isWouldBlock(err error) bool {
	return errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK)
}
