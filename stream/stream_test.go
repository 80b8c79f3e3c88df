package stream

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/ethframe/microio"
)

// socketPair returns a connected pair of non-blocking stream sockets,
// cleaned up automatically.
func socketPair(t *testing.T) (a, b int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	t.Cleanup(func() {
		unix.Close(fds[0])
		unix.Close(fds[1])
	})
	return fds[0], fds[1]
}

func runLoop(t *testing.T, root microio.Func) (any, error) {
	t.Helper()
	l, err := microio.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l.Run(context.Background(), root)
}

func TestStreamReadBytes(t *testing.T) {
	a, b := socketPair(t)

	v, err := runLoop(t, func(t *microio.Task) (any, error) {
		s, err := New(a)
		if err != nil {
			return nil, err
		}
		defer s.Close()

		if _, err := unix.Write(b, []byte("hello!")); err != nil {
			return nil, err
		}
		got, err := s.ReadBytes(t, 5)
		if err != nil {
			return nil, err
		}
		return string(got), nil
	})
	require.NoError(t, err)
	require.Equal(t, "hello", v)
}

func TestStreamReadSomeReturnsPartialData(t *testing.T) {
	a, b := socketPair(t)

	v, err := runLoop(t, func(t *microio.Task) (any, error) {
		s, err := New(a)
		if err != nil {
			return nil, err
		}
		defer s.Close()

		if _, err := unix.Write(b, []byte("ping")); err != nil {
			return nil, err
		}
		got, err := s.ReadSome(t, 1024)
		if err != nil {
			return nil, err
		}
		return string(got), nil
	})
	require.NoError(t, err)
	require.Equal(t, "ping", v)
}

func TestStreamReadUntil(t *testing.T) {
	a, b := socketPair(t)

	v, err := runLoop(t, func(t *microio.Task) (any, error) {
		s, err := New(a)
		if err != nil {
			return nil, err
		}
		defer s.Close()

		go func() {
			unix.Write(b, []byte("first\nsecond\n"))
		}()

		line, err := s.ReadUntil(t, []byte("\n"), 1024)
		if err != nil {
			return nil, err
		}
		return string(line), nil
	})
	require.NoError(t, err)
	require.Equal(t, "first\n", v)
}

func TestStreamReadUntilBufferLimitExceeded(t *testing.T) {
	a, b := socketPair(t)
	defer unix.Close(b)

	_, err := runLoop(t, func(t *microio.Task) (any, error) {
		s, err := New(a)
		if err != nil {
			return nil, err
		}
		defer s.Close()

		if _, err := unix.Write(b, []byte("no newline here")); err != nil {
			return nil, err
		}
		_, err = s.ReadUntil(t, []byte("\n"), 4)
		return nil, err
	})
	require.ErrorIs(t, err, ErrBufferLimitExceeded)
}

func TestStreamReadConnectionClosed(t *testing.T) {
	a, b := socketPair(t)

	_, err := runLoop(t, func(t *microio.Task) (any, error) {
		s, err := New(a)
		if err != nil {
			return nil, err
		}
		defer s.Close()

		unix.Close(b)
		_, err = s.ReadBytes(t, 1)
		return nil, err
	})
	require.ErrorIs(t, err, ErrConnectionClosed)
}

func TestStreamWrite(t *testing.T) {
	a, b := socketPair(t)

	_, err := runLoop(t, func(t *microio.Task) (any, error) {
		s, err := New(a)
		if err != nil {
			return nil, err
		}
		defer s.Close()
		return nil, s.Write(t, []byte("payload"))
	})
	require.NoError(t, err)

	buf := make([]byte, 16)
	n, err := unix.Read(b, buf)
	require.NoError(t, err)
	require.Equal(t, "payload", string(buf[:n]))
}
