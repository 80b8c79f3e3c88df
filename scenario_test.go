package microio_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/ethframe/microio"
	"github.com/ethframe/microio/stream"
)

// TestScenarioEchoOneShot exercises the listen/dial/accept conveniences
// end-to-end: a client connects, sends "ping", and gets it echoed back.
func TestScenarioEchoOneShot(t *testing.T) {
	listenFD, addr, err := stream.Listen("127.0.0.1:0")
	require.NoError(t, err)
	defer unix.Close(listenFD)

	l, err := microio.New()
	require.NoError(t, err)
	defer l.Close()

	var clientReply string
	var serverEvents []string

	v, err := l.Run(context.Background(), func(t *microio.Task) (any, error) {
		// A single Accept (rather than the Serve loop, which runs until the
		// listener errors out) terminates naturally after one connection, so
		// the loop has no dangling I/O registration once this scenario ends.
		t.Go(func(t *microio.Task) (any, error) {
			fd, _, err := stream.Accept(t, listenFD)
			if err != nil {
				return nil, err
			}
			conn, err := stream.New(fd)
			if err != nil {
				return nil, err
			}
			defer conn.Close()

			serverEvents = append(serverEvents, "Connection")
			req, err := conn.ReadSome(t, 1024)
			if err != nil {
				return nil, err
			}
			serverEvents = append(serverEvents, "Request: "+string(req))
			serverEvents = append(serverEvents, "Reply: "+string(req))
			return nil, conn.Write(t, req)
		})

		return t.Call(func(t *microio.Task) (any, error) {
			fd, err := stream.Dial(t, addr)
			if err != nil {
				return nil, err
			}
			conn, err := stream.New(fd)
			if err != nil {
				return nil, err
			}
			defer conn.Close()

			if err := conn.Write(t, []byte("ping")); err != nil {
				return nil, err
			}
			reply, err := conn.ReadBytes(t, 4)
			if err != nil {
				return nil, err
			}
			clientReply = string(reply)
			return nil, nil
		})
	})

	require.NoError(t, err)
	require.Nil(t, v)
	require.Equal(t, "ping", clientReply)
	require.Equal(t, []string{"Connection", "Request: ping", "Reply: ping"}, serverEvents)
}

// TestScenarioExceptionPropagationWithCatch shows a parent recovering from a
// failed child via the ordinary (value, error) return of Task.Call.
func TestScenarioExceptionPropagationWithCatch(t *testing.T) {
	l, err := microio.New()
	require.NoError(t, err)
	defer l.Close()

	sentinel := errors.New("child failed")
	v, err := l.Run(context.Background(), func(t *microio.Task) (any, error) {
		_, callErr := t.Call(func(t *microio.Task) (any, error) {
			return nil, sentinel
		})
		if callErr != nil {
			return "recovered", nil
		}
		return "unreachable", nil
	})
	require.NoError(t, err)
	require.Equal(t, "recovered", v)
}

// TestScenarioExceptionPropagationWithoutCatch shows the same failure
// propagating out of Run when the parent does not handle it.
func TestScenarioExceptionPropagationWithoutCatch(t *testing.T) {
	l, err := microio.New()
	require.NoError(t, err)
	defer l.Close()

	sentinel := errors.New("child failed")
	_, err = l.Run(context.Background(), func(t *microio.Task) (any, error) {
		return t.Call(func(t *microio.Task) (any, error) {
			return nil, sentinel
		})
	})
	require.ErrorIs(t, err, sentinel)
}
