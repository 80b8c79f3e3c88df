package microio

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// TestPlatformReactorReportsPipeReadiness exercises the real per-platform
// Reactor against a pipe, proving Register/Poll/Unregister/Close behave per
// the documented contract without needing a socket.
func TestPlatformReactorReportsPipeReadiness(t *testing.T) {
	r, err := newPlatformReactor()
	require.NoError(t, err)
	defer r.Close()

	fds := make([]int, 2)
	require.NoError(t, unix.Pipe(fds))
	readFD, writeFD := fds[0], fds[1]
	defer unix.Close(readFD)
	defer unix.Close(writeFD)
	require.NoError(t, unix.SetNonblock(readFD, true))

	require.NoError(t, r.Register(readFD, EventRead))

	ready, err := r.Poll(0)
	require.NoError(t, err)
	require.Empty(t, ready, "nothing written yet")

	_, err = unix.Write(writeFD, []byte("x"))
	require.NoError(t, err)

	ready, err = r.Poll(time.Second)
	require.NoError(t, err)
	require.Len(t, ready, 1)
	require.Equal(t, readFD, ready[0].FD)
	require.NotZero(t, ready[0].Mask&EventRead)

	require.NoError(t, r.Unregister(readFD))
	require.NoError(t, r.Unregister(readFD), "Unregister is idempotent")
}

func TestPlatformReactorModifyChangesInterest(t *testing.T) {
	r, err := newPlatformReactor()
	require.NoError(t, err)
	defer r.Close()

	fds := make([]int, 2)
	require.NoError(t, unix.Pipe(fds))
	readFD, writeFD := fds[0], fds[1]
	defer unix.Close(readFD)
	defer unix.Close(writeFD)
	require.NoError(t, unix.SetNonblock(readFD, true))
	require.NoError(t, unix.SetNonblock(writeFD, true))

	// Register interest in write-readiness on the write end: a pipe's write
	// end is essentially always writable, so this should report immediately.
	require.NoError(t, r.Register(writeFD, EventWrite))
	ready, err := r.Poll(time.Second)
	require.NoError(t, err)
	require.Len(t, ready, 1)
	require.Equal(t, writeFD, ready[0].FD)

	require.NoError(t, r.Modify(writeFD, EventRead))
	ready, err = r.Poll(0)
	require.NoError(t, err)
	require.Empty(t, ready, "write end is not readable")
}

func TestEmptyRegistrationsHonorsNonBlockingPoll(t *testing.T) {
	r, err := newPlatformReactor()
	require.NoError(t, err)
	defer r.Close()

	start := time.Now()
	ready, err := r.Poll(0)
	require.NoError(t, err)
	require.Empty(t, ready)
	require.Less(t, time.Since(start), 500*time.Millisecond)
}
