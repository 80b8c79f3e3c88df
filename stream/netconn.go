package stream

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"

	"github.com/ethframe/microio"
)

// Listen binds and listens on a TCP4 address (host:port, port 0 for an
// ephemeral port), returning the non-blocking listening fd and the actual
// bound address.
func Listen(address string) (fd int, boundAddr string, err error) {
	sa, err := resolveSockaddr(address)
	if err != nil {
		return -1, "", err
	}
	fd, err = unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, "", err
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return -1, "", err
	}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return -1, "", err
	}
	if err := unix.Listen(fd, 128); err != nil {
		unix.Close(fd)
		return -1, "", err
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return -1, "", err
	}
	got, err := unix.Getsockname(fd)
	if err != nil {
		unix.Close(fd)
		return -1, "", err
	}
	return fd, sockaddrString(got), nil
}

// Accept blocks until a connection arrives on listenFD, returning the
// accepted non-blocking fd and the peer's address.
func Accept(t *microio.Task, listenFD int) (fd int, peerAddr string, err error) {
	for {
		if _, err := t.RegisterIO(listenFD, microio.EventRead|microio.EventError); err != nil {
			return -1, "", err
		}
		nfd, sa, err := unix.Accept(listenFD)
		if err != nil {
			if isWouldBlock(err) {
				continue
			}
			_ = t.DeregisterIO(listenFD)
			return -1, "", err
		}
		if err := t.DeregisterIO(listenFD); err != nil {
			return -1, "", err
		}
		if err := unix.SetNonblock(nfd, true); err != nil {
			unix.Close(nfd)
			return -1, "", err
		}
		return nfd, sockaddrString(sa), nil
	}
}

// Dial connects to a TCP4 address, blocking until the connection completes
// or fails, and returns the non-blocking fd.
func Dial(t *microio.Task, address string) (int, error) {
	sa, err := resolveSockaddr(address)
	if err != nil {
		return -1, err
	}
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, err
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return -1, err
	}
	err = unix.Connect(fd, sa)
	if err == nil {
		return fd, nil
	}
	if err != unix.EINPROGRESS && err != unix.EALREADY {
		unix.Close(fd)
		return -1, err
	}
	if _, err := t.RegisterIO(fd, microio.EventWrite|microio.EventError); err != nil {
		unix.Close(fd)
		return -1, err
	}
	if err := t.DeregisterIO(fd); err != nil {
		unix.Close(fd)
		return -1, err
	}
	if soErr, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR); err == nil && soErr != 0 {
		unix.Close(fd)
		return -1, unix.Errno(soErr)
	}
	return fd, nil
}

// Handler serves one accepted connection, given its Stream and peer
// address.
type Handler func(t *microio.Task, conn *Stream, peerAddr string) (any, error)

// Serve accepts connections on listenFD in sequence, running handler to
// completion as a child task (via Task.Call) before accepting the next one.
// For concurrent handling, callers can run this same Accept/New/handler
// sequence themselves inside a task spawned with Task.Go per connection.
func Serve(t *microio.Task, listenFD int, handler Handler) error {
	for {
		fd, addr, err := Accept(t, listenFD)
		if err != nil {
			return err
		}
		conn, err := New(fd)
		if err != nil {
			unix.Close(fd)
			return err
		}
		if _, err := t.Call(func(ct *microio.Task) (any, error) {
			defer conn.Close()
			return handler(ct, conn, addr)
		}); err != nil {
			return err
		}
	}
}

func resolveSockaddr(address string) (unix.Sockaddr, error) {
	tcpAddr, err := net.ResolveTCPAddr("tcp4", address)
	if err != nil {
		return nil, err
	}
	sa := &unix.SockaddrInet4{Port: tcpAddr.Port}
	ip := tcpAddr.IP.To4()
	if ip == nil {
		ip = net.IPv4zero.To4()
	}
	copy(sa.Addr[:], ip)
	return sa, nil
}

func sockaddrString(sa unix.Sockaddr) string {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return fmt.Sprintf("%s:%d", net.IP(a.Addr[:]).String(), a.Port)
	default:
		return ""
	}
}
