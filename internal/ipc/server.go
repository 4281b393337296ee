package ipc

import (
	"fmt"
	"net"
	"os"

	"golang.org/x/sys/unix"
)

// Server owns the listening AF_UNIX socket and the bounded set of
// LAYER_LISTEN connections it has promoted. Reload and Bind are supplied by
// the caller (the dispatcher) so this package stays ignorant of the
// registry and keyboard interpreter it is driving.
type Server struct {
	fd   int
	Path string

	Listeners ListenerSet

	Reload func() error
	Bind   func(expr string) error
}

// Listen creates the socket at path. Creation failure here is fatal: most
// commonly it means another instance is already running.
func Listen(path string) (*Server, error) {
	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("creating ipc socket: %w", err)
	}

	addr := &unix.SockaddrUnix{Name: path}
	if err := unix.Bind(fd, addr); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("binding ipc socket %s (another instance already running?): %w", path, err)
	}
	if err := unix.Listen(fd, 16); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("listening on ipc socket %s: %w", path, err)
	}

	return &Server{fd: fd, Path: path}, nil
}

// FD exposes the listening socket's file descriptor for registration with
// the event source.
func (s *Server) FD() int { return s.fd }

// Close tears down the listening socket, every promoted listener, and
// removes the socket file.
func (s *Server) Close() error {
	s.Listeners.CloseAll()
	err := unix.Close(s.fd)
	os.Remove(s.Path)
	return err
}

// Accept handles exactly one pending connection: it accepts, reads its one
// request frame, and dispatches it. Called synchronously from the
// dispatcher's FD_ACTIVITY handling, never concurrently with itself.
func (s *Server) Accept() error {
	connFD, _, err := unix.Accept4(s.fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EINTR {
			return nil
		}
		return fmt.Errorf("accepting ipc connection: %w", err)
	}

	f := os.NewFile(uintptr(connFD), "ipc-conn")
	conn, err := net.FileConn(f)
	f.Close()
	if err != nil {
		return fmt.Errorf("wrapping ipc connection: %w", err)
	}

	return s.handle(conn)
}

func (s *Server) handle(conn net.Conn) error {
	frame, err := ReadFrame(conn)
	if err != nil {
		conn.Close()
		return nil
	}

	switch frame.Type {
	case TypeReload:
		if err := s.Reload(); err != nil {
			WriteFrame(conn, TypeFail, []byte(err.Error()))
		} else {
			WriteFrame(conn, TypeSuccess, nil)
		}
		conn.Close()

	case TypeBind:
		if err := s.Bind(string(frame.Data)); err != nil {
			WriteFrame(conn, TypeFail, []byte(err.Error()))
		} else {
			WriteFrame(conn, TypeSuccess, nil)
		}
		conn.Close()

	case TypeLayerListen:
		if !s.Listeners.Add(conn) {
			// A listener connection never gets framed SUCCESS/FAIL replies,
			// only plain-text lines, so the rejection reads the same way.
			conn.Write([]byte("error: too many listeners\n"))
			conn.Close()
		}
		// Left open: the connection now receives broadcast layer lines and
		// gets no request/response framing of its own.

	default:
		WriteFrame(conn, TypeFail, []byte("unknown request type"))
		conn.Close()
	}

	return nil
}
