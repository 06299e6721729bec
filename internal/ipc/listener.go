package ipc

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"
)

// dialTimeout bounds how long NewClient waits for the server to accept.
const dialTimeout = 5 * time.Second

// ErrEndpointInUse is returned by NewServer when another live server owns
// the socket or pipe.
var ErrEndpointInUse = errors.New("IPC endpoint already in use by another process")

// DefaultSocketPath returns the endpoint `dbpanel serve` listens on when no
// path is configured: a per-user socket in the temp dir, or a named pipe on
// Windows.
func DefaultSocketPath() string {
	return defaultEndpoint()
}

// endpoint is a listening socket or pipe. Closing it also removes whatever
// it left on the filesystem.
type endpoint struct {
	net.Listener
	path   string
	remove func()

	closeOnce sync.Once
	closeErr  error
}

func (e *endpoint) Close() error {
	e.closeOnce.Do(func() {
		e.closeErr = e.Listener.Close()
		if e.remove != nil {
			e.remove()
		}
	})
	return e.closeErr
}

// listen opens the endpoint at path, taking over a stale one left behind by
// a server that did not shut down cleanly.
func listen(path string) (*endpoint, error) {
	if path == "" {
		path = DefaultSocketPath()
	}
	return listenEndpoint(path)
}

// Dial connects to the endpoint at path.
func Dial(ctx context.Context, path string) (net.Conn, error) {
	if path == "" {
		path = DefaultSocketPath()
	}
	return dialEndpoint(ctx, path)
}

// alive reports whether a server answers at path.
func alive(path string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	conn, err := dialEndpoint(ctx, path)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
