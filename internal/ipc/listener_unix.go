//go:build !windows

package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"syscall"
)

func defaultEndpoint() string {
	return filepath.Join(os.TempDir(), fmt.Sprintf("dbpanel-%d.sock", os.Getuid()))
}

// listenEndpoint binds a unix socket usable only by its owner. A socket file
// that nobody answers on is unlinked and the bind retried once.
func listenEndpoint(path string) (*endpoint, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create socket directory: %w", err)
	}

	ln, err := net.Listen("unix", path)
	if errors.Is(err, syscall.EADDRINUSE) {
		if alive(path) {
			return nil, fmt.Errorf("%w: %s", ErrEndpointInUse, path)
		}
		if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
			return nil, fmt.Errorf("remove stale socket: %w", rmErr)
		}
		ln, err = net.Listen("unix", path)
	}
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", path, err)
	}
	// Close must not unlink a socket another server has bound since.
	ln.(*net.UnixListener).SetUnlinkOnClose(false)

	if err := os.Chmod(path, 0600); err != nil {
		ln.Close()
		os.Remove(path)
		return nil, fmt.Errorf("restrict socket permissions: %w", err)
	}

	info, _ := os.Stat(path)
	return &endpoint{
		Listener: ln,
		path:     path,
		remove: func() {
			if cur, err := os.Stat(path); err == nil && info != nil && os.SameFile(cur, info) {
				os.Remove(path)
			}
		},
	}, nil
}

func dialEndpoint(ctx context.Context, path string) (net.Conn, error) {
	var d net.Dialer
	return d.DialContext(ctx, "unix", path)
}
