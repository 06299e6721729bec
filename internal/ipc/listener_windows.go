//go:build windows

package ipc

import (
	"context"
	"fmt"
	"net"

	"github.com/Microsoft/go-winio"
)

// pipeBufferSize sizes both directions of the named pipe.
const pipeBufferSize = 64 << 10

func defaultEndpoint() string {
	return `\\.\pipe\dbpanel`
}

// listenEndpoint creates a named pipe. Pipes vanish with their last handle,
// so there is never a stale endpoint to take over.
func listenEndpoint(path string) (*endpoint, error) {
	ln, err := winio.ListenPipe(path, &winio.PipeConfig{
		InputBufferSize:  pipeBufferSize,
		OutputBufferSize: pipeBufferSize,
	})
	if err != nil {
		if alive(path) {
			return nil, fmt.Errorf("%w: %s", ErrEndpointInUse, path)
		}
		return nil, fmt.Errorf("listen on %s: %w", path, err)
	}
	return &endpoint{Listener: ln, path: path}, nil
}

func dialEndpoint(ctx context.Context, path string) (net.Conn, error) {
	return winio.DialPipeContext(ctx, path)
}
