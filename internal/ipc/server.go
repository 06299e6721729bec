// Package ipc serves the core to the editor extension as newline-delimited
// JSON over a Unix socket or Windows named pipe.
package ipc

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/willibrandon/dbpanel/internal/logger"
)

// maxLineSize bounds one request line.
const maxLineSize = 16 << 20

// Handler is a function that handles an IPC method call.
type Handler func(ctx context.Context, params json.RawMessage) (any, error)

// HandlerError represents an error with a specific error code.
type HandlerError struct {
	Code    string
	Message string
}

func (e *HandlerError) Error() string {
	return e.Message
}

// EventSource registers a refresh callback and returns its unsubscribe
// function.
type EventSource func(fn func()) (unsubscribe func())

// Server handles IPC connections and routes requests to handlers.
type Server struct {
	endpoint *endpoint
	handlers map[string]Handler
	events   EventSource

	mu      sync.Mutex
	running bool
	peers   map[*peer]struct{}
	wg      sync.WaitGroup
}

// NewServer creates a new IPC server listening at path. An empty path uses
// DefaultSocketPath.
func NewServer(path string) (*Server, error) {
	ep, err := listen(path)
	if err != nil {
		return nil, err
	}

	s := &Server{
		endpoint: ep,
		handlers: make(map[string]Handler),
		peers:    make(map[*peer]struct{}),
	}
	s.handlers[MethodEventsSubscribe] = s.handleSubscribe
	return s, nil
}

// RegisterHandler registers a handler for a method.
func (s *Server) RegisterHandler(method string, handler Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[method] = handler
}

// SetEventSource sets where events.subscribe attaches clients.
func (s *Server) SetEventSource(src EventSource) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = src
}

// Start begins accepting connections.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}
	s.running = true
	s.mu.Unlock()

	logger.Info("IPC server listening", "path", s.endpoint.path)

	s.wg.Add(1)
	go s.acceptLoop(ctx)

	return nil
}

// Stop closes the listener and every client connection, then waits for
// their goroutines to finish. A server that was never started just releases
// its endpoint.
func (s *Server) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return s.endpoint.Close()
	}
	s.running = false
	for p := range s.peers {
		p.conn.Close()
	}
	s.mu.Unlock()

	err := s.endpoint.Close()
	s.wg.Wait()

	logger.Info("IPC server stopped")
	return err
}

// Path returns the IPC endpoint path.
func (s *Server) Path() string {
	return s.endpoint.path
}

func (s *Server) acceptLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		conn, err := s.endpoint.Accept()
		if err != nil {
			s.mu.Lock()
			running := s.running
			s.mu.Unlock()
			if !running {
				return
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			logger.Warn("IPC accept error", "error", err)
			continue
		}

		p := newPeer(conn)
		s.mu.Lock()
		if !s.running {
			s.mu.Unlock()
			conn.Close()
			return
		}
		s.peers[p] = struct{}{}
		s.wg.Add(1)
		s.mu.Unlock()

		go s.handleConnection(ctx, p)
	}
}

// handleConnection serves requests from one client until it disconnects.
// Requests on one connection are handled in order.
func (s *Server) handleConnection(ctx context.Context, p *peer) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.peers, p)
		s.mu.Unlock()
		p.close()
	}()

	ctx, cancel := context.WithCancel(context.WithValue(ctx, peerKey{}, p))
	defer cancel()

	logger.Debug("IPC client connected")

	scanner := bufio.NewScanner(p.conn)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			if err := p.write(NewErrorResponse("", ErrCodeInvalidRequest, fmt.Sprintf("invalid JSON: %v", err))); err != nil {
				return
			}
			continue
		}

		logger.Debug("IPC request", "method", req.Method, "id", req.ID)

		if err := p.write(s.handleRequest(ctx, req)); err != nil {
			logger.Warn("IPC write error", "error", err)
			return
		}
	}

	if err := scanner.Err(); err != nil && !errors.Is(err, net.ErrClosed) && !errors.Is(err, io.EOF) {
		logger.Warn("IPC read error", "error", err)
	}
	logger.Debug("IPC client disconnected")
}

// handleRequest routes a request to the appropriate handler.
func (s *Server) handleRequest(ctx context.Context, req Request) Message {
	if req.Method == "" {
		return NewErrorResponse(req.ID, ErrCodeInvalidRequest, "missing method")
	}

	s.mu.Lock()
	handler, ok := s.handlers[req.Method]
	s.mu.Unlock()

	if !ok {
		return NewErrorResponse(req.ID, ErrCodeMethodNotFound,
			fmt.Sprintf("unknown method: %s", req.Method))
	}

	result, err := handler(ctx, req.Params)
	if err != nil {
		var herr *HandlerError
		if errors.As(err, &herr) {
			return NewErrorResponse(req.ID, herr.Code, herr.Message)
		}
		code := ErrorCode(err)
		if code == ErrCodeInternalError {
			logger.Error("IPC handler failed", "method", req.Method, "error", err)
		}
		return NewErrorResponse(req.ID, code, err.Error())
	}

	resp, err := NewSuccessResponse(req.ID, result)
	if err != nil {
		return NewErrorResponse(req.ID, ErrCodeInternalError,
			fmt.Sprintf("failed to marshal response: %v", err))
	}
	return resp
}

// handleSubscribe attaches the calling connection to refresh events.
func (s *Server) handleSubscribe(ctx context.Context, params json.RawMessage) (any, error) {
	var p NoParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}

	s.mu.Lock()
	src := s.events
	s.mu.Unlock()
	if src == nil {
		return nil, &HandlerError{Code: ErrCodeInternalError, Message: "events are not available"}
	}

	pr, ok := ctx.Value(peerKey{}).(*peer)
	if !ok {
		return nil, &HandlerError{Code: ErrCodeInternalError, Message: "no client connection"}
	}
	pr.subscribe(src)
	return SubscribeResult{Subscribed: true}, nil
}

// decodeParams strictly decodes raw into v. Missing params decode as an
// empty object; unknown fields and trailing data are rejected. Numbers in
// untyped fields stay json.Number so export rows keep their exact text.
func decodeParams(raw json.RawMessage, v any) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		raw = []byte("{}")
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return &HandlerError{Code: ErrCodeInvalidRequest, Message: fmt.Sprintf("invalid params: %v", err)}
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return &HandlerError{Code: ErrCodeInvalidRequest, Message: "invalid params: trailing data"}
	}
	return nil
}

type peerKey struct{}

// peer is one client connection. Responses and events share its write lock.
type peer struct {
	conn net.Conn

	writeMu sync.Mutex
	w       *bufio.Writer

	mu          sync.Mutex
	unsubscribe func()
	pending     chan struct{}
	done        chan struct{}
	// events tracks the event writer so close returns only after it exits.
	events sync.WaitGroup
}

func newPeer(conn net.Conn) *peer {
	return &peer{
		conn:    conn,
		w:       bufio.NewWriter(conn),
		pending: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

func (p *peer) write(msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	if _, err := p.w.Write(data); err != nil {
		return err
	}
	if err := p.w.WriteByte('\n'); err != nil {
		return err
	}
	return p.w.Flush()
}

// subscribe attaches p to src once. Notifications are coalesced: a burst
// while an event is pending produces a single event.
func (p *peer) subscribe(src EventSource) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.unsubscribe != nil {
		return
	}

	p.unsubscribe = src(func() {
		select {
		case p.pending <- struct{}{}:
		default:
		}
	})

	p.events.Add(1)
	go func() {
		defer p.events.Done()
		for {
			select {
			case <-p.done:
				return
			case <-p.pending:
				if err := p.write(NewEvent(EventRefresh)); err != nil {
					logger.Debug("IPC event write failed", "error", err)
					return
				}
			}
		}
	}()
}

func (p *peer) close() {
	p.mu.Lock()
	if p.unsubscribe != nil {
		p.unsubscribe()
	}
	p.mu.Unlock()

	close(p.done)
	p.conn.Close()
	p.events.Wait()
}
