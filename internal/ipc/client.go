package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/google/uuid"
	"github.com/willibrandon/dbpanel/internal/db/models"
	"github.com/willibrandon/dbpanel/internal/export"
	"github.com/willibrandon/dbpanel/internal/history"
	"github.com/willibrandon/dbpanel/internal/panel"
)

// ErrClosed is returned by calls on a client whose connection has ended.
var ErrClosed = errors.New("ipc connection closed")

// Client is an IPC client for the dbpanel server. It is safe for
// concurrent use; responses are matched to calls by request id.
type Client struct {
	conn    net.Conn
	onEvent func(event string)

	writeMu sync.Mutex
	writer  *bufio.Writer

	mu      sync.Mutex
	pending map[string]chan Message
	err     error
	done    chan struct{}
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithEventHandler delivers server events to fn. fn runs on the client's
// read goroutine and must not call the client.
func WithEventHandler(fn func(event string)) ClientOption {
	return func(c *Client) { c.onEvent = fn }
}

// NewClient creates a new IPC client connected to the server.
func NewClient(path string, opts ...ClientOption) (*Client, error) {
	if path == "" {
		path = DefaultSocketPath()
	}

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()
	conn, err := Dial(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to IPC socket: %w", err)
	}

	c := &Client{
		conn:    conn,
		writer:  bufio.NewWriter(conn),
		pending: make(map[string]chan Message),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	go c.readLoop()
	return c, nil
}

// Close closes the client connection.
func (c *Client) Close() error {
	err := c.conn.Close()
	<-c.done
	return err
}

func (c *Client) readLoop() {
	scanner := bufio.NewScanner(c.conn)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var err error
	for scanner.Scan() {
		var msg Message
		if err = json.Unmarshal(scanner.Bytes(), &msg); err != nil {
			err = fmt.Errorf("failed to parse message: %w", err)
			break
		}

		switch msg.Kind {
		case KindEvent:
			if c.onEvent != nil {
				c.onEvent(msg.Event)
			}
		case KindResponse:
			c.mu.Lock()
			ch, ok := c.pending[msg.ID]
			delete(c.pending, msg.ID)
			c.mu.Unlock()
			if ok {
				ch <- msg
			}
		}
	}
	if err == nil {
		err = scanner.Err()
	}
	if err == nil {
		err = ErrClosed
	}

	c.mu.Lock()
	c.err = err
	c.pending = nil
	c.mu.Unlock()
	close(c.done)
}

// Call sends one request and decodes the result into result, which may be
// nil. A server error is returned as *Error.
func (c *Client) Call(ctx context.Context, method string, params, result any) error {
	id := uuid.New().String()
	req := Request{ID: id, Method: method}

	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("failed to marshal params: %w", err)
		}
		req.Params = data
	}

	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	ch := make(chan Message, 1)
	c.mu.Lock()
	if c.pending == nil {
		err := c.err
		c.mu.Unlock()
		return err
	}
	c.pending[id] = ch
	c.mu.Unlock()

	if err := c.send(data); err != nil {
		c.forget(id)
		return err
	}

	select {
	case msg := <-ch:
		if msg.Error != nil {
			return msg.Error
		}
		if result == nil || len(msg.Result) == 0 {
			return nil
		}
		if err := json.Unmarshal(msg.Result, result); err != nil {
			return fmt.Errorf("failed to parse result: %w", err)
		}
		return nil
	case <-ctx.Done():
		c.forget(id)
		return ctx.Err()
	case <-c.done:
		return c.err
	}
}

func (c *Client) send(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if _, err := c.writer.Write(data); err != nil {
		return fmt.Errorf("failed to write request: %w", err)
	}
	if err := c.writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}
	if err := c.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush: %w", err)
	}
	return nil
}

func (c *Client) forget(id string) {
	c.mu.Lock()
	if c.pending != nil {
		delete(c.pending, id)
	}
	c.mu.Unlock()
}

// ListConnections calls connections.list.
func (c *Client) ListConnections(ctx context.Context) ([]models.ConnectionSummary, error) {
	var res ConnectionsListResult
	if err := c.Call(ctx, MethodConnectionsList, nil, &res); err != nil {
		return nil, err
	}
	return res.Connections, nil
}

// GetConnection calls connections.get with an id or name.
func (c *Client) GetConnection(ctx context.Context, ref string) (*models.ConnectionSummary, error) {
	var res models.ConnectionSummary
	if err := c.Call(ctx, MethodConnectionsGet, ConnectionRefParams{Connection: ref}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// TestConnection calls connections.test.
func (c *Client) TestConnection(ctx context.Context, in models.ConnectionInput) error {
	return c.Call(ctx, MethodConnectionsTest, in, nil)
}

// AddConnection calls connections.add and returns the saved connection.
func (c *Client) AddConnection(ctx context.Context, in models.ConnectionInput) (*models.ConnectionSummary, error) {
	var res models.ConnectionSummary
	if err := c.Call(ctx, MethodConnectionsAdd, in, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// RemoveConnection calls connections.remove with an id or name.
func (c *Client) RemoveConnection(ctx context.Context, ref string) error {
	return c.Call(ctx, MethodConnectionsRemove, ConnectionRefParams{Connection: ref}, nil)
}

// DeleteConnectionByName calls connections.delete_by_name.
func (c *Client) DeleteConnectionByName(ctx context.Context, name string) error {
	return c.Call(ctx, MethodConnectionsDeleteByName, DeleteByNameParams{Name: name}, nil)
}

// ListTables calls tables.list.
func (c *Client) ListTables(ctx context.Context, ref string) ([]models.TableDescriptor, error) {
	var res TablesListResult
	if err := c.Call(ctx, MethodTablesList, ConnectionRefParams{Connection: ref}, &res); err != nil {
		return nil, err
	}
	return res.Tables, nil
}

// InvalidateTables calls tables.invalidate.
func (c *Client) InvalidateTables(ctx context.Context, ref string) (bool, error) {
	var res InvalidateResult
	if err := c.Call(ctx, MethodTablesInvalidate, ConnectionRefParams{Connection: ref}, &res); err != nil {
		return false, err
	}
	return res.Invalidated, nil
}

// LoadTable calls table.load.
func (c *Client) LoadTable(ctx context.Context, ref, schema, table string) (*models.TableData, error) {
	var res models.TableData
	if err := c.Call(ctx, MethodTableLoad, TableParams{Connection: ref, Schema: schema, Table: table}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// ExecuteQuery calls query.execute.
func (c *Client) ExecuteQuery(ctx context.Context, ref, sql string) (*models.QueryResult, error) {
	var res models.QueryResult
	if err := c.Call(ctx, MethodQueryExecute, QueryParams{Connection: ref, SQL: sql}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// QueryHistory calls query.history.
func (c *Client) QueryHistory(ctx context.Context, params HistoryParams) ([]history.Entry, error) {
	var res HistoryResult
	if err := c.Call(ctx, MethodQueryHistory, params, &res); err != nil {
		return nil, err
	}
	return res.Entries, nil
}

// Export calls export.write.
func (c *Client) Export(ctx context.Context, params ExportParams) (*export.Result, error) {
	var res export.Result
	if err := c.Call(ctx, MethodExportWrite, params, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// OpenPanel calls panel.open.
func (c *Client) OpenPanel(ctx context.Context, kind panel.Kind, target panel.Target) (*panel.OpenResult, error) {
	var res panel.OpenResult
	if err := c.Call(ctx, MethodPanelOpen, PanelOpenParams{Kind: string(kind), Target: target}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// FocusPanel calls panel.focus.
func (c *Client) FocusPanel(ctx context.Context, kind panel.Kind) (*panel.Panel, error) {
	var res panel.Panel
	if err := c.Call(ctx, MethodPanelFocus, PanelKindParams{Kind: string(kind)}, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// DisposePanel calls panel.dispose.
func (c *Client) DisposePanel(ctx context.Context, kind panel.Kind) (bool, error) {
	var res PanelDisposeResult
	if err := c.Call(ctx, MethodPanelDispose, PanelKindParams{Kind: string(kind)}, &res); err != nil {
		return false, err
	}
	return res.Disposed, nil
}

// ListPanels calls panel.list.
func (c *Client) ListPanels(ctx context.Context) ([]panel.Panel, error) {
	var res PanelListResult
	if err := c.Call(ctx, MethodPanelList, nil, &res); err != nil {
		return nil, err
	}
	return res.Panels, nil
}

// Subscribe calls events.subscribe. Events are delivered to the handler
// given with WithEventHandler.
func (c *Client) Subscribe(ctx context.Context) error {
	return c.Call(ctx, MethodEventsSubscribe, nil, nil)
}
