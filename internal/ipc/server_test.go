package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/willibrandon/dbpanel/internal/app"
	"github.com/willibrandon/dbpanel/internal/db/dbtest"
	"github.com/willibrandon/dbpanel/internal/db/models"
	"github.com/willibrandon/dbpanel/internal/panel"
	"github.com/willibrandon/dbpanel/internal/storage"
)

func socketPath(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		return `\\.\pipe\dbpanel-test-` + uuid.NewString()
	}
	dir, err := os.MkdirTemp("", "ipc")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	return filepath.Join(dir, "s.sock")
}

// startServer serves a Service backed by a fake database with tables
// public.big (250 rows) and public.small (5 rows).
func startServer(t *testing.T) (string, *dbtest.Server) {
	t.Helper()

	fake := dbtest.NewServer()
	fake.AddTable("public", "big", dbtest.SequentialTable(250))
	fake.AddTable("public", "small", dbtest.SequentialTable(5))
	fake.SetUnreachable("db.invalid")

	svc, err := app.NewService(context.Background(), fake, storage.NewMemoryStore())
	require.NoError(t, err)

	path := socketPath(t)
	srv, err := NewServer(path)
	require.NoError(t, err)
	RegisterHandlers(srv, svc)
	require.NoError(t, srv.Start(context.Background()))
	t.Cleanup(func() { srv.Stop() })

	return path, fake
}

func dial(t *testing.T, path string, opts ...ClientOption) *Client {
	t.Helper()
	c, err := NewClient(path, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func localInput() models.ConnectionInput {
	return models.ConnectionInput{
		Name: "local",
		ConnectionParams: models.ConnectionParams{
			Host: "localhost", Port: 5432, Database: "demo", Username: "u", Password: "secret",
		},
	}
}

func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	var ipcErr *Error
	require.True(t, errors.As(err, &ipcErr), "expected *ipc.Error, got %v", err)
	assert.Equal(t, code, ipcErr.Code)
}

func TestConnectionLifecycle(t *testing.T) {
	path, _ := startServer(t)
	c := dial(t, path)
	ctx := testContext(t)

	conns, err := c.ListConnections(ctx)
	require.NoError(t, err)
	assert.Empty(t, conns)

	added, err := c.AddConnection(ctx, localInput())
	require.NoError(t, err)
	assert.Equal(t, "local", added.Name)
	assert.True(t, added.HasPassword)

	got, err := c.GetConnection(ctx, "local")
	require.NoError(t, err)
	assert.Equal(t, added.ID, got.ID)

	_, err = c.AddConnection(ctx, localInput())
	requireCode(t, err, ErrCodeDuplicateName)

	require.NoError(t, c.RemoveConnection(ctx, added.ID))
	require.NoError(t, c.RemoveConnection(ctx, added.ID))

	_, err = c.GetConnection(ctx, added.ID)
	requireCode(t, err, ErrCodeNotFound)
}

func TestPasswordNeverSent(t *testing.T) {
	path, _ := startServer(t)
	ctx := testContext(t)
	c := dial(t, path)

	_, err := c.AddConnection(ctx, localInput())
	require.NoError(t, err)

	var raw json.RawMessage
	require.NoError(t, c.Call(ctx, MethodConnectionsList, nil, &raw))
	assert.NotContains(t, string(raw), "secret")
	assert.NotContains(t, string(raw), `"password"`)
}

func TestConnectionErrors(t *testing.T) {
	path, _ := startServer(t)
	c := dial(t, path)
	ctx := testContext(t)

	bad := localInput()
	bad.Host = "db.invalid"
	_, err := c.AddConnection(ctx, bad)
	requireCode(t, err, ErrCodeConnectivity)

	err = c.TestConnection(ctx, bad)
	requireCode(t, err, ErrCodeConnectivity)

	invalid := localInput()
	invalid.Name = ""
	invalid.Port = 70000
	_, err = c.AddConnection(ctx, invalid)
	requireCode(t, err, ErrCodeValidation)
	assert.Contains(t, err.Error(), "port must be between 1 and 65535")

	ok := localInput()
	ok.Port = 0
	ok.Host = ""
	require.NoError(t, c.TestConnection(ctx, ok))

	conns, err := c.ListConnections(ctx)
	require.NoError(t, err)
	assert.Empty(t, conns)
}

func TestTablesAndData(t *testing.T) {
	path, fake := startServer(t)
	c := dial(t, path)
	ctx := testContext(t)

	_, err := c.AddConnection(ctx, localInput())
	require.NoError(t, err)

	tables, err := c.ListTables(ctx, "local")
	require.NoError(t, err)
	assert.Equal(t, []models.TableDescriptor{{Schema: "public", Name: "big"}, {Schema: "public", Name: "small"}}, tables)

	_, err = c.ListTables(ctx, "local")
	require.NoError(t, err)
	_, _, hits := fake.Stats()
	assert.Equal(t, 1, hits)

	invalidated, err := c.InvalidateTables(ctx, "local")
	require.NoError(t, err)
	assert.True(t, invalidated)

	data, err := c.LoadTable(ctx, "local", "public", "big")
	require.NoError(t, err)
	assert.Len(t, data.Rows, 200)
	assert.Equal(t, int64(250), data.TotalRows)

	_, err = c.LoadTable(ctx, "local", "public", "ghost")
	requireCode(t, err, ErrCodeNotFound)

	fake.FailQuery("SELEC 1", `syntax error at or near "SELEC"`)
	_, err = c.ExecuteQuery(ctx, "local", "SELEC 1")
	requireCode(t, err, ErrCodeQuery)
	assert.Contains(t, err.Error(), `syntax error at or near "SELEC"`)

	res, err := c.ExecuteQuery(ctx, "local", "SELECT 1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.RowCount)
}

func TestQueryHistory(t *testing.T) {
	path, _ := startServer(t)
	c := dial(t, path)
	ctx := testContext(t)

	_, err := c.AddConnection(ctx, localInput())
	require.NoError(t, err)
	for _, sql := range []string{"SELECT 1", "SELECT now()", "SELECT 42"} {
		_, err := c.ExecuteQuery(ctx, "local", sql)
		require.NoError(t, err)
	}

	entries, err := c.QueryHistory(ctx, HistoryParams{Connection: "local"})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "SELECT 42", entries[0].SQL)
	assert.Equal(t, "SELECT now()", entries[1].SQL)

	entries, err = c.QueryHistory(ctx, HistoryParams{Connection: "local", Search: "now", Limit: 5})
	require.NoError(t, err)
	require.Len(t, entries, 1)

	_, err = c.QueryHistory(ctx, HistoryParams{Connection: "local", Limit: -1})
	requireCode(t, err, ErrCodeValidation)

	_, err = c.QueryHistory(ctx, HistoryParams{Connection: "ghost"})
	requireCode(t, err, ErrCodeNotFound)
}

func TestExportWrite(t *testing.T) {
	path, _ := startServer(t)
	c := dial(t, path)
	ctx := testContext(t)
	dir := t.TempDir()

	res, err := c.Export(ctx, ExportParams{
		Path:    filepath.Join(dir, "rows"),
		Columns: []string{"note"},
		Rows:    [][]any{{`He said, "hi"`}, {nil}},
	})
	require.NoError(t, err)
	data, err := os.ReadFile(res.FilePath)
	require.NoError(t, err)
	assert.Equal(t, "note\n\"He said, \"\"hi\"\"\"\n\n", string(data))

	res, err = c.Export(ctx, ExportParams{
		Path:    filepath.Join(dir, "numbers"),
		Columns: []string{"a", "b", "c"},
		Rows:    [][]any{{1234567, int64(9007199254740993), 0.5}},
	})
	require.NoError(t, err)
	data, err = os.ReadFile(res.FilePath)
	require.NoError(t, err)
	assert.Equal(t, "a,b,c\n\"1234567\",\"9007199254740993\",\"0.5\"\n", string(data))

	res, err = c.Export(ctx, ExportParams{
		Path:    filepath.Join(dir, "numbers"),
		Format:  "json",
		Columns: []string{"b"},
		Rows:    [][]any{{int64(9007199254740993)}},
	})
	require.NoError(t, err)
	data, err = os.ReadFile(res.FilePath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"b": 9007199254740993`)

	_, err = c.AddConnection(ctx, localInput())
	require.NoError(t, err)
	res, err = c.Export(ctx, ExportParams{
		Path: filepath.Join(dir, "small"), Format: "json",
		Connection: "local", Schema: "public", Table: "small",
	})
	require.NoError(t, err)
	assert.Equal(t, 5, res.RowCount)
	assert.Equal(t, filepath.Join(dir, "small.json"), res.FilePath)

	_, err = c.Export(ctx, ExportParams{Path: filepath.Join(dir, "x")})
	requireCode(t, err, ErrCodeValidation)

	_, err = c.Export(ctx, ExportParams{Path: filepath.Join(dir, "x"), Format: "xml", Columns: []string{"a"}})
	requireCode(t, err, ErrCodeValidation)
}

func TestPanels(t *testing.T) {
	path, _ := startServer(t)
	c := dial(t, path)
	ctx := testContext(t)

	first, err := c.OpenPanel(ctx, panel.KindConnectionForm, panel.Target{})
	require.NoError(t, err)
	again, err := c.OpenPanel(ctx, panel.KindConnectionForm, panel.Target{})
	require.NoError(t, err)
	assert.True(t, again.Reused)
	assert.Equal(t, first.Panel.ID, again.Panel.ID)

	a, err := c.OpenPanel(ctx, panel.KindTableData, panel.Target{ConnectionID: "x", Schema: "public", Table: "a"})
	require.NoError(t, err)
	b, err := c.OpenPanel(ctx, panel.KindTableData, panel.Target{ConnectionID: "x", Schema: "public", Table: "b"})
	require.NoError(t, err)
	require.NotNil(t, b.Replaced)
	assert.Equal(t, a.Panel.ID, b.Replaced.ID)

	focused, err := c.FocusPanel(ctx, panel.KindTableData)
	require.NoError(t, err)
	assert.Equal(t, b.Panel.ID, focused.ID)

	panels, err := c.ListPanels(ctx)
	require.NoError(t, err)
	assert.Len(t, panels, 2)

	disposed, err := c.DisposePanel(ctx, panel.KindTableData)
	require.NoError(t, err)
	assert.True(t, disposed)
	disposed, err = c.DisposePanel(ctx, panel.KindTableData)
	require.NoError(t, err)
	assert.False(t, disposed)

	_, err = c.FocusPanel(ctx, panel.KindTableData)
	requireCode(t, err, ErrCodeNotFound)

	_, err = c.OpenPanel(ctx, panel.Kind("sidebar"), panel.Target{})
	requireCode(t, err, ErrCodeValidation)
}

func TestRefreshEvents(t *testing.T) {
	path, _ := startServer(t)
	ctx := testContext(t)

	var events atomic.Int32
	watcher := dial(t, path, WithEventHandler(func(event string) {
		if event == EventRefresh {
			events.Add(1)
		}
	}))
	require.NoError(t, watcher.Subscribe(ctx))
	require.NoError(t, watcher.Subscribe(ctx))

	c := dial(t, path)
	added, err := c.AddConnection(ctx, localInput())
	require.NoError(t, err)
	require.Eventually(t, func() bool { return events.Load() >= 1 }, 5*time.Second, 10*time.Millisecond)

	before := events.Load()
	require.NoError(t, c.RemoveConnection(ctx, added.ID))
	require.Eventually(t, func() bool { return events.Load() > before }, 5*time.Second, 10*time.Millisecond)
}

func TestProtocolErrors(t *testing.T) {
	path, _ := startServer(t)
	conn, err := Dial(testContext(t), path)
	require.NoError(t, err)
	defer conn.Close()

	reader := bufio.NewReader(conn)
	roundTrip := func(line string) Message {
		t.Helper()
		_, err := conn.Write([]byte(line + "\n"))
		require.NoError(t, err)
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		data, err := reader.ReadBytes('\n')
		require.NoError(t, err)
		var msg Message
		require.NoError(t, json.Unmarshal(data, &msg))
		return msg
	}

	msg := roundTrip("not json")
	assert.Equal(t, KindResponse, msg.Kind)
	require.NotNil(t, msg.Error)
	assert.Equal(t, ErrCodeInvalidRequest, msg.Error.Code)

	msg = roundTrip(`{"id":"1","method":"nodes.list"}`)
	require.NotNil(t, msg.Error)
	assert.Equal(t, "1", msg.ID)
	assert.Equal(t, ErrCodeMethodNotFound, msg.Error.Code)

	msg = roundTrip(`{"id":"2","method":"tables.list","params":{"connection":"x","extra":true}}`)
	require.NotNil(t, msg.Error)
	assert.Equal(t, ErrCodeInvalidRequest, msg.Error.Code)

	msg = roundTrip(`{"id":"3","method":"tables.list","params":{}}`)
	require.NotNil(t, msg.Error)
	assert.Equal(t, ErrCodeValidation, msg.Error.Code)

	msg = roundTrip(`{"id":"4","method":"connections.list"}`)
	assert.Nil(t, msg.Error)
	assert.JSONEq(t, `{"connections":[]}`, string(msg.Result))
}

func TestStopClosesClients(t *testing.T) {
	fake := dbtest.NewServer()
	svc, err := app.NewService(context.Background(), fake, storage.NewMemoryStore())
	require.NoError(t, err)

	path := socketPath(t)
	srv, err := NewServer(path)
	require.NoError(t, err)
	RegisterHandlers(srv, svc)
	require.NoError(t, srv.Start(context.Background()))

	c := dial(t, path)
	ctx := testContext(t)
	_, err = c.ListConnections(ctx)
	require.NoError(t, err)

	require.NoError(t, srv.Stop())

	_, err = c.ListConnections(ctx)
	assert.Error(t, err)
}

func TestErrorCode(t *testing.T) {
	assert.Equal(t, ErrCodeInternalError, ErrorCode(errors.New("boom")))
	assert.Equal(t, ErrCodePersistence, ErrorCode(&storage.PersistenceError{Op: "set", Key: "k", Err: errors.New("disk full")}))
	assert.Equal(t, ErrCodeNotFound, ErrorCode(panel.ErrNoPanel))
}

func TestDecodeParams(t *testing.T) {
	var p ConnectionRefParams
	require.NoError(t, decodeParams(nil, &p))
	require.NoError(t, decodeParams(json.RawMessage("null"), &p))
	require.NoError(t, decodeParams(json.RawMessage(`{"connection":"a"}`), &p))
	assert.Equal(t, "a", p.Connection)

	var ep ExportParams
	require.NoError(t, decodeParams(json.RawMessage(`{"path":"x","columns":["n"],"rows":[[9007199254740993]]}`), &ep))
	assert.Equal(t, json.Number("9007199254740993"), ep.Rows[0][0])

	var herr *HandlerError
	err := decodeParams(json.RawMessage(`{"connection":"a"} {}`), &p)
	require.True(t, errors.As(err, &herr))
	assert.Equal(t, ErrCodeInvalidRequest, herr.Code)
}

func TestPeerCloseWaitsForEventWriter(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	var fire func()
	unsubscribed := make(chan struct{})
	src := func(fn func()) func() {
		fire = fn
		return func() { close(unsubscribed) }
	}

	p := newPeer(server)
	p.subscribe(src)
	// Nobody reads the pipe, so the event writer blocks mid-write.
	fire()

	closed := make(chan struct{})
	go func() {
		p.close()
		close(closed)
	}()

	select {
	case <-closed:
	case <-time.After(5 * time.Second):
		t.Fatal("close did not return while the event writer was blocked")
	}
	select {
	case <-unsubscribed:
	default:
		t.Fatal("close did not unsubscribe from the event source")
	}

	// A late notification after close must not block or panic.
	fire()
}
