package browser

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/willibrandon/dbpanel/internal/db"
	"github.com/willibrandon/dbpanel/internal/db/models"
)

// tableServer fakes a server holding one table with rowCount rows.
type tableServer struct {
	rowCount int
	failOn   string // substring of the statement that should fail
	connects int
	closes   int
	queries  []string
}

type tableSession struct{ s *tableServer }

func (c *tableServer) Connect(context.Context, models.ConnectionParams) (db.Session, error) {
	c.connects++
	return tableSession{s: c}, nil
}

func (t tableSession) Close(context.Context) error {
	t.s.closes++
	return nil
}

func (t tableSession) Query(_ context.Context, sql string, args ...any) (*db.Result, error) {
	s := t.s
	s.queries = append(s.queries, sql)
	if s.failOn != "" && strings.Contains(sql, s.failOn) {
		return nil, &db.QueryError{SQL: sql, Err: errors.New(`relation "public.items" does not exist`)}
	}

	switch {
	case strings.Contains(sql, "information_schema.tables"):
		return &db.Result{Rows: [][]any{{"public", "items"}}}, nil
	case strings.Contains(sql, "information_schema.columns"):
		if args[1] != "items" {
			return &db.Result{}, nil
		}
		return &db.Result{Rows: [][]any{
			{"id", "integer", false, nil, true, false},
			{"label", "text", true, nil, false, false},
		}}, nil
	case strings.HasPrefix(sql, "SELECT COUNT(*)"):
		return &db.Result{Rows: [][]any{{int64(s.rowCount)}}}, nil
	case strings.HasPrefix(sql, "SELECT * FROM"):
		n := min(s.rowCount, models.PageSize)
		rows := make([][]any, n)
		for i := range rows {
			rows[i] = []any{int64(i + 1), "row"}
		}
		return &db.Result{
			Fields:   []db.Field{{Name: "id", TypeName: "int4"}, {Name: "label", TypeName: "text"}},
			Rows:     rows,
			RowCount: int64(n),
		}, nil
	}
	return &db.Result{
		Fields:   []db.Field{{Name: "x", TypeName: ""}},
		Rows:     [][]any{{int64(1)}},
		RowCount: 1,
	}, nil
}

var profile = models.ConnectionProfile{
	ID:   "conn-1",
	Name: "local",
	ConnectionParams: models.ConnectionParams{
		Host: "localhost", Port: 5432, Database: "demo", Username: "u",
	},
}

func TestLoadTableData_RowCap(t *testing.T) {
	tests := []struct {
		total    int
		wantRows int
	}{
		{total: 250, wantRows: 200},
		{total: 5, wantRows: 5},
		{total: 0, wantRows: 0},
	}
	for _, tt := range tests {
		server := &tableServer{rowCount: tt.total}
		data, err := New(server).LoadTableData(context.Background(), profile, "public", "items")
		require.NoError(t, err)

		assert.Len(t, data.Rows, tt.wantRows)
		assert.Equal(t, int64(tt.total), data.TotalRows)
		assert.Equal(t, models.PageSize, data.PageSize)
		assert.Equal(t, 1, data.CurrentPage)
		assert.Len(t, data.Columns, 2)
		assert.True(t, data.Columns[0].IsPrimaryKey)
		assert.Equal(t, 1, server.connects)
		assert.Equal(t, 1, server.closes)
		assert.Len(t, server.queries, 3)
	}
}

func TestLoadTableData_AbortsOnAnyFailure(t *testing.T) {
	for _, failOn := range []string{"information_schema.columns", "COUNT(*)", "SELECT * FROM"} {
		server := &tableServer{rowCount: 10, failOn: failOn}
		data, err := New(server).LoadTableData(context.Background(), profile, "public", "items")

		require.Error(t, err, failOn)
		assert.Nil(t, data, failOn)
		assert.True(t, db.IsQuery(err), failOn)
		assert.Equal(t, 1, server.closes, failOn)
	}
}

func TestLoadTableData_UnknownTable(t *testing.T) {
	server := &tableServer{}
	_, err := New(server).LoadTableData(context.Background(), profile, "public", "ghost")
	require.ErrorIs(t, err, ErrTableNotFound)
	assert.Len(t, server.queries, 1)
}

func TestExecuteQuery(t *testing.T) {
	server := &tableServer{}
	res, err := New(server).ExecuteQuery(context.Background(), profile, "SELECT 1 AS x")
	require.NoError(t, err)

	require.Len(t, res.Columns, 1)
	assert.Equal(t, models.Column{Name: "x", Type: UnknownType, Nullable: true}, res.Columns[0])
	assert.Equal(t, int64(1), res.RowCount)
	assert.Equal(t, []string{"SELECT 1 AS x"}, server.queries)
	assert.Equal(t, 1, server.closes)
}

func TestExecuteQuery_Error(t *testing.T) {
	server := &tableServer{failOn: "SELEC"}
	_, err := New(server).ExecuteQuery(context.Background(), profile, "SELEC 1")
	require.Error(t, err)
	assert.True(t, db.IsQuery(err))
	assert.Equal(t, 1, server.closes)
}

func TestListTables(t *testing.T) {
	server := &tableServer{}
	tables, err := New(server).ListTables(context.Background(), profile)
	require.NoError(t, err)
	assert.Equal(t, []models.TableDescriptor{{Schema: "public", Name: "items"}}, tables)
	assert.Equal(t, 1, server.closes)
}
