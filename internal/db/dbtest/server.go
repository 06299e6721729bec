// Package dbtest provides an in-memory db.Client that answers the catalog,
// count and row statements issued by the browser.
package dbtest

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/willibrandon/dbpanel/internal/db"
	"github.com/willibrandon/dbpanel/internal/db/models"
)

// Table is the content of one fake table.
type Table struct {
	Columns []models.Column
	Rows    [][]any
}

// Server is a fake database reachable through Connect. It is safe for
// concurrent use.
type Server struct {
	mu          sync.Mutex
	tables      map[models.TableDescriptor]Table
	unreachable map[string]bool
	queryErrors map[string]string
	connects    int
	closes      int
	catalogHits int
}

// NewServer returns an empty server.
func NewServer() *Server {
	return &Server{
		tables:      make(map[models.TableDescriptor]Table),
		unreachable: make(map[string]bool),
		queryErrors: make(map[string]string),
	}
}

// AddTable creates schema.name.
func (s *Server) AddTable(schema, name string, t Table) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables[models.TableDescriptor{Schema: schema, Name: name}] = t
}

// SetUnreachable makes Connect fail for host.
func (s *Server) SetUnreachable(host string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unreachable[host] = true
}

// FailQuery makes statements exactly equal to sql fail with msg.
func (s *Server) FailQuery(sql, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queryErrors[sql] = msg
}

// Stats returns session opens, session closes and catalog listings served.
func (s *Server) Stats() (connects, closes, catalogHits int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connects, s.closes, s.catalogHits
}

// Connect implements db.Client.
func (s *Server) Connect(_ context.Context, params models.ConnectionParams) (db.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.unreachable[params.Host] {
		return nil, &db.ConnectivityError{
			Target: params.String(),
			Err:    fmt.Errorf("dial tcp %s: connect: connection refused", params.Address()),
		}
	}
	s.connects++
	return &session{s: s}, nil
}

type session struct {
	s      *Server
	closed bool
}

func (ss *session) Close(context.Context) error {
	ss.s.mu.Lock()
	defer ss.s.mu.Unlock()
	if !ss.closed {
		ss.closed = true
		ss.s.closes++
	}
	return nil
}

func (ss *session) Query(_ context.Context, sql string, args ...any) (*db.Result, error) {
	s := ss.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if ss.closed {
		return nil, &db.QueryError{SQL: sql, Err: errors.New("conn closed")}
	}
	if msg, ok := s.queryErrors[sql]; ok {
		return nil, &db.QueryError{SQL: sql, Err: errors.New(msg)}
	}

	switch {
	case strings.Contains(sql, "information_schema.tables"):
		s.catalogHits++
		return s.listTables(), nil
	case strings.Contains(sql, "information_schema.columns"):
		return s.listColumns(args), nil
	case strings.HasPrefix(sql, "SELECT COUNT(*) FROM "):
		t, err := s.lookup(sql)
		if err != nil {
			return nil, &db.QueryError{SQL: sql, Err: err}
		}
		return &db.Result{
			Fields:   []db.Field{{Name: "count", TypeName: "int8"}},
			Rows:     [][]any{{int64(len(t.Rows))}},
			RowCount: 1,
		}, nil
	case strings.HasPrefix(sql, "SELECT * FROM "):
		t, err := s.lookup(sql)
		if err != nil {
			return nil, &db.QueryError{SQL: sql, Err: err}
		}
		rows := slices.Clone(t.Rows[:min(len(t.Rows), models.PageSize)])
		fields := make([]db.Field, len(t.Columns))
		for i, c := range t.Columns {
			fields[i] = db.Field{Name: c.Name, TypeName: c.Type}
		}
		return &db.Result{Fields: fields, Rows: rows, RowCount: int64(len(rows))}, nil
	}

	return &db.Result{
		Fields:   []db.Field{{Name: "?column?", TypeName: "int4"}},
		Rows:     [][]any{{int32(1)}},
		RowCount: 1,
	}, nil
}

func (s *Server) listTables() *db.Result {
	keys := make([]models.TableDescriptor, 0, len(s.tables))
	for k := range s.tables {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b models.TableDescriptor) int {
		if c := strings.Compare(a.Schema, b.Schema); c != 0 {
			return c
		}
		return strings.Compare(a.Name, b.Name)
	})

	res := &db.Result{Fields: []db.Field{{Name: "table_schema"}, {Name: "table_name"}}}
	for _, k := range keys {
		res.Rows = append(res.Rows, []any{k.Schema, k.Name})
	}
	res.RowCount = int64(len(res.Rows))
	return res
}

func (s *Server) listColumns(args []any) *db.Result {
	res := &db.Result{}
	if len(args) != 2 {
		return res
	}
	schema, _ := args[0].(string)
	name, _ := args[1].(string)
	t, ok := s.tables[models.TableDescriptor{Schema: schema, Name: name}]
	if !ok {
		return res
	}
	for _, c := range t.Columns {
		var def any
		if c.DefaultValue != nil {
			def = *c.DefaultValue
		}
		res.Rows = append(res.Rows, []any{c.Name, c.Type, c.Nullable, def, c.IsPrimaryKey, c.IsForeignKey})
	}
	res.RowCount = int64(len(res.Rows))
	return res
}

// lookup finds the table whose quoted identifier appears in sql.
func (s *Server) lookup(sql string) (Table, error) {
	for k, t := range s.tables {
		ident := pgx.Identifier{k.Schema, k.Name}.Sanitize()
		if strings.Contains(sql, "FROM "+ident+" ") || strings.HasSuffix(sql, "FROM "+ident) {
			return t, nil
		}
	}
	return Table{}, errors.New("relation does not exist")
}

// SequentialTable returns a two-column table (id, label) with n rows.
func SequentialTable(n int) Table {
	rows := make([][]any, n)
	for i := range rows {
		rows[i] = []any{int32(i + 1), fmt.Sprintf("row %d", i+1)}
	}
	return Table{
		Columns: []models.Column{
			{Name: "id", Type: "integer", IsPrimaryKey: true},
			{Name: "label", Type: "text", Nullable: true},
		},
		Rows: rows,
	}
}
