package db

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/willibrandon/dbpanel/internal/db/models"
	"github.com/willibrandon/dbpanel/internal/logger"
)

// ApplicationName is reported to the server for every session.
const ApplicationName = "dbpanel"

// PgClient opens one pgx connection per session.
type PgClient struct{}

// NewPgClient creates a PostgreSQL client.
func NewPgClient() *PgClient {
	return &PgClient{}
}

// ConnString builds a postgres:// URL for params without the password.
func ConnString(params models.ConnectionParams) string {
	sslMode := "disable"
	if params.SSL {
		sslMode = "require"
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.User(params.Username),
		Host:     net.JoinHostPort(params.Host, strconv.Itoa(params.Port)),
		Path:     "/" + params.Database,
		RawQuery: url.Values{"sslmode": []string{sslMode}}.Encode(),
	}
	return u.String()
}

// Connect opens a session. Any failure, including password retrieval, is a
// ConnectivityError.
func (c *PgClient) Connect(ctx context.Context, params models.ConnectionParams) (Session, error) {
	target := params.String()
	logger.Debug("Opening database session",
		"host", params.Host,
		"port", params.Port,
		"database", params.Database,
		"user", params.Username,
		"ssl", params.SSL,
	)

	password, err := ResolvePassword(ctx, params)
	if err != nil {
		return nil, &ConnectivityError{Target: target, Err: err}
	}

	cfg, err := pgx.ParseConfig(ConnString(params))
	if err != nil {
		return nil, &ConnectivityError{Target: target, Err: fmt.Errorf("invalid connection parameters: %w", err)}
	}
	cfg.Password = password
	cfg.RuntimeParams["application_name"] = ApplicationName

	conn, err := pgx.ConnectConfig(ctx, cfg)
	if err != nil {
		logger.Error("Failed to open database session",
			"host", params.Host,
			"port", params.Port,
			"database", params.Database,
			"error", err,
		)
		return nil, &ConnectivityError{Target: target, Err: err}
	}

	return &pgSession{conn: conn}, nil
}

type pgSession struct {
	conn *pgx.Conn
}

func (s *pgSession) Query(ctx context.Context, sql string, args ...any) (*Result, error) {
	if len(args) == 0 {
		args = []any{pgx.QueryExecModeSimpleProtocol}
	}
	rows, err := s.conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, &QueryError{SQL: sql, Err: err}
	}
	defer rows.Close()

	result, err := s.collect(rows)
	if err != nil {
		return nil, &QueryError{SQL: sql, Err: err}
	}
	return result, nil
}

// collect gathers field metadata and row values from rows.
func (s *pgSession) collect(rows pgx.Rows) (*Result, error) {
	typeMap := s.conn.TypeMap()
	fieldDescs := rows.FieldDescriptions()
	fields := make([]Field, len(fieldDescs))
	for i, fd := range fieldDescs {
		typeName := "unknown"
		if t, ok := typeMap.TypeForOID(fd.DataTypeOID); ok {
			typeName = t.Name
		}
		fields[i] = Field{
			Name:     fd.Name,
			TypeOID:  fd.DataTypeOID,
			TypeName: typeName,
		}
	}

	resultRows := [][]any{}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		row := make([]any, len(values))
		for i, v := range values {
			row[i] = NormalizeValue(v)
		}
		resultRows = append(resultRows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &Result{
		Fields:   fields,
		Rows:     resultRows,
		RowCount: rows.CommandTag().RowsAffected(),
	}, nil
}

func (s *pgSession) Close(ctx context.Context) error {
	return s.conn.Close(ctx)
}
