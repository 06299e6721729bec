package db

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/willibrandon/dbpanel/internal/db/models"
)

type stubSession struct {
	closed   int
	closeErr error
}

func (s *stubSession) Query(context.Context, string, ...any) (*Result, error) {
	return &Result{}, nil
}

func (s *stubSession) Close(context.Context) error {
	s.closed++
	return s.closeErr
}

type stubClient struct {
	sess *stubSession
	err  error
}

func (c *stubClient) Connect(context.Context, models.ConnectionParams) (Session, error) {
	if c.err != nil {
		return nil, c.err
	}
	return c.sess, nil
}

func TestConnString(t *testing.T) {
	params := models.ConnectionParams{
		Host:     "db.internal",
		Port:     6543,
		Database: "demo",
		Username: "app user",
		Password: "never-in-url",
	}
	assert.Equal(t, "postgres://app%20user@db.internal:6543/demo?sslmode=disable", ConnString(params))

	params.SSL = true
	assert.Contains(t, ConnString(params), "sslmode=require")
	assert.NotContains(t, ConnString(params), "never-in-url")
}

func TestWithSession_ClosesOnError(t *testing.T) {
	sess := &stubSession{}
	client := &stubClient{sess: sess}
	boom := errors.New("boom")

	err := WithSession(context.Background(), client, models.ConnectionParams{}, func(Session) error {
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, sess.closed)
}

func TestWithSession_CloseErrorIsNotReturned(t *testing.T) {
	sess := &stubSession{closeErr: errors.New("close failed")}
	client := &stubClient{sess: sess}

	err := WithSession(context.Background(), client, models.ConnectionParams{}, func(Session) error {
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, sess.closed)
}

func TestTestConnection_PropagatesConnectivityError(t *testing.T) {
	want := &ConnectivityError{Target: "x", Err: errors.New("connection refused")}
	err := TestConnection(context.Background(), &stubClient{err: want}, models.ConnectionParams{})
	require.Error(t, err)
	assert.True(t, IsConnectivity(err))
	assert.False(t, IsQuery(err))
	assert.Equal(t, "connection refused", err.Error())
}

func TestNormalizeValue(t *testing.T) {
	id := [16]byte{0x12, 0x34, 0x56, 0x78, 0x9a, 0xbc, 0xde, 0xf0, 0x12, 0x34, 0x56, 0x78, 0x9a, 0xbc, 0xde, 0xf0}
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	tests := []struct {
		name string
		in   any
		want any
	}{
		{"nil", nil, nil},
		{"string", "abc", "abc"},
		{"int", int64(42), int64(42)},
		{"bytea", []byte{0xde, 0xad}, `\xdead`},
		{"uuid", id, "12345678-9abc-def0-1234-56789abcdef0"},
		{"nan", math.NaN(), "NaN"},
		{"inf", math.Inf(1), "+Inf"},
		{"time", now, now},
		{"nested", []any{[]byte{0x01}, "x"}, []any{`\x01`, "x"}},
		{"json number", json.Number("9007199254740993"), json.Number("9007199254740993")},
		{"float32", float32(0.1), float32(0.1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeValue(tt.in))
		})
	}
}

func TestFormatValue(t *testing.T) {
	s, ok := FormatValue(nil)
	assert.False(t, ok)
	assert.Empty(t, s)

	s, ok = FormatValue(map[string]any{"a": float64(1)})
	assert.True(t, ok)
	assert.Equal(t, `{"a":1}`, s)

	s, ok = FormatValue(true)
	assert.True(t, ok)
	assert.Equal(t, "true", s)
}

func TestFormatValue_NumbersKeepFullPrecision(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{float64(1500000), "1500000"},
		{float64(1234567), "1234567"},
		{float64(0.000001), "0.000001"},
		{float64(-2.5), "-2.5"},
		{float32(0.1), "0.1"},
		{json.Number("9007199254740993"), "9007199254740993"},
		{json.Number("1.25e3"), "1.25e3"},
		{int64(9007199254740993), "9007199254740993"},
		{math.Inf(-1), "-Inf"},
	}
	for _, tt := range tests {
		s, ok := FormatValue(tt.in)
		assert.True(t, ok)
		assert.Equal(t, tt.want, s, "FormatValue(%#v)", tt.in)
	}
}

func TestResolvePassword(t *testing.T) {
	ctx := context.Background()

	t.Setenv("PGPASSWORD", "from-env")
	pw, err := ResolvePassword(ctx, models.ConnectionParams{Password: "stored"})
	require.NoError(t, err)
	assert.Equal(t, "stored", pw)

	pw, err = ResolvePassword(ctx, models.ConnectionParams{})
	require.NoError(t, err)
	assert.Equal(t, "from-env", pw)

	if runtime.GOOS == "windows" {
		t.Skip("password_command test uses echo")
	}
	pw, err = ResolvePassword(ctx, models.ConnectionParams{Password: "stored", PasswordCommand: "echo secret"})
	require.NoError(t, err)
	assert.Equal(t, "secret", pw)

	_, err = ResolvePassword(ctx, models.ConnectionParams{PasswordCommand: "false"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "password command failed")
}
