package sqlite

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/willibrandon/dbpanel/internal/history"
	"github.com/willibrandon/dbpanel/internal/logger"
	"github.com/willibrandon/dbpanel/internal/storage"
)

func TestHistoryStore_AddAndRecent(t *testing.T) {
	store := NewHistoryStore(openTestDB(t))
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	add := func(conn, sql string, offset time.Duration) {
		t.Helper()
		err := store.Add(ctx, history.Entry{ConnectionID: conn, SQL: sql, ExecutedAt: base.Add(offset), RowCount: 1})
		if err != nil {
			t.Fatalf("Add(%q) failed: %v", sql, err)
		}
	}

	add("c1", "SELECT * FROM users WHERE id = 1", 0)
	add("c1", "SELECT now()", time.Second)
	add("c1", "SELECT * FROM users WHERE id = 7", 2*time.Second)
	add("c2", "SELECT 1", 3*time.Second)

	entries, err := store.Recent(ctx, "c1", "", 0)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("Expected 2 deduplicated entries, got %d", len(entries))
	}
	if entries[0].SQL != "SELECT * FROM users WHERE id = 7" {
		t.Errorf("Expected newest statement first, got %q", entries[0].SQL)
	}
	if !entries[0].ExecutedAt.Equal(base.Add(2 * time.Second)) {
		t.Errorf("Expected updated timestamp, got %v", entries[0].ExecutedAt)
	}

	filtered, err := store.Recent(ctx, "c1", "now", 10)
	if err != nil {
		t.Fatalf("Recent with search failed: %v", err)
	}
	if len(filtered) != 1 || filtered[0].SQL != "SELECT now()" {
		t.Errorf("Unexpected search result: %+v", filtered)
	}

	if err := store.Clear(ctx, "c1"); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	entries, err = store.Recent(ctx, "c1", "", 10)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("Expected empty history after Clear, got %d", len(entries))
	}

	other, err := store.Recent(ctx, "c2", "", 10)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(other) != 1 {
		t.Errorf("Clear must not touch other connections, got %d entries", len(other))
	}
}

func TestHistoryStore_IgnoresBlank(t *testing.T) {
	store := NewHistoryStore(openTestDB(t))
	ctx := context.Background()

	if err := store.Add(ctx, history.Entry{ConnectionID: "c1", SQL: "  \n"}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	entries, err := store.Recent(ctx, "c1", "", 10)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("Expected no entries, got %d", len(entries))
	}
}

func TestHistoryStore_AddFailure(t *testing.T) {
	conn, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New failed: %v", err)
	}
	defer conn.Close()

	mock.ExpectExec("INSERT INTO query_history").WillReturnError(errors.New("database is locked"))

	store := NewHistoryStore(WrapConn(conn))
	err = store.Add(context.Background(), history.Entry{ConnectionID: "c1", SQL: "SELECT 1"})

	var perr *storage.PersistenceError
	if !errors.As(err, &perr) {
		t.Fatalf("Expected PersistenceError, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unmet expectations: %v", err)
	}
}

func TestHistoryStore_SearchIsLiteral(t *testing.T) {
	ctx := context.Background()
	stores := map[string]history.Store{
		"sqlite": NewHistoryStore(openTestDB(t)),
		"memory": history.NewMemoryStore(),
	}
	statements := []string{
		"SELECT 1",
		"SELECT now()",
		"SELECT user_id FROM accounts",
		"SELECT * FROM accounts WHERE code LIKE '10%'",
		`SELECT 'C:\temp' AS path`,
	}

	for name, store := range stores {
		for i, sql := range statements {
			e := history.Entry{ConnectionID: "c1", SQL: sql, ExecutedAt: time.Unix(int64(i), 0)}
			if err := store.Add(ctx, e); err != nil {
				t.Fatalf("%s: Add(%q) failed: %v", name, sql, err)
			}
		}

		for search, want := range map[string]string{
			"_":   "SELECT user_id FROM accounts",
			"%":   "SELECT * FROM accounts WHERE code LIKE '10%'",
			`\`:  `SELECT 'C:\temp' AS path`,
			"NOW": "SELECT now()",
		} {
			entries, err := store.Recent(ctx, "c1", search, 10)
			if err != nil {
				t.Fatalf("%s: Recent(%q) failed: %v", name, search, err)
			}
			if len(entries) != 1 || entries[0].SQL != want {
				t.Errorf("%s: Recent(%q) = %+v, want only %q", name, search, entries, want)
			}
		}
	}
}

func TestHistoryStore_TrimFailureIsLogged(t *testing.T) {
	conn, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New failed: %v", err)
	}
	defer conn.Close()

	var buf bytes.Buffer
	logger.InitWriter(&buf, logger.LevelWarn)
	t.Cleanup(func() { logger.Log = nil })

	mock.ExpectExec("INSERT INTO query_history").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("DELETE FROM query_history").WillReturnError(errors.New("disk I/O error"))

	store := NewHistoryStore(WrapConn(conn))
	if err := store.Add(context.Background(), history.Entry{ConnectionID: "c1", SQL: "SELECT 1"}); err != nil {
		t.Fatalf("Add should succeed when only the trim fails, got %v", err)
	}
	if !strings.Contains(buf.String(), "Failed to trim query history") {
		t.Errorf("expected trim failure to be logged, got %q", buf.String())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unmet expectations: %v", err)
	}
}
