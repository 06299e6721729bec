// Package history records the SQL statements run through query.execute,
// per connection, with shell-style deduplication: re-running a statement
// that differs only in literal values moves the existing entry to the top.
package history

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	pg_query "github.com/pganalyze/pg_query_go/v6"
)

// DefaultLimit is used when a caller asks for zero or fewer entries.
const DefaultLimit = 100

// MaxEntries bounds the history kept per connection.
const MaxEntries = 1000

// Entry is one executed statement.
type Entry struct {
	ID           int64     `json:"id"`
	ConnectionID string    `json:"connection_id"`
	SQL          string    `json:"sql"`
	ExecutedAt   time.Time `json:"executed_at"`
	DurationMs   int64     `json:"duration_ms"`
	RowCount     int64     `json:"row_count"`
	Error        string    `json:"error,omitempty"`
}

// Store persists history entries.
type Store interface {
	// Add records e, replacing an entry of the same connection with the
	// same fingerprint.
	Add(ctx context.Context, e Entry) error
	// Recent returns the newest entries of a connection whose SQL contains
	// search (case-insensitive; empty matches all).
	Recent(ctx context.Context, connectionID, search string, limit int) ([]Entry, error)
	// Clear drops every entry of a connection.
	Clear(ctx context.Context, connectionID string) error
}

// Fingerprint identifies statements with the same structure regardless of
// literal values. Unparseable SQL is fingerprinted verbatim.
func Fingerprint(sqlText string) int64 {
	normalized, err := pg_query.Normalize(sqlText)
	if err != nil {
		normalized = sqlText
	}
	return int64(pg_query.HashXXH3_64([]byte(normalized), 0))
}

// MemoryStore keeps history in process memory.
type MemoryStore struct {
	mu      sync.Mutex
	nextID  int64
	entries map[string][]memoryEntry
}

type memoryEntry struct {
	Entry
	fingerprint int64
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string][]memoryEntry)}
}

func (s *MemoryStore) Add(_ context.Context, e Entry) error {
	e.SQL = strings.TrimSpace(e.SQL)
	if e.SQL == "" {
		return nil
	}
	fp := Fingerprint(e.SQL)

	s.mu.Lock()
	defer s.mu.Unlock()

	list := slices.DeleteFunc(s.entries[e.ConnectionID], func(m memoryEntry) bool {
		if m.fingerprint == fp {
			e.ID = m.ID
			return true
		}
		return false
	})
	if e.ID == 0 {
		s.nextID++
		e.ID = s.nextID
	}
	list = append(list, memoryEntry{Entry: e, fingerprint: fp})
	if len(list) > MaxEntries {
		list = list[len(list)-MaxEntries:]
	}
	s.entries[e.ConnectionID] = list
	return nil
}

func (s *MemoryStore) Recent(_ context.Context, connectionID, search string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	search = strings.ToLower(search)

	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.entries[connectionID]
	out := make([]Entry, 0, min(limit, len(list)))
	for i := len(list) - 1; i >= 0 && len(out) < limit; i-- {
		if search != "" && !strings.Contains(strings.ToLower(list[i].SQL), search) {
			continue
		}
		out = append(out, list[i].Entry)
	}
	return out, nil
}

func (s *MemoryStore) Clear(_ context.Context, connectionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, connectionID)
	return nil
}
