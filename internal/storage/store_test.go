package storage

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryStore_GetDefault(t *testing.T) {
	s := NewMemoryStore()
	got, err := s.Get(context.Background(), "missing", []byte("[]"))
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(got) != "[]" {
		t.Errorf("Get() = %q, want %q", got, "[]")
	}
}

func TestMemoryStore_SetCopies(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	buf := []byte("abc")
	if err := s.Set(ctx, "k", buf); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	buf[0] = 'x'

	got, err := s.Get(ctx, "k", nil)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(got) != "abc" {
		t.Errorf("Get() = %q, want %q", got, "abc")
	}
}

func TestPersistenceError(t *testing.T) {
	inner := errors.New("disk full")
	err := &PersistenceError{Op: "set", Key: "connections", Err: inner}

	if !errors.Is(err, inner) {
		t.Error("PersistenceError should unwrap to inner error")
	}
	if got := err.Error(); got != "set connections: disk full" {
		t.Errorf("Error() = %q", got)
	}
}
