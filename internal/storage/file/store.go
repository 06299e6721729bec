// Package file provides a storage.Store kept in a single YAML document.
package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/willibrandon/dbpanel/internal/storage"
	"gopkg.in/yaml.v3"
)

// Store maps keys to string values in a YAML file. Every Set rewrites the
// whole document through a temporary file and a rename.
type Store struct {
	mu   sync.Mutex
	path string
}

var _ storage.Store = (*Store)(nil)

// New creates a Store at path. The file is created on the first Set.
func New(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) Get(_ context.Context, key string, def []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return nil, &storage.PersistenceError{Op: "get", Key: key, Err: err}
	}
	v, ok := doc[key]
	if !ok {
		return def, nil
	}
	return []byte(v), nil
}

func (s *Store) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.read()
	if err != nil {
		return &storage.PersistenceError{Op: "set", Key: key, Err: err}
	}
	doc[key] = string(value)
	if err := s.write(doc); err != nil {
		return &storage.PersistenceError{Op: "set", Key: key, Err: err}
	}
	return nil
}

func (s *Store) read() (map[string]string, error) {
	doc := make(map[string]string)
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return doc, nil
	}
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", s.path, err)
	}
	if doc == nil {
		doc = make(map[string]string)
	}
	return doc, nil
}

func (s *Store) write(doc map[string]string) error {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".settings-*.yaml")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, s.path)
}
