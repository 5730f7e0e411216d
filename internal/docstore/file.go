package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileStore is a synchronous, file-backed implementation of Store: one
// JSON file per collection under a directory. It is the offline mirror
// of the remote store: it survives restarts, is cheap to read, and
// has no push capability.
type FileStore struct {
	mu  sync.Mutex
	dir string
}

// NewFileStore creates the directory if needed and returns the store.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create mirror dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(collection string) string {
	return filepath.Join(s.dir, collection+".json")
}

// load reads a whole collection. Missing file means empty collection;
// a corrupt file is treated the same rather than crashing, per the
// degrade-to-default error policy.
func (s *FileStore) load(collection string) map[string]Fields {
	raw, err := os.ReadFile(s.path(collection))
	if err != nil {
		return map[string]Fields{}
	}
	var col map[string]Fields
	if err := json.Unmarshal(raw, &col); err != nil || col == nil {
		return map[string]Fields{}
	}
	return col
}

// save writes the collection atomically (tmp file + rename).
func (s *FileStore) save(collection string, col map[string]Fields) error {
	raw, err := json.Marshal(col)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", collection, err)
	}
	tmp := s.path(collection) + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", collection, err)
	}
	if err := os.Rename(tmp, s.path(collection)); err != nil {
		return fmt.Errorf("rename %s: %w", collection, err)
	}
	return nil
}

func (s *FileStore) Get(_ context.Context, collection, id string) (Fields, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.load(collection)[id]
	if !ok {
		return nil, ErrNotFound
	}
	return doc.Clone(), nil
}

func (s *FileStore) GetAll(_ context.Context, collection string) (map[string]Fields, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	col := s.load(collection)
	out := make(map[string]Fields, len(col))
	for id, doc := range col {
		out[id] = doc.Clone()
	}
	return out, nil
}

func (s *FileStore) Set(_ context.Context, collection, id string, doc Fields) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	col := s.load(collection)
	col[id] = doc.Clone()
	return s.save(collection, col)
}

func (s *FileStore) SetMerge(_ context.Context, collection, id string, fields Fields) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	col := s.load(collection)
	doc, ok := col[id]
	if !ok {
		doc = Fields{}
	}
	for k, v := range fields {
		doc[k] = append(json.RawMessage(nil), v...)
	}
	col[id] = doc
	return s.save(collection, col)
}

func (s *FileStore) Delete(_ context.Context, collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	col := s.load(collection)
	if _, ok := col[id]; !ok {
		return nil
	}
	delete(col, id)
	return s.save(collection, col)
}
