package authstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

type fileDoc struct {
	Allowed     []int64   `json:"allowed"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// FileStore keeps the allowlist in a JSON file. Writes go through a temp
// file and rename so a crash can never leave a half-written list.
type FileStore struct {
	path string
	mu   sync.Mutex
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

var _ Store = (*FileStore)(nil)

func (f *FileStore) IsAllowed(ctx context.Context, userID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids, err := f.load()
	if err != nil {
		return false, err
	}
	_, ok := ids[userID]
	return ok, nil
}

func (f *FileStore) Add(ctx context.Context, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids, err := f.load()
	if err != nil {
		return err
	}
	if _, ok := ids[userID]; ok {
		return nil
	}
	ids[userID] = struct{}{}
	return f.save(ids)
}

func (f *FileStore) Remove(ctx context.Context, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids, err := f.load()
	if err != nil {
		return err
	}
	if _, ok := ids[userID]; !ok {
		return nil
	}
	delete(ids, userID)
	return f.save(ids)
}

func (f *FileStore) List(ctx context.Context) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids, err := f.load()
	if err != nil {
		return nil, err
	}
	out := make([]int64, 0, len(ids))
	for id := range ids {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (f *FileStore) load() (map[int64]struct{}, error) {
	b, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[int64]struct{}{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read users file: %w", err)
	}
	var doc fileDoc
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("parse users file: %w", err)
	}
	ids := make(map[int64]struct{}, len(doc.Allowed))
	for _, id := range doc.Allowed {
		ids[id] = struct{}{}
	}
	return ids, nil
}

func (f *FileStore) save(ids map[int64]struct{}) error {
	doc := fileDoc{Allowed: make([]int64, 0, len(ids)), LastUpdated: time.Now().UTC()}
	for id := range ids {
		doc.Allowed = append(doc.Allowed, id)
	}
	sort.Slice(doc.Allowed, func(i, j int) bool { return doc.Allowed[i] < doc.Allowed[j] })

	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create users dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".users-*")
	if err != nil {
		return fmt.Errorf("write users file: %w", err)
	}
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write users file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write users file: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace users file: %w", err)
	}
	return nil
}
