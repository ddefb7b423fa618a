package cart

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// StorageKey is the fixed key the cart is persisted under.
const StorageKey = "sweetshop_cart"

// ErrNotFound is returned by a Store when nothing is saved under the key.
var ErrNotFound = errors.New("cart: key not found")

// Store is a small key/value persistence surface for client state.
type Store interface {
	Load(key string) ([]byte, error)
	Save(key string, data []byte) error
	Delete(key string) error
}

// Load reads the cart saved under StorageKey. A missing key yields an empty cart.
func Load(store Store) (*Cart, error) {
	raw, err := store.Load(StorageKey)
	if errors.Is(err, ErrNotFound) {
		return New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}
	var lines []Line
	if err := json.Unmarshal(raw, &lines); err != nil {
		return nil, fmt.Errorf("decode cart: %w", err)
	}
	return FromLines(lines), nil
}

// Save writes the cart as a JSON array under StorageKey. An empty cart deletes the key.
func Save(store Store, c *Cart) error {
	if c.IsEmpty() {
		if err := store.Delete(StorageKey); err != nil && !errors.Is(err, ErrNotFound) {
			return fmt.Errorf("delete cart: %w", err)
		}
		return nil
	}
	raw, err := json.Marshal(c.Lines())
	if err != nil {
		return fmt.Errorf("encode cart: %w", err)
	}
	if err := store.Save(StorageKey, raw); err != nil {
		return fmt.Errorf("save cart: %w", err)
	}
	return nil
}

// FileStore keeps one JSON document per key inside a directory.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

// NewFileStore creates dir when needed and returns a store rooted there.
func NewFileStore(dir string) (*FileStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("cart directory required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create cart directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) Load(key string) ([]byte, error) {
	path, err := s.path(key)
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	return raw, err
}

// Save replaces the document atomically through a temp file and rename.
func (s *FileStore) Save(key string, data []byte) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(s.dir, key+".*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func (s *FileStore) Delete(key string) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

func (s *FileStore) path(key string) (string, error) {
	if key == "" || strings.ContainsAny(key, `/\`) || key == "." || key == ".." {
		return "", fmt.Errorf("invalid storage key %q", key)
	}
	return filepath.Join(s.dir, key+".json"), nil
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: map[string][]byte{}}
}

func (s *MemoryStore) Load(key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, ok := s.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), raw...), nil
}

func (s *MemoryStore) Save(key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = append([]byte(nil), data...)
	return nil
}

func (s *MemoryStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[key]; !ok {
		return ErrNotFound
	}
	delete(s.data, key)
	return nil
}
