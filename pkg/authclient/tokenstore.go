package authclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// DefaultTokenKey is the slot name the access token is persisted under.
const DefaultTokenKey = "training.access_token"

// TokenStore persists the access token between runs. Load returns "" when
// nothing is stored.
type TokenStore interface {
	Load() (string, error)
	Save(token string) error
	Clear() error
}

// MemoryTokenStore keeps the token for the lifetime of the process.
type MemoryTokenStore struct {
	mu    sync.Mutex
	token string
}

// NewMemoryTokenStore creates an empty in-memory store.
func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{}
}

func (s *MemoryTokenStore) Load() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token, nil
}

func (s *MemoryTokenStore) Save(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	return nil
}

func (s *MemoryTokenStore) Clear() error {
	return s.Save("")
}

// FileTokenStore keeps tokens in a small JSON document readable only by the
// owner. Several keys may share one file.
type FileTokenStore struct {
	mu   sync.Mutex
	path string
	key  string
}

// NewFileTokenStore stores the token under key in the file at path. An empty
// key selects DefaultTokenKey.
func NewFileTokenStore(path, key string) *FileTokenStore {
	if key == "" {
		key = DefaultTokenKey
	}
	return &FileTokenStore{path: path, key: key}
}

func (s *FileTokenStore) Load() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	slots, err := s.read()
	if err != nil {
		return "", err
	}
	return slots[s.key], nil
}

func (s *FileTokenStore) Save(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	slots, err := s.read()
	if err != nil {
		return err
	}
	if token == "" {
		delete(slots, s.key)
	} else {
		slots[s.key] = token
	}
	return s.write(slots)
}

func (s *FileTokenStore) Clear() error {
	return s.Save("")
}

func (s *FileTokenStore) read() (map[string]string, error) {
	slots := make(map[string]string)
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return slots, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read token file: %w", err)
	}
	if len(data) == 0 {
		return slots, nil
	}
	if err := json.Unmarshal(data, &slots); err != nil {
		return nil, fmt.Errorf("decode token file: %w", err)
	}
	return slots, nil
}

// write replaces the file atomically so a crash never leaves half a document.
func (s *FileTokenStore) write(slots map[string]string) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create token dir: %w", err)
	}
	data, err := json.Marshal(slots)
	if err != nil {
		return fmt.Errorf("encode token file: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".token-*")
	if err != nil {
		return fmt.Errorf("create temp token file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write token file: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod token file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close token file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace token file: %w", err)
	}
	return nil
}
