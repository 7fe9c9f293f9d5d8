package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
)

// FileStore provides JSON file-based token storage
type FileStore struct {
	dataDir string
	mu      sync.RWMutex
	tokens  map[string]string
}

// NewFileStore creates a new FileStore instance
func NewFileStore(dataDir string) (*FileStore, error) {
	// Ensure data directory exists
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, err
	}

	s := &FileStore{
		dataDir: dataDir,
		tokens:  make(map[string]string),
	}

	// Load existing data
	if err := s.load(); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *FileStore) tokensFile() string {
	return filepath.Join(s.dataDir, "tokens.json")
}

func (s *FileStore) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.tokensFile())
	if err != nil {
		if os.IsNotExist(err) {
			return nil // No data yet
		}
		return err
	}

	if err := json.Unmarshal(data, &s.tokens); err != nil {
		return err
	}
	if s.tokens == nil {
		s.tokens = make(map[string]string)
	}
	return nil
}

// save replaces tokens.json atomically
func (s *FileStore) save() error {
	data, err := json.MarshalIndent(s.tokens, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.tokensFile() + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmp, s.tokensFile())
}

// Get returns the token stored for clientID
func (s *FileStore) Get(_ context.Context, clientID string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	token, ok := s.tokens[clientID]
	return token, ok, nil
}

// Set stores token for clientID
func (s *FileStore) Set(_ context.Context, clientID, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tokens[clientID] = token
	return s.save()
}

// Delete removes the token of clientID
func (s *FileStore) Delete(_ context.Context, clientID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tokens[clientID]; !ok {
		return nil
	}
	delete(s.tokens, clientID)
	return s.save()
}

// Close is a no-op, every mutation is already on disk
func (s *FileStore) Close() error {
	return nil
}
