package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/ashureev/betterme/internal/domain"
)

var _ Lister = (*FileStateStore)(nil)

// FileStateStore keeps every user's bucket in one JSON document.
// Writes replace the document through a temp file and rename.
type FileStateStore struct {
	path   string
	logger *slog.Logger
	mu     sync.Mutex
}

// NewFileStateStore creates a store backed by path. The file is created on first save.
func NewFileStateStore(path string, logger *slog.Logger) (*FileStateStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}
	return &FileStateStore{path: path, logger: logger}, nil
}

// Load returns the bucket for userID. A missing or corrupt document or bucket
// yields a fresh state.
func (s *FileStateStore) Load(_ context.Context, userID string) (*domain.UserState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.readDocument()
	if err != nil {
		return nil, err
	}
	raw, ok := doc[userID]
	if !ok {
		return domain.NewUserState(), nil
	}
	state, err := domain.DecodeUserState(raw)
	if err != nil {
		s.logger.Warn("Corrupt state bucket, starting fresh", "user_id", userID, "error", err)
		return domain.NewUserState(), nil
	}
	return state, nil
}

// Save rewrites the document with the new bucket for userID.
func (s *FileStateStore) Save(_ context.Context, userID string, state *domain.UserState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode user state: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.readDocument()
	if err != nil {
		return err
	}
	doc[userID] = raw

	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state document: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, out, 0o600); err != nil {
		return fmt.Errorf("write state temp file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}

// UserIDs lists the users present in the document, sorted.
func (s *FileStateStore) UserIDs(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.readDocument()
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(doc))
	for id := range doc {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Close is a no-op for the file store.
func (s *FileStateStore) Close() error {
	return nil
}

func (s *FileStateStore) readDocument() (map[string]json.RawMessage, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return make(map[string]json.RawMessage), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read state file: %w", err)
	}

	doc := make(map[string]json.RawMessage)
	if err := json.Unmarshal(data, &doc); err != nil {
		s.logger.Warn("Corrupt state document, treating as empty", "path", s.path, "error", err)
		return make(map[string]json.RawMessage), nil
	}
	return doc, nil
}
