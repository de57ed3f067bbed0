package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	json "github.com/json-iterator/go"
	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/api/schemas"
)

// FileStore keeps the snapshot in a single JSON document. Writes go to a
// temporary file that is renamed over the old one, so readers never see a
// partial document.
type FileStore struct {
	mu   sync.Mutex
	path string
	log  *zap.Logger
}

var _ Store = (*FileStore)(nil)

// NewFileStore returns a store writing to path. A leading "~" is expanded.
func NewFileStore(path string, logger *zap.Logger) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("store path cannot be empty")
	}
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("failed to expand store path %q: %w", path, err)
	}
	return &FileStore{path: expanded, log: logger.Named("store")}, nil
}

// Path is the resolved location of the state document.
func (s *FileStore) Path() string { return s.path }

// Load reads the document. A missing file is an empty snapshot.
func (s *FileStore) Load(ctx context.Context) (schemas.RunSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var snap schemas.RunSnapshot
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return snap, nil
	}
	if err != nil {
		return snap, fmt.Errorf("failed to read state file: %w", err)
	}
	var doc struct {
		Program   json.RawMessage `json:"program"`
		IsRunning bool            `json:"isRunning"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return snap, fmt.Errorf("state file %s is corrupt: %w", s.path, err)
	}
	snap.IsRunning = doc.IsRunning
	if len(doc.Program) > 0 && string(doc.Program) != "null" {
		program, err := schemas.Deserialize(doc.Program)
		if err != nil {
			return schemas.RunSnapshot{}, fmt.Errorf("state file %s is corrupt: %w", s.path, err)
		}
		snap.Program = program
	}
	return snap, nil
}

// Save writes the document atomically.
func (s *FileStore) Save(ctx context.Context, snap schemas.RunSnapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if snap.Program == nil {
		snap.Program = schemas.Program{}
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode run state: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".state-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temporary state file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		// A no-op once the rename succeeded.
		if removeErr := os.Remove(tmpName); removeErr != nil && !errors.Is(removeErr, fs.ErrNotExist) {
			s.log.Warn("Failed to remove temporary state file", zap.String("path", tmpName), zap.Error(removeErr))
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write state file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close state file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("failed to replace state file: %w", err)
	}
	return nil
}

// Close is a no-op; FileStore holds no open handles between calls.
func (s *FileStore) Close() error { return nil }
