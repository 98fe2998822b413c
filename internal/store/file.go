package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/Tyrowin/livechat/internal/chat"
)

// FileStore keeps the log as a JSON array in a single file. Writes go to a
// temporary file in the same directory which is then renamed over the
// target, so readers see either the old or the new content.
type FileStore struct {
	path string
}

// NewFileStore returns a store backed by path. The file does not need to
// exist yet.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the file the store writes to.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads and decodes the file.
func (s *FileStore) Load(_ context.Context) ([]chat.Entry, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return []chat.Entry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", chat.ErrStorageUnavailable, s.path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return []chat.Entry{}, nil
	}

	var entries []chat.Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %w", chat.ErrStorageUnavailable, s.path, err)
	}
	if entries == nil {
		entries = []chat.Entry{}
	}
	return entries, nil
}

// Persist replaces the file content with snapshot.
func (s *FileStore) Persist(ctx context.Context, snapshot []chat.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if snapshot == nil {
		snapshot = []chat.Entry{}
	}

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode: %w", chat.ErrStorageUnavailable, err)
	}

	if err := writeAtomic(s.path, data); err != nil {
		return fmt.Errorf("%w: write %s: %w", chat.ErrStorageUnavailable, s.path, err)
	}
	return nil
}

func writeAtomic(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
