package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"docbatch/internal/config"
	"docbatch/internal/domain"
	"docbatch/internal/domain/ports/adapter"
)

var _ adapter.ObjectStore = (*FSStore)(nil)

// FSStore keeps objects as files under a root directory. Used in dev and
// single-node deployments.
type FSStore struct {
	root string
}

func NewFSStore(root string) (*FSStore, error) {
	if root == "" {
		return nil, fmt.Errorf("storage dir not set")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &FSStore{root: abs}, nil
}

// path maps a key inside root and refuses keys that escape it.
func (s *FSStore) path(key string) (string, error) {
	clean := filepath.Clean("/" + key)
	if key == "" || clean == "/" {
		return "", domain.ErrInvalidArgument
	}
	full := filepath.Join(s.root, clean)
	if !strings.HasPrefix(full, s.root+string(filepath.Separator)) {
		return "", domain.ErrInvalidArgument
	}
	return full, nil
}

func (s *FSStore) Put(ctx context.Context, key string, data io.Reader, size int64, contentType string) error {
	full, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(full), ".put-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write object: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), full)
}

func (s *FSStore) Get(ctx context.Context, key string) ([]byte, error) {
	full, err := s.path(key)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(full)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, domain.ErrNotFound
	}
	return b, err
}

func (s *FSStore) Open(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	full, err := s.path(key)
	if err != nil {
		return nil, 0, err
	}
	f, err := os.Open(full)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, 0, domain.ErrNotFound
	}
	if err != nil {
		return nil, 0, err
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, 0, err
	}
	return f, st.Size(), nil
}

func (s *FSStore) Delete(ctx context.Context, key string) error {
	full, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// New picks the backend named in config.
func New(ctx context.Context, cfg *config.StorageConfig) (adapter.ObjectStore, error) {
	switch cfg.Backend {
	case "s3":
		st, err := NewS3Store(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return st, nil
	case "fs", "":
		return NewFSStore(cfg.Dir)
	}
	return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
}
