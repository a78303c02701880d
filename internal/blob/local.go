package blob

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/yourorg/apiask/pkg/types"
)

// LocalStore keeps objects as files under a directory. It serves
// development and tests; PresignPut returns the file URL itself since
// there is nothing to sign.
type LocalStore struct {
	Dir string
}

func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &LocalStore{Dir: dir}, nil
}

func (l *LocalStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	path, err := l.keyPath(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return l.Location(key), nil
}

func (l *LocalStore) Get(ctx context.Context, key string) ([]byte, error) {
	path, err := l.keyPath(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: object %s", types.ErrNotFound, key)
	}
	return data, err
}

func (l *LocalStore) PresignPut(ctx context.Context, key string) (string, error) {
	path, err := l.keyPath(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	return l.Location(key), nil
}

func (l *LocalStore) Location(key string) string {
	return "file://" + filepath.Join(l.Dir, filepath.FromSlash(key))
}

// keyPath confines keys to the store directory.
func (l *LocalStore) keyPath(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return filepath.Join(l.Dir, clean), nil
}
