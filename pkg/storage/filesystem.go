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

	"github.com/cyclopcam/logs"
	"github.com/leafscan/leafscan/pkg/iox"
)

// StorageFS keeps objects as files under Root, so that an archive can live on a mounted volume
type StorageFS struct {
	Root string
	log  logs.Log
}

func NewStorageFS(log logs.Log, root string) (*StorageFS, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(absRoot, 0755); err != nil {
		return nil, fmt.Errorf("Failed to create archive root %v: %w", absRoot, err)
	}
	return &StorageFS{
		Root: absRoot,
		log:  log,
	}, nil
}

// path maps an object name onto the filesystem, refusing names that would escape Root
func (s *StorageFS) path(name string) (string, error) {
	if name == "" || strings.Contains(name, "..") || filepath.IsAbs(name) {
		return "", fmt.Errorf("Invalid object name '%v'", name)
	}
	return filepath.Join(s.Root, filepath.FromSlash(name)), nil
}

func (s *StorageFS) Put(ctx context.Context, name string, content io.Reader) error {
	fullPath, err := s.path(name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return err
	}
	n, err := iox.WriteStreamToFile(fullPath, content)
	if err == nil {
		s.log.Debugf("Stored %v (%v bytes)", name, n)
	}
	return err
}

func (s *StorageFS) Delete(ctx context.Context, name string) error {
	fullPath, err := s.path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(fullPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (s *StorageFS) URL(name string) (string, error) {
	return "", ErrNoPublicUrl
}
