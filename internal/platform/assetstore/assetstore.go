// Package assetstore accepts uploaded imaging studies and hands back an
// opaque reference. The reference is the only thing the case core persists;
// where the bytes actually live is this package's concern alone.
package assetstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrMissingFileName = errors.New("file name is required")
	ErrEmptyFile       = errors.New("uploaded file is empty")
)

// MaxAssetSize is the maximum accepted upload size in bytes (500 MB;
// angiography studies are large).
const MaxAssetSize = 500 * 1024 * 1024

// Store persists an uploaded asset and returns an opaque reference to it.
type Store interface {
	Put(ctx context.Context, fileName string, r io.Reader) (ref string, err error)
}

// LocalStore keeps assets on the local filesystem under a base directory.
type LocalStore struct {
	dir string
}

func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create asset directory %s: %w", dir, err)
	}
	return &LocalStore{dir: dir}, nil
}

func (s *LocalStore) Put(ctx context.Context, fileName string, r io.Reader) (string, error) {
	fileName = sanitizeFileName(fileName)
	if fileName == "" {
		return "", ErrMissingFileName
	}

	ref := uuid.New().String() + "_" + fileName
	path := filepath.Join(s.dir, ref)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create asset file: %w", err)
	}
	defer f.Close()

	n, err := io.Copy(f, io.LimitReader(r, MaxAssetSize))
	if err != nil {
		os.Remove(path)
		return "", fmt.Errorf("write asset file: %w", err)
	}
	if n == 0 {
		os.Remove(path)
		return "", ErrEmptyFile
	}

	return ref, nil
}

// sanitizeFileName strips any path components from an uploaded file name.
func sanitizeFileName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" {
		return ""
	}
	return name
}
