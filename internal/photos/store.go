// Package photos stores uploaded employee photos on disk and provides the
// HTTP client the directory service uses to reach them.
package photos

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"eddisonso.com/edd-directory/internal/apperr"
)

// Store keeps one file per object key under a single directory.
type Store struct {
	dir      string
	maxBytes int64
}

func NewStore(dir string, maxBytes int64) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create photos dir: %w", err)
	}
	return &Store{dir: dir, maxBytes: maxBytes}, nil
}

func (s *Store) Dir() string {
	return s.dir
}

// ObjectKey names a new object after the upload's extension, or "bin" when
// the filename has none.
func ObjectKey(filename string) string {
	ext := "bin"
	if i := strings.LastIndex(filename, "."); i >= 0 && i < len(filename)-1 {
		candidate := filename[i+1:]
		if isAlnum(candidate) {
			ext = candidate
		}
	}
	return uuid.NewString() + "." + ext
}

func isAlnum(s string) bool {
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}

// validKey rejects anything that could leave the photos directory.
func validKey(key string) bool {
	return key != "" && !strings.HasPrefix(key, ".") && filepath.Base(key) == key && !strings.ContainsAny(key, `/\`)
}

// Save writes r under a fresh key. The file only appears once fully written.
func (s *Store) Save(filename string, r io.Reader) (string, error) {
	if filename == "" {
		return "", fmt.Errorf("%w: no file selected", apperr.ErrInvalidInput)
	}
	key := ObjectKey(filename)

	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, io.LimitReader(r, s.maxBytes+1))
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", fmt.Errorf("write photo: %w", err)
	}
	if n > s.maxBytes {
		return "", fmt.Errorf("%w: photo exceeds %d bytes", apperr.ErrInvalidInput, s.maxBytes)
	}

	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, key)); err != nil {
		return "", fmt.Errorf("store photo: %w", err)
	}
	return key, nil
}

// Open returns the stored file; callers close it.
func (s *Store) Open(key string) (*os.File, error) {
	if !validKey(key) {
		return nil, fmt.Errorf("%s: %w", key, apperr.ErrPhotoMissing)
	}
	f, err := os.Open(filepath.Join(s.dir, key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", key, apperr.ErrPhotoMissing)
	}
	if err != nil {
		return nil, fmt.Errorf("open photo: %w", err)
	}
	return f, nil
}

func (s *Store) Delete(key string) error {
	if !validKey(key) {
		return fmt.Errorf("%s: %w", key, apperr.ErrPhotoMissing)
	}
	err := os.Remove(filepath.Join(s.dir, key))
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%s: %w", key, apperr.ErrPhotoMissing)
	}
	if err != nil {
		return fmt.Errorf("delete photo: %w", err)
	}
	return nil
}
