// Package filestore keeps uploaded order documents on local disk under a
// single "orders" bucket. No versioning, no dedup.
package filestore

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const bucket = "orders"

var ErrBadName = errors.New("invalid file name")

type Store struct {
	root string
}

// New creates the bucket directory under root if it does not exist.
func New(root string) (*Store, error) {
	if err := os.MkdirAll(filepath.Join(root, bucket), 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &Store{root: root}, nil
}

// Dir returns the storage root, for serving files over HTTP.
func (s *Store) Dir() string {
	return s.root
}

// Save writes the reader's contents under the given name and returns the
// relative path the record should keep.
func (s *Store) Save(name string, r io.Reader) (string, error) {
	if err := checkName(name); err != nil {
		return "", err
	}
	rel := filepath.Join(bucket, name)
	f, err := os.OpenFile(filepath.Join(s.root, rel), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create file: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(filepath.Join(s.root, rel))
		return "", fmt.Errorf("write file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close file: %w", err)
	}
	return filepath.ToSlash(rel), nil
}

// Delete removes a stored file by its relative path.
func (s *Store) Delete(rel string) error {
	if err := checkName(filepath.Base(rel)); err != nil {
		return err
	}
	return os.Remove(filepath.Join(s.root, filepath.FromSlash(rel)))
}

// Exists reports whether a stored file is still present.
func (s *Store) Exists(rel string) bool {
	_, err := os.Stat(filepath.Join(s.root, filepath.FromSlash(rel)))
	return err == nil
}

func checkName(name string) error {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || name != filepath.Base(name) {
		return ErrBadName
	}
	return nil
}
