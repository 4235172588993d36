package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrOutsideBase is returned for names that would leave the storage root.
var ErrOutsideBase = errors.New("path escapes storage directory")

const tempPrefix = ".partial-"

// LocalStorage keeps rendered exports on local disk. Files are written to a
// temporary name first and renamed into place, so readers never see a
// half-written export.
type LocalStorage struct {
	root string
}

// NewLocalStorage creates root if needed. An empty root means ./exports.
func NewLocalStorage(root string) (*LocalStorage, error) {
	if root == "" {
		root = "./exports"
	}
	root = filepath.Clean(root)
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create storage root %s: %w", root, err)
	}
	return &LocalStorage{root: root}, nil
}

// Save stores data under name and returns name.
func (s *LocalStorage) Save(name string, data []byte) (string, error) {
	target, err := s.abs(name)
	if err != nil {
		return "", err
	}
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("create directory for %s: %w", name, err)
	}

	tmp, err := os.CreateTemp(dir, tempPrefix+"*")
	if err != nil {
		return "", fmt.Errorf("stage %s: %w", name, err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("flush %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return "", fmt.Errorf("publish %s: %w", name, err)
	}
	committed = true
	return name, nil
}

// Open returns the stored file for reading. The caller closes it.
func (s *LocalStorage) Open(name string) (*os.File, error) {
	target, err := s.abs(name)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(target)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	return f, nil
}

// Delete removes name. Missing files are not an error.
func (s *LocalStorage) Delete(name string) error {
	target, err := s.abs(name)
	if err != nil {
		return err
	}
	if err := os.Remove(target); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete %s: %w", name, err)
	}
	return nil
}

// CleanupOlderThan removes files last modified more than ttl ago, including
// leftovers of interrupted writes, and returns their names relative to the
// root.
func (s *LocalStorage) CleanupOlderThan(ttl time.Duration) ([]string, error) {
	cutoff := time.Now().Add(-ttl)
	removed := []string{}
	walkErr := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		info, err := d.Info()
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		if err != nil {
			return err
		}
		if !info.ModTime().Before(cutoff) {
			return nil
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		if rel, err := filepath.Rel(s.root, path); err == nil {
			removed = append(removed, filepath.ToSlash(rel))
		}
		return nil
	})
	if walkErr != nil {
		return removed, fmt.Errorf("sweep %s: %w", s.root, walkErr)
	}
	return removed, nil
}

func (s *LocalStorage) abs(name string) (string, error) {
	if name == "" || filepath.IsAbs(name) || strings.HasPrefix(filepath.Base(name), tempPrefix) {
		return "", ErrOutsideBase
	}
	target := filepath.Join(s.root, filepath.FromSlash(name))
	rel, err := filepath.Rel(s.root, target)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", ErrOutsideBase
	}
	return target, nil
}
