package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/semmidev/sitekeep/internal/domain"
)

// LocalStorage manages backup-set directories that are immediate children of
// basePath. It never creates basePath; a missing destination is reported by
// CheckWritable.
type LocalStorage struct {
	basePath string
}

var _ domain.SetStorage = (*LocalStorage)(nil)

func NewLocal(basePath string) *LocalStorage {
	return &LocalStorage{basePath: basePath}
}

// Factory adapts NewLocal to domain.SetStorageFactory.
func Factory(baseDir string) domain.SetStorage {
	return NewLocal(baseDir)
}

func (l *LocalStorage) CheckWritable() error {
	return CheckWritable(l.basePath)
}

// CheckWritable verifies dir exists, is a directory and accepts new files.
func CheckWritable(dir string) error {
	if dir == "" {
		return errors.New("path is empty")
	}
	info, err := os.Stat(dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}
	f, err := os.CreateTemp(dir, ".sitekeep-write-*")
	if err != nil {
		return fmt.Errorf("%s is not writable: %w", dir, err)
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}

// List returns the names of all set directories.
func (l *LocalStorage) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(l.basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	var sets []string
	for _, entry := range entries {
		if entry.IsDir() {
			sets = append(sets, entry.Name())
		}
	}

	return sets, nil
}

// GetOldSets returns set directories whose modification time is before
// cutoff. Directories that hold no dump, archive or manifest were not written
// by a backup job and are never returned.
func (l *LocalStorage) GetOldSets(ctx context.Context, cutoff time.Time) ([]string, error) {
	entries, err := os.ReadDir(l.basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	var old []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			// removed between ReadDir and Info
			continue
		}
		if info.ModTime().Before(cutoff) && isBackupSet(l.GetPath(entry.Name())) {
			old = append(old, entry.Name())
		}
	}

	return old, nil
}

func isBackupSet(dir string) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	for _, e := range entries {
		name := e.Name()
		if e.Type().IsRegular() && (name == domain.ManifestFilename ||
			strings.HasSuffix(name, ".sql.gz") || strings.HasSuffix(name, ".zip")) {
			return true
		}
	}
	return false
}

// Delete removes a set directory children first. Failures on individual
// entries do not stop the removal of their siblings; all of them are returned
// joined.
func (l *LocalStorage) Delete(ctx context.Context, name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	path := l.GetPath(name)
	if _, err := os.Lstat(path); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", domain.ErrNotFound, name)
		}
		return fmt.Errorf("failed to stat %s: %w", name, err)
	}
	if err := removeTree(path); err != nil {
		return fmt.Errorf("failed to delete set %s: %w", name, err)
	}
	return nil
}

func (l *LocalStorage) GetPath(name string) string {
	return filepath.Join(l.basePath, name)
}

// ValidateName accepts only a single path element.
func ValidateName(name string) error {
	return domain.ValidateName(name)
}

func removeTree(path string) error {
	info, err := os.Lstat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var errs []error
	if info.IsDir() {
		entries, err := os.ReadDir(path)
		if err != nil {
			errs = append(errs, err)
		}
		for _, entry := range entries {
			if err := removeTree(filepath.Join(path, entry.Name())); err != nil {
				errs = append(errs, err)
			}
		}
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
