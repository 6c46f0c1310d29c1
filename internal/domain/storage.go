package domain

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// ValidateName accepts only a single path element, so a set name or a file
// named in a manifest cannot reach outside its directory.
func ValidateName(name string) error {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || filepath.Base(name) != name {
		return fmt.Errorf("invalid name %q", name)
	}
	return nil
}

// KeyValueStore persists job records with an explicit TTL.
// Get returns ErrNotFound for missing or expired keys.
type KeyValueStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Locker is a short-lived exclusive lock. Acquire returns false without error
// when another holder owns the key.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// SetStorage lists and removes backup-set directories under a base dir.
type SetStorage interface {
	CheckWritable() error
	List(ctx context.Context) ([]string, error)
	GetOldSets(ctx context.Context, cutoff time.Time) ([]string, error)
	Delete(ctx context.Context, name string) error
	GetPath(name string) string
}

// Archive is an append-capable file archive that is valid after every Close.
// AddFile wraps ErrUnreadable when the source cannot be opened; the archive is
// left untouched in that case.
type Archive interface {
	AddFile(absPath, name string) error
	Count() int
	Close() error
	Abort() error
}

// ArchiveOpener opens path for appending, creating it when absent.
type ArchiveOpener func(path string) (Archive, error)

// SetStorageFactory binds a SetStorage to a destination directory. Jobs carry
// their own frozen destination, so storage is resolved per call.
type SetStorageFactory func(baseDir string) SetStorage
