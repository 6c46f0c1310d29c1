package kv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/semmidev/sitekeep/internal/domain"
)

// OpenBadger opens the embedded store at path. An empty path keeps
// everything in memory.
func OpenBadger(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path)
	if path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return db, nil
}

// RunGC rewrites value log files until badger finds nothing left to reclaim.
// In-memory stores have no value log and return nil.
func RunGC(db *badger.DB, discardRatio float64) error {
	for {
		err := db.RunValueLogGC(discardRatio)
		switch {
		case err == nil:
			continue
		case errors.Is(err, badger.ErrNoRewrite), errors.Is(err, badger.ErrGCInMemoryMode):
			return nil
		default:
			return fmt.Errorf("value log gc: %w", err)
		}
	}
}

// StartGC runs RunGC every interval until ctx is canceled. The returned
// channel is closed once the loop has exited.
func StartGC(ctx context.Context, db *badger.DB, interval time.Duration, onErr func(error)) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := RunGC(db, 0.5); err != nil && onErr != nil {
					onErr(err)
				}
			}
		}
	}()
	return done
}

// BadgerStore implements domain.KeyValueStore. Expired entries are invisible
// to reads; their space comes back through StartGC.
type BadgerStore struct {
	db *badger.DB
}

var _ domain.KeyValueStore = (*BadgerStore)(nil)

func NewBadgerStore(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

func (s *BadgerStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return domain.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get %s: %w", key, err)
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return value, nil
}

func (s *BadgerStore) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(key), value)
		if ttl > 0 {
			e = e.WithTTL(ttl)
		}
		if err := txn.SetEntry(e); err != nil {
			return fmt.Errorf("set %s: %w", key, err)
		}
		return nil
	})
}

func (s *BadgerStore) Delete(ctx context.Context, key string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete([]byte(key)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("delete %s: %w", key, err)
		}
		return nil
	})
}

// BadgerLocker is a single-process lock on top of badger transactions. A
// concurrent acquirer loses with badger.ErrConflict, which is reported as
// "held".
type BadgerLocker struct {
	db *badger.DB
}

var _ domain.Locker = (*BadgerLocker)(nil)

func NewBadgerLocker(db *badger.DB) *BadgerLocker {
	return &BadgerLocker{db: db}
}

func (l *BadgerLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	acquired := false
	err := l.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(key))
		if err == nil {
			return nil
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		value := []byte(time.Now().UTC().Format(time.RFC3339))
		if err := txn.SetEntry(badger.NewEntry([]byte(key), value).WithTTL(ttl)); err != nil {
			return err
		}
		acquired = true
		return nil
	})
	if errors.Is(err, badger.ErrConflict) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("acquire %s: %w", key, err)
	}
	return acquired, nil
}

func (l *BadgerLocker) Release(ctx context.Context, key string) error {
	return l.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete([]byte(key)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("release %s: %w", key, err)
		}
		return nil
	})
}
