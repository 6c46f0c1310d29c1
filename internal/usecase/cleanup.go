package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/semmidev/sitekeep/internal/domain"
	"github.com/semmidev/sitekeep/internal/infrastructure/metrics"
)

// Cleanup is the retention sweeper: it removes backup sets under a
// destination whose directory mtime is older than retainDays.
type Cleanup struct {
	storage domain.SetStorageFactory
	metrics *metrics.Metrics
	logger  Logger
	now     func() time.Time
}

func NewCleanup(storage domain.SetStorageFactory, m *metrics.Metrics, logger Logger) *Cleanup {
	return &Cleanup{
		storage: storage,
		metrics: m,
		logger:  logger,
		now:     time.Now,
	}
}

// Sweep deletes every expired set and returns the names it removed. A failed
// deletion does not stop the sweep; all failures are returned joined.
func (uc *Cleanup) Sweep(ctx context.Context, baseDir string, retainDays int) ([]string, error) {
	if retainDays <= 0 {
		return nil, nil
	}

	cutoff := uc.now().Add(-time.Duration(retainDays) * 24 * time.Hour)
	store := uc.storage(baseDir)

	sets, err := store.GetOldSets(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list old sets: %w", err)
	}

	var (
		deleted []string
		errs    []error
	)
	for _, name := range sets {
		uc.logger.Infof("Deleting expired backup set: %s", name)

		if err := store.Delete(ctx, name); err != nil {
			uc.logger.Errorf("Failed to delete %s: %v", name, err)
			errs = append(errs, err)
			continue
		}
		deleted = append(deleted, name)
		uc.metrics.RetentionDeleted.Inc()
	}

	if len(deleted) > 0 {
		uc.logger.Infof("Deleted %d expired backup set(s), retention: %d days", len(deleted), retainDays)
	}
	return deleted, errors.Join(errs...)
}
