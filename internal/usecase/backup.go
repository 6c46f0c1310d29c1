package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/semmidev/sitekeep/internal/domain"
)

type Logger interface {
	Debugf(template string, args ...interface{})
	Infof(template string, args ...interface{})
	Warnf(template string, args ...interface{})
	Errorf(template string, args ...interface{})
}

// Backup runs a job synchronously to a terminal state. The scheduler and the
// CLI use it; interactive clients drive Jobs tick by tick instead.
type Backup struct {
	jobs   *Jobs
	logger Logger
}

var _ domain.BackupExecutor = (*Backup)(nil)

func NewBackup(jobs *Jobs, logger Logger) *Backup {
	return &Backup{jobs: jobs, logger: logger}
}

func (uc *Backup) Run(ctx context.Context, settings domain.Settings) (*domain.Job, error) {
	start := time.Now()

	job, err := uc.jobs.Start(ctx, settings)
	if err != nil {
		return nil, err
	}

	for job.Status == domain.StatusRunning {
		if err := ctx.Err(); err != nil {
			if canceled, cerr := uc.jobs.Cancel(context.WithoutCancel(ctx), job.ID); cerr == nil {
				job = canceled
			}
			return job, err
		}

		next, err := uc.jobs.Tick(ctx, job.ID)
		if err != nil {
			if next != nil {
				job = next
			}
			return job, err
		}
		job = next
	}

	if job.Status == domain.StatusError {
		return job, fmt.Errorf("backup failed: %s", job.Error)
	}

	uc.logger.Infof("[%s] Backup %s in %s", job.ID, job.Status, time.Since(start).Round(time.Second))

	// Nobody polls a synchronous run, so its record only matters on failure.
	if err := uc.jobs.Forget(ctx, job.ID); err != nil {
		uc.logger.Warnf("[%s] Failed to drop job record: %v", job.ID, err)
	}
	return job, nil
}
