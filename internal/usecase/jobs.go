package usecase

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/semmidev/sitekeep/internal/domain"
	"github.com/semmidev/sitekeep/internal/infrastructure/metrics"
)

const (
	DefaultBatchSize = 300

	progressDumping = 5
	progressDBDone  = 20
	progressMax     = 99
)

type JobsConfig struct {
	BatchSize int
	Location  *time.Location
}

// Jobs drives background backups one bounded tick at a time. The job record
// is read, modified and written back whole on every operation; callers must
// not run two operations on the same job concurrently.
type Jobs struct {
	repo        *JobRepository
	dumper      domain.Dumper
	openArchive domain.ArchiveOpener
	storage     domain.SetStorageFactory
	cleanup     *Cleanup
	notifier    domain.Notifier
	metrics     *metrics.Metrics
	logger      Logger
	batchSize   int
	loc         *time.Location
	now         func() time.Time
	newID       func() string
}

func NewJobs(
	repo *JobRepository,
	dumper domain.Dumper,
	openArchive domain.ArchiveOpener,
	storage domain.SetStorageFactory,
	cleanup *Cleanup,
	notifier domain.Notifier,
	m *metrics.Metrics,
	logger Logger,
	cfg JobsConfig,
) *Jobs {
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = DefaultBatchSize
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}
	return &Jobs{
		repo:        repo,
		dumper:      dumper,
		openArchive: openArchive,
		storage:     storage,
		cleanup:     cleanup,
		notifier:    notifier,
		metrics:     m,
		logger:      logger,
		batchSize:   batch,
		loc:         loc,
		now:         time.Now,
		newID:       uuid.NewString,
	}
}

// Start validates the destination, dumps the database, snapshots the file
// list and creates an empty archive. Only a *domain.ConfigError means no job
// was created; a failure after that is recorded on the returned job.
func (uc *Jobs) Start(ctx context.Context, settings domain.Settings) (*domain.Job, error) {
	settings = settings.Clone()
	if len(settings.Destination) > 1 {
		settings.Destination = strings.TrimRight(settings.Destination, string(filepath.Separator))
	}

	if err := uc.storage(settings.Destination).CheckWritable(); err != nil {
		return nil, &domain.ConfigError{Field: "destination", Err: err}
	}
	if info, err := os.Stat(settings.Site.Root); err != nil {
		return nil, &domain.ConfigError{Field: "site root", Err: err}
	} else if !info.IsDir() {
		return nil, &domain.ConfigError{Field: "site root", Err: fmt.Errorf("%s is not a directory", settings.Site.Root)}
	}

	now := uc.now().In(uc.loc)
	base := RenderName(settings.NamePattern, settings.Site, now)
	workDir, err := allocateWorkDir(settings.Destination, base, now)
	if err != nil {
		return nil, &domain.ConfigError{Field: "destination", Err: err}
	}

	stamp := now.Format(stampLayout)
	job := &domain.Job{
		ID:        uc.newID(),
		Status:    domain.StatusRunning,
		Progress:  progressDumping,
		Message:   "Dumping database",
		BaseName:  base,
		Stamp:     stamp,
		WorkDir:   workDir,
		DBFile:    filepath.Join(workDir, "db-"+stamp+".sql.gz"),
		ZipFile:   filepath.Join(workDir, "files-"+stamp+".zip"),
		Files:     []string{},
		Settings:  settings,
		CreatedAt: now,
		UpdatedAt: now,
	}

	uc.metrics.JobsStarted.Inc()
	uc.logger.Infof("[%s] Starting backup into %s", job.ID, workDir)

	if err := uc.repo.Save(ctx, job); err != nil {
		return nil, err
	}

	if err := uc.prepare(ctx, job); err != nil {
		uc.fail(ctx, job, err)
		return job, nil
	}

	job.UpdatedAt = uc.now()
	if err := uc.repo.Save(ctx, job); err != nil {
		return job, err
	}
	return job, nil
}

func (uc *Jobs) prepare(ctx context.Context, job *domain.Job) error {
	s := job.Settings

	if err := uc.dumper.Dump(ctx, job.DBFile); err != nil {
		return &domain.FatalJobError{Step: "dump database", Err: err}
	}
	if info, err := os.Stat(job.DBFile); err == nil {
		uc.logger.Infof("[%s] Database dumped, size: %.2f MB", job.ID, float64(info.Size())/(1024*1024))
	}
	job.Progress = progressDBDone
	job.Message = "Database dumped, collecting files"

	files, err := Enumerate(s.Site.Root, s.ExcludeDirs, s.ExcludePatterns, s.Destination)
	if err != nil {
		return &domain.FatalJobError{Step: "enumerate files", Err: err}
	}
	job.Files = files
	job.Total = len(files)
	job.Index = 0

	a, err := uc.openArchive(job.ZipFile)
	if err != nil {
		return &domain.FatalJobError{Step: "create archive", Err: err}
	}
	if err := a.Close(); err != nil {
		return &domain.FatalJobError{Step: "create archive", Err: err}
	}
	info, err := os.Stat(job.ZipFile)
	if err != nil {
		return &domain.FatalJobError{Step: "create archive", Err: err}
	}
	if info.Size() == 0 {
		return &domain.FatalJobError{Step: "create archive", Err: errors.New("archive is empty")}
	}

	job.Message = fmt.Sprintf("Archiving files (0/%d)", job.Total)
	uc.logger.Infof("[%s] %d file(s) to archive", job.ID, job.Total)
	return nil
}

// Tick archives the next batch of files. Failures inside the batch end the
// job in error and are not returned; the error return is reserved for a
// missing job, a job that is no longer running, or a store failure.
func (uc *Jobs) Tick(ctx context.Context, id string) (*domain.Job, error) {
	job, err := uc.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status != domain.StatusRunning {
		return job, fmt.Errorf("%w: %s", domain.ErrJobNotRunning, job.Status)
	}

	start := time.Now()
	defer func() {
		uc.metrics.TickDuration.Observe(time.Since(start).Seconds())
	}()

	if err := uc.advance(job); err != nil {
		uc.fail(ctx, job, err)
		return job, nil
	}

	if job.Index >= job.Total {
		if err := uc.finalize(ctx, job); err != nil {
			uc.fail(ctx, job, err)
			return job, nil
		}
	}

	job.UpdatedAt = uc.now()
	if err := uc.repo.Save(ctx, job); err != nil {
		return job, err
	}
	return job, nil
}

func (uc *Jobs) advance(job *domain.Job) error {
	a, err := uc.openArchive(job.ZipFile)
	if err != nil {
		return &domain.FatalJobError{Step: "open archive", Err: err}
	}

	end := min(job.Index+uc.batchSize, job.Total)
	root := job.Settings.Site.Root
	added, skipped := 0, 0

	for _, rel := range job.Files[job.Index:end] {
		err := a.AddFile(filepath.Join(root, filepath.FromSlash(rel)), rel)
		switch {
		case err == nil:
			added++
		case errors.Is(err, domain.ErrUnreadable):
			skipped++
			uc.logger.Debugf("[%s] Skipping %s: %v", job.ID, rel, err)
		default:
			a.Abort()
			return &domain.FatalJobError{Step: "archive files", Err: err}
		}
	}

	if lost := job.Archived + added - a.Count(); lost > 0 {
		uc.logger.Warnf("[%s] Archive was recreated, %d earlier entries are gone", job.ID, lost)
	}
	count := a.Count()

	if err := a.Close(); err != nil {
		return &domain.FatalJobError{Step: "close archive", Err: err}
	}

	job.Index = end
	job.Archived = count
	job.Skipped += skipped
	job.Progress = progressFor(job.Index, job.Total)
	job.Message = fmt.Sprintf("Archiving files (%d/%d)", job.Index, job.Total)

	uc.metrics.FilesArchived.Add(float64(added))
	uc.metrics.FilesSkipped.Add(float64(skipped))
	return nil
}

func progressFor(index, total int) int {
	if total <= 0 {
		return progressDBDone
	}
	p := progressDBDone + (100-progressDBDone)*index/total
	return min(p, progressMax)
}

// finalize writes the manifest, marks the job done, then sweeps expired sets
// and notifies. Sweep and notification failures are only logged.
func (uc *Jobs) finalize(ctx context.Context, job *domain.Job) error {
	s := job.Settings

	dbHash, err := fileSHA256(job.DBFile)
	if err != nil {
		return &domain.FatalJobError{Step: "hash database dump", Err: err}
	}
	filesHash, err := fileSHA256(job.ZipFile)
	if err != nil {
		return &domain.FatalJobError{Step: "hash archive", Err: err}
	}

	manifest := domain.Manifest{
		Version:     domain.ManifestVersion,
		CreatedAt:   job.Stamp,
		SiteURL:     s.Site.URL,
		AppVersion:  s.Site.AppVersion,
		DB:          filepath.Base(job.DBFile),
		Files:       filepath.Base(job.ZipFile),
		RetainDays:  s.RetainDays,
		BaseName:    job.BaseName,
		Pattern:     s.NamePattern,
		FileCount:   job.Archived,
		DBSHA256:    dbHash,
		FilesSHA256: filesHash,
	}
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return &domain.FatalJobError{Step: "write manifest", Err: err}
	}
	if err := os.WriteFile(filepath.Join(job.WorkDir, domain.ManifestFilename), data, 0644); err != nil {
		return &domain.FatalJobError{Step: "write manifest", Err: err}
	}

	if err := job.Transition(domain.StatusDone); err != nil {
		return err
	}
	job.Progress = 100
	job.Message = "Backup completed"
	uc.metrics.JobsFinished.WithLabelValues(string(domain.StatusDone)).Inc()
	uc.logger.Infof("[%s] Backup completed: %s (%d files, %d skipped)",
		job.ID, filepath.Base(job.WorkDir), manifest.FileCount, job.Skipped)

	if _, err := uc.cleanup.Sweep(ctx, s.Destination, s.RetainDays); err != nil {
		uc.logger.Warnf("[%s] Retention sweep incomplete: %v", job.ID, err)
	}

	uc.notify(ctx, job)
	return nil
}

// Status is a pure read of the stored record.
func (uc *Jobs) Status(ctx context.Context, id string) (*domain.Job, error) {
	return uc.repo.Get(ctx, id)
}

// Forget drops the job record before its TTL. The file snapshot makes records
// large, and a finished set is described by its manifest.
func (uc *Jobs) Forget(ctx context.Context, id string) error {
	return uc.repo.Delete(ctx, id)
}

// Cancel marks the job canceled whatever its status. It does not interrupt a
// tick already in progress.
func (uc *Jobs) Cancel(ctx context.Context, id string) (*domain.Job, error) {
	job, err := uc.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	wasRunning := job.Status == domain.StatusRunning
	if err := job.Transition(domain.StatusCanceled); err != nil {
		return job, err
	}
	job.Message = "Backup canceled"
	job.UpdatedAt = uc.now()

	if wasRunning {
		uc.metrics.JobsFinished.WithLabelValues(string(domain.StatusCanceled)).Inc()
		uc.logger.Infof("[%s] Backup canceled at %d/%d", job.ID, job.Index, job.Total)
	}

	if err := uc.repo.Save(ctx, job); err != nil {
		return job, err
	}
	return job, nil
}

func (uc *Jobs) fail(ctx context.Context, job *domain.Job, err error) {
	job.Fail(err)
	job.UpdatedAt = uc.now()

	uc.metrics.JobsFinished.WithLabelValues(string(domain.StatusError)).Inc()
	uc.logger.Errorf("[%s] Backup failed: %v", job.ID, err)

	if err := uc.repo.Save(ctx, job); err != nil {
		uc.logger.Errorf("[%s] Failed to persist job: %v", job.ID, err)
	}
	uc.notify(ctx, job)
}

func (uc *Jobs) notify(ctx context.Context, job *domain.Job) {
	if uc.notifier == nil {
		return
	}
	event := domain.Event{
		JobID:   job.ID,
		Status:  job.Status,
		Message: job.Message,
		Error:   job.Error,
		WorkDir: job.WorkDir,
	}
	if err := uc.notifier.Notify(ctx, event); err != nil {
		uc.logger.Warnf("[%s] Notification failed: %v", job.ID, err)
	}
}

// allocateWorkDir creates a fresh directory named after the rendered pattern
// plus HHMMSS and microseconds. os.Mkdir fails on an existing directory, so a
// numeric suffix is tried on collision.
func allocateWorkDir(dest, base string, now time.Time) (string, error) {
	name := fmt.Sprintf("%s-%s%06d", base, now.Format("150405"), now.Nanosecond()/1000)
	for i := 0; i < 100; i++ {
		candidate := name
		if i > 0 {
			candidate = fmt.Sprintf("%s-%d", name, i)
		}
		dir := filepath.Join(dest, candidate)
		err := os.Mkdir(dir, 0755)
		if err == nil {
			return dir, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", err
		}
	}
	return "", fmt.Errorf("no free work directory for %s", name)
}
