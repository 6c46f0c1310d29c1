package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/semmidev/sitekeep/internal/domain"
)

const (
	jobKeyPrefix  = "job:"
	DefaultJobTTL = 2 * time.Hour
)

// JobRepository stores whole job records as JSON under job:<id>. Every save
// refreshes the TTL.
type JobRepository struct {
	store domain.KeyValueStore
	ttl   time.Duration
}

func NewJobRepository(store domain.KeyValueStore, ttl time.Duration) *JobRepository {
	if ttl <= 0 {
		ttl = DefaultJobTTL
	}
	return &JobRepository{store: store, ttl: ttl}
}

func (r *JobRepository) Save(ctx context.Context, job *domain.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := r.store.Put(ctx, jobKeyPrefix+job.ID, data, r.ttl); err != nil {
		return fmt.Errorf("save job %s: %w", job.ID, err)
	}
	return nil
}

func (r *JobRepository) Get(ctx context.Context, id string) (*domain.Job, error) {
	if id == "" {
		return nil, domain.ErrJobNotFound
	}
	data, err := r.store.Get(ctx, jobKeyPrefix+id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load job %s: %w", id, err)
	}

	var job domain.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("unmarshal job %s: %w", id, err)
	}
	return &job, nil
}

func (r *JobRepository) Delete(ctx context.Context, id string) error {
	return r.store.Delete(ctx, jobKeyPrefix+id)
}
