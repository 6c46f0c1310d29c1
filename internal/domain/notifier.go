package domain

import "context"

type Event struct {
	JobID   string
	Status  JobStatus
	Message string
	Error   string
	WorkDir string
}

type Notifier interface {
	Notify(ctx context.Context, event Event) error
}
