package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrJobNotFound   = errors.New("job not found")
	ErrJobNotRunning = errors.New("job is not running")
	ErrUnreadable    = errors.New("source file unreadable")

	ErrInvalidTransition = errors.New("invalid job transition")
)

// ConfigError reports an unusable destination or configuration detected at
// job start. No job exists when it is returned.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// FatalJobError aborts a job. Its message ends up in Job.Error.
type FatalJobError struct {
	Step string
	Err  error
}

func (e *FatalJobError) Error() string {
	return fmt.Sprintf("%s: %v", e.Step, e.Err)
}

func (e *FatalJobError) Unwrap() error {
	return e.Err
}

type TransitionError struct {
	From JobStatus
	To   JobStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid job transition %s -> %s", e.From, e.To)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}
