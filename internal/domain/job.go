package domain

import "time"

type JobStatus string

const (
	StatusRunning  JobStatus = "running"
	StatusDone     JobStatus = "done"
	StatusError    JobStatus = "error"
	StatusCanceled JobStatus = "canceled"
)

func (s JobStatus) String() string {
	return string(s)
}

// Terminal reports whether no further ticks may mutate a job in this status.
func (s JobStatus) Terminal() bool {
	return s == StatusDone || s == StatusError || s == StatusCanceled
}

type Transition struct {
	From JobStatus
	To   JobStatus
}

// ValidTransitions lists every allowed status change. Cancel is accepted from
// any status so that it stays idempotent.
var ValidTransitions = []Transition{
	{From: StatusRunning, To: StatusRunning},
	{From: StatusRunning, To: StatusDone},
	{From: StatusRunning, To: StatusError},
	{From: StatusRunning, To: StatusCanceled},
	{From: StatusDone, To: StatusCanceled},
	{From: StatusError, To: StatusCanceled},
	{From: StatusCanceled, To: StatusCanceled},
}

func IsValidTransition(from, to JobStatus) bool {
	for _, t := range ValidTransitions {
		if t.From == from && t.To == to {
			return true
		}
	}
	return false
}

// Job is the persisted record of one background backup.
type Job struct {
	ID        string    `json:"id"`
	Status    JobStatus `json:"status"`
	Progress  int       `json:"progress"`
	Message   string    `json:"message"`
	Error     string    `json:"error,omitempty"`
	BaseName  string    `json:"base_name"`
	Stamp     string    `json:"stamp"`
	WorkDir   string    `json:"work_dir"`
	DBFile    string    `json:"db_file"`
	ZipFile   string    `json:"zip_file"`
	Files     []string  `json:"files"`
	Index     int       `json:"index"`
	Total     int       `json:"total"`
	Skipped   int       `json:"skipped"`
	Archived  int       `json:"archived"`
	Settings  Settings  `json:"settings"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Transition moves the job to the given status if the table allows it.
func (j *Job) Transition(to JobStatus) error {
	if !IsValidTransition(j.Status, to) {
		return &TransitionError{From: j.Status, To: to}
	}
	j.Status = to
	return nil
}

// Fail moves a running job to error and captures the message.
func (j *Job) Fail(err error) {
	if j.Status != StatusRunning {
		return
	}
	j.Status = StatusError
	j.Error = err.Error()
	j.Message = "Backup failed"
}

// JobStatusPayload is what polling clients receive from start, tick, status
// and cancel.
type JobStatusPayload struct {
	JobID    string    `json:"job_id"`
	Status   JobStatus `json:"status"`
	Progress int       `json:"progress"`
	Message  string    `json:"message"`
	Error    string    `json:"error,omitempty"`
	Index    int       `json:"index"`
	Total    int       `json:"total"`
}

func (j *Job) Payload() JobStatusPayload {
	return JobStatusPayload{
		JobID:    j.ID,
		Status:   j.Status,
		Progress: j.Progress,
		Message:  j.Message,
		Error:    j.Error,
		Index:    j.Index,
		Total:    j.Total,
	}
}
