package scrapejob

import (
	"time"

	"github.com/divaadaan/grocery-ai-planner/internal/model"
)

// Outcome classifies a single provider attempt within a job.
type Outcome string

const (
	OutcomeSuccess Outcome = "success" // met the sufficiency threshold
	OutcomePartial Outcome = "partial" // returned data below threshold
	OutcomeFailure Outcome = "failure" // returned nothing usable
)

// Attempt is the audit entry for one provider invocation. Attempts are
// append-only: once recorded on a job they are never rewritten.
type Attempt struct {
	Provider   string    `json:"provider"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
	Outcome    Outcome   `json:"outcome"`
	ErrorKind  string    `json:"errorKind,omitempty"`
	Error      string    `json:"error,omitempty"`
	Stores     int       `json:"stores"`
	Offers     int       `json:"offers"`
}

// Summary is the accumulated result count reported on a job.
type Summary struct {
	Stores int `json:"stores"`
	Offers int `json:"offers"`
}

// Job is one orchestration run for a postal code.
type Job struct {
	ID              string     `json:"id"`
	PostalCode      model.Area `json:"postalCode"`
	Status          Status     `json:"status"`
	Attempts        []Attempt  `json:"attempts"`
	Summary         Summary    `json:"summary"`
	LastError       string     `json:"lastError,omitempty"`
	ErrorKind       string     `json:"errorKind,omitempty"`
	CancelRequested bool       `json:"cancelRequested"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
	StartedAt       time.Time  `json:"startedAt,omitempty"`
	CompletedAt     time.Time  `json:"completedAt,omitempty"`
}

// Terminal reports whether the job has reached a final status.
func (j *Job) Terminal() bool { return IsTerminal(j.Status) }
