// Package scheduler runs recurring maintenance tasks, such as pruning the
// access store, on interval or cron expressions.
package scheduler

import (
	"time"

	"github.com/google/uuid"
)

// TaskType represents the type of scheduled task
type TaskType string

const (
	// TaskTypePrune deletes access events older than the retention window.
	TaskTypePrune TaskType = "prune"
)

// Run outcomes recorded on a Schedule.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Schedule represents a scheduled task
type Schedule struct {
	ID           string     `json:"id"`
	TaskType     TaskType   `json:"taskType"`
	Expression   string     `json:"expression"` // cron, "every Xh" or "daily at HH:MM"
	Enabled      bool       `json:"enabled"`
	NextRun      time.Time  `json:"nextRun"`
	LastRun      *time.Time `json:"lastRun,omitempty"`
	LastStatus   string     `json:"lastStatus,omitempty"`
	LastDuration int64      `json:"lastDuration,omitempty"` // milliseconds
	LastError    string     `json:"lastError,omitempty"`
	Runs         int        `json:"runs"`
}

// NewSchedule creates an enabled schedule whose first run follows now.
func NewSchedule(taskType TaskType, expression string, now time.Time) (*Schedule, error) {
	nextRun, err := NextRunTime(expression, now)
	if err != nil {
		return nil, err
	}

	return &Schedule{
		ID:         uuid.NewString(),
		TaskType:   taskType,
		Expression: expression,
		Enabled:    true,
		NextRun:    nextRun,
	}, nil
}

// IsDue returns true if the schedule should run at now
func (s *Schedule) IsDue(now time.Time) bool {
	if !s.Enabled {
		return false
	}
	return !now.Before(s.NextRun)
}

// MarkRun records a finished run and advances NextRun.
func (s *Schedule) MarkRun(now time.Time, duration time.Duration, runErr error) error {
	s.LastRun = &now
	s.LastDuration = duration.Milliseconds()
	s.Runs++

	if runErr == nil {
		s.LastStatus = StatusSuccess
		s.LastError = ""
	} else {
		s.LastStatus = StatusFailed
		s.LastError = runErr.Error()
	}

	nextRun, err := NextRunTime(s.Expression, now)
	if err != nil {
		return err
	}
	s.NextRun = nextRun
	return nil
}
