package domain

import "time"

// JobStatus is a point-in-time view of the indexing job. Only the
// supervisor writes it; everyone else receives copies.
type JobStatus struct {
	IsRunning  bool       `json:"is_indexing"`
	Progress   int        `json:"progress"`
	Message    string     `json:"message"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	ExitStatus *int       `json:"exit_status,omitempty"`
}
