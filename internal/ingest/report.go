package ingest

import "time"

// Status is the terminal state of one collection within a run.
type Status string

const (
	// StatusSucceeded means the collection was processed and its marker advanced.
	StatusSucceeded Status = "succeeded"
	// StatusSkipped means the sources were unchanged since the last run.
	StatusSkipped Status = "skipped"
	// StatusFailed means the collection aborted; its marker is retained for retry.
	StatusFailed Status = "failed"
)

// CollectionReport is the outcome of one collection in a run.
type CollectionReport struct {
	Name      string `json:"name"`
	Status    Status `json:"status"`
	Documents int    `json:"documents"`
	Chunks    int    `json:"chunks"`
	Marker    int64  `json:"marker,omitempty"`
	Err       error  `json:"-"`
}

// Report is the outcome of a whole run.
type Report struct {
	Collections []CollectionReport `json:"collections"`
	Started     time.Time          `json:"started"`
	Finished    time.Time          `json:"finished"`
}

// Succeeded returns the number of collections that processed successfully.
func (r *Report) Succeeded() int {
	n := 0
	for _, c := range r.Collections {
		if c.Status == StatusSucceeded {
			n++
		}
	}
	return n
}

// Failed returns the number of collections that failed.
func (r *Report) Failed() int {
	n := 0
	for _, c := range r.Collections {
		if c.Status == StatusFailed {
			n++
		}
	}
	return n
}

// Degraded reports whether any collection failed.
func (r *Report) Degraded() bool {
	return r.Failed() > 0
}

// AllFailed reports whether every collection failed. This is the only case
// treated as a process-level failure.
func (r *Report) AllFailed() bool {
	return len(r.Collections) > 0 && r.Failed() == len(r.Collections)
}

// State renders the terminal state of the run.
func (r *Report) State() string {
	if r.Degraded() {
		return "DEGRADED"
	}
	return "DONE"
}
