package session

import (
	"time"
)

// JobStatus is the client-side lifecycle state of a download job.
type JobStatus string

const (
	StatusIdle         JobStatus = "idle"
	StatusInitializing JobStatus = "initializing"
	StatusDownloading  JobStatus = "downloading"
	StatusProcessing   JobStatus = "processing"
	StatusCompleted    JobStatus = "completed"
	StatusCancelled    JobStatus = "cancelled"
	StatusError        JobStatus = "error"
)

// IsActive returns true while the job still has work in flight.
func (s JobStatus) IsActive() bool {
	return s == StatusInitializing || s == StatusDownloading || s == StatusProcessing
}

// IsTerminal returns true once the job can no longer change state.
func (s JobStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusError
}

// Options are the per-job download options.
type Options struct {
	MediaType string `json:"type"`    // video, audio or thumbnail
	Format    string `json:"format"`  // container / audio format
	Quality   string `json:"quality"` // quality label, e.g. "720p"
}

// Job is the unit of work tracked end-to-end by the client. The full
// snapshot is persisted on every transition so a restart can resume
// observing the same job.
type Job struct {
	ID        string  `json:"id"`
	SourceURL string  `json:"url"`
	Platform  string  `json:"platform,omitempty"`
	Options   Options `json:"options"`

	Status        JobStatus `json:"status"`
	Percent       float64   `json:"percent"`
	StatusMessage string    `json:"status_message,omitempty"`

	Title     string `json:"title,omitempty"`
	Thumbnail string `json:"thumbnail,omitempty"`

	// Generation fences channel events: events tagged with a stale
	// generation are dropped, so a cancelled job can never be resurrected
	// by a late server message.
	Generation uint64 `json:"generation"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
