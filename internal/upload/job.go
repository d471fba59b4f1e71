package upload

import (
	"github.com/dmitrijs2005/gophsky/internal/records"
)

// JobState is the lifecycle of a server-side processing job.
type JobState int

const (
	JobQueued JobState = iota
	JobProcessing
	JobCompleted
	JobFailed
)

func (s JobState) String() string {
	switch s {
	case JobQueued:
		return "queued"
	case JobProcessing:
		return "processing"
	case JobCompleted:
		return "completed"
	case JobFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions are possible.
func (s JobState) Terminal() bool { return s == JobCompleted || s == JobFailed }

// Job tracks one processing job as seen by the client.
type Job struct {
	ID       string
	DID      string
	State    JobState
	Progress int
	Blob     *records.BlobRef
	Error    string
	Message  string
}

// advance applies a status report. State never moves backwards, progress
// never decreases and terminal states are final.
func (j *Job) advance(w jobStatusWire) {
	if j.State.Terminal() {
		return
	}
	if w.JobID != "" && j.ID == "" {
		j.ID = w.JobID
	}
	if w.DID != "" {
		j.DID = w.DID
	}
	if next := parseState(w.State); next > j.State {
		j.State = next
	}
	if w.Progress > j.Progress {
		j.Progress = w.Progress
	}
	if w.Blob != nil {
		j.Blob = w.Blob
	}
	if w.Error != "" {
		j.Error = w.Error
	}
	if w.Message != "" {
		j.Message = w.Message
	}
	if j.State == JobCompleted {
		j.Progress = 100
	}
}

// detail describes a failed job for error messages.
func (j *Job) detail() string {
	switch {
	case j.Error != "" && j.Message != "":
		return j.Error + ": " + j.Message
	case j.Error != "":
		return j.Error
	case j.Message != "":
		return j.Message
	default:
		return "no detail from video service"
	}
}

func parseState(s string) JobState {
	switch s {
	case "JOB_STATE_COMPLETED":
		return JobCompleted
	case "JOB_STATE_FAILED":
		return JobFailed
	case "", "JOB_STATE_CREATED":
		return JobQueued
	default:
		return JobProcessing
	}
}

type jobStatusWire struct {
	JobID    string           `json:"jobId"`
	DID      string           `json:"did,omitempty"`
	State    string           `json:"state"`
	Progress int              `json:"progress,omitempty"`
	Blob     *records.BlobRef `json:"blob,omitempty"`
	Error    string           `json:"error,omitempty"`
	Message  string           `json:"message,omitempty"`
}

// jobStatusEnvelope accepts both {"jobStatus":{...}} and the bare status
// object; the video service uses either depending on the endpoint.
type jobStatusEnvelope struct {
	JobStatus *jobStatusWire `json:"jobStatus,omitempty"`
	jobStatusWire
}

func (e jobStatusEnvelope) status() jobStatusWire {
	if e.JobStatus != nil {
		return *e.JobStatus
	}
	return e.jobStatusWire
}
