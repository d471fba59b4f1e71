package upload

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidFormat    = errors.New("unsupported video format")
	ErrFileTooLarge     = errors.New("video file too large")
	ErrDurationTooLong  = errors.New("video too long")
	ErrAuthFailed       = errors.New("video service authorization failed")
	ErrUploadFailed     = errors.New("video upload failed")
	ErrProcessingFailed = errors.New("video processing failed")
	ErrTimedOut         = errors.New("video processing timed out")
)

// UploadError is returned when the video service rejects the upload.
type UploadError struct {
	Detail string
	Err    error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("%s: %s", ErrUploadFailed, e.Detail)
}

func (e *UploadError) Is(target error) bool { return target == ErrUploadFailed }

func (e *UploadError) Unwrap() error { return e.Err }

// ProcessingError is returned when the job reaches the failed state.
type ProcessingError struct {
	JobID  string
	Detail string
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("%s: job %s: %s", ErrProcessingFailed, e.JobID, e.Detail)
}

func (e *ProcessingError) Is(target error) bool { return target == ErrProcessingFailed }
