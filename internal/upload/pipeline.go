// Package upload runs the video upload job: local validation, a service-auth
// token exchange, a streamed upload to the video service and bounded polling
// of the processing job.
package upload

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/dmitrijs2005/gophsky/internal/logging"
	"github.com/dmitrijs2005/gophsky/internal/metrics"
	"github.com/dmitrijs2005/gophsky/internal/records"
	"github.com/dmitrijs2005/gophsky/internal/session"
	"github.com/dmitrijs2005/gophsky/internal/xrpc"
)

const (
	nsidGetServiceAuth = "com.atproto.server.getServiceAuth"
	nsidUploadVideo    = "app.bsky.video.uploadVideo"
	nsidGetJobStatus   = "app.bsky.video.getJobStatus"
)

const (
	DefaultServiceDID      = "did:web:video.bsky.app"
	DefaultPollInterval    = 2 * time.Second
	DefaultPollMaxAttempts = 90
	DefaultTokenTTL        = 30 * time.Minute
)

// Config tunes a Pipeline. Zero fields fall back to the defaults above.
type Config struct {
	// ServiceDID is the audience of the service-auth token.
	ServiceDID      string
	Limits          Limits
	PollInterval    time.Duration
	PollMaxAttempts int
	TokenTTL        time.Duration
}

func (c Config) withDefaults() Config {
	if c.ServiceDID == "" {
		c.ServiceDID = DefaultServiceDID
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	// backoff treats zero retries as unlimited.
	if c.PollMaxAttempts <= 0 {
		c.PollMaxAttempts = DefaultPollMaxAttempts
	}
	if c.TokenTTL <= 0 {
		c.TokenTTL = DefaultTokenTTL
	}
	c.Limits = c.Limits.withDefaults()
	return c
}

// Pipeline uploads videos on behalf of the current session. It keeps no
// per-upload state, so concurrent UploadVideo calls are independent.
type Pipeline struct {
	pds    *xrpc.Client
	video  *xrpc.Client
	tokens session.TokenSource
	prober Prober
	cfg    Config
	log    logging.Logger
	now    func() time.Time
}

// New returns a Pipeline that authenticates against pds and uploads to
// video. A nil prober skips the duration check.
func New(pds, video *xrpc.Client, tokens session.TokenSource, prober Prober, cfg Config, log logging.Logger) *Pipeline {
	if log == nil {
		log = logging.Nop()
	}
	return &Pipeline{
		pds:    pds,
		video:  video,
		tokens: tokens,
		prober: prober,
		cfg:    cfg.withDefaults(),
		log:    log,
		now:    time.Now,
	}
}

// UploadVideo validates the file at path, uploads it and waits for the
// video service to finish processing. onProgress, if non-nil, receives the
// upload fraction in [0,1] after every chunk; the last call reports 1.0.
// The returned blob can be embedded with records.Video.
func (p *Pipeline) UploadVideo(ctx context.Context, path string, onProgress func(float64)) (records.BlobRef, error) {
	uploadID := uuid.NewString()
	log := p.log.With("upload_id", uploadID)

	info, err := Validate(ctx, path, p.cfg.Limits, p.prober)
	if err != nil {
		metrics.ObserveUpload("invalid")
		log.Info(ctx, "video rejected", "path", path, "error", err)
		return records.BlobRef{}, err
	}
	log.Info(ctx, "video validated", "name", info.Name, "size", info.Size, "duration", info.Duration)

	sess, ok := p.tokens.Current()
	if !ok {
		if _, err := p.tokens.AccessToken(ctx); err != nil {
			metrics.ObserveUpload("auth_failed")
			return records.BlobRef{}, fmt.Errorf("%w: %w", ErrAuthFailed, err)
		}
		if sess, ok = p.tokens.Current(); !ok {
			metrics.ObserveUpload("auth_failed")
			return records.BlobRef{}, fmt.Errorf("%w: %w", ErrAuthFailed, session.ErrNoActiveSession)
		}
	}

	token, err := p.serviceAuth(ctx)
	if err != nil {
		metrics.ObserveUpload("auth_failed")
		log.Warn(ctx, "service auth failed", "error", err)
		return records.BlobRef{}, err
	}

	job, err := p.upload(ctx, info, sess.DID, token, onProgress)
	if err != nil {
		metrics.ObserveUpload("upload_failed")
		log.Warn(ctx, "upload failed", "error", err)
		return records.BlobRef{}, err
	}
	log.Info(ctx, "video uploaded", "job_id", job.ID, "state", job.State)

	blob, err := p.poll(ctx, log, job, token)
	switch {
	case err == nil:
		metrics.ObserveUpload("completed")
		log.Info(ctx, "video processed", "job_id", job.ID, "blob", blob.Link)
	case errors.Is(err, ErrTimedOut):
		metrics.ObserveUpload("timed_out")
		log.Warn(ctx, "video processing timed out", "job_id", job.ID)
	case errors.Is(err, ErrProcessingFailed):
		metrics.ObserveUpload("processing_failed")
		log.Warn(ctx, "video processing failed", "job_id", job.ID, "error", err)
	default:
		metrics.ObserveUpload("error")
		log.Warn(ctx, "video status polling stopped", "job_id", job.ID, "error", err)
	}
	return blob, err
}

// serviceAuth exchanges the session token for a token scoped to the
// uploadVideo method of the video service.
func (p *Pipeline) serviceAuth(ctx context.Context) (string, error) {
	access, err := p.tokens.AccessToken(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrAuthFailed, err)
	}

	params := map[string]string{
		"aud": p.cfg.ServiceDID,
		"lxm": nsidUploadVideo,
		"exp": strconv.FormatInt(p.now().Add(p.cfg.TokenTTL).Unix(), 10),
	}
	var out struct {
		Token string `json:"token"`
	}
	if err := p.pds.Query(ctx, nsidGetServiceAuth, access, params, &out); err != nil {
		return "", fmt.Errorf("%w: %w", ErrAuthFailed, err)
	}
	if out.Token == "" {
		return "", fmt.Errorf("%w: empty service token", ErrAuthFailed)
	}
	return out.Token, nil
}

func (p *Pipeline) upload(ctx context.Context, info MediaInfo, did, token string, onProgress func(float64)) (*Job, error) {
	f, err := os.Open(info.Path)
	if err != nil {
		return nil, &UploadError{Detail: "open video", Err: err}
	}
	defer f.Close()

	body := newProgressReader(f, info.Size, onProgress)
	params := map[string]string{"did": did, "name": info.Name}

	var out jobStatusEnvelope
	err = p.video.Upload(ctx, nsidUploadVideo, token, params, info.MimeType, body, info.Size, &out)
	if err != nil {
		if job, ok := existingJob(err); ok {
			body.finish()
			return job, nil
		}
		return nil, &UploadError{Detail: uploadDetail(err), Err: err}
	}
	body.finish()

	job := &Job{DID: did}
	job.advance(out.status())
	if job.ID == "" && !job.State.Terminal() {
		return nil, &UploadError{Detail: "response carries no job id", Err: xrpc.ErrInvalidResponse}
	}
	return job, nil
}

// existingJob recognises the 409 the video service returns for a file it
// has already accepted; the reported job is polled like a fresh one.
func existingJob(err error) (*Job, bool) {
	var xe *xrpc.Error
	if !errors.As(err, &xe) || xe.StatusCode != http.StatusConflict {
		return nil, false
	}
	var out jobStatusEnvelope
	if json.Unmarshal(xe.Body, &out) != nil {
		return nil, false
	}
	st := out.status()
	if st.JobID == "" {
		return nil, false
	}
	// The conflict body carries the error name in the status fields.
	st.Error, st.Message = "", ""
	job := &Job{}
	job.advance(st)
	return job, true
}

func uploadDetail(err error) string {
	var xe *xrpc.Error
	if errors.As(err, &xe) {
		switch {
		case xe.Message != "":
			return xe.Message
		case xe.Name != "":
			return xe.Name
		case xe.StatusCode != 0:
			return http.StatusText(xe.StatusCode)
		}
	}
	return err.Error()
}

// poll fetches the job status every PollInterval, at most PollMaxAttempts
// times. Transient failures use up an attempt; other failures end polling.
// Cancelling ctx prevents the next poll but lets an in-flight one finish.
func (p *Pipeline) poll(ctx context.Context, log logging.Logger, job *Job, token string) (records.BlobRef, error) {
	if blob, done, err := p.settled(job); done {
		return blob, err
	}

	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(p.cfg.PollInterval), uint64(p.cfg.PollMaxAttempts)),
		ctx,
	)

	for attempt := 1; ; attempt++ {
		wait := b.NextBackOff()
		if wait == backoff.Stop {
			if err := ctx.Err(); err != nil {
				return records.BlobRef{}, err
			}
			return records.BlobRef{}, fmt.Errorf("%w: job %s after %d attempts", ErrTimedOut, job.ID, attempt-1)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return records.BlobRef{}, ctx.Err()
		case <-timer.C:
		}

		st, err := p.jobStatus(context.WithoutCancel(ctx), job.ID, token)
		if err != nil {
			if !xrpc.IsTransient(err) {
				return records.BlobRef{}, fmt.Errorf("job status: %w", err)
			}
			log.Debug(ctx, "job status unavailable", "job_id", job.ID, "attempt", attempt, "error", err)
			continue
		}

		job.advance(st)
		log.Debug(ctx, "job status", "job_id", job.ID, "attempt", attempt, "state", job.State, "progress", job.Progress)
		if blob, done, err := p.settled(job); done {
			return blob, err
		}
	}
}

// settled reports whether job is terminal and, if so, its outcome.
func (p *Pipeline) settled(job *Job) (records.BlobRef, bool, error) {
	switch job.State {
	case JobCompleted:
		if job.Blob == nil {
			return records.BlobRef{}, true, &ProcessingError{JobID: job.ID, Detail: "completed without a blob"}
		}
		return *job.Blob, true, nil
	case JobFailed:
		return records.BlobRef{}, true, &ProcessingError{JobID: job.ID, Detail: job.detail()}
	default:
		return records.BlobRef{}, false, nil
	}
}

// jobStatus asks the video service about jobID, authorized with the same
// service token that was used for the upload.
func (p *Pipeline) jobStatus(ctx context.Context, jobID, token string) (jobStatusWire, error) {
	var out jobStatusEnvelope
	err := p.video.Query(ctx, nsidGetJobStatus, token, map[string]string{"jobId": jobID}, &out)
	if err != nil {
		return jobStatusWire{}, err
	}
	return out.status(), nil
}
