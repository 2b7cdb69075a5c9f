package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/1lker/turkish-transcribe/internal/models"
)

// Options configures a session controller
type Options struct {
	PollInterval    time.Duration
	MaxPollInterval time.Duration
	DisablePush     bool
	Notifier        Notifier
	// OnChange receives a snapshot after every accepted state change. It is
	// invoked on the controller's serialization path and must not call back
	// into the controller synchronously.
	OnChange func(Snapshot)
}

// Snapshot is the read-only state exposed to the presentation layer. The
// Result pointer, when set, references an immutable value.
type Snapshot struct {
	Upload models.UploadState
	Job    models.JobState
}

// Controller drives a single transcription job from file selection to a
// terminal state. It owns the polling loop, the push channel and the upload
// cancellation handle for that job, reconciles updates from both sources
// into one monotonic state, and manages at most one active job at a time.
type Controller struct {
	mu        sync.Mutex
	transport Transport
	opts      Options

	upload       models.UploadState
	job          models.JobState
	uploadCancel context.CancelFunc
	poller       *poller
	listener     *listener
	slotID       string
	done         chan struct{}

	// generation is bumped by Cancel and Reset so continuations that were
	// in flight across the unlock (upload transfer, job submission) can tell
	// the session they belong to has been retired.
	generation uint64
}

// NewController creates an idle controller
func NewController(t Transport, opts Options) *Controller {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	if opts.MaxPollInterval <= 0 {
		opts.MaxPollInterval = 2 * opts.PollInterval
	}
	if opts.Notifier == nil {
		opts.Notifier = noopNotifier{}
	}

	return &Controller{
		transport: t,
		opts:      opts,
		job:       models.NewJobState(),
	}
}

// Snapshot returns a copy of the current session state
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{Upload: c.upload, Job: c.job}
}

// UploadFile transfers a local file to the backend. On failure the upload
// error is recorded, the job stays Pending and nothing is started.
func (c *Controller) UploadFile(ctx context.Context, path string) (*UploadedRef, error) {
	c.mu.Lock()
	if c.busyLocked() {
		c.mu.Unlock()
		return nil, models.ErrJobAlreadyRunning
	}

	name := filepath.Base(path)
	gen := c.generation
	c.acquireSlotLocked("Uploading " + name)
	c.upload = models.UploadState{File: path, Uploading: true}
	uploadCtx, cancel := context.WithCancel(ctx)
	c.uploadCancel = cancel
	c.notifyLocked()
	c.mu.Unlock()

	uploaded, err := c.transport.Upload(uploadCtx, path, func(percent float64) {
		c.mu.Lock()
		defer c.mu.Unlock()
		if !c.upload.Uploading {
			return
		}
		if percent > c.upload.Progress {
			c.upload.Progress = percent
		}
		c.opts.Notifier.Progress(c.slotID, "Uploading "+name, c.upload.Progress)
		c.notifyLocked()
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	cancel()
	if c.generation != gen {
		// Cancel or Reset retired the session while the transfer was in
		// flight; whatever the transfer returned is no longer ours to record.
		return nil, models.ErrCancelled
	}
	c.uploadCancel = nil
	c.upload.Uploading = false

	if err != nil {
		if !errors.Is(err, models.ErrCancelled) {
			c.upload.Error = err.Error()
		}
		c.retireSlotLocked()
		c.notifyLocked()
		return nil, err
	}

	c.upload.Progress = 100
	c.job = Reconcile(c.job, models.Update{
		Phase:    models.PhaseUploading,
		Progress: models.ProgressValue(100),
	})
	c.notifyLocked()
	return &UploadedRef{ID: uploaded.ID, Name: uploaded.Name, Size: uploaded.Size}, nil
}

// StartJob submits an uploaded file for transcription, then starts the
// polling loop and attempts to open the push channel. A submission failure
// moves the session to Failed and starts nothing.
func (c *Controller) StartJob(ctx context.Context, ref *UploadedRef, opts models.TranscribeOptions) error {
	if ref == nil {
		return errors.New("no uploaded file to transcribe")
	}

	c.mu.Lock()
	if c.busyLocked() {
		c.mu.Unlock()
		return models.ErrJobAlreadyRunning
	}
	gen := c.generation
	c.acquireSlotLocked("Transcribing " + ref.Name)
	c.mu.Unlock()

	ack, err := c.transport.SubmitJob(ctx, ref.ID, opts)

	c.mu.Lock()
	if c.generation != gen {
		// Cancel or Reset retired the session while the submission was in
		// flight. Sources stay stopped; a late ack resurrects nothing.
		c.mu.Unlock()
		return models.ErrCancelled
	}
	if err != nil {
		c.job = Reconcile(c.job, models.Update{
			Phase: models.PhaseFailed,
			Error: submitErrorMessage(err),
		})
		c.retireSlotLocked()
		c.notifyLocked()
		c.mu.Unlock()
		return fmt.Errorf("submitting job: %w", err)
	}

	// No discrete queued state: the submission ack already carries the
	// initial phase, and anything non-terminal is Processing.
	c.job = Reconcile(c.job, models.Update{JobID: ack.JobID, Phase: models.PhaseProcessing})
	c.done = make(chan struct{})
	c.poller = startPoller(c.transport, ack.JobID, c.opts.PollInterval, c.opts.MaxPollInterval, c.applyUpdate)
	c.notifyLocked()
	c.mu.Unlock()

	if !c.opts.DisablePush {
		c.openPush(ctx, ack.JobID)
	}
	return nil
}

// Process composes UploadFile and StartJob; an upload failure short-circuits
// and nothing is submitted.
func (c *Controller) Process(ctx context.Context, path string, opts models.TranscribeOptions) error {
	ref, err := c.UploadFile(ctx, path)
	if err != nil {
		return err
	}
	return c.StartJob(ctx, ref, opts)
}

// Cancel stops the polling loop, closes the push channel and aborts any
// in-flight upload, unconditionally. Only a session that was actively
// uploading or processing transitions to Failed; cancelling an idle or
// already-terminal session is cleanup only. Idempotent.
func (c *Controller) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.generation++
	c.stopSourcesLocked()

	wasActive := c.upload.Uploading ||
		c.job.Phase == models.PhaseUploading ||
		c.job.Phase == models.PhaseProcessing
	c.upload.Uploading = false

	if wasActive {
		c.job = Reconcile(c.job, models.Update{
			Phase: models.PhaseFailed,
			Error: "cancelled by user",
		})
		c.closeDoneLocked()
		c.notifyLocked()
	}
	c.retireSlotLocked()
}

// Reset retires the current session completely and restores the initial
// state. Safe to call from any state; a controller after Reset behaves like
// a freshly constructed one.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.generation++
	c.stopSourcesLocked()
	c.retireSlotLocked()
	c.closeDoneLocked()
	c.upload = models.UploadState{}
	c.job = models.NewJobState()
	c.notifyLocked()
}

// Wait blocks until the current job reaches a terminal state
func (c *Controller) Wait(ctx context.Context) (models.JobState, error) {
	c.mu.Lock()
	if c.job.Phase.IsTerminal() {
		job := c.job
		c.mu.Unlock()
		return job, nil
	}
	done := c.done
	c.mu.Unlock()

	if done == nil {
		return models.JobState{}, errors.New("no job running")
	}

	select {
	case <-ctx.Done():
		return models.JobState{}, ctx.Err()
	case <-done:
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.job, nil
}

// DownloadArtifact fetches a rendered transcript for the finished job
func (c *Controller) DownloadArtifact(ctx context.Context, format string) ([]byte, error) {
	c.mu.Lock()
	result, jobID := c.job.Result, c.job.JobID
	c.mu.Unlock()

	if result == nil {
		return nil, models.ErrNoResult
	}
	return c.transport.FetchArtifact(ctx, jobID, format)
}

// CopyText returns the finished transcript text
func (c *Controller) CopyText() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.job.Result == nil {
		return "", models.ErrNoResult
	}
	return c.job.Result.Text, nil
}

// UploadedRef identifies a file the backend accepted for transcription
type UploadedRef struct {
	ID   string
	Name string
	Size int64
}

// applyUpdate is the single serialization point for updates from both
// sources. Stale and out-of-order updates are dropped by the reducer; a
// terminal update retires every resource the session holds.
func (c *Controller) applyUpdate(update models.Update) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if update.JobID != "" && update.JobID != c.job.JobID {
		return
	}

	next := Reconcile(c.job, update)
	if jobStateEqual(next, c.job) {
		return
	}
	c.job = next

	if next.Phase.IsTerminal() {
		c.stopSourcesLocked()
		c.retireSlotLocked()
		c.closeDoneLocked()
	} else {
		c.opts.Notifier.Progress(c.slotID, progressMessage(next), next.Progress)
	}
	c.notifyLocked()
}

// openPush tries to attach the best-effort push channel. Failure is logged
// and swallowed: polling is the source of truth.
func (c *Controller) openPush(ctx context.Context, jobID string) {
	stream, err := c.transport.OpenPushChannel(ctx, jobID)
	if err != nil {
		log.Printf("[DEBUG] Push channel unavailable for job %s, relying on polling: %v", jobID, err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.poller == nil || c.job.JobID != jobID {
		// Session was cancelled or retired while dialing
		_ = stream.Close()
		return
	}
	c.listener = startListener(stream, c.applyUpdate)
}

func (c *Controller) busyLocked() bool {
	return c.poller != nil || c.upload.Uploading || c.job.JobID != "" || c.job.Phase.IsTerminal()
}

// stopSourcesLocked retires every update source and handle the session owns.
// Nil-safe: sources that were never started are skipped.
func (c *Controller) stopSourcesLocked() {
	if c.poller != nil {
		c.poller.Stop()
		c.poller = nil
	}
	if c.listener != nil {
		c.listener.Stop()
		c.listener = nil
	}
	if c.uploadCancel != nil {
		c.uploadCancel()
		c.uploadCancel = nil
	}
}

func (c *Controller) acquireSlotLocked(message string) {
	if c.slotID != "" {
		c.opts.Notifier.End(c.slotID)
	}
	c.slotID = uuid.NewString()
	c.opts.Notifier.Begin(c.slotID, message)
}

func (c *Controller) retireSlotLocked() {
	if c.slotID != "" {
		c.opts.Notifier.End(c.slotID)
		c.slotID = ""
	}
}

func (c *Controller) closeDoneLocked() {
	if c.done != nil {
		close(c.done)
		c.done = nil
	}
}

func (c *Controller) notifyLocked() {
	if c.opts.OnChange != nil {
		c.opts.OnChange(Snapshot{Upload: c.upload, Job: c.job})
	}
}

// jobStateEqual compares states field by field; Result is compared by
// pointer since it is immutable once attached.
func jobStateEqual(a, b models.JobState) bool {
	return a.JobID == b.JobID &&
		a.Phase == b.Phase &&
		a.Progress == b.Progress &&
		a.Stage == b.Stage &&
		a.Message == b.Message &&
		a.Error == b.Error &&
		a.Result == b.Result
}

func progressMessage(job models.JobState) string {
	if job.Stage != "" {
		return job.Stage
	}
	if job.Message != "" {
		return job.Message
	}
	return "Transcribing"
}

func submitErrorMessage(err error) string {
	var vErr *models.ValidationError
	if errors.As(err, &vErr) {
		return vErr.Message
	}
	return err.Error()
}
