package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1lker/turkish-transcribe/internal/models"
	"github.com/1lker/turkish-transcribe/internal/transport"
)

// fakeTransport scripts the remote service for controller tests
type fakeTransport struct {
	mu sync.Mutex

	uploadErr  error
	uploadHold chan struct{} // when set, Upload blocks until closed
	submitErr  error
	submitHold chan struct{} // when set, SubmitJob blocks until closed
	jobID      string

	statusFn func(call int) (*transport.StatusSnapshot, error)
	stream   UpdateStream
	dialErr  error

	uploads     int
	submissions int
	statusCalls int
}

func (f *fakeTransport) Upload(ctx context.Context, path string, onProgress transport.ProgressFunc) (*transport.UploadedFile, error) {
	f.mu.Lock()
	f.uploads++
	err := f.uploadErr
	hold := f.uploadHold
	f.mu.Unlock()

	if hold != nil {
		<-hold
	}
	if err != nil {
		return nil, err
	}
	if onProgress != nil {
		onProgress(50)
		onProgress(100)
	}
	return &transport.UploadedFile{ID: "f1", Name: filepath.Base(path), Size: 10}, nil
}

func (f *fakeTransport) SubmitJob(ctx context.Context, fileID string, opts models.TranscribeOptions) (*transport.SubmitAck, error) {
	f.mu.Lock()
	f.submissions++
	err := f.submitErr
	hold := f.submitHold
	jobID := f.jobID
	f.mu.Unlock()

	if hold != nil {
		<-hold
	}
	if err != nil {
		return nil, err
	}
	if jobID == "" {
		jobID = "t1"
	}
	return &transport.SubmitAck{JobID: jobID, Phase: models.PhaseProcessing}, nil
}

func (f *fakeTransport) FetchStatus(ctx context.Context, jobID string) (*transport.StatusSnapshot, error) {
	f.mu.Lock()
	call := f.statusCalls
	f.statusCalls++
	fn := f.statusFn
	f.mu.Unlock()

	if fn == nil {
		return processingSnapshot(jobID, 10), nil
	}
	return fn(call)
}

func (f *fakeTransport) OpenPushChannel(ctx context.Context, jobID string) (UpdateStream, error) {
	if f.dialErr != nil {
		return nil, f.dialErr
	}
	if f.stream == nil {
		return nil, &models.NetworkError{Op: "push dial", Err: errors.New("no stream scripted")}
	}
	return f.stream, nil
}

func (f *fakeTransport) FetchArtifact(ctx context.Context, jobID, format string) ([]byte, error) {
	return []byte("artifact:" + jobID + ":" + format), nil
}

func processingSnapshot(jobID string, progress float64) *transport.StatusSnapshot {
	return &transport.StatusSnapshot{
		JobState: models.JobState{
			JobID:    jobID,
			Phase:    models.PhaseProcessing,
			Progress: progress,
		},
		HasProgress: true,
	}
}

func completedSnapshot(jobID string) *transport.StatusSnapshot {
	snap := &transport.StatusSnapshot{
		JobState: models.JobState{
			JobID:    jobID,
			Phase:    models.PhaseCompleted,
			Progress: 100,
			Result:   &models.JobResult{Text: "merhaba dünya", WordCount: 2, Model: "base"},
		},
		HasProgress: true,
	}
	return snap
}

// blockingStream never delivers an update until closed
type blockingStream struct {
	closed    chan struct{}
	closeOnce sync.Once
}

func newBlockingStream() *blockingStream {
	return &blockingStream{closed: make(chan struct{})}
}

func (s *blockingStream) ReadUpdate() (models.Update, error) {
	<-s.closed
	return models.Update{}, errors.New("stream closed")
}

func (s *blockingStream) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

func tempMediaFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip.mp3")
	require.NoError(t, os.WriteFile(path, []byte("not really audio"), 0o644))
	return path
}

func newTestController(f *fakeTransport) *Controller {
	return NewController(f, Options{
		PollInterval:    10 * time.Millisecond,
		MaxPollInterval: 20 * time.Millisecond,
		DisablePush:     true,
	})
}

func waitTerminal(t *testing.T, c *Controller) models.JobState {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	final, err := c.Wait(ctx)
	require.NoError(t, err)
	return final
}

func TestController_UploadFailureLeavesJobPending(t *testing.T) {
	f := &fakeTransport{uploadErr: &models.NetworkError{Op: "upload", Err: errors.New("connection refused")}}
	c := newTestController(f)

	ref, err := c.UploadFile(context.Background(), tempMediaFile(t))
	require.Error(t, err)
	assert.Nil(t, ref)

	snap := c.Snapshot()
	assert.NotEmpty(t, snap.Upload.Error)
	assert.False(t, snap.Upload.Uploading)
	assert.Equal(t, models.PhasePending, snap.Job.Phase)
	assert.Zero(t, f.submissions, "a failed upload must not submit a job")
	assert.Nil(t, c.poller, "a failed upload must not start polling")
}

func TestController_ProcessShortCircuitsOnUploadFailure(t *testing.T) {
	f := &fakeTransport{uploadErr: &models.NetworkError{Op: "upload", Err: errors.New("boom")}}
	c := newTestController(f)

	err := c.Process(context.Background(), tempMediaFile(t), models.DefaultTranscribeOptions())
	require.Error(t, err)
	assert.Zero(t, f.submissions)
}

func TestController_SubmitFailureTransitionsToFailed(t *testing.T) {
	f := &fakeTransport{submitErr: &models.ValidationError{Message: "unknown model size \"gigantic\""}}
	c := newTestController(f)

	err := c.Process(context.Background(), tempMediaFile(t), models.TranscribeOptions{ModelSize: "gigantic"})
	require.Error(t, err)

	snap := c.Snapshot()
	assert.Equal(t, models.PhaseFailed, snap.Job.Phase)
	assert.Equal(t, "unknown model size \"gigantic\"", snap.Job.Error)
	assert.Nil(t, c.poller, "a failed submission must start nothing")
}

func TestController_JobRunsToCompletion(t *testing.T) {
	f := &fakeTransport{
		statusFn: func(call int) (*transport.StatusSnapshot, error) {
			if call < 2 {
				return processingSnapshot("t1", float64(10*(call+1))), nil
			}
			return completedSnapshot("t1"), nil
		},
	}
	c := newTestController(f)

	require.NoError(t, c.Process(context.Background(), tempMediaFile(t), models.DefaultTranscribeOptions()))
	final := waitTerminal(t, c)

	assert.Equal(t, models.PhaseCompleted, final.Phase)
	assert.Equal(t, 100.0, final.Progress)
	require.NotNil(t, final.Result)
	assert.Equal(t, "merhaba dünya", final.Result.Text)

	// Resources retired on terminal
	c.mu.Lock()
	assert.Nil(t, c.poller)
	assert.Nil(t, c.listener)
	c.mu.Unlock()

	text, err := c.CopyText()
	require.NoError(t, err)
	assert.Equal(t, "merhaba dünya", text)

	data, err := c.DownloadArtifact(context.Background(), "txt")
	require.NoError(t, err)
	assert.Equal(t, "artifact:t1:txt", string(data))
}

func TestController_JobIDStableAcrossUpdates(t *testing.T) {
	f := &fakeTransport{jobID: "job-abc"}
	c := newTestController(f)

	require.NoError(t, c.Process(context.Background(), tempMediaFile(t), models.DefaultTranscribeOptions()))
	assert.Equal(t, "job-abc", c.Snapshot().Job.JobID)

	// Accepted updates carry the submission's job id; foreign ids are dropped
	c.applyUpdate(models.Update{JobID: "job-abc", Progress: models.ProgressValue(42)})
	assert.Equal(t, 42.0, c.Snapshot().Job.Progress)

	c.applyUpdate(models.Update{JobID: "other", Progress: models.ProgressValue(99)})
	snap := c.Snapshot()
	assert.Equal(t, "job-abc", snap.Job.JobID)
	assert.Equal(t, 42.0, snap.Job.Progress)

	c.Cancel()
}

func TestController_StalePushIgnoredAfterNewerPoll(t *testing.T) {
	f := &fakeTransport{}
	c := newTestController(f)

	require.NoError(t, c.Process(context.Background(), tempMediaFile(t), models.DefaultTranscribeOptions()))

	c.applyUpdate(models.Update{JobID: "t1", Progress: models.ProgressValue(10)})
	c.applyUpdate(models.Update{JobID: "t1", Progress: models.ProgressValue(5)})

	assert.Equal(t, 10.0, c.Snapshot().Job.Progress)
	c.Cancel()
}

func TestController_PushErrorAfterCompletionIgnored(t *testing.T) {
	f := &fakeTransport{
		statusFn: func(call int) (*transport.StatusSnapshot, error) {
			return completedSnapshot("t1"), nil
		},
	}
	c := newTestController(f)

	require.NoError(t, c.Process(context.Background(), tempMediaFile(t), models.DefaultTranscribeOptions()))
	final := waitTerminal(t, c)
	require.Equal(t, models.PhaseCompleted, final.Phase)

	// A late push error frame must not disturb the completed state
	c.applyUpdate(models.Update{JobID: "t1", Phase: models.PhaseFailed, Error: "socket dropped"})

	snap := c.Snapshot()
	assert.Equal(t, models.PhaseCompleted, snap.Job.Phase)
	require.NotNil(t, snap.Job.Result)
	assert.Empty(t, snap.Job.Error)
}

func TestController_CancelWhileProcessing(t *testing.T) {
	f := &fakeTransport{
		stream: newBlockingStream(),
		statusFn: func(call int) (*transport.StatusSnapshot, error) {
			return processingSnapshot("t1", 30), nil
		},
	}
	c := NewController(f, Options{
		PollInterval:    10 * time.Millisecond,
		MaxPollInterval: 20 * time.Millisecond,
	})

	require.NoError(t, c.Process(context.Background(), tempMediaFile(t), models.DefaultTranscribeOptions()))
	c.Cancel()

	snap := c.Snapshot()
	assert.Equal(t, models.PhaseFailed, snap.Job.Phase)
	assert.Equal(t, "cancelled by user", snap.Job.Error)

	c.mu.Lock()
	assert.Nil(t, c.poller, "polling must stop on cancel")
	assert.Nil(t, c.listener, "push channel must close on cancel")
	c.mu.Unlock()

	// A later-arriving in-flight poll result for the same job is discarded
	c.applyUpdate(models.Update{JobID: "t1", Phase: models.PhaseProcessing, Progress: models.ProgressValue(80)})
	assert.Equal(t, models.PhaseFailed, c.Snapshot().Job.Phase)
	assert.Equal(t, "cancelled by user", c.Snapshot().Job.Error)
}

func TestController_CancelDuringInflightSubmit(t *testing.T) {
	hold := make(chan struct{})
	f := &fakeTransport{submitHold: hold}
	c := newTestController(f)

	ref, err := c.UploadFile(context.Background(), tempMediaFile(t))
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() {
		errCh <- c.StartJob(context.Background(), ref, models.DefaultTranscribeOptions())
	}()
	require.Eventually(t, func() bool {
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.submissions == 1
	}, time.Second, time.Millisecond, "submission never went in flight")

	c.Cancel()
	close(hold)

	require.ErrorIs(t, <-errCh, models.ErrCancelled)

	snap := c.Snapshot()
	assert.Equal(t, models.PhaseFailed, snap.Job.Phase)
	assert.Equal(t, "cancelled by user", snap.Job.Error)
	assert.Empty(t, snap.Job.JobID, "the late ack must not be recorded")

	c.mu.Lock()
	assert.Nil(t, c.poller, "a cancelled session must not be polling")
	c.mu.Unlock()
	assert.Zero(t, f.statusCalls)
}

func TestController_ResetDuringInflightSubmit(t *testing.T) {
	hold := make(chan struct{})
	f := &fakeTransport{submitHold: hold}
	c := newTestController(f)

	ref, err := c.UploadFile(context.Background(), tempMediaFile(t))
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() {
		errCh <- c.StartJob(context.Background(), ref, models.DefaultTranscribeOptions())
	}()
	require.Eventually(t, func() bool {
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.submissions == 1
	}, time.Second, time.Millisecond, "submission never went in flight")

	c.Reset()
	close(hold)

	require.ErrorIs(t, <-errCh, models.ErrCancelled)

	// The late ack must not resurrect the discarded session
	fresh := newTestController(&fakeTransport{}).Snapshot()
	assert.Equal(t, fresh, c.Snapshot())

	c.mu.Lock()
	assert.Nil(t, c.poller, "a reset session must not be polling")
	c.mu.Unlock()
	assert.Zero(t, f.statusCalls)
}

func TestController_StartJobRejectedWhileUploading(t *testing.T) {
	hold := make(chan struct{})
	f := &fakeTransport{uploadHold: hold}
	c := newTestController(f)

	refCh := make(chan *UploadedRef, 1)
	go func() {
		ref, _ := c.UploadFile(context.Background(), tempMediaFile(t))
		refCh <- ref
	}()
	require.Eventually(t, func() bool {
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.uploads == 1
	}, time.Second, time.Millisecond, "upload never went in flight")

	err := c.StartJob(context.Background(), &UploadedRef{ID: "f1", Name: "clip.mp3"}, models.DefaultTranscribeOptions())
	assert.ErrorIs(t, err, models.ErrJobAlreadyRunning)
	assert.Zero(t, f.submissions)

	close(hold)
	require.NotNil(t, <-refCh)
}

func TestController_CancelIsIdempotent(t *testing.T) {
	f := &fakeTransport{statusFn: func(call int) (*transport.StatusSnapshot, error) {
		return processingSnapshot("t1", 30), nil
	}}
	c := newTestController(f)

	require.NoError(t, c.Process(context.Background(), tempMediaFile(t), models.DefaultTranscribeOptions()))
	c.Cancel()
	first := c.Snapshot()

	c.Cancel()
	assert.Equal(t, first, c.Snapshot())
}

func TestController_CancelWhilePendingIsNoOp(t *testing.T) {
	c := newTestController(&fakeTransport{})

	c.Cancel()

	snap := c.Snapshot()
	assert.Equal(t, models.PhasePending, snap.Job.Phase)
	assert.Empty(t, snap.Job.Error)
}

func TestController_ResetRestoresInitialState(t *testing.T) {
	f := &fakeTransport{statusFn: func(call int) (*transport.StatusSnapshot, error) {
		return completedSnapshot("t1"), nil
	}}
	c := newTestController(f)

	require.NoError(t, c.Process(context.Background(), tempMediaFile(t), models.DefaultTranscribeOptions()))
	waitTerminal(t, c)

	c.Reset()

	fresh := newTestController(&fakeTransport{}).Snapshot()
	assert.Equal(t, fresh, c.Snapshot())
}

func TestController_ResetThenProcessBehavesLikeFresh(t *testing.T) {
	f := &fakeTransport{statusFn: func(call int) (*transport.StatusSnapshot, error) {
		return completedSnapshot("t1"), nil
	}}
	c := newTestController(f)

	require.NoError(t, c.Process(context.Background(), tempMediaFile(t), models.DefaultTranscribeOptions()))
	waitTerminal(t, c)

	// Without a reset the finished session holds the controller
	err := c.Process(context.Background(), tempMediaFile(t), models.DefaultTranscribeOptions())
	require.ErrorIs(t, err, models.ErrJobAlreadyRunning)

	c.Reset()

	require.NoError(t, c.Process(context.Background(), tempMediaFile(t), models.DefaultTranscribeOptions()))
	final := waitTerminal(t, c)
	assert.Equal(t, models.PhaseCompleted, final.Phase)
	require.NotNil(t, final.Result)
}

func TestController_SecondJobRequiresReset(t *testing.T) {
	f := &fakeTransport{statusFn: func(call int) (*transport.StatusSnapshot, error) {
		return processingSnapshot("t1", 20), nil
	}}
	c := newTestController(f)

	require.NoError(t, c.Process(context.Background(), tempMediaFile(t), models.DefaultTranscribeOptions()))

	err := c.Process(context.Background(), tempMediaFile(t), models.DefaultTranscribeOptions())
	assert.ErrorIs(t, err, models.ErrJobAlreadyRunning)
	assert.Equal(t, 1, f.submissions)

	c.Cancel()
}

func TestController_DownloadWithoutResult(t *testing.T) {
	c := newTestController(&fakeTransport{})

	_, err := c.DownloadArtifact(context.Background(), "txt")
	assert.ErrorIs(t, err, models.ErrNoResult)

	_, err = c.CopyText()
	assert.ErrorIs(t, err, models.ErrNoResult)
}

func TestController_PushDialFailureFallsBackToPolling(t *testing.T) {
	f := &fakeTransport{
		dialErr: &models.NetworkError{Op: "push dial", Err: errors.New("ws refused")},
		statusFn: func(call int) (*transport.StatusSnapshot, error) {
			if call < 1 {
				return processingSnapshot("t1", 60), nil
			}
			return completedSnapshot("t1"), nil
		},
	}
	c := NewController(f, Options{
		PollInterval:    10 * time.Millisecond,
		MaxPollInterval: 20 * time.Millisecond,
	})

	require.NoError(t, c.Process(context.Background(), tempMediaFile(t), models.DefaultTranscribeOptions()))
	final := waitTerminal(t, c)

	assert.Equal(t, models.PhaseCompleted, final.Phase)
	require.NotNil(t, final.Result)
}

func TestController_UploadProgressIsMonotonic(t *testing.T) {
	var seen []float64
	var mu sync.Mutex

	f := &fakeTransport{statusFn: func(call int) (*transport.StatusSnapshot, error) {
		return completedSnapshot("t1"), nil
	}}
	c := NewController(f, Options{
		PollInterval:    10 * time.Millisecond,
		MaxPollInterval: 20 * time.Millisecond,
		DisablePush:     true,
		OnChange: func(snap Snapshot) {
			mu.Lock()
			seen = append(seen, snap.Upload.Progress)
			mu.Unlock()
		},
	})

	require.NoError(t, c.Process(context.Background(), tempMediaFile(t), models.DefaultTranscribeOptions()))
	waitTerminal(t, c)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, seen)
	for i := 1; i < len(seen); i++ {
		assert.GreaterOrEqual(t, seen[i], seen[i-1])
	}
	assert.Equal(t, 100.0, seen[len(seen)-1])
}

func TestController_NotifierSlotLifecycle(t *testing.T) {
	n := &recordingNotifier{}
	f := &fakeTransport{statusFn: func(call int) (*transport.StatusSnapshot, error) {
		return completedSnapshot("t1"), nil
	}}
	c := NewController(f, Options{
		PollInterval:    10 * time.Millisecond,
		MaxPollInterval: 20 * time.Millisecond,
		DisablePush:     true,
		Notifier:        n,
	})

	require.NoError(t, c.Process(context.Background(), tempMediaFile(t), models.DefaultTranscribeOptions()))
	waitTerminal(t, c)

	n.mu.Lock()
	defer n.mu.Unlock()
	// upload slot + job slot, both retired
	assert.Equal(t, 2, n.begins)
	assert.Equal(t, 2, n.ends)
}

type recordingNotifier struct {
	mu     sync.Mutex
	begins int
	ends   int
}

func (n *recordingNotifier) Begin(id, message string) {
	n.mu.Lock()
	n.begins++
	n.mu.Unlock()
}

func (n *recordingNotifier) Progress(id, message string, percent float64) {}

func (n *recordingNotifier) End(id string) {
	n.mu.Lock()
	n.ends++
	n.mu.Unlock()
}
