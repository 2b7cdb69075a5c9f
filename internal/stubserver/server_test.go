package stubserver

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1lker/turkish-transcribe/internal/models"
	"github.com/1lker/turkish-transcribe/internal/session"
	"github.com/1lker/turkish-transcribe/internal/transport"
)

func startStub(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(New(Options{StepDelay: 10 * time.Millisecond, StepProgress: 40}).Handler())
	t.Cleanup(server.Close)
	return server
}

func stubClient(serverURL string) *transport.Client {
	return transport.NewClient(transport.Config{
		BaseURL:         serverURL,
		UploadTimeout:   5 * time.Second,
		StatusTimeout:   2 * time.Second,
		StatusRateLimit: 1000,
	})
}

func mediaFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "demo.mp3")
	require.NoError(t, os.WriteFile(path, []byte("fake media bytes"), 0o644))
	return path
}

func TestStub_UploadAndSubmit(t *testing.T) {
	server := startStub(t)
	client := stubClient(server.URL)
	ctx := context.Background()

	uploaded, err := client.Upload(ctx, mediaFile(t), nil)
	require.NoError(t, err)
	assert.Equal(t, "demo.mp3", uploaded.Name)
	assert.NotEmpty(t, uploaded.ID)

	ack, err := client.SubmitJob(ctx, uploaded.ID, models.DefaultTranscribeOptions())
	require.NoError(t, err)
	assert.NotEmpty(t, ack.JobID)
	assert.Equal(t, models.PhaseProcessing, ack.Phase)
}

func TestStub_RejectsBadOptions(t *testing.T) {
	server := startStub(t)
	client := stubClient(server.URL)
	ctx := context.Background()

	uploaded, err := client.Upload(ctx, mediaFile(t), nil)
	require.NoError(t, err)

	_, err = client.SubmitJob(ctx, uploaded.ID, models.TranscribeOptions{ModelSize: "gigantic"})
	var vErr *models.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Contains(t, vErr.Message, "gigantic")
}

func TestStub_SubmitUnknownFile(t *testing.T) {
	server := startStub(t)

	_, err := stubClient(server.URL).SubmitJob(context.Background(), "missing", models.DefaultTranscribeOptions())
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestStub_StatusUnknownTask(t *testing.T) {
	server := startStub(t)

	_, err := stubClient(server.URL).FetchStatus(context.Background(), "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestStub_DownloadBeforeCompletion(t *testing.T) {
	server := startStub(t)
	client := stubClient(server.URL)
	ctx := context.Background()

	uploaded, err := client.Upload(ctx, mediaFile(t), nil)
	require.NoError(t, err)
	ack, err := client.SubmitJob(ctx, uploaded.ID, models.DefaultTranscribeOptions())
	require.NoError(t, err)

	_, err = client.FetchArtifact(ctx, ack.JobID, "txt")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

// TestStub_FullSessionFlow runs the whole client stack (controller, polling
// loop, push channel, transport) against the stub.
func TestStub_FullSessionFlow(t *testing.T) {
	server := startStub(t)

	controller := session.NewController(session.WrapClient(stubClient(server.URL)), session.Options{
		PollInterval:    10 * time.Millisecond,
		MaxPollInterval: 20 * time.Millisecond,
	})
	defer controller.Reset()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, controller.Process(ctx, mediaFile(t), models.DefaultTranscribeOptions()))

	final, err := controller.Wait(ctx)
	require.NoError(t, err)

	assert.Equal(t, models.PhaseCompleted, final.Phase)
	assert.Equal(t, 100.0, final.Progress)
	require.NotNil(t, final.Result)
	assert.Contains(t, final.Result.Text, "demo.mp3")
	assert.NotEmpty(t, final.Result.Segments)

	text, err := controller.CopyText()
	require.NoError(t, err)
	assert.Equal(t, final.Result.Text, text)

	for _, format := range []string{"txt", "srt", "json"} {
		data, err := controller.DownloadArtifact(ctx, format)
		require.NoError(t, err, "format %s", format)
		assert.NotEmpty(t, data)
	}
}

func TestStub_PushChannelDeliversTerminalFrame(t *testing.T) {
	server := startStub(t)
	client := stubClient(server.URL)
	ctx := context.Background()

	uploaded, err := client.Upload(ctx, mediaFile(t), nil)
	require.NoError(t, err)
	ack, err := client.SubmitJob(ctx, uploaded.ID, models.DefaultTranscribeOptions())
	require.NoError(t, err)

	ch, err := client.OpenPushChannel(ctx, ack.JobID)
	require.NoError(t, err)
	defer ch.Close()

	deadline := time.After(5 * time.Second)
	for {
		select {
		case <-deadline:
			t.Fatal("push channel never delivered a terminal frame")
		default:
		}

		update, err := ch.ReadUpdate()
		require.NoError(t, err)
		if update.Phase.IsTerminal() {
			assert.Equal(t, models.PhaseCompleted, update.Phase)
			require.NotNil(t, update.Result)
			return
		}
	}
}
