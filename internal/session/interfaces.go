package session

import (
	"context"

	"github.com/1lker/turkish-transcribe/internal/models"
	"github.com/1lker/turkish-transcribe/internal/transport"
)

// UpdateStream is a best-effort push source of job updates
type UpdateStream interface {
	ReadUpdate() (models.Update, error)
	Close() error
}

// Transport is the slice of the API client the session controller depends on
type Transport interface {
	Upload(ctx context.Context, path string, onProgress transport.ProgressFunc) (*transport.UploadedFile, error)
	SubmitJob(ctx context.Context, fileID string, opts models.TranscribeOptions) (*transport.SubmitAck, error)
	FetchStatus(ctx context.Context, jobID string) (*transport.StatusSnapshot, error)
	OpenPushChannel(ctx context.Context, jobID string) (UpdateStream, error)
	FetchArtifact(ctx context.Context, jobID, format string) ([]byte, error)
}

// StatusFetcher is the single-read dependency of the polling loop
type StatusFetcher interface {
	FetchStatus(ctx context.Context, jobID string) (*transport.StatusSnapshot, error)
}

// clientTransport adapts the concrete HTTP client to the Transport interface
type clientTransport struct {
	*transport.Client
}

func (t clientTransport) OpenPushChannel(ctx context.Context, jobID string) (UpdateStream, error) {
	ch, err := t.Client.OpenPushChannel(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return ch, nil
}

// WrapClient exposes a transport.Client as the controller's Transport
func WrapClient(c *transport.Client) Transport {
	return clientTransport{c}
}
