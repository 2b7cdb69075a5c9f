package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/1lker/turkish-transcribe/internal/models"
)

// Client handles communication with the transcription service
type Client struct {
	httpClient    *http.Client
	dialer        *websocket.Dialer
	baseURL       string
	userAgent     string
	uploadTimeout time.Duration
	statusTimeout time.Duration
	limiter       *rate.Limiter
}

// Config holds configuration for the transcription service client
type Config struct {
	BaseURL         string
	UserAgent       string
	UploadTimeout   time.Duration // long: uploads of large media may take minutes
	StatusTimeout   time.Duration // short: per status-fetch attempt
	StatusRateLimit rate.Limit    // ceiling on status fetches per second (0 = default)
}

// NewClient creates a new transcription service client
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:8000"
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "turkish-transcribe/1.0"
	}
	if cfg.UploadTimeout == 0 {
		cfg.UploadTimeout = 10 * time.Minute
	}
	if cfg.StatusTimeout == 0 {
		cfg.StatusTimeout = 10 * time.Second
	}
	if cfg.StatusRateLimit == 0 {
		cfg.StatusRateLimit = 5
	}

	return &Client{
		// No global client timeout: each operation carries its own deadline
		httpClient:    &http.Client{},
		dialer:        websocket.DefaultDialer,
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		userAgent:     cfg.UserAgent,
		uploadTimeout: cfg.UploadTimeout,
		statusTimeout: cfg.StatusTimeout,
		limiter:       rate.NewLimiter(cfg.StatusRateLimit, 1),
	}
}

// ProgressFunc is called during upload to report transfer progress in [0,100]
type ProgressFunc func(percent float64)

// UploadedFile identifies a file accepted by the backend
type UploadedFile struct {
	ID   string `json:"file_id"`
	Name string `json:"filename"`
	Size int64  `json:"size"`
}

// SubmitAck is the backend's response to a job submission
type SubmitAck struct {
	JobID string
	Phase models.Phase
}

// StatusSnapshot is one point-in-time read of a job. HasProgress records
// whether the backend reported a real percentage (some workers never do).
type StatusSnapshot struct {
	models.JobState
	HasProgress bool
}

// Upload streams a local file to the backend as multipart form data,
// reporting monotonic transfer progress through onProgress. Cancellation is
// the caller's context: cancelling it aborts the transfer and releases the
// connection; cancelling after completion is a no-op.
func (c *Client) Upload(ctx context.Context, path string, onProgress ProgressFunc) (*UploadedFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.uploadTimeout)
	defer cancel()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		part, err := mw.CreateFormFile("file", filepath.Base(path))
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		src := &progressReader{r: f, total: info.Size(), report: onProgress}
		if _, err := io.Copy(part, src); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(mw.Close())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload", pr)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.mapErr(ctx, "upload", err)
	}
	defer resp.Body.Close()

	if err := c.checkStatus("upload", resp); err != nil {
		return nil, err
	}

	var uploaded UploadedFile
	if err := json.NewDecoder(resp.Body).Decode(&uploaded); err != nil {
		return nil, fmt.Errorf("decoding upload response: %w", err)
	}
	if onProgress != nil {
		onProgress(100)
	}
	return &uploaded, nil
}

// SubmitJob asks the backend to transcribe a previously uploaded file
func (c *Client) SubmitJob(ctx context.Context, fileID string, opts models.TranscribeOptions) (*SubmitAck, error) {
	body, err := json.Marshal(opts)
	if err != nil {
		return nil, fmt.Errorf("encoding options: %w", err)
	}

	endpoint := fmt.Sprintf("%s/transcribe/%s", c.baseURL, url.PathEscape(fileID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.mapErr(ctx, "submit", err)
	}
	defer resp.Body.Close()

	if err := c.checkStatus("submit", resp); err != nil {
		return nil, err
	}

	var ack struct {
		TaskID string `json:"task_id"`
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
		return nil, fmt.Errorf("decoding submit response: %w", err)
	}
	return &SubmitAck{JobID: ack.TaskID, Phase: models.ParsePhase(ack.Status)}, nil
}

// FetchStatus performs a single point-in-time read of a job's status. Calls
// are rate limited so a tight polling loop cannot hammer a degraded backend.
func (c *Client) FetchStatus(ctx context.Context, jobID string) (*StatusSnapshot, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, c.mapErr(ctx, "status", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.statusTimeout)
	defer cancel()

	endpoint := fmt.Sprintf("%s/task/%s", c.baseURL, url.PathEscape(jobID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.mapErr(ctx, "status", err)
	}
	defer resp.Body.Close()

	if err := c.checkStatus("status", resp); err != nil {
		return nil, err
	}

	var task taskResponse
	if err := json.NewDecoder(resp.Body).Decode(&task); err != nil {
		return nil, fmt.Errorf("decoding status response: %w", err)
	}
	return task.toSnapshot(jobID), nil
}

// FetchArtifact downloads a rendered transcript (txt, srt or json) for a
// completed job.
func (c *Client) FetchArtifact(ctx context.Context, jobID, format string) ([]byte, error) {
	endpoint := fmt.Sprintf("%s/task/%s/download/%s", c.baseURL, url.PathEscape(jobID), url.PathEscape(format))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.mapErr(ctx, "artifact", err)
	}
	defer resp.Body.Close()

	if err := c.checkStatus("artifact", resp); err != nil {
		return nil, err
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &models.NetworkError{Op: "artifact", Err: err}
	}
	return data, nil
}

// checkStatus maps non-2xx responses onto the error taxonomy
func (c *Client) checkStatus(op string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	var body struct {
		Detail string `json:"detail"`
	}
	_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&body)
	if body.Detail == "" {
		body.Detail = fmt.Sprintf("%s failed with status %d", op, resp.StatusCode)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s: %s: %w", op, body.Detail, models.ErrNotFound)
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return &models.ValidationError{Message: body.Detail}
	default:
		log.Printf("[ERROR] Transcription API returned status %d for %s", resp.StatusCode, op)
		return &models.NetworkError{Op: op, Err: fmt.Errorf("server status %d: %s", resp.StatusCode, body.Detail)}
	}
}

// mapErr classifies request-level failures (the request never produced a
// usable response).
func (c *Client) mapErr(ctx context.Context, op string, err error) error {
	switch {
	case errors.Is(err, context.Canceled) || ctx.Err() == context.Canceled:
		return fmt.Errorf("%s: %w", op, models.ErrCancelled)
	case errors.Is(err, context.DeadlineExceeded):
		return &models.TimeoutError{Op: op, Err: err}
	default:
		var ue *url.Error
		if errors.As(err, &ue) && ue.Timeout() {
			return &models.TimeoutError{Op: op, Err: err}
		}
		return &models.NetworkError{Op: op, Err: err}
	}
}

// progressReader reports bytes sent as a monotonic percentage of the total
type progressReader struct {
	r      io.Reader
	total  int64
	sent   int64
	last   float64
	report ProgressFunc
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.sent += int64(n)
	if p.report != nil && p.total > 0 {
		pct := float64(p.sent) * 100 / float64(p.total)
		if pct > 100 {
			pct = 100
		}
		if pct > p.last {
			p.last = pct
			p.report(pct)
		}
	}
	return n, err
}
