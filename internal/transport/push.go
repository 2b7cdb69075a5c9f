package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/1lker/turkish-transcribe/internal/models"
)

// pushFrame is the wire shape of one push-channel message
type pushFrame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// PushChannel is a job-scoped WebSocket delivering out-of-band updates.
// It is best-effort: the session stays correct on polling alone.
type PushChannel struct {
	conn      *websocket.Conn
	jobID     string
	closeOnce sync.Once
	closeErr  error
}

// OpenPushChannel dials the job-scoped update socket
func (c *Client) OpenPushChannel(ctx context.Context, jobID string) (*PushChannel, error) {
	endpoint := fmt.Sprintf("%s/ws/%s", httpToWS(c.baseURL), url.PathEscape(jobID))

	conn, resp, err := c.dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return nil, &models.NetworkError{Op: "push dial", Err: err}
	}
	if resp != nil {
		resp.Body.Close()
	}
	return &PushChannel{conn: conn, jobID: jobID}, nil
}

// ReadUpdate blocks until the next translatable frame arrives and returns it
// in the common update shape. Unknown frame types are skipped.
func (ch *PushChannel) ReadUpdate() (models.Update, error) {
	for {
		var frame pushFrame
		if err := ch.conn.ReadJSON(&frame); err != nil {
			return models.Update{}, &models.NetworkError{Op: "push read", Err: err}
		}

		update, ok := ch.translate(frame)
		if ok {
			return update, nil
		}
	}
}

// Close tears the socket down. Safe to call more than once.
func (ch *PushChannel) Close() error {
	ch.closeOnce.Do(func() {
		ch.closeErr = ch.conn.Close()
	})
	return ch.closeErr
}

// translate maps one heterogeneous push frame onto the update shape consumed
// by the session controller.
func (ch *PushChannel) translate(frame pushFrame) (models.Update, bool) {
	switch frame.Type {
	case "progress":
		var data struct {
			Progress *float64 `json:"progress"`
			Stage    string   `json:"stage"`
			Message  string   `json:"message"`
		}
		if err := json.Unmarshal(frame.Data, &data); err != nil {
			return models.Update{}, false
		}
		update := models.Update{JobID: ch.jobID, Stage: data.Stage, Message: data.Message}
		if data.Progress != nil {
			update.Progress = models.ProgressValue(clampPercent(*data.Progress))
		}
		return update, true

	case "status":
		var task taskResponse
		if err := json.Unmarshal(frame.Data, &task); err != nil {
			return models.Update{}, false
		}
		snap := task.toSnapshot(ch.jobID)
		update := models.Update{
			JobID:   snap.JobID,
			Phase:   snap.Phase,
			Stage:   snap.Stage,
			Message: snap.Message,
			Result:  snap.Result,
			Error:   snap.Error,
		}
		if snap.HasProgress {
			update.Progress = models.ProgressValue(snap.Progress)
		}
		return update, true

	case "result":
		var result models.JobResult
		if err := json.Unmarshal(frame.Data, &result); err != nil {
			return models.Update{}, false
		}
		return models.Update{
			JobID:    ch.jobID,
			Phase:    models.PhaseCompleted,
			Progress: models.ProgressValue(100),
			Result:   &result,
		}, true

	case "error":
		var data struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		if err := json.Unmarshal(frame.Data, &data); err != nil {
			return models.Update{}, false
		}
		msg := data.Error
		if msg == "" {
			msg = data.Message
		}
		if msg == "" {
			msg = "transcription failed"
		}
		return models.Update{JobID: ch.jobID, Phase: models.PhaseFailed, Error: msg}, true
	}

	return models.Update{}, false
}

func httpToWS(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://")
	default:
		return base
	}
}
