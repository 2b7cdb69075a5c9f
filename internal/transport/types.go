package transport

import "github.com/1lker/turkish-transcribe/internal/models"

// taskResponse is the wire shape of GET /task/{id}
type taskResponse struct {
	TaskID   string            `json:"task_id"`
	Status   string            `json:"status"`
	Progress *float64          `json:"progress,omitempty"`
	Stage    string            `json:"stage,omitempty"`
	Message  string            `json:"message,omitempty"`
	Error    string            `json:"error,omitempty"`
	Result   *models.JobResult `json:"result,omitempty"`
}

// toSnapshot converts the wire shape into the session's status model
func (t *taskResponse) toSnapshot(jobID string) *StatusSnapshot {
	if t.TaskID == "" {
		t.TaskID = jobID
	}

	snap := &StatusSnapshot{
		JobState: models.JobState{
			JobID:   t.TaskID,
			Phase:   models.ParsePhase(t.Status),
			Stage:   t.Stage,
			Message: t.Message,
			Result:  t.Result,
			Error:   t.Error,
		},
	}
	if t.Progress != nil {
		snap.Progress = clampPercent(*t.Progress)
		snap.HasProgress = true
	}
	if snap.Phase == models.PhaseCompleted {
		snap.Progress = 100
		snap.HasProgress = true
	}
	return snap
}

func clampPercent(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
