package models

// Phase represents the coarse lifecycle state of a transcription job
type Phase string

const (
	PhasePending    Phase = "pending"
	PhaseUploading  Phase = "uploading"
	PhaseProcessing Phase = "processing"
	PhaseCompleted  Phase = "completed"
	PhaseFailed     Phase = "failed"
)

// phaseRank orders phases for reconciliation. Both terminal phases share the
// top rank so neither can displace the other.
var phaseRank = map[Phase]int{
	PhasePending:    0,
	PhaseUploading:  1,
	PhaseProcessing: 2,
	PhaseCompleted:  3,
	PhaseFailed:     3,
}

// Rank returns the position of the phase in the lifecycle ordering
func (p Phase) Rank() int {
	return phaseRank[p]
}

// IsTerminal checks if the phase is a final state
func (p Phase) IsTerminal() bool {
	return p == PhaseCompleted || p == PhaseFailed
}

// ParsePhase maps a remote status string onto a Phase. The backend reports a
// few statuses we do not model discretely (queued, in_progress); anything
// still running collapses into Processing.
func ParsePhase(status string) Phase {
	switch status {
	case "pending":
		return PhasePending
	case "uploading":
		return PhaseUploading
	case "completed", "done", "success":
		return PhaseCompleted
	case "failed", "error", "cancelled":
		return PhaseFailed
	default:
		return PhaseProcessing
	}
}

// UploadState tracks the file transfer leg of a session
type UploadState struct {
	File      string  `json:"file,omitempty"` // local path of the selected file
	Uploading bool    `json:"uploading"`
	Progress  float64 `json:"progress"` // 0..100
	Error     string  `json:"error,omitempty"`
}

// JobState is the authoritative state of one transcription job
type JobState struct {
	JobID    string     `json:"job_id,omitempty"`
	Phase    Phase      `json:"phase"`
	Progress float64    `json:"progress"` // 0..100
	Stage    string     `json:"stage,omitempty"`
	Message  string     `json:"message,omitempty"`
	Result   *JobResult `json:"result,omitempty"`
	Error    string     `json:"error,omitempty"`
}

// NewJobState returns the initial state for a fresh session
func NewJobState() JobState {
	return JobState{Phase: PhasePending}
}

// Update is one state fragment produced by either update source (polling or
// push). Zero-valued fields mean "unchanged"; Progress is nil when the source
// reported no percentage at all.
type Update struct {
	JobID    string
	Phase    Phase
	Progress *float64
	Stage    string
	Message  string
	Result   *JobResult
	Error    string
}

// ProgressValue is a convenience for building progress updates
func ProgressValue(v float64) *float64 {
	return &v
}

// TranscribeOptions are the user-selectable job parameters sent on submission
type TranscribeOptions struct {
	ModelSize      string  `json:"model_size"`
	Language       string  `json:"language,omitempty"`
	Device         string  `json:"device,omitempty"`
	ApplyVAD       bool    `json:"apply_vad"`
	NormalizeAudio bool    `json:"normalize_audio"`
	OutputFormat   string  `json:"output_format,omitempty"`
	InitialPrompt  string  `json:"initial_prompt,omitempty"`
	Temperature    float64 `json:"temperature"`
}

// DefaultTranscribeOptions returns the options used when the caller sets none
func DefaultTranscribeOptions() TranscribeOptions {
	return TranscribeOptions{
		ModelSize:    "base",
		Language:     "tr",
		Device:       "auto",
		ApplyVAD:     true,
		OutputFormat: "txt",
	}
}
