package session

import "github.com/1lker/turkish-transcribe/internal/models"

// Reconcile merges one update into the current job state. It is the single
// ordering rule applied to the serialized stream of poll and push updates,
// whatever interleaving they arrive in:
//
//   - a terminal phase is sticky: once Completed or Failed, every later
//     update is ignored
//   - a phase earlier than the current one (Pending < Uploading < Processing
//     < Completed/Failed) is dropped
//   - within the same phase, progress never regresses
//   - entering a later phase resets the progress floor (Uploading 100% ->
//     Processing 0% is legal)
//
// Pure function: no clocks, no channels, no knowledge of which source
// produced the update.
func Reconcile(current models.JobState, update models.Update) models.JobState {
	if current.Phase.IsTerminal() {
		return current
	}
	if update.JobID != "" && current.JobID != "" && update.JobID != current.JobID {
		return current
	}

	phase := update.Phase
	if phase == "" {
		phase = current.Phase
	}
	if phase.Rank() < current.Phase.Rank() {
		return current
	}

	next := current
	if next.JobID == "" {
		next.JobID = update.JobID
	}

	advancing := phase != current.Phase
	if advancing {
		next.Phase = phase
		next.Progress = 0
	}

	if update.Progress != nil {
		p := *update.Progress
		if p < 0 {
			p = 0
		}
		if p > 100 {
			p = 100
		}
		if p >= next.Progress {
			next.Progress = p
		}
	}
	if update.Stage != "" {
		next.Stage = update.Stage
	}
	if update.Message != "" {
		next.Message = update.Message
	}

	switch next.Phase {
	case models.PhaseCompleted:
		// Completed without a result would violate the result invariant;
		// drop the fragment and wait for the source that carries it.
		if update.Result == nil {
			return current
		}
		next.Result = update.Result
		next.Progress = 100
	case models.PhaseFailed:
		next.Error = update.Error
		if next.Error == "" {
			next.Error = "transcription failed"
		}
	}

	return next
}
