package session

import (
	"context"
	"errors"
	"log"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/1lker/turkish-transcribe/internal/models"
	"github.com/1lker/turkish-transcribe/internal/transport"
)

// poller repeatedly fetches job status at a fixed interval until a terminal
// phase or an explicit stop. Transport errors do not stop it: the interval
// doubles once and stays capped so a degraded backend is not hammered.
type poller struct {
	fetch    StatusFetcher
	jobID    string
	base     time.Duration
	max      time.Duration
	onUpdate func(models.Update)

	stopOnce  sync.Once
	stopChan  chan struct{}
	stopped   atomic.Bool
	synthetic float64
}

// startPoller launches the polling loop in its own goroutine and returns its
// stop handle.
func startPoller(fetch StatusFetcher, jobID string, base, max time.Duration, onUpdate func(models.Update)) *poller {
	if base <= 0 {
		base = 2 * time.Second
	}
	if max < base {
		max = 2 * base
	}

	p := &poller{
		fetch:    fetch,
		jobID:    jobID,
		base:     base,
		max:      max,
		onUpdate: onUpdate,
		stopChan: make(chan struct{}),
	}
	go p.run()
	return p
}

// Stop halts all future scheduling. An in-flight request may still complete
// but its result is discarded, so a stale update can never resurrect a
// cancelled session. Safe to call more than once.
func (p *poller) Stop() {
	p.stopOnce.Do(func() {
		p.stopped.Store(true)
		close(p.stopChan)
	})
}

func (p *poller) run() {
	interval := p.base
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-p.stopChan:
			return
		case <-timer.C:
		}

		snap, err := p.fetch.FetchStatus(context.Background(), p.jobID)

		// Discard results that resolved after Stop
		if p.stopped.Load() {
			return
		}

		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				p.onUpdate(models.Update{
					JobID: p.jobID,
					Phase: models.PhaseFailed,
					Error: "job not found on server",
				})
				return
			}
			if errors.Is(err, models.ErrCancelled) {
				return
			}
			// Transient: back off and keep trying. The remote job may still
			// be running, so the loop never gives up on its own.
			interval = interval * 2
			if interval > p.max {
				interval = p.max
			}
			log.Printf("[DEBUG] Poll for job %s failed, retrying in %s: %v", p.jobID, interval, err)
			timer.Reset(interval)
			continue
		}

		interval = p.base
		p.onUpdate(p.updateFor(snap))

		if snap.Phase.IsTerminal() {
			return
		}
		timer.Reset(interval)
	}
}

// updateFor converts a status snapshot into the common update shape
func (p *poller) updateFor(snap *transport.StatusSnapshot) models.Update {
	update := models.Update{
		JobID:   snap.JobID,
		Phase:   snap.Phase,
		Stage:   snap.Stage,
		Message: snap.Message,
		Result:  snap.Result,
		Error:   snap.Error,
	}

	switch {
	case snap.HasProgress:
		p.synthetic = snap.Progress
		update.Progress = models.ProgressValue(snap.Progress)
	case snap.Phase == models.PhaseProcessing:
		update.Progress = models.ProgressValue(p.fallbackProgress())
	}
	return update
}

// fallbackProgress is a cosmetic ramp used only while the backend reports no
// percentage of its own. It creeps toward 90 and stops there, so a real
// report or the terminal transition always finishes the bar.
func (p *poller) fallbackProgress() float64 {
	p.synthetic += 3 + rand.Float64()*7
	if p.synthetic > 90 {
		p.synthetic = 90
	}
	return p.synthetic
}
