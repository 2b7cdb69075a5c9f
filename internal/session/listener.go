package session

import (
	"log"
	"sync"
	"sync/atomic"

	"github.com/1lker/turkish-transcribe/internal/models"
)

// listener drains a push-update stream into the controller. It is strictly
// best-effort: any stream failure is logged and swallowed, and the session
// stays correct on polling alone. No reconnect.
type listener struct {
	stream   UpdateStream
	onUpdate func(models.Update)

	stopOnce sync.Once
	stopped  atomic.Bool
}

func startListener(stream UpdateStream, onUpdate func(models.Update)) *listener {
	l := &listener{stream: stream, onUpdate: onUpdate}
	go l.run()
	return l
}

// Stop closes the underlying stream, which unblocks the read loop. Safe to
// call more than once.
func (l *listener) Stop() {
	l.stopOnce.Do(func() {
		l.stopped.Store(true)
		if err := l.stream.Close(); err != nil {
			log.Printf("[DEBUG] Closing push channel: %v", err)
		}
	})
}

func (l *listener) run() {
	for {
		update, err := l.stream.ReadUpdate()
		if err != nil {
			if !l.stopped.Load() {
				log.Printf("[DEBUG] Push channel dropped, continuing on polling: %v", err)
			}
			return
		}
		if l.stopped.Load() {
			return
		}
		l.onUpdate(update)
	}
}
