// Package discovery drives the per-controller 1 Hz discovery tick
// (spec.md §4.4.3) on top of a seconds-resolution cron scheduler, the
// same library the teacher's engine.Scheduler wraps for flow triggers.
package discovery

import (
	"sync"

	"github.com/robfig/cron/v3"
)

// Ticker delivers one tick per second on C while running. Start/Stop
// are idempotent and safe to call repeatedly from the owning
// controller's goroutine on every transition into or out of Discovery
// — only that goroutine ever calls them, so no locking is strictly
// required, but Ticker stays defensive since a future caller shape may
// change that.
type Ticker struct {
	mu      sync.Mutex
	cron    *cron.Cron
	entryID cron.EntryID
	running bool

	C chan struct{}
}

// NewTicker returns a stopped Ticker.
func NewTicker() *Ticker {
	return &Ticker{
		cron: cron.New(cron.WithSeconds()),
		C:    make(chan struct{}, 1),
	}
}

// Start begins delivering ticks every second. A no-op if already running.
func (t *Ticker) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return
	}
	id, err := t.cron.AddFunc("@every 1s", func() {
		select {
		case t.C <- struct{}{}:
		default:
		}
	})
	if err != nil {
		return
	}
	t.entryID = id
	t.cron.Start()
	t.running = true
}

// Stop halts tick delivery. A no-op if already stopped. The
// underlying cron scheduler does not support re-adding an entry after
// Stop, so Stop replaces it with a fresh instance ready for the next
// Start.
func (t *Ticker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.running {
		return
	}
	t.cron.Remove(t.entryID)
	ctx := t.cron.Stop()
	<-ctx.Done()
	t.cron = cron.New(cron.WithSeconds())
	t.running = false
}
