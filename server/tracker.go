// server/tracker.go
package server

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// RunTracker tracks in-flight agent runs and reports the ones that have been
// running longer than a threshold.
type RunTracker struct {
	mu         sync.Mutex
	runs       map[uint64]trackedRun
	next       uint64
	stuckAfter time.Duration
	logger     logrus.FieldLogger
	done       chan struct{}
	closeOnce  sync.Once
}

type trackedRun struct {
	label   string
	created time.Time
}

// NewRunTracker starts a tracker that checks every interval.
func NewRunTracker(stuckAfter, interval time.Duration, logger logrus.FieldLogger) *RunTracker {
	t := &RunTracker{
		runs:       make(map[uint64]trackedRun),
		stuckAfter: stuckAfter,
		logger:     logger,
		done:       make(chan struct{}),
	}

	go t.monitor(interval)
	return t
}

// Track starts tracking a run
func (t *RunTracker) Track(label string) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.next++
	t.runs[t.next] = trackedRun{label: label, created: time.Now()}
	return t.next
}

// Done marks a run as completed
func (t *RunTracker) Done(id uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.runs, id)
}

// InFlight returns the number of tracked runs.
func (t *RunTracker) InFlight() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.runs)
}

func (t *RunTracker) monitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.Stuck()
		case <-t.done:
			return
		}
	}
}

// Stuck logs and counts runs older than the threshold.
func (t *RunTracker) Stuck() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	n := 0
	for id, r := range t.runs {
		if age := now.Sub(r.created); age > t.stuckAfter {
			n++
			t.logger.WithFields(logrus.Fields{
				"id":       id,
				"endpoint": r.label,
				"age":      age.Round(time.Second).String(),
			}).Warn("run is still in flight")
		}
	}
	return n
}

// Close stops the monitor
func (t *RunTracker) Close() error {
	t.closeOnce.Do(func() { close(t.done) })
	return nil
}
