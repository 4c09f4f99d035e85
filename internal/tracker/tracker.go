// Package tracker implements in-memory admission control for container
// launches, enforcing per-configuration concurrency limits.
package tracker

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Tracker maps a configuration name to the identifiers of its currently
// running instances. It is safe for concurrent use; the check-and-append in
// TryAdmit happens under a single lock so two racing requests can never both
// claim the last free slot.
type Tracker struct {
	mu        sync.Mutex
	instances map[string][]string
	logger    *logrus.Logger
}

// NewTracker creates a new launch tracker
func NewTracker(logger *logrus.Logger) *Tracker {
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.InfoLevel)
	}

	return &Tracker{
		instances: make(map[string][]string),
		logger:    logger,
	}
}

// TryAdmit records instance under name if fewer than limit instances are
// currently tracked for it, and reports whether the launch was admitted.
// A rejected attempt does not mutate any state.
func (t *Tracker) TryAdmit(name, instance string, limit int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	running := t.instances[name]
	if len(running) >= limit {
		return false
	}

	t.instances[name] = append(running, instance)
	t.logger.WithFields(logrus.Fields{
		"config":   name,
		"instance": instance,
		"active":   len(running) + 1,
	}).Debug("Admitted instance")

	return true
}

// Release removes instance from the bucket for name. Releasing an instance
// that was never admitted is a no-op.
func (t *Tracker) Release(name, instance string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	running := t.instances[name]
	for i, id := range running {
		if id == instance {
			t.instances[name] = append(running[:i], running[i+1:]...)
			t.logger.WithFields(logrus.Fields{
				"config":   name,
				"instance": instance,
				"active":   len(running) - 1,
			}).Debug("Released instance")
			return
		}
	}
}

// Active returns the number of instances currently tracked for name
func (t *Tracker) Active(name string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.instances[name])
}
