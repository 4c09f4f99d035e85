// Package kick orchestrates a single container launch: pull the image,
// admit the instance against the entry's concurrency limit, then run,
// release, and clean up in the background.
package kick

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/sytexa-julia/docker-kicker/internal/config"
	"github.com/sytexa-julia/docker-kicker/internal/runtime"
	"github.com/sytexa-julia/docker-kicker/internal/tracker"
)

// ErrLimitReached is returned when an entry already has its maximum number
// of instances running
var ErrLimitReached = errors.New("concurrency limit reached")

// Manager owns the launch tracker and the container runtime
type Manager struct {
	runtime runtime.ContainerRuntime
	tracker *tracker.Tracker
	logger  *logrus.Logger
}

// NewManager creates a new kick manager
func NewManager(rt runtime.ContainerRuntime, tr *tracker.Tracker, logger *logrus.Logger) *Manager {
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.InfoLevel)
	}

	return &Manager{
		runtime: rt,
		tracker: tr,
		logger:  logger,
	}
}

// Kick pulls the entry's image, admits a new instance, and starts the
// container run in the background. It returns ErrLimitReached when the
// entry's concurrency limit is hit; any other failure is logged and
// swallowed, since the kick has already been accepted for processing.
func (m *Manager) Kick(ctx context.Context, entry *config.Entry, extraEnv []string) error {
	if err := m.runtime.PullImage(ctx, entry.Image, entry.Auth); err != nil {
		m.logger.WithFields(logrus.Fields{
			"config": entry.Name,
			"image":  entry.Image,
		}).Errorf("Failed to pull image: %v", err)
		return nil
	}

	instance := entry.Name + "_" + uuid.New().String()

	if !m.tracker.TryAdmit(entry.Name, instance, entry.Limit) {
		m.logger.WithField("config", entry.Name).Warnf("Concurrency limit of %d reached, rejecting kick", entry.Limit)
		return ErrLimitReached
	}

	env := make([]string, 0, len(entry.CreateOptions.Env)+len(extraEnv))
	env = append(env, entry.CreateOptions.Env...)
	env = append(env, extraEnv...)

	spec := runtime.RunSpec{
		Name:    instance,
		Image:   entry.Image,
		Cmd:     entry.Cmd,
		Env:     env,
		Options: entry.CreateOptions,
	}

	go m.run(entry.Name, instance, spec)

	return nil
}

// run executes one admitted launch to completion. The tracking slot is
// released no matter which step fails; the container object is only removed
// after a successful run.
func (m *Manager) run(configName, instance string, spec runtime.RunSpec) {
	// Runs outlive the request that triggered them
	ctx := context.Background()
	defer m.tracker.Release(configName, instance)

	log := m.logger.WithFields(logrus.Fields{
		"config":   configName,
		"instance": instance,
	})

	handle, err := m.runtime.Run(ctx, spec)
	if err != nil {
		log.Errorf("Failed to run container: %v", err)
		return
	}

	if err := handle.Wait(ctx); err != nil {
		log.Errorf("Container run failed: %v", err)
		return
	}

	log.Info("Container run completed")

	if err := handle.Remove(ctx); err != nil {
		log.Errorf("Failed to remove container: %v", err)
	}
}
