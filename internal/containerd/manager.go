// Package containerd implements the container runtime interface against a
// containerd daemon. Registry credentials are not supported here; entries
// that need them should run against the Docker runtime.
package containerd

import (
	"context"
	"fmt"

	"github.com/containerd/containerd"
	"github.com/containerd/containerd/cio"
	"github.com/containerd/containerd/namespaces"
	"github.com/containerd/containerd/oci"
	"github.com/sirupsen/logrus"

	"github.com/sytexa-julia/docker-kicker/internal/config"
	"github.com/sytexa-julia/docker-kicker/internal/runtime"
)

const defaultNamespace = "kicker"

// Manager implements runtime.ContainerRuntime for containerd
type Manager struct {
	client    *containerd.Client
	logger    *logrus.Logger
	namespace string
}

// NewManager creates a new containerd manager connected to the daemon at
// socketPath
func NewManager(socketPath string, logger *logrus.Logger) (*Manager, error) {
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.InfoLevel)
	}

	client, err := containerd.New(socketPath)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to containerd: %w", err)
	}

	return &Manager{
		client:    client,
		logger:    logger,
		namespace: defaultNamespace,
	}, nil
}

// WithNamespace sets the containerd namespace for the manager
func (m *Manager) WithNamespace(namespace string) *Manager {
	m.namespace = namespace
	return m
}

// PullImage pulls an image from a registry
func (m *Manager) PullImage(ctx context.Context, ref string, auth *config.RegistryAuth) error {
	if auth != nil {
		m.logger.WithField("image", ref).Warn("Registry auth is not supported with the containerd runtime, pulling anonymously")
	}

	ctx = namespaces.WithNamespace(ctx, m.namespace)
	m.logger.Infof("Pulling image %s", ref)

	if _, err := m.client.Pull(ctx, ref, containerd.WithPullUnpack); err != nil {
		return fmt.Errorf("failed to pull image %s: %w", ref, err)
	}

	m.logger.Infof("Successfully pulled image %s", ref)
	return nil
}

// Run creates and starts a container for spec with its I/O attached to the
// process's standard streams
func (m *Manager) Run(ctx context.Context, spec runtime.RunSpec) (runtime.Handle, error) {
	ctx = namespaces.WithNamespace(ctx, m.namespace)
	m.logger.Infof("Creating container %s with image %s", spec.Name, spec.Image)

	img, err := m.client.GetImage(ctx, spec.Image)
	if err != nil {
		return nil, fmt.Errorf("failed to get image %s: %w", spec.Image, err)
	}

	specOpts := []oci.SpecOpts{
		oci.WithImageConfig(img),
		oci.WithEnv(spec.Env),
		oci.WithHostHostsFile,
		oci.WithHostResolvconf,
	}
	if len(spec.Cmd) > 0 {
		specOpts = append(specOpts, oci.WithProcessArgs(spec.Cmd...))
	}

	container, err := m.client.NewContainer(
		ctx,
		spec.Name,
		containerd.WithImage(img),
		containerd.WithNewSnapshot(spec.Name+"-snapshot", img),
		containerd.WithNewSpec(specOpts...),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create container %s: %w", spec.Name, err)
	}

	task, err := container.NewTask(ctx, cio.NewCreator(cio.WithStdio))
	if err != nil {
		return nil, fmt.Errorf("failed to create task for container %s: %w", spec.Name, err)
	}

	// Wait must be registered before the task starts or the exit event
	// can be missed
	exitCh, err := task.Wait(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to wait on task for container %s: %w", spec.Name, err)
	}

	if err := task.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start task for container %s: %w", spec.Name, err)
	}

	m.logger.Infof("Started container %s", spec.Name)

	return &containerHandle{
		container: container,
		task:      task,
		exitCh:    exitCh,
		namespace: m.namespace,
		name:      spec.Name,
	}, nil
}

// Close closes the containerd client connection
func (m *Manager) Close() error {
	return m.client.Close()
}

// containerHandle refers to one created container and its running task
type containerHandle struct {
	container containerd.Container
	task      containerd.Task
	exitCh    <-chan containerd.ExitStatus
	namespace string
	name      string
}

// Wait blocks until the task exits, returning an error for a non-zero exit
// status
func (h *containerHandle) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case status := <-h.exitCh:
		code, _, err := status.Result()
		if err != nil {
			return fmt.Errorf("failed to wait for container %s: %w", h.name, err)
		}
		if code != 0 {
			return fmt.Errorf("container %s exited with status %d", h.name, code)
		}
	}
	return nil
}

// Remove deletes the task, the container, and its snapshot
func (h *containerHandle) Remove(ctx context.Context) error {
	ctx = namespaces.WithNamespace(ctx, h.namespace)

	if _, err := h.task.Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete task for container %s: %w", h.name, err)
	}
	if err := h.container.Delete(ctx, containerd.WithSnapshotCleanup); err != nil {
		return fmt.Errorf("failed to delete container %s: %w", h.name, err)
	}
	return nil
}
