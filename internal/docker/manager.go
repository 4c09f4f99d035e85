// Package docker implements the container runtime interface against a
// Docker daemon.
package docker

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/registry"
	"github.com/docker/docker/api/types/strslice"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/sirupsen/logrus"

	"github.com/sytexa-julia/docker-kicker/internal/config"
	"github.com/sytexa-julia/docker-kicker/internal/runtime"
)

// Manager implements runtime.ContainerRuntime for Docker
type Manager struct {
	cli    *client.Client
	logger *logrus.Logger
	stdout io.Writer
	stderr io.Writer
}

// NewManager creates a new Docker manager connected to the daemon at host.
// An empty host falls back to the client's environment defaults.
func NewManager(host string, logger *logrus.Logger) (*Manager, error) {
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.InfoLevel)
	}

	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if host != "" {
		opts = []client.Opt{client.WithHost(host), client.WithAPIVersionNegotiation()}
	}

	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Docker: %w", err)
	}

	return &Manager{
		cli:    cli,
		logger: logger,
		stdout: os.Stdout,
		stderr: os.Stderr,
	}, nil
}

// PullImage pulls an image from a registry
func (m *Manager) PullImage(ctx context.Context, ref string, auth *config.RegistryAuth) error {
	m.logger.WithField("image", ref).Info("Pulling Docker image")

	var pullOpts image.PullOptions
	if auth != nil {
		encoded, err := encodeAuth(auth)
		if err != nil {
			return err
		}
		pullOpts.RegistryAuth = encoded
	}

	rc, err := m.cli.ImagePull(ctx, ref, pullOpts)
	if err != nil {
		return fmt.Errorf("failed to pull image %s: %w", ref, err)
	}
	defer rc.Close()

	// The pull only completes once the progress stream is drained
	if _, err := io.Copy(io.Discard, rc); err != nil {
		return fmt.Errorf("failed to pull image %s: %w", ref, err)
	}

	m.logger.WithField("image", ref).Info("Successfully pulled Docker image")
	return nil
}

// encodeAuth converts registry credentials to the base64 JSON form the
// Docker API expects
func encodeAuth(auth *config.RegistryAuth) (string, error) {
	encoded, err := registry.EncodeAuthConfig(registry.AuthConfig{
		Username:      auth.Username,
		Password:      auth.Password,
		ServerAddress: auth.ServerAddress,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode registry auth: %w", err)
	}
	return encoded, nil
}

// Run creates and starts a container for spec, streaming its output to the
// process's standard streams
func (m *Manager) Run(ctx context.Context, spec runtime.RunSpec) (runtime.Handle, error) {
	m.logger.WithFields(logrus.Fields{
		"name":  spec.Name,
		"image": spec.Image,
	}).Info("Creating Docker container")

	cfg, hostCfg := buildCreateConfig(spec)

	resp, err := m.cli.ContainerCreate(ctx, cfg, hostCfg, nil, nil, spec.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to create container %s: %w", spec.Name, err)
	}

	if err := m.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return nil, fmt.Errorf("failed to start container %s: %w", spec.Name, err)
	}

	m.streamLogs(ctx, resp.ID, spec.Name)

	m.logger.WithFields(logrus.Fields{
		"container_id": resp.ID,
		"name":         spec.Name,
	}).Info("Successfully created and started Docker container")

	return &containerHandle{cli: m.cli, id: resp.ID, name: spec.Name}, nil
}

// buildCreateConfig translates a run spec into the Docker API creation
// structures
func buildCreateConfig(spec runtime.RunSpec) (*container.Config, *container.HostConfig) {
	cfg := &container.Config{
		Image:  spec.Image,
		Env:    spec.Env,
		Labels: spec.Options.Labels,
	}
	if len(spec.Cmd) > 0 {
		cfg.Cmd = strslice.StrSlice(spec.Cmd)
	}

	hostCfg := &container.HostConfig{
		Binds:       spec.Options.Binds,
		NetworkMode: container.NetworkMode(spec.Options.NetworkMode),
		Resources: container.Resources{
			Memory:   spec.Options.Memory,
			NanoCPUs: spec.Options.NanoCPUs,
		},
	}

	return cfg, hostCfg
}

// streamLogs copies the container's output to the process's standard streams
// until the container exits
func (m *Manager) streamLogs(ctx context.Context, id, name string) {
	logs, err := m.cli.ContainerLogs(ctx, id, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     true,
	})
	if err != nil {
		m.logger.WithField("name", name).Errorf("Failed to attach to container logs: %v", err)
		return
	}

	go func() {
		defer logs.Close()
		if _, err := stdcopy.StdCopy(m.stdout, m.stderr, logs); err != nil {
			m.logger.WithField("name", name).Errorf("Container log stream ended with error: %v", err)
		}
	}()
}

// Close closes the Docker client
func (m *Manager) Close() error {
	return m.cli.Close()
}

// containerHandle refers to one created container
type containerHandle struct {
	cli  *client.Client
	id   string
	name string
}

// Wait blocks until the container exits, returning an error for a non-zero
// exit status
func (h *containerHandle) Wait(ctx context.Context) error {
	statusCh, errCh := h.cli.ContainerWait(ctx, h.id, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		return fmt.Errorf("failed to wait for container %s: %w", h.name, err)
	case status := <-statusCh:
		if status.Error != nil {
			return fmt.Errorf("container %s failed: %s", h.name, status.Error.Message)
		}
		if status.StatusCode != 0 {
			return fmt.Errorf("container %s exited with status %d", h.name, status.StatusCode)
		}
	}
	return nil
}

// Remove deletes the container object
func (h *containerHandle) Remove(ctx context.Context) error {
	return h.cli.ContainerRemove(ctx, h.id, container.RemoveOptions{})
}
