// Package runtime defines the container runtime capability set consumed by
// the kick orchestration, implemented by the docker and containerd packages.
package runtime

import (
	"context"

	"github.com/sytexa-julia/docker-kicker/internal/config"
)

// RunSpec describes one container launch
type RunSpec struct {
	// Name is the generated instance identifier; it is assigned as the
	// container name regardless of anything in Options
	Name  string
	Image string
	// Cmd overrides the image's default command when non-empty
	Cmd []string
	// Env is the fully merged environment (configured entries first,
	// query-derived entries appended, no deduplication)
	Env     []string
	Options config.CreateOptions
}

// Handle refers to a container created by Run
type Handle interface {
	// Wait blocks until the container exits, returning an error for a
	// non-zero exit status or a runtime failure
	Wait(ctx context.Context) error
	// Remove deletes the container object
	Remove(ctx context.Context) error
}

// ContainerRuntime is the capability set the kicker needs from a container
// runtime daemon
type ContainerRuntime interface {
	// PullImage pulls ref from its registry, with credentials when auth
	// is non-nil
	PullImage(ctx context.Context, ref string, auth *config.RegistryAuth) error
	// Run creates and starts a container, streaming its output to the
	// process's own standard streams
	Run(ctx context.Context, spec RunSpec) (Handle, error)
	// Close releases the connection to the daemon
	Close() error
}
