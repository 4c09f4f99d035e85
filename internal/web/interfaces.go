package web

import (
	"context"

	"github.com/sytexa-julia/docker-kicker/internal/config"
)

// Kicker starts one container launch attempt for a configuration entry
type Kicker interface {
	Kick(ctx context.Context, entry *config.Entry, extraEnv []string) error
}
