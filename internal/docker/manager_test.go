package docker

import (
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sytexa-julia/docker-kicker/internal/config"
	"github.com/sytexa-julia/docker-kicker/internal/runtime"
)

func TestEncodeAuth(t *testing.T) {
	encoded, err := encodeAuth(&config.RegistryAuth{
		Username:      "kicker",
		Password:      "secret",
		ServerAddress: "registry.example.com",
	})
	require.NoError(t, err)

	// The Docker API expects base64url-encoded JSON credentials
	raw, err := base64.URLEncoding.DecodeString(encoded)
	require.NoError(t, err)

	var decoded map[string]string
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "kicker", decoded["username"])
	assert.Equal(t, "secret", decoded["password"])
	assert.Equal(t, "registry.example.com", decoded["serveraddress"])
}

func TestBuildCreateConfig(t *testing.T) {
	t.Run("FullSpec", func(t *testing.T) {
		spec := runtime.RunSpec{
			Name:  "my-job_abc",
			Image: "alpine:latest",
			Cmd:   []string{"echo", "hello"},
			Env:   []string{"MODE=batch", "FOO=bar"},
			Options: config.CreateOptions{
				Labels:      map[string]string{"app": "kicker"},
				Binds:       []string{"/data:/data"},
				NetworkMode: "bridge",
				Memory:      268435456,
				NanoCPUs:    500000000,
			},
		}

		cfg, hostCfg := buildCreateConfig(spec)

		assert.Equal(t, "alpine:latest", cfg.Image)
		assert.Equal(t, []string{"echo", "hello"}, []string(cfg.Cmd))
		assert.Equal(t, []string{"MODE=batch", "FOO=bar"}, cfg.Env)
		assert.Equal(t, map[string]string{"app": "kicker"}, cfg.Labels)

		assert.Equal(t, []string{"/data:/data"}, hostCfg.Binds)
		assert.Equal(t, "bridge", string(hostCfg.NetworkMode))
		assert.Equal(t, int64(268435456), hostCfg.Resources.Memory)
		assert.Equal(t, int64(500000000), hostCfg.Resources.NanoCPUs)
	})

	t.Run("EmptyCmdUsesImageDefault", func(t *testing.T) {
		cfg, _ := buildCreateConfig(runtime.RunSpec{Name: "n", Image: "alpine:latest"})
		assert.Empty(t, cfg.Cmd)
	})
}
