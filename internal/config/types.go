package config

import (
	"regexp"
)

// Config is the top-level configuration for the kicker process
type Config struct {
	Docker  DockerConfig `mapstructure:"docker"`
	Proxy   ProxyConfig  `mapstructure:"proxy"`
	Configs []*Entry     `mapstructure:"configs"`
}

// DockerConfig describes how to reach the container runtime daemon
type DockerConfig struct {
	// Host is the daemon address, e.g. "unix:///var/run/docker.sock" or
	// "tcp://10.0.0.5:2376". Empty means use the runtime client's
	// environment defaults.
	Host string `mapstructure:"host"`
}

// ProxyConfig lists reverse proxies whose forwarding headers are trusted
// when deriving the client address
type ProxyConfig struct {
	Trusted []string `mapstructure:"trusted"`
}

// Entry describes one launchable workload and the secret key that triggers it.
// Entries are loaded once at startup and never mutated afterwards.
type Entry struct {
	// RawName is the display name as written in the configuration file
	RawName string `mapstructure:"name"`
	// Name is RawName cleaned via CleanName; it is the tracking key and
	// the prefix of generated instance identifiers
	Name string `mapstructure:"-"`
	// Key is the secret token that selects this entry
	Key   string `mapstructure:"key"`
	Image string `mapstructure:"image"`
	// Auth holds optional registry credentials for pulling Image
	Auth *RegistryAuth `mapstructure:"auth"`
	// AllowFrom lists client addresses permitted to kick this entry.
	// The legacy single-string form is normalized to a one-element list
	// at load time. Defaults to loopback only.
	AllowFrom []string `mapstructure:"allow_from"`
	// Cmd is the container startup command, empty meaning the image default
	Cmd []string `mapstructure:"cmd"`
	// QueryParamsToEnv names the request query parameters that may be
	// translated into environment variables
	QueryParamsToEnv []string      `mapstructure:"query_params_to_env"`
	CreateOptions    CreateOptions `mapstructure:"create_options"`
	// Limit is the maximum number of concurrently running instances
	Limit int `mapstructure:"limit"`
}

// RegistryAuth holds credentials for a private image registry
type RegistryAuth struct {
	Username      string `mapstructure:"username"`
	Password      string `mapstructure:"password"`
	ServerAddress string `mapstructure:"server_address"`
}

// CreateOptions is the container-creation configuration passed through to
// the runtime, minus the name, which is always the generated instance
// identifier
type CreateOptions struct {
	Env         []string          `mapstructure:"env"`
	Labels      map[string]string `mapstructure:"labels"`
	Binds       []string          `mapstructure:"binds"`
	NetworkMode string            `mapstructure:"network_mode"`
	Memory      int64             `mapstructure:"memory"`
	NanoCPUs    int64             `mapstructure:"nano_cpus"`
}

var nonAlphanumeric = regexp.MustCompile(`[^a-zA-Z0-9]+`)

// CleanName collapses every run of non-alphanumeric characters (underscore
// included) to a single dash, producing the canonical tracking name for an
// entry
func CleanName(raw string) string {
	return nonAlphanumeric.ReplaceAllString(raw, "-")
}

// AllowedFrom reports whether addr is permitted to kick this entry.
// Matching is exact string comparison, no CIDR support.
func (e *Entry) AllowedFrom(addr string) bool {
	for _, allowed := range e.AllowFrom {
		if allowed == addr {
			return true
		}
	}
	return false
}

// Lookup returns the entry whose key exactly equals key, or nil. The entry
// list is small and static, so a linear scan is enough.
func (c *Config) Lookup(key string) *Entry {
	for _, entry := range c.Configs {
		if entry.Key == key {
			return entry
		}
	}
	return nil
}
