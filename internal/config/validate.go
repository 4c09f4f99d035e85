package config

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// minKeyLength is the key length below which a warning is logged. Short keys
// are a security smell, not an error.
const minKeyLength = 50

// Validate checks every entry for required fields and the entry list for
// global uniqueness of names and keys. It runs once at startup; any error
// returned must prevent the process from serving requests.
func Validate(entries []*Entry, logger *logrus.Logger) error {
	for i, entry := range entries {
		if entry.Name == "" {
			return fmt.Errorf("config entry %d: name is required", i)
		}
		if entry.Key == "" {
			return fmt.Errorf("config entry %q: key is required", entry.RawName)
		}
		if entry.Image == "" {
			return fmt.Errorf("config entry %q: image is required", entry.RawName)
		}
		if entry.Limit < 1 {
			return fmt.Errorf("config entry %q: limit must be at least 1", entry.RawName)
		}
		if len(entry.Key) < minKeyLength {
			logger.WithField("config", entry.Name).Warnf("Key is shorter than %d characters, consider using a longer one", minKeyLength)
		}
	}

	seenNames := make(map[string]string, len(entries))
	seenKeys := make(map[string]string, len(entries))
	for _, entry := range entries {
		if other, dup := seenNames[entry.Name]; dup {
			return fmt.Errorf("config entries %q and %q resolve to the same name %q", other, entry.RawName, entry.Name)
		}
		seenNames[entry.Name] = entry.RawName

		if other, dup := seenKeys[entry.Key]; dup {
			return fmt.Errorf("config entries %q and %q share the same key", other, entry.RawName)
		}
		seenKeys[entry.Key] = entry.RawName
	}

	logger.Info("Configuration is valid")
	return nil
}
