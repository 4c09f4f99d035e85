package config

import (
	"fmt"
	"reflect"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// DefaultAllowFrom is applied to entries that do not set allow_from
var DefaultAllowFrom = []string{"127.0.0.1", "::1"}

// Load reads the configuration file at path and returns the resolved
// configuration with per-entry defaults applied and derived names computed.
// The file must be JSON with the nested docker/proxy/configs shape.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(stringToSliceHook())); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	for _, entry := range cfg.Configs {
		entry.Name = CleanName(entry.RawName)
		if len(entry.AllowFrom) == 0 {
			entry.AllowFrom = append([]string(nil), DefaultAllowFrom...)
		}
		if entry.Limit == 0 {
			entry.Limit = 1
		}
	}

	return &cfg, nil
}

// stringToSliceHook accepts a bare string wherever a []string is expected,
// supporting the legacy single-address allow_from form
func stringToSliceHook() mapstructure.DecodeHookFuncType {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if from.Kind() == reflect.String && to == reflect.TypeOf([]string{}) {
			return []string{data.(string)}, nil
		}
		return data, nil
	}
}
