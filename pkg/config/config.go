// Package config loads YAML configuration files. ${VAR} references are
// expanded from the environment before decoding.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"
)

// Validator is implemented by configuration types that check themselves
// after decoding.
type Validator interface {
	Validate() error
}

// Load decodes filename over target and validates the result. Fields absent
// from the file keep the values target already holds.
func Load[T any](filename string, target *T) error {
	return load(filename, target, false)
}

// LoadOptional is Load, except that a missing file leaves target's
// defaults in place. target is validated either way.
func LoadOptional[T any](filename string, target *T) error {
	return load(filename, target, true)
}

func load[T any](filename string, target *T, optional bool) error {
	data, err := os.ReadFile(filename)
	switch {
	case optional && errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return fmt.Errorf("config: read %s: %w", filename, err)
	default:
		if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), target); err != nil {
			return fmt.Errorf("config: parse %s: %w", filename, err)
		}
	}

	if v, ok := any(target).(Validator); ok {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("config: invalid: %w", err)
		}
	}
	return nil
}
