package config

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by Open when the configuration file is missing.
	ErrNotFound = errors.New("configuration file not found")

	// ErrConcurrencyViolation is returned by Set when called from a goroutine
	// other than the one that opened the Store.
	ErrConcurrencyViolation = errors.New("configuration mutated outside its owning goroutine")
)

type KeyNotFoundError struct {
	Path string
	File string
}

func (e *KeyNotFoundError) Error() string {
	return fmt.Sprintf("key %q not found in %s", e.Path, e.File)
}

// InvalidPathError reports a path that cannot be parsed, or that Set
// cannot write without creating intermediate keys.
type InvalidPathError struct {
	Path   string
	Reason string
}

func (e *InvalidPathError) Error() string {
	return fmt.Sprintf("invalid config path %q: %s", e.Path, e.Reason)
}

type PresetNotFoundError struct {
	Name string
}

func (e *PresetNotFoundError) Error() string {
	return fmt.Sprintf("preset %q does not exist", e.Name)
}
