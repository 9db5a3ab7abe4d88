package config

import (
	"errors"

	"scrubcore.dev/ports"
)

// ConfigErrorKind enumerates why a config load or save failed, per
// spec.md §7.
type ConfigErrorKind int

const (
	ErrNotFound ConfigErrorKind = iota
	ErrCorrupted
	ErrValidationFailed
	ErrStorageFull
	ErrIoError
)

// ConfigError is returned by Port.Load and Port.Save.
type ConfigError struct {
	Kind  ConfigErrorKind
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	switch e.Kind {
	case ErrNotFound:
		return "config: not found"
	case ErrCorrupted:
		return "config: corrupted"
	case ErrValidationFailed:
		return "config: validation failed: " + e.Field
	case ErrStorageFull:
		return "config: storage full"
	default:
		if e.Err != nil {
			return "config: io error: " + e.Err.Error()
		}
		return "config: io error"
	}
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Port is the ConfigPort from spec.md §6.1, backed by a namespaced
// StoragePort entry. Implementations MUST validate before persisting;
// invalid values are rejected, never clamped — Save below enforces this
// regardless of the backing store.
type Port struct {
	Storage   ports.StoragePort
	Namespace string
	Key       string
}

// NewPort constructs a Port over the given storage, using the
// conventional "config"/"system" namespace/key pair.
func NewPort(storage ports.StoragePort) *Port {
	return &Port{Storage: storage, Namespace: "config", Key: "system"}
}

// Load reads and decodes the persisted config. If absent or corrupt, it
// returns the default configuration together with a *ConfigError, per
// spec.md §3's "default if absent or corrupt" lifecycle note; the returned
// error is non-nil exactly when the fallback to Default() was used, and
// its Kind tells the absent case (ErrNotFound) from the corrupt one
// (ErrCorrupted).
func (p *Port) Load() (SystemConfig, error) {
	data, err := p.Storage.Read(p.Namespace, p.Key)
	if err != nil {
		return Default(), &ConfigError{Kind: ErrNotFound, Err: err}
	}
	cfg, err := Decode(data)
	if err != nil {
		return Default(), &ConfigError{Kind: ErrCorrupted, Err: err}
	}
	if err := cfg.Validate(); err != nil {
		return Default(), &ConfigError{Kind: ErrCorrupted, Err: err}
	}
	return cfg, nil
}

// Save validates cfg and, only if valid, persists it. A validation failure
// is returned as ErrValidationFailed and nothing is written.
func (p *Port) Save(cfg SystemConfig) error {
	if err := cfg.Validate(); err != nil {
		var ve *ValidationError
		field := ""
		if errors.As(err, &ve) {
			field = ve.Field
		}
		return &ConfigError{Kind: ErrValidationFailed, Field: field, Err: err}
	}
	data, err := Encode(cfg)
	if err != nil {
		return &ConfigError{Kind: ErrIoError, Err: err}
	}
	if err := p.Storage.Write(p.Namespace, p.Key, data); err != nil {
		return &ConfigError{Kind: ErrIoError, Err: err}
	}
	return nil
}
