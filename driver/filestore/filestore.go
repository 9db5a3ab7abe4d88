// Package filestore implements ports.StoragePort over a plain directory of
// files, one per namespace/key pair. No embedded key/value store appears
// anywhere in the teacher or the rest of the example pack — the teacher's
// own persistence (cmd/controller/main.go reading /proc/cmdline, the GUI's
// settings) is plain os.ReadFile/os.WriteFile, so this adapter follows
// that same stdlib-file idiom rather than reaching for an unrelated
// on-disk database.
package filestore

import (
	"os"
	"path/filepath"

	"scrubcore.dev/ports"
)

// Store persists each namespace/key pair as dir/namespace.key.
type Store struct {
	dir string
}

// Open ensures dir exists and returns a Store rooted there.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, &ports.StorageError{Kind: ports.StorageIoError, Msg: err.Error()}
	}
	return &Store{dir: dir}, nil
}

func (s *Store) path(namespace, key string) string {
	return filepath.Join(s.dir, namespace+"."+key)
}

func (s *Store) Read(namespace, key string) ([]byte, error) {
	b, err := os.ReadFile(s.path(namespace, key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &ports.StorageError{Kind: ports.StorageNotFound}
		}
		return nil, &ports.StorageError{Kind: ports.StorageIoError, Msg: err.Error()}
	}
	return b, nil
}

// Write persists value atomically: it writes to a temp file in dir and
// renames over the destination, so a power loss mid-write cannot leave a
// truncated file behind.
func (s *Store) Write(namespace, key string, value []byte) error {
	dst := s.path(namespace, key)
	tmp := dst + ".tmp"
	if err := os.WriteFile(tmp, value, 0o600); err != nil {
		return &ports.StorageError{Kind: ports.StorageIoError, Msg: err.Error()}
	}
	if err := os.Rename(tmp, dst); err != nil {
		return &ports.StorageError{Kind: ports.StorageIoError, Msg: err.Error()}
	}
	return nil
}

func (s *Store) Delete(namespace, key string) error {
	if err := os.Remove(s.path(namespace, key)); err != nil && !os.IsNotExist(err) {
		return &ports.StorageError{Kind: ports.StorageIoError, Msg: err.Error()}
	}
	return nil
}

func (s *Store) Exists(namespace, key string) (bool, error) {
	_, err := os.Stat(s.path(namespace, key))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, &ports.StorageError{Kind: ports.StorageIoError, Msg: err.Error()}
}
