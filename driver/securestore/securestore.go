// Package securestore wraps a ports.StoragePort, encrypting the "psk",
// "wifi_ssid", and "wifi_pass" namespace values with
// golang.org/x/crypto/nacl/secretbox before delegating to the inner
// store — the "encrypted at the adapter layer" requirement spec.md §6.1
// places on StoragePort for sensitive namespaces.
package securestore

import (
	"crypto/rand"
	"io"

	"golang.org/x/crypto/nacl/secretbox"

	"scrubcore.dev/ports"
)

const nonceSize = 24

var sensitiveNamespaces = map[string]bool{
	"psk":       true,
	"wifi_ssid": true,
	"wifi_pass": true,
}

// Store is a ports.StoragePort that transparently encrypts sensitive
// namespaces and passes everything else straight through to inner.
type Store struct {
	inner ports.StoragePort
	key   [32]byte
}

// New wraps inner, encrypting sensitive namespaces with key.
func New(inner ports.StoragePort, key [32]byte) *Store {
	return &Store{inner: inner, key: key}
}

func (s *Store) Read(namespace, key string) ([]byte, error) {
	data, err := s.inner.Read(namespace, key)
	if err != nil {
		return nil, err
	}
	if !sensitiveNamespaces[namespace] {
		return data, nil
	}
	return s.decrypt(data)
}

func (s *Store) Write(namespace, key string, value []byte) error {
	if !sensitiveNamespaces[namespace] {
		return s.inner.Write(namespace, key, value)
	}
	enc, err := s.encrypt(value)
	if err != nil {
		return err
	}
	return s.inner.Write(namespace, key, enc)
}

func (s *Store) Delete(namespace, key string) error {
	return s.inner.Delete(namespace, key)
}

func (s *Store) Exists(namespace, key string) (bool, error) {
	return s.inner.Exists(namespace, key)
}

func (s *Store) encrypt(plain []byte) ([]byte, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, err
	}
	out := make([]byte, nonceSize, nonceSize+len(plain)+secretbox.Overhead)
	copy(out, nonce[:])
	return secretbox.Seal(out, plain, &nonce, &s.key), nil
}

func (s *Store) decrypt(data []byte) ([]byte, error) {
	if len(data) < nonceSize {
		return nil, &ports.StorageError{Kind: ports.StorageEncryptionError, Msg: "securestore: ciphertext too short"}
	}
	var nonce [nonceSize]byte
	copy(nonce[:], data[:nonceSize])
	plain, ok := secretbox.Open(nil, data[nonceSize:], &nonce, &s.key)
	if !ok {
		return nil, &ports.StorageError{Kind: ports.StorageEncryptionError, Msg: "securestore: decryption failed"}
	}
	return plain, nil
}
