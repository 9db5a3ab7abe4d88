package filestore

import (
	"errors"
	"testing"

	"scrubcore.dev/ports"
)

func TestWriteReadRoundTrip(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.Write("config", "system", []byte("hello")); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := s.Read("config", "system")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(got) != "hello" {
		t.Fatalf("got %q, want %q", got, "hello")
	}
}

func TestReadMissingReturnsNotFound(t *testing.T) {
	s, _ := Open(t.TempDir())
	_, err := s.Read("config", "missing")
	if !errors.Is(err, &ports.StorageError{Kind: ports.StorageNotFound}) {
		t.Fatalf("err = %v, want StorageNotFound", err)
	}
}

func TestExistsAndDelete(t *testing.T) {
	s, _ := Open(t.TempDir())
	if ok, _ := s.Exists("config", "k"); ok {
		t.Fatal("expected Exists to be false before Write")
	}
	s.Write("config", "k", []byte("v"))
	if ok, _ := s.Exists("config", "k"); !ok {
		t.Fatal("expected Exists to be true after Write")
	}
	s.Delete("config", "k")
	if ok, _ := s.Exists("config", "k"); ok {
		t.Fatal("expected Exists to be false after Delete")
	}
}

func TestWriteOverwritesExistingValue(t *testing.T) {
	s, _ := Open(t.TempDir())
	s.Write("config", "k", []byte("first"))
	s.Write("config", "k", []byte("second"))
	got, _ := s.Read("config", "k")
	if string(got) != "second" {
		t.Fatalf("got %q, want %q", got, "second")
	}
}
