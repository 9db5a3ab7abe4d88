package ports

// StorageErrorKind enumerates StoragePort failure modes.
type StorageErrorKind int

const (
	StorageNotFound StorageErrorKind = iota
	StorageFull
	StorageIoError
	StorageEncryptionError
)

// StorageError is returned by StoragePort operations.
type StorageError struct {
	Kind StorageErrorKind
	Msg  string
}

func (e *StorageError) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	switch e.Kind {
	case StorageNotFound:
		return "storage: not found"
	case StorageFull:
		return "storage: full"
	case StorageIoError:
		return "storage: io error"
	case StorageEncryptionError:
		return "storage: encryption error"
	default:
		return "storage: unknown error"
	}
}

// Is lets callers write errors.Is(err, &StorageError{Kind: StorageNotFound})
// regardless of which StoragePort adapter produced err.
func (e *StorageError) Is(target error) bool {
	t, ok := target.(*StorageError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// StoragePort is a namespaced key/value store. Writes must be atomic under
// power loss; sensitive namespaces are encrypted at the adapter layer (see
// driver/securestore).
type StoragePort interface {
	Read(namespace, key string) ([]byte, error)
	Write(namespace, key string, value []byte) error
	Delete(namespace, key string) error
	Exists(namespace, key string) (bool, error)
}
