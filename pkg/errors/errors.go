// Package errors defines the typed errors shared by the store, the server and the CLIs.
package errors

import (
	stdErrors "errors"
)

var (
	// ErrKeyNotFound is the cause of every IndexError raised for an absent key.
	// Its text is what clients see on the wire.
	ErrKeyNotFound = stdErrors.New("Key not found")

	// ErrUnexpectedCommandType means the index points at a record that is not
	// a Set for the requested key. It indicates a corrupted log or a bug.
	ErrUnexpectedCommandType = stdErrors.New("unexpected command type")

	// ErrCorruptRecord is the cause of every record decoding failure.
	ErrCorruptRecord = stdErrors.New("corrupt record")

	// ErrEngineMismatch is returned when a data directory was created by another engine.
	ErrEngineMismatch = stdErrors.New("wrong engine")

	// ErrClosed is returned by operations on a closed store.
	ErrClosed = stdErrors.New("operation failed: store is closed")
)

func AsValidationError(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if stdErrors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

func AsStorageError(err error) (*StorageError, bool) {
	var se *StorageError
	if stdErrors.As(err, &se) {
		return se, true
	}
	return nil, false
}

func AsIndexError(err error) (*IndexError, bool) {
	var ie *IndexError
	if stdErrors.As(err, &ie) {
		return ie, true
	}
	return nil, false
}

// IsKeyNotFound reports whether err was caused by a missing key.
func IsKeyNotFound(err error) bool {
	return stdErrors.Is(err, ErrKeyNotFound)
}

// IsCorrupt reports whether err was caused by an undecodable record.
func IsCorrupt(err error) bool {
	return stdErrors.Is(err, ErrCorruptRecord)
}
