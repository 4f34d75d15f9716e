package errors

import (
	stdErrors "errors"
	"fmt"
	"os"
	"syscall"
)

// ClassifyDirectoryCreationError maps a failure to create the data directory to a StorageError.
func ClassifyDirectoryCreationError(err error, path string) *StorageError {
	code := ErrIOGeneral
	switch {
	case os.IsPermission(err):
		code = ErrSystemPermission
	case stdErrors.Is(err, syscall.ENOSPC):
		code = ErrSystemDiskFull
	case stdErrors.Is(err, syscall.ENOTDIR):
		code = ErrSystemNotADirectory
	}

	return NewStorageError(err, code, fmt.Sprintf("Failed to create data directory %s", path)).
		WithPath(path)
}

// ClassifyFileOpenError maps a failure to open a segment file to a StorageError.
func ClassifyFileOpenError(err error, path, fileName string) *StorageError {
	code := ErrSegmentOpenFailed
	switch {
	case os.IsPermission(err):
		code = ErrSystemPermission
	case stdErrors.Is(err, syscall.ENOSPC):
		code = ErrSystemDiskFull
	}

	return NewStorageError(err, code, fmt.Sprintf("Failed to open segment file %s", fileName)).
		WithPath(path).
		WithFileName(fileName)
}
