package errors

type ErrorCode string

const (
	ErrIOGeneral     ErrorCode = "IO_GENERAL"
	ErrIOSyncFailed  ErrorCode = "IO_SYNC_FAILED"
	ErrIOSeekFailed  ErrorCode = "IO_SEEK_FAILED"
	ErrIOReadFailed  ErrorCode = "IO_READ_FAILED"
	ErrIOWriteFailed ErrorCode = "IO_WRITE_FAILED"
	ErrIOCloseFailed ErrorCode = "IO_CLOSE_FAILED"

	ErrSystemInternal       ErrorCode = "SYSTEM_INTERNAL"
	ErrSystemInvalidInput   ErrorCode = "SYSTEM_INVALID_INPUT"
	ErrSystemPermission     ErrorCode = "SYSTEM_PERMISSION_DENIED"
	ErrSystemDiskFull       ErrorCode = "SYSTEM_DISK_FULL"
	ErrSystemNotADirectory  ErrorCode = "SYSTEM_NOT_A_DIRECTORY"
	ErrSystemResourceClosed ErrorCode = "SYSTEM_RESOURCE_CLOSED"

	ErrIndexKeyNotFound ErrorCode = "INDEX_KEY_NOT_FOUND"

	ErrValidationInvalidData   ErrorCode = "VALIDATION_INVALID_DATA"
	ErrValidationRequiredField ErrorCode = "VALIDATION_REQUIRED_FIELD"
	ErrValidationOutOfRange    ErrorCode = "VALIDATION_OUT_OF_RANGE"

	ErrRecordSerialization     ErrorCode = "RECORD_SERIALIZATION"
	ErrRecordDeserialization   ErrorCode = "RECORD_DESERIALIZATION"
	ErrRecordChecksumMismatch  ErrorCode = "RECORD_CHECKSUM_MISMATCH"
	ErrRecordPayloadTooLarge   ErrorCode = "RECORD_PAYLOAD_TOO_LARGE"
	ErrRecordTruncated         ErrorCode = "RECORD_TRUNCATED"
	ErrRecordUnexpectedCommand ErrorCode = "RECORD_UNEXPECTED_COMMAND"

	ErrSegmentOpenFailed   ErrorCode = "SEGMENT_OPEN_FAILED"
	ErrSegmentListFailed   ErrorCode = "SEGMENT_LIST_FAILED"
	ErrSegmentRemoveFailed ErrorCode = "SEGMENT_REMOVE_FAILED"
	ErrSegmentBroken       ErrorCode = "SEGMENT_BROKEN"

	ErrEngineUnknown        ErrorCode = "ENGINE_UNKNOWN"
	ErrEngineMarkerMismatch ErrorCode = "ENGINE_MISMATCH"
)
