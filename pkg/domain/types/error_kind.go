package types

// ErrorKind classifies failures for retry and reporting decisions
type ErrorKind string

const (
	ErrorKindNone             ErrorKind = ""
	ErrorKindNotFound         ErrorKind = "not_found"
	ErrorKindValidation       ErrorKind = "validation"
	ErrorKindConflict         ErrorKind = "conflict"
	ErrorKindTransientService ErrorKind = "transient_service"
	ErrorKindPermanentStage   ErrorKind = "permanent_stage"
	ErrorKindTimeout          ErrorKind = "timeout"
)

// IsRetryable reports whether failures of this kind may be retried
func (k ErrorKind) IsRetryable() bool {
	return k == ErrorKindTransientService
}

// String returns the string representation of the error kind
func (k ErrorKind) String() string {
	return string(k)
}
