package pipeline

import "fmt"

// ErrorKind classifies pipeline failures for metrics and operator triage.
type ErrorKind string

const (
	KindConfiguration       ErrorKind = "configuration"
	KindExternalUnavailable ErrorKind = "external_unavailable"
	KindStaleState          ErrorKind = "stale_state"
	KindRateLimited         ErrorKind = "rate_limited"
	KindApprovalTimeout     ErrorKind = "approval_timeout"
	KindStageTimeout        ErrorKind = "stage_timeout"
	KindDataIntegrity       ErrorKind = "data_integrity"
	KindDuplicate           ErrorKind = "duplicate"
)

// Error wraps a stage failure with its kind and the stage it occurred in.
type Error struct {
	Kind  ErrorKind
	Stage string
	Err   error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Stage, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Stage, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func stageError(kind ErrorKind, stage string, err error) *Error {
	return &Error{Kind: kind, Stage: stage, Err: err}
}
