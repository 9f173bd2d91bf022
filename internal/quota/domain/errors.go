package domain

import "errors"

var (
	ErrInvalidArgument    = errors.New("invalid_argument")
	ErrBackendUnavailable = errors.New("backend_unavailable")
	ErrNotFound           = errors.New("not_found")
	ErrPermissionDenied   = errors.New("permission_denied")
)

// Field-level argument errors. Each matches ErrInvalidArgument under errors.Is.
var (
	ErrInvalidProject = newArgumentError("invalid_project_id")
	ErrInvalidKind    = newArgumentError("invalid_kind")
	ErrInvalidLimit   = newArgumentError("invalid_limit")
	ErrInvalidDate    = newArgumentError("invalid_expires_on")
	ErrInvalidDelta   = newArgumentError("invalid_delta")
)

type argumentError struct {
	code string
}

func newArgumentError(code string) error {
	return &argumentError{code: code}
}

func (e *argumentError) Error() string { return e.code }

func (e *argumentError) Is(target error) bool {
	return target == ErrInvalidArgument
}
