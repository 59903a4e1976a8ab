package domain

import "fmt"

// NotFoundError represents a missing resource.
type NotFoundError struct {
	Resource string
}

func (e NotFoundError) Error() string {
	if e.Resource == "" {
		return "not found"
	}
	return fmt.Sprintf("%s not found", e.Resource)
}

// Is enables errors.Is matching on NotFoundError.
func (e NotFoundError) Is(target error) bool {
	_, ok := target.(NotFoundError)
	if ok {
		return true
	}
	_, ok = target.(*NotFoundError)
	return ok
}

// ErrNotFound is the sentinel error for missing resources.
var ErrNotFound = NotFoundError{}

// SchemaNotFoundError indicates an unknown entity kind. Callers hitting
// this are passing a kind the registry never declared.
type SchemaNotFoundError struct {
	Kind string
}

func (e SchemaNotFoundError) Error() string {
	return fmt.Sprintf("unknown entity kind %s", e.Kind)
}

func (e SchemaNotFoundError) Is(target error) bool {
	_, ok := target.(SchemaNotFoundError)
	if ok {
		return true
	}
	_, ok = target.(*SchemaNotFoundError)
	return ok
}

var ErrSchemaNotFound = SchemaNotFoundError{}

// ValidationError rejects a malformed payload before submission.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid payload: %s", e.Reason)
	}
	return fmt.Sprintf("invalid field %s: %s", e.Field, e.Reason)
}

func (e ValidationError) Is(target error) bool {
	_, ok := target.(ValidationError)
	if ok {
		return true
	}
	_, ok = target.(*ValidationError)
	return ok
}

var ErrValidation = ValidationError{}

// NotAuthorizedError rejects a mutation by a non-owner.
type NotAuthorizedError struct {
	Actor    string
	StreamID string
}

func (e NotAuthorizedError) Error() string {
	return fmt.Sprintf("%s is not authorized to mutate %s", e.Actor, e.StreamID)
}

func (e NotAuthorizedError) Is(target error) bool {
	_, ok := target.(NotAuthorizedError)
	if ok {
		return true
	}
	_, ok = target.(*NotAuthorizedError)
	return ok
}

var ErrNotAuthorized = NotAuthorizedError{}

// ImmutableFieldError rejects an edit to a field pinned at creation.
type ImmutableFieldError struct {
	Field string
}

func (e ImmutableFieldError) Error() string {
	return fmt.Sprintf("field %s is immutable", e.Field)
}

func (e ImmutableFieldError) Is(target error) bool {
	_, ok := target.(ImmutableFieldError)
	if ok {
		return true
	}
	_, ok = target.(*ImmutableFieldError)
	return ok
}

var ErrImmutableField = ImmutableFieldError{}

// ConflictError rejects a submission whose base revision is no longer the
// head. The caller must re-read the head and retry with the fresh base.
type ConflictError struct {
	StreamID string
	Expected string
	Actual   string
}

func (e ConflictError) Error() string {
	return fmt.Sprintf("stale base for %s: expected head %s, got %s", e.StreamID, e.Expected, e.Actual)
}

func (e ConflictError) Is(target error) bool {
	_, ok := target.(ConflictError)
	if ok {
		return true
	}
	_, ok = target.(*ConflictError)
	return ok
}

var ErrConflict = ConflictError{}

// SubmissionError wraps a transient store failure. The submission was not
// applied, so resending the unchanged payload is safe.
type SubmissionError struct {
	Err error
}

func (e SubmissionError) Error() string {
	if e.Err == nil {
		return "submission failed"
	}
	return fmt.Sprintf("submission failed: %v", e.Err)
}

func (e SubmissionError) Unwrap() error { return e.Err }

func (e SubmissionError) Is(target error) bool {
	_, ok := target.(SubmissionError)
	if ok {
		return true
	}
	_, ok = target.(*SubmissionError)
	return ok
}

var ErrSubmission = SubmissionError{}

// UnauthenticatedError indicates no viewer identity on the request.
type UnauthenticatedError struct{}

func (e UnauthenticatedError) Error() string {
	return "unauthenticated"
}

func (e UnauthenticatedError) Is(target error) bool {
	_, ok := target.(UnauthenticatedError)
	if ok {
		return true
	}
	_, ok = target.(*UnauthenticatedError)
	return ok
}

var ErrUnauthenticated = UnauthenticatedError{}
