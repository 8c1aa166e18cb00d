package sheets

import "fmt"

// AuthError means the service credential could not be loaded or authorized.
// Its message never includes credential material, only the source of the
// failure.
type AuthError struct {
	Reason string
	Err    error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("sheets authorization failed: %s", e.Reason)
}

func (e *AuthError) Unwrap() error { return e.Err }

// ValidationError means the caller supplied malformed input, e.g. a cell
// reference that is not of the form "A2".
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// UpstreamError means the remote spreadsheet API call itself failed.
type UpstreamError struct {
	Op  string
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("spreadsheet %s failed: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }
