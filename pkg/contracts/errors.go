package contracts

import "fmt"

// CodedError is a stable, numerically coded domain error. The codes are
// part of the pipeline's public surface (each component owns a block:
// verifier 1xx, issuer 2xx, settler 3xx) and never change meaning.
//
// Components declare their errors as package-level sentinels, so callers
// match with errors.Is; the API layer maps codes to HTTP statuses.
type CodedError struct {
	Code    int
	Message string
}

// NewCodedError creates a sentinel domain error.
func NewCodedError(code int, message string) *CodedError {
	return &CodedError{Code: code, Message: message}
}

func (e *CodedError) Error() string {
	return fmt.Sprintf("%s (code %d)", e.Message, e.Code)
}
