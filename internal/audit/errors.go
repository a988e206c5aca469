package audit

import "errors"

// Validation failures raised while resolving a time range. Both map to HTTP 400.
var (
	ErrInvalidRange    = errors.New("invalid range")
	ErrInvalidTimeZone = errors.New("invalid time zone")
)

// ValidationError carries the caller-facing message of a resolver failure.
// errors.Is matches it against ErrInvalidRange or ErrInvalidTimeZone.
type ValidationError struct {
	kind    error
	message string
}

func (e *ValidationError) Error() string { return e.message }

func (e *ValidationError) Unwrap() error { return e.kind }

func invalidRange(message string) error {
	return &ValidationError{kind: ErrInvalidRange, message: message}
}

func invalidTimeZone(zone string) error {
	return &ValidationError{kind: ErrInvalidTimeZone, message: "Invalid time zone: " + zone}
}

// IsValidation reports whether err is a resolver validation failure
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidRange) || errors.Is(err, ErrInvalidTimeZone)
}
