package timer

// Error is a custom error type for timer errors
type Error string

// Error implements the error interface
func (e Error) Error() string {
	return string(e)
}

const (
	ErrNilConfig      Error = "config cannot be nil"
	ErrNilOnExpire    Error = "expiry callback cannot be nil"
	ErrInvalidSeconds Error = "timer seconds must be non-negative"
)
