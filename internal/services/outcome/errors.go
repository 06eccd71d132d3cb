package outcome

// Error is a custom error type for ledger errors
type Error string

// Error implements the error interface
func (e Error) Error() string {
	return string(e)
}

const (
	ErrNilConfig    Error = "config cannot be nil"
	ErrNilSnapshot  Error = "snapshot cannot be nil"
	ErrInvalidRange Error = "score range must be non-negative"
)
