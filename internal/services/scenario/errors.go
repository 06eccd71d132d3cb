package scenario

// Error is a custom error type for scenario errors
type Error string

// Error implements the error interface
func (e Error) Error() string {
	return string(e)
}

const (
	ErrNilInput      Error = "input cannot be nil"
	ErrMissingStart  Error = "graph has no start node"
	ErrUnknownNode   Error = "unknown node"
	ErrInvalidAction Error = "invalid edge action"
)
