package turn

// Error is a custom error type for turn errors
type Error string

// Error implements the error interface
func (e Error) Error() string {
	return string(e)
}

const (
	ErrNilConfig         Error = "config cannot be nil"
	ErrNilSession        Error = "session cannot be nil"
	ErrMissingDependency Error = "required dependency is nil"
	ErrNoParticipants    Error = "no valid participants"
	ErrNotStarted        Error = "session has not started"
	ErrAlreadyStarted    Error = "session already started"
	ErrTerminated        Error = "session is terminated"
	ErrBusy              Error = "another advance is in flight"
	ErrUnknownCommand    Error = "unknown command"
	ErrInvalidReason     Error = "invalid advance reason"
	ErrSessionNotManaged Error = "session is not managed here"
)
