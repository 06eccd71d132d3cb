package narrator

import (
	"errors"
	"fmt"
)

// Kind classifies a narrator failure
type Kind string

const (
	KindQuotaExhausted    Kind = "quota_exhausted"
	KindMissingUserAPIKey Kind = "missing_user_api_key"
	KindAPIError          Kind = "api_error"
	KindNetwork           Kind = "network"
)

// Error is a classified narrator failure
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("narrator: %s", e.Kind)
	}
	return fmt.Sprintf("narrator: %s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Fatal reports whether the failure must void the session. Only network
// failures leave the turn open for another attempt.
func (e *Error) Fatal() bool {
	return e.Kind != KindNetwork
}

// KindOf returns the kind of a narrator error, or "" for any other error
func KindOf(err error) Kind {
	var nerr *Error
	if errors.As(err, &nerr) {
		return nerr.Kind
	}
	return ""
}

// IsFatal reports whether err is a narrator failure that voids the session
func IsFatal(err error) bool {
	var nerr *Error
	if errors.As(err, &nerr) {
		return nerr.Fatal()
	}
	return false
}
