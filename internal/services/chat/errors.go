package chat

import "errors"

var (
	// ErrValidation marks a malformed request
	ErrValidation = errors.New("invalid request")
	// ErrTimeout marks a non-streaming request that exceeded its deadline
	ErrTimeout = errors.New("request timed out")
	// ErrProvider marks an upstream failure
	ErrProvider = errors.New("provider failure")
	// ErrCancelled marks a request the client abandoned or stopped
	ErrCancelled = errors.New("request cancelled")
	// ErrPersistence marks a failed session write
	ErrPersistence = errors.New("session persistence failed")
	// ErrStreamNotFound is returned when stopping an unknown request id
	ErrStreamNotFound = errors.New("stream not found")
)
