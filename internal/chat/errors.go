package chat

import "errors"

var (
	// ErrStorageUnavailable wraps any failure to read or write the backing store.
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrMalformedEvent is returned for inbound events missing required fields.
	ErrMalformedEvent = errors.New("malformed event")
	// ErrUnknownConnection is returned when a connection never joined.
	ErrUnknownConnection = errors.New("unknown connection")
	// ErrAlreadyIdentified is returned when a connection tries to join
	// again under a different username.
	ErrAlreadyIdentified = errors.New("connection already identified")
)
