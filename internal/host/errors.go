package host

import "errors"

// Domain errors for the host package.
var (
	// ErrBadMessage is returned when an event payload cannot be decoded.
	ErrBadMessage = errors.New("host: malformed event message")

	// ErrUnknownEventType is returned when an event names a type the
	// engine does not define.
	ErrUnknownEventType = errors.New("host: unknown event type")
)
