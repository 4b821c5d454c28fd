package session

import "errors"

var (
	// ErrDeviceUnavailable is returned when the capture collaborator denies or
	// fails media acquisition. Fatal to the current attempt; the role reverts
	// to unset.
	ErrDeviceUnavailable = errors.New("session: capture device unavailable")

	// ErrMalformedDescription is returned when a pasted blob fails to parse.
	// Recoverable: session state is untouched and the paste may be retried.
	ErrMalformedDescription = errors.New("session: malformed description")

	// ErrNegotiationRejected is returned when the transport substrate refuses
	// a description, or when a description is applied out of order (remote
	// before local for the active role's path).
	ErrNegotiationRejected = errors.New("session: negotiation rejected")

	// ErrRoleAlreadySelected is returned by SelectRole when a role is active;
	// selecting again requires an explicit Reset first.
	ErrRoleAlreadySelected = errors.New("session: role already selected")

	ErrNoRole    = errors.New("session: no role selected")
	ErrWrongRole = errors.New("session: operation not valid for current role")

	// ErrSessionExists guards against generating a second local description
	// within one attempt.
	ErrSessionExists = errors.New("session: transport session already exists")

	// ErrAttemptReset is returned when a reset arrived while a blocking
	// substrate call was outstanding; the call's result was discarded.
	ErrAttemptReset = errors.New("session: attempt reset while call in flight")

	ErrClosed = errors.New("session: machine closed")
)
