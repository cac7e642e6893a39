package gateway

import "errors"

var (
	// ErrOperationInFlight is returned when a bus operation is submitted while another one of the
	// same session has not completed.
	ErrOperationInFlight = errors.New("bus operation already in flight")
	// ErrBusNotLoaded is returned for bus commands sent before a successful load#.
	ErrBusNotLoaded = errors.New("bus not loaded")
	// ErrIdentityQueryBusy is returned for info# while an identity query is running.
	ErrIdentityQueryBusy = errors.New("identity query already running")
	// ErrSessionClosed is returned by a closed session.
	ErrSessionClosed = errors.New("session closed")
	// ErrQuit is returned by Dispatch for the quit command, the caller ends the session.
	ErrQuit = errors.New("quit requested")
	// ErrGatewayClosed is returned by a closed gateway.
	ErrGatewayClosed = errors.New("gateway closed")

	errLineTooLong = errors.New("line exceeds max line length")
)
