package transport

import "errors"

var (
	// ErrServerClosed is returned by Start on a server that was closed.
	ErrServerClosed = errors.New("transport: server closed")

	// ErrAlreadyStarted is returned by Start when called twice.
	ErrAlreadyStarted = errors.New("transport: already started")
)
