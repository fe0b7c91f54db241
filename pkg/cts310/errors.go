package cts310

import "errors"

var (
	// ErrNotConnected is returned when a command is issued before Connect
	// or after Disconnect.
	ErrNotConnected = errors.New("cts310: not connected")

	// ErrNoResponse is returned when the device stays silent or the
	// response is truncated past the read deadline.
	ErrNoResponse = errors.New("cts310: no response from device")

	// ErrRejected is returned when the device answers NAK.
	ErrRejected = errors.New("cts310: command rejected by device")

	// ErrDocumentOpen is returned when a new document is started while a
	// previous one has not been closed or cancelled.
	ErrDocumentOpen = errors.New("cts310: a fiscal document is already open")

	// ErrAuditActive is returned when an audit session is started while
	// another one is in progress.
	ErrAuditActive = errors.New("cts310: an audit session is already active")
)
