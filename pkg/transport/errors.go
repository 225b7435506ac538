package transport

import "errors"

var (
	// ErrAlreadyConnected is returned by Sender.Connect on a live connection.
	ErrAlreadyConnected = errors.New("sender already connected")
	// ErrNotConnected is returned when a Sender is used without a connection.
	ErrNotConnected = errors.New("sender not connected")
	// ErrListenerStopped is returned by Listen and Serve after Stop.
	ErrListenerStopped = errors.New("listener stopped")
)
