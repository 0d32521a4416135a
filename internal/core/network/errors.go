package network

import "errors"

var (
	// Channel

	ErrChannelDisposed = errors.New("sync channel disposed")
	ErrProducerStopped = errors.New("sync producer stopped")

	// Replay

	ErrUnknownComponent = errors.New("unknown component")

	// Wire

	ErrInvalidFrame = errors.New("invalid frame")
)
