package queue

import "errors"

// Sentinel errors for rejected actions.
var (
	ErrQueueFull   = errors.New("action queue full")
	ErrQueueClosed = errors.New("action queue closed")
)
