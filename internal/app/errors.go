package service

import "errors"

// Sentinel errors returned by action handling.
var (
	ErrNoSuchRow  = errors.New("no such row")
	ErrNotStarted = errors.New("dashboard not started")
)
