package listsync

import "errors"

// Sentinel errors for the list sync.
var (
	ErrPushRunning = errors.New("push channel loop already running")
	ErrNoDialer    = errors.New("push channel not configured")
)
