package stub

import "errors"

// Sentinel errors for the stub backend.
var (
	ErrNotFound   = errors.New("not found")
	ErrBadRequest = errors.New("bad request")
)
