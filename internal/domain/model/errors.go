package model

import "errors"

// Action parsing errors.
var (
	ErrEmptyAction   = errors.New("empty command")
	ErrUnknownAction = errors.New("unknown command")
	ErrInvalidAction = errors.New("invalid command")
)
