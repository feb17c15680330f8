package fetch

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Kind classifies a fetch failure.
type Kind int

// Failure kinds. Network, Timeout and ServerError are transient and retried.
const (
	KindNetwork Kind = iota + 1
	KindTimeout
	KindServerError
	KindClientError
	KindDecode
	KindChannelClosed
	// KindCanceled reports that the caller's context ended; never retried.
	KindCanceled
)

// String returns the label used in logs and metrics.
func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindTimeout:
		return "timeout"
	case KindServerError:
		return "server_error"
	case KindClientError:
		return "client_error"
	case KindDecode:
		return "decode"
	case KindChannelClosed:
		return "channel_closed"
	case KindCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Transient reports whether a failure of this kind is worth retrying.
func (k Kind) Transient() bool {
	return k == KindNetwork || k == KindTimeout || k == KindServerError
}

// FetchError is returned when a fetch gives up.
type FetchError struct {
	Op       string
	Kind     Kind
	Attempts int
	Cause    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %s after %d attempt(s): %v", e.Op, e.Kind, e.Attempts, e.Cause)
}

// Unwrap exposes the last underlying error.
func (e *FetchError) Unwrap() error { return e.Cause }

// StatusError is a non-2xx response.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d %s", e.URL, e.Code, http.StatusText(e.Code))
}

// DecodeError is a response body that could not be decoded.
type DecodeError struct {
	URL string
	Err error
}

func (e *DecodeError) Error() string { return fmt.Sprintf("%s: decode: %v", e.URL, e.Err) }

// Unwrap exposes the decoder error.
func (e *DecodeError) Unwrap() error { return e.Err }

// KindOf returns the Kind carried by err, or 0 when err is not a classified failure.
func KindOf(err error) Kind {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return 0
}

// Classify maps an attempt error to a Kind. parent is the caller's context;
// its cancellation wins over anything the attempt reported.
func Classify(parent context.Context, err error) Kind {
	var se *StatusError
	var de *DecodeError
	var ne net.Error
	switch {
	case parent.Err() != nil:
		return KindCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.As(err, &ne) && ne.Timeout():
		return KindTimeout
	case errors.As(err, &se):
		if se.Code >= http.StatusInternalServerError {
			return KindServerError
		}
		return KindClientError
	case errors.As(err, &de):
		return KindDecode
	default:
		return KindNetwork
	}
}
