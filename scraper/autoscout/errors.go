package autoscout

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrorKind separates failures worth retrying from those that need a human.
type ErrorKind int

const (
	// Transient covers network errors, timeouts, rate limiting and 5xx.
	Transient ErrorKind = iota
	// Permanent covers responses whose shape suggests an upstream change.
	Permanent
)

func (k ErrorKind) String() string {
	if k == Permanent {
		return "permanent"
	}
	return "transient"
}

// FetchError is returned by every fetch path. A fetch that returns a
// FetchError produced no usable result; it must never be read as "zero
// listings".
type FetchError struct {
	Kind       ErrorKind
	URL        string
	StatusCode int
	Reason     string
	Err        error
}

func (e *FetchError) Error() string {
	msg := fmt.Sprintf("autoscout: %s fetch error", e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.URL != "" {
		msg += " [" + e.URL + "]"
	}
	return msg
}

func (e *FetchError) Unwrap() error { return e.Err }

// IsTransient reports whether err is worth retrying within the same cycle.
// Errors that are not FetchErrors are classified by their cause.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind == Transient
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne)
}

func transientf(url string, status int, err error, format string, args ...any) *FetchError {
	return &FetchError{Kind: Transient, URL: url, StatusCode: status, Err: err, Reason: fmt.Sprintf(format, args...)}
}

func permanentf(url string, status int, err error, format string, args ...any) *FetchError {
	return &FetchError{Kind: Permanent, URL: url, StatusCode: status, Err: err, Reason: fmt.Sprintf(format, args...)}
}
