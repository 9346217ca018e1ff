package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// ErrorKind splits provider failures into the classes callers branch on.
// Transient failures are retried with backoff; permanent and validation
// failures surface immediately; race is reserved for conditional-write misses
// reported by the settlement path.
type ErrorKind string

const (
	KindValidation ErrorKind = "validation"
	KindTransient  ErrorKind = "transient"
	KindPermanent  ErrorKind = "permanent"
	KindRace       ErrorKind = "race"
)

type Error struct {
	Kind    ErrorKind
	Status  int
	Message string
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("provider error (%s, http %d): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("provider error (%s): %s", e.Kind, e.Message)
}

func NewError(kind ErrorKind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Classify maps an arbitrary error onto an ErrorKind. Network failures and
// timeouts count as transient; everything unrecognized is treated as
// transient too, since retrying an unknown failure is safe while skipping a
// recoverable one is not.
func Classify(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTransient
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return KindTransient
	}
	return KindTransient
}

// IsRetryable reports whether a failed fetch should be attempted again.
func IsRetryable(err error) bool {
	return Classify(err) == KindTransient
}

func classifyHTTPStatus(status int, body string) *Error {
	lower := strings.ToLower(body)
	switch {
	case status >= 500:
		return &Error{Kind: KindTransient, Status: status, Message: body}
	case status == 429:
		return &Error{Kind: KindTransient, Status: status, Message: body}
	case strings.Contains(lower, "duplicate") || strings.Contains(lower, "invalid"):
		return &Error{Kind: KindPermanent, Status: status, Message: body}
	case status >= 400:
		return &Error{Kind: KindPermanent, Status: status, Message: body}
	default:
		return &Error{Kind: KindTransient, Status: status, Message: body}
	}
}
