package worker

import (
	"errors"
	"fmt"
)

// Kind classifies a worker failure.
type Kind int

const (
	KindTimeout Kind = iota + 1
	KindProcessFailure
	KindProtocolViolation
	KindProviderRejected
)

func (k Kind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindProcessFailure:
		return "process failure"
	case KindProtocolViolation:
		return "protocol violation"
	case KindProviderRejected:
		return "provider rejected"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Sentinels for matching a *Error by kind with errors.Is.
var (
	ErrTimeout           = errors.New("worker timed out")
	ErrProcessFailure    = errors.New("worker process failed")
	ErrProtocolViolation = errors.New("worker violated protocol")
	ErrProviderRejected  = errors.New("provider rejected request")

	// ErrNoBinding means no worker command is configured for a provider.
	ErrNoBinding = errors.New("no worker configured for provider")
)

func (k Kind) sentinel() error {
	switch k {
	case KindTimeout:
		return ErrTimeout
	case KindProcessFailure:
		return ErrProcessFailure
	case KindProtocolViolation:
		return ErrProtocolViolation
	case KindProviderRejected:
		return ErrProviderRejected
	default:
		return nil
	}
}

// Error is a failed worker call.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := "worker " + e.Kind.String()
	if e.Msg != "" {
		msg += ": " + e.Msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	errs := []error{e.Kind.sentinel()}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// Retryable reports whether the failure is assumed transient.
func (e *Error) Retryable() bool {
	return e.Kind == KindTimeout || e.Kind == KindProcessFailure
}

// IsRetryable reports whether err is a transient worker failure.
func IsRetryable(err error) bool {
	var werr *Error
	return errors.As(err, &werr) && werr.Retryable()
}
