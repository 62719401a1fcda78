package agentapi

import (
	"errors"
	"fmt"
)

var (
	ErrSubmission = errors.New("agent submission failed")
	ErrProtocol   = errors.New("agent protocol violation")
	ErrPayment    = errors.New("purchase request failed")
	ErrPoll       = errors.New("status poll failed")

	ErrTransientPoll = errors.New("transient status poll failure")
	ErrFatalPoll     = errors.New("fatal status poll failure")
)

// SubmissionError is returned when the agent could not be reached or answered
// the submission with a non-2xx status.
type SubmissionError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *SubmissionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("Agent request failed: %v", e.Err)
	}
	return fmt.Sprintf("Agent request failed: %d Response: %s", e.StatusCode, e.Body)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

func (e *SubmissionError) Is(target error) bool { return target == ErrSubmission }

// ProtocolViolationError is returned for a 2xx submission response that does
// not carry a usable job descriptor.
type ProtocolViolationError struct {
	Reason string
	Body   string
}

func (e *ProtocolViolationError) Error() string {
	return e.Reason
}

func (e *ProtocolViolationError) Is(target error) bool {
	return target == ErrProtocol || target == ErrSubmission
}

type PaymentError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *PaymentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("Purchase request failed: %v", e.Err)
	}
	return fmt.Sprintf("Purchase request failed: %d Response: %s", e.StatusCode, e.Body)
}

func (e *PaymentError) Unwrap() error { return e.Err }

func (e *PaymentError) Is(target error) bool { return target == ErrPayment }

// PollError describes a failed status poll. Transient errors are expected to
// clear on a later poll; fatal ones end the run.
type PollError struct {
	Transient  bool
	StatusCode int
	Body       string
	Reason     string
	Err        error
}

func (e *PollError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("Status request failed: %v", e.Err)
	case e.Reason != "":
		return fmt.Sprintf("Status request failed: %s", e.Reason)
	default:
		return fmt.Sprintf("Status request failed: %d Response: %s", e.StatusCode, e.Body)
	}
}

func (e *PollError) Unwrap() error { return e.Err }

func (e *PollError) Is(target error) bool {
	switch target {
	case ErrPoll:
		return true
	case ErrTransientPoll:
		return e.Transient
	case ErrFatalPoll:
		return !e.Transient
	}
	return false
}

// IsTransient reports whether err is a poll failure worth retrying.
func IsTransient(err error) bool {
	var pe *PollError
	return errors.As(err, &pe) && pe.Transient
}
