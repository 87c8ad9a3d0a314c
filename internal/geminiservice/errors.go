package geminiservice

import (
	"errors"
	"fmt"
)

// ErrorKind classifies why a plan request failed.
type ErrorKind int

const (
	// TransportError covers network failures, timeouts and non-2xx statuses.
	TransportError ErrorKind = iota + 1
	// MalformedResponse means the payload was not valid JSON.
	MalformedResponse
	// IncompleteResponse means the JSON was valid but did not match the plan schema.
	IncompleteResponse
)

func (k ErrorKind) String() string {
	switch k {
	case TransportError:
		return "transport_error"
	case MalformedResponse:
		return "malformed_response"
	case IncompleteResponse:
		return "incomplete_response"
	}
	return "unknown"
}

// ErrMissingAPIKey is the cause of a TransportError raised before any call
// when no credential is configured.
var ErrMissingAPIKey = errors.New("gemini api key is not configured")

// PlanError is the only error type RequestPlan returns.
type PlanError struct {
	Kind ErrorKind
	// StatusCode is the HTTP status for TransportError, 0 otherwise.
	StatusCode int
	Err        error
}

func (e *PlanError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s (status %d): %v", e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *PlanError) Unwrap() error {
	return e.Err
}

// UserMessage is the text shown to the user for this failure.
func (e *PlanError) UserMessage() string {
	if e.Kind == TransportError {
		return "Could not reach the service, try again."
	}
	return "The service returned an unexpected answer."
}

// KindOf returns the ErrorKind of err, or 0 when err is not a PlanError.
func KindOf(err error) ErrorKind {
	var pe *PlanError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return 0
}

func transportErr(status int, err error) *PlanError {
	return &PlanError{Kind: TransportError, StatusCode: status, Err: err}
}

func malformedErr(err error) *PlanError {
	return &PlanError{Kind: MalformedResponse, Err: err}
}

func incompleteErr(err error) *PlanError {
	return &PlanError{Kind: IncompleteResponse, Err: err}
}
