package backend

import (
	"errors"
	"fmt"
)

var (
	// ErrTransport covers network, read and decode failures.
	ErrTransport = errors.New("transport failure")

	// ErrBackend is matched by every *APIError.
	ErrBackend = errors.New("backend reported error")
)

// TransportError is a failure to reach the backend or to understand its reply.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() []error {
	return []error{ErrTransport, e.Err}
}

// APIError is an error the backend reported, either as a non-2xx status or
// as an {"error": ...} body. Message is shown to the user verbatim.
type APIError struct {
	StatusCode int
	Endpoint   string
	Message    string
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("backend error (%d) at %s: %s", e.StatusCode, e.Endpoint, e.Message)
	}
	return fmt.Sprintf("backend error at %s: %s", e.Endpoint, e.Message)
}

func (e *APIError) Unwrap() error { return ErrBackend }
