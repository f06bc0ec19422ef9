package oracle

import (
	"errors"
	"fmt"
)

var (
	// ErrTransport covers network failures and non-2xx responses. Callers may retry.
	ErrTransport = errors.New("oracle transport failed")
	// ErrParse means the oracle answered but the payload was not usable.
	ErrParse = errors.New("oracle response malformed")
	// ErrNotConfigured is returned when a provider has no credentials.
	ErrNotConfigured = errors.New("oracle not configured")
)

// TransportError wraps a failed call to a provider.
type TransportError struct {
	Provider   string
	StatusCode int
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Body != "":
		return fmt.Sprintf("%s: status=%d body=%s", e.Provider, e.StatusCode, e.Body)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: status=%d", e.Provider, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Provider, e.Err)
	}
	return e.Provider + ": transport error"
}

func (e *TransportError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrTransport, e.Err}
	}
	return []error{ErrTransport}
}

// ParseError carries the raw response that could not be decoded.
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	raw := e.Raw
	if len(raw) > 200 {
		raw = raw[:200] + "..."
	}
	return fmt.Sprintf("parse oracle response: %v (raw=%q)", e.Err, raw)
}

func (e *ParseError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrParse, e.Err}
	}
	return []error{ErrParse}
}

// Retryable reports whether err is a transient oracle failure.
func Retryable(err error) bool {
	return errors.Is(err, ErrTransport)
}
