package backend

import "fmt"

// ErrorKind tags the cause of an upstream failure
type ErrorKind string

const (
	KindNetwork   ErrorKind = "network"
	KindAuth      ErrorKind = "auth"
	KindRateLimit ErrorKind = "rate_limit"
	KindStatus    ErrorKind = "status"
	KindMalformed ErrorKind = "malformed"
)

// UpstreamError reports a failed completion call
type UpstreamError struct {
	Kind       ErrorKind
	StatusCode int
	Message    string
	Err        error
}

func (e *UpstreamError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("upstream %s error (status %d): %s", e.Kind, e.StatusCode, msg)
	}
	return fmt.Sprintf("upstream %s error: %s", e.Kind, msg)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}
