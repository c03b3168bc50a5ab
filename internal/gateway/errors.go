package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"
)

// Kind classifies a failed completion. The kind, not the raw error, decides
// whether another attempt is made.
type Kind int

const (
	Unknown Kind = iota
	Transient
	Authentication
	MalformedResponse
	Canceled
)

func (k Kind) String() string {
	switch k {
	case Transient:
		return "transient"
	case Authentication:
		return "authentication"
	case MalformedResponse:
		return "malformed-response"
	case Canceled:
		return "canceled"
	}
	return "unknown"
}

var (
	// ErrMalformedResponse is returned by providers when the remote reply
	// cannot be used.
	ErrMalformedResponse = errors.New("malformed response")

	// ErrMissingCredential is returned by providers that were built without
	// an API key.
	ErrMissingCredential = errors.New("missing credential")
)

// Failure is the only error type returned by Gateway.Complete
type Failure struct {
	Kind     Kind
	Attempts int
	Err      error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s failure after %d attempt(s): %v", f.Kind, f.Attempts, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// StatusError is returned by providers when the remote API answers with a
// non-success HTTP status.
type StatusError struct {
	StatusCode int
	Message    string
	// RetryAfter is the server-requested delay, if any.
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("API error: %d %s - %s", e.StatusCode, http.StatusText(e.StatusCode), e.Message)
}

// NewStatusError wraps a status code and message
func NewStatusError(statusCode int, message string) *StatusError {
	return &StatusError{StatusCode: statusCode, Message: message}
}

// Classify maps an error returned by a provider to a Kind
func Classify(err error) Kind {
	if err == nil {
		return Unknown
	}

	var failure *Failure
	if errors.As(err, &failure) {
		return failure.Kind
	}
	if errors.Is(err, context.Canceled) {
		return Canceled
	}
	if errors.Is(err, ErrMissingCredential) {
		return Authentication
	}
	if errors.Is(err, ErrMalformedResponse) {
		return MalformedResponse
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		if kind := classifyStatus(statusErr.StatusCode); kind != Unknown {
			return kind
		}
		// Some APIs answer 400 for a bad key
		return classifyMessage(err.Error())
	}

	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) {
		return Transient
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return Transient
	}

	return classifyMessage(err.Error())
}

func classifyStatus(code int) Kind {
	switch {
	case code == http.StatusUnauthorized, code == http.StatusForbidden:
		return Authentication
	case code == http.StatusRequestTimeout,
		code == http.StatusTooManyRequests,
		code == 529,
		code >= 500:
		return Transient
	}
	return Unknown
}

var (
	transientPatterns = []string{
		"timeout",
		"connection refused",
		"connection reset",
		"temporary",
		"rate limit",
		"quota",
		"overloaded",
		"unavailable",
	}
	authenticationPatterns = []string{
		"unauthorized",
		"forbidden",
		"invalid api key",
		"api key not valid",
		"permission denied",
	}
)

// classifyMessage is the fallback for errors that carry no structure
func classifyMessage(msg string) Kind {
	msg = strings.ToLower(msg)
	for _, pattern := range authenticationPatterns {
		if strings.Contains(msg, pattern) {
			return Authentication
		}
	}
	for _, pattern := range transientPatterns {
		if strings.Contains(msg, pattern) {
			return Transient
		}
	}
	return Unknown
}
