package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrTimeout indicates a timeout while issuing a request.
type ErrTimeout struct {
	Err error
}

func (e ErrTimeout) Error() string { return "timeout: " + e.Err.Error() }

func (e ErrTimeout) Unwrap() error { return e.Err }

// ErrConnection indicates a network connectivity failure.
type ErrConnection struct {
	Err error
}

func (e ErrConnection) Error() string { return "connection: " + e.Err.Error() }

func (e ErrConnection) Unwrap() error { return e.Err }

// ErrForbidden indicates HTTP 403. Region-blocked pages answer this way and
// are not retried.
type ErrForbidden struct {
	Err error
}

func (e ErrForbidden) Error() string { return "forbidden: " + e.Err.Error() }

func (e ErrForbidden) Unwrap() error { return e.Err }

// ErrNotFound indicates HTTP 404.
type ErrNotFound struct {
	Err error
}

func (e ErrNotFound) Error() string { return "not_found: " + e.Err.Error() }

func (e ErrNotFound) Unwrap() error { return e.Err }

// ErrRateLimited indicates HTTP 429.
type ErrRateLimited struct {
	Err error
}

func (e ErrRateLimited) Error() string { return "rate_limited: " + e.Err.Error() }

func (e ErrRateLimited) Unwrap() error { return e.Err }

// ErrServer indicates a 5xx answer.
type ErrServer struct {
	StatusCode int
	Err        error
}

func (e ErrServer) Error() string {
	return fmt.Sprintf("server_error %d: %v", e.StatusCode, e.Err)
}

func (e ErrServer) Unwrap() error { return e.Err }

// FetchError is returned once a URL has exhausted its attempts or failed
// permanently.
type FetchError struct {
	URL      string
	Attempts int
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s failed after %d attempt(s): %v", e.URL, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ErrorType returns the label used for error counters and summaries.
func ErrorType(err error) string {
	if err == nil {
		return "unknown"
	}
	var timeout ErrTimeout
	if errors.As(err, &timeout) {
		return "timeout"
	}
	var conn ErrConnection
	if errors.As(err, &conn) {
		return "connection"
	}
	var forbidden ErrForbidden
	if errors.As(err, &forbidden) {
		return "forbidden"
	}
	var notFound ErrNotFound
	if errors.As(err, &notFound) {
		return "not_found"
	}
	var rateLimited ErrRateLimited
	if errors.As(err, &rateLimited) {
		return "rate_limited"
	}
	var server ErrServer
	if errors.As(err, &server) {
		return "server_error"
	}
	return "other"
}

// Retryable reports whether another attempt may succeed.
func Retryable(err error) bool {
	switch ErrorType(err) {
	case "timeout", "connection", "rate_limited", "server_error":
		return true
	}
	return false
}

func classifyError(err error, statusCode int) error {
	if err == nil && statusCode == 0 {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout{Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout{Err: err}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ErrConnection{Err: err}
	}

	if statusCode != 0 {
		wrapped := err
		if wrapped == nil {
			wrapped = fmt.Errorf("http status %d", statusCode)
		}
		switch {
		case statusCode == http.StatusForbidden:
			return ErrForbidden{Err: wrapped}
		case statusCode == http.StatusNotFound:
			return ErrNotFound{Err: wrapped}
		case statusCode == http.StatusTooManyRequests:
			return ErrRateLimited{Err: wrapped}
		case statusCode >= http.StatusInternalServerError:
			return ErrServer{StatusCode: statusCode, Err: wrapped}
		}
		if err == nil {
			return wrapped
		}
	}

	return err
}
