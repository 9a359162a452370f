package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"
)

// GenericFailureMessage is shown when the backend gave no usable detail.
const GenericFailureMessage = "Failed to load chart data"

// NetworkError means no response was received.
type NetworkError struct {
	Op  string
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("backend: %s %s: network error: %v", e.Op, e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// TimeoutError means the request exceeded its bound.
type TimeoutError struct {
	Op      string
	URL     string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("backend: %s %s: timed out after %s", e.Op, e.URL, e.Timeout)
}

// ServerError means the backend responded with a non-2xx status.
type ServerError struct {
	Status int
	Detail string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("backend: upstream %d: %s", e.Status, e.Detail)
}

// DisplayMessage turns any fetch error into the text shown in a failed chart:
// the server's detail verbatim when present, a generic message otherwise.
func DisplayMessage(err error) string {
	var serr *ServerError
	if errors.As(err, &serr) && serr.Detail != "" {
		return serr.Detail
	}
	return GenericFailureMessage
}

// IsTimeout reports whether err is a TimeoutError.
func IsTimeout(err error) bool {
	var terr *TimeoutError
	return errors.As(err, &terr)
}

// classifyTransportError maps an error from http.Client.Do (or from reading
// the body) onto the taxonomy. Caller cancellation is passed through as-is.
func classifyTransportError(op, url string, timeout time.Duration, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &TimeoutError{Op: op, URL: url, Timeout: timeout}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &TimeoutError{Op: op, URL: url, Timeout: timeout}
	}

	return &NetworkError{Op: op, URL: url, Err: err}
}

// serverErrorFromBody extracts detail from a failed response body.
func serverErrorFromBody(status int, body []byte) *ServerError {
	detail := parseDetail(body)
	if detail == "" {
		detail = fmt.Sprintf("request failed with status %d (%s)", status, http.StatusText(status))
	}
	return &ServerError{Status: status, Detail: detail}
}

func parseDetail(body []byte) string {
	var resp errorResponse
	if err := json.Unmarshal(body, &resp); err != nil || len(resp.Detail) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(resp.Detail, &s); err == nil {
		return s
	}

	var issues []validationIssue
	if err := json.Unmarshal(resp.Detail, &issues); err == nil {
		msgs := make([]string, 0, len(issues))
		for _, is := range issues {
			if is.Msg != "" {
				msgs = append(msgs, is.Msg)
			}
		}
		return strings.Join(msgs, "; ")
	}

	return ""
}
