package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// StatusError is a non-2xx response. The server's JSON error body is decoded
// into Message/Errors when it has the usual Spring shapes.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Status     string
	Message    string
	Errors     []string
}

func (e *StatusError) Error() string {
	s := fmt.Sprintf("%s %s: request failed", e.Method, e.URL)
	if e.Status != "" {
		s += ": " + e.Status
	}
	if e.Message != "" {
		s += ": " + e.Message
	}
	if len(e.Errors) > 0 {
		s += ": " + strings.Join(e.Errors, "; ")
	}
	return s
}

func newStatusError(req *http.Request, resp *http.Response, body []byte) *StatusError {
	e := &StatusError{
		Method:     req.Method,
		URL:        req.URL.String(),
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
	}
	var parsed struct {
		Message string `json:"message"`
		Error   string `json:"error"`
		Errors  []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if json.Unmarshal(body, &parsed) == nil {
		e.Message = parsed.Message
		if e.Message == "" {
			e.Message = parsed.Error
		}
		for _, item := range parsed.Errors {
			if item.Message != "" {
				e.Errors = append(e.Errors, item.Message)
			}
		}
	}
	if e.Message == "" && len(e.Errors) == 0 && len(body) > 0 {
		e.Message = strings.TrimSpace(string(body))
	}
	return e
}

func statusCode(err error) (int, bool) {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode, true
	}
	return 0, false
}

// IsAuthFailure reports whether err is a 401 or 403 response.
func IsAuthFailure(err error) bool {
	code, ok := statusCode(err)
	return ok && (code == http.StatusUnauthorized || code == http.StatusForbidden)
}

// IsNotFound reports whether err is a 404 response.
func IsNotFound(err error) bool {
	code, ok := statusCode(err)
	return ok && code == http.StatusNotFound
}

// IsConflict reports whether err is a request the server rejected as
// invalid or conflicting (400, 409, 422).
func IsConflict(err error) bool {
	code, ok := statusCode(err)
	return ok && (code == http.StatusBadRequest || code == http.StatusConflict || code == http.StatusUnprocessableEntity)
}

// IsServerError reports whether err is a 5xx response.
func IsServerError(err error) bool {
	code, ok := statusCode(err)
	return ok && code >= 500
}
