// Package gemini implements the studyNERD backend collaborators on Google's
// generative-language service: the tutoring chat client and the Imagen image
// client.
package gemini

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"
)

// TransportError is a backend call failure. Code carries the HTTP status when
// one is known, zero otherwise.
type TransportError struct {
	Code    int
	Message string
	Err     error
}

func (e *TransportError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("transport error (%d): %s", e.Code, e.Message)
	}
	return fmt.Sprintf("transport error: %s", e.Message)
}

func (e *TransportError) Unwrap() error { return e.Err }

// AuthDenied reports whether the failure carries an authorization-denied
// signal. The Builder uses this to trigger the key-selection flow.
func (e *TransportError) AuthDenied() bool {
	if e.Code == http.StatusForbidden {
		return true
	}
	return strings.Contains(e.Message, "PERMISSION_DENIED")
}

// classifyErr wraps an SDK or HTTP failure into a TransportError, extracting
// the status code when the genai SDK exposes one.
func classifyErr(err error) *TransportError {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		msg := apiErr.Message
		if apiErr.Status != "" {
			msg = apiErr.Status + ": " + msg
		}
		return &TransportError{Code: apiErr.Code, Message: msg, Err: err}
	}
	return &TransportError{Message: err.Error(), Err: err}
}
