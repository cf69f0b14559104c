package client

import (
	"errors"
	"fmt"
)

// ErrorClass represents a classification of API failures.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassNetwork represents transport failures and timeouts.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassResponse represents bodies that are not the expected JSON:API document.
	ErrorClassResponse ErrorClass = "response"
)

// ErrMissingField is wrapped by ResponseShapeError when a required field is absent.
var ErrMissingField = errors.New("required field missing")

// TransportError is returned when the request never produced an HTTP response.
type TransportError struct {
	Endpoint string
	Query    string
	Err      error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("datacite %s request failed (query %q): %v", e.Endpoint, e.Query, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// APIError represents a non-success HTTP status returned by the API.
type APIError struct {
	StatusCode int
	ErrorClass ErrorClass
	Endpoint   string
	Query      string
	Message    string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("datacite %s error (status %d) on %s (query %q): %s",
		e.ErrorClass, e.StatusCode, e.Endpoint, e.Query, e.Message)
}

// ResponseShapeError is returned when a response body is not valid JSON or
// lacks a field the caller depends on.
type ResponseShapeError struct {
	Endpoint string
	Query    string
	Field    string
	Err      error
}

// Error implements the error interface.
func (e *ResponseShapeError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("unexpected datacite %s response (query %q): field %q: %v",
			e.Endpoint, e.Query, e.Field, e.Err)
	}
	return fmt.Sprintf("unexpected datacite %s response (query %q): %v", e.Endpoint, e.Query, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *ResponseShapeError) Unwrap() error {
	return e.Err
}

// classifyStatus maps an HTTP status code to an error class.
func classifyStatus(statusCode int) ErrorClass {
	switch {
	case statusCode >= 400 && statusCode < 500:
		return ErrorClassClient
	case statusCode >= 500:
		return ErrorClassServer
	default:
		return ""
	}
}
