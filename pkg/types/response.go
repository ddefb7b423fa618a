// Package types holds the JSON shapes shared by the HTTP handlers and the API client.
package types

// RequestIDHeader is set on every response and echoed in error bodies.
const RequestIDHeader = "X-Request-Id"

// Envelope wraps every successful response body.
type Envelope[T any] struct {
	Data T `json:"data"`
}

// APIError is the public description of a failed request.
type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Details   any    `json:"details,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}
