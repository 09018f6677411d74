// Package dto provides the JSON shapes exchanged over the HTTP API.
package dto

// GenericErrorMessage replaces the message of unclassified failures so that
// storage and driver text never reaches a caller.
const GenericErrorMessage = "An unexpected error occurred"

// Envelope is the response body of every API endpoint.
//
// Successful responses carry Data (omitted for endpoints with nothing to
// return); failed responses carry Error.
type Envelope struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorBody `json:"error,omitempty"`
	TraceID string     `json:"traceId,omitempty"`
}

// ErrorBody describes a failure.
type ErrorBody struct {
	Message string `json:"message"`

	// Details maps field names to messages for validation and request
	// failures that carry field errors.
	Details map[string][]string `json:"details,omitempty"`
}

// OK returns a successful envelope wrapping data.
func OK(data any) Envelope {
	return Envelope{Success: true, Data: data}
}

// Failed returns an error envelope.
func Failed(message string, details map[string][]string) Envelope {
	return Envelope{
		Error: &ErrorBody{Message: message, Details: details},
	}
}

// WithTraceID returns a copy of the envelope carrying the trace ID.
func (e Envelope) WithTraceID(traceID string) Envelope {
	e.TraceID = traceID
	return e
}
