package models

import (
	"encoding/json"
	"net/http"
	"strconv"
)

// Problem is an RFC 7807 error body, served as application/problem+json.
type Problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`

	Detail string `json:"detail,omitempty"`

	// Instance is the request path the problem occurred on.
	Instance string `json:"instance,omitempty"`

	// TraceID echoes the X-Request-Id of the failed request.
	TraceID string `json:"traceId"`

	Errors []FieldError `json:"errors,omitempty"`

	// RetryAfter is sent as the Retry-After header, in seconds, when positive.
	RetryAfter int `json:"-"`
}

// FieldError points at one invalid request field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Field error codes.
const (
	CodeRequired      = "REQUIRED"
	CodeOutOfRange    = "OUT_OF_RANGE"
	CodeInvalidNumber = "INVALID_NUMBER"
	CodeUnknownPreset = "UNKNOWN_PRESET"
)

// Required reports a missing field.
func Required(field string) FieldError {
	return FieldError{Field: field, Message: "is required", Code: CodeRequired}
}

// OutOfRange reports a field outside its allowed range.
func OutOfRange(field, message string) FieldError {
	return FieldError{Field: field, Message: message, Code: CodeOutOfRange}
}

const problemBase = "https://cityscope.dev/problems/"

// Problem types.
const (
	ProblemTypeValidation      = problemBase + "validation-error"
	ProblemTypeNotFound        = problemBase + "not-found"
	ProblemTypeConflict        = problemBase + "conflict"
	ProblemTypeTooManyRequests = problemBase + "too-many-requests"
	ProblemTypeInternal        = problemBase + "internal-error"
	ProblemTypeUnavailable     = problemBase + "service-unavailable"
	ProblemTypeTLSRequired     = problemBase + "tls-required"
	ProblemTypeMediaType       = problemBase + "unsupported-media-type"
)

var problemTitles = map[string]string{
	ProblemTypeValidation:      "Validation error",
	ProblemTypeNotFound:        "Not found",
	ProblemTypeConflict:        "Conflict",
	ProblemTypeTooManyRequests: "Too many requests",
	ProblemTypeInternal:        "Internal server error",
	ProblemTypeUnavailable:     "Service unavailable",
	ProblemTypeTLSRequired:     "TLS required",
	ProblemTypeMediaType:       "Unsupported media type",
}

// NewProblem creates a Problem with an explicit title.
func NewProblem(problemType, title string, status int, traceID string) *Problem {
	return &Problem{
		Type:    problemType,
		Title:   title,
		Status:  status,
		TraceID: traceID,
	}
}

func newKnown(problemType string, status int, traceID, detail string) *Problem {
	p := NewProblem(problemType, problemTitles[problemType], status, traceID)
	p.Detail = detail
	return p
}

// At sets the request path the problem occurred on.
func (p *Problem) At(instance string) *Problem {
	p.Instance = instance
	return p
}

// Write sends the problem with its status code.
func (p *Problem) Write(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Content-Type", "application/problem+json")
	if p.TraceID != "" {
		h.Set("X-Request-Id", p.TraceID)
	}
	if p.RetryAfter > 0 {
		h.Set("Retry-After", strconv.Itoa(p.RetryAfter))
	}
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

// NewBadRequest creates a 400 validation problem.
func NewBadRequest(traceID, detail string, errors []FieldError) *Problem {
	p := newKnown(ProblemTypeValidation, http.StatusBadRequest, traceID, detail)
	p.Errors = errors
	return p
}

func NewNotFound(traceID, detail string) *Problem {
	return newKnown(ProblemTypeNotFound, http.StatusNotFound, traceID, detail)
}

func NewConflict(traceID, detail string) *Problem {
	return newKnown(ProblemTypeConflict, http.StatusConflict, traceID, detail)
}

// NewTooManyRequests creates a 429 problem. retryAfter is in seconds.
func NewTooManyRequests(traceID string, retryAfter int) *Problem {
	p := newKnown(ProblemTypeTooManyRequests, http.StatusTooManyRequests, traceID,
		"Rate limit exceeded. Please try again later.")
	p.RetryAfter = retryAfter
	return p
}

func NewInternalError(traceID, detail string) *Problem {
	return newKnown(ProblemTypeInternal, http.StatusInternalServerError, traceID, detail)
}

func NewServiceUnavailable(traceID, detail string) *Problem {
	return newKnown(ProblemTypeUnavailable, http.StatusServiceUnavailable, traceID, detail)
}

// NewTLSRequired rejects a request forwarded over plain HTTP.
func NewTLSRequired(traceID string) *Problem {
	return newKnown(ProblemTypeTLSRequired, http.StatusForbidden, traceID, "This endpoint requires HTTPS")
}

// NewUnsupportedMediaType rejects a mutation whose body is not JSON.
func NewUnsupportedMediaType(traceID string) *Problem {
	return newKnown(ProblemTypeMediaType, http.StatusUnsupportedMediaType, traceID,
		"Content-Type must be application/json")
}
