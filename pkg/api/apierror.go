// Package api exposes the settlement pipeline over HTTP: JWT-backed
// principals, RFC 7807 error responses, per-IP rate limiting, and JSON
// handlers for each gated operation.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/VitaClaim-Labs/vitaclaim/pkg/contracts"
	"github.com/VitaClaim-Labs/vitaclaim/pkg/treasury"
)

// ProblemDetail implements RFC 7807 (Problem Details for HTTP APIs).
// All API error responses use this format.
type ProblemDetail struct {
	Type string `json:"type"`
	// Title is a short, human-readable summary of the problem type.
	Title string `json:"title"`
	// Status is the HTTP status code.
	Status int `json:"status"`
	// Detail is a human-readable explanation specific to this occurrence.
	Detail string `json:"detail,omitempty"`
	// Instance is a URI reference identifying the specific occurrence.
	Instance string `json:"instance,omitempty"`
	// Code is the stable contract error code, when the failure maps to one.
	Code int `json:"code,omitempty"`
	// TraceID links to the request id for this occurrence.
	TraceID string `json:"trace_id,omitempty"`
}

// Error implements the error interface.
func (p *ProblemDetail) Error() string {
	return fmt.Sprintf("%s: %s", p.Title, p.Detail)
}

// WriteError writes an RFC 7807 Problem Detail JSON response.
func WriteError(w http.ResponseWriter, status int, title, detail string) {
	writeProblem(w, &ProblemDetail{
		Type:   fmt.Sprintf("https://vitaclaim.dev/errors/%d", status),
		Title:  title,
		Status: status,
		Detail: detail,
	})
}

// WriteDomainError maps a pipeline error onto an HTTP response,
// preserving the contract error code in the body.
func WriteDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	problem := &ProblemDetail{
		Type:     fmt.Sprintf("https://vitaclaim.dev/errors/%d", status),
		Title:    http.StatusText(status),
		Status:   status,
		Detail:   err.Error(),
		Instance: r.URL.Path,
		TraceID:  w.Header().Get("X-Request-ID"),
	}
	var coded *contracts.CodedError
	if errors.As(err, &coded) {
		problem.Code = coded.Code
	}
	writeProblem(w, problem)
}

// statusFor buckets pipeline errors into HTTP statuses by their stable
// code: authorization failures map to 403, missing records to 404,
// duplicates and capacity to 409, everything else coded to 422.
func statusFor(err error) int {
	if errors.Is(err, treasury.ErrInsufficientFunds) {
		return http.StatusPaymentRequired
	}
	var coded *contracts.CodedError
	if !errors.As(err, &coded) {
		return http.StatusInternalServerError
	}
	switch coded.Code {
	case 100, 200, 300:
		return http.StatusForbidden
	case 101, 102, 202, 208, 301, 304, 315:
		return http.StatusNotFound
	case 113, 203, 213, 303, 312:
		return http.StatusConflict
	default:
		return http.StatusUnprocessableEntity
	}
}

func writeProblem(w http.ResponseWriter, problem *ProblemDetail) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(problem.Status)
	_ = json.NewEncoder(w).Encode(problem)
}

// WriteBadRequest writes a 400 error response.
func WriteBadRequest(w http.ResponseWriter, detail string) {
	WriteError(w, http.StatusBadRequest, "Bad Request", detail)
}

// WriteUnauthorized writes a 401 error response.
func WriteUnauthorized(w http.ResponseWriter, detail string) {
	if detail == "" {
		detail = "Authentication required"
	}
	WriteError(w, http.StatusUnauthorized, "Unauthorized", detail)
}

// WriteNotFound writes a 404 error response.
func WriteNotFound(w http.ResponseWriter, detail string) {
	WriteError(w, http.StatusNotFound, "Not Found", detail)
}

// WriteTooManyRequests writes a 429 error response with Retry-After header.
func WriteTooManyRequests(w http.ResponseWriter, retryAfterSecs int) {
	w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfterSecs))
	WriteError(w, http.StatusTooManyRequests, "Too Many Requests", "Rate limit exceeded. Retry after the specified interval.")
}

// WriteInternal writes a 500 error response.
// The err parameter is logged but never exposed to the client.
func WriteInternal(w http.ResponseWriter, err error) {
	slog.Error("internal server error", "error", err)
	WriteError(w, http.StatusInternalServerError, "Internal Server Error", "An unexpected error occurred. Please try again later.")
}
