package models

import "github.com/jordanlanch/outreach/pkg/domain"

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error    string              `json:"error"`
	Message  string              `json:"message,omitempty"`
	Fields   []domain.FieldError `json:"fields,omitempty"`
	Warnings []string            `json:"warnings,omitempty"`
}

// SuccessResponse represents a success response
type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// ListResponse wraps collection results
type ListResponse[T any] struct {
	Data  []T `json:"data"`
	Total int `json:"total"`
}

// HealthResponse is returned by the health check
type HealthResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks"`
	Timestamp string            `json:"timestamp"`
}
