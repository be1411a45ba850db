package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// Common domain errors
	ErrNotFound        = errors.New("entity not found")
	ErrAlreadyExists   = errors.New("entity already exists")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrInvalidPhone    = errors.New("invalid phone number")
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrRateLimited     = errors.New("too many requests")

	// Provider (push-payment gateway) errors
	ErrProviderUnavailable = errors.New("payment provider unavailable")
	ErrProviderRejected    = errors.New("payment provider rejected request")
	ErrProviderAuth        = errors.New("payment provider authentication failed")

	// Persistence errors
	ErrOperationFailed    = errors.New("database operation failed")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
	ErrInvalidExecContext = errors.New("invalid database execution context")
)

// ValidationError carries per-field reasons for a rejected request.
type ValidationError struct {
	Fields map[string]string
}

func NewValidationError() *ValidationError {
	return &ValidationError{Fields: map[string]string{}}
}

// Add records a reason for field. The first reason for a field wins.
func (e *ValidationError) Add(field, reason string) {
	if _, ok := e.Fields[field]; ok {
		return
	}
	e.Fields[field] = reason
}

func (e *ValidationError) Empty() bool { return len(e.Fields) == 0 }

// OrNil returns nil when no field failed, so callers can `return v.OrNil()`.
func (e *ValidationError) OrNil() error {
	if e == nil || e.Empty() {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrInvalidArgument }

// ProviderError is returned by push-payment gateways. Kind is one of the
// ErrProvider* sentinels so errors.Is keeps working across the boundary.
type ProviderError struct {
	Kind    error
	Code    string
	Message string
}

func (e *ProviderError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%v: code=%s %s", e.Kind, e.Code, e.Message)
	}
	if e.Message != "" {
		return fmt.Sprintf("%v: %s", e.Kind, e.Message)
	}
	return e.Kind.Error()
}

func (e *ProviderError) Unwrap() error { return e.Kind }
