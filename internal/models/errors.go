package models

import (
	"errors"
	"fmt"
	"time"
)

// Error codes for structured error handling.
const (
	ErrCodeLocked     = "LOCKED"
	ErrCodeStorage    = "STORAGE_ERROR"
	ErrCodeState      = "STATE_ERROR"
	ErrCodeLLM        = "LLM_ERROR"
	ErrCodeConfig     = "CONFIG_ERROR"
	ErrCodeNotFound   = "NOT_FOUND"
	ErrCodeNetwork    = "NETWORK_ERROR"
	ErrCodeRateLimit  = "RATE_LIMIT"
	ErrCodeValidation = "VALIDATION_ERROR"
)

// Sentinel errors
var (
	ErrLocked             = errors.New("database is locked by another process, try again later")
	ErrNoStructuredData   = errors.New("no structured data")
	ErrObjectNotFound     = errors.New("object not found")
	ErrPreconditionFailed = errors.New("precondition failed")
	ErrMalformedLock      = errors.New("malformed lock marker")
	ErrInvalidConfig      = errors.New("invalid configuration")
	ErrNotFound           = errors.New("not found")
	ErrRateLimited        = errors.New("rate limited")
)

// LockError describes a lock that could not be taken or inspected.
type LockError struct {
	Key    string
	Holder string
	Since  time.Time
	Err    error
}

func (e *LockError) Error() string {
	if e.Holder != "" {
		return fmt.Sprintf("lock %s held by %s since %s: %v",
			e.Key, e.Holder, e.Since.UTC().Format(time.RFC3339), e.Err)
	}
	return fmt.Sprintf("lock %s: %v", e.Key, e.Err)
}

func (e *LockError) Unwrap() error {
	return e.Err
}

// StoreError wraps an object store failure with the operation and key.
type StoreError struct {
	Op  string
	Key string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Key, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// APIError represents a non-success response from an outbound HTTP endpoint.
type APIError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"status_code"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d (%s): %s", e.StatusCode, e.Code, e.Message)
}

// ErrorCode maps an error onto one of the ErrCode constants.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrLocked):
		return ErrCodeLocked
	case errors.Is(err, ErrNoStructuredData):
		return ErrCodeLLM
	case errors.Is(err, ErrInvalidConfig), errors.Is(err, ErrMalformedLock):
		return ErrCodeConfig
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrObjectNotFound):
		return ErrCodeNotFound
	case errors.Is(err, ErrRateLimited):
		return ErrCodeRateLimit
	}

	var storeErr *StoreError
	if errors.As(err, &storeErr) {
		return ErrCodeStorage
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return ErrCodeNetwork
	}

	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return ErrCodeValidation
	}

	return ErrCodeState
}
