package core

import (
	"errors"
	"fmt"
)

const (
	ErrCodeConfiguration = "CONFIGURATION_ERROR"
	ErrCodeExecution     = "EXECUTION_ERROR"
	ErrCodeAggregation   = "AGGREGATION_ERROR"
	ErrCodeNotFound      = "NOT_FOUND"
)

// Error is the coded error carried across package boundaries.
type Error struct {
	Message string         `json:"message"`
	Code    string         `json:"code"`
	Details map[string]any `json:"details,omitempty"`
	err     error
}

func NewError(err error, code string, details map[string]any) *Error {
	msg := code
	if err != nil {
		msg = err.Error()
	}
	return &Error{
		Message: msg,
		Code:    code,
		Details: details,
		err:     err,
	}
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Code == "" || e.Code == e.Message {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.err
}

func (e *Error) AsMap() map[string]any {
	if e == nil {
		return nil
	}
	res := map[string]any{
		"message": e.Message,
		"code":    e.Code,
	}
	if len(e.Details) > 0 {
		res["details"] = e.Details
	}
	return res
}

// HasCode reports whether err wraps a *Error with the given code.
func HasCode(err error, code string) bool {
	var coreErr *Error
	if errors.As(err, &coreErr) {
		return coreErr.Code == code
	}
	return false
}

// ConfigurationError wraps err as a configuration failure.
func ConfigurationError(err error, details map[string]any) *Error {
	return NewError(err, ErrCodeConfiguration, details)
}
