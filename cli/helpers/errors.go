package helpers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// CliError represents a CLI-specific error with enhanced context
type CliError struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Details   string         `json:"details,omitempty"`
	Context   map[string]any `json:"context,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

func (e *CliError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewCliError creates a new CLI error with context
func NewCliError(code, message string, details ...string) *CliError {
	err := &CliError{
		Code:      code,
		Message:   message,
		Timestamp: time.Now(),
		Context:   make(map[string]any),
	}
	if len(details) > 0 {
		err.Details = details[0]
	}
	return err
}

// WithContext adds context to the error
func (e *CliError) WithContext(key string, value any) *CliError {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// IsNetworkError checks if an error is a network-related error
func IsNetworkError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	for _, keyword := range []string{
		"connection refused", "connection reset", "no route to host",
		"network unreachable", "name resolution failed", "i/o timeout",
	} {
		if strings.Contains(errStr, keyword) {
			return true
		}
	}
	return false
}

// CategorizeError converts well-known failures to structured CLI errors.
// It returns nil when err has no dedicated category.
func CategorizeError(err error) *CliError {
	var cliErr *CliError
	switch {
	case errors.As(err, &cliErr):
		return cliErr
	case errors.Is(err, context.Canceled):
		return NewCliError("OPERATION_CANCELED", "Operation was canceled by user")
	case errors.Is(err, context.DeadlineExceeded):
		return NewCliError("OPERATION_TIMEOUT", "Operation timed out")
	case IsNetworkError(err):
		return NewCliError("NETWORK_ERROR", "Network connection failed", err.Error())
	default:
		return nil
	}
}

// FormatError formats errors based on output mode
func FormatError(err error, mode Mode) string {
	if err == nil {
		return ""
	}
	message, details := err.Error(), ""
	if cliErr := CategorizeError(err); cliErr != nil {
		message, details = cliErr.Message, cliErr.Details
	}
	if mode == ModeJSON {
		out, merr := json.MarshalIndent(map[string]any{"error": message, "details": details}, "", "  ")
		if merr != nil {
			return `{"error": "JSON marshaling failed", "details": ""}`
		}
		return string(out)
	}
	result := errorStyle.Render("✗ " + message)
	if details != "" {
		result += "\n" + detailStyle.Render(fmt.Sprintf("Details: %s", details))
	}
	return result
}

// OutputError outputs an error to stderr in the appropriate format
func OutputError(err error, mode Mode) {
	if err == nil {
		return
	}
	fmt.Fprintln(os.Stderr, FormatError(err, mode))
}

var (
	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B")).
			Bold(true)
	detailStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888")).
			Italic(true)
)
