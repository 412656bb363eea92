package config

import (
	"fmt"
	"strings"
)

// Error codes for categorization. These map onto the ConfigurationInvalid
// failure kind; callers that need to distinguish sub-cases should match on
// Code rather than the formatted message.
const (
	ErrCodeUnreadable        = "CONFIG_UNREADABLE"
	ErrCodeParse             = "CONFIG_PARSE"
	ErrCodeDuplicateEnv      = "DUPLICATE_ENVIRONMENT_ID"
	ErrCodeDuplicateHook     = "DUPLICATE_HOOK_ID"
	ErrCodeUnknownEnv        = "UNKNOWN_HOOK_ENVIRONMENT"
	ErrCodeBadPattern        = "INVALID_PATTERN"
	ErrCodeValidationFailed  = "VALIDATION_FAILED"
)

// UserError is a user-facing, actionable error.
type UserError struct {
	Code       string
	Message    string
	Context    string
	Suggestion string
	Underlying error
}

// Error returns the formatted error message.
func (e *UserError) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	if e.Context != "" {
		fmt.Fprintf(&b, " (at %s)", e.Context)
	}
	return b.String()
}

// Unwrap supports errors.Is/errors.As against the wrapped cause.
func (e *UserError) Unwrap() error {
	return e.Underlying
}

// Is supports errors.Is by comparing error codes.
func (e *UserError) Is(target error) bool {
	t, ok := target.(*UserError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// Format returns a fully formatted, multi-line error with suggestion.
func (e *UserError) Format() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", e.Code, e.Message)
	if e.Context != "" {
		fmt.Fprintf(&b, "\n  Location: %s", e.Context)
	}
	if e.Suggestion != "" {
		fmt.Fprintf(&b, "\n  Suggestion: %s", e.Suggestion)
	}
	return b.String()
}

// NewUserError builds a UserError from a code and message.
func NewUserError(code, message string) *UserError {
	return &UserError{Code: code, Message: message}
}

// WithContext returns a copy of e with Context set.
func (e *UserError) WithContext(ctx string) *UserError {
	cp := *e
	cp.Context = ctx
	return &cp
}

// WithSuggestion returns a copy of e with Suggestion set.
func (e *UserError) WithSuggestion(s string) *UserError {
	cp := *e
	cp.Suggestion = s
	return &cp
}

// WithUnderlying returns a copy of e wrapping err.
func (e *UserError) WithUnderlying(err error) *UserError {
	cp := *e
	cp.Underlying = err
	return &cp
}

// ErrorList accumulates validation errors so a config can be reported
// comprehensively instead of failing on the first problem found.
type ErrorList struct {
	errors []*UserError
}

// NewErrorList creates an empty ErrorList.
func NewErrorList() *ErrorList {
	return &ErrorList{}
}

// Add appends err, ignoring nil.
func (l *ErrorList) Add(err *UserError) {
	if err != nil {
		l.errors = append(l.errors, err)
	}
}

// HasErrors reports whether any error has been added.
func (l *ErrorList) HasErrors() bool {
	return len(l.errors) > 0
}

// Errors returns a copy of the accumulated errors.
func (l *ErrorList) Errors() []*UserError {
	out := make([]*UserError, len(l.errors))
	copy(out, l.errors)
	return out
}

// AsError returns l as an error, or nil if empty.
func (l *ErrorList) AsError() error {
	if !l.HasErrors() {
		return nil
	}
	return l
}

// Error implements the error interface.
func (l *ErrorList) Error() string {
	if len(l.errors) == 0 {
		return ""
	}
	if len(l.errors) == 1 {
		return l.errors[0].Error()
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d configuration errors found:\n", len(l.errors))
	for i, err := range l.errors {
		fmt.Fprintf(&b, "  %d. %s\n", i+1, err.Error())
	}
	return b.String()
}
