package backend

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies an execution failure. The correction loop is
// only worth running for kinds a rewritten query could fix.
type ErrorKind string

const (
	// ErrorSyntax covers rejected query text: bad syntax, unknown
	// columns/tables/measures, type errors. Correctable.
	ErrorSyntax ErrorKind = "syntax"
	// ErrorPermission covers authorization failures. Environmental.
	ErrorPermission ErrorKind = "permission"
	// ErrorTimeout covers query timeouts. Correctable (a cheaper query
	// may succeed).
	ErrorTimeout ErrorKind = "timeout"
	// ErrorConnection covers transport failures. Environmental.
	ErrorConnection ErrorKind = "connection"
)

// ExecutionError is a structured backend failure.
type ExecutionError struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *ExecutionError) Unwrap() error {
	return e.Cause
}

// Environmental reports whether the failure is about the environment
// rather than the query text, making correction attempts futile.
func (e *ExecutionError) Environmental() bool {
	return e.Kind == ErrorPermission || e.Kind == ErrorConnection
}

// NewExecutionError creates an ExecutionError wrapping cause.
func NewExecutionError(kind ErrorKind, message string, cause error) *ExecutionError {
	return &ExecutionError{Kind: kind, Message: message, Cause: cause}
}

// Classify maps a raw backend error onto the taxonomy. Schema errors
// (unknown column/table/measure) classify as syntax since a rewritten
// query can fix them.
func Classify(err error) *ExecutionError {
	if err == nil {
		return nil
	}

	var execErr *ExecutionError
	if errors.As(err, &execErr) {
		return execErr
	}

	msg := err.Error()
	lower := strings.ToLower(msg)

	kind := ErrorSyntax
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		containsAny(lower, "timeout", "timed out", "cancelled", "canceled", "aborted"):
		kind = ErrorTimeout
	case containsAny(lower, "permission", "access denied", "denied", "unauthorized", "forbidden"):
		kind = ErrorPermission
	case containsAny(lower, "connection refused", "connection reset", "could not connect",
		"no such host", "network", "broken pipe", "login failed", "handshake"):
		kind = ErrorConnection
	case containsAny(lower, "invalid column name", "invalid object name", "cannot be found",
		"not found", "syntax error", "incorrect syntax", "expected", "unexpected",
		"conversion failed", "division by zero", "arithmetic overflow",
		"table expression", "measure"):
		kind = ErrorSyntax
	}

	return &ExecutionError{Kind: kind, Message: msg, Cause: err}
}

func containsAny(s string, terms ...string) bool {
	for _, t := range terms {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}
