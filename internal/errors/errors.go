package errors

import (
	"errors"
	"fmt"
)

// Error types for the cachemark analyzer.
type ErrorType string

const (
	// Namespace resolution failures, fatal for the current source unit
	ErrorTypeMissingNamespace    ErrorType = "missing_namespace"
	ErrorTypeIncompleteNamespace ErrorType = "incomplete_namespace"

	// Token stream failures
	ErrorTypeMalformedScope ErrorType = "malformed_scope"
	ErrorTypeParse          ErrorType = "parse"

	// Environment errors
	ErrorTypeConfig ErrorType = "config"
	ErrorTypeFile   ErrorType = "file"
)

// AnalysisError carries the failure type and file context for one source unit.
type AnalysisError struct {
	Type       ErrorType
	FilePath   string
	Operation  string
	Underlying error
}

// New creates an analysis error for the given operation.
func New(t ErrorType, op string, err error) *AnalysisError {
	return &AnalysisError{Type: t, Operation: op, Underlying: err}
}

// WithFile adds file context to the error.
func (e *AnalysisError) WithFile(path string) *AnalysisError {
	e.FilePath = path
	return e
}

// Error implements the error interface.
func (e *AnalysisError) Error() string {
	switch {
	case e.FilePath != "" && e.Underlying != nil:
		return fmt.Sprintf("%s: %s failed for %s: %v", e.Type, e.Operation, e.FilePath, e.Underlying)
	case e.FilePath != "":
		return fmt.Sprintf("%s: %s failed for %s", e.Type, e.Operation, e.FilePath)
	case e.Underlying != nil:
		return fmt.Sprintf("%s: %s failed: %v", e.Type, e.Operation, e.Underlying)
	}
	return fmt.Sprintf("%s: %s failed", e.Type, e.Operation)
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *AnalysisError) Unwrap() error {
	return e.Underlying
}

// MissingNamespace reports that fix mode needed a namespace and the unit
// declares none.
func MissingNamespace() *AnalysisError {
	return New(ErrorTypeMissingNamespace, "namespace resolution",
		errors.New("no namespace declaration found"))
}

// IncompleteNamespace reports a namespace declaration with fewer than two
// segments, which cannot form a marker prefix.
func IncompleteNamespace(found string) *AnalysisError {
	return New(ErrorTypeIncompleteNamespace, "namespace resolution",
		fmt.Errorf("namespace %q has fewer than two segments", found))
}

// IsNamespaceFailure reports whether err is either namespace resolution error.
func IsNamespaceFailure(err error) bool {
	var ae *AnalysisError
	if !errors.As(err, &ae) {
		return false
	}
	return ae.Type == ErrorTypeMissingNamespace || ae.Type == ErrorTypeIncompleteNamespace
}

// TypeOf returns the analysis error type, or "" for foreign errors.
func TypeOf(err error) ErrorType {
	var ae *AnalysisError
	if errors.As(err, &ae) {
		return ae.Type
	}
	return ""
}
