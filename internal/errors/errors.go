package errors

import (
	"fmt"
	"strings"
)

// ErrorCode represents stable error codes for all failure modes
type ErrorCode string

const (
	// UnresolvedEagerImport indicates an eager edge whose target is not in the graph (fatal)
	UnresolvedEagerImport ErrorCode = "UNRESOLVED_EAGER_IMPORT"
	// UnresolvedOptionalImport indicates a guarded import that failed to resolve (recovered)
	UnresolvedOptionalImport ErrorCode = "UNRESOLVED_OPTIONAL_IMPORT"
	// CyclicExportAmbiguity indicates two re-export-all sources provide the same name (recovered)
	CyclicExportAmbiguity ErrorCode = "CYCLIC_EXPORT_AMBIGUITY"
	// OpaqueExportsDowngrade indicates a module surface could not be enumerated (expected)
	OpaqueExportsDowngrade ErrorCode = "OPAQUE_EXPORTS_DOWNGRADE"
	// UnknownExportRequested indicates a name was requested that a static surface lacks (recovered)
	UnknownExportRequested ErrorCode = "UNKNOWN_EXPORT_REQUESTED"
	// InvalidGraph indicates malformed graph input
	InvalidGraph ErrorCode = "INVALID_GRAPH"
	// InvalidConfig indicates malformed configuration
	InvalidConfig ErrorCode = "INVALID_CONFIG"
	// PassCancelled indicates the pass was abandoned before completion
	PassCancelled ErrorCode = "PASS_CANCELLED"
	// InternalError indicates unexpected error
	InternalError ErrorCode = "INTERNAL_ERROR"
)

// Fatal reports whether errors with this code abort the pass.
func (c ErrorCode) Fatal() bool {
	switch c {
	case UnresolvedOptionalImport, CyclicExportAmbiguity, OpaqueExportsDowngrade, UnknownExportRequested:
		return false
	}
	return true
}

// ShakerError represents an optimizer error with code, message and the offending module/edge
type ShakerError struct {
	Code      ErrorCode   `json:"code"`
	Message   string      `json:"message"`
	Module    string      `json:"module,omitempty"`
	Specifier string      `json:"specifier,omitempty"`
	Details   interface{} `json:"details,omitempty"`
	cause     error       // Underlying error (not exported to JSON)
}

// NewShakerError creates a new ShakerError
func NewShakerError(code ErrorCode, message string, cause error) *ShakerError {
	return &ShakerError{
		Code:    code,
		Message: message,
		cause:   cause,
	}
}

// Unresolved creates the fatal error for an eager edge with no target module
func Unresolved(module, specifier, target string) *ShakerError {
	msg := fmt.Sprintf("cannot resolve %q", specifier)
	if target != "" {
		msg = fmt.Sprintf("cannot resolve %q (expected module %s)", specifier, target)
	}
	return &ShakerError{
		Code:      UnresolvedEagerImport,
		Message:   msg,
		Module:    module,
		Specifier: specifier,
	}
}

// Error implements the error interface
func (e *ShakerError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", e.Code, e.Message)
	if e.Module != "" {
		b.WriteString(" in ")
		b.WriteString(e.Module)
	}
	if e.cause != nil {
		b.WriteString(": ")
		b.WriteString(e.cause.Error())
	}
	return b.String()
}

// Unwrap returns the underlying error
func (e *ShakerError) Unwrap() error {
	return e.cause
}

// Is matches any ShakerError carrying the same code
func (e *ShakerError) Is(target error) bool {
	t, ok := target.(*ShakerError)
	if !ok {
		return false
	}
	return t.Code == e.Code && t.Message == ""
}

// WithDetails adds details to the error
func (e *ShakerError) WithDetails(details interface{}) *ShakerError {
	e.Details = details
	return e
}

// WithModule records the module that owns the failing edge
func (e *ShakerError) WithModule(module, specifier string) *ShakerError {
	e.Module = module
	e.Specifier = specifier
	return e
}

// Sentinel returns a value usable with errors.Is to match any error of code
func Sentinel(code ErrorCode) error {
	return &ShakerError{Code: code}
}

// Hints maps error codes to a suggested remedy
var Hints = map[ErrorCode]string{
	UnresolvedEagerImport: "check that the resolver registered the module, or guard the import with try/catch to make it optional",
	InvalidGraph:          "regenerate the graph manifest from the transformer output",
	InvalidConfig:         "run with defaults by removing .shaker/config.json",
}

// Hint returns the suggested remedy for an error code
func Hint(code ErrorCode) string {
	return Hints[code]
}
