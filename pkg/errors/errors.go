// Package errors provides the structured error system for snapfs with error codes, categories, and context.
package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"strings"
)

// ErrNotExist is returned by repositories and backends when an object or
// directory entry is missing. It aliases fs.ErrNotExist so callers may test
// with either.
var ErrNotExist = fs.ErrNotExist

// ErrorCode represents a structured error code for snapfs operations.
type ErrorCode string

const (
	// Namespace errors surfaced to protocol adapters
	ErrCodeNotFound           ErrorCode = "NOT_FOUND"
	ErrCodeWrongType          ErrorCode = "WRONG_TYPE"
	ErrCodeForbidden          ErrorCode = "FORBIDDEN"
	ErrCodeGeneralFailure     ErrorCode = "GENERAL_FAILURE"
	ErrCodeNotImplemented     ErrorCode = "NOT_IMPLEMENTED"
	ErrCodeInvalidSeek        ErrorCode = "INVALID_SEEK"
	ErrCodeConfigurationError ErrorCode = "CONFIGURATION_ERROR"
	ErrCodeNameCollision      ErrorCode = "NAME_COLLISION"

	// Configuration errors
	ErrCodeInvalidConfig    ErrorCode = "INVALID_CONFIG"
	ErrCodeConfigLoad       ErrorCode = "CONFIG_LOAD"
	ErrCodeConfigValidation ErrorCode = "CONFIG_VALIDATION"

	// Storage errors
	ErrCodeObjectNotFound   ErrorCode = "OBJECT_NOT_FOUND"
	ErrCodeStorageRead      ErrorCode = "STORAGE_READ"
	ErrCodeStorageWrite     ErrorCode = "STORAGE_WRITE"
	ErrCodeCorruptObject    ErrorCode = "CORRUPT_OBJECT"
	ErrCodeConnectionFailed ErrorCode = "CONNECTION_FAILED"

	// Mount errors
	ErrCodeMountFailed   ErrorCode = "MOUNT_FAILED"
	ErrCodeUnmountFailed ErrorCode = "UNMOUNT_FAILED"

	// Internal errors
	ErrCodeInternalError  ErrorCode = "INTERNAL_ERROR"
	ErrCodePanicRecovered ErrorCode = "PANIC_RECOVERED"
)

// ErrorCategory represents the general category of an error.
type ErrorCategory string

const (
	CategoryNamespace     ErrorCategory = "namespace"
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryStorage       ErrorCategory = "storage"
	CategoryFilesystem    ErrorCategory = "filesystem"
	CategoryInternal      ErrorCategory = "internal"
)

// SnapFSError represents a structured error with context.
type SnapFSError struct {
	Code     ErrorCode              `json:"code"`
	Category ErrorCategory          `json:"category"`
	Message  string                 `json:"message"`
	Details  map[string]interface{} `json:"details,omitempty"`

	Path      string            `json:"path,omitempty"`
	Context   map[string]string `json:"context,omitempty"`
	Cause     error             `json:"-"` // Not serialized to avoid circular refs
	Component string            `json:"component,omitempty"`
	Operation string            `json:"operation,omitempty"`

	HTTPStatus int `json:"http_status,omitempty"`
}

// Error implements the error interface.
func (e *SnapFSError) Error() string {
	var b strings.Builder
	if e.Component != "" {
		if e.Operation != "" {
			fmt.Fprintf(&b, "[%s:%s] ", e.Component, e.Operation)
		} else {
			fmt.Fprintf(&b, "[%s] ", e.Component)
		}
	}
	fmt.Fprintf(&b, "%s: %s", e.Code, e.Message)
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

// Unwrap returns the underlying cause error for error wrapping compatibility.
func (e *SnapFSError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target error (for errors.Is compatibility).
func (e *SnapFSError) Is(target error) bool {
	if other, ok := target.(*SnapFSError); ok {
		return e.Code == other.Code
	}
	return false
}

// String returns a detailed string representation for logging.
func (e *SnapFSError) String() string {
	var parts []string

	parts = append(parts, fmt.Sprintf("Code=%s", e.Code))
	parts = append(parts, fmt.Sprintf("Category=%s", e.Category))
	parts = append(parts, fmt.Sprintf("Message=%q", e.Message))

	if e.Path != "" {
		parts = append(parts, fmt.Sprintf("Path=%q", e.Path))
	}
	if e.Component != "" {
		parts = append(parts, fmt.Sprintf("Component=%s", e.Component))
	}
	if e.Operation != "" {
		parts = append(parts, fmt.Sprintf("Operation=%s", e.Operation))
	}
	if len(e.Details) > 0 {
		details, _ := json.Marshal(e.Details)
		parts = append(parts, fmt.Sprintf("Details=%s", details))
	}
	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("Cause=%q", e.Cause.Error()))
	}

	return fmt.Sprintf("SnapFSError{%s}", strings.Join(parts, ", "))
}

// JSON returns the error as a JSON string.
func (e *SnapFSError) JSON() string {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Sprintf(`{"error":"failed to marshal error: %s"}`, err.Error())
	}
	return string(data)
}

// NewError creates a new snapfs error with default values.
func NewError(code ErrorCode, message string) *SnapFSError {
	return &SnapFSError{
		Code:       code,
		Category:   GetCategory(code),
		Message:    message,
		HTTPStatus: GetDefaultHTTPStatus(code),
	}
}

// GetCategory determines the category based on the error code.
func GetCategory(code ErrorCode) ErrorCategory {
	switch code {
	case ErrCodeNotFound, ErrCodeWrongType, ErrCodeForbidden, ErrCodeGeneralFailure,
		ErrCodeNotImplemented, ErrCodeInvalidSeek, ErrCodeNameCollision:
		return CategoryNamespace
	case ErrCodeConfigurationError, ErrCodeInvalidConfig, ErrCodeConfigLoad, ErrCodeConfigValidation:
		return CategoryConfiguration
	case ErrCodeObjectNotFound, ErrCodeStorageRead, ErrCodeStorageWrite, ErrCodeCorruptObject,
		ErrCodeConnectionFailed:
		return CategoryStorage
	case ErrCodeMountFailed, ErrCodeUnmountFailed:
		return CategoryFilesystem
	default:
		return CategoryInternal
	}
}

// GetDefaultHTTPStatus returns the default HTTP status for an error code.
func GetDefaultHTTPStatus(code ErrorCode) int {
	statusMap := map[ErrorCode]int{
		ErrCodeInvalidSeek:        400, // Bad Request
		ErrCodeInvalidConfig:      400,
		ErrCodeConfigValidation:   400,
		ErrCodeForbidden:          403, // Forbidden
		ErrCodeNotFound:           404, // Not Found
		ErrCodeObjectNotFound:     404,
		ErrCodeWrongType:          405, // Method Not Allowed
		ErrCodeNameCollision:      409, // Conflict
		ErrCodeNotImplemented:     501, // Not Implemented
		ErrCodeConnectionFailed:   502, // Bad Gateway
		ErrCodeConfigurationError: 500,
	}

	if status, ok := statusMap[code]; ok {
		return status
	}
	return 500
}

// WithContext adds contextual information to an error
func (e *SnapFSError) WithContext(key, value string) *SnapFSError {
	if e.Context == nil {
		e.Context = make(map[string]string)
	}
	e.Context[key] = value
	return e
}

// WithDetail adds detailed information to an error
func (e *SnapFSError) WithDetail(key string, value interface{}) *SnapFSError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithComponent sets the component for an error
func (e *SnapFSError) WithComponent(component string) *SnapFSError {
	e.Component = component
	return e
}

// WithOperation sets the operation for an error
func (e *SnapFSError) WithOperation(operation string) *SnapFSError {
	e.Operation = operation
	return e
}

// WithPath sets the namespace path the error refers to
func (e *SnapFSError) WithPath(path string) *SnapFSError {
	e.Path = path
	return e
}

// WithCause sets the underlying cause
func (e *SnapFSError) WithCause(cause error) *SnapFSError {
	e.Cause = cause
	return e
}

// NotFound reports a path segment without a match.
func NotFound(path string) *SnapFSError {
	return NewError(ErrCodeNotFound, fmt.Sprintf("no such file or directory: %s", path)).WithPath(path)
}

// WrongType reports a directory operation on a file or the reverse.
func WrongType(path, message string) *SnapFSError {
	return NewError(ErrCodeWrongType, fmt.Sprintf("%s: %s", message, path)).WithPath(path)
}

// Forbidden reports a write-class request on the read-only namespace.
func Forbidden(operation, path string) *SnapFSError {
	return NewError(ErrCodeForbidden, fmt.Sprintf("read-only filesystem: %s", path)).
		WithPath(path).
		WithOperation(operation)
}

// GeneralFailure collapses a repository error at the namespace boundary.
func GeneralFailure(operation, path string, cause error) *SnapFSError {
	return NewError(ErrCodeGeneralFailure, fmt.Sprintf("repository failure on %s", path)).
		WithPath(path).
		WithOperation(operation).
		WithCause(cause)
}

// ConfigurationError reports an invalid construction input such as an unknown
// template placeholder.
func ConfigurationError(format string, args ...interface{}) *SnapFSError {
	return NewError(ErrCodeConfigurationError, fmt.Sprintf(format, args...))
}

// NameCollision reports two distinct entries claiming the same name in one
// directory of the namespace.
func NameCollision(path string) *SnapFSError {
	return NewError(ErrCodeNameCollision, fmt.Sprintf("name collision at %s", path)).WithPath(path)
}

// NotImplemented reports a query that does not apply to the node.
func NotImplemented(operation string) *SnapFSError {
	return NewError(ErrCodeNotImplemented, operation+" is not supported for this node").
		WithOperation(operation)
}

// CodeOf returns the code of the first SnapFSError in err's chain, or
// ErrCodeInternalError when there is none.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var snapErr *SnapFSError
	if errors.As(err, &snapErr) {
		return snapErr.Code
	}
	return ErrCodeInternalError
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}

// IsNotExist reports whether err means a missing object or entry.
func IsNotExist(err error) bool {
	return errors.Is(err, ErrNotExist) || HasCode(err, ErrCodeNotFound) || HasCode(err, ErrCodeObjectNotFound)
}
