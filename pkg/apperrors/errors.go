package apperrors

import "errors"

// Common errors
var (
	// Transport errors
	ErrTransportUnavailable = errors.New("transport unavailable")
	ErrNotConnected         = errors.New("not connected")
	ErrAlreadyConnected     = errors.New("already connected")

	// Session errors
	ErrNoSession    = errors.New("no session")
	ErrTokenInvalid = errors.New("invalid token")

	// Room errors
	ErrRoomNotJoined  = errors.New("room was never joined")
	ErrInvalidRoomKey = errors.New("invalid room key")

	// History errors
	ErrHistoryLoadFailed = errors.New("history load failed")
	ErrDuplicateMessage  = errors.New("duplicate message")
	ErrLogClosed         = errors.New("message log closed")

	// Access errors
	ErrAccessDenied = errors.New("access denied")

	// Send errors
	ErrSendRejected = errors.New("send rejected")
	ErrEmptyMessage = errors.New("empty message")

	// Upload errors
	ErrUploadFailed = errors.New("upload failed")
)

// NewSendRejectedError creates a new custom error for a rejected send with a message
func NewSendRejectedError(message string) error {
	return &CustomError{
		Err:     ErrSendRejected,
		Message: message,
	}
}

// NewAccessDeniedError creates a new custom error for access denial with a message
func NewAccessDeniedError(message string) error {
	return &CustomError{
		Err:     ErrAccessDenied,
		Message: message,
	}
}

// NewHistoryLoadError creates a new custom error for a failed history fetch with a message
func NewHistoryLoadError(message string) error {
	return &CustomError{
		Err:     ErrHistoryLoadFailed,
		Message: message,
	}
}

// NewTransportError creates a new custom error for transport failures with a message
func NewTransportError(message string) error {
	return &CustomError{
		Err:     ErrTransportUnavailable,
		Message: message,
	}
}

// Is returns whether target matches any of the errors in errList
func Is(err, target error, errList ...error) bool {
	if errors.Is(err, target) {
		return true
	}

	for _, e := range errList {
		if errors.Is(err, e) {
			return true
		}
	}

	return false
}

// CustomError represents application-specific errors with additional context
type CustomError struct {
	Err       error
	Message   string
	StatusMsg string
	Code      string
	Details   map[string]interface{}
}

// Error implements error interface
func (e *CustomError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "unknown error"
}

// Unwrap implements errors.Unwrap interface
func (e *CustomError) Unwrap() error {
	return e.Err
}

// NewCustomError creates a CustomError with underlying error
func NewCustomError(err error, message string) *CustomError {
	return &CustomError{
		Err:     err,
		Message: message,
	}
}

// WithDetails adds context details to the error
func (e *CustomError) WithDetails(details map[string]interface{}) *CustomError {
	e.Details = details
	return e
}

// WithCode adds an error code
func (e *CustomError) WithCode(code string) *CustomError {
	e.Code = code
	return e
}
