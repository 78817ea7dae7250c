package native

import (
	"errors"
	"fmt"
)

// ErrNotInitialized is returned when an engine is requested before
// Initialize has been called, or after initialization failed.
var ErrNotInitialized = errors.New("native runtime not initialized")

// RuntimeNotFoundError reports that the native browser runtime is missing
// from the system. It carries a developer-oriented message, a message the
// host application can show its users, and the vendor's download URL for
// remediation.
type RuntimeNotFoundError struct {
	Message     string
	UserMessage string
	DownloadURL string
	Err         error
}

// Error implements the error interface with the developer message.
func (e *RuntimeNotFoundError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap exposes the underlying cause.
func (e *RuntimeNotFoundError) Unwrap() error { return e.Err }
