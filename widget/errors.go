package widget

import (
	"fmt"
)

// InitError reports that the embedded browser failed to initialize. The
// widget is torn down; the host application should surface the failure.
type InitError struct {
	Message string
	Err     error
}

func (e *InitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("webview initialization failed: %s: %v", e.Message, e.Err)
	}
	return fmt.Sprintf("webview initialization failed: %s", e.Message)
}

func (e *InitError) Unwrap() error { return e.Err }
