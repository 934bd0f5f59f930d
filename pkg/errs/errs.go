// Package errs defines the structured error taxonomy shared by every stage of
// the bridge pipeline. Each error names the stage that produced it so a failure
// surfaced to the operator is always attributable to spec fetch, tool dispatch,
// the LLM round-trip, and so on.
package errs

import (
	"errors"
	"fmt"
	"time"
)

// Type identifies the pipeline stage an error originated from.
type Type string

const (
	TypeFetch         Type = "fetch"           // network/HTTP failure retrieving a spec
	TypeParse         Type = "parse"           // body is neither JSON nor YAML
	TypeSpecNotLoaded Type = "spec_not_loaded" // start attempted without a usable spec
	TypeCompile       Type = "compile"         // projected spec cannot become a tool server
	TypeDispatch      Type = "dispatch"        // outbound REST call failed
	TypeToolProtocol  Type = "tool_protocol"   // tool server returned an error or bad shape
	TypeLLM           Type = "llm"             // chat round-trip failed
	TypeStore         Type = "store"           // profile store failure
	TypeInternal      Type = "internal"
)

// Error is a structured error carrying its stage type and optional details.
type Error struct {
	Type      Type   `json:"type"`
	Message   string `json:"message"`
	Details   string `json:"details,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

func (e *Error) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Type, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// New creates a new Error for the given stage.
func New(errType Type, message, details string) *Error {
	return &Error{
		Type:      errType,
		Message:   message,
		Details:   details,
		Timestamp: time.Now().Unix(),
	}
}

// Wrap wraps a standard error as a stage Error. Returns nil for a nil error.
func Wrap(err error, errType Type, message string) *Error {
	if err == nil {
		return nil
	}
	return New(errType, message, err.Error())
}

// IsType reports whether err is a stage Error of the given type.
func IsType(err error, errType Type) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Type == errType
	}
	return false
}

// GetType returns the stage type of err, or TypeInternal for plain errors.
func GetType(err error) Type {
	var e *Error
	if errors.As(err, &e) {
		return e.Type
	}
	return TypeInternal
}
