// Package kernel defines the execution session capability the server is
// built around. The session itself — arbitrary code evaluation, namespace
// management, rich formatting — is an external collaborator behind the
// Session interface, so it can be substituted with a fake in tests.
package kernel

import (
	"context"
	"fmt"

	"github.com/rgbkrk/honchkrow/internal/display"
)

// Session is one live interactive evaluation context holding variable
// state across calls.
type Session interface {
	// Execute runs a code string against the session exactly once and
	// captures its output channels. An engine-level failure is reported
	// inside the Outcome; the error return is reserved for session-level
	// faults (dead process, broken pipe, protocol corruption).
	Execute(ctx context.Context, code string) (*Outcome, error)

	// Lookup returns the formatted representation of a variable in the
	// session's live namespace. A missing name yields a NotDefinedError.
	Lookup(ctx context.Context, name string) (*display.Data, error)

	// Close shuts the session down
	Close() error
}

// Outcome is the captured result of one execution call. It is created
// fresh per request and never persisted.
type Outcome struct {
	// Success reports whether the code evaluated without raising
	Success bool

	// Result is the execution's direct return value, formatted; nil when
	// the code produced none or the execution failed
	Result *display.Data

	// ErrorDetail describes the failure when Success is false
	ErrorDetail string

	// Stdout and Stderr hold text written during the call
	Stdout string
	Stderr string

	// Displays are the rich output events emitted as side effects,
	// in emission order
	Displays []display.Data
}

// NotDefinedError reports a variable lookup against a name the session's
// namespace does not contain.
type NotDefinedError struct {
	Name string
}

func (e *NotDefinedError) Error() string {
	return fmt.Sprintf("name %q is not defined", e.Name)
}
