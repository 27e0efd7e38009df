package model

import (
	"errors"
	"fmt"
)

// ErrorKind classifies an Error so callers can react to the category of a
// failure ("doesn't exist" vs. "operation failed") without matching on
// message text.
type ErrorKind string

const (
	// KindConnection means the daemon endpoint is unreachable or the
	// connection URI is malformed.
	KindConnection ErrorKind = "connection"

	// KindNotFound means a lookup-then-act operation referenced an
	// identifier that does not exist (container, image, network, volume,
	// or a service that is not registered in a stack).
	KindNotFound ErrorKind = "not_found"

	// KindConflict means a resource name that must be unique is already
	// taken (duplicate network name, duplicate service registration).
	KindConflict ErrorKind = "conflict"

	// KindValidation means caller-supplied parameters failed a local check
	// before any daemon call was made.
	KindValidation ErrorKind = "validation"

	// KindConfiguration means the stack definition as a whole is unusable,
	// for example a depends_on cycle or a dependency on an unknown service.
	KindConfiguration ErrorKind = "configuration"

	// KindDaemon is a failure reported by the daemon for a structurally
	// valid request. The daemon's message is preserved in the wrapped error.
	KindDaemon ErrorKind = "daemon"

	// KindAuth means the daemon or registry rejected the credentials.
	KindAuth ErrorKind = "auth"

	// KindParse means a compose document is not valid YAML or does not
	// match the expected schema shape.
	KindParse ErrorKind = "parse"

	// KindIO means a local file could not be read or written.
	KindIO ErrorKind = "io"
)

// String satisfies fmt.Stringer.
func (k ErrorKind) String() string {
	return string(k)
}

// ExitCode defines standard CLI exit codes. These codes allow scripts and
// CI systems to programmatically determine the outcome of a command.
type ExitCode int

const (
	// ExitSuccess indicates the command completed successfully.
	ExitSuccess ExitCode = 0

	// ExitGeneralError indicates an unspecified error occurred.
	ExitGeneralError ExitCode = 1

	// ExitComposeFileError indicates the compose file could not be read
	// or parsed.
	ExitComposeFileError ExitCode = 2

	// ExitDockerNotRunning indicates the Docker daemon is not accessible.
	ExitDockerNotRunning ExitCode = 3

	// ExitInvalidInput indicates a local validation or configuration
	// failure (bad flag, bad port mapping, dependency cycle).
	ExitInvalidInput ExitCode = 4

	// ExitDaemonError indicates the daemon rejected an operation.
	ExitDaemonError ExitCode = 5

	// ExitNotFound indicates the referenced stack, service or resource
	// does not exist.
	ExitNotFound ExitCode = 6

	// ExitConflict indicates a naming conflict.
	ExitConflict ExitCode = 7
)

// Error is the error type returned by every dockstack package. It carries
// a Kind for programmatic handling, a human-readable Message, and the
// underlying cause, if any.
type Error struct {
	// Kind is the error category.
	Kind ErrorKind

	// Message is the human-readable error description.
	Message string

	// Err is the underlying error, if any.
	Err error
}

// Error satisfies the error interface. It returns the human-readable
// error message, optionally including the underlying error.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.Err
}

// ExitCode maps the error kind to the process exit code used by the CLI.
func (e *Error) ExitCode() ExitCode {
	switch e.Kind {
	case KindConnection:
		return ExitDockerNotRunning
	case KindParse, KindIO:
		return ExitComposeFileError
	case KindValidation, KindConfiguration:
		return ExitInvalidInput
	case KindDaemon, KindAuth:
		return ExitDaemonError
	case KindNotFound:
		return ExitNotFound
	case KindConflict:
		return ExitConflict
	default:
		return ExitGeneralError
	}
}

// NewError creates a new Error with the given kind and message.
func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// WrapError creates a new Error that wraps an existing error.
func WrapError(kind ErrorKind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Errorf is a convenience for NewError with a formatted message.
func Errorf(kind ErrorKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of the outermost *Error in err's chain, or the
// empty string when err carries no *Error.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether any *Error in err's chain has the given kind.
// Wrapped errors are walked so that a daemon failure wrapped by an
// orchestration error is still recognised.
func IsKind(err error, kind ErrorKind) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Kind == kind {
			return true
		}
		err = e.Err
	}
	return false
}

// ExitCodeOf returns the exit code for err: ExitSuccess for nil, the
// outermost *Error's code when there is one, ExitGeneralError otherwise.
func ExitCodeOf(err error) ExitCode {
	if err == nil {
		return ExitSuccess
	}
	var e *Error
	if errors.As(err, &e) {
		return e.ExitCode()
	}
	return ExitGeneralError
}
