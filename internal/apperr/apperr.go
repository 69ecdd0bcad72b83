// Package apperr defines the error taxonomy surfaced by the CLI: every
// failure the user can act on carries a kind, a message prefix, a
// suggestion and a process exit code.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an application error.
type Kind int

const (
	KindUnknown Kind = iota
	KindConfig
	KindSourceSpec
	KindLLM
	KindRepository
	KindValidation
	KindPromotion
	KindNotFound
)

// Error is an application error with a kind.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return "unknown error"
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// ExitCode is 2 for generation-service failures and 1 for everything else.
func (e *Error) ExitCode() int {
	if e.Kind == KindLLM {
		return 2
	}
	return 1
}

// UserMessage renders the error with a kind-specific prefix.
func (e *Error) UserMessage() string {
	switch e.Kind {
	case KindConfig:
		return "Configuration error: " + e.Error()
	case KindSourceSpec:
		return "Source specification error: " + e.Error()
	case KindLLM:
		return "LLM API error: " + e.Error()
	case KindRepository:
		return "Repository error: " + e.Error()
	case KindValidation:
		return "Validation error: " + e.Error()
	case KindPromotion:
		return "Promotion error: " + e.Error()
	default:
		return "Error: " + e.Error()
	}
}

// Suggestion returns a next step for the user.
func (e *Error) Suggestion() string {
	switch e.Kind {
	case KindConfig:
		return "Check .docsync/config.yaml and ensure your API key is set correctly."
	case KindSourceSpec:
		return "Check your sources.yaml file and validate all patterns are correct."
	case KindLLM:
		return "Check your API key, verify you have credits remaining, and check the provider status."
	case KindRepository:
		return "Verify the repository URL, check your network connection, and ensure authentication is set up."
	case KindValidation:
		return "Inspect the staged document and outline, then re-run validation."
	case KindPromotion, KindNotFound:
		return "Run the previous step of the workflow first."
	default:
		return "Please check your configuration and try again."
	}
}

// New builds an error of the given kind from a format string.
func New(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// Wrap attaches a kind to err. A nil err stays nil and an err that already
// carries a kind keeps it.
func Wrap(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}
	return &Error{Kind: kind, Err: err}
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	var ae *Error
	return errors.As(err, &ae) && ae.Kind == kind
}

// ExitCode maps any error to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae.ExitCode()
	}
	return 1
}
