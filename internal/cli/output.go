package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/OFFIS-RIT/tagrel/pkg/common"
	"github.com/OFFIS-RIT/tagrel/pkg/engine"
	"github.com/OFFIS-RIT/tagrel/pkg/relationship"
)

const (
	ExitSuccess      = 0
	ExitFailure      = 1 // operation refused or failed
	ExitCommandError = 2 // bad flags, unreachable services
)

type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from err, ExitFailure by default.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// CLIResponse is the JSON envelope of every command.
type CLIResponse struct {
	Status string    `json:"status"`
	Data   any       `json:"data,omitempty"`
	Error  *CLIError `json:"error,omitempty"`
}

type CLIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// errorCode classifies err for the JSON envelope.
func errorCode(err error) string {
	var verr *relationship.ValidationError
	switch {
	case errors.As(err, &verr):
		return "VALIDATION"
	case engine.IsTerminal(err):
		return "TERMINAL"
	case errors.Is(err, engine.ErrNotRunnable):
		return "NOT_RUNNABLE"
	case errors.Is(err, engine.ErrUndoUnavailable):
		return "UNDO_UNAVAILABLE"
	case errors.Is(err, common.ErrInvalidTransition):
		return "INVALID_TRANSITION"
	default:
		return "ERROR"
	}
}

type OutputFormatter struct {
	Format string
	Writer io.Writer
}

// Success writes data as JSON, or text through the text callback.
func (f *OutputFormatter) Success(data any, text func(w io.Writer)) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{Status: "ok", Data: data})
	}
	text(f.Writer)
	return nil
}

// Failure reports err and returns it wrapped with ExitFailure.
func (f *OutputFormatter) Failure(message string, err error) error {
	if f.Format == "json" {
		_ = json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error:  &CLIError{Code: errorCode(err), Message: err.Error()},
		})
	}
	return WrapExitError(ExitFailure, message, err)
}

func printRelationship(w io.Writer, r *common.Relationship) {
	fmt.Fprintf(w, "%s %s [%s]\n", r.Title(), r.Label(), r.DisplayStatus())
}
