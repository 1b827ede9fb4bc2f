package engine

import (
	"errors"
	"fmt"

	"github.com/OFFIS-RIT/tagrel/pkg/common"
	"github.com/OFFIS-RIT/tagrel/pkg/relationship"
)

var (
	// ErrNotRunnable is returned when a relationship is not in a state the
	// requested operation can start from, e.g. a second run of a record that
	// is already processing.
	ErrNotRunnable = errors.New("relationship is not runnable")
	// ErrUndoUnavailable is returned when no unapplied undo record exists.
	ErrUndoUnavailable = errors.New("undo information unavailable")
)

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err skips the retry loop. Validation failures
// and invalid transitions will not change by waiting.
func IsPermanent(err error) bool {
	var p *permanentError
	if errors.As(err, &p) {
		return true
	}
	var v *relationship.ValidationError
	if errors.As(err, &v) {
		return true
	}
	return errors.Is(err, common.ErrInvalidTransition)
}

// TerminalError is returned by Run once a relationship has landed in Error.
type TerminalError struct {
	RelationshipID int64
	Attempts       int
	Err            error
}

func (e *TerminalError) Error() string {
	return fmt.Sprintf("relationship %d failed after %d attempts: %v", e.RelationshipID, e.Attempts, e.Err)
}

func (e *TerminalError) Unwrap() error { return e.Err }

// IsTerminal reports whether err is a *TerminalError.
func IsTerminal(err error) bool {
	var t *TerminalError
	return errors.As(err, &t)
}
