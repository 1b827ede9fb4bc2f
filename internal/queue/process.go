package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/OFFIS-RIT/tagrel/pkg/engine"
	"github.com/OFFIS-RIT/tagrel/pkg/leaselock"
	"github.com/OFFIS-RIT/tagrel/pkg/logger"
	"github.com/OFFIS-RIT/tagrel/pkg/store"

	"github.com/go-playground/validator"
)

var validate = validator.New()

// ErrMalformed marks a message that can never be processed.
var ErrMalformed = errors.New("malformed job message")

// Executor runs a decoded job.
type Executor interface {
	Execute(ctx context.Context, job engine.Job) error
}

// ParseJobMessage decodes and validates a job body.
func ParseJobMessage(body []byte) (*JobMsg, error) {
	var msg JobMsg
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := validate.Struct(msg.Job); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return &msg, nil
}

// ProcessJobMessage decodes body and hands the job to x.
func ProcessJobMessage(ctx context.Context, x Executor, body []byte) error {
	msg, err := ParseJobMessage(body)
	if err != nil {
		return err
	}
	logger.Info("[Queue] Processing job", "relationship_id", msg.RelationshipID, "operation", string(msg.Operation), "correlation_id", msg.CorrelationID)
	return x.Execute(ctx, msg.Job)
}

type Outcome int

const (
	// OutcomeAck drops the message; the job either succeeded or its result
	// has been recorded on the relationship.
	OutcomeAck Outcome = iota
	// OutcomeRetry sends the message through the retry queue.
	OutcomeRetry
	// OutcomeDeadLetter parks the message for inspection.
	OutcomeDeadLetter
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAck:
		return "ack"
	case OutcomeRetry:
		return "retry"
	case OutcomeDeadLetter:
		return "dead_letter"
	default:
		return "unknown"
	}
}

// Classify maps a processing error to what happens with the delivery.
// Attempt-level retries happen inside the executor; only infrastructure
// errors from outside the attempt loop are redelivered.
func Classify(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeAck
	case errors.Is(err, ErrMalformed):
		return OutcomeDeadLetter
	case engine.IsTerminal(err),
		errors.Is(err, engine.ErrNotRunnable),
		errors.Is(err, engine.ErrUndoUnavailable),
		errors.Is(err, leaselock.ErrBusy),
		errors.Is(err, store.ErrNotFound):
		return OutcomeAck
	case engine.IsPermanent(err):
		return OutcomeDeadLetter
	default:
		return OutcomeRetry
	}
}
