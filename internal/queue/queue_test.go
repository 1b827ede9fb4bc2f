package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/OFFIS-RIT/tagrel/pkg/common"
	"github.com/OFFIS-RIT/tagrel/pkg/engine"
	"github.com/OFFIS-RIT/tagrel/pkg/leaselock"
	"github.com/OFFIS-RIT/tagrel/pkg/relationship"
	"github.com/OFFIS-RIT/tagrel/pkg/store"

	"github.com/rabbitmq/amqp091-go"
)

type published struct {
	key string
	msg amqp091.Publishing
}

type fakeChannel struct {
	declared  []string
	published []published
}

func (c *fakeChannel) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp091.Table) (amqp091.Queue, error) {
	c.declared = append(c.declared, name)
	return amqp091.Queue{Name: name}, nil
}

func (c *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error {
	c.published = append(c.published, published{key: key, msg: msg})
	return nil
}

type fakeAcknowledger struct {
	acks  int
	nacks int
}

func (a *fakeAcknowledger) Ack(tag uint64, multiple bool) error {
	a.acks++
	return nil
}

func (a *fakeAcknowledger) Nack(tag uint64, multiple, requeue bool) error {
	a.nacks++
	return nil
}

func (a *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	a.nacks++
	return nil
}

type fakeExecutor struct {
	jobs []engine.Job
	err  error
}

func (x *fakeExecutor) Execute(ctx context.Context, job engine.Job) error {
	x.jobs = append(x.jobs, job)
	return x.err
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Outcome
	}{
		{name: "success", err: nil, want: OutcomeAck},
		{name: "malformed", err: fmt.Errorf("%w: bad json", ErrMalformed), want: OutcomeDeadLetter},
		{name: "terminal", err: &engine.TerminalError{RelationshipID: 1, Attempts: 3, Err: errors.New("x")}, want: OutcomeAck},
		{name: "not runnable", err: fmt.Errorf("wrap: %w", engine.ErrNotRunnable), want: OutcomeAck},
		{name: "undo unavailable", err: engine.ErrUndoUnavailable, want: OutcomeAck},
		{name: "busy", err: fmt.Errorf("held: %w", leaselock.ErrBusy), want: OutcomeAck},
		{name: "not found", err: fmt.Errorf("load: %w", store.ErrNotFound), want: OutcomeAck},
		{name: "permanent", err: engine.Permanent(errors.New("unknown operation")), want: OutcomeDeadLetter},
		{name: "validation", err: &relationship.ValidationError{Messages: []string{"x"}}, want: OutcomeDeadLetter},
		{name: "invalid transition", err: common.ErrInvalidTransition, want: OutcomeDeadLetter},
		{name: "infrastructure", err: errors.New("connection reset"), want: OutcomeRetry},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Fatalf("Classify(%v): got %s, want %s", tt.err, got, tt.want)
			}
		})
	}
}

func TestParseJobMessage(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{name: "process", body: `{"relationship_id":4,"operation":"process","correlation_id":"abc"}`},
		{name: "undo with actor", body: `{"relationship_id":4,"operation":"undo","actor_id":2}`},
		{name: "not json", body: `nope`, wantErr: true},
		{name: "missing id", body: `{"operation":"process"}`, wantErr: true},
		{name: "unknown operation", body: `{"relationship_id":4,"operation":"rename"}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := ParseJobMessage([]byte(tt.body))
			if tt.wantErr {
				if !errors.Is(err, ErrMalformed) {
					t.Fatalf("expected ErrMalformed, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if msg.RelationshipID != 4 {
				t.Fatalf("unexpected relationship id %d", msg.RelationshipID)
			}
		})
	}
}

func TestProcessJobMessage(t *testing.T) {
	x := &fakeExecutor{}
	err := ProcessJobMessage(context.Background(), x, []byte(`{"relationship_id":9,"operation":"undo","actor_id":3}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := engine.Job{RelationshipID: 9, Operation: engine.OperationUndo, ActorID: 3}
	if len(x.jobs) != 1 || x.jobs[0] != want {
		t.Fatalf("unexpected jobs %+v", x.jobs)
	}

	if err := ProcessJobMessage(context.Background(), x, []byte(`{}`)); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
	if len(x.jobs) != 1 {
		t.Fatal("malformed message must not reach the executor")
	}
}

func TestDispatcher(t *testing.T) {
	ch := &fakeChannel{}
	job := engine.Job{RelationshipID: 12, Operation: engine.OperationProcess, ActorID: 5}
	if err := NewDispatcher(ch).Dispatch(context.Background(), job); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ch.published) != 1 || ch.published[0].key != JobQueue {
		t.Fatalf("unexpected publishes %+v", ch.published)
	}

	var msg JobMsg
	if err := json.Unmarshal(ch.published[0].msg.Body, &msg); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if msg.Job != job || msg.CorrelationID == "" {
		t.Fatalf("unexpected message %+v", msg)
	}

	if err := NewDispatcher(ch).Dispatch(context.Background(), engine.Job{Operation: engine.OperationProcess}); err == nil {
		t.Fatal("expected validation error for job without id")
	}
}

func delivery(ack *fakeAcknowledger, headers amqp091.Table) amqp091.Delivery {
	return amqp091.Delivery{
		Acknowledger: ack,
		Headers:      headers,
		ContentType:  "application/json",
		Body:         []byte(`{"relationship_id":1,"operation":"process"}`),
	}
}

func TestHandleDelivery(t *testing.T) {
	ctx := context.Background()

	t.Run("ack on success", func(t *testing.T) {
		ch, ack := &fakeChannel{}, &fakeAcknowledger{}
		HandleDelivery(ctx, ch, delivery(ack, nil), JobQueue, nil)
		if ack.acks != 1 || len(ch.published) != 0 {
			t.Fatalf("expected plain ack, got acks=%d published=%d", ack.acks, len(ch.published))
		}
	})

	t.Run("retry increments header", func(t *testing.T) {
		ch, ack := &fakeChannel{}, &fakeAcknowledger{}
		HandleDelivery(ctx, ch, delivery(ack, amqp091.Table{"x-retries": int32(2)}), JobQueue, errors.New("connection reset"))
		if len(ch.published) != 1 || ch.published[0].key != JobQueue+"_retry" {
			t.Fatalf("expected retry publish, got %+v", ch.published)
		}
		if got := ch.published[0].msg.Headers["x-retries"]; got != int32(3) {
			t.Fatalf("expected x-retries 3, got %v", got)
		}
		if ack.acks != 1 {
			t.Fatalf("expected original message acked, got %d", ack.acks)
		}
	})

	t.Run("retries exhausted", func(t *testing.T) {
		ch, ack := &fakeChannel{}, &fakeAcknowledger{}
		HandleDelivery(ctx, ch, delivery(ack, amqp091.Table{"x-retries": int64(maxRetries)}), JobQueue, errors.New("connection reset"))
		if len(ch.published) != 1 || ch.published[0].key != JobQueue+"_dlq" {
			t.Fatalf("expected dlq publish, got %+v", ch.published)
		}
	})

	t.Run("malformed goes to dlq", func(t *testing.T) {
		ch, ack := &fakeChannel{}, &fakeAcknowledger{}
		HandleDelivery(ctx, ch, delivery(ack, nil), JobQueue, ErrMalformed)
		if len(ch.published) != 1 || ch.published[0].key != JobQueue+"_dlq" {
			t.Fatalf("expected dlq publish, got %+v", ch.published)
		}
		if ack.acks != 1 {
			t.Fatalf("expected original message acked, got %d", ack.acks)
		}
	})
}
