package engine

import (
	"context"
	"fmt"

	"github.com/OFFIS-RIT/tagrel/pkg/common"
	"github.com/OFFIS-RIT/tagrel/pkg/logger"
	"github.com/OFFIS-RIT/tagrel/pkg/notify"
	"github.com/OFFIS-RIT/tagrel/pkg/tagquery"
)

type Operation string

const (
	OperationProcess Operation = "process"
	OperationUndo    Operation = "undo"
)

// Job is the unit of work handed to the worker pool.
type Job struct {
	RelationshipID int64     `json:"relationship_id" validate:"required,gt=0"`
	Operation      Operation `json:"operation" validate:"required,oneof=process undo"`
	ActorID        int64     `json:"actor_id,omitempty"`
}

type CreateParams struct {
	Kind           common.Kind
	Antecedent     string
	Consequent     string
	CreatorID      int64
	ForumThreadRef string
}

// Create validates and stores a new pending relationship.
func (x *Executor) Create(ctx context.Context, p CreateParams) (*common.Relationship, error) {
	r := &common.Relationship{
		Kind:           p.Kind,
		Antecedent:     tagquery.NormalizeName(p.Antecedent),
		Consequent:     tagquery.NormalizeName(p.Consequent),
		Status:         common.StatusPending,
		CreatorID:      p.CreatorID,
		ForumThreadRef: p.ForumThreadRef,
	}
	if err := x.validator.Validate(ctx, r); err != nil {
		return nil, err
	}
	if err := x.store.CreateRelationship(ctx, r); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", r.Label(), err)
	}

	details := notify.Details(r, "")
	details["creator_id"] = p.CreatorID
	if err := x.modlog.Record(ctx, notify.ActionName(r.Kind, "create"), r.ID, details); err != nil {
		logger.Warn("[Executor] Failed to record mod action", "relationship_id", r.ID, "err", err)
	}
	logger.Info("[Executor] Created relationship", "relationship_id", r.ID, "kind", r.Kind, "antecedent", r.Antecedent, "consequent", r.Consequent)
	return r, nil
}

// Queue approves a pending relationship. Validation runs again since other
// records may have changed since creation; on failure the record stays
// pending. With a dispatcher configured the process job is sent right away.
func (x *Executor) Queue(ctx context.Context, id, approverID int64) (*common.Relationship, error) {
	r, err := x.store.GetRelationship(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load relationship %d: %w", id, err)
	}
	if r.Status != common.StatusPending {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotRunnable, r.Title(), r.Status)
	}
	if err := x.validator.Validate(ctx, r); err != nil {
		return nil, err
	}

	before := *r
	if err := r.Queue(approverID); err != nil {
		return nil, err
	}
	if err := x.store.UpdateRelationship(ctx, r); err != nil {
		return nil, fmt.Errorf("failed to queue %s: %w", r.Title(), err)
	}
	x.recordUpdate(ctx, &before, r)

	if x.dispatcher != nil {
		if err := x.dispatcher.Dispatch(ctx, Job{RelationshipID: r.ID, Operation: OperationProcess, ActorID: approverID}); err != nil {
			return r, fmt.Errorf("failed to dispatch %s: %w", r.Title(), err)
		}
	}
	return r, nil
}

// Reject deletes a pending or queued relationship.
func (x *Executor) Reject(ctx context.Context, id, actorID int64, reason string) (*common.Relationship, error) {
	r, err := x.store.GetRelationship(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load relationship %d: %w", id, err)
	}

	before := *r
	if err := r.Reject(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotRunnable, err)
	}
	if err := x.store.UpdateRelationship(ctx, r); err != nil {
		return nil, fmt.Errorf("failed to reject %s: %w", r.Title(), err)
	}
	x.recordUpdate(ctx, &before, r, "actor_id", actorID)
	x.notifyForum(ctx, r, notify.RejectionMessage(r, reason), notify.EventRejected)
	return r, nil
}

// Transitives lists the relationships that chain through id's antecedent.
func (x *Executor) Transitives(ctx context.Context, id int64) ([]common.TransitiveEdge, error) {
	r, err := x.store.GetRelationship(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load relationship %d: %w", id, err)
	}
	return x.checker.Find(ctx, r)
}

// Execute runs job through Run or Undo.
func (x *Executor) Execute(ctx context.Context, job Job) error {
	switch job.Operation {
	case OperationProcess:
		return x.Run(ctx, job.RelationshipID)
	case OperationUndo:
		return x.Undo(ctx, job.RelationshipID, job.ActorID)
	default:
		return Permanent(fmt.Errorf("unknown operation %q", job.Operation))
	}
}
