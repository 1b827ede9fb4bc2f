package common

import (
	"errors"
	"fmt"
	"time"
)

// Kind discriminates the two relationship variants. Most of the rewrite logic
// is shared; the divergence points branch on Kind.
type Kind string

const (
	KindAlias       Kind = "alias"
	KindImplication Kind = "implication"
)

func (k Kind) Valid() bool {
	return k == KindAlias || k == KindImplication
}

// Status is the lifecycle state of a Relationship.
type Status string

const (
	StatusPending    Status = "pending"
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusActive     Status = "active"
	StatusError      Status = "error"
	StatusDeleted    Status = "deleted"
)

// DuplicateRelevant lists the statuses that still take part in conflict and
// transitive checks. Deleted and errored records are ignored.
var DuplicateRelevant = []Status{StatusPending, StatusQueued, StatusProcessing, StatusActive}

// Repointable lists the statuses whose endpoints follow a retired
// antecedent. Errored records are included so a later rerun activates onto
// the surviving name.
var Repointable = []Status{StatusPending, StatusQueued, StatusProcessing, StatusActive, StatusError}

// IsDuplicateRelevant reports whether s is one of DuplicateRelevant.
func (s Status) IsDuplicateRelevant() bool {
	for _, v := range DuplicateRelevant {
		if v == s {
			return true
		}
	}
	return false
}

var ErrInvalidTransition = errors.New("invalid status transition")

// Relationship is one alias or implication between two tag names. Status
// transitions are only performed through the methods below; the methods touch
// the in-memory value only and the caller persists the result.
type Relationship struct {
	ID                int64     `json:"id"`
	Kind              Kind      `json:"kind"`
	Antecedent        string    `json:"antecedent_name"`
	Consequent        string    `json:"consequent_name"`
	Status            Status    `json:"status"`
	ErrorMessage      string    `json:"error_message,omitempty"`
	CreatorID         int64     `json:"creator_id"`
	ApproverID        *int64    `json:"approver_id,omitempty"`
	ForumThreadRef    string    `json:"forum_thread_ref,omitempty"`
	PostCountSnapshot int64     `json:"post_count"`
	Version           int64     `json:"version"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Label is the human readable "[[a]] -> [[b]]" form used in messages.
func (r *Relationship) Label() string {
	return fmt.Sprintf("[[%s]] -> [[%s]]", r.Antecedent, r.Consequent)
}

// Title is "tag alias #12" or "tag implication #12".
func (r *Relationship) Title() string {
	return fmt.Sprintf("tag %s #%d", r.Kind, r.ID)
}

func (r *Relationship) IsAlias() bool {
	return r.Kind == KindAlias
}

func (r *Relationship) transition(to Status, allowed ...Status) error {
	for _, from := range allowed {
		if r.Status == from {
			r.Status = to
			return nil
		}
	}
	return fmt.Errorf("%w: %s cannot move from %s to %s", ErrInvalidTransition, r.Title(), r.Status, to)
}

// Queue moves a pending record to queued and records the approver.
// Structural validation happens before this in relationship.Validator.
func (r *Relationship) Queue(approverID int64) error {
	if err := r.transition(StatusQueued, StatusPending); err != nil {
		return err
	}
	r.ApproverID = &approverID
	return nil
}

// BeginProcessing marks the record as owned by a worker.
func (r *Relationship) BeginProcessing() error {
	if err := r.transition(StatusProcessing, StatusQueued, StatusError); err != nil {
		return err
	}
	r.ErrorMessage = ""
	return nil
}

// Activate finishes a successful run and snapshots the consequent post count.
func (r *Relationship) Activate(postCount int64) error {
	if err := r.transition(StatusActive, StatusProcessing); err != nil {
		return err
	}
	r.PostCountSnapshot = postCount
	return nil
}

// Fail lands a processing record in Error with the captured cause.
func (r *Relationship) Fail(message string) error {
	if err := r.transition(StatusError, StatusProcessing); err != nil {
		return err
	}
	r.ErrorMessage = message
	return nil
}

// Reject deletes a record that never got processed.
func (r *Relationship) Reject() error {
	return r.transition(StatusDeleted, StatusPending, StatusQueued)
}

// Retire deletes an active record, e.g. when repointing would make it
// self-referential.
func (r *Relationship) Retire() error {
	return r.transition(StatusDeleted, StatusActive, StatusPending, StatusQueued, StatusError)
}

// Undo returns an active record to pending so it can be approved again.
func (r *Relationship) Undo() error {
	return r.transition(StatusPending, StatusActive)
}

// DisplayStatus renders the status the way it is shown to moderators, with
// the failure cause appended for errored records.
func (r *Relationship) DisplayStatus() string {
	if r.Status == StatusError && r.ErrorMessage != "" {
		return fmt.Sprintf("error: %s", r.ErrorMessage)
	}
	return string(r.Status)
}

// TransitiveEdge describes another relationship that shares an endpoint with
// a candidate. It is computed on demand and never stored.
type TransitiveEdge struct {
	Kind  Kind          `json:"kind"`
	Other *Relationship `json:"other"`
	// NewAntecedent and NewConsequent are the endpoints Other will have once
	// the candidate is activated and chains are absorbed.
	NewAntecedent string `json:"new_antecedent"`
	NewConsequent string `json:"new_consequent"`
	Chain         string `json:"chain"`
}
