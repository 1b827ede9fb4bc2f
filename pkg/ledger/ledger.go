package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/OFFIS-RIT/tagrel/pkg/common"
	"github.com/OFFIS-RIT/tagrel/pkg/logger"
	"github.com/OFFIS-RIT/tagrel/pkg/store"
)

var ErrNoPendingRecord = errors.New("no unapplied undo record")

// Archiver keeps an out-of-band copy of every undo record written.
type Archiver interface {
	ArchiveUndo(ctx context.Context, rec *common.UndoRecord) error
}

// Ledger snapshots the ids a forward rewrite is about to touch so an undo
// can revert exactly those records. A relationship has at most one
// unapplied record at a time.
type Ledger struct {
	store    store.UndoStore
	archiver Archiver
}

type Option func(*Ledger)

func WithArchiver(a Archiver) Option {
	return func(l *Ledger) {
		l.archiver = a
	}
}

func New(s store.UndoStore, opts ...Option) *Ledger {
	l := &Ledger{store: s}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(l)
	}
	return l
}

// Snapshot lists what a forward pass is about to touch.
type Snapshot struct {
	PostIDs     []int64
	FollowerIDs []int64
	// SharedFollowerIDs are the followers that also follow the consequent.
	SharedFollowerIDs []int64
}

func (s Snapshot) coveredBy(rec *common.UndoRecord) bool {
	return store.ContainsAllIDs(rec.AffectedPostIDs, s.PostIDs) &&
		store.ContainsAllIDs(rec.FollowerUserIDs, s.FollowerIDs) &&
		store.ContainsAllIDs(rec.SharedFollowerUserIDs, s.SharedFollowerIDs)
}

// Capture records snap for relationshipID. It must be called before any of
// the listed records is mutated.
//
// A rerun after a failed attempt finds the previous attempt's record. When
// that record already covers the ids it is returned unchanged; otherwise it
// is replaced by a record holding the union, since items of the earlier
// attempt may already have been rewritten.
func (l *Ledger) Capture(ctx context.Context, relationshipID int64, snap Snapshot) (*common.UndoRecord, error) {
	prev, err := l.store.PendingUndo(ctx, relationshipID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("failed to load undo record: %w", err)
	}

	if prev == nil {
		rec := &common.UndoRecord{
			RelationshipID:        relationshipID,
			AffectedPostIDs:       store.UnionIDs(snap.PostIDs, nil),
			FollowerUserIDs:       store.UnionIDs(snap.FollowerIDs, nil),
			SharedFollowerUserIDs: store.UnionIDs(snap.SharedFollowerIDs, nil),
		}
		if err := l.store.CreateUndo(ctx, rec); err != nil {
			return nil, fmt.Errorf("failed to create undo record: %w", err)
		}
		l.archive(ctx, rec)
		return rec, nil
	}

	if snap.coveredBy(prev) {
		logger.Debug("[Ledger] Reusing undo record", "relationship_id", relationshipID, "undo_id", prev.ID)
		return prev, nil
	}

	rec := &common.UndoRecord{
		RelationshipID:        relationshipID,
		AffectedPostIDs:       store.UnionIDs(prev.AffectedPostIDs, snap.PostIDs),
		FollowerUserIDs:       store.UnionIDs(prev.FollowerUserIDs, snap.FollowerIDs),
		SharedFollowerUserIDs: store.UnionIDs(prev.SharedFollowerUserIDs, snap.SharedFollowerIDs),
	}
	if err := l.store.ReplaceUndo(ctx, prev.ID, rec); err != nil {
		return nil, fmt.Errorf("failed to replace undo record %d: %w", prev.ID, err)
	}
	logger.Info("[Ledger] Extended undo record from earlier attempt", "relationship_id", relationshipID, "old_undo_id", prev.ID, "undo_id", rec.ID, "posts", len(rec.AffectedPostIDs))
	l.archive(ctx, rec)
	return rec, nil
}

// Pending returns the record an undo pass would consume.
func (l *Ledger) Pending(ctx context.Context, relationshipID int64) (*common.UndoRecord, error) {
	rec, err := l.store.PendingUndo(ctx, relationshipID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNoPendingRecord
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load undo record: %w", err)
	}
	return rec, nil
}

// Consume marks rec applied. It is called once the reverse rewrite is done.
func (l *Ledger) Consume(ctx context.Context, rec *common.UndoRecord) error {
	if err := l.store.MarkUndoApplied(ctx, rec.ID); err != nil {
		return fmt.Errorf("failed to mark undo record %d applied: %w", rec.ID, err)
	}
	rec.Applied = true
	return nil
}

func (l *Ledger) archive(ctx context.Context, rec *common.UndoRecord) {
	if l.archiver == nil {
		return
	}
	if err := l.archiver.ArchiveUndo(ctx, rec); err != nil {
		logger.Warn("[Ledger] Failed to archive undo record", "relationship_id", rec.RelationshipID, "undo_id", rec.ID, "err", err)
	}
}
