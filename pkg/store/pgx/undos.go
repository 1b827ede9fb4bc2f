package pgx

import (
	"context"
	"fmt"

	"github.com/OFFIS-RIT/tagrel/internal/db"
	"github.com/OFFIS-RIT/tagrel/pkg/common"
	"github.com/OFFIS-RIT/tagrel/pkg/store"
)

func toUndo(row db.TagRelUndo) *common.UndoRecord {
	return &common.UndoRecord{
		ID:                    row.ID,
		RelationshipID:        row.RelationshipID,
		AffectedPostIDs:       row.UndoData,
		FollowerUserIDs:       row.FollowerUserIds,
		SharedFollowerUserIDs: row.SharedFollowerUserIds,
		Applied:               row.Applied,
		CreatedAt:             row.CreatedAt,
	}
}

func undoParams(rec *common.UndoRecord) db.CreateTagRelUndoParams {
	return db.CreateTagRelUndoParams{
		RelationshipID:        rec.RelationshipID,
		UndoData:              rec.AffectedPostIDs,
		FollowerUserIds:       rec.FollowerUserIDs,
		SharedFollowerUserIds: rec.SharedFollowerUserIDs,
	}
}

func (s *Store) CreateUndo(ctx context.Context, rec *common.UndoRecord) error {
	row, err := s.queries().CreateTagRelUndo(ctx, undoParams(rec))
	if err != nil {
		return err
	}
	rec.ID = row.ID
	rec.CreatedAt = row.CreatedAt
	return nil
}

// ReplaceUndo swaps an unapplied record for rec atomically. The partial
// unique index allows only one unapplied record per relationship, so the old
// row is deleted first.
func (s *Store) ReplaceUndo(ctx context.Context, oldID int64, rec *common.UndoRecord) error {
	return s.inTx(ctx, func(qtx *db.Queries) error {
		ok, err := qtx.DeletePendingTagRelUndo(ctx, oldID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("undo record %d: %w", oldID, store.ErrConflict)
		}
		row, err := qtx.CreateTagRelUndo(ctx, undoParams(rec))
		if err != nil {
			return err
		}
		rec.ID = row.ID
		rec.CreatedAt = row.CreatedAt
		return nil
	})
}

func (s *Store) PendingUndo(ctx context.Context, relationshipID int64) (*common.UndoRecord, error) {
	row, err := s.queries().GetPendingTagRelUndo(ctx, relationshipID)
	if err != nil {
		return nil, notFound(err, fmt.Sprintf("undo record of relationship %d", relationshipID))
	}
	return toUndo(row), nil
}

func (s *Store) MarkUndoApplied(ctx context.Context, id int64) error {
	n, err := s.queries().MarkTagRelUndoApplied(ctx, id)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("undo record %d: %w", id, store.ErrNotFound)
	}
	return nil
}
