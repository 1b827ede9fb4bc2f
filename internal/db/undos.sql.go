package db

import (
	"context"
)

const tagRelUndoColumns = `id, relationship_id, undo_data, follower_user_ids, shared_follower_user_ids, applied, created_at`

func scanTagRelUndo(row interface{ Scan(...any) error }) (TagRelUndo, error) {
	var i TagRelUndo
	err := row.Scan(
		&i.ID,
		&i.RelationshipID,
		&i.UndoData,
		&i.FollowerUserIds,
		&i.SharedFollowerUserIds,
		&i.Applied,
		&i.CreatedAt,
	)
	return i, err
}

const createTagRelUndo = `INSERT INTO tag_rel_undos (relationship_id, undo_data, follower_user_ids, shared_follower_user_ids)
VALUES ($1, $2, $3, $4)
RETURNING ` + tagRelUndoColumns + `
`

type CreateTagRelUndoParams struct {
	RelationshipID        int64
	UndoData              []int64
	FollowerUserIds       []int64
	SharedFollowerUserIds []int64
}

func (q *Queries) CreateTagRelUndo(ctx context.Context, arg CreateTagRelUndoParams) (TagRelUndo, error) {
	undoData := arg.UndoData
	if undoData == nil {
		undoData = []int64{}
	}
	followers := arg.FollowerUserIds
	if followers == nil {
		followers = []int64{}
	}
	shared := arg.SharedFollowerUserIds
	if shared == nil {
		shared = []int64{}
	}
	row := q.db.QueryRow(ctx, createTagRelUndo, arg.RelationshipID, undoData, followers, shared)
	return scanTagRelUndo(row)
}

const deletePendingTagRelUndo = `DELETE FROM tag_rel_undos
WHERE id = $1 AND NOT applied
`

// DeletePendingTagRelUndo removes an unapplied record and reports whether
// one was found.
func (q *Queries) DeletePendingTagRelUndo(ctx context.Context, id int64) (bool, error) {
	tag, err := q.db.Exec(ctx, deletePendingTagRelUndo, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

const getPendingTagRelUndo = `SELECT ` + tagRelUndoColumns + `
FROM tag_rel_undos
WHERE relationship_id = $1 AND NOT applied
ORDER BY id DESC
LIMIT 1
`

func (q *Queries) GetPendingTagRelUndo(ctx context.Context, relationshipID int64) (TagRelUndo, error) {
	row := q.db.QueryRow(ctx, getPendingTagRelUndo, relationshipID)
	return scanTagRelUndo(row)
}

const markTagRelUndoApplied = `UPDATE tag_rel_undos
SET applied = TRUE
WHERE id = $1
`

func (q *Queries) MarkTagRelUndoApplied(ctx context.Context, id int64) (int64, error) {
	tag, err := q.db.Exec(ctx, markTagRelUndoApplied, id)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const createModAction = `INSERT INTO mod_actions (action, subject_id, details)
VALUES ($1, $2, $3)
RETURNING id
`

type CreateModActionParams struct {
	Action    string
	SubjectID int64
	Details   []byte
}

func (q *Queries) CreateModAction(ctx context.Context, arg CreateModActionParams) (int64, error) {
	row := q.db.QueryRow(ctx, createModAction, arg.Action, arg.SubjectID, arg.Details)
	var id int64
	err := row.Scan(&id)
	return id, err
}
