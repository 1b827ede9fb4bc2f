package db

import (
	"context"
)

const tagRelationshipColumns = `id, kind, antecedent_name, consequent_name, status, error_message,
       creator_id, approver_id, forum_thread_ref, post_count, version, created_at, updated_at`

func scanTagRelationship(row interface{ Scan(...any) error }) (TagRelationship, error) {
	var i TagRelationship
	err := row.Scan(
		&i.ID,
		&i.Kind,
		&i.AntecedentName,
		&i.ConsequentName,
		&i.Status,
		&i.ErrorMessage,
		&i.CreatorID,
		&i.ApproverID,
		&i.ForumThreadRef,
		&i.PostCount,
		&i.Version,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const getTagRelationship = `SELECT ` + tagRelationshipColumns + `
FROM tag_relationships
WHERE id = $1
`

func (q *Queries) GetTagRelationship(ctx context.Context, id int64) (TagRelationship, error) {
	row := q.db.QueryRow(ctx, getTagRelationship, id)
	return scanTagRelationship(row)
}

const createTagRelationship = `INSERT INTO tag_relationships (
    kind, antecedent_name, consequent_name, status, error_message,
    creator_id, approver_id, forum_thread_ref, post_count
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING ` + tagRelationshipColumns + `
`

type CreateTagRelationshipParams struct {
	Kind           string
	AntecedentName string
	ConsequentName string
	Status         string
	ErrorMessage   string
	CreatorID      int64
	ApproverID     *int64
	ForumThreadRef string
	PostCount      int64
}

func (q *Queries) CreateTagRelationship(ctx context.Context, arg CreateTagRelationshipParams) (TagRelationship, error) {
	row := q.db.QueryRow(ctx, createTagRelationship,
		arg.Kind,
		arg.AntecedentName,
		arg.ConsequentName,
		arg.Status,
		arg.ErrorMessage,
		arg.CreatorID,
		arg.ApproverID,
		arg.ForumThreadRef,
		arg.PostCount,
	)
	return scanTagRelationship(row)
}

// updateTagRelationship only matches while the stored version is unchanged.
// No returned row means the record is gone or was updated concurrently.
const updateTagRelationship = `UPDATE tag_relationships
SET antecedent_name = $3,
    consequent_name = $4,
    status = $5,
    error_message = $6,
    approver_id = $7,
    forum_thread_ref = $8,
    post_count = $9,
    version = version + 1,
    updated_at = now()
WHERE id = $1 AND version = $2
RETURNING version, updated_at
`

type UpdateTagRelationshipParams struct {
	ID             int64
	Version        int64
	AntecedentName string
	ConsequentName string
	Status         string
	ErrorMessage   string
	ApproverID     *int64
	ForumThreadRef string
	PostCount      int64
}

func (q *Queries) UpdateTagRelationship(ctx context.Context, arg UpdateTagRelationshipParams) (TagRelationship, error) {
	row := q.db.QueryRow(ctx, updateTagRelationship,
		arg.ID,
		arg.Version,
		arg.AntecedentName,
		arg.ConsequentName,
		arg.Status,
		arg.ErrorMessage,
		arg.ApproverID,
		arg.ForumThreadRef,
		arg.PostCount,
	)
	var i TagRelationship
	err := row.Scan(&i.Version, &i.UpdatedAt)
	return i, err
}

const tagRelationshipExists = `SELECT EXISTS (SELECT 1 FROM tag_relationships WHERE id = $1)`

func (q *Queries) TagRelationshipExists(ctx context.Context, id int64) (bool, error) {
	row := q.db.QueryRow(ctx, tagRelationshipExists, id)
	var exists bool
	err := row.Scan(&exists)
	return exists, err
}

// Empty filter values match everything.
const listTagRelationships = `SELECT ` + tagRelationshipColumns + `
FROM tag_relationships
WHERE ($1::text = '' OR kind = $1)
  AND ($2::text = '' OR antecedent_name = $2)
  AND ($3::text = '' OR consequent_name = $3)
  AND (cardinality($4::text[]) = 0 OR status = ANY($4::text[]))
ORDER BY id
`

type ListTagRelationshipsParams struct {
	Kind           string
	AntecedentName string
	ConsequentName string
	Statuses       []string
}

func (q *Queries) ListTagRelationships(ctx context.Context, arg ListTagRelationshipsParams) ([]TagRelationship, error) {
	statuses := arg.Statuses
	if statuses == nil {
		statuses = []string{}
	}
	rows, err := q.db.Query(ctx, listTagRelationships,
		arg.Kind,
		arg.AntecedentName,
		arg.ConsequentName,
		statuses,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []TagRelationship
	for rows.Next() {
		i, err := scanTagRelationship(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
